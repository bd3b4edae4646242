// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package eventlog

import (
	"sync"

	"github.com/google/uuid"

	"github.com/btorressz/coffee-futures/core"
)

// Record is one appended event with its log-assigned identity.
type Record struct {
	ID    string     `json:"id"`
	Seq   uint64     `json:"seq"`
	Event core.Event `json:"event"`
}

// Log is an append-only event log with subscriber fan-out. Appends never
// block: slow subscribers drop records rather than stalling settlement.
type Log struct {
	mu      sync.RWMutex
	records []Record
	seq     uint64
	subs    map[uint64]chan Record
	nextSub uint64
}

// New creates an empty log.
func New() *Log {
	return &Log{subs: make(map[uint64]chan Record)}
}

// Append assigns identity to the event and stores it.
func (l *Log) Append(event core.Event) Record {
	l.mu.Lock()
	l.seq++
	rec := Record{
		ID:    uuid.NewString(),
		Seq:   l.seq,
		Event: event,
	}
	l.records = append(l.records, rec)
	subs := make([]chan Record, 0, len(l.subs))
	for _, ch := range l.subs {
		subs = append(subs, ch)
	}
	l.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- rec:
		default:
		}
	}
	return rec
}

// Len returns the number of appended records.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Records returns a copy of all records appended so far.
func (l *Log) Records() []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Since returns records with Seq strictly greater than seq.
func (l *Log) Since(seq uint64) []Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Record
	for _, rec := range l.records {
		if rec.Seq > seq {
			out = append(out, rec)
		}
	}
	return out
}

// Subscribe registers a buffered channel receiving future records. The
// returned cancel func must be called to release the subscription.
func (l *Log) Subscribe(buffer int) (<-chan Record, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan Record, buffer)
	l.mu.Lock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = ch
	l.mu.Unlock()

	cancel := func() {
		l.mu.Lock()
		if _, ok := l.subs[id]; ok {
			delete(l.subs, id)
			close(ch)
		}
		l.mu.Unlock()
	}
	return ch, cancel
}
