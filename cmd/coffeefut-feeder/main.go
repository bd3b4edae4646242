// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// coffeefut-feeder publishes oracle prices to a running coffeefutd on a fixed
// interval. The walk stays well inside the engine's ±25% band so a lab feed
// never trips the circuit breaker.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/btorressz/coffee-futures/pkg/client"
	"github.com/btorressz/coffee-futures/pkg/ids"
	"github.com/btorressz/coffee-futures/pkg/log"
)

var (
	apiURL     = flag.String("api", "http://127.0.0.1:8600", "coffeefutd base URL")
	marketHex  = flag.String("market", "", "Market id (hex)")
	pubHex     = flag.String("publisher", "", "Oracle publisher id (hex)")
	startPrice = flag.Uint64("price", 1500, "Starting price per kg (quote smallest units)")
	stepBps    = flag.Uint64("step-bps", 100, "Per-tick move in basis points, alternating direction")
	interval   = flag.Duration("interval", 15*time.Second, "Publish interval")
	nonceStart = flag.Uint64("nonce-start", 1, "First nonce to publish")
)

func main() {
	flag.Parse()
	logger := log.NewLogger("feeder")
	defer logger.Sync()

	market, err := ids.FromString(*marketHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -market: %v\n", err)
		os.Exit(1)
	}
	publisher, err := ids.FromString(*pubHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -publisher: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	c := client.New(*apiURL)
	price := *startPrice
	nonce := *nonceStart
	up := true

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	logger.Info(fmt.Sprintf("feeding market %s from %s every %s", market, *apiURL, *interval))
	for {
		if err := c.PublishPrice(ctx, publisher, market, price, nonce); err != nil {
			logger.Warn(fmt.Sprintf("publish nonce=%d price=%d: %v", nonce, price, err))
		} else {
			logger.Info(fmt.Sprintf("published nonce=%d price=%d", nonce, price))
		}
		nonce++

		step := price * *stepBps / 10_000
		if up {
			price += step
		} else if price > step {
			price -= step
		}
		up = !up

		select {
		case <-ctx.Done():
			logger.Info("feeder stopped")
			return
		case <-ticker.C:
		}
	}
}
