// Command bookstream aggregates a single trading pair's order book across
// multiple exchanges and serves the result as a streaming gRPC summary
// (spec.md §1, OVERVIEW).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BullionBear/sequex/internal/aggregator"
	"github.com/BullionBear/sequex/internal/fanout"
	"github.com/BullionBear/sequex/internal/rpc"
	"github.com/BullionBear/sequex/internal/supervisor"
	"github.com/BullionBear/sequex/internal/venue"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

func main() {
	pairFlag := flag.String("pair", "", "trading pair as two comma-separated symbols, e.g. eth,btc (required)")
	exchangesFlag := flag.String("exchanges", "", "comma-separated venue names; defaults to all supported")
	orderBookDepth := flag.Int("order-book-depth", 25, "snapshot/book depth requested per venue")
	bestNOrders := flag.Int("best-n-orders", 10, "number of top-of-book levels published per side")
	summaryBuffer := flag.Int("summary-buffer", 16, "per-subscriber summary channel capacity")
	exchangeStreamBuffer := flag.Int("exchange-stream-buffer", 256, "per-venue raw frame channel capacity")
	priceLevelBuffer := flag.Int("price-level-channel-buffer", 256, "aggregator input channel capacity")
	socketAddress := flag.String("socket-address", "[::1]:50051", "listen address for the BookStream gRPC service")
	level := flag.String("level", "info", "log level: debug, info, warn, error")
	logFilePath := flag.String("log-file-path", "", "write logs to this file instead of stderr")
	natsURL := flag.String("nats-url", "", "optional NATS URL to mirror summaries onto, disabled if empty")
	natsSubject := flag.String("nats-subject", "bookstream.summary", "NATS subject for the mirror sink")
	flag.Parse()

	logger, err := buildLogger(*level, *logFilePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bookstream: %v\n", err)
		os.Exit(1)
	}

	pair, err := parsePair(*pairFlag)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid --pair")
	}

	var names []venue.Name
	if strings.TrimSpace(*exchangesFlag) == "" {
		names = venue.All()
	} else {
		names, err = venue.ParseNames(*exchangesFlag)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid --exchanges")
		}
	}

	broadcaster := fanout.New(*summaryBuffer)
	defer broadcaster.Close()

	sink := aggregator.Sink(broadcaster)
	if *natsURL != "" {
		conn, err := nats.Connect(*natsURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to NATS mirror sink")
		}
		defer conn.Close()
		mirror := fanout.NewNATSMirror(conn, *natsSubject, logger.With().Str("component", "mirror").Logger())
		sink = fanout.NewMultiSink(broadcaster, mirror)
	}

	agg, priceLevels := aggregator.New(aggregator.Config{
		MaxDepth:             *orderBookDepth,
		BestN:                *bestNOrders,
		PriceLevelBufferSize: *priceLevelBuffer,
	}, sink, logger.With().Str("component", "aggregator").Logger())

	server := rpc.NewServer(broadcaster, logger.With().Str("component", "rpc").Logger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	venuesTask := supervisor.Task{
		Name: "venues",
		Run: func(ctx context.Context) error {
			errCh := venue.Spawn(ctx, names, pair, *orderBookDepth, *exchangeStreamBuffer, priceLevels, logger.With().Str("component", "venue").Logger())
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
				return nil
			}
		},
	}
	aggregatorTask := supervisor.Task{Name: "aggregator", Run: func(ctx context.Context) error { return agg.Run(ctx, priceLevels) }}
	rpcTask := supervisor.Task{Name: "rpc", Run: func(ctx context.Context) error { return server.Run(ctx, *socketAddress) }}

	err = supervisor.Run(ctx, logger, venuesTask, aggregatorTask, rpcTask)
	if err != nil {
		logger.Error().Err(err).Msg("bookstream exiting with error")
		os.Exit(1)
	}
}

func parsePair(raw string) (venue.Pair, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return venue.Pair{}, fmt.Errorf("--pair must be two comma-separated symbols, got %q", raw)
	}
	base := strings.TrimSpace(parts[0])
	quote := strings.TrimSpace(parts[1])
	if base == "" || quote == "" {
		return venue.Pair{}, fmt.Errorf("--pair must be two comma-separated symbols, got %q", raw)
	}
	return venue.Pair{Base: base, Quote: quote}, nil
}

func buildLogger(level, logFilePath string) (zerolog.Logger, error) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMicro

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid --level %q: %w", level, err)
	}

	var output = os.Stderr
	if logFilePath != "" {
		f, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return zerolog.Logger{}, fmt.Errorf("opening --log-file-path %q: %w", logFilePath, err)
		}
		return zerolog.New(f).Level(lvl).With().Timestamp().Logger(), nil
	}

	return zerolog.New(output).Level(lvl).With().Timestamp().Logger(), nil
}
