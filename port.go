package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/roffe/canrecon/pkg/bus"
	"github.com/roffe/canrecon/pkg/config"
	"github.com/roffe/canrecon/pkg/ecusim"
)

// openPort connects to the configured adapter. The port is not tied to ctx so
// an interrupted scan can still finish its current candidate.
func openPort(ctx context.Context) (bus.Port, func() error, error) {
	if cfg.Adapter.Name == config.SimAdapter {
		ecu := ecusim.Default()
		logger.Info().
			Str("request", fmt.Sprintf("0x%03X", ecu.RequestID)).
			Str("response", fmt.Sprintf("0x%03X", ecu.ResponseID)).
			Msg("using simulated ECU")
		return bus.NewLoopback(ecu.Node()), func() error { return nil }, nil
	}

	p, err := bus.Open(context.WithoutCancel(ctx), cfg.AdapterConfig(), logger)
	if err != nil {
		return nil, nil, err
	}
	logger.Info().Str("adapter", cfg.Adapter.Name).Str("port", cfg.Adapter.Port).Msg("adapter ready")
	return p, p.Close, nil
}

type pumped interface {
	Done() <-chan struct{}
	Err() error
}

// watchPort returns an error if the port's receive side dies before ctx ends.
func watchPort(ctx context.Context, p bus.Port) error {
	w, ok := p.(pumped)
	if !ok {
		<-ctx.Done()
		return nil
	}
	select {
	case <-ctx.Done():
		return nil
	case <-w.Done():
		if err := w.Err(); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("adapter: %w", err)
		}
		return nil
	}
}
