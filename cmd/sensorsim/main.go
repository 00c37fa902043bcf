package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/sensorsim/internal/config"
	"codeberg.org/mutker/sensorsim/internal/errors"
	"codeberg.org/mutker/sensorsim/internal/logger"
	"codeberg.org/mutker/sensorsim/internal/pid"
	"github.com/spf13/pflag"
)

var cfg *config.Config

func setup() {
	var err error
	cfg, err = config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, _ := logger.ParseLevel(cfg.LogLevel)
	logger.Init(level, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	setup()

	if err := pid.Write(cfg.PIDDir); err != nil {
		logger.FatalWithCode(coded(err)).Msg("failed to write PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	exitCode := 0
	if err := run(ctx, cfg, logger.Default()); err != nil {
		logger.ErrorWithCode(coded(err)).Msg("error in main loop")
		exitCode = 1
	}
	cleanup()
	os.Exit(exitCode)
}

// coded returns err as a coded error, wrapping foreign errors as internal.
func coded(err error) errors.Error {
	var e errors.Error
	if errors.As(err, &e) {
		return e
	}
	return errors.New().Wrap(errors.ErrInternal, err)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	if err := pid.Remove(cfg.PIDDir); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}
