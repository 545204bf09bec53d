package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AaronLay10/JackalCourse/internal/cmd/coursed"
)

func main() {
	cfg, err := coursed.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := coursed.Run(ctx, cfg); err != nil {
		logger := coursed.NewLogger(cfg.LogLevel)
		logger.Fatal().Err(err).Msg("coursed failed")
	}
}
