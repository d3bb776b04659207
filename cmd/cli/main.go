package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/vidpipe/internal/app"
	"github.com/vk/vidpipe/internal/cli"
)

// main is the entrypoint for the vidpipe binary.
func main() {
	// Use a minimal logger until the configured one is built.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := run(os.Stdout, os.Args[1:]); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.Message)
			os.Exit(exitErr.Code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// run encapsulates the application logic for easier testing and error
// handling. It exits zero only after every pool has drained and stopped.
func run(outW io.Writer, args []string) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	// An interrupt asks the sources to stop; in-flight items still drain
	// through the graph before the process exits.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipelineApp, err := app.NewApp(ctx, outW, *appConfig)
	if err != nil {
		return err
	}
	return pipelineApp.Run(ctx)
}
