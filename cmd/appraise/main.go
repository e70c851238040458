package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	// .env values never override variables already set.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "appraise: load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand(os.Stdin, os.Stdout).Run(ctx, os.Args); err != nil {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			if msg := exitErr.Error(); msg != "" {
				fmt.Fprintf(os.Stderr, "appraise: %s\n", msg)
			}
			stop()
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "appraise: %v\n", err)
		stop()
		os.Exit(1)
	}
}
