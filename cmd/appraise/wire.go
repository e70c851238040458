//go:build wireinject
// +build wireinject

package main

import (
	"context"
	"io"

	"github.com/google/wire"
)

// BuildApp wires the CLI components using Google Wire.
func BuildApp(ctx context.Context, path ConfigPath, in io.Reader, out io.Writer) (*App, error) {
	wire.Build(
		provideConfig,
		provideLogger,
		provideHub,
		provideStats,
		provideStorage,
		provideHost,
		provideEngine,
		provideHandler,
		provideServer,
		wire.Struct(new(App), "*"),
	)
	return nil, nil
}
