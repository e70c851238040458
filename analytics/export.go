package analytics

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/goccy/go-json"
)

// Exporter ships stats snapshots somewhere.
type Exporter interface {
	Export(ctx context.Context, snap Snapshot) error
	Close() error
}

// WriterExporter writes each snapshot as one JSON line.
type WriterExporter struct {
	w io.Writer
}

func NewWriterExporter(w io.Writer) *WriterExporter { return &WriterExporter{w: w} }

func (e *WriterExporter) Export(_ context.Context, snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(e.w, "%s\n", b)
	return err
}

func (e *WriterExporter) Close() error { return nil }

// LogExporter logs snapshots through slog.
type LogExporter struct {
	log *slog.Logger
}

func NewLogExporter(log *slog.Logger) *LogExporter {
	if log == nil {
		log = slog.Default()
	}
	return &LogExporter{log: log}
}

func (e *LogExporter) Export(ctx context.Context, snap Snapshot) error {
	e.log.InfoContext(ctx, "reminder stats",
		"launches", snap.Launches,
		"shown", snap.Shown,
		"rated", snap.Rated,
		"postponed", snap.Postponed,
		"declined", snap.Declined,
		"conversion", snap.ConversionRate,
	)
	return nil
}

func (e *LogExporter) Close() error { return nil }

// MultiExporter combines multiple exporters
type MultiExporter struct {
	exporters []Exporter
}

func NewMultiExporter(exporters ...Exporter) *MultiExporter {
	return &MultiExporter{exporters: exporters}
}

// Export hands snap to every exporter and returns the first failure.
func (e *MultiExporter) Export(ctx context.Context, snap Snapshot) error {
	var first error
	for _, exporter := range e.exporters {
		if err := exporter.Export(ctx, snap); err != nil && first == nil {
			first = fmt.Errorf("export failed for %T: %w", exporter, err)
		}
	}
	return first
}

func (e *MultiExporter) Close() error {
	var lastErr error
	for _, exporter := range e.exporters {
		if err := exporter.Close(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}
