package engine

import (
	"io"
	"log/slog"
	"math"

	"appraisekit/core"
)

// Values returned by the getters while the engine is not running or an error
// is active. They all suppress further prompting.
const (
	DefaultRated           = true
	DefaultPostponed       = true
	DefaultLaunchCount     = int64(math.MinInt64)
	DefaultSigEventCount   = int64(math.MinInt64)
	DefaultFirstLaunchTime = core.NeverTime
	DefaultPostponeTime    = core.NeverTime
	DefaultNetwork         = false
)

// DebugLevel controls diagnostics.
type DebugLevel int

const (
	// DebugOff silences the engine logger.
	DebugOff DebugLevel = iota
	// DebugDiagnostics logs gate decisions, counters and persistence.
	DebugDiagnostics
	// DebugForceGate additionally reports the gate as always open.
	DebugForceGate
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
