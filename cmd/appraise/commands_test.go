package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"appraisekit/config"
	"appraisekit/core"
)

// writeConfig points the file adapter at a temp dir and requires two launches.
func writeConfig(t *testing.T) (cfgPath, statePath string) {
	t.Helper()
	dir := t.TempDir()
	statePath = filepath.Join(dir, ".appraiseme")
	cfgPath = filepath.Join(dir, "appraise.json")
	body := fmt.Sprintf(`{
  "storage": {"adapter": "file", "file": {"path": %q}},
  "conditions": {"enabled": true, "days_in_use": 0, "launch_count": 2, "sig_event_count": -1, "days_to_postpone": 1},
  "logging": {"level": "error", "format": "text", "output": "stderr"}
}`, statePath)
	require.NoError(t, os.WriteFile(cfgPath, []byte(body), 0o600))
	return cfgPath, statePath
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand(strings.NewReader(""), &out)
	err := cmd.Run(context.Background(), append([]string{"appraise", "--config", cfgPath}, args...))
	return out.String(), err
}

func TestLaunchPersistsAcrossRuns(t *testing.T) {
	cfgPath, statePath := writeConfig(t)

	out, err := run(t, cfgPath, "launch")
	require.NoError(t, err)
	assert.Contains(t, out, "launches: 1")

	out, err = run(t, cfgPath, "launch")
	require.NoError(t, err)
	assert.Contains(t, out, "launches: 2")

	out, err = run(t, cfgPath, "event")
	require.NoError(t, err)
	assert.Contains(t, out, "significant events: 1")

	raw, err := os.ReadFile(statePath)
	require.NoError(t, err)
	fields := strings.Fields(string(raw))
	require.Len(t, fields, 7)
	assert.Equal(t, "2", fields[5])
	assert.Equal(t, "1", fields[6])
}

func TestGateReportsReason(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	out, err := run(t, cfgPath, "gate")
	require.NoError(t, err)
	assert.Contains(t, out, "closed ("+string(core.ReasonTooFewLaunches))

	out, err = run(t, cfgPath, "rate", "true")
	require.NoError(t, err)
	assert.Equal(t, "rated: true\n", out)

	out, err = run(t, cfgPath, "gate")
	require.NoError(t, err)
	assert.Contains(t, out, string(core.ReasonRated))
}

func TestFlagCommandsValidateArgument(t *testing.T) {
	cfgPath, _ := writeConfig(t)

	_, err := run(t, cfgPath, "postpone")
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())

	_, err = run(t, cfgPath, "rate", "sometimes")
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.ExitCode())

	out, err := run(t, cfgPath, "postpone", "true")
	require.NoError(t, err)
	assert.Equal(t, "postponed: true\n", out)
}

func TestStatus(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	_, err := run(t, cfgPath, "launch")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "launches:")
	assert.Contains(t, out, "postponed at:        never")
	assert.Contains(t, out, "code:                none")

	out, err = run(t, cfgPath, "status", "--json")
	require.NoError(t, err)
	var rep statusReport
	require.NoError(t, json.Unmarshal([]byte(out), &rep))
	assert.Equal(t, int64(1), rep.State.LaunchCount)
	assert.Equal(t, "none", rep.Code)
	require.NotNil(t, rep.Gate)
	assert.Equal(t, core.ReasonTooFewLaunches, rep.Gate.Reason)
}

func TestStatusReportsStorageError(t *testing.T) {
	cfgPath, statePath := writeConfig(t)
	require.NoError(t, os.WriteFile(statePath, []byte("garbage"), 0o600))

	out, err := run(t, cfgPath, "status")
	var exitErr cli.ExitCoder
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.ExitCode())
	assert.Contains(t, out, core.CodeStorage.String())

	_, err = run(t, cfgPath, "launch")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
}

func TestInvalidConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"logging":{"level":"loud"}}`), 0o600))

	_, err := run(t, path, "gate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("info"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("bogus"))
}

func TestSetupLoggingAttributes(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cfg := config.DefaultConfig()
	cfg.Logging.Format = "json"
	cfg.Logging.Level = "warn"
	cfg.Logging.Attributes = map[string]string{"service": "appraise"}
	logger := setupLogging(cfg)

	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
	assert.Same(t, logger, slog.Default())
}

func TestFormatDecision(t *testing.T) {
	assert.Equal(t, "open (open)", formatDecision(core.Decision{Open: true, Reason: core.ReasonOpen}))
	assert.Equal(t, "closed (offline: network is not available)",
		formatDecision(core.Decision{Reason: core.ReasonOffline, Detail: "network is not available"}))
	assert.Equal(t, "never", formatTime(core.NeverTime))
	assert.Equal(t, "1970-01-01T00:00:10Z", formatTime(10))
}

func TestBuildAppWiresStatsAndServer(t *testing.T) {
	cfgPath, _ := writeConfig(t)
	var out bytes.Buffer
	app, err := BuildApp(context.Background(), ConfigPath(cfgPath), strings.NewReader(""), &out)
	require.NoError(t, err)
	defer app.Close()

	assert.NotNil(t, app.Handler)
	assert.Equal(t, app.Config.Server.Address, app.Server.Addr)
	require.NoError(t, app.Engine.Start(context.Background()))
	require.NoError(t, app.Engine.NotifyLaunch(context.Background(), false))
	assert.Equal(t, int64(1), app.Stats.Count(core.EventLaunched))
}
