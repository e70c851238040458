package appraise

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "appraisekit/adapters/memory"
	"appraisekit/adapters/redis"
	"appraisekit/adapters/statefile"
	"appraisekit/analytics"
	"appraisekit/config"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/host"
	"appraisekit/realtime"
)

type answerLoop struct{ idx []int }

func (l *answerLoop) Next(ctx context.Context) (engine.HostEvent, error) {
	if len(l.idx) == 0 {
		<-ctx.Done()
		return engine.HostEvent{}, ctx.Err()
	}
	i := l.idx[0]
	l.idx = l.idx[1:]
	return engine.HostEvent{Domain: engine.DomainDialog, SelectedIndex: i}, nil
}

type nopAlert struct{}

func (nopAlert) SetMessage(string) error    { return nil }
func (nopAlert) AddButton(string) error     { return nil }
func (nopAlert) Show(context.Context) error { return nil }
func (nopAlert) Destroy()                   {}

type nopDialog struct{ shown int }

func (d *nopDialog) NewAlert(context.Context) (engine.Alert, error) {
	d.shown++
	return nopAlert{}, nil
}

type recordOpener struct{ uris []string }

func (o *recordOpener) Open(_ context.Context, uri string) error {
	o.uris = append(o.uris, uri)
	return nil
}

func testHost(d *nopDialog, answers ...int) engine.Host {
	return engine.Host{Dialog: d, Loop: &answerLoop{idx: answers}, Network: host.Static(true), Store: &recordOpener{}}
}

func TestStart_BasicMode(t *testing.T) {
	store := mem.New()
	d := &nopDialog{}
	stats := analytics.NewPromptStats()
	hub := realtime.NewHub()
	_, ch := hub.Subscribe(16)

	opts := []Option{
		WithStorage(store),
		WithHost(testHost(d, core.ButtonRateLater)),
		WithConditions(core.Conditions{LaunchCount: 2, SigEventCount: core.SigEventsDisabled, DaysToPostpone: 1}),
		WithHooks(stats),
		WithRealtime(hub),
		WithDebug(engine.DebugOff),
	}

	e, err := Start(context.Background(), opts...)
	require.NoError(t, err)
	assert.Equal(t, int64(1), e.LaunchCount())
	assert.Equal(t, 0, d.shown)
	e.Stop()

	e, err = Start(context.Background(), opts...)
	require.NoError(t, err)
	assert.Equal(t, int64(2), e.LaunchCount())
	assert.Equal(t, 1, d.shown)
	assert.True(t, e.Postponed())
	assert.Equal(t, int64(1), stats.Count(core.EventPostponed))
	assert.NotEmpty(t, ch)
	require.NoError(t, e.Close())
}

func TestNew_FromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = config.AdapterFile
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), ".appraiseme")
	cfg.Store.ID = "95522"
	cfg.Conditions.LaunchCount = 0

	opener := &recordOpener{}
	d := &nopDialog{}
	h := testHost(d, core.ButtonRateNow)
	h.Store = opener

	e, err := Start(context.Background(), WithConfig(cfg), WithHost(h))
	require.NoError(t, err)
	assert.True(t, e.Rated())
	assert.Equal(t, []string{"appworld://content/95522"}, opener.uris)

	st, err := statefile.NewAt(cfg.Storage.File.Path).Load(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Rated)
}

func TestNew_OptionsOverrideConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Adapter = config.AdapterMemory
	cfg.Debug = 2

	e, err := New(context.Background(), WithConfig(cfg), WithDebug(engine.DebugOff), WithHost(testHost(&nopDialog{})),
		WithConditions(core.Conditions{LaunchCount: 50}))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))

	d, err := e.Decide(context.Background())
	require.NoError(t, err)
	assert.Equal(t, core.ReasonTooFewLaunches, d.Reason)
}

func TestNew_AdvancedModeWithoutConditions(t *testing.T) {
	e, err := New(context.Background(), WithStorage(mem.New()), WithHost(testHost(&nopDialog{})), WithDebug(engine.DebugOff))
	require.NoError(t, err)
	require.NoError(t, e.Start(context.Background()))
	assert.False(t, e.GateOpen(context.Background()))
}

func TestStart_StorageErrorKeepsEngine(t *testing.T) {
	t.Setenv("HOME", "")
	e, err := Start(context.Background(), WithHost(testHost(&nopDialog{})), WithDebug(engine.DebugOff),
		WithClock(core.FixedClock(time.Unix(0, 0))))
	require.Error(t, err)
	require.NotNil(t, e)
	assert.Equal(t, core.CodeStorage, e.Code())
	assert.True(t, e.Rated())
}

func TestOpenStorage(t *testing.T) {
	ctx := context.Background()
	cfg := config.DefaultConfig()

	cfg.Storage.Adapter = config.AdapterMemory
	st, err := OpenStorage(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &mem.Store{}, st)

	cfg.Storage.Adapter = config.AdapterJSON
	cfg.Storage.File.Path = filepath.Join(t.TempDir(), "state.json")
	_, err = OpenStorage(ctx, cfg)
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	cfg.Storage.Adapter = config.AdapterRedis
	cfg.Storage.Redis.Addr = mr.Addr()
	st, err = OpenStorage(ctx, cfg)
	require.NoError(t, err)
	require.IsType(t, &redis.Store{}, st)
	require.NoError(t, st.Save(ctx, core.NewState(1)))
	assert.True(t, mr.Exists("appraise:default:state"))
	require.NoError(t, st.(*redis.Store).Close())

	cfg.Storage.Adapter = "etcd"
	_, err = OpenStorage(ctx, cfg)
	assert.Error(t, err)
}
