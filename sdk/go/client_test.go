package sdk

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mem "appraisekit/adapters/memory"
	"appraisekit/api/httpapi"
	"appraisekit/core"
	"appraisekit/engine"
	"appraisekit/host"
	"appraisekit/realtime"
)

type testServer struct {
	*httptest.Server
	engine *engine.Engine
	hub    *realtime.Hub
}

func newTestServer(t *testing.T, start bool, opts httpapi.Options) *testServer {
	t.Helper()
	hub := realtime.NewHub()
	bus := engine.NewEventBus(engine.DispatchSync)
	hub.Attach(bus)
	e := engine.NewEngine(mem.New(), engine.Host{Network: host.Static(true)}, bus, engine.Options{
		Conditions: &core.Conditions{LaunchCount: 1, SigEventCount: core.SigEventsDisabled, DaysToPostpone: 1},
	})
	if start {
		require.NoError(t, e.Start(context.Background()))
	}
	if opts.PathPrefix == "" {
		opts.PathPrefix = "/api"
	}
	srv := httptest.NewServer(httpapi.NewMux(e, hub, opts))
	t.Cleanup(func() {
		srv.Close()
		_ = e.Close()
	})
	return &testServer{Server: srv, engine: e, hub: hub}
}

func TestClient_StateGateAndSetters(t *testing.T) {
	srv := newTestServer(t, true, httpapi.Options{APIKeys: []string{"k1"}})
	client, err := NewClient(srv.URL+"/api/", WithAPIKey("k1"))
	require.NoError(t, err)
	ctx := context.Background()

	d, err := client.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ReasonTooFewLaunches, d.Reason)

	counters, err := client.NotifyLaunch(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.LaunchCount)

	counters, err = client.NotifySignificantEvent(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counters.SigEventCount)

	d, err = client.Gate(ctx)
	require.NoError(t, err)
	assert.True(t, d.Open)

	require.NoError(t, client.SetPostponed(ctx, true))
	st, err := client.State(ctx)
	require.NoError(t, err)
	assert.True(t, st.Postponed)
	assert.NotEqual(t, core.NeverTime, st.PostponedAt)
	assert.Equal(t, "idle", st.Prompt)
	require.NotNil(t, st.Conditions)
	assert.Equal(t, int64(1), st.Conditions.LaunchCount)

	require.NoError(t, client.SetRated(ctx, true))
	d, err = client.Gate(ctx)
	require.NoError(t, err)
	assert.Equal(t, core.ReasonRated, d.Reason)

	require.NoError(t, client.SetConditions(ctx, core.Conditions{LaunchCount: 5, SigEventCount: core.SigEventsDisabled}))
	st, err = client.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(5), st.Conditions.LaunchCount)
}

func TestClient_Errors(t *testing.T) {
	srv := newTestServer(t, false, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.State(ctx)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 409, apiErr.Status)
	assert.Equal(t, core.CodeNotRunning.String(), apiErr.Code)

	hs, err := client.Health(ctx)
	require.NoError(t, err)
	assert.False(t, hs.Healthy())
	assert.Equal(t, core.CodeNotRunning.String(), hs.Code)

	_, err = NewClient(" ")
	assert.Error(t, err)
}

func TestClient_Unauthorized(t *testing.T) {
	srv := newTestServer(t, true, httpapi.Options{APIKeys: []string{"k1"}})
	client, err := NewClient(srv.URL+"/api", WithAuthToken("nope"))
	require.NoError(t, err)

	_, err = client.Gate(context.Background())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)
	assert.Equal(t, "unauthorized", apiErr.Code)
}

func TestClient_SubscribeEvents(t *testing.T) {
	srv := newTestServer(t, true, httpapi.Options{})
	client, err := NewClient(srv.URL + "/api")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	events, err := client.SubscribeEvents(ctx, core.EventLaunched)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.hub.Len() == 1 }, time.Second, 10*time.Millisecond)

	_, err = client.NotifyLaunch(ctx, false)
	require.NoError(t, err)

	select {
	case evt := <-events:
		assert.Equal(t, core.EventLaunched, evt.Type)
		require.NotNil(t, evt.State)
		assert.Equal(t, int64(1), evt.State.LaunchCount)
	case <-ctx.Done():
		t.Fatal("timed out waiting for event")
	}
}

func TestDeriveWSURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8080/api/ws", deriveWSURL("http://localhost:8080/api"))
	assert.Equal(t, "wss://example.com/ws", deriveWSURL("https://example.com"))
}
