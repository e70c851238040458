package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"appraisekit/analytics"
	"appraisekit/core"
	"appraisekit/engine"
)

type runner struct {
	in  io.Reader
	out io.Writer
}

func newRootCommand(in io.Reader, out io.Writer) *cli.Command {
	r := &runner{in: in, out: out}
	return &cli.Command{
		Name:  "appraise",
		Usage: "rating reminder for the current installation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "JSON configuration `FILE`; environment variables override it",
				Sources: cli.EnvVars("APPRAISE_CONFIG"),
			},
		},
		Writer: out,
		// exit codes are handled by main
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
		Commands: []*cli.Command{
			{
				Name:  "status",
				Usage: "print the stored state, the gate decision and the error code",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "json", Usage: "print JSON"},
				},
				Action: r.status,
			},
			{
				Name:   "launch",
				Usage:  "record one app launch",
				Flags:  []cli.Flag{promptFlag()},
				Action: r.notify((*engine.Engine).NotifyLaunch),
			},
			{
				Name:   "event",
				Usage:  "record one significant event",
				Flags:  []cli.Flag{promptFlag()},
				Action: r.notify((*engine.Engine).NotifySignificantEvent),
			},
			{
				Name:   "gate",
				Usage:  "evaluate the gate and print the reason",
				Action: r.gate,
			},
			{
				Name:      "rate",
				Usage:     "set the rated flag",
				ArgsUsage: "<true|false>",
				Action:    r.flag((*engine.Engine).SetRated, (*engine.Engine).Rated, "rated"),
			},
			{
				Name:      "postpone",
				Usage:     "set the postponed flag",
				ArgsUsage: "<true|false>",
				Action:    r.flag((*engine.Engine).SetPostponed, (*engine.Engine).Postponed, "postponed"),
			},
			{
				Name:   "serve",
				Usage:  "run the diagnostics HTTP API with the WebSocket event stream",
				Action: r.serve,
			},
		},
	}
}

func promptFlag() cli.Flag {
	return &cli.BoolFlag{Name: "prompt", Usage: "show the reminder on the console when the gate is open"}
}

// withApp builds and starts the engine, runs fn and releases everything.
func (r *runner) withApp(ctx context.Context, cmd *cli.Command, fn func(*App) error) error {
	app, err := BuildApp(ctx, ConfigPath(cmd.String("config")), r.in, r.out)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Warn("close failed", "error", err)
		}
	}()
	if err := app.Engine.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	return fn(app)
}

func (r *runner) notify(fn func(*engine.Engine, context.Context, bool) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		return r.withApp(ctx, cmd, func(app *App) error {
			if err := fn(app.Engine, ctx, cmd.Bool("prompt")); err != nil {
				return err
			}
			e := app.Engine
			fmt.Fprintf(r.out, "launches: %d  significant events: %d  prompt: %s\n", e.LaunchCount(), e.SigEventCount(), e.PromptState())
			return nil
		})
	}
}

func (r *runner) flag(set func(*engine.Engine, context.Context, bool) error, get func(*engine.Engine) bool, name string) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		if cmd.Args().Len() != 1 {
			return cli.Exit(fmt.Sprintf("%s expects exactly one argument: true or false", cmd.Name), 2)
		}
		v, err := strconv.ParseBool(cmd.Args().First())
		if err != nil {
			return cli.Exit(fmt.Sprintf("%s: %q is not a boolean", cmd.Name, cmd.Args().First()), 2)
		}
		return r.withApp(ctx, cmd, func(app *App) error {
			if err := set(app.Engine, ctx, v); err != nil {
				return err
			}
			fmt.Fprintf(r.out, "%s: %t\n", name, get(app.Engine))
			return nil
		})
	}
}

func (r *runner) gate(ctx context.Context, cmd *cli.Command) error {
	return r.withApp(ctx, cmd, func(app *App) error {
		d, err := app.Engine.Decide(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(r.out, formatDecision(d))
		return nil
	})
}

type statusReport struct {
	State       core.State     `json:"state"`
	PostponedAt int64          `json:"postponed_at"`
	Gate        *core.Decision `json:"gate,omitempty"`
	Prompt      string         `json:"prompt"`
	Code        string         `json:"code"`
	Error       string         `json:"error,omitempty"`
}

// status reports even when the engine failed to start, so it builds the app
// itself instead of going through withApp.
func (r *runner) status(ctx context.Context, cmd *cli.Command) error {
	app, err := BuildApp(ctx, ConfigPath(cmd.String("config")), r.in, r.out)
	if err != nil {
		return err
	}
	defer app.Close()

	e := app.Engine
	_ = e.Start(ctx)
	rep := statusReport{Prompt: e.PromptState().String()}
	if st, err := e.Snapshot(); err == nil {
		rep.State = st
		rep.PostponedAt = st.PostponedAt()
		if d, err := e.Decide(ctx); err == nil {
			rep.Gate = &d
		}
	}
	err = e.Err()
	rep.Code = core.CodeOf(err).String()
	if err != nil {
		rep.Error = err.Error()
	}

	if cmd.Bool("json") {
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		r.printStatus(rep)
	}
	if err != nil {
		return cli.Exit("", 1)
	}
	return nil
}

func (r *runner) printStatus(rep statusReport) {
	tw := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	defer tw.Flush()
	if rep.Error != "" {
		fmt.Fprintf(tw, "code:\t%s\n", rep.Code)
		fmt.Fprintf(tw, "error:\t%s\n", rep.Error)
		return
	}
	st := rep.State
	fmt.Fprintf(tw, "rated:\t%t\n", st.Rated)
	fmt.Fprintf(tw, "postponed:\t%t\n", st.Postponed)
	fmt.Fprintf(tw, "first launch:\t%s\n", formatTime(st.FirstLaunch))
	fmt.Fprintf(tw, "postponed at:\t%s\n", formatTime(rep.PostponedAt))
	fmt.Fprintf(tw, "launches:\t%d\n", st.LaunchCount)
	fmt.Fprintf(tw, "significant events:\t%d\n", st.SigEventCount)
	if rep.Gate != nil {
		fmt.Fprintf(tw, "gate:\t%s\n", formatDecision(*rep.Gate))
	}
	fmt.Fprintf(tw, "prompt:\t%s\n", rep.Prompt)
	fmt.Fprintf(tw, "code:\t%s\n", rep.Code)
}

func formatDecision(d core.Decision) string {
	state := "closed"
	if d.Open {
		state = "open"
	}
	if d.Detail == "" {
		return fmt.Sprintf("%s (%s)", state, d.Reason)
	}
	return fmt.Sprintf("%s (%s: %s)", state, d.Reason, d.Detail)
}

func formatTime(ts int64) string {
	if ts == core.NeverTime {
		return "never"
	}
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// serve keeps running when the engine fails to start so /healthz can report it.
func (r *runner) serve(ctx context.Context, cmd *cli.Command) error {
	app, err := BuildApp(ctx, ConfigPath(cmd.String("config")), r.in, r.out)
	if err != nil {
		return err
	}
	defer app.Close()

	cfg := app.Config
	log := app.Logger
	if err := app.Engine.Start(ctx); err != nil {
		log.Error("reminder engine failed to start", "error", err, "code", app.Engine.Code())
	}

	log.Info("starting appraise server",
		"environment", cfg.Environment,
		"profile", cfg.Profile,
		"address", cfg.Server.Address,
		"storage_adapter", cfg.Storage.Adapter)

	srv := app.Server
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "address", cfg.Server.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down server", "timeout", cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	exp := analytics.NewLogExporter(log)
	defer exp.Close()
	if err := exp.Export(shutdownCtx, app.Stats.Snapshot()); err != nil {
		log.Warn("export prompt stats", "error", err)
	}
	log.Info("server stopped")
	return nil
}
