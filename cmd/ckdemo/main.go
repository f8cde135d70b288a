// Command ckdemo replays a YAML script of table edits through the
// transactional data source and prints the table after every step.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/time/rate"

	"github.com/odvcencio/componentkit/pkg/changeset"
	"github.com/odvcencio/componentkit/pkg/config"
	"github.com/odvcencio/componentkit/pkg/datasource"
	apperrors "github.com/odvcencio/componentkit/pkg/errors"
	"github.com/odvcencio/componentkit/pkg/logging"
	"github.com/odvcencio/componentkit/pkg/mainloop"
	"github.com/odvcencio/componentkit/pkg/render"
	"github.com/odvcencio/componentkit/pkg/tableview"
	"github.com/odvcencio/componentkit/pkg/tablesource"
	"github.com/odvcencio/componentkit/pkg/telemetry"
)

// Version information - set via ldflags during build
var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

// newScreen opens the terminal for -tty. Tests swap in a simulation screen.
var newScreen = render.NewScreen

type options struct {
	configPath  string
	scriptPath  string
	trace       bool
	metrics     bool
	tty         bool
	watch       bool
	rate        float64
	width       int
	height      int
	showVersion bool
}

func parseOptions(args []string, stderr io.Writer) (options, error) {
	var opts options
	fs := flag.NewFlagSet("ckdemo", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "path to a config file (default: ~/.componentkit and ./.componentkit)")
	fs.StringVar(&opts.scriptPath, "script", "", "YAML script of table edits (required)")
	fs.BoolVar(&opts.trace, "trace", false, "print build spans to stderr")
	fs.BoolVar(&opts.metrics, "metrics", false, "print pipeline metrics after the script")
	fs.BoolVar(&opts.tty, "tty", false, "draw frames on the terminal instead of printing them")
	fs.BoolVar(&opts.watch, "watch", false, "replay the script whenever the file changes")
	fs.Float64Var(&opts.rate, "rate", 0, "steps per second (0 = as fast as possible)")
	fs.IntVar(&opts.width, "width", 0, "table width in cells (overrides config)")
	fs.IntVar(&opts.height, "height", 0, "table height in rows (overrides config)")
	fs.BoolVar(&opts.showVersion, "version", false, "print version and exit")
	if err := fs.Parse(args); err != nil {
		return opts, withExitCode(err, exitUsage)
	}
	if opts.showVersion {
		return opts, nil
	}
	if opts.scriptPath == "" {
		return opts, withExitCode(errors.New("-script is required"), exitUsage)
	}
	if opts.rate < 0 {
		return opts, withExitCode(fmt.Errorf("-rate must be >= 0, got %v", opts.rate), exitUsage)
	}
	return opts, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCodeForError(err))
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseOptions(args, stderr)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Fprintf(stdout, "ckdemo %s (%s)\n", version, commit)
		return nil
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return withExitCode(err, exitUsage)
	}
	// Fail on a broken script before touching the terminal.
	if _, err := loadScript(opts.scriptPath); err != nil {
		return withExitCode(err, exitUsage)
	}

	logger, err := openLogger(cfg, stderr)
	if err != nil {
		return withExitCode(err, exitUsage)
	}
	defer logger.Close()

	if cfg.Telemetry.Tracing {
		tp, err := telemetry.NewTracerProvider(cfg.Telemetry.ServiceName, stderr)
		if err != nil {
			return err
		}
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	hub := telemetry.NewHub()
	defer hub.Close()

	var screen *render.Screen
	if opts.tty {
		screen, err = newScreen()
		if err != nil {
			return err
		}
		if err := screen.Init(); err != nil {
			return err
		}
		defer screen.Fini()
	}

	replay := func(ctx context.Context) error {
		script, err := loadScript(opts.scriptPath)
		if err != nil {
			return err
		}
		d := &demo{
			cfg:     cfg,
			stdout:  stdout,
			logger:  logger.WithSource("ckdemo:" + uuid.NewString()),
			screen:  screen,
			limiter: newLimiter(opts.rate),
		}
		if err := d.start(ctx, script, hub); err != nil {
			return err
		}
		defer d.stop()
		return d.play(ctx, script)
	}

	if err := replay(ctx); err != nil {
		return withExitCode(err, exitScript)
	}
	if opts.watch {
		if err := watchScript(ctx, opts.scriptPath, replay, logger); err != nil {
			return err
		}
	} else if screen != nil {
		if err := screen.WaitKey(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
	}
	if cfg.Telemetry.Metrics {
		return writeMetrics(stdout)
	}
	return nil
}

func newLimiter(stepsPerSecond float64) *rate.Limiter {
	if stepsPerSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(stepsPerSecond), 1)
}

func loadConfig(opts options) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if opts.configPath != "" {
		cfg, err = config.LoadFromPath(opts.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if opts.trace {
		cfg.Telemetry.Tracing = true
	}
	if opts.metrics {
		cfg.Telemetry.Metrics = true
	}
	if opts.width > 0 {
		cfg.Table.Width = opts.width
	}
	if opts.height > 0 {
		cfg.Table.Height = opts.height
	}
	return cfg, cfg.Validate()
}

func openLogger(cfg *config.Config, stderr io.Writer) (*logging.Logger, error) {
	var logger *logging.Logger
	if cfg.Logging.Dir != "" {
		l, err := logging.OpenLogger(cfg.Logging.Dir)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeConfigInvalid, "opening log directory").
				WithContext("dir", cfg.Logging.Dir)
		}
		logger = l
	} else {
		logger = logging.NewLogger(stderr)
	}
	logger.SetMinLevel(cfg.LogLevel())
	return logger, nil
}

// demo is one replay of a script against a fresh loop, table and source.
type demo struct {
	cfg     *config.Config
	stdout  io.Writer
	logger  *logging.Logger
	screen  *render.Screen
	limiter *rate.Limiter

	loop   *mainloop.Loop
	source *tablesource.DataSource
	buf    *render.Buffer
	cancel context.CancelFunc
}

func (d *demo) start(ctx context.Context, script *Script, hub *telemetry.Hub) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.loop = mainloop.New(mainloop.Config{QueueSize: d.cfg.DataSource.LoopQueueSize, Logger: d.logger})
	go func() { _ = d.loop.Run(ctx) }()

	d.buf = render.NewBuffer(d.cfg.Table.Width, d.cfg.Table.Height)
	if d.screen != nil {
		// The terminal may still show the previous replay.
		d.buf.MarkAllDirty()
	}

	table := tableview.New(tableview.Config{Logger: d.logger, Hub: hub})
	source, err := tablesource.New(ctx, d.loop, table, tablesource.Config{
		Provider:            demoProvider,
		Context:             script.Context,
		Constraints:         d.cfg.Constraints(),
		Delegate:            d.delegate(),
		Workers:             d.cfg.DataSource.Workers,
		MaxSupersededBuilds: d.cfg.DataSource.MaxSupersededBuilds,
		Logger:              d.logger,
		Hub:                 hub,
	})
	if err != nil {
		cancel()
		return err
	}
	d.source = source
	_ = d.logger.Info(logging.CategoryDataSource, "demo_started", "replaying script", map[string]any{
		"steps": len(script.Steps),
	})
	return nil
}

func (d *demo) stop() {
	_ = d.source.Close()
	d.cancel()
	<-d.loop.Stopped()
}

func (d *demo) delegate() datasource.Delegate {
	return datasource.DelegateFuncs{
		FailBuild: func(_ context.Context, _ *changeset.Changeset, _ map[string]any, err error) {
			_ = d.logger.Warn(logging.CategoryDataSource, "demo_build_failed", err.Error(), nil)
		},
	}
}

func (d *demo) play(ctx context.Context, script *Script) error {
	for i, step := range script.Steps {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}
		err := d.apply(ctx, step)
		if step.ExpectError != "" {
			code := apperrors.ErrorCode(strings.ToUpper(step.ExpectError))
			if !apperrors.IsCode(err, code) {
				return apperrors.Newf(apperrors.ErrCodeInvalidInput, "%s: expected %s, got %v", step.title(i), code, err)
			}
			d.printf("-- %s: %s as expected\n", step.title(i), code)
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w", step.title(i), err)
		}
		if !step.Async {
			if err := d.frame(ctx, step.title(i)); err != nil {
				return err
			}
		}
	}

	// Drain anything still queued asynchronously.
	if err := d.source.ApplyChangeset(ctx, changeset.Empty(), datasource.ModeSynchronous, nil); err != nil {
		return err
	}
	return d.frame(ctx, "final")
}

func (d *demo) apply(ctx context.Context, step Step) error {
	if step.Reload != nil {
		d.source.UpdateContextAndEnqueueReload(*step.Reload)
		if !step.hasChanges() && step.Select == nil {
			if step.Async {
				return nil
			}
			return d.source.ApplyChangeset(ctx, changeset.Empty(), datasource.ModeSynchronous, nil)
		}
	}

	var userInfo map[string]any
	if step.Select != nil {
		userInfo = map[string]any{tablesource.SelectionKey: step.Select}
	}
	mode := datasource.ModeSynchronous
	if step.Async {
		mode = datasource.ModeAsynchronous
	}
	return d.source.ApplyChangeset(ctx, step.changeset(), mode, userInfo)
}

// printf writes to stdout unless frames go to the terminal.
func (d *demo) printf(format string, args ...any) {
	if d.screen == nil {
		fmt.Fprintf(d.stdout, format, args...)
	}
}

// frame renders the table on the loop and prints or presents it.
func (d *demo) frame(ctx context.Context, title string) error {
	var (
		selected []int
		rows     int
	)
	err := d.loop.Do(ctx, func(context.Context) error {
		table := d.source.Table()
		table.Render(d.buf)
		selected = table.SelectedRows()
		rows = table.NumberOfRows()
		return nil
	})
	if err != nil {
		return err
	}

	if d.screen != nil {
		d.screen.Present(d.buf)
		return nil
	}

	d.printf("-- %s (v%d, %d rows", title, d.source.Source().Version(), rows)
	if len(selected) > 0 {
		d.printf(", selected %v", selected)
	}
	d.printf(")\n")
	lines := d.buf.Lines()
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for _, line := range lines {
		d.printf("%s\n", line)
	}
	return nil
}

// writeMetrics prints the pipeline's Prometheus metrics in text format.
func writeMetrics(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), "componentkit_") {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
