package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"examplan/internal/config"
	appLog "examplan/internal/log"
)

var version = "0.1.0-dev"

// CLI is the root command line.
type CLI struct {
	Config  string           `short:"c" help:"Configuration file path" default:"./examplan.yaml" env:"EXAMPLAN_CONFIG"`
	EnvFile []string         `name:"env-file" help:"dotenv files loaded before the config (default .env, .env.local)"`
	Verbose bool             `short:"v" help:"Enable debug logging"`
	Version kong.VersionFlag `name:"version" help:"Show version and exit"`

	Serve     ServeCmd     `cmd:"" help:"Serve the HTTP API"`
	List      ListCmd      `cmd:"" help:"List the current schedule"`
	Add       AddCmd       `cmd:"" help:"Add an exam to the current schedule"`
	Remove    RemoveCmd    `cmd:"" help:"Remove an exam from the current schedule"`
	Clear     ClearCmd     `cmd:"" help:"Empty the current schedule"`
	Save      SaveCmd      `cmd:"" help:"Save the current schedule to history"`
	History   HistoryCmd   `cmd:"" help:"List saved schedules"`
	Load      LoadCmd      `cmd:"" help:"Replace the current schedule with a saved one"`
	Delete    DeleteCmd    `cmd:"" help:"Delete a saved schedule"`
	Export    ExportCmd    `cmd:"" help:"Write a schedule as an iCalendar file"`
	Import    ImportCmd    `cmd:"" help:"Add the exams of an iCalendar file or URL"`
	Search    SearchCmd    `cmd:"" help:"Search the exam catalog"`
	Semesters SemestersCmd `cmd:"" help:"List selectable semesters"`
}

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		appLog.Error("examplan failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("examplan"),
		kong.Description("Plan final exams: pick exams, keep named snapshots, export calendars."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
		kong.Vars{"version": version},
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	if err := config.LoadEnvFiles(cli.EnvFile...); err != nil {
		return fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cli.Config, err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level := appLog.ParseLevel(cfg.Log.Level)
	if cli.Verbose {
		level = appLog.LevelDebug
	}
	appLog.SetOutput(stderr, cfg.Log.JSON)
	appLog.SetLevel(level)

	appLog.Debug("effective config",
		"config_path", cli.Config,
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"storage", cfg.Storage.Driver,
		"catalog", cfg.Catalog.BaseURL,
	)

	rt := newRuntime(ctx, cfg, stdout)
	defer rt.Close()
	return kctx.Run(rt)
}
