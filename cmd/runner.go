package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/makin/internal/loader"
	"github.com/desertthunder/makin/internal/orm"
	"github.com/desertthunder/makin/internal/shared"
	"github.com/jmoiron/sqlx"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config // skips file and environment resolution when set
	ConfigPath string
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		serveCommand, routesCommand, modelsCommand, setupCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// resolve returns the configuration for cmd and applies its log level.
func (r *Runner) resolve(cmd *cli.Command) (*shared.Config, error) {
	if r.config == nil {
		path := r.configPath
		if cmd != nil && cmd.String("config") != "" {
			path = cmd.String("config")
		}

		config, err := shared.Resolve(path)
		if err != nil {
			return nil, err
		}
		r.config = config
	}

	shared.SetLogLevelString(r.logger, r.config.Log.Level)
	return r.config, nil
}

// openConn opens the configured database, runs the migrations and wraps it for model registration.
func (r *Runner) openConn(config *shared.Config) (*orm.Conn, error) {
	r.logger.Debug("opening database", "driver", config.Database.Driver)

	db, err := shared.NewDatabase(config.Database.Driver, config.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}
	if config.Database.DSN() != ":memory:" {
		shared.ConfigureDatabase(db, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
	}

	return migrate(db)
}

func migrate(db *sqlx.DB) (*orm.Conn, error) {
	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return orm.New(db), nil
}

func dirExists(dir string) bool {
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

func (r *Runner) logReport(kind, dir string, report *loader.Report) {
	if report == nil {
		return
	}
	for _, f := range report.Failed {
		r.logger.Warn("module failed to load", "kind", kind, "file", f.Descriptor.Filename, "error", f.Err)
	}
	for _, d := range report.Skipped {
		r.logger.Warn("module skipped", "kind", kind, "file", d.Filename)
	}
	r.logger.Info("modules loaded", "kind", kind, "dir", dir, "loaded", len(report.Loaded), "failed", len(report.Failed))
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writeBytes(data []byte) error {
	if _, err := r.output.Write(data); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
