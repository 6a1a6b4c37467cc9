package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/desertthunder/makin/internal/formatter"
	"github.com/desertthunder/makin/internal/metrics"
	"github.com/desertthunder/makin/internal/models"
	"github.com/desertthunder/makin/internal/routes"
	"github.com/desertthunder/makin/internal/shared"
	"github.com/urfave/cli/v3"
)

const formatJSON = "json"

// Routes prints where each route module in the routes directory would be mounted.
func (r *Runner) Routes(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolve(cmd)
	if err != nil {
		return err
	}

	dir := config.Paths.Routes
	if !dirExists(dir) {
		return fmt.Errorf("%w: routes directory %s not found", shared.ErrMissingConfig, dir)
	}

	table, report, err := routes.Table(ctx, os.DirFS(dir), ".", config.Server.APIPrefix)
	if report == nil {
		return err
	}
	r.logReport(metrics.KindRoutes, dir, report)

	return render(r, table, cmd.String("format"), cmd.String("output"), cmd.Bool("force"), formatter.Routes)
}

// ModelsList decodes and registers the model modules against a scratch in-memory database and
// prints the resulting schemas. Nothing touches the configured database.
func (r *Runner) ModelsList(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolve(cmd)
	if err != nil {
		return err
	}

	dir := config.Paths.Models
	if !dirExists(dir) {
		return fmt.Errorf("%w: models directory %s not found", shared.ErrMissingConfig, dir)
	}

	db, err := shared.NewDatabase(shared.DriverSQLite, ":memory:")
	if err != nil {
		return fmt.Errorf("failed to create scratch database: %w", err)
	}
	conn, err := migrate(db)
	if err != nil {
		return err
	}
	defer conn.Close()

	report, err := models.Apply(ctx, conn, os.DirFS(dir), ".")
	if report == nil {
		return err
	}
	r.logReport(metrics.KindModels, dir, report)

	if err := render(r, conn.Models(), cmd.String("format"), "", false, formatter.Models); err != nil {
		return err
	}
	if !report.OK() {
		return fmt.Errorf("%d model modules failed to load: %w", len(report.Failed), report.Err())
	}
	return nil
}

// ModelsSync registers the model modules against the configured database, creating their tables.
func (r *Runner) ModelsSync(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolve(cmd)
	if err != nil {
		return err
	}

	dir := config.Paths.Models
	if !dirExists(dir) {
		return fmt.Errorf("%w: models directory %s not found", shared.ErrMissingConfig, dir)
	}

	conn, err := r.openConn(config)
	if err != nil {
		return err
	}
	defer conn.Close()

	report, err := models.Apply(ctx, conn, os.DirFS(dir), ".")
	if report == nil {
		return err
	}
	r.logReport(metrics.KindModels, dir, report)

	styles := formatter.Styles()
	for _, d := range report.Loaded {
		r.writePlain("%s %s\n", styles.OK("✓"), d.Filename)
	}
	for _, f := range report.Failed {
		r.writePlain("%s %s: %v\n", styles.Err("✗"), f.Descriptor.Filename, f.Err)
	}

	if !report.OK() {
		return fmt.Errorf("%d model modules failed to load: %w", len(report.Failed), report.Err())
	}
	return nil
}

// render writes items in format to path, or to the runner's output when path is empty.
func render[T any](r *Runner, items T, format, path string, force bool, fn func(T, string) ([]byte, error)) error {
	if format == formatJSON && path == "" {
		return r.writeJSON(items, true)
	}

	var data []byte
	var err error
	if format == formatJSON {
		data, err = json.MarshalIndent(items, "", "  ")
		data = append(data, '\n')
	} else {
		data, err = fn(items, format)
	}
	if err != nil {
		return err
	}

	if path == "" {
		return r.writeBytes(data)
	}
	if err := formatter.WriteExport(path, data, force); err != nil {
		return err
	}
	r.logger.Info("export written", "path", path)
	return nil
}
