package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/makin/internal/formatter"
	"github.com/desertthunder/makin/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupDatabase initializes the database and runs migrations.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	config, err := r.resolve(cmd)
	if err != nil {
		return err
	}

	r.logger.Info("initializing database", "driver", config.Database.Driver)

	conn, err := r.openConn(config)
	if err != nil {
		return err
	}
	defer conn.Close()

	r.logger.Info("setup complete", "driver", config.Database.Driver, "path", config.Database.Path)
	return nil
}

// SetupConfig writes the example configuration to the --config path.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	path := cmd.String("config")
	if path == "" {
		return fmt.Errorf("%w: --config", shared.ErrMissingArgument)
	}

	if err := shared.CreateConfigFile(path); err != nil {
		return err
	}

	styles := formatter.Styles()
	r.writePlain("%s config file created at %s\n", styles.OK("✓"), path)
	r.writePlain("%s\n", styles.Help("Set credentials.spotify or SPOTIFY_CLIENT_ID / SPOTIFY_CLIENT_SECRET before running serve"))
	return nil
}
