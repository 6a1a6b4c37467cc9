// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// serveCommand starts the HTTP server.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Register models, mount route modules and start the HTTP server",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to listen on (overrides config and PORT)",
			},
			&cli.BoolFlag{
				Name:  "fail-fast",
				Usage: "Stop loading modules at the first failure",
			},
		},
		Action: r.Serve,
	}
}

// routesCommand prints the mount table.
func routesCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "routes",
		Usage: "Show where each route module would be mounted",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Output format: text, markdown, csv or json",
				Value:   "text",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write to a file instead of stdout",
			},
			&cli.BoolFlag{
				Name:  "force",
				Usage: "Overwrite the output file if it exists",
			},
		},
		Action: r.Routes,
	}
}

// modelsCommand inspects and applies model modules.
func modelsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "models",
		Usage: "Model module operations",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "Validate model modules and list their schemas",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Usage:   "Output format: text, markdown, csv or json",
						Value:   "text",
					},
				},
				Action: r.ModelsList,
			},
			{
				Name:  "sync",
				Usage: "Register model modules against the configured database",
				Flags: []cli.Flag{
					configFlag(),
				},
				Action: r.ModelsSync,
			},
		},
	}
}

// setupCommand handles setup operations for the database and configuration file.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Setup and configuration commands",
		Commands: []*cli.Command{
			{
				Name:   "database",
				Usage:  "Initialize database and run migrations",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupDatabase,
			},
			{
				Name:   "config",
				Usage:  "Write the example configuration file",
				Flags:  []cli.Flag{configFlag()},
				Action: r.SetupConfig,
			},
		},
	}
}
