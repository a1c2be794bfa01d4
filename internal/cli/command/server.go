package command

import (
	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/server/app"
)

// ServerCommand runs a clipshare server in the foreground.
func ServerCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run a clipshare server",
		Description: "Configuration is read from defaults, then the config file, then\n" +
			"CLIPSHARE_* environment variables (CLIPSHARE_SERVER__PORT=5000), then flags.",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to configuration file (.toml, .yaml)",
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.StringFlag{Name: "host", Usage: "Listen address"},
			&cli.IntFlag{Name: "port", Aliases: []string{"p"}, Usage: "Listen port"},
			&cli.IntFlag{Name: "max-entries", Usage: "Entries kept before the oldest are evicted"},
			&cli.StringFlag{Name: "db-path", Usage: "Entry database directory"},
			&cli.BoolFlag{Name: "no-tls", Usage: "Serve plain HTTP"},
			&cli.BoolFlag{Name: "no-discovery", Usage: "Do not announce on the LAN"},
		},
		Action: runServer,
	}
}

func runServer(c *cli.Context) error {
	return app.Run(c.Context, app.Options{
		ConfigFile: c.String("config"),
		Flags:      serverFlagOverrides(c),
	})
}

// serverFlagOverrides maps explicitly set flags onto configuration keys.
func serverFlagOverrides(c *cli.Context) map[string]any {
	flags := map[string]any{}
	if c.Bool("verbose") {
		flags["log.level"] = "debug"
	}
	if c.IsSet("host") {
		flags["server.host"] = c.String("host")
	}
	if c.IsSet("port") {
		flags["server.port"] = c.Int("port")
	}
	if c.IsSet("max-entries") {
		flags["server.max_entries"] = c.Int("max-entries")
	}
	if c.IsSet("db-path") {
		flags["server.db_path"] = c.String("db-path")
	}
	if c.Bool("no-tls") {
		flags["server.tls"] = false
	}
	if c.Bool("no-discovery") {
		flags["discovery.enabled"] = false
	}
	return flags
}
