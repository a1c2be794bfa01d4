package command

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/cli/connection"
	"github.com/distsystem/clipshare/internal/cli/output"
	"github.com/distsystem/clipshare/internal/infra/buildinfo"
	"github.com/distsystem/clipshare/internal/infra/tlscert"
)

// DefaultServer is used when neither --server nor CLIPSHARE_SERVER is set.
const DefaultServer = "https://localhost:4243"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "clipshare",
		Usage:                "Share clipboard entries across machines on the local network",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			ServerCommand(),
			DiscoverCommand(),
			EntriesCommand(),
			PushCommand(),
			StatusCommand(),
			VersionCommand(),
		},
		Before: func(c *cli.Context) error {
			_, err := output.ParseFormat(c.String("output"))
			return err
		},
	}
}

// globalFlags returns the global CLI flags.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "server",
			Aliases: []string{"s"},
			Usage:   "clipshare server URL (e.g., https://192.168.1.20:4243)",
			EnvVars: []string{"CLIPSHARE_SERVER"},
			Value:   DefaultServer,
		},
		&cli.StringFlag{
			Name:    "ca-cert",
			Usage:   "PEM file trusted for the server certificate",
			EnvVars: []string{"CLIPSHARE_CA_CERT"},
		},
		&cli.BoolFlag{
			Name:    "insecure",
			Aliases: []string{"k"},
			Usage:   "Skip server certificate verification",
			EnvVars: []string{"CLIPSHARE_INSECURE"},
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
	}
}

// GlobalFlags defines flags available to all commands.
type GlobalFlags struct {
	Server   string
	CACert   string
	Insecure bool

	Output string
	Wide   bool
}

// ParseGlobalFlags extracts global flags from context.
func ParseGlobalFlags(c *cli.Context) *GlobalFlags {
	return &GlobalFlags{
		Server:   c.String("server"),
		CACert:   c.String("ca-cert"),
		Insecure: c.Bool("insecure"),
		Output:   c.String("output"),
		Wide:     c.Bool("wide"),
	}
}

// NewClient builds the HTTP client described by the global flags.
func NewClient(c *cli.Context) (*connection.HTTPClient, error) {
	flags := ParseGlobalFlags(c)

	tlsConfig, err := tlscert.ClientConfig(flags.CACert, flags.Insecure)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	return connection.NewHTTPClient(flags.Server, tlsConfig), nil
}

// render writes data to the app writer in the selected format.
func render(c *cli.Context, data any) error {
	flags := ParseGlobalFlags(c)
	format, err := output.ParseFormat(flags.Output)
	if err != nil {
		return err
	}
	return output.NewFormatter(format, flags.Wide).Format(c.App.Writer, data)
}

// PrintError prints an error message to stderr.
func PrintError(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
}
