package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/cli/output"
	"github.com/distsystem/clipshare/internal/server/discovery"
)

var errNoServers = errors.New("no clipshare servers found")

// DiscoverCommand listens for server announcements.
func DiscoverCommand() *cli.Command {
	return &cli.Command{
		Name:  "discover",
		Usage: "List clipshare servers announcing on the local network",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   6 * time.Second,
				Usage:   "How long to listen",
			},
			&cli.IntFlag{
				Name:  "port",
				Value: discovery.DefaultPort,
				Usage: "Discovery UDP port",
			},
			&cli.BoolFlag{
				Name:  "first",
				Usage: "Stop at the first server found",
			},
		},
		Action: discoverServers,
	}
}

func discoverServers(c *cli.Context) error {
	ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
	defer cancel()

	spinner := output.NewSpinner(c.App.ErrWriter, "Listening for clipshare servers...")
	spinner.Start()

	browser := discovery.NewBrowser(c.Int("port"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if c.Bool("first") {
		browser.OnFound(func(discovery.Server) { cancel() })
	}

	if err := browser.Run(ctx); err != nil {
		spinner.Fail("discovery failed")
		return err
	}

	servers := browser.Servers()
	if len(servers) == 0 {
		spinner.Fail("no servers found")
		return errNoServers
	}
	spinner.Success(fmt.Sprintf("found %d server(s)", len(servers)))
	return render(c, servers)
}
