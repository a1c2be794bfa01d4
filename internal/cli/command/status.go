package command

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/cli/connection"
	"github.com/distsystem/clipshare/internal/infra/buildinfo"
)

// StatusCommand reports server health.
func StatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Show server health",
		Action: status,
	}
}

type healthResponse struct {
	Server  string `json:"server"`
	Status  string `json:"status"`
	Entries int    `json:"entries"`
	Peers   int    `json:"peers"`
	Version string `json:"version"`
}

func status(c *cli.Context) error {
	client, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := client.Get(c.Context, "/health")
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	health := healthResponse{Server: client.BaseURL()}
	if err := connection.ParseResponse(resp, &health); err != nil {
		return err
	}
	return render(c, health)
}

// VersionCommand prints build information.
func VersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print build information",
		Action: func(c *cli.Context) error {
			return render(c, buildinfo.Get())
		},
	}
}
