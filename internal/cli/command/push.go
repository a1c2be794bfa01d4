package command

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/cli/connection"
	"github.com/distsystem/clipshare/internal/core/domain"
)

// PushCommand stores a new entry.
func PushCommand() *cli.Command {
	return &cli.Command{
		Name:      "push",
		Usage:     "Share text from arguments, or any content from stdin",
		ArgsUsage: "[TEXT...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "mime",
				Value: domain.MimeTextPlain,
				Usage: "MIME type of the content; non-text types are sent base64-encoded",
			},
			&cli.StringFlag{
				Name:  "source-host",
				Usage: "Host name recorded with the entry (default: this machine)",
			},
		},
		Action: push,
	}
}

type pushResponse struct {
	domain.Entry
	Duplicate bool `json:"duplicate"`
}

func push(c *cli.Context) error {
	raw, err := pushData(c)
	if err != nil {
		return err
	}
	if len(raw) == 0 {
		return errors.New("nothing to push")
	}
	mime := c.String("mime")
	if domain.IsTextMime(mime) && !utf8.Valid(raw) {
		return errors.New("input is not valid UTF-8; pass a non-text --mime to send it as binary")
	}

	host := c.String("source-host")
	if host == "" {
		host, _ = os.Hostname()
	}

	client, err := NewClient(c)
	if err != nil {
		return err
	}
	resp, err := client.Post(c.Context, "/api/entries", map[string]any{
		"source_host": host,
		"contents":    []domain.MimeContent{{MimeType: mime, Data: domain.EncodeData(mime, raw)}},
	})
	if err != nil {
		return fmt.Errorf("push entry: %w", err)
	}

	var result pushResponse
	if err := connection.ParseResponse(resp, &result); err != nil {
		return err
	}
	if result.Duplicate {
		fmt.Fprintln(c.App.Writer, "already shared; moved to the top of the history")
		return nil
	}
	return render(c, entryDetail(result.Entry))
}

// pushData joins the arguments, or reads stdin when there are none or the
// only argument is "-".
func pushData(c *cli.Context) ([]byte, error) {
	args := c.Args().Slice()
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return []byte(strings.Join(args, " ")), nil
	}

	reader := c.App.Reader
	if reader == nil {
		reader = os.Stdin
	}
	raw, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return raw, nil
}
