package command

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/distsystem/clipshare/internal/cli/connection"
	"github.com/distsystem/clipshare/internal/cli/output"
	"github.com/distsystem/clipshare/internal/core/domain"
)

// EntriesCommand returns the entries subcommand group.
func EntriesCommand() *cli.Command {
	return &cli.Command{
		Name:    "entries",
		Aliases: []string{"entry", "e"},
		Usage:   "Manage stored clipboard entries",
		Subcommands: []*cli.Command{
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List entries, newest first",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Value:   20,
						Usage:   "Maximum entries to show (max 500)",
					},
					&cli.IntFlag{
						Name:  "offset",
						Usage: "Entries to skip",
					},
				},
				Action: entriesList,
			},
			{
				Name:      "get",
				Usage:     "Show one entry",
				ArgsUsage: "ENTRY_ID",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "raw",
						Usage: "Print only the content data, for piping",
					},
					&cli.StringFlag{
						Name:  "mime",
						Value: domain.MimeTextPlain,
						Usage: "Content representation printed with --raw",
					},
				},
				Action: entriesGet,
			},
			{
				Name:      "delete",
				Aliases:   []string{"rm"},
				Usage:     "Delete an entry",
				ArgsUsage: "ENTRY_ID",
				Action:    entriesDelete,
			},
		},
	}
}

// entryList renders entries as one row each.
type entryList []*domain.Entry

func (l entryList) Table(wide bool) *output.Table {
	t := &output.Table{Headers: []string{"ID", "SOURCE_HOST", "TIME", "PREVIEW"}}
	if wide {
		t.Headers = append(t.Headers, "TYPES")
	}
	for _, e := range l {
		row := []string{e.ID, e.SourceHost, formatMillis(e.TimestampMs), previewCell(e.TextPreview, wide)}
		if wide {
			row = append(row, strings.Join(mimeTypes(e), ","))
		}
		t.AddRow(row...)
	}
	return t
}

// entryDetail renders one entry as field/value rows.
type entryDetail domain.Entry

func (d entryDetail) Table(bool) *output.Table {
	t := &output.Table{Headers: []string{"FIELD", "VALUE"}}
	t.AddRow("id", d.ID)
	t.AddRow("source_host", d.SourceHost)
	t.AddRow("time", formatMillis(d.TimestampMs))
	for _, c := range d.Contents {
		size := len(c.Data)
		if raw, err := domain.DecodeData(c.MimeType, c.Data); err == nil {
			size = len(raw)
		}
		t.AddRow("content", fmt.Sprintf("%s (%d bytes)", c.MimeType, size))
	}
	t.AddRow("preview", d.TextPreview)
	return t
}

func entriesList(c *cli.Context) error {
	client, err := NewClient(c)
	if err != nil {
		return err
	}

	q := url.Values{}
	q.Set("limit", strconv.Itoa(c.Int("limit")))
	q.Set("offset", strconv.Itoa(c.Int("offset")))

	resp, err := client.Get(c.Context, "/api/entries?"+q.Encode())
	if err != nil {
		return fmt.Errorf("list entries: %w", err)
	}
	var entries []*domain.Entry
	if err := connection.ParseResponse(resp, &entries); err != nil {
		return err
	}
	return render(c, entryList(entries))
}

func entriesGet(c *cli.Context) error {
	id, err := requireID(c)
	if err != nil {
		return err
	}
	client, err := NewClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Get(c.Context, "/api/entries/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("get entry: %w", err)
	}
	var entry domain.Entry
	if err := connection.ParseResponse(resp, &entry); err != nil {
		return err
	}

	if c.Bool("raw") {
		mime := c.String("mime")
		for _, content := range entry.Contents {
			if content.MimeType == mime {
				raw, err := domain.DecodeData(content.MimeType, content.Data)
				if err != nil {
					return err
				}
				_, err = c.App.Writer.Write(raw)
				return err
			}
		}
		return fmt.Errorf("entry %s has no %s content", id, mime)
	}
	return render(c, entryDetail(entry))
}

func entriesDelete(c *cli.Context) error {
	id, err := requireID(c)
	if err != nil {
		return err
	}
	client, err := NewClient(c)
	if err != nil {
		return err
	}

	resp, err := client.Delete(c.Context, "/api/entries/"+url.PathEscape(id))
	if err != nil {
		return fmt.Errorf("delete entry: %w", err)
	}
	if err := connection.ParseResponse(resp, nil); err != nil {
		return err
	}
	fmt.Fprintf(c.App.Writer, "entry %s deleted\n", id)
	return nil
}

func requireID(c *cli.Context) (string, error) {
	if c.NArg() != 1 {
		return "", errors.New("expected exactly one ENTRY_ID")
	}
	return c.Args().First(), nil
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).Local().Format("2006-01-02 15:04:05")
}

const previewWidth = 48

func previewCell(s string, wide bool) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return "-"
	}
	if r := []rune(s); !wide && len(r) > previewWidth {
		return string(r[:previewWidth-1]) + "…"
	}
	return s
}

func mimeTypes(e *domain.Entry) []string {
	out := make([]string, 0, len(e.Contents))
	for _, c := range e.Contents {
		out = append(out, c.MimeType)
	}
	return out
}
