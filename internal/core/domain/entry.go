package domain

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/oklog/ulid/v2"
)

// Entry constraints.
const (
	MaxContents       = 32
	MaxMimeTypeLength = 255
	MaxHostLength     = 255
	PreviewLength     = 200

	// UnknownHost is recorded when a client does not name itself.
	UnknownHost = "unknown"

	// MimeTextPlain is the representation used to build previews.
	MimeTextPlain = "text/plain"
)

// MimeContent is one representation of a clipboard payload.
// Binary data is carried as base64 text produced by the client.
type MimeContent struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

// Entry is a stored clipboard payload.
//
// ID, Contents and TextPreview are fixed at first insert. A repeat insert
// of identical contents only moves TimestampMs and SourceHost.
type Entry struct {
	ID          string        `json:"id"`
	SourceHost  string        `json:"source_host"`
	TimestampMs int64         `json:"timestamp_ms"`
	Contents    []MimeContent `json:"contents"`
	TextPreview string        `json:"text_preview"`
}

// Clone returns a deep copy of the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}
	c := *e
	c.Contents = CloneContents(e.Contents)
	return &c
}

// Draft is an incoming payload that has not been stored yet.
type Draft struct {
	SourceHost  string
	TimestampMs int64
	Contents    []MimeContent
}

// Normalize fills defaults the store relies on.
func (d *Draft) Normalize(now time.Time) {
	d.SourceHost = strings.TrimSpace(d.SourceHost)
	if d.SourceHost == "" {
		d.SourceHost = UnknownHost
	}
	if d.TimestampMs == 0 {
		d.TimestampMs = now.UnixMilli()
	}
}

// Validate checks the draft against entry constraints.
// Returns ErrEntryValidation listing every violation.
func (d *Draft) Validate() error {
	var violations []string

	if len(d.Contents) == 0 {
		violations = append(violations, "contents must not be empty")
	}
	if len(d.Contents) > MaxContents {
		violations = append(violations, fmt.Sprintf("contents exceeds %d items", MaxContents))
	}
	if len(d.SourceHost) > MaxHostLength {
		violations = append(violations, fmt.Sprintf("source_host exceeds %d characters", MaxHostLength))
	}

	for i, c := range d.Contents {
		switch {
		case c.MimeType == "":
			violations = append(violations, fmt.Sprintf("contents[%d].mime_type is required", i))
		case len(c.MimeType) > MaxMimeTypeLength:
			violations = append(violations, fmt.Sprintf("contents[%d].mime_type exceeds %d characters", i, MaxMimeTypeLength))
		case !validMimeType(c.MimeType):
			violations = append(violations, fmt.Sprintf("contents[%d].mime_type %q is not type/subtype", i, c.MimeType))
		}
	}

	violations = append(violations, d.encodingViolations()...)

	if len(violations) > 0 {
		return ErrEntryValidation.WithDetails(strings.Join(violations, "; "))
	}
	return nil
}

// ValidateEncoding reports ErrEntryValidation when any text field of d is
// not valid UTF-8. Stored records carry these fields as CBOR text strings,
// which cannot hold anything else.
func (d *Draft) ValidateEncoding() error {
	if v := d.encodingViolations(); len(v) > 0 {
		return ErrEntryValidation.WithDetails(strings.Join(v, "; "))
	}
	return nil
}

func (d *Draft) encodingViolations() []string {
	var violations []string
	if !utf8.ValidString(d.SourceHost) {
		violations = append(violations, "source_host is not valid UTF-8")
	}
	for i, c := range d.Contents {
		if !utf8.ValidString(c.MimeType) {
			violations = append(violations, fmt.Sprintf("contents[%d].mime_type is not valid UTF-8", i))
		}
		if !utf8.ValidString(c.Data) {
			violations = append(violations, fmt.Sprintf("contents[%d].data is not valid UTF-8; encode binary payloads as base64", i))
		}
	}
	return violations
}

func validMimeType(s string) bool {
	major, minor, ok := strings.Cut(s, "/")
	if !ok || major == "" || minor == "" {
		return false
	}
	return !strings.ContainsAny(s, " \t\r\n")
}

// BuildPreview returns up to PreviewLength characters of the first
// text/plain representation, or "" when there is none.
func BuildPreview(contents []MimeContent) string {
	for _, c := range contents {
		if !isTextPlain(c.MimeType) {
			continue
		}
		if utf8.RuneCountInString(c.Data) <= PreviewLength {
			return c.Data
		}
		n := 0
		for i := range c.Data {
			if n == PreviewLength {
				return c.Data[:i]
			}
			n++
		}
		return c.Data
	}
	return ""
}

// isTextPlain accepts parameters such as "text/plain;charset=utf-8".
func isTextPlain(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	return strings.EqualFold(strings.TrimSpace(base), MimeTextPlain)
}

// IsTextMime reports whether data of this type is carried verbatim.
// Every other type is base64 in MimeContent.Data.
func IsTextMime(mime string) bool {
	base, _, _ := strings.Cut(mime, ";")
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(base)), "text/")
}

// EncodeData renders raw clipboard bytes as MimeContent.Data.
func EncodeData(mime string, raw []byte) string {
	if IsTextMime(mime) {
		return string(raw)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

// DecodeData returns the raw bytes behind MimeContent.Data.
func DecodeData(mime, data string) ([]byte, error) {
	if IsTextMime(mime) {
		return []byte(data), nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode %s data: %w", mime, err)
	}
	return raw, nil
}

// CloneContents copies a content slice so callers never share backing arrays.
func CloneContents(in []MimeContent) []MimeContent {
	if in == nil {
		return nil
	}
	out := make([]MimeContent, len(in))
	copy(out, in)
	return out
}

// GenerateEntryID returns a lowercase ULID.
func GenerateEntryID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", ErrInternalServer.WithCause(err)
	}
	return strings.ToLower(id.String()), nil
}
