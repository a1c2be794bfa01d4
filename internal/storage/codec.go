package storage

import (
	"reflect"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/distsystem/clipshare/internal/core/domain"
)

// encMode uses Core Deterministic Encoding (RFC 8949 §4.2), so equal
// contents always encode to equal bytes and hash to equal keys.
var encMode cbor.EncMode

var decMode cbor.DecMode

// contentHashKey domain-separates content hashes from any other BLAKE3
// use. BLAKE3 keyed mode requires exactly 32 bytes.
const contentHashKey = "clipshare.entry.contents.hash.v1"

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("storage: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic("storage: CBOR decoder initialization failed: " + err.Error())
	}
}

// contentRecord is the canonical form of one MIME representation.
type contentRecord struct {
	MimeType string `cbor:"mime_type"`
	Data     string `cbor:"data"`
}

// record is the persisted form of an entry.
type record struct {
	ID          string          `cbor:"1,keyasint"`
	SourceHost  string          `cbor:"2,keyasint"`
	TimestampMs int64           `cbor:"3,keyasint"`
	Seq         uint64          `cbor:"4,keyasint"`
	Contents    []contentRecord `cbor:"5,keyasint"`
	TextPreview string          `cbor:"6,keyasint"`
	Hash        []byte          `cbor:"7,keyasint"`
}

func toContentRecords(in []domain.MimeContent) []contentRecord {
	out := make([]contentRecord, len(in))
	for i, c := range in {
		out[i] = contentRecord{MimeType: c.MimeType, Data: c.Data}
	}
	return out
}

func (r *record) entry() *domain.Entry {
	contents := make([]domain.MimeContent, len(r.Contents))
	for i, c := range r.Contents {
		contents[i] = domain.MimeContent{MimeType: c.MimeType, Data: c.Data}
	}
	return &domain.Entry{
		ID:          r.ID,
		SourceHost:  r.SourceHost,
		TimestampMs: r.TimestampMs,
		Contents:    contents,
		TextPreview: r.TextPreview,
	}
}

func encodeRecord(r *record) ([]byte, error) {
	return encMode.Marshal(r)
}

func decodeRecord(b []byte) (*record, error) {
	var r record
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ContentHash returns the content address of an ordered content list:
// a keyed BLAKE3 digest of its deterministic CBOR encoding. Order and
// every byte of every mime type and payload participate.
func ContentHash(contents []domain.MimeContent) ([]byte, error) {
	canonical, err := encMode.Marshal(toContentRecords(contents))
	if err != nil {
		return nil, err
	}
	hasher, err := blake3.NewKeyed([]byte(contentHashKey))
	if err != nil {
		panic("storage: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(canonical)
	return hasher.Sum(nil), nil
}
