// Package codec serializes cached responses for the persistent store drivers.
package codec

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
)

// ErrCorrupt marks an entry whose body does not match its recorded checksum.
var ErrCorrupt = errors.New("codec: corrupt entry")

// Record is the stored form of a response.
type Record struct {
	Status   int                 `msgpack:"s" cbor:"1,keyasint"`
	Header   map[string][]string `msgpack:"h" cbor:"2,keyasint"`
	Body     []byte              `msgpack:"b" cbor:"3,keyasint"`
	Checksum uint64              `msgpack:"c" cbor:"4,keyasint"`
	StoredAt time.Time           `msgpack:"t" cbor:"5,keyasint"`
}

type Codec interface {
	Name() string
	Encode(resp *cache.Response) ([]byte, error)
	Decode(b []byte) (*cache.Response, error)
}

// ByName returns the codec for "msgpack" (default) or "cbor".
func ByName(name string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "msgpack":
		return Msgpack{}, nil
	case "cbor":
		return NewCBOR()
	default:
		return nil, fmt.Errorf("unknown entry codec %q", name)
	}
}

func toRecord(resp *cache.Response) Record {
	return Record{
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		Checksum: xxhash.Sum64(resp.Body),
		StoredAt: time.Now().UTC(),
	}
}

func fromRecord(r Record) (*cache.Response, error) {
	if xxhash.Sum64(r.Body) != r.Checksum {
		return nil, ErrCorrupt
	}
	if r.Body == nil {
		r.Body = []byte{}
	}
	return &cache.Response{
		Status: r.Status,
		Header: http.Header(r.Header),
		Body:   r.Body,
	}, nil
}
