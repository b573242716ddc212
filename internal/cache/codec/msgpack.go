package codec

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
)

// Msgpack is the default codec. The zero value is ready to use.
type Msgpack struct{}

func (Msgpack) Name() string { return "msgpack" }

func (Msgpack) Encode(resp *cache.Response) ([]byte, error) {
	b, err := msgpack.Marshal(toRecord(resp))
	if err != nil {
		return nil, fmt.Errorf("msgpack encode: %w", err)
	}
	return b, nil
}

func (Msgpack) Decode(b []byte) (*cache.Response, error) {
	var r Record
	if err := msgpack.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: msgpack: %v", ErrCorrupt, err)
	}
	return fromRecord(r)
}
