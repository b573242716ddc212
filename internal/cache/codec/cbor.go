package codec

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/mohammed-shakir/offline-asset-cache/internal/cache"
)

// CBOR encodes records with core deterministic encoding so equal responses
// produce equal bytes. Construct with NewCBOR.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() (CBOR, error) {
	eo := cbor.CoreDetEncOptions()
	eo.Time = cbor.TimeRFC3339Nano
	em, err := eo.EncMode()
	if err != nil {
		return CBOR{}, fmt.Errorf("cbor enc mode: %w", err)
	}
	dm, err := (cbor.DecOptions{}).DecMode()
	if err != nil {
		return CBOR{}, fmt.Errorf("cbor dec mode: %w", err)
	}
	return CBOR{enc: em, dec: dm}, nil
}

func (CBOR) Name() string { return "cbor" }

func (c CBOR) Encode(resp *cache.Response) ([]byte, error) {
	b, err := c.enc.Marshal(toRecord(resp))
	if err != nil {
		return nil, fmt.Errorf("cbor encode: %w", err)
	}
	return b, nil
}

func (c CBOR) Decode(b []byte) (*cache.Response, error) {
	var r Record
	if err := c.dec.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("%w: cbor: %v", ErrCorrupt, err)
	}
	return fromRecord(r)
}
