package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/gigmarket-backend/pkg/enums"
)

// ErrNoDecoder is returned by Decode for an event type/version pair nobody
// registered.
var ErrNoDecoder = errors.New("no decoder registered")

// Decoder turns an envelope's data field into a typed payload.
type Decoder func(data json.RawMessage) (any, error)

// JSONDecoder unmarshals into a fresh value from factory on every call.
func JSONDecoder(factory func() any) Decoder {
	return func(data json.RawMessage) (any, error) {
		out := factory()
		if err := json.Unmarshal(data, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}

type schema struct {
	eventType enums.OutboxEventType
	version   int
}

// Decoders resolves consumer-side payload decoders by event type and
// envelope version. Safe for concurrent use.
type Decoders struct {
	mu    sync.RWMutex
	table map[schema]Decoder
}

func NewDecoders() *Decoders {
	return &Decoders{table: make(map[schema]Decoder)}
}

func (d *Decoders) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	d.mu.Lock()
	d.table[schema{eventType, version}] = decode
	d.mu.Unlock()
}

func (d *Decoders) Decode(eventType enums.OutboxEventType, version int, data json.RawMessage) (any, error) {
	d.mu.RLock()
	decode, ok := d.table[schema{eventType, version}]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	return decode(data)
}
