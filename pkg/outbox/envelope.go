package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CurrentVersion is the envelope schema producers write today. Rows written
// before versioning carry 0 and are read as version 1.
const CurrentVersion = 1

var ErrMalformedEnvelope = errors.New("malformed event envelope")

type ActorRef struct {
	UserID uuid.UUID `json:"userId"`
	Role   string    `json:"role,omitempty"`
}

// PayloadEnvelope is the JSON stored in outbox_events.payload and sent
// verbatim as the Pub/Sub message body.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"eventId"`
	OccurredAt time.Time       `json:"occurredAt"`
	Actor      *ActorRef       `json:"actor,omitempty"`
	Data       json.RawMessage `json:"data"`
}

// ID parses EventID.
func (e PayloadEnvelope) ID() (uuid.UUID, error) {
	id, err := uuid.Parse(e.EventID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: event id %q", ErrMalformedEnvelope, e.EventID)
	}
	return id, nil
}

// DecodeEnvelope parses raw and fills in the legacy version. It fails with
// ErrMalformedEnvelope on bad JSON or a missing data member.
func DecodeEnvelope(raw []byte) (PayloadEnvelope, error) {
	var env PayloadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return PayloadEnvelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if data := bytes.TrimSpace(env.Data); len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return PayloadEnvelope{}, fmt.Errorf("%w: no data", ErrMalformedEnvelope)
	}
	if env.Version == 0 {
		env.Version = CurrentVersion
	}
	return env, nil
}
