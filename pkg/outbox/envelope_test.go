package outbox

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEnvelope(t *testing.T) {
	id := uuid.New()
	env, err := DecodeEnvelope([]byte(`{"eventId":"` + id.String() + `","occurredAt":"2026-04-01T10:00:00Z","data":{"gig_id":"g"}}`))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, env.Version, "legacy rows read as v1")
	got, err := env.ID()
	require.NoError(t, err)
	assert.Equal(t, id, got)
	assert.JSONEq(t, `{"gig_id":"g"}`, string(env.Data))

	env, err = DecodeEnvelope([]byte(`{"version":2,"eventId":"x","data":[]}`))
	require.NoError(t, err)
	assert.Equal(t, 2, env.Version)
	_, err = env.ID()
	assert.ErrorIs(t, err, ErrMalformedEnvelope)
}

func TestDecodeEnvelopeRejects(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":  `{`,
		"no data":   `{"eventId":"e"}`,
		"null data": `{"eventId":"e","data":null}`,
	} {
		_, err := DecodeEnvelope([]byte(raw))
		assert.ErrorIs(t, err, ErrMalformedEnvelope, name)
	}
}
