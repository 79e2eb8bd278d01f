package domain_test

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/pkg/domain"
	dErrors "veritrail/pkg/domain-errors"
)

func TestParseTenantID(t *testing.T) {
	t.Run("accepts a valid UUID", func(t *testing.T) {
		raw := uuid.NewString()
		id, err := domain.ParseTenantID(raw)
		require.NoError(t, err)
		assert.Equal(t, raw, id.String())
		assert.False(t, id.IsNil())
	})

	t.Run("rejects empty input", func(t *testing.T) {
		_, err := domain.ParseTenantID("")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		_, err := domain.ParseTenantID("not-a-uuid")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects the nil UUID", func(t *testing.T) {
		_, err := domain.ParseTenantID("00000000-0000-0000-0000-000000000000")
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}

func TestParseOtherIDs(t *testing.T) {
	raw := uuid.NewString()

	userID, err := domain.ParseUserID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, userID.String())

	sessionID, err := domain.ParseSessionID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, sessionID.String())

	observationID, err := domain.ParseObservationID(raw)
	require.NoError(t, err)
	assert.Equal(t, raw, observationID.String())

	_, err = domain.ParseUserID("bad")
	assert.Error(t, err)
	_, err = domain.ParseSessionID("")
	assert.Error(t, err)
	_, err = domain.ParseObservationID("00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
}

func TestIDJSONRoundTrip(t *testing.T) {
	id := domain.NewObservationID()

	raw, err := json.Marshal(id)
	require.NoError(t, err)
	assert.JSONEq(t, `"`+id.String()+`"`, string(raw))

	var decoded domain.ObservationID
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, id, decoded)

	var bad domain.ObservationID
	assert.Error(t, json.Unmarshal([]byte(`"nope"`), &bad))

	// The nil UUID round-trips: zero IDs appear in system-emitted payloads
	// and only the Parse functions enforce non-nil.
	var zero domain.TenantID
	require.NoError(t, json.Unmarshal([]byte(`"00000000-0000-0000-0000-000000000000"`), &zero))
	assert.True(t, zero.IsNil())
}

func TestNewIDsAreDistinct(t *testing.T) {
	assert.NotEqual(t, domain.NewTenantID(), domain.NewTenantID())
	assert.NotEqual(t, domain.NewObservationID(), domain.NewObservationID())
}
