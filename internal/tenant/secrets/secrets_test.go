package secrets_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"veritrail/internal/tenant/secrets"
	dErrors "veritrail/pkg/domain-errors"
)

func TestGenerate(t *testing.T) {
	first, err := secrets.Generate()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := secrets.Generate()
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestHashAndVerify(t *testing.T) {
	secret, err := secrets.Generate()
	require.NoError(t, err)

	hash, err := secrets.Hash(secret)
	require.NoError(t, err)
	assert.NotEqual(t, secret, hash)

	assert.NoError(t, secrets.Verify(secret, hash))

	err = secrets.Verify("not-the-secret", hash)
	assert.ErrorIs(t, err, secrets.ErrMismatch)
}

func TestHashRejectsEmptySecret(t *testing.T) {
	_, err := secrets.Hash("")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
}
