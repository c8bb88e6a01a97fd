package signing_test

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wfunc/playerhook/config"
	"github.com/wfunc/playerhook/signing"
)

func TestPBKDF2Derive(t *testing.T) {
	d := signing.NewPBKDF2()

	key, err := d.Derive("alice", "s3cret", 4)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err, "key should be standard base64")
	assert.Len(t, raw, signing.DefaultKeyLength)

	again, err := d.Derive("alice", "s3cret", 4)
	require.NoError(t, err)
	assert.Equal(t, key, again, "derivation must be deterministic")

	for name, other := range map[string][3]any{
		"other user":   {"bob", "s3cret", int64(4)},
		"other secret": {"alice", "public", int64(4)},
		"other round":  {"alice", "s3cret", int64(5)},
	} {
		k, err := d.Derive(other[0].(string), other[1].(string), other[2].(int64))
		require.NoError(t, err)
		assert.NotEqual(t, key, k, name)
	}
}

func TestPBKDF2InvalidParameters(t *testing.T) {
	_, err := signing.PBKDF2{}.Derive("alice", "s", 1)
	assert.ErrorIs(t, err, signing.ErrInvalidParameters)
}

func TestArgon2Derive(t *testing.T) {
	d := signing.Argon2{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLength: 16}

	key, err := d.Derive("alice", "s3cret", 1)
	require.NoError(t, err)

	raw, err := base64.StdEncoding.DecodeString(key)
	require.NoError(t, err)
	assert.Len(t, raw, 16)

	other, err := d.Derive("alice", "s3cret", 2)
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = signing.Argon2{}.Derive("alice", "s3cret", 1)
	assert.ErrorIs(t, err, signing.ErrInvalidParameters)
}

func TestFromConfig(t *testing.T) {
	d, err := signing.FromConfig(config.SigningConfig{Algorithm: "pbkdf2", Iterations: 10, KeyLength: 8})
	require.NoError(t, err)
	assert.Equal(t, signing.PBKDF2{Iterations: 10, KeyLength: 8}, d)

	d, err = signing.FromConfig(config.SigningConfig{
		Algorithm: "argon2",
		KeyLength: 32,
		Argon2:    config.Argon2Config{Time: 2, Memory: 1024, Threads: 4},
	})
	require.NoError(t, err)
	assert.Equal(t, signing.Argon2{Time: 2, Memory: 1024, Threads: 4, KeyLength: 32}, d)

	_, err = signing.FromConfig(config.SigningConfig{Algorithm: "md5"})
	assert.ErrorIs(t, err, signing.ErrUnknownAlgorithm)
}
