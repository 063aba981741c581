package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksumRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":8000\"\n"), 0600))

	hash, err := WriteChecksum(path)
	require.NoError(t, err)
	assert.Len(t, hash, 64, "BLAKE3-256 hex digest")

	assert.NoError(t, VerifyChecksum(path))
}

func TestVerifyChecksumDetectsTampering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":8000\"\n"), 0600))

	_, err := WriteChecksum(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("listen: \":9999\"\n"), 0600))

	err = VerifyChecksum(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hash mismatch")
}

func TestVerifyChecksumMissingSidecar(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: \":8000\"\n"), 0600))

	err := VerifyChecksum(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config lock")
}

func TestComputeHashDeterministic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0600))

	h1, err := ComputeHash(path)
	require.NoError(t, err)
	h2, err := ComputeHash(path)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}
