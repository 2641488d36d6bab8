package keyring

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateSaveLoadRoundTrip(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.key")
	require.NoError(t, Save(id, path))

	loaded, err := Load(path)
	require.NoError(t, err)

	wantPeerID, err := id.PeerID()
	require.NoError(t, err)
	gotPeerID, err := loaded.PeerID()
	require.NoError(t, err)
	assert.Equal(t, wantPeerID, gotPeerID)

	wantPub, err := id.PublicKeyBytes()
	require.NoError(t, err)
	gotPub, err := loaded.PublicKeyBytes()
	require.NoError(t, err)
	assert.Equal(t, wantPub, gotPub)
}

func TestLoadRejectsWrongPermissions(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "identity.key")
	require.NoError(t, Save(id, path))
	require.NoError(t, os.Chmod(path, 0o600))

	_, err = Load(path)
	assert.Error(t, err)
}

func TestSS58EncodesConsistently(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	addr1, err := id.SS58(42)
	require.NoError(t, err)
	addr2, err := id.SS58(42)
	require.NoError(t, err)
	assert.Equal(t, addr1, addr2)
	assert.NotEmpty(t, addr1)
}

func TestSignerFnProducesVerifiableSignature(t *testing.T) {
	id, err := Generate()
	require.NoError(t, err)

	sign := id.SignerFn()
	msg := []byte("epoch 7 attestation")
	sig, err := sign(msg)
	require.NoError(t, err)

	ok, err := id.PrivKey().GetPublic().Verify(msg, sig)
	require.NoError(t, err)
	assert.True(t, ok)
}
