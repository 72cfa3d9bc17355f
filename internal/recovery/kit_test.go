package recovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"keepsake/internal/vaultcrypto"
)

func TestNewKit_RecoverMasterPassword(t *testing.T) {
	password := []byte("hunter2 but longer")

	kit, backup, err := NewKit(password)
	require.NoError(t, err)
	require.NoError(t, backup.Validate())

	res := Merge(kit.FragmentA, kit.FragmentB)
	require.True(t, res.Valid)
	assert.Equal(t, kit.Mnemonic, res.Mnemonic)

	got, err := RecoverMasterPassword(res.Mnemonic, backup)
	require.NoError(t, err)
	assert.Equal(t, password, got)
}

func TestRecoverMasterPassword_WrongMnemonic(t *testing.T) {
	_, backup, err := NewKit([]byte("pw"))
	require.NoError(t, err)

	other := mustMnemonic(t)
	_, err = RecoverMasterPassword(other, backup)
	assert.ErrorIs(t, err, vaultcrypto.ErrAuthentication)

	_, err = RecoverMasterPassword(nil, backup)
	assert.ErrorIs(t, err, vaultcrypto.ErrAuthentication)
}
