package recovery

import (
	"keepsake/internal/vaultcrypto"
)

// Kit is handed to the owner once and never persisted server-side.
type Kit struct {
	Mnemonic  Mnemonic
	FragmentA Fragment
	FragmentB Fragment
}

// NewKit generates a mnemonic and seals masterPassword under a key derived
// from it. The returned envelope is the vault's recovery backup.
func NewKit(masterPassword []byte) (*Kit, vaultcrypto.Envelope, error) {
	m, err := NewMnemonic()
	if err != nil {
		return nil, vaultcrypto.Envelope{}, err
	}
	backup, err := vaultcrypto.Seal(m.Secret(), masterPassword)
	if err != nil {
		return nil, vaultcrypto.Envelope{}, err
	}
	a, b := Split(m)
	return &Kit{Mnemonic: m, FragmentA: a, FragmentB: b}, backup, nil
}

// RecoverMasterPassword opens the recovery backup. Every failure is
// vaultcrypto.ErrAuthentication.
func RecoverMasterPassword(m Mnemonic, backup vaultcrypto.Envelope) ([]byte, error) {
	if len(m) != WordCount {
		return nil, vaultcrypto.ErrAuthentication
	}
	return vaultcrypto.Open(m.Secret(), backup)
}
