package vaultcrypto

import "fmt"

// Envelope is everything needed, besides the secret, to open a sealed blob.
type Envelope struct {
	Ciphertext []byte `json:"ciphertext"`
	AuthTag    []byte `json:"auth_tag"`
	Salt       []byte `json:"salt"`
	IV         []byte `json:"iv"`
}

// IsZero reports whether the envelope holds no ciphertext.
func (e Envelope) IsZero() bool {
	return len(e.Ciphertext) == 0 && len(e.AuthTag) == 0
}

// Validate checks the shape of an envelope received from a client.
func (e Envelope) Validate() error {
	switch {
	case len(e.AuthTag) != TagLength:
		return fmt.Errorf("auth tag must be %d bytes", TagLength)
	case len(e.Salt) < SaltLength:
		return fmt.Errorf("salt must be at least %d bytes", SaltLength)
	case len(e.IV) != IVLength:
		return fmt.Errorf("iv must be %d bytes", IVLength)
	}
	return nil
}

// Seal derives a key from secret under a fresh salt and encrypts plaintext
// under a fresh IV.
func Seal(secret, plaintext []byte) (Envelope, error) {
	salt, err := NewSalt()
	if err != nil {
		return Envelope{}, err
	}
	iv, err := NewIV()
	if err != nil {
		return Envelope{}, err
	}
	key, err := DeriveKey(secret, salt)
	if err != nil {
		return Envelope{}, err
	}
	defer Wipe(key)

	ct, tag, err := Encrypt(plaintext, key, iv)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Ciphertext: ct, AuthTag: tag, Salt: salt, IV: iv}, nil
}

// Open re-derives the key from secret and decrypts env.
func Open(secret []byte, env Envelope) ([]byte, error) {
	if len(secret) == 0 {
		return nil, ErrAuthentication
	}
	key, err := DeriveKey(secret, env.Salt)
	if err != nil {
		return nil, ErrAuthentication
	}
	defer Wipe(key)
	return Decrypt(env.Ciphertext, env.AuthTag, key, env.IV)
}
