package vaultcrypto_test

import (
	"crypto/rand"
	"testing"

	"keepsake/internal/vaultcrypto"
)

func BenchmarkDeriveKey(b *testing.B) {
	salt, err := vaultcrypto.NewSalt()
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	for b.Loop() {
		if _, err := vaultcrypto.DeriveKey([]byte("benchmark password"), salt); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkEncrypt(b *testing.B) {
	key := make([]byte, vaultcrypto.KeyLength)
	data := make([]byte, 64*1024)
	if _, err := rand.Read(key); err != nil {
		b.Fatal(err)
	}
	iv, err := vaultcrypto.NewIV()
	if err != nil {
		b.Fatal(err)
	}
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()
	for b.Loop() {
		if _, _, err := vaultcrypto.Encrypt(data, key, iv); err != nil {
			b.Fatal(err)
		}
	}
}
