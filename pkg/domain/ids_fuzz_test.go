//go:build go1.18

package domain

import (
	"testing"
	"unicode/utf8"
)

// FuzzParseVaultID tests that parsing never panics on arbitrary input
// and always returns either a valid ID or an error.
//
// Justification: Trust boundary functions must handle arbitrary input safely.
func FuzzParseVaultID(f *testing.F) {
	f.Add("")
	f.Add("550e8400-e29b-41d4-a716-446655440000")
	f.Add("00000000-0000-0000-0000-000000000000")
	f.Add("not-a-uuid")
	f.Add("'; DROP TABLE vaults;--")
	f.Add(string([]byte{0x00, 0x01, 0x02}))

	f.Fuzz(func(t *testing.T, input string) {
		id, err := ParseVaultID(input)
		if err != nil {
			return
		}
		if id.IsNil() {
			t.Errorf("nil vault id accepted for %q", input)
		}
		roundTrip, err := ParseVaultID(id.String())
		if err != nil {
			t.Errorf("valid id failed round-trip: %v", err)
		}
		if roundTrip != id {
			t.Error("round-trip changed id value")
		}
		if !utf8.ValidString(id.String()) {
			t.Error("string form is not valid utf8")
		}
	})
}
