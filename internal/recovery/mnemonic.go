// Package recovery generates the 24-word recovery mnemonic, splits it into two
// printed fragments and merges them back. The mnemonic is the secret behind
// the vault's recovery backup; the server never stores it.
package recovery

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	WordCount     = 24
	FragmentWords = 12

	randomWords = 22
	parityPos   = 22
	checksumPos = 23
)

var (
	ErrWordCount   = errors.New("wrong number of words")
	ErrUnknownWord = errors.New("word not in wordlist")
	ErrParity      = errors.New("parity word mismatch")
	ErrChecksum    = errors.New("checksum word mismatch")
)

// Mnemonic is a validated sequence of 24 normalized words.
type Mnemonic []string

func (m Mnemonic) String() string {
	return strings.Join(m, " ")
}

// Secret is the key-derivation input: normalized words joined by single spaces.
func (m Mnemonic) Secret() []byte {
	return []byte(m.String())
}

// NewMnemonic draws 242 bits of entropy and appends the parity and checksum
// words. Candidates whose fragment-swapped order would also validate are
// discarded.
func NewMnemonic() (Mnemonic, error) {
	for {
		idx, err := randomIndices()
		if err != nil {
			return nil, err
		}
		m := fromIndices(idx)
		swapped := append(append(Mnemonic{}, m[FragmentWords:]...), m[:FragmentWords]...)
		if len(Validate(swapped)) > 0 {
			return m, nil
		}
	}
}

func randomIndices() ([WordCount]uint16, error) {
	var idx [WordCount]uint16
	var buf [randomWords * 2]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return idx, fmt.Errorf("read entropy: %w", err)
	}
	for i := range randomWords {
		idx[i] = binary.BigEndian.Uint16(buf[i*2:]) % wordSpace
	}
	idx[parityPos] = parity(idx[:randomWords])
	idx[checksumPos] = checksum(idx[:checksumPos])
	return idx, nil
}

func fromIndices(idx [WordCount]uint16) Mnemonic {
	m := make(Mnemonic, WordCount)
	for i, w := range idx {
		m[i] = wordAt(w)
	}
	return m
}

// parity is Σ (2i-1)·w_i mod 2048 over 1-based positions. Each coefficient is
// odd, so any change to a single word changes the sum.
func parity(words []uint16) uint16 {
	var sum uint32
	for i, w := range words {
		sum += uint32(2*i+1) * uint32(w)
	}
	return uint16(sum % wordSpace)
}

// checksum is the first 11 bits of SHA-256 over the big-endian indices.
func checksum(words []uint16) uint16 {
	buf := make([]byte, 2*len(words))
	for i, w := range words {
		binary.BigEndian.PutUint16(buf[i*2:], w)
	}
	h := sha256.Sum256(buf)
	return (uint16(h[0])<<3 | uint16(h[1])>>5) % wordSpace
}

// Validate returns every problem found in words; an empty result means the
// sequence is a valid mnemonic.
func Validate(words []string) []error {
	if len(words) != WordCount {
		return []error{fmt.Errorf("%w: expected %d, got %d", ErrWordCount, WordCount, len(words))}
	}

	var errs []error
	idx := make([]uint16, WordCount)
	for i, w := range words {
		n, ok := lookup(w)
		if !ok {
			errs = append(errs, fmt.Errorf("word %d %q: %w", i+1, w, ErrUnknownWord))
			continue
		}
		idx[i] = n
	}
	if len(errs) > 0 {
		return errs
	}

	if parity(idx[:randomWords]) != idx[parityPos] {
		errs = append(errs, ErrParity)
	}
	if checksum(idx[:checksumPos]) != idx[checksumPos] {
		errs = append(errs, ErrChecksum)
	}
	return errs
}

// ParseMnemonic splits s on whitespace, normalizes and validates it.
func ParseMnemonic(s string) (Mnemonic, error) {
	fields := strings.Fields(s)
	if errs := Validate(fields); len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	m := make(Mnemonic, len(fields))
	for i, w := range fields {
		m[i] = normalizeWord(w)
	}
	return m, nil
}
