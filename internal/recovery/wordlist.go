package recovery

import (
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39/wordlists"
	"golang.org/x/text/unicode/norm"
)

const wordSpace = 2048

var wordIndex = sync.OnceValue(func() map[string]uint16 {
	idx := make(map[string]uint16, len(wordlists.English))
	for i, w := range wordlists.English {
		idx[normalizeWord(w)] = uint16(i)
	}
	return idx
})

// normalizeWord applies NFKD and lower-casing so the same word typed on
// different keyboards maps to one entry.
func normalizeWord(w string) string {
	return strings.ToLower(norm.NFKD.String(strings.TrimSpace(w)))
}

func lookup(word string) (uint16, bool) {
	i, ok := wordIndex()[normalizeWord(word)]
	return i, ok
}

func wordAt(i uint16) string {
	return normalizeWord(wordlists.English[i])
}
