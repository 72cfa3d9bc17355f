package recovery

import (
	"fmt"
	"strings"
)

// Fragment is one printed half of a mnemonic: twelve space-separated words.
type Fragment string

func (f Fragment) words() []string {
	return strings.Fields(string(f))
}

// Split returns words 1-12 and 13-24.
func Split(m Mnemonic) (Fragment, Fragment) {
	return Fragment(strings.Join(m[:FragmentWords], " ")),
		Fragment(strings.Join(m[FragmentWords:], " "))
}

// MergeResult carries the recovered mnemonic only when Valid is true.
type MergeResult struct {
	Mnemonic Mnemonic
	Valid    bool
	Errors   []error
}

// Merge validates both fragments, joins A then B and verifies the parity and
// checksum words. It never returns a partial mnemonic.
func Merge(a, b Fragment) MergeResult {
	var errs []error
	errs = append(errs, validateFragment("A", a.words())...)
	errs = append(errs, validateFragment("B", b.words())...)
	if len(errs) > 0 {
		return MergeResult{Errors: errs}
	}

	words := append(a.words(), b.words()...)
	if verrs := Validate(words); len(verrs) > 0 {
		return MergeResult{Errors: verrs}
	}

	m := make(Mnemonic, WordCount)
	for i, w := range words {
		m[i] = normalizeWord(w)
	}
	return MergeResult{Mnemonic: m, Valid: true}
}

func validateFragment(name string, words []string) []error {
	if len(words) != FragmentWords {
		return []error{fmt.Errorf("fragment %s: %w: expected %d, got %d", name, ErrWordCount, FragmentWords, len(words))}
	}
	var errs []error
	for i, w := range words {
		if _, ok := lookup(w); !ok {
			errs = append(errs, fmt.Errorf("fragment %s word %d %q: %w", name, i+1, w, ErrUnknownWord))
		}
	}
	return errs
}
