package mods

import (
	"fmt"
	"strings"
)

// bits maps two-letter mod acronyms to legacy bitmask values.
// CL and NO carry no bits: classic is implied on stable scores and
// NO is a placeholder for "no mod".
var bits = map[string]int{
	"CL": 0,
	"NO": 0,
	"NF": 1 << 0,
	"EZ": 1 << 1,
	"TD": 1 << 2,
	"HD": 1 << 3,
	"HR": 1 << 4,
	"SD": 1 << 5,
	"DT": 1 << 6,
	"RX": 1 << 7,
	"HT": 1 << 8,
	"NC": 1 << 9,
	"FL": 1 << 10,
	"AT": 1 << 11,
	"SO": 1 << 12,
	"AP": 1 << 13,
	"PF": 1 << 14,
	"4K": 1 << 15,
	"5K": 1 << 16,
	"6K": 1 << 17,
	"7K": 1 << 18,
	"8K": 1 << 19,
	"FI": 1 << 20,
	"RD": 1 << 21,
	"CN": 1 << 22,
	"TG": 1 << 23,
	"9K": 1 << 24,
	"KC": 1 << 25,
	"1K": 1 << 26,
	"3K": 1 << 27,
	"2K": 1 << 28,
	"V2": 1 << 29,
	"MR": 1 << 30,
}

const (
	doubleTimeBit = 1 << 6
	nightcoreBit  = 1 << 9
)

// Tokenize splits a mod string into upper-cased two-letter acronyms.
// Spaces and commas are ignored; an odd number of remaining characters
// is a malformed string.
func Tokenize(s string) ([]string, error) {
	r := strings.NewReplacer(" ", "", ",", "", "，", "")
	s = strings.ToUpper(r.Replace(s))
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("malformed mod string %q", s)
	}
	out := make([]string, 0, len(s)/2)
	for i := 0; i < len(s); i += 2 {
		out = append(out, s[i:i+2])
	}
	return out, nil
}

// Normalize joins acronyms into the canonical stored form, dropping the
// no-op classic mod. Used both on API decode and on user input.
func Normalize(acronyms []string) string {
	var b strings.Builder
	for _, a := range acronyms {
		a = strings.ToUpper(a)
		if a == "CL" || a == "NO" {
			continue
		}
		b.WriteString(a)
	}
	return b.String()
}

// NormalizeString tokenizes and normalizes in one step.
func NormalizeString(s string) (string, error) {
	toks, err := Tokenize(s)
	if err != nil {
		return "", err
	}
	return Normalize(toks), nil
}

// Bitmask converts a mod string to its legacy bitmask. Unknown acronyms
// are rejected so a typo does not silently simulate nomod.
func Bitmask(s string) (int, error) {
	toks, err := Tokenize(s)
	if err != nil {
		return 0, err
	}
	mask := 0
	for _, t := range toks {
		b, ok := bits[t]
		if !ok {
			return 0, fmt.Errorf("unknown mod %q", t)
		}
		mask ^= b
	}
	return mask, nil
}

// FoldNightcore rewrites the NC bit as DT. Nightcore implies double-time
// timing, and the simulator only understands the DT bit.
func FoldNightcore(mask int) int {
	if mask&nightcoreBit != 0 {
		mask &^= nightcoreBit
		mask |= doubleTimeBit
	}
	return mask
}

// StripDifficultyNeutral removes HD and CL from a normalized mod string.
// Both are treated as not changing difficulty when deciding whether a
// candidate is a redundant variant of an existing score.
func StripDifficultyNeutral(s string) string {
	s = strings.ReplaceAll(s, "HD", "")
	return strings.ReplaceAll(s, "CL", "")
}

// Contains reports whether the normalized mod string includes the acronym.
func Contains(s, acronym string) bool {
	return strings.Contains(s, acronym)
}
