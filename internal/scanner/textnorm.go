package scanner

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// fingerprintNoise lists the separators dropped from fingerprints in addition
// to whitespace and the zero-width joiners.
const fingerprintNoise = "-()[]{}.,_|"

func isFingerprintNoise(r rune) bool {
	if r == '\u200c' || r == '\u200d' || unicode.IsSpace(r) {
		return true
	}
	return strings.ContainsRune(fingerprintNoise, r)
}

// Fingerprint reduces text to a comparison key: decomposed, stripped of
// whitespace, zero-width joiners and punctuation separators, recomposed and
// uppercased. Combining marks survive. "Cut-Off" and "CUT OFF" share the
// fingerprint "CUTOFF".
func Fingerprint(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.Predicate(isFingerprintNoise)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToUpper(out)
}

// NormalizeText composes, uppercases and collapses whitespace.
func NormalizeText(s string) string {
	s = norm.NFC.String(s)
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}

// ContainsAny reports whether s contains any non-empty needle.
func ContainsAny(s string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(s, n) {
			return true
		}
	}
	return false
}
