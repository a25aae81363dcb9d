package scanner

import (
	"regexp"
	"strconv"
)

// RoundRule maps a keyword pattern to a round number.
type RoundRule struct {
	Pattern *regexp.Regexp
	Round   int
}

// RoundMatcher detects round numbers from notification text. Rules are tried
// in order, so extended and special rounds must precede plain ordinals. When
// no rule matches, a bare digit within [1, MaxDigit] is accepted if
// MaxDigit > 0. A zero result means no round; callers drop the candidate.
type RoundMatcher struct {
	Rules    []RoundRule
	MaxDigit int
}

var bareDigit = regexp.MustCompile(`\b([0-9])\b`)

// Match returns the detected round or 0.
func (m RoundMatcher) Match(text string) int {
	if text == "" {
		return 0
	}
	for _, r := range m.Rules {
		if r.Pattern.MatchString(text) {
			return r.Round
		}
	}
	if m.MaxDigit <= 0 {
		return 0
	}
	for _, sub := range bareDigit.FindAllStringSubmatch(text, -1) {
		n, _ := strconv.Atoi(sub[1])
		if n >= 1 && n <= m.MaxDigit {
			return n
		}
	}
	return 0
}

// RomanRound maps the roman numerals used in round labels.
var RomanRound = map[string]int{"I": 1, "II": 2, "III": 3, "IV": 4, "V": 5, "VI": 6}

// ParseRoundToken converts a roman or decimal round token. Unknown tokens yield 0.
func ParseRoundToken(tok string) int {
	if n, ok := RomanRound[tok]; ok {
		return n
	}
	n, err := strconv.Atoi(tok)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
