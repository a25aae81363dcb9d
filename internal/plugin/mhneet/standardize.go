package mhneet

import (
	"regexp"
	"strings"
)

// Seat genders.
const (
	GenderFemale  = "Female"
	GenderGeneral = "General"
)

// Categories printed in Maharashtra selection lists, longest first so that
// prefix splitting prefers "SEBC" over "SC".
var knownCategories = []string{
	"PHSEBC", "PHOPEN", "PHNTB", "PHNTC", "PHNTD", "PHOBC", "PHEWS", "ORPHAN", "MINORITY",
	"PHSC", "PHST", "PHVJ", "SEBC", "OPEN", "DEF1", "DEF2", "DEF3", "MINO", "TFWS", "INST",
	"OBC", "SBC", "EWS", "VJA", "DTA", "NTB", "NTC", "NTD", "NT1", "NT2", "NT3", "MKB",
	"NRI", "AIQ", "MNG", "SC", "ST", "VJ", "PH", "HA",
}

var knownSet = func() map[string]bool {
	m := make(map[string]bool, len(knownCategories))
	for _, c := range knownCategories {
		m[c] = true
	}
	return m
}()

var genericQuotas = map[string]bool{"STATE": true, "AIQ": true, "NRI": true, "INST": true, "MINORITY": true, "MNG": true, "": true}

var (
	pwdCleaner    = regexp.MustCompile(`PWD-?[A-Z]*\s*PH([A-Z]*)`)
	defCleaner    = regexp.MustCompile(`D\d\s*(DEF\d)`)
	loneGender    = regexp.MustCompile(`\b[MF]\b`)
	squishedGlue  = regexp.MustCompile(`(?:^|\s)([MF])\s+(.+)$`)
	accountingTag = regexp.MustCompile(`\(?EM[DR]\)?`)
	squash        = regexp.MustCompile(`[\s\-()]+`)
	nonAlpha      = regexp.MustCompile(`[^A-Z]`)
	nonAlnum      = regexp.MustCompile(`[^A-Z0-9]`)
)

// Dimensions is a normalized seat: quota, category and gender.
type Dimensions struct {
	Quota    string
	Category string
	Gender   string
}

// splitGlued splits a known category off the front of s: "OBCSTATE" yields
// ("OBC", "STATE"). Text that starts with a generic quota word is not split,
// so "STATE" never becomes ("ST", "ATE").
func splitGlued(s string) (cat, rest string, ok bool) {
	for q := range genericQuotas {
		if q != "" && strings.HasPrefix(s, q) {
			return "", s, false
		}
	}
	for _, c := range knownCategories {
		if strings.HasPrefix(s, c) {
			return c, strings.TrimSpace(s[len(c):]), true
		}
	}
	return "", s, false
}

// NormalizeDimensions repairs the quota, category and gender cells of one
// selection-list row. Text extraction routinely glues neighbouring columns
// together ("M OBCSTATE", "PWD-SEB PHSEBC", "OPENW"); the steps below undo
// that before the seat is classified. baseQuota is used when the row carries
// no quota of its own.
func NormalizeDimensions(rawQuota, rawCat, rawGender, baseQuota string) Dimensions {
	q := strings.ToUpper(strings.TrimSpace(rawQuota))
	c := strings.ToUpper(strings.TrimSpace(rawCat))
	g := strings.ToUpper(strings.TrimSpace(rawGender))
	if baseQuota == "" {
		baseQuota = "STATE"
	}

	// Government synonyms go first so PWD never triggers a split.
	q, c = pwdCleaner.ReplaceAllString(q, "PH${1}"), pwdCleaner.ReplaceAllString(c, "PH${1}")
	q, c = defCleaner.ReplaceAllString(q, "${1}"), defCleaner.ReplaceAllString(c, "${1}")

	if g == "" || len(g) > 1 || c == "" || len(c) > 12 || q == "" || len(q) > 14 || loneGender.MatchString(q) {
		blob := strings.TrimSpace(g + " " + c + " " + q)
		if m := squishedGlue.FindStringSubmatch(blob); m != nil {
			g = strings.TrimSpace(m[1])
			if cat, rest, ok := splitGlued(strings.TrimSpace(m[2])); ok {
				c, q = cat, rest
			} else {
				c, q = "OPEN", "STATE"
			}
		}
	}

	if c != "" && !knownSet[c] && c != "STATE" {
		if cat, rest, ok := splitGlued(c); ok && len(nonAlpha.ReplaceAllString(rest, "")) > 1 {
			c = cat
			switch q {
			case "STATE", "", "(EMD)", "(EMR)":
				q = rest
			}
		}
	}
	if q != "" && !knownSet[q] && q != "STATE" {
		if _, rest, ok := splitGlued(q); ok && len(nonAlpha.ReplaceAllString(rest, "")) > 1 {
			q = rest
		}
	}

	q = strings.TrimSpace(accountingTag.ReplaceAllString(q, ""))
	c = strings.TrimSpace(accountingTag.ReplaceAllString(c, ""))
	qn := squash.ReplaceAllString(q, "")

	d := Dimensions{Quota: baseQuota, Gender: GenderGeneral}
	if g == "F" {
		d.Gender = GenderFemale
	}

	if genericQuotas[qn] {
		if qn != "" {
			d.Quota = qn
		}
		d.Category = "OPEN"
		if c != "" {
			d.Category = squash.ReplaceAllString(c, "")
		}
		if base, ok := peelSuffix(d.Category, "W"); ok {
			d.Category, d.Gender = base, GenderFemale
		} else if base, ok := peelSuffix(d.Category, "S"); ok {
			d.Category, d.Gender = base, GenderGeneral
		}
	} else {
		// A specific quota names the seat category itself.
		d.Gender = GenderGeneral
		d.Category = qn
		if base, ok := peelSuffix(qn, "W"); ok {
			d.Category, d.Gender = base, GenderFemale
		} else if base, ok := peelSuffix(qn, "S"); ok {
			d.Category = base
		}
	}

	d.Category = undouble(d.Category)
	if d.Category == "AIQ" || d.Category == "" {
		d.Category = "OPEN"
	}
	return d
}

// peelSuffix strips a W (women) or S (supernumerary) marker from cat. The
// peel only counts when cat is not itself a category and what remains is
// one, so "EWS" and "TFWS" stay whole.
func peelSuffix(cat, suffix string) (string, bool) {
	if knownSet[cat] || !strings.HasSuffix(cat, suffix) {
		return cat, false
	}
	base := strings.TrimSuffix(cat, suffix)
	if !knownSet[undouble(base)] {
		return cat, false
	}
	return base, true
}

// undouble collapses a category printed twice in a row: "OBCOBC" becomes "OBC".
func undouble(s string) string {
	n := len(s)
	if n >= 2 && n%2 == 0 && s[:n/2] == s[n/2:] {
		return s[:n/2]
	}
	return s
}

// SeatBucket builds {EXAM}_{QUOTA}_{CATEGORY}_{F|G}.
func SeatBucket(exam string, d Dimensions) string {
	g := "G"
	if d.Gender == GenderFemale {
		g = "F"
	}
	q := nonAlnum.ReplaceAllString(strings.ToUpper(d.Quota), "")
	c := nonAlnum.ReplaceAllString(strings.ToUpper(d.Category), "")
	return strings.ToUpper(exam) + "_" + q + "_" + c + "_" + g
}

// IsReserved reports whether a normalized category is a reserved one.
func IsReserved(category string) bool {
	switch nonAlnum.ReplaceAllString(strings.ToUpper(category), "") {
	case "OPEN", "GENERAL", "UR", "":
		return false
	}
	return true
}
