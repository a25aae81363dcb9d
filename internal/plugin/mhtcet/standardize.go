package mhtcet

import "strings"

// Seat buckets a category token can name.
const (
	BucketHome      = "Home University"
	BucketOtherHome = "Other Than Home University"
	BucketState     = "State Level"
)

// Category is a decoded cutoff column header such as GOPENS or LSCH.
type Category struct {
	Gender        string
	Category      string
	SeatBucket    string
	Supernumerary bool
}

var supernumerary = map[string]bool{"TFWS": true, "EWS": true, "ORPHAN": true}

// baseCategories are the categories CET cell headers carry once the gender
// prefix and region suffix are removed.
var baseCategories = map[string]bool{
	"OPEN": true, "SC": true, "ST": true, "VJ": true, "DT": true, "NT1": true, "NT2": true,
	"NT3": true, "NTB": true, "NTC": true, "NTD": true, "OBC": true, "SEBC": true, "SBC": true,
	"EWS": true, "TFWS": true, "ORPHAN": true, "MI": true,
}

// knownCategory reports whether t is a base category, optionally behind a
// PWD or DEF marker (PWDOPEN, DEFROBC).
func knownCategory(t string) bool {
	if baseCategories[t] {
		return true
	}
	for _, marker := range []string{"PWD", "DEF"} {
		rest, ok := strings.CutPrefix(t, marker)
		if !ok {
			continue
		}
		if baseCategories[rest] || baseCategories[strings.TrimPrefix(rest, "R")] {
			return true
		}
	}
	return false
}

var (
	genderPrefixes = []string{"L", "G", ""}
	regionSuffixes = []string{"H", "O", "S", ""}
	regionBuckets  = map[string]string{"H": BucketHome, "O": BucketOtherHome, "S": BucketState, "": BucketState}
)

// DecodeCategory splits a category token into a gender prefix (L ladies,
// G general), the category itself and a region suffix (H home university,
// O other than home university, S state level). An affix is only peeled when
// what remains is a known category, so LEWS reads as ladies EWS and an
// unrecognised token is kept whole. TFWS, EWS, ORPHAN and any PWD or DEF
// category are supernumerary.
func DecodeCategory(token string) Category {
	t := strings.ToUpper(strings.TrimSpace(token))
	if t == "" {
		t = "OPEN"
	}
	c := Category{Gender: "General", Category: t, SeatBucket: BucketState}

	for _, pre := range genderPrefixes {
		for _, suf := range regionSuffixes {
			if !strings.HasPrefix(t, pre) || !strings.HasSuffix(t, suf) || len(t) <= len(pre)+len(suf) {
				continue
			}
			base := t[len(pre) : len(t)-len(suf)]
			if !knownCategory(base) {
				continue
			}
			if pre == "L" {
				c.Gender = "Female"
			}
			c.Category = base
			c.SeatBucket = regionBuckets[suf]
			c.Supernumerary = isSupernumerary(base)
			return c
		}
	}
	c.Supernumerary = isSupernumerary(t)
	return c
}

func isSupernumerary(cat string) bool {
	return supernumerary[cat] || strings.Contains(cat, "PWD") || strings.Contains(cat, "DEF")
}

// LocationCode shortens a seat-bucket phrase: OHU, HU, SL, AI, MIN, MH or UNK.
// The more specific phrase wins.
func LocationCode(text string) string {
	t := strings.ToUpper(text)
	switch {
	case strings.Contains(t, "OTHER THAN HOME UNIVERSITY"):
		return "OHU"
	case strings.Contains(t, "HOME UNIVERSITY"):
		return "HU"
	case strings.Contains(t, "STATE LEVEL"):
		return "SL"
	case strings.Contains(t, "ALL INDIA"):
		return "AI"
	case strings.Contains(t, "MINORITY"):
		return "MIN"
	case strings.Contains(t, "MAHARASHTRA"):
		return "MH"
	}
	return "UNK"
}
