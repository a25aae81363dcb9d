package neetka

import (
	"regexp"
	"strings"
)

// Location tokens used in seat-bucket slugs.
const (
	LocHK      = "HK"
	LocPrivate = "PVT"
	LocGeneral = "GEN"
	LocUnknown = "UNKNOWN"
)

var keaCode = regexp.MustCompile(`(?i)^([A-Z]\d{3})`)

func set(codes ...string) map[string]bool {
	m := make(map[string]bool, len(codes))
	for _, c := range codes {
		m[c] = true
	}
	return m
}

var (
	hkCategories = set("1H", "1KH", "1RH", "2AH", "2AKH", "2ARH", "2BH", "2BKH", "2BRH",
		"3AH", "3AKH", "3ARH", "3BH", "3BKH", "3BRH", "GMH", "GMKH", "GMRH",
		"SCH", "SCKH", "SCRH", "STH", "STKH", "STRH")
	privateCategories = set("GMP", "GMPH", "MA", "MC", "ME", "MEH", "MK", "MM", "MMH", "MU",
		"NRI", "OPN", "OTH", "RC2", "RC3", "RC4", "RC5", "RC6", "RC7", "RC8")
	generalCategories = set("1G", "1K", "1R", "2AG", "2AK", "2AR", "2BG", "2BK", "2BR",
		"3AG", "3AK", "3AR", "3BG", "3BK", "3BR", "GM", "GMK", "GMR",
		"SCG", "SCK", "SCR", "STG", "STK", "STR")
	unreservedCategories = set("GM", "GMK", "GMR", "GMH", "GMKH", "GMRH", "GMP", "GMPH", "OPN", "NRI", "OTH")
)

// IsCategory reports whether s is a known KEA category column code.
func IsCategory(s string) bool {
	c := strings.ToUpper(strings.TrimSpace(s))
	return hkCategories[c] || privateCategories[c] || generalCategories[c]
}

// ExtractCode returns the leading KEA college code ("M001"), or "".
func ExtractCode(raw string) string {
	m := keaCode.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// ParseCourse splits a KEA course string such as "MBBS-GOVT." into its
// course and seat type. Missing parts are UNKNOWN.
func ParseCourse(raw string) (course, seat string) {
	clean := strings.TrimSpace(strings.ReplaceAll(strings.ToUpper(raw), ".", ""))
	if clean == "" {
		return "UNKNOWN", "UNKNOWN"
	}
	parts := strings.Split(clean, "-")
	course = strings.TrimSpace(parts[0])
	seat = "UNKNOWN"
	if len(parts) > 1 {
		seat = strings.TrimSpace(parts[1])
	}
	if seat == "OTHERS" {
		seat = "OTH"
	}
	return course, seat
}

// LocationType classifies a category code.
func LocationType(category string) string {
	c := strings.ToUpper(strings.TrimSpace(category))
	switch {
	case hkCategories[c]:
		return LocHK
	case privateCategories[c]:
		return LocPrivate
	case generalCategories[c]:
		return LocGeneral
	}
	return LocUnknown
}

// IsReserved reports whether the category is outside the unreserved list.
func IsReserved(category string) bool {
	return !unreservedCategories[strings.ToUpper(strings.TrimSpace(category))]
}
