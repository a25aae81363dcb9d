package kcet

import (
	"regexp"
	"strings"
)

var (
	courseCode      = regexp.MustCompile(`^[A-Z0-9]{2,4}$`)
	courseCodeFused = regexp.MustCompile(`^([A-Z0-9]{2,4})\s+(.+)$`)
	programCodeJunk = regexp.MustCompile(`[^A-Z0-9]+`)
)

// MergeCourseColumns resolves the three course layouts: a code column
// followed by a name column ("CE", "Civil"), code and name fused in one cell
// ("CE Civil"), or a name with no code at all ("CIVIL ENGINEERING"). The
// returned code is empty for the last layout.
func MergeCourseColumns(col0, col1 string) (code, name string) {
	c0, c1 := strings.TrimSpace(col0), strings.TrimSpace(col1)
	if courseCode.MatchString(c0) && c1 != "" {
		return c0, c1
	}
	if m := courseCodeFused.FindStringSubmatch(c0); m != nil {
		return m[1], m[2]
	}
	return "", c0
}

// StandardizeCourse returns the normalized course name: the raw name without
// a leading copy of its code.
func StandardizeCourse(code, rawName string) string {
	if code == "" || !strings.HasPrefix(rawName, code) {
		return rawName
	}
	return strings.TrimSpace(rawName[len(code):])
}

// ProgramCode derives a stable program code. Official codes are kept;
// layouts without one get a code built from the name, so
// "AI & Machine Learning" becomes "AI_MACHINE_LEARNING".
func ProgramCode(code, name string) string {
	if code != "" {
		return code
	}
	s := strings.TrimSpace(strings.ReplaceAll(strings.ToUpper(name), "\n", " "))
	s = strings.Trim(programCodeJunk.ReplaceAllString(s, "_"), "_")
	if len(s) > 60 {
		s = s[:60]
	}
	return s
}

// LocationType maps a block seat type onto the slug location token.
func LocationType(seatType string) string {
	switch seatType {
	case SeatGeneral:
		return "GEN"
	case SeatPrivate:
		return "PVT"
	default:
		return "HK"
	}
}

// CategoryGroup folds a raw category column code into its reservation group.
func CategoryGroup(raw string) string {
	for _, p := range []struct{ prefix, group string }{
		{"GM", "GM"}, {"SC", "SC"}, {"ST", "ST"}, {"1", "CAT-1"},
		{"2A", "2A"}, {"2B", "2B"}, {"3A", "3A"}, {"3B", "3B"},
	} {
		if strings.HasPrefix(raw, p.prefix) {
			return p.group
		}
	}
	return raw
}
