package kcet

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

type keywords []string

func (k keywords) in(s string) bool {
	for _, w := range k {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// Course keywords, English and Kannada. The yoga list must not match
// ಪ್ರಾಯೋಗಿಕ (practical).
var (
	kwBPharma   = keywords{"B.PHARMA", "B.PHARM", "ಬಿ-ಫಾರ್ಮಾ", "ಬಿ. ಫಾರ್ಮಾ", "ಬಿ-ಫಾರ್ಮ", "ಬಿ.ಫಾರ್ಮಾ"}
	kwPharmD    = keywords{"PHARMA-D", "PHARM-D", "PHARMA.D", "PHARM.D", "ಫಾರ್ಮ್-ಡಿ", "ಫಾರ್ಮ್ - ಡಿ", "ಫಾರ್ಮಾ - ಡಿ", "ಫಾರ್ಮಾ-ಡಿ"}
	kwAgri      = keywords{"AGRICULTURE", "ಕೃಷಿ"}
	kwVet       = keywords{"VETERINARY", "ವೆಟರ್ನರಿ", "ಪಶುವೈದ್ಯಕೀಯ"}
	kwEng       = keywords{"ENGINEERING", "ಇಂಜಿನಿಯರಿಂಗ್", "ಎಂಜಿನಿಯರಿಂಗ್"}
	kwArch      = keywords{"ARCHITECTURE", "ವಾಸ್ತುಶಿಲ್ಪ", "ಆರ್ಕಿಟೆಕ್ಚರ್"}
	kwNursing   = keywords{"NURSING", "ನರ್ಸಿಂಗ್"}
	kwYoga      = keywords{"NATUROPATHY", "ಪ್ರಕೃತಿ", "YOGA &", "YOGA AND", "ಯೋಗ ಮತ್ತು"}
	kwScience   = keywords{"SCIENCE", "ವಿಜ್ಞಾನ", "ಸೈನ್ಸ್"}
	kwBSc       = keywords{"B.SC", "BSC", "ಬಿ.ಎಸ್ಸಿ", "ಬಿಎಸ್ಸಿ"}
	kwFood      = keywords{"FOOD", "ಆಹಾರ", "ಫುಡ್"}
	kwFish      = keywords{"FISHERIES", "ಮೀನುಗಾರಿಕೆ"}
	kwFarm      = keywords{"FARM", "ಫಾರ್ಮ್"}
	kwRecord    = keywords{"RECORD", "ದಾಖಲೆ", "ರೆಕಾರ್ಡ್"}
	kwBPT       = keywords{"BPT", "ಬಿಪಿಟಿ"}
	kwBPO       = keywords{"BPO", "ಬಿಪಿಓ"}
	kwAHS       = keywords{"AHS", "ಎ ಹೆಚ್ ಎಸ್", "ಅಲೈಡ್ ಹೆಲ್ತ್"}
	kwPractical = keywords{"PRACTICAL", "ಪ್ರಾಯೋಗಿಕ", "ಪ್ರಾಕ್ಟಿಕಲ್"}
	kwTheory    = keywords{"THEORY", "ಥಿಯರಿ"}
)

// Attribute tags appended after the course label, in output order.
var tags = []struct {
	kw    keywords
	label string
}{
	{kwPractical, "(Practical)"},
	{kwTheory, "(Theory)"},
	{keywords{"HK", "H.K", "HYD", "HYDERABAD"}, "(HK)"},
	{keywords{"GENERAL", "GEN", "ಸಾಮಾನ್ಯ"}, "(General)"},
	{keywords{"PRIVATE", "PVT"}, "(Private)"},
	{keywords{"AGRICULTURIST", "ಕೃಷಿಕ"}, "(Agriculturist Quota)"},
	{keywords{"SPECIAL", "ವಿಶೇಷ", "SPL"}, "(Special)"},
}

// courseLabel picks the single course label for a link text. Combined
// courses are checked before their parts.
func courseLabel(t string) (string, bool) {
	agri, farm, vet := kwAgri.in(t), kwFarm.in(t), kwVet.in(t)
	bsc, science := kwBSc.in(t), kwScience.in(t)
	bpharma, pharmd := kwBPharma.in(t), kwPharmD.in(t)
	food, fish := kwFood.in(t), kwFish.in(t)

	switch {
	case bpharma && pharmd:
		return "B.Pharma & Pharm-D", true
	case bpharma:
		return "B.Pharma", true
	case pharmd:
		return "Pharm-D", true
	case agri && farm:
		return "Agriculture & Farm Science", true
	case agri && vet:
		return "Agriculture & Veterinary", true
	case food && fish:
		return "Food Science & Fisheries", true
	case food:
		return "Food Science", true
	case fish:
		return "Fisheries", true
	case kwEng.in(t):
		switch {
		case kwArch.in(t):
			return "Architecture Engineering", true
		case agri:
			return "Agriculture Engineering", true
		}
		return "Engineering", true
	case farm:
		return "Farm Science", true
	case agri:
		name := "Agriculture"
		if science {
			name += " Science"
		}
		if bsc {
			name = "B.Sc " + name
		}
		return name, true
	case vet:
		if science {
			return "Veterinary Science", true
		}
		return "Veterinary", true
	case kwArch.in(t):
		return "Architecture", true
	case kwNursing.in(t):
		if bsc {
			return "B.Sc Nursing", true
		}
		return "Nursing", true
	case kwYoga.in(t):
		return "Yoga & Naturopathy", true
	case kwRecord.in(t):
		return "Medical Record Technology", true
	case kwBPT.in(t):
		return "BPT", true
	case kwBPO.in(t):
		return "BPO", true
	case kwAHS.in(t):
		return "B.Sc AHS", true
	}
	return "", false
}

// NameArtifact turns a notification link text into a stable round name such
// as "Engineering (HK)". Texts with no recognised course are kept verbatim
// and reported as not standardized.
func NameArtifact(c model.Candidate) scanner.Naming {
	raw := strings.TrimSpace(c.LinkText)
	if raw == "" {
		return scanner.Naming{}
	}
	t := strings.ToUpper(strings.TrimSpace(norm.NFC.String(raw)))

	label, ok := courseLabel(t)
	if !ok {
		return scanner.Naming{Clean: raw, Original: raw}
	}

	parts := []string{label}
	seen := map[string]bool{label: true}
	for _, tag := range tags {
		if tag.kw.in(t) && !seen[tag.label] {
			parts = append(parts, tag.label)
			seen[tag.label] = true
		}
	}
	return scanner.Naming{Clean: strings.Join(parts, " "), Original: raw, Standardized: true}
}

var (
	streamNoise = []*regexp.Regexp{
		regexp.MustCompile(`\(HK\)`), regexp.MustCompile(`\bHK\b`),
		regexp.MustCompile(`\(AGRICULTURIST QUOTA\)`), regexp.MustCompile(`\bAGRICULTURIST QUOTA\b`),
		regexp.MustCompile(`\(PRIVATE\)`), regexp.MustCompile(`\bPRIVATE\b`),
		regexp.MustCompile(`\(NRI\)`), regexp.MustCompile(`\bNRI\b`),
		regexp.MustCompile(`\(SPECIAL\)`), regexp.MustCompile(`\bSPECIAL\b`),
	}
	streamSep = regexp.MustCompile(`[\s_]+`)
)

// SanitizeStream derives the course stream token used in seat-bucket slugs
// from an artifact round name. Location and quota tags are removed because
// the slug carries them separately: "Engineering (HK)" becomes "ENGINEERING".
func SanitizeStream(roundName string) string {
	if strings.TrimSpace(roundName) == "" {
		return "UNKNOWN"
	}
	s := strings.ToUpper(roundName)
	for _, re := range streamNoise {
		s = re.ReplaceAllString(s, "")
	}
	s = strings.NewReplacer("&", "_", "-", "_", "(", "", ")", "").Replace(s)
	s = streamSep.ReplaceAllString(s, "_")
	return strings.Trim(s, "_")
}
