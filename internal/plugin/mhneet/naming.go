package mhneet

import (
	"fmt"
	"strings"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

// namer builds {EXAM}_{ROUND_TYPE}_{SEQ}_{GROUP}_{REVISION} round names.
// Year is not part of the name; artifacts carry it separately.
type namer struct {
	exam string
	pat  *patterns
}

// NameArtifact implements scanner.Namer. Every name is standardized; unknown
// parts read UNKNOWN_TYPE, UNKNOWN_GROUP or ORIGINAL.
func (n namer) NameArtifact(c model.Candidate) scanner.Naming {
	raw := strings.TrimSpace(c.LinkText)
	t := strings.ToUpper(raw)

	seq := n.pat.roundSeq(t)

	roundType := "UNKNOWN_TYPE"
	switch {
	case plugin.MatchAny(n.pat.specialStray, t):
		roundType = "SPECIAL_STRAY"
	case plugin.MatchAny(n.pat.stray, t):
		roundType = "STRAY"
	case plugin.MatchAny(n.pat.institutional, t):
		roundType = "INSTITUTIONAL"
	case plugin.MatchAny(n.pat.cap, t), seq > 0:
		roundType = "CAP"
	}

	group := n.pat.courseGroup(t)
	if group == "" {
		group = "UNKNOWN_GROUP"
	}

	revision := "ORIGINAL"
	switch {
	case plugin.MatchAny(n.pat.revRevised, t):
		revision = "REVISED"
	case plugin.MatchAny(n.pat.revCorrigendum, t):
		revision = "CORRIGENDUM"
	case plugin.MatchAny(n.pat.revSupplement, t):
		revision = "SUPPLEMENTARY"
	}

	return scanner.Naming{
		Clean:        fmt.Sprintf("%s_%s_%d_%s_%s", n.exam, roundType, seq, group, revision),
		Original:     raw,
		Standardized: true,
	}
}

// programCode derives the program from an artifact round name such as
// MH_NEET_UG_CAP_2_MBBS_BDS_ORIGINAL. Underscores become spaces first so
// word boundaries match.
func (p *patterns) programCode(art *model.Artifact) string {
	name := art.RoundName
	if name == "" {
		name = art.OriginalName
	}
	return p.courseGroup(strings.ReplaceAll(strings.ToUpper(name), "_", " "))
}
