package mhtcet

import (
	"fmt"
	"strings"

	"github.com/sells-group/cutoff-ingest/internal/model"
	"github.com/sells-group/cutoff-ingest/internal/scanner"
)

// namer builds MHTCET_{COURSE}_R{n}_{QUOTA} round names. An unreadable round
// is R0 and an unreadable quota is UNK; the name is still standardized.
type namer struct {
	course string
	pat    *patterns
}

// NameArtifact implements scanner.Namer.
func (n namer) NameArtifact(c model.Candidate) scanner.Naming {
	raw := strings.TrimSpace(c.LinkText)
	t := normalizeLinkText(raw)
	return scanner.Naming{
		Clean:        fmt.Sprintf("MHTCET_%s_R%d_%s", n.course, n.pat.roundNumber(t), n.pat.quota(t)),
		Original:     raw,
		Standardized: true,
	}
}
