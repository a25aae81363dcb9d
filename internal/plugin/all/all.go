// Package all assembles the registration table of every exam plugin.
package all

import (
	"github.com/sells-group/cutoff-ingest/internal/plugin"
	"github.com/sells-group/cutoff-ingest/internal/plugin/kcet"
	"github.com/sells-group/cutoff-ingest/internal/plugin/mhneet"
	"github.com/sells-group/cutoff-ingest/internal/plugin/mhtcet"
	"github.com/sells-group/cutoff-ingest/internal/plugin/neetka"
)

var constructors = []func() (*plugin.Plugin, error){
	kcet.New,
	neetka.New,
	mhneet.NewUG,
	mhneet.NewNursing,
	mhneet.NewAyushAIQ,
	mhtcet.NewBE,
	mhtcet.NewPharma,
}

// Registry builds a registry holding every known exam.
func Registry() (*plugin.Registry, error) {
	ps := make([]*plugin.Plugin, 0, len(constructors))
	for _, build := range constructors {
		p, err := build()
		if err != nil {
			return nil, err
		}
		ps = append(ps, p)
	}
	return plugin.NewRegistry(ps...)
}
