// Package source provides grant candidate sources: the curated static
// catalog and polled RSS feeds. Both implement the same Gather capability;
// they differ only in reliability and in whether the keyword relevance gate
// applies downstream.
package source

import (
	"context"

	"grantwatch/internal/grant"
)

// Source produces candidate grant records.
type Source interface {
	// Name identifies the source in logs and history entries.
	Name() string
	// Curated reports whether records are hand-maintained and therefore
	// always relevant; polled sources go through the keyword gate.
	Curated() bool
	// Gather returns the source's current candidates. A failing source
	// returns an error and contributes zero records; it never aborts a run.
	Gather(ctx context.Context) ([]grant.Record, error)
}
