package domain

import (
	"fmt"
	"strings"
)

// ItemOutcome records an item stored by a harvest run.
type ItemOutcome struct {
	ItemID int64
	Title  string
	URL    string
	Chunks int

	// Skipped is true when the item URL was already stored.
	Skipped bool
}

// UnitFailure records one unit that could not be stored.
type UnitFailure struct {
	URL   string
	Title string

	// ChunkIndexes lists the chunks that failed, when the failure was per chunk.
	ChunkIndexes []int

	Err error
}

func (f UnitFailure) String() string {
	var b strings.Builder
	name := f.Title
	if name == "" {
		name = f.URL
	}
	b.WriteString(name)
	if f.Title != "" && f.URL != "" {
		fmt.Fprintf(&b, " (%s)", f.URL)
	}
	if len(f.ChunkIndexes) > 0 {
		fmt.Fprintf(&b, " chunks %v", f.ChunkIndexes)
	}
	if f.Err != nil {
		fmt.Fprintf(&b, ": %v", f.Err)
	}
	return b.String()
}

// HarvestReport summarises a harvest run.
type HarvestReport struct {
	// RunID identifies the run in logs.
	RunID string

	// SourceID is the source the run stored into, zero if none was created.
	SourceID int64

	Items    []ItemOutcome
	Failures []UnitFailure
}

// Stored returns the number of items newly stored.
func (r *HarvestReport) Stored() int {
	n := 0
	for _, it := range r.Items {
		if !it.Skipped {
			n++
		}
	}
	return n
}

// Skipped returns the number of items skipped as already harvested.
func (r *HarvestReport) Skipped() int {
	return len(r.Items) - r.Stored()
}

// Err returns ErrPartialHarvest wrapped with the failure count when any unit failed.
func (r *HarvestReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d of %d units failed", ErrPartialHarvest,
		len(r.Failures), len(r.Failures)+len(r.Items))
}

// Merge folds another report into r.
func (r *HarvestReport) Merge(o HarvestReport) {
	if r.SourceID == 0 {
		r.SourceID = o.SourceID
	}
	r.Items = append(r.Items, o.Items...)
	r.Failures = append(r.Failures, o.Failures...)
}
