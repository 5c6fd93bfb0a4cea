package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestHarvestReport_Counts tests stored and skipped counting
func TestHarvestReport_Counts(t *testing.T) {
	r := HarvestReport{Items: []ItemOutcome{
		{ItemID: 1, Chunks: 3},
		{ItemID: 2, Skipped: true},
		{ItemID: 3, Chunks: 1},
	}}
	assert.Equal(t, 2, r.Stored())
	assert.Equal(t, 1, r.Skipped())
	assert.NoError(t, r.Err())
}

// TestHarvestReport_Err tests that any failure makes the run partial
func TestHarvestReport_Err(t *testing.T) {
	r := HarvestReport{
		Items:    []ItemOutcome{{ItemID: 1}},
		Failures: []UnitFailure{{URL: "https://a", Err: errors.New("boom")}},
	}
	err := r.Err()
	assert.True(t, errors.Is(err, ErrPartialHarvest))
	assert.Contains(t, err.Error(), "1 of 2 units failed")
}

// TestHarvestReport_Merge tests merging sub-reports
func TestHarvestReport_Merge(t *testing.T) {
	r := HarvestReport{RunID: "run"}
	r.Merge(HarvestReport{SourceID: 7, Items: []ItemOutcome{{ItemID: 1}}})
	r.Merge(HarvestReport{SourceID: 9, Failures: []UnitFailure{{URL: "u"}}})

	assert.Equal(t, int64(7), r.SourceID)
	assert.Len(t, r.Items, 1)
	assert.Len(t, r.Failures, 1)
}

// TestUnitFailure_String tests user-visible failure text
func TestUnitFailure_String(t *testing.T) {
	f := UnitFailure{
		URL:          "https://youtube.com/watch?v=x",
		Title:        "Intro",
		ChunkIndexes: []int{2},
		Err:          errors.New("timeout"),
	}
	assert.Equal(t, "Intro (https://youtube.com/watch?v=x) chunks [2]: timeout", f.String())

	assert.Equal(t, "https://a: bad", UnitFailure{URL: "https://a", Err: errors.New("bad")}.String())
}
