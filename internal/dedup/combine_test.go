package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rootandstem/curriculum-cli/internal/config"
	"github.com/rootandstem/curriculum-cli/internal/model"
)

func defaultDetection() config.DetectionConfig {
	return config.DetectionConfig{
		SemanticThreshold: 0.5,
		SemanticLimit:     10,
		CombinedFloor:     0.45,
		MaxResults:        10,
		FanOut:            4,
		TitleWeight:       0.3,
		ContentWeight:     0.5,
		MetadataWeight:    0.2,
		HighThreshold:     0.85,
		MediumThreshold:   0.70,
		MetadataWeights:   testWeights(),
	}
}

func TestCombine(t *testing.T) {
	cfg := defaultDetection()

	tests := []struct {
		name      string
		title     float64
		content   float64
		metadata  float64
		exactHash bool
		wantScore float64
		wantTier  model.MatchTier
	}{
		{"exact hash overrides subscores", 0.1, 0.2, 0.0, true, 1.0, model.TierExact},
		{"perfect subscores", 1.0, 1.0, 1.0, false, 1.0, model.TierExact},
		{"high", 0.9, 0.9, 0.8, false, 0.88, model.TierHigh},
		{"medium", 0.7, 0.8, 0.5, false, 0.71, model.TierMedium},
		{"low", 0.5, 0.5, 0.5, false, 0.5, model.TierLow},
		{"boundary high", 0.85, 0.85, 0.85, false, 0.85, model.TierHigh},
		{"boundary medium", 0.7, 0.7, 0.7, false, 0.7, model.TierMedium},
		{"zero", 0, 0, 0, false, 0, model.TierLow},
		// Pizza Making Workshop vs Pizza Workshop Basics fixture:
		// title 0.5, content 0.8, shared grade levels only (meta 0.2)
		// => 0.5*0.3 + 0.8*0.5 + 0.2*0.2 = 0.59.
		{"pizza workshop fixture", 0.5, 0.8, 0.2, false, 0.59, model.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, tier := Combine(tt.title, tt.content, tt.metadata, tt.exactHash, cfg)
			assert.InDelta(t, tt.wantScore, score, 1e-9)
			assert.Equal(t, tt.wantTier, tier)
		})
	}
}

func TestCombineDeterministic(t *testing.T) {
	cfg := defaultDetection()
	s1, t1 := Combine(0.42, 0.77, 0.31, false, cfg)
	s2, t2 := Combine(0.42, 0.77, 0.31, false, cfg)
	assert.Equal(t, s1, s2)
	assert.Equal(t, t1, t2)
}

func TestSortRecordsTieBreak(t *testing.T) {
	records := []model.SimilarityRecord{
		{DocumentID: "doc-3", DocumentTitle: "Zucchini Bread", CombinedScore: 0.8},
		{DocumentID: "doc-2", DocumentTitle: "Apple Cider", CombinedScore: 0.8},
		{DocumentID: "doc-9", DocumentTitle: "Apple Cider", CombinedScore: 0.8},
		{DocumentID: "doc-1", DocumentTitle: "Bean Soup", CombinedScore: 0.9},
	}

	SortRecords(records)

	assert.Equal(t, "doc-1", records[0].DocumentID) // highest score first
	assert.Equal(t, "doc-2", records[1].DocumentID) // then title asc
	assert.Equal(t, "doc-9", records[2].DocumentID) // then id asc
	assert.Equal(t, "doc-3", records[3].DocumentID)
}
