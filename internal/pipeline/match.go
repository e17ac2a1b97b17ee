package pipeline

import (
	"sort"

	"github.com/malgorzata-bondini/offerings-app/internal"
	"github.com/malgorzata-bondini/offerings-app/internal/catalog"
	"github.com/malgorzata-bondini/offerings-app/internal/util"
)

const (
	maxReviewCandidates = 5
	maxFallbackScan     = 1500
)

// Reviewer ranks existing names against emitted offerings and flags the
// ones that score at or above the threshold.
type Reviewer struct {
	threshold float64
	index     *catalog.Snapshot
}

func NewReviewer(threshold float64, existing []string) *Reviewer {
	return &Reviewer{threshold: threshold, index: catalog.BuildSnapshot(existing)}
}

// Review returns one item per emitted offering whose best candidate reaches
// the threshold, in emission order. A threshold of zero or less disables it.
func (r *Reviewer) Review(emitted []internal.ServiceOffering) []internal.ReviewItem {
	if r.threshold <= 0 || r.index.Len() == 0 {
		return nil
	}

	var out []internal.ReviewItem
	for _, o := range emitted {
		candidates := r.rankCandidates(o.Name)
		if len(candidates) == 0 || candidates[0].Score < r.threshold {
			continue
		}
		out = append(out, internal.ReviewItem{
			RecordID:   o.Source.ID,
			Name:       o.Name,
			Score:      candidates[0].Score,
			Candidates: candidates,
		})
	}
	return out
}

func (r *Reviewer) rankCandidates(name string) []internal.ReviewCandidate {
	query := util.NormalizeName(name)
	queryTokens := util.Tokenize(query)
	positions := map[int]struct{}{}

	for _, token := range queryTokens {
		for pos := range r.index.TokenToNames[token] {
			positions[pos] = struct{}{}
		}
	}

	if len(positions) == 0 {
		for pos := 0; pos < r.index.Len() && pos < maxFallbackScan; pos++ {
			positions[pos] = struct{}{}
		}
	}

	out := make([]internal.ReviewCandidate, 0, len(positions))
	for pos := range positions {
		key := r.index.KeyByPos[pos]
		score := scoreName(query, key, queryTokens, util.Tokenize(key))
		out = append(out, internal.ReviewCandidate{Name: r.index.Names[pos], Score: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > maxReviewCandidates {
		out = out[:maxReviewCandidates]
	}
	return out
}

func scoreName(query, candidate string, queryTokens, candidateTokens []string) float64 {
	dice := util.DiceCoefficient(query, candidate)
	if len(queryTokens) == 0 || len(candidateTokens) == 0 {
		return dice
	}

	set := map[string]struct{}{}
	for _, t := range candidateTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range queryTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	tokenScore := float64(overlap) / float64(len(queryTokens))
	return 0.65*dice + 0.35*tokenScore
}
