package service

import "sort"

// rrfK is the reciprocal-rank-fusion smoothing constant. 60 is the standard
// value from the original RRF paper and flattens the gap between adjacent
// top ranks.
const rrfK = 60

type fusionCandidate struct {
	context    *RetrievedContext
	fusedScore float64
	bestRaw    float32
}

// fuseRankedLists merges per-namespace ranked lists with reciprocal rank
// fusion: a candidate at 1-indexed rank r in a list contributes 1/(k+r), and
// contributions sum across lists. Agreement across namespaces and query
// vectors therefore beats a single strong hit.
//
// The function is pure: identical inputs always produce identical output
// order. Ties break on the best single raw similarity score, then on
// lexicographic source id, then record id.
func fuseRankedLists(lists []rankedList, k int) []*RetrievedContext {
	if k <= 0 {
		k = rrfK
	}

	candidates := make(map[string]*fusionCandidate)
	for _, list := range lists {
		for rank, match := range list.matches {
			if match == nil {
				continue
			}
			cand, ok := candidates[match.ID]
			if !ok {
				cand = &fusionCandidate{
					context: &RetrievedContext{
						Text:      match.Text,
						SourceID:  match.SourceID,
						RawScore:  match.Score,
						Namespace: list.namespace,
						GroupIDs:  match.GroupIDs,
					},
				}
				candidates[match.ID] = cand
			}
			cand.fusedScore += 1.0 / float64(k+rank+1)
			if match.Score > cand.bestRaw {
				cand.bestRaw = match.Score
				cand.context.RawScore = match.Score
				cand.context.Namespace = list.namespace
			}
		}
	}

	out := make([]*RetrievedContext, 0, len(candidates))
	ids := make(map[*RetrievedContext]string, len(candidates))
	for id, cand := range candidates {
		cand.context.FusedScore = cand.fusedScore
		ids[cand.context] = id
		out = append(out, cand.context)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].RawScore != out[j].RawScore {
			return out[i].RawScore > out[j].RawScore
		}
		if out[i].SourceID != out[j].SourceID {
			return out[i].SourceID < out[j].SourceID
		}
		return ids[out[i]] < ids[out[j]]
	})

	for i, c := range out {
		c.FusedRank = i + 1
	}

	return out
}
