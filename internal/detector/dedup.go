package detector

import (
	"sort"

	"github.com/MeKo-Tech/elscan/internal/utils"
)

// Deduplicate merges overlapping candidates. Regions are ordered by confidence
// (descending, stable); each unclaimed region leads a group and claims every
// later unclaimed region whose IoU with it is at least iouThreshold. Only group
// leaders are returned, in descending confidence order.
func Deduplicate(regions []CandidateRegion, iouThreshold float64) []CandidateRegion {
	if len(regions) == 0 {
		return []CandidateRegion{}
	}
	sorted := append([]CandidateRegion(nil), regions...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	claimed := make([]bool, len(sorted))
	kept := make([]CandidateRegion, 0, len(sorted))
	for i := range sorted {
		if claimed[i] {
			continue
		}
		kept = append(kept, sorted[i])
		for j := i + 1; j < len(sorted); j++ {
			if !claimed[j] && utils.IoU(sorted[i].Box, sorted[j].Box) >= iouThreshold {
				claimed[j] = true
			}
		}
	}
	return kept
}
