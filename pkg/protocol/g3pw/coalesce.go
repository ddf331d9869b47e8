package g3pw

import "sort"

// maxBatch is the protocol ceiling on elements per variable-area read.
const maxBatch = 8

type readRun struct {
	start uint16
	count int
}

// planRuns merges requested offsets within one family into batched reads.
// Offsets are scanned in numeric order; from each starting offset the plan
// looks ahead up to maxBatch-1 further offsets and extends the read to the
// farthest requested offset in that window. Interior offsets that were not
// requested get read anyway and are filtered out after decode. Offsets
// farther apart than the window are never merged.
func planRuns(offsets []uint16) []readRun {
	if len(offsets) == 0 {
		return nil
	}

	present := make(map[uint16]struct{}, len(offsets))
	for _, o := range offsets {
		present[o] = struct{}{}
	}
	uniq := make([]uint16, 0, len(present))
	for o := range present {
		uniq = append(uniq, o)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	runs := make([]readRun, 0, len(uniq))
	i := 0
	for i < len(uniq) {
		start := uniq[i]
		count := 1
		for j := 1; j < maxBatch; j++ {
			if _, ok := present[start+uint16(j)]; ok {
				count = j + 1
			}
		}
		runs = append(runs, readRun{start: start, count: count})
		end := start + uint16(count) - 1
		for i < len(uniq) && uniq[i] <= end {
			i++
		}
	}
	return runs
}
