package eval

// Range is a half-open index range [Start, End) over the caller's request
// slice.
type Range struct {
	Start int
	End   int
}

// Len returns the number of indices covered by the range.
func (r Range) Len() int { return r.End - r.Start }

// Split is one coarse partition of a request collection, carrying the
// fixed-size batches that cover it.
type Split struct {
	Range
	Batches []Range
}

// Plan partitions a request collection into contiguous splits and, within
// each split, into contiguous batches. Splits preserve input order: the
// planner never reorders requests, so end-to-end result order equals input
// order. Any length-based reordering for batching efficiency must happen
// upstream, before the request collection reaches the engine.
type Plan struct {
	Splits []Split
}

// NewPlan covers [0, n) with splitCount contiguous non-overlapping splits
// and batches of at most batchSize within each split. Splits may be empty
// when splitCount exceeds n; n = 0 yields a plan with no batches.
func NewPlan(n, splitCount, batchSize int) Plan {
	if splitCount < 1 {
		splitCount = 1
	}
	if batchSize < 1 {
		batchSize = 1
	}

	splits := make([]Split, 0, splitCount)
	base := n / splitCount
	extra := n % splitCount

	start := 0
	for i := 0; i < splitCount; i++ {
		size := base
		if i < extra {
			size++
		}
		end := start + size
		splits = append(splits, Split{
			Range:   Range{Start: start, End: end},
			Batches: batchRanges(start, end, batchSize),
		})
		start = end
	}

	return Plan{Splits: splits}
}

// batchRanges slices [start, end) into consecutive ranges of at most size.
func batchRanges(start, end, size int) []Range {
	var batches []Range
	for b := start; b < end; b += size {
		e := b + size
		if e > end {
			e = end
		}
		batches = append(batches, Range{Start: b, End: e})
	}
	return batches
}

// NumRequests returns the total number of indices covered by the plan.
func (p Plan) NumRequests() int {
	total := 0
	for _, s := range p.Splits {
		total += s.Len()
	}
	return total
}
