package core

import "gonum.org/v1/gonum/stat"

// Summary aggregates a session's pair results.
type Summary struct {
	Total      int
	Visible    int
	Occluded   int
	Degenerate int
	Failed     int

	// MeanVisibleFraction is averaged over classified pairs.
	MeanVisibleFraction float64
	// MeanObstructionRange is the mean observer-to-obstruction distance over
	// occluded pairs, in scene units.
	MeanObstructionRange float64
}

// Summarize counts pair statuses and computes the mean visible fraction and
// obstruction range. Means are zero when no pair contributes.
func Summarize(pairs []PairResult) Summary {
	s := Summary{Total: len(pairs)}
	var fractions, ranges []float64

	for _, p := range pairs {
		switch p.Status {
		case PairDegenerate:
			s.Degenerate++
			continue
		case PairFailed:
			s.Failed++
			continue
		}
		if p.Classification == nil {
			s.Failed++
			continue
		}
		c := p.Classification
		fractions = append(fractions, c.VisibleFraction())
		if c.Outcome == OutcomeOccluded {
			s.Occluded++
			ranges = append(ranges, c.Observer.DistanceTo(c.Obstruction.Point))
		} else {
			s.Visible++
		}
	}

	if len(fractions) > 0 {
		s.MeanVisibleFraction = stat.Mean(fractions, nil)
	}
	if len(ranges) > 0 {
		s.MeanObstructionRange = stat.Mean(ranges, nil)
	}
	return s
}
