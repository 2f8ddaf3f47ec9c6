package grant

import (
	"sort"
	"strings"
)

// Rating weights, in half-point units so the 1.5-point tiers stay exact.
// The relative weighting is policy: amount dominates, deadline margin and
// thematic fit follow.
const (
	halvesAmountHigh = 4 // >= 30M/year
	halvesAmountMid  = 3 // >= 15M/year
	halvesAmountLow  = 2 // >= 5M/year

	halvesDeadlineFar  = 3 // >= 30 days
	halvesDeadlineNear = 2 // >= 14 days

	halvesDirection = 3 // matches a priority direction
)

// Rate scores a record 0..5. The sum of half-points is truncated, never
// rounded up.
func Rate(r Record, priorityDirections []string) int {
	halves := 0

	switch {
	case r.AnnualAmountMin >= 30_000_000:
		halves += halvesAmountHigh
	case r.AnnualAmountMin >= 15_000_000:
		halves += halvesAmountMid
	case r.AnnualAmountMin >= 5_000_000:
		halves += halvesAmountLow
	}

	switch {
	case r.DeadlineDays >= 30:
		halves += halvesDeadlineFar
	case r.DeadlineDays >= 14:
		halves += halvesDeadlineNear
	}

	direction := strings.ToLower(r.Direction)
	for _, d := range priorityDirections {
		if d == "" {
			continue
		}
		if strings.Contains(direction, strings.ToLower(d)) {
			halves += halvesDirection
			break
		}
	}

	rating := halves / 2
	if rating > 5 {
		rating = 5
	}
	return rating
}

// Order rates and sorts records descending by (rating, annual amount).
// The sort is stable, so equal records keep their input order.
func Order(records []Record, priorityDirections []string) []Ranked {
	ranked := make([]Ranked, 0, len(records))
	for _, r := range records {
		ranked = append(ranked, Ranked{Record: r, Rating: Rate(r, priorityDirections)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Rating != ranked[j].Rating {
			return ranked[i].Rating > ranked[j].Rating
		}
		return ranked[i].AnnualAmountMin > ranked[j].AnnualAmountMin
	})
	for i := range ranked {
		ranked[i].Position = i + 1
	}
	return ranked
}
