package grant

import "strings"

// Thresholds are the run-time filter criteria, loaded from settings at the
// start of every run.
type Thresholds struct {
	MinAmount       int64 `json:"min_amount"`
	MinDeadlineDays int   `json:"min_deadline_days"`
}

// Qualifies reports whether a record passes the amount and deadline gates.
// An unknown amount (0) or unknown deadline (-1) never disqualifies: an
// opportunity with an unparsed amount is worth a duplicate look, a silently
// dropped one is gone.
func Qualifies(r Record, th Thresholds) bool {
	if r.AnnualAmountMin != 0 && r.AnnualAmountMin < th.MinAmount {
		return false
	}
	if r.DeadlineDays >= 0 && r.DeadlineDays < th.MinDeadlineDays {
		return false
	}
	return true
}

// Relevant reports whether a polled record looks grant-related at all:
// its title or description must contain at least one configured keyword.
// Curated catalog records skip the check, they are relevant by construction.
func Relevant(r Record, keywords []string) bool {
	if r.Origin != OriginPolled {
		return true
	}
	text := strings.ToLower(r.Title + " " + r.Description)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(text, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
