package render

import (
	"bytes"
	"encoding/csv"
	"strconv"

	"grantwatch/internal/grant"
)

var tableHeader = []string{
	"index", "title", "organizer", "amount", "direction",
	"deadline_info", "project_duration", "rating", "details_url",
}

// Table renders the ranked list as UTF-8 CSV, one row per grant. An empty
// list yields a header-only table.
func Table(ranked []grant.Ranked) []byte {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(tableHeader)
	for _, r := range ranked {
		_ = w.Write([]string{
			strconv.Itoa(r.Position),
			r.Title,
			r.Organizer,
			r.AmountText,
			r.Direction,
			r.DeadlineInfo,
			r.ProjectDuration,
			strconv.Itoa(r.Rating),
			r.SourceURL,
		})
	}
	w.Flush()
	return buf.Bytes()
}
