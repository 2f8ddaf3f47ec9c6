package grant

import "testing"

var testThresholds = Thresholds{MinAmount: 5_000_000, MinDeadlineDays: 14}

func TestQualifiesAmountBoundary(t *testing.T) {
	cases := []struct {
		name   string
		amount int64
		want   bool
	}{
		{"exactly at threshold", 5_000_000, true},
		{"one rouble below", 4_999_999, false},
		{"unknown amount always passes", 0, true},
		{"well above", 30_000_000, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := Record{Title: "x", AnnualAmountMin: tc.amount, DeadlineDays: -1}
			if got := Qualifies(r, testThresholds); got != tc.want {
				t.Fatalf("amount %d: expected %v, got %v", tc.amount, tc.want, got)
			}
		})
	}
}

func TestQualifiesDeadline(t *testing.T) {
	r := Record{Title: "x", AnnualAmountMin: 10_000_000}

	r.DeadlineDays = 14
	if !Qualifies(r, testThresholds) {
		t.Fatalf("deadline exactly at threshold should qualify")
	}
	r.DeadlineDays = 13
	if Qualifies(r, testThresholds) {
		t.Fatalf("deadline below threshold should not qualify")
	}
	r.DeadlineDays = -1
	if !Qualifies(r, testThresholds) {
		t.Fatalf("unknown deadline should qualify")
	}
}

func TestQualifiesIsPure(t *testing.T) {
	r := Record{Title: "x", AnnualAmountMin: 5_000_000, DeadlineDays: 20}
	first := Qualifies(r, testThresholds)
	second := Qualifies(r, testThresholds)
	if first != second {
		t.Fatalf("qualifies must be deterministic")
	}
}

func TestRelevantKeywordGate(t *testing.T) {
	keywords := []string{"грант", "конкурс"}

	polled := Record{Title: "Открыт конкурс проектов", Origin: OriginPolled}
	if !Relevant(polled, keywords) {
		t.Fatalf("polled record with keyword should be relevant")
	}

	polled.Title = "Новости института"
	polled.Description = "Состоялась конференция"
	if Relevant(polled, keywords) {
		t.Fatalf("polled record without keywords should be discarded")
	}

	// Keyword match is case-insensitive.
	polled.Description = "объявлен ГРАНТ на исследования"
	if !Relevant(polled, keywords) {
		t.Fatalf("keyword match should ignore case")
	}

	static := Record{Title: "Новости института", Origin: OriginStatic}
	if !Relevant(static, keywords) {
		t.Fatalf("curated records skip the keyword gate")
	}
}
