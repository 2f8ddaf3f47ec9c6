package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"grantwatch/internal/grant"
)

// Feed is a polled RSS/Atom source. Feed items arrive as free text; the
// keyword relevance gate in the filter decides whether they are grant-related
// at all.
type Feed struct {
	name   string
	url    string
	parser *gofeed.Parser
}

// NewFeed builds a polled source for one feed URL. An empty name falls back
// to the feed's host. The per-gather timeout is enforced by the caller's
// context.
func NewFeed(name, feedURL string, client *http.Client) *Feed {
	if name == "" {
		if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
			name = u.Host
		} else {
			name = feedURL
		}
	}
	parser := gofeed.NewParser()
	parser.Client = client
	parser.UserAgent = "grantwatch/1.0"
	return &Feed{name: name, url: feedURL, parser: parser}
}

func (f *Feed) Name() string  { return f.name }
func (f *Feed) Curated() bool { return false }

// Gather fetches and parses the feed, mapping items to candidate records.
// Amounts are extracted opportunistically from the item text; an item with no
// parseable amount keeps zero, which the filter treats as "unknown, keep".
func (f *Feed) Gather(ctx context.Context) ([]grant.Record, error) {
	feed, err := f.parser.ParseURLWithContext(f.url, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", f.url, err)
	}
	now := time.Now()
	records := make([]grant.Record, 0, len(feed.Items))
	for _, item := range feed.Items {
		title := strings.TrimSpace(item.Title)
		if title == "" {
			continue
		}
		desc := strings.TrimSpace(item.Description)
		amount := ExtractAmount(title + " " + desc)
		amountText := "Уточняется"
		if amount > 0 {
			amountText = fmt.Sprintf("%d млн руб.", amount/1_000_000)
		}
		observed := now
		if item.PublishedParsed != nil {
			observed = *item.PublishedParsed
		}
		records = append(records, grant.Record{
			Title:           title,
			Organizer:       f.name,
			AmountText:      amountText,
			AnnualAmountMin: amount,
			Description:     truncate(desc, 300),
			Direction:       "Актуальный конкурс",
			SourceURL:       item.Link,
			DeadlineInfo:    item.Published,
			DeadlineDays:    -1,
			ProjectDuration: "Уточняется",
			Origin:          grant.OriginPolled,
			SourceName:      f.name,
			ObservedAt:      observed,
		})
	}
	return records, nil
}

var amountPatterns = []struct {
	re   *regexp.Regexp
	mult int64
}{
	{regexp.MustCompile(`(\d[\d\s]*)\s*млрд`), 1_000_000_000},
	{regexp.MustCompile(`(\d[\d\s]*)\s*млн`), 1_000_000},
}

// ExtractAmount pulls the first money figure out of free text, in base
// currency units. Returns 0 when nothing parseable is found.
func ExtractAmount(text string) int64 {
	t := strings.ToLower(text)
	for _, p := range amountPatterns {
		m := p.re.FindStringSubmatch(t)
		if m == nil {
			continue
		}
		digits := strings.Join(strings.Fields(m[1]), "")
		var n int64
		for _, r := range digits {
			n = n*10 + int64(r-'0')
		}
		if n > 0 {
			return n * p.mult
		}
	}
	return 0
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
