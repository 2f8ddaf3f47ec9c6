package grant

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"strings"
	"time"
)

// Origin tells where a record came from.
type Origin string

const (
	OriginStatic Origin = "static"
	OriginPolled Origin = "polled"
)

// ErrInvalidRecord marks a candidate missing required identity fields.
var ErrInvalidRecord = errors.New("grant record missing required fields")

// Record is a candidate funding opportunity.
type Record struct {
	Title           string `yaml:"title"`
	Organizer       string `yaml:"organizer"`
	AmountText      string `yaml:"amount"`
	AnnualAmountMin int64  `yaml:"annual_amount_min"`
	Description     string `yaml:"description"`
	Direction       string `yaml:"direction"`
	SourceURL       string `yaml:"details_url"`
	DeadlineInfo    string `yaml:"deadline_info"`
	// DeadlineDays is the number of days left to apply, -1 when unknown.
	DeadlineDays    int    `yaml:"deadline_days"`
	ProjectDuration string `yaml:"project_duration"`
	Requirements    string `yaml:"special_requirements"`
	Eligibility     string `yaml:"eligible_participants"`

	Origin     Origin    `yaml:"-"`
	SourceName string    `yaml:"-"`
	ObservedAt time.Time `yaml:"-"`
}

// Ranked is a Record with its derived rating and position after ordering.
type Ranked struct {
	Record
	Rating   int
	Position int
}

// Fingerprint returns the deduplication key for a record: a hex md5 digest
// over the lower-cased, whitespace-normalized identity fields. Polled records
// without a stable amount field fall back to title plus source name, since
// feed entries rarely carry a parseable amount.
func Fingerprint(r Record) (string, error) {
	if strings.TrimSpace(r.Title) == "" {
		return "", ErrInvalidRecord
	}
	var key string
	if r.Origin == OriginPolled && strings.TrimSpace(r.AmountText) == "" {
		key = normalize(r.Title) + "_" + normalize(r.SourceName)
	} else {
		key = normalize(r.Title) + "_" + normalize(r.Organizer) + "_" + normalize(r.AmountText)
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:]), nil
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
