// Package locator describes the remote scoreboard resource space and how to walk it.
package locator

import (
	"fmt"
	"strings"
	"time"

	"github.com/JakeFAU/ncaa-match-pipeline/internal/faults"
)

// DefaultBaseURL is the scoreboard feed root for soccer.
const DefaultBaseURL = "https://data.ncaa.com/casablanca/scoreboard/soccer"

// DateLayout is the calendar date format accepted on input.
const DateLayout = "2006-01-02"

// Gender selects the men's or women's feed.
type Gender string

// Supported genders.
const (
	Male   Gender = "male"
	Female Gender = "female"
)

// Division is the competition tier.
type Division string

// Supported divisions.
const (
	D1 Division = "d1"
	D2 Division = "d2"
	D3 Division = "d3"
)

// ParseGender trims, lowercases and validates a gender.
func ParseGender(raw string) (Gender, error) {
	g := strings.ToLower(strings.TrimSpace(raw))
	switch Gender(g) {
	case Male, Female:
		return Gender(g), nil
	case "":
		return "", faults.Validationf("gender cannot be empty")
	default:
		return "", faults.Validationf("invalid gender specified: expected '(male|female)' got '%s'", g)
	}
}

// ParseDivision trims, lowercases and validates a division.
func ParseDivision(raw string) (Division, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	switch Division(d) {
	case D1, D2, D3:
		return Division(d), nil
	case "":
		return "", faults.Validationf("division cannot be empty")
	default:
		return "", faults.Validationf("invalid division specified: expected '(d1|d2|d3)' got '%s'", d)
	}
}

// ParseDate parses a YYYY-MM-DD calendar date into UTC midnight.
func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, faults.Validationf("invalid date %q: expected YYYY-MM-DD", raw)
	}
	return t, nil
}

// Term returns the path term the feed uses for the gender.
func (g Gender) Term() string {
	if g == Male {
		return "men"
	}
	return "women"
}

// Locator identifies one remote scoreboard document.
type Locator struct {
	Gender   Gender
	Division Division
	Date     time.Time
}

// New validates the inputs and returns a Locator for that calendar date.
func New(gender, division string, date time.Time) (Locator, error) {
	g, err := ParseGender(gender)
	if err != nil {
		return Locator{}, err
	}
	d, err := ParseDivision(division)
	if err != nil {
		return Locator{}, err
	}
	if date.IsZero() {
		return Locator{}, faults.Validationf("the target date must be specified")
	}
	return Locator{Gender: g, Division: d, Date: truncateDay(date)}, nil
}

// Path is the locator's address relative to the gendered feed root.
func (l Locator) Path() string {
	return fmt.Sprintf("%s/%s/scoreboard.json", l.Division, l.Date.Format("2006/01/02"))
}

// ArchiveKey is a stable object key for the raw document.
func (l Locator) ArchiveKey() string {
	return fmt.Sprintf("%s/%s", l.Gender, l.Path())
}

func (l Locator) String() string {
	return fmt.Sprintf("%s/%s/%s", l.Gender, l.Division, l.Date.Format(DateLayout))
}

// URLBuilder maps locators onto concrete feed addresses.
type URLBuilder struct {
	base string
}

// NewURLBuilder returns a builder rooted at base (DefaultBaseURL when empty).
func NewURLBuilder(base string) URLBuilder {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return URLBuilder{base: base}
}

// URL renders {base}-{men|women}/{division}/{YYYY}/{MM}/{DD}/scoreboard.json.
func (b URLBuilder) URL(l Locator) string {
	return fmt.Sprintf("%s-%s/%s", b.base, l.Gender.Term(), l.Path())
}

// BuildURL validates the raw triple and renders its address. Validation
// failures are returned before any address is produced.
func (b URLBuilder) BuildURL(gender, division string, date time.Time) (string, error) {
	l, err := New(gender, division, date)
	if err != nil {
		return "", err
	}
	return b.URL(l), nil
}

// RecentDates returns today and yesterday, relative to entered, as YYYY-MM-DD.
func RecentDates(entered time.Time) (today string, yesterday string) {
	day := truncateDay(entered)
	return day.Format(DateLayout), day.AddDate(0, 0, -1).Format(DateLayout)
}

// Window returns the inclusive [end-lookbackDays, end] date range.
func Window(end time.Time, lookbackDays int) (time.Time, time.Time) {
	if lookbackDays < 0 {
		lookbackDays = 0
	}
	last := truncateDay(end)
	return last.AddDate(0, 0, -lookbackDays), last
}

func truncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
