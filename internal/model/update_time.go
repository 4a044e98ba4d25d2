package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/width"
)

// ErrInvalidUpdateTime is returned when an update time has no usable MM-DD prefix.
var ErrInvalidUpdateTime = errors.New("invalid update time")

// ParseMonthDay extracts month and day from a listing update time such as
// "02-15 10:00". Full-width digits and separators ("０２－１５") are folded
// to ASCII first.
func ParseMonthDay(updateTime string) (time.Month, int, error) {
	s := strings.TrimSpace(width.Narrow.String(updateTime))
	datePart, _, _ := strings.Cut(s, " ")

	mm, dd, ok := strings.Cut(datePart, "-")
	if !ok {
		return 0, 0, fmt.Errorf("%w: %q", ErrInvalidUpdateTime, updateTime)
	}
	month, err := strconv.Atoi(mm)
	if err != nil || month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("%w: bad month in %q", ErrInvalidUpdateTime, updateTime)
	}
	day, err := strconv.Atoi(dd)
	if err != nil || day < 1 || day > 31 {
		return 0, 0, fmt.Errorf("%w: bad day in %q", ErrInvalidUpdateTime, updateTime)
	}
	return time.Month(month), day, nil
}

// ResolveDate attaches a year to an update time. The current year of now is
// used unless the resulting date lies after today, in which case the listing
// entry is from last year. The result is midnight in now's location.
//
// With today 2024-01-10, "02-15 10:00" resolves to 2023-02-15 and
// "01-05 10:00" to 2024-01-05.
func ResolveDate(updateTime string, now time.Time) (time.Time, error) {
	month, day, err := ParseMonthDay(updateTime)
	if err != nil {
		return time.Time{}, err
	}
	today := truncateDay(now)

	year := today.Year()
	date, ok := makeDate(year, month, day, today.Location())
	if !ok || date.After(today) {
		date, ok = makeDate(year-1, month, day, today.Location())
	}
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidUpdateTime, updateTime)
	}
	return date, nil
}

// OneYearBefore returns today's date one year earlier. February 29 maps to
// February 28.
func OneYearBefore(now time.Time) time.Time {
	today := truncateDay(now)
	if d, ok := makeDate(today.Year()-1, today.Month(), today.Day(), today.Location()); ok {
		return d
	}
	return time.Date(today.Year()-1, today.Month(), today.Day()-1, 0, 0, 0, 0, today.Location())
}

// makeDate builds a date and reports false when time.Date had to normalize
// it (e.g. 02-29 in a non-leap year).
func makeDate(year int, month time.Month, day int, loc *time.Location) (time.Time, bool) {
	d := time.Date(year, month, day, 0, 0, 0, 0, loc)
	return d, d.Month() == month && d.Day() == day
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DefaultDateWindow is how far a record may be dated after its predecessor.
// Listing order is loose (pinned and bumped posts), so a record that moves
// forward in time by less than this keeps its own year. Only a larger jump is
// read as the feed crossing into an earlier year.
const DefaultDateWindow = 180 * 24 * time.Hour

// DateCorrector dates a newest-first sequence of update times. The first
// entry is resolved against now like ResolveDate. Every later entry gets the
// latest date with its month and day that is neither after today nor more
// than the window after its predecessor. This carries the year across a feed
// that spans more than twelve months, which ResolveDate alone cannot.
type DateCorrector struct {
	today  time.Time
	window time.Duration
	prev   time.Time
}

// NewDateCorrector creates a corrector anchored at now.
func NewDateCorrector(now time.Time, window time.Duration) *DateCorrector {
	if window < 0 {
		window = 0
	}
	return &DateCorrector{today: truncateDay(now), window: window}
}

// Next dates the following entry of the sequence. An unparseable entry
// returns an error and leaves the corrector unchanged.
func (d *DateCorrector) Next(updateTime string) (time.Time, error) {
	if d.prev.IsZero() {
		date, err := ResolveDate(updateTime, d.today)
		if err != nil {
			return time.Time{}, err
		}
		d.prev = date
		return date, nil
	}

	month, day, err := ParseMonthDay(updateTime)
	if err != nil {
		return time.Time{}, err
	}
	limit := d.prev.Add(d.window)
	if limit.After(d.today) {
		limit = d.today
	}
	// Four years always contain a valid February 29.
	for year := limit.Year(); year > limit.Year()-5; year-- {
		date, ok := makeDate(year, month, day, d.today.Location())
		if ok && !date.After(limit) {
			d.prev = date
			return date, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q is not a calendar date", ErrInvalidUpdateTime, updateTime)
}

// NewestIndex returns the index of the entry with the latest ResolveDate
// against now, or 0 when none parses. Pinned posts sit above the newest one.
func NewestIndex(comments []Comment, now time.Time) int {
	best, bestDate := 0, time.Time{}
	for i, c := range comments {
		date, err := ResolveDate(c.UpdateTime, now)
		if err == nil && date.After(bestDate) {
			best, bestDate = i, date
		}
	}
	return best
}
