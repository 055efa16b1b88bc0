package models

import (
	"math"
	"time"
)

const DateLayout = "2006-01-02"

// DateOnly drops the time of day, keeping the calendar date as UTC midnight.
func DateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func ParseDate(raw string) (time.Time, error) {
	t, err := time.Parse(DateLayout, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Nights counts billable nights between two dates, rounding partial days up.
func Nights(checkIn, checkOut time.Time) int {
	hours := DateOnly(checkOut).Sub(DateOnly(checkIn)).Hours()
	return int(math.Ceil(hours / 24))
}

// DaysUntil is the whole number of calendar days from today to date.
func DaysUntil(today, date time.Time) int {
	return int(DateOnly(date).Sub(DateOnly(today)).Hours() / 24)
}
