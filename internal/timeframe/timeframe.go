// Package timeframe provides date-range parsing and SQLite bucket expressions
// for report grouping.
package timeframe

import (
	"fmt"
	"time"
)

// BucketSize is the grouping granularity for report queries.
type BucketSize string

const (
	BucketDay   BucketSize = "day"
	BucketWeek  BucketSize = "week"
	BucketMonth BucketSize = "month"
)

// TimeFrame is a closed period between two points in time.
type TimeFrame struct {
	From time.Time
	To   time.Time
}

// New validates and builds a TimeFrame. From must not be after To.
func New(from, to time.Time) (*TimeFrame, error) {
	if from.After(to) {
		return nil, fmt.Errorf("fromTime must be before toTime")
	}
	return &TimeFrame{From: from, To: to}, nil
}

// ParseRange parses ISO dates (YYYY-MM-DD, or RFC 3339) into a TimeFrame.
// A date-only end is widened to the end of that day.
func ParseRange(startDate, endDate string) (*TimeFrame, error) {
	from, _, err := parseDate(startDate)
	if err != nil {
		return nil, fmt.Errorf("invalid startDate %q: %w", startDate, err)
	}
	to, toDateOnly, err := parseDate(endDate)
	if err != nil {
		return nil, fmt.Errorf("invalid endDate %q: %w", endDate, err)
	}
	if toDateOnly {
		to = to.Add(24*time.Hour - time.Second)
	}
	return New(from, to)
}

func parseDate(value string) (time.Time, bool, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t.UTC(), true, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, false, err
	}
	return t.UTC(), false, nil
}

// Midpoint returns the instant halfway through the frame, used by the
// trend analysis to split a range into two halves.
func (tf *TimeFrame) Midpoint() time.Time {
	return tf.From.Add(tf.To.Sub(tf.From) / 2)
}

// Days returns the number of whole UTC days the frame spans, minimum 1.
func (tf *TimeFrame) Days() int {
	days := int(tf.To.Sub(tf.From).Hours() / 24)
	if days < 1 {
		return 1
	}
	return days
}

// SQLiteBucketExpression returns the strftime expression that groups the
// given timestamp column at the requested granularity.
func SQLiteBucketExpression(column string, bucket BucketSize) (string, error) {
	switch bucket {
	case BucketDay:
		return fmt.Sprintf("strftime('%%Y-%%m-%%d', %s)", column), nil
	case BucketWeek:
		return fmt.Sprintf("strftime('%%Y-W%%W', %s)", column), nil
	case BucketMonth:
		return fmt.Sprintf("strftime('%%Y-%%m', %s)", column), nil
	default:
		return "", fmt.Errorf("unsupported bucket size: %s", bucket)
	}
}
