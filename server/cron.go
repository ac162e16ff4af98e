package server

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention schedules use the classic five-field syntax, always in UTC.
var retentionCronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is an acceptable retention schedule.
func ValidateSchedule(expr string) error {
	_, err := parseCronExpressionUTC(expr)
	return err
}

func nextCronRunUTC(expr string, now time.Time) (time.Time, error) {
	schedule, err := parseCronExpressionUTC(expr)
	if err != nil {
		return time.Time{}, err
	}
	return schedule.Next(now.UTC()), nil
}

func parseCronExpressionUTC(expr string) (cron.Schedule, error) {
	clean := strings.TrimSpace(expr)
	if clean == "" {
		return nil, fmt.Errorf("retention schedule is required")
	}
	if strings.Contains(strings.ToUpper(clean), "TZ=") {
		return nil, fmt.Errorf("retention schedule %q must not carry a timezone prefix; schedules run in UTC", clean)
	}
	schedule, err := retentionCronParser.Parse(clean)
	if err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", clean, err)
	}
	return schedule, nil
}
