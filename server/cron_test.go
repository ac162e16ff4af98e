package server

import (
	"testing"
	"time"
)

func TestNextCronRunUTC(t *testing.T) {
	tests := []struct {
		expr string
		now  time.Time
		want time.Time
	}{
		{"*/5 * * * *", time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC), time.Date(2026, 2, 20, 10, 5, 0, 0, time.UTC)},
		{"0 3 * * *", time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC), time.Date(2026, 2, 21, 3, 0, 0, 0, time.UTC)},
		{"@daily", time.Date(2026, 2, 20, 10, 2, 0, 0, time.UTC), time.Date(2026, 2, 21, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		got, err := nextCronRunUTC(tt.expr, tt.now)
		if err != nil {
			t.Fatalf("nextCronRunUTC(%q) error: %v", tt.expr, err)
		}
		if !got.Equal(tt.want) {
			t.Errorf("nextCronRunUTC(%q) = %s, want %s", tt.expr, got.Format(time.RFC3339), tt.want.Format(time.RFC3339))
		}
	}
}

func TestValidateSchedule_Rejects(t *testing.T) {
	for _, expr := range []string{
		"",
		"CRON_TZ=America/Los_Angeles 0 3 * * *",
		"TZ=UTC 0 3 * * *",
		"0 0 3 * * *",
		"every day",
	} {
		if err := ValidateSchedule(expr); err == nil {
			t.Errorf("ValidateSchedule(%q) expected error", expr)
		}
	}
}
