package pullpool

import (
	"testing"
	"time"
)

func TestDue(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name        string
		lastChecked time.Time
		interval    time.Duration
		want        bool
	}{
		{"never_checked", time.Time{}, time.Minute, true},
		{"interval_elapsed", now.Add(-2 * time.Minute), time.Minute, true},
		{"interval_just_elapsed", now.Add(-time.Minute - time.Millisecond), time.Minute, true},
		{"interval_not_elapsed", now.Add(-30 * time.Second), time.Minute, false},
		{"just_checked", now, time.Minute, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := due(tt.lastChecked, tt.interval, now); got != tt.want {
				t.Errorf("due() = %v, want %v", got, tt.want)
			}
		})
	}
}
