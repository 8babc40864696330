package models

import (
	"testing"
	"time"
)

func TestValidateTimes(t *testing.T) {
	start := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name    string
		end     time.Time
		allDay  bool
		wantErr bool
	}{
		{"timed one hour", start.Add(time.Hour), false, false},
		{"timed zero length", start, false, true},
		{"timed end before start", start.Add(-time.Minute), false, true},
		{"all day same instant", start, true, false},
		{"all day next day", start.Add(24 * time.Hour), true, false},
		{"all day end before start", start.Add(-24 * time.Hour), true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := CachedEvent{StartAt: start, EndAt: tt.end, AllDay: tt.allDay}
			err := ev.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccountHasRefreshToken(t *testing.T) {
	empty := ""
	rt := "refresh"
	tests := []struct {
		name string
		tok  *string
		want bool
	}{
		{"nil", nil, false},
		{"empty", &empty, false},
		{"set", &rt, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := Account{RefreshToken: tt.tok}
			if got := a.HasRefreshToken(); got != tt.want {
				t.Fatalf("HasRefreshToken() = %v, want %v", got, tt.want)
			}
		})
	}
}
