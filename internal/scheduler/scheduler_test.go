package scheduler

import (
	"testing"
	"time"
)

func TestParseScheduleTime_Valid(t *testing.T) {
	tests := []struct {
		input string
		want  ScheduleTime
	}{
		{"05:00", ScheduleTime{5, 0}},
		{"23:59", ScheduleTime{23, 59}},
		{"0:0", ScheduleTime{0, 0}},
		{"14:30", ScheduleTime{14, 30}},
	}

	for _, tt := range tests {
		got, err := ParseScheduleTime(tt.input)
		if err != nil {
			t.Errorf("ParseScheduleTime(%q) failed: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseScheduleTime(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseScheduleTime_Invalid(t *testing.T) {
	for _, input := range []string{"", "25:00", "12:75", "-1:30", "noon"} {
		if _, err := ParseScheduleTime(input); err == nil {
			t.Errorf("ParseScheduleTime(%q) expected error, got nil", input)
		}
	}
}

func TestScheduleTime_String(t *testing.T) {
	if got := (ScheduleTime{5, 7}).String(); got != "05:07" {
		t.Errorf("String() = %q, want %q", got, "05:07")
	}
}

func TestNew_RequiresScheduleTimes(t *testing.T) {
	_, err := New(Config{WorkerCount: 1, QueueSize: 1})
	if err == nil {
		t.Error("New() expected error with no schedule times, got nil")
	}
}

func TestShouldRun_MatchesOncePerMinute(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"14:30"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	at := time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	if !s.shouldRun(at) {
		t.Error("shouldRun() = false at scheduled time")
	}
	// Same minute must not fire twice.
	if s.shouldRun(at.Add(20 * time.Second)) {
		t.Error("shouldRun() fired twice within one minute")
	}
	// A different day at the same time fires again.
	if !s.shouldRun(at.AddDate(0, 0, 1)) {
		t.Error("shouldRun() = false on the next day")
	}
}

func TestShouldRun_NonMatchingTime(t *testing.T) {
	s, err := New(Config{
		ScheduleTimes: []string{"05:00", "20:00"},
		WorkerCount:   1,
		QueueSize:     1,
	})
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}

	if s.shouldRun(time.Date(2026, 8, 29, 12, 15, 0, 0, time.UTC)) {
		t.Error("shouldRun() = true at unscheduled time")
	}
}
