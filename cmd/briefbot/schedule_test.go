package main

import "testing"

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "15m", want: "@every 15m0s"},
		{in: "@every 30m", want: "@every 30m"},
		{in: "@hourly", want: "@hourly"},
		{in: "08:00", want: "0 8 * * *"},
		{in: "23:59", want: "59 23 * * *"},
		{in: "*/15 * * * *", want: "*/15 * * * *"},
		{in: "", wantErr: true},
		{in: "30s", wantErr: true},
		{in: "25:00", wantErr: true},
		{in: "banana", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parseSchedule(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("parseSchedule(%q): expected error, got %q", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Fatalf("parseSchedule(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("parseSchedule(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDefaultSchedulesParse(t *testing.T) {
	t.Parallel()
	for job, spec := range defaultSchedules {
		if _, err := parseSchedule(spec); err != nil {
			t.Fatalf("default schedule for %s: %v", job, err)
		}
	}
}
