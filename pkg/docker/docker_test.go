package docker

import (
	"testing"
	"time"

	"github.com/moby/moby/api/types/container"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		names []string
		id    string
		want  string
	}{
		{[]string{"/web"}, "abc123", "web"},
		{[]string{"/web", "/alias"}, "abc123", "web"},
		{[]string{"/"}, "abc123", "abc123"},
		{nil, "abc123", "abc123"},
		{nil, "0123456789abcdef0123", "0123456789ab"},
	}
	for _, tt := range tests {
		got := displayName(tt.names, tt.id)
		if got != tt.want {
			t.Errorf("displayName(%v, %q) = %q, want %q", tt.names, tt.id, got, tt.want)
		}
	}
}

func TestSplitTimestamp(t *testing.T) {
	ts := time.Date(2024, 3, 1, 10, 30, 0, 123456789, time.UTC)

	gotTime, gotText := splitTimestamp("2024-03-01T10:30:00.123456789Z GET /health 200")
	if !gotTime.Equal(ts) {
		t.Errorf("time: got %v, want %v", gotTime, ts)
	}
	if gotText != "GET /health 200" {
		t.Errorf("text: got %q", gotText)
	}

	// A timestamped blank line keeps its empty payload.
	gotTime, gotText = splitTimestamp("2024-03-01T10:30:00.123456789Z ")
	if gotTime.IsZero() || gotText != "" {
		t.Errorf("blank payload: got time %v text %q", gotTime, gotText)
	}

	// Lines without a parseable prefix come back whole.
	for _, line := range []string{"no timestamp here", "word", ""} {
		gotTime, gotText = splitTimestamp(line)
		if !gotTime.IsZero() {
			t.Errorf("splitTimestamp(%q) time = %v, want zero", line, gotTime)
		}
		if gotText != line {
			t.Errorf("splitTimestamp(%q) text = %q", line, gotText)
		}
	}
}

func TestTailValue(t *testing.T) {
	tests := []struct {
		n    int
		want string
	}{
		{0, "all"},
		{-1, "all"},
		{200, "200"},
	}
	for _, tt := range tests {
		if got := tailValue(tt.n); got != tt.want {
			t.Errorf("tailValue(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestSinceValue(t *testing.T) {
	if got := sinceValue(time.Time{}); got != "" {
		t.Errorf("zero time: got %q, want empty", got)
	}

	ts := time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC)
	got := sinceValue(ts)
	parsed, err := time.Parse(time.RFC3339Nano, got)
	if err != nil {
		t.Fatalf("parse %q: %v", got, err)
	}
	if !parsed.Equal(ts) {
		t.Errorf("round trip: got %v, want %v", parsed, ts)
	}
}

func TestCPUPercent(t *testing.T) {
	sample := func(total, pretotal, sys, presys uint64, online uint32, percpu []uint64) *container.StatsResponse {
		var s container.StatsResponse
		s.CPUStats.CPUUsage.TotalUsage = total
		s.CPUStats.CPUUsage.PercpuUsage = percpu
		s.CPUStats.SystemUsage = sys
		s.CPUStats.OnlineCPUs = online
		s.PreCPUStats.CPUUsage.TotalUsage = pretotal
		s.PreCPUStats.SystemUsage = presys
		return &s
	}

	tests := []struct {
		name string
		s    *container.StatsResponse
		want float64
	}{
		{"online cpus", sample(400, 200, 2000, 1000, 4, nil), 80},
		{"percpu fallback", sample(400, 200, 2000, 1000, 0, []uint64{1, 2}), 40},
		{"no cpu info", sample(400, 200, 2000, 1000, 0, nil), 20},
		{"no system delta", sample(400, 200, 1000, 1000, 4, nil), 0},
		{"counter reset", sample(100, 200, 2000, 1000, 4, nil), 0},
	}
	for _, tt := range tests {
		if got := cpuPercent(tt.s); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestMemUsage(t *testing.T) {
	tests := []struct {
		name  string
		usage uint64
		stats map[string]uint64
		want  uint64
	}{
		{"cgroup v2", 1000, map[string]uint64{"inactive_file": 200}, 800},
		{"cgroup v1", 1000, map[string]uint64{"total_inactive_file": 300}, 700},
		{"v2 preferred", 1000, map[string]uint64{"inactive_file": 200, "total_inactive_file": 300}, 800},
		{"cache exceeds usage", 100, map[string]uint64{"inactive_file": 200}, 100},
		{"no stats", 1000, nil, 1000},
	}
	for _, tt := range tests {
		m := &container.MemoryStats{Usage: tt.usage, Stats: tt.stats}
		if got := memUsage(m); got != tt.want {
			t.Errorf("%s: got %d, want %d", tt.name, got, tt.want)
		}
	}
}
