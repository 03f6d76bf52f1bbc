package model

import (
	"testing"

	"github.com/modoterra/wharf/pkg/logs/highlight"
)

func TestSplitSelection(t *testing.T) {
	tests := []struct {
		name             string
		seg              styledSeg
		selFrom, selTo   int
		want             int
		wantSelAt        int
		wantSelFromTo    [2]int
		wantNoneSelected bool
	}{
		{
			name: "no selection", seg: styledSeg{from: 0, to: 10},
			selFrom: -1, selTo: -1, want: 1, wantNoneSelected: true,
		},
		{
			name: "selection outside segment", seg: styledSeg{from: 0, to: 5},
			selFrom: 7, selTo: 9, want: 1, wantNoneSelected: true,
		},
		{
			name: "selection covers segment", seg: styledSeg{from: 2, to: 5},
			selFrom: 0, selTo: 10, want: 1, wantSelAt: 0, wantSelFromTo: [2]int{2, 5},
		},
		{
			name: "selection splits middle", seg: styledSeg{from: 0, to: 10},
			selFrom: 3, selTo: 6, want: 3, wantSelAt: 1, wantSelFromTo: [2]int{3, 6},
		},
		{
			name: "selection at head", seg: styledSeg{from: 0, to: 10},
			selFrom: 0, selTo: 4, want: 2, wantSelAt: 0, wantSelFromTo: [2]int{0, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parts := splitSelection(tt.seg, tt.selFrom, tt.selTo)
			if len(parts) != tt.want {
				t.Fatalf("expected %d parts, got %d: %+v", tt.want, len(parts), parts)
			}
			if tt.wantNoneSelected {
				for _, p := range parts {
					if p.sel {
						t.Errorf("expected no selected parts, got %+v", p)
					}
				}
				return
			}
			p := parts[tt.wantSelAt]
			if !p.sel || p.from != tt.wantSelFromTo[0] || p.to != tt.wantSelFromTo[1] {
				t.Errorf("expected selected part %v, got %+v", tt.wantSelFromTo, p)
			}
			// bounds must tile the segment without gaps
			pos := tt.seg.from
			for _, p := range parts {
				if p.from != pos {
					t.Errorf("gap at %d: %+v", pos, parts)
				}
				pos = p.to
			}
			if pos != tt.seg.to {
				t.Errorf("parts end at %d, segment at %d", pos, tt.seg.to)
			}
		})
	}
}

func TestStylizePreservesText(t *testing.T) {
	// Under the test environment's color profile lipgloss renders without
	// escape sequences, so styled output must equal the input text.
	text := `2024-01-15T10:30:00Z ERROR request failed code=500`
	spans := highlight.Highlight(text)
	if got := Stylize(text, spans); got != text {
		t.Errorf("expected text preserved, got %q", got)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in     string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly-10", 10, "exactly-10"},
		{"this is too long", 8, "this is…"},
		{"x", 0, ""},
		{"héllo wörld", 6, "héllo…"},
	}
	for _, tt := range tests {
		if got := truncate(tt.in, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.in, tt.maxLen, got, tt.want)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   uint64
		want string
	}{
		{512, "512B"},
		{2048, "2.0KiB"},
		{3 << 20, "3.0MiB"},
		{1 << 30, "1.0GiB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
