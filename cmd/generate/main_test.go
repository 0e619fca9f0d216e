package main

import (
	"testing"

	"studio/internal/poller"
)

func TestProgressLine(t *testing.T) {
	pct := 42
	got := progressLine("en", poller.Progress{Attempt: 3, MaxAttempts: 60, Percent: &pct})
	if got != "[3/60]  42% Generating..." {
		t.Fatalf("unexpected line %q", got)
	}
	got = progressLine("zh-Hant", poller.Progress{Attempt: 1, MaxAttempts: 5, Message: "queued behind 2 jobs"})
	if got != "[1/5] queued behind 2 jobs" {
		t.Fatalf("unexpected line %q", got)
	}
}

func TestSplitCSV(t *testing.T) {
	got := splitCSV(" neon, ,cyberpunk ,")
	if len(got) != 2 || got[0] != "neon" || got[1] != "cyberpunk" {
		t.Fatalf("unexpected split %v", got)
	}
	if splitCSV("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}
