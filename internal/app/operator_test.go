package app

import (
	"context"
	"strings"
	"testing"
)

func TestParseOperatorCommand(t *testing.T) {
	cases := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/status", "status", true},
		{"  /PAUSE  ", "pause", true},
		{"/resume now please", "resume", true},
		{"status", "", false},
		{"", "", false},
		{"   ", "", false},
	}
	for _, tc := range cases {
		cmd, ok := parseOperatorCommand(tc.text)
		if ok != tc.ok || cmd != tc.cmd {
			t.Fatalf("parseOperatorCommand(%q) = (%q, %t), expected (%q, %t)", tc.text, cmd, ok, tc.cmd, tc.ok)
		}
	}
}

func TestOperatorPauseResume(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()
	meta := operatorMeta{UpdateID: 1, UserID: 42, ChatID: 7, Raw: "/pause"}

	resp := a.handleOperatorCommand(ctx, "pause", meta)
	if resp != "trading paused" {
		t.Fatalf("expected trading paused, got %q", resp)
	}
	if !a.isPaused() {
		t.Fatalf("expected paused state")
	}

	resp = a.handleOperatorCommand(ctx, "pause", meta)
	if resp != "trading already paused" {
		t.Fatalf("expected trading already paused, got %q", resp)
	}

	resp = a.handleOperatorCommand(ctx, "resume", meta)
	if resp != "trading resumed" {
		t.Fatalf("expected trading resumed, got %q", resp)
	}
	if a.isPaused() {
		t.Fatalf("expected resumed state")
	}

	resp = a.handleOperatorCommand(ctx, "resume", meta)
	if resp != "trading already active" {
		t.Fatalf("expected trading already active, got %q", resp)
	}
}

func TestOperatorStatusListsPositions(t *testing.T) {
	a, hl, bn := newTestApp(t)
	hl.setRate(0.0005)
	bn.setRate(0.0002)
	if err := a.opportunityTick(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status := a.operatorStatus()
	if !strings.Contains(status, "active_positions: 1") {
		t.Fatalf("expected status to report one active position:\n%s", status)
	}
	if !strings.Contains(status, "daily_notional_used: 10000.00 / 50000.00") {
		t.Fatalf("expected status to report capacity usage:\n%s", status)
	}
	if !strings.Contains(status, "long hyperliquid / short binance") {
		t.Fatalf("expected status to describe the hedge legs:\n%s", status)
	}
}

func TestOperatorUnknownCommandShowsHelp(t *testing.T) {
	a, _, _ := newTestApp(t)
	resp := a.handleOperatorCommand(context.Background(), "selfdestruct", operatorMeta{})
	if !strings.Contains(resp, "/status") || !strings.Contains(resp, "/pause") {
		t.Fatalf("expected help text, got %q", resp)
	}
}

func TestOperatorOffsetRoundTrip(t *testing.T) {
	a, _, _ := newTestApp(t)
	ctx := context.Background()

	if offset := a.loadOperatorOffset(ctx); offset != 0 {
		t.Fatalf("expected zero initial offset, got %d", offset)
	}
	a.saveOperatorOffset(ctx, 91)
	if offset := a.loadOperatorOffset(ctx); offset != 91 {
		t.Fatalf("expected offset 91, got %d", offset)
	}
}
