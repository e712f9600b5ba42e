package health

import (
	"math"
	"testing"
)

func TestBeliefUpdateShiftsTowardNetwork(t *testing.T) {
	b := NewBeliefUpdater(nil, nil)
	// 428 (connection lost) is strong network evidence: 0.8 vs 0.2.
	got := b.Update(428)
	if got.NetworkIssue <= got.PlatformIssue {
		t.Fatalf("expected network belief to dominate, got %+v", got)
	}
	if math.Abs(got.NetworkIssue+got.PlatformIssue-1) > 1e-9 {
		t.Fatalf("posterior not normalized: %+v", got)
	}
}

func TestBeliefUpdateShiftsTowardPlatform(t *testing.T) {
	b := NewBeliefUpdater(nil, nil)
	// 440 (connection replaced) is strong platform evidence.
	got := b.Update(440)
	if got.PlatformIssue <= got.NetworkIssue {
		t.Fatalf("expected platform belief to dominate, got %+v", got)
	}
}

func TestUnseenReasonNeverCollapsesBelief(t *testing.T) {
	b := NewBeliefUpdater(nil, nil)
	for i := 0; i < 100; i++ {
		got := b.Update(999)
		if got.NetworkIssue == 0 || got.PlatformIssue == 0 {
			t.Fatalf("belief collapsed on unseen reason at step %d: %+v", i, got)
		}
	}
}

func TestZeroReasonIsNoOp(t *testing.T) {
	b := NewBeliefUpdater(nil, nil)
	before := b.Current()
	after := b.Update(0)
	if before != after {
		t.Fatalf("expected no-op for absent reason, got %+v -> %+v", before, after)
	}
}

func TestRepeatedLogoutConvergesOnPlatform(t *testing.T) {
	b := NewBeliefUpdater(nil, nil)
	var got Beliefs
	for i := 0; i < 5; i++ {
		got = b.Update(401)
	}
	if got.PlatformIssue < 0.99 {
		t.Fatalf("expected near-certain platform belief after repeated logouts, got %+v", got)
	}
}
