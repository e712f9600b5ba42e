package session

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestCreateConflictsWithoutSupersede(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	if _, err := r.Create("u1", "register", "ask_name", "m1", false); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := r.Create("u1", "menu", "root", "m2", false); err != ErrConflict {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected exactly one session, got %d", r.Len())
	}
}

func TestSupersedeReplacesWithoutExpiryNotice(t *testing.T) {
	var notices int32
	r := NewRegistry(time.Minute, func(*Session) { atomic.AddInt32(&notices, 1) })

	first, err := r.Create("u1", "menu", "root", "m1", false)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, err := r.Create("u1", "register", "ask_name", "m2", true)
	if err != nil {
		t.Fatalf("supersede create: %v", err)
	}
	if second.ID == first.ID {
		t.Fatal("expected a fresh session")
	}
	got, ok := r.Get("u1")
	if !ok || got.Command != "register" {
		t.Fatalf("expected register session active, got %+v ok=%v", got, ok)
	}
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&notices) != 0 {
		t.Fatal("superseded session must not emit an expiry notice")
	}
}

func TestAtMostOneSessionPerUser(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	users := []string{"a", "b", "c"}
	for _, u := range users {
		for i := 0; i < 5; i++ {
			r.Create(u, "register", "ask_name", "m", false)
			r.Create(u, "register", "ask_name", "m", true)
		}
	}
	if r.Len() != len(users) {
		t.Fatalf("expected %d sessions, got %d", len(users), r.Len())
	}
}

func TestTimeoutDeletesAndNotifies(t *testing.T) {
	expired := make(chan *Session, 1)
	r := NewRegistry(20*time.Millisecond, func(s *Session) { expired <- s })

	if _, err := r.Create("u1", "register", "ask_name", "m1", false); err != nil {
		t.Fatalf("create: %v", err)
	}

	select {
	case s := <-expired:
		if s.Owner != "u1" {
			t.Fatalf("expired wrong session: %+v", s)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout never fired")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry after expiry, got %d", r.Len())
	}
}

func TestLateReplyAfterTimeoutIsNoOp(t *testing.T) {
	expired := make(chan struct{}, 1)
	r := NewRegistry(10*time.Millisecond, func(*Session) { expired <- struct{}{} })

	r.Create("u1", "register", "ask_name", "m1", false)
	<-expired

	// The reply loses the race: the session is gone, nothing resurrects.
	if s, ok := r.Claim("u1", "m1"); ok {
		t.Fatalf("late reply claimed a dead session: %+v", s)
	}
	if r.Len() != 0 {
		t.Fatalf("late reply resurrected a session, registry len %d", r.Len())
	}
}

func TestClaimStopsTimerSoReplyWins(t *testing.T) {
	var notices int32
	r := NewRegistry(30*time.Millisecond, func(*Session) { atomic.AddInt32(&notices, 1) })

	r.Create("u1", "register", "ask_name", "m1", false)
	s, ok := r.Claim("u1", "m1")
	if !ok {
		t.Fatal("expected claim to succeed")
	}
	r.Delete(s.Owner)

	time.Sleep(80 * time.Millisecond)
	if atomic.LoadInt32(&notices) != 0 {
		t.Fatal("timer fired after a successful claim")
	}
}

func TestClaimRejectsWrongReplyTarget(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.Create("u1", "register", "ask_name", "m1", false)
	if _, ok := r.Claim("u1", "other-message"); ok {
		t.Fatal("claim must require the pending reply target")
	}
	// Session remains active and claimable.
	if _, ok := r.Claim("u1", "m1"); !ok {
		t.Fatal("session should still be claimable with the right target")
	}
}

func TestFiredTimerCannotKillClaimedSession(t *testing.T) {
	var notices int32
	r := NewRegistry(time.Minute, func(*Session) { atomic.AddInt32(&notices, 1) })

	s, _ := r.Create("u1", "register", "ask_name", "m1", false)
	staleID := s.ID

	if _, ok := r.Claim("u1", "m1"); !ok {
		t.Fatal("expected claim to succeed")
	}

	// Simulate the timer callback that fired just before Claim could stop
	// it: it runs with the pre-claim identity and must stand down.
	r.expire("u1", staleID)

	if _, ok := r.Get("u1"); !ok {
		t.Fatal("fired timer deleted a session the reply already claimed")
	}
	if atomic.LoadInt32(&notices) != 0 {
		t.Fatal("expiry notice emitted for a claimed session")
	}
}

func TestDuplicateReplyClaimsOnce(t *testing.T) {
	r := NewRegistry(time.Minute, nil)
	r.Create("u1", "register", "ask_name", "m1", false)

	s, ok := r.Claim("u1", "m1")
	if !ok {
		t.Fatal("first claim must succeed")
	}
	if _, ok := r.Claim("u1", "m1"); ok {
		t.Fatal("second reply to the same pending message claimed the session again")
	}

	// Advancing hands the session back; the next pending message is
	// claimable exactly once more.
	r.Advance(s, "ask_age", "m2")
	if _, ok := r.Claim("u1", "m2"); !ok {
		t.Fatal("session not claimable after advance")
	}
	if _, ok := r.Claim("u1", "m2"); ok {
		t.Fatal("advanced session claimed twice")
	}
}

func TestStaleTimerAfterAdvanceIsNoOp(t *testing.T) {
	expired := make(chan struct{}, 1)
	r := NewRegistry(30*time.Millisecond, func(*Session) { expired <- struct{}{} })

	s, _ := r.Create("u1", "register", "ask_name", "m1", false)
	staleID := s.ID
	if _, ok := r.Claim("u1", "m1"); !ok {
		t.Fatal("expected claim to succeed")
	}
	r.Advance(s, "ask_age", "m2")

	r.expire("u1", staleID)
	if _, ok := r.Get("u1"); !ok {
		t.Fatal("stale timer identity deleted an advanced session")
	}

	// The rearmed timer, carrying the current identity, still expires it.
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("rearmed expiry never fired")
	}
	if r.Len() != 0 {
		t.Fatalf("expected empty registry, got %d", r.Len())
	}
}

func TestAdvanceRearmsExpiry(t *testing.T) {
	expired := make(chan struct{}, 1)
	r := NewRegistry(40*time.Millisecond, func(*Session) { expired <- struct{}{} })

	s, _ := r.Create("u1", "register", "ask_name", "m1", false)
	time.Sleep(20 * time.Millisecond)
	r.Advance(s, "ask_age", "m2")

	// The original deadline passes without firing.
	select {
	case <-expired:
		t.Fatal("expiry fired despite Advance rearm")
	case <-time.After(30 * time.Millisecond):
	}

	// The rearmed deadline still fires eventually.
	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("rearmed expiry never fired")
	}

	if s.Step != "ask_age" || s.ReplyTo != "m2" {
		t.Fatalf("advance did not update session: %+v", s)
	}
}
