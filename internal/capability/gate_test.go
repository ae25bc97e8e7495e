package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/kalambet/dreamhouse/internal/generation"
)

type mockGranter struct {
	hasGrantFn     func(ctx context.Context) (bool, error)
	requestGrantFn func(ctx context.Context) error
	probes         atomic.Int32
}

func (m *mockGranter) HasGrant(ctx context.Context) (bool, error) {
	m.probes.Add(1)
	if m.hasGrantFn != nil {
		return m.hasGrantFn(ctx)
	}
	return false, nil
}

func (m *mockGranter) RequestGrant(ctx context.Context) error {
	if m.requestGrantFn != nil {
		return m.requestGrantFn(ctx)
	}
	return nil
}

func TestGateStartsUnknown(t *testing.T) {
	g := NewGate(&mockGranter{})
	if s := g.State(); s != StateUnknown {
		t.Errorf("State() = %q, want %q", s, StateUnknown)
	}
	if g.Available() {
		t.Error("unknown gate should not be available")
	}
}

func TestProbeIdempotent(t *testing.T) {
	m := &mockGranter{hasGrantFn: func(context.Context) (bool, error) { return true, nil }}
	g := NewGate(m)

	for i := 0; i < 3; i++ {
		s, err := g.Probe(context.Background())
		if err != nil {
			t.Fatalf("Probe #%d: %v", i, err)
		}
		if s != StateAvailable {
			t.Errorf("Probe #%d = %q, want %q", i, s, StateAvailable)
		}
	}
	if n := m.probes.Load(); n != 3 {
		t.Errorf("HasGrant calls = %d, want 3", n)
	}

	m.hasGrantFn = func(context.Context) (bool, error) { return false, nil }
	if s, _ := g.Probe(context.Background()); s != StateUnavailable {
		t.Errorf("Probe after revocation = %q, want %q", s, StateUnavailable)
	}
	if s, _ := g.Probe(context.Background()); s != StateUnavailable {
		t.Errorf("repeat Probe = %q, want %q", s, StateUnavailable)
	}
}

func TestProbeErrorKeepsState(t *testing.T) {
	m := &mockGranter{hasGrantFn: func(context.Context) (bool, error) { return true, nil }}
	g := NewGate(m)
	g.Probe(context.Background())

	m.hasGrantFn = func(context.Context) (bool, error) { return false, errors.New("host unavailable") }
	s, err := g.Probe(context.Background())
	if err == nil {
		t.Fatal("expected probe error")
	}
	if s != StateAvailable || g.State() != StateAvailable {
		t.Errorf("state after failed probe = %q, want %q", g.State(), StateAvailable)
	}
}

func TestRequestGrantIsOptimistic(t *testing.T) {
	g := NewGate(&mockGranter{})
	if err := g.RequestGrant(context.Background()); err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}
	if !g.Available() {
		t.Fatal("gate should be available right after a grant")
	}

	// The first premium call later reveals the credential is bad.
	rejected := fmt.Errorf("starting video: %w", generation.ErrCredentialRejected)
	if !g.ObserveError(generation.Fail(generation.KindVideo, "Kitchen", rejected)) {
		t.Fatal("ObserveError should report demotion")
	}
	if s := g.State(); s != StateUnavailable {
		t.Errorf("State() = %q, want %q", s, StateUnavailable)
	}
}

func TestRequestGrantFailure(t *testing.T) {
	g := NewGate(&mockGranter{requestGrantFn: func(context.Context) error { return errors.New("dismissed") }})
	if err := g.RequestGrant(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if s := g.State(); s != StateUnknown {
		t.Errorf("State() = %q, want %q", s, StateUnknown)
	}
}

func TestObserveErrorIgnoresOtherErrors(t *testing.T) {
	g := NewGate(&mockGranter{})
	g.RequestGrant(context.Background())
	if g.ObserveError(errors.New("timeout")) || g.ObserveError(nil) {
		t.Error("ObserveError demoted on a non-credential error")
	}
	if !g.Available() {
		t.Error("gate should still be available")
	}
}

func TestDemotionSurvivesProbeUntilRegrant(t *testing.T) {
	m := &mockGranter{hasGrantFn: func(context.Context) (bool, error) { return true, nil }}
	g := NewGate(m)
	g.Probe(context.Background())

	rejected := fmt.Errorf("polling video: %w", generation.ErrCredentialRejected)
	g.ObserveError(rejected)

	// The host still holds the rejected key.
	if s, err := g.Probe(context.Background()); err != nil || s != StateUnavailable {
		t.Fatalf("Probe after rejection = %q, %v; want %q", s, err, StateUnavailable)
	}
	if g.Available() {
		t.Error("rejected credential re-promoted by Probe")
	}

	if err := g.RequestGrant(context.Background()); err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}
	if s, _ := g.Probe(context.Background()); s != StateAvailable {
		t.Errorf("Probe after new grant = %q, want %q", s, StateAvailable)
	}
}

func TestDemoteDuringProbeWins(t *testing.T) {
	var g *Gate
	g = NewGate(&mockGranter{hasGrantFn: func(context.Context) (bool, error) {
		// A rejection lands after the host answered but before the answer is recorded.
		g.Demote()
		return true, nil
	}})

	s, err := g.Probe(context.Background())
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if s != StateUnavailable || g.State() != StateUnavailable {
		t.Errorf("Probe = %q, State() = %q; want %q", s, g.State(), StateUnavailable)
	}
}

func TestGateConcurrentAccess(t *testing.T) {
	g := NewGate(&mockGranter{hasGrantFn: func(context.Context) (bool, error) { return true, nil }})
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(3)
		go func() { defer wg.Done(); g.Probe(context.Background()) }()
		go func() { defer wg.Done(); g.Demote() }()
		go func() { defer wg.Done(); _ = g.State() }()
	}
	wg.Wait()
	if s := g.State(); s != StateAvailable && s != StateUnavailable {
		t.Errorf("State() = %q after concurrent access", s)
	}
}

type memSecrets map[string]string

func (m memSecrets) Get(account string) (string, error) {
	v, ok := m[account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m memSecrets) Set(account, value string) error {
	m[account] = value
	return nil
}

func TestSecretGranter(t *testing.T) {
	store := memSecrets{}
	g := NewSecretGranter(store, "video_api_key")

	ok, err := g.HasGrant(context.Background())
	if err != nil || ok {
		t.Fatalf("HasGrant on empty store = %v, %v", ok, err)
	}
	if err := g.RequestGrant(context.Background()); !errors.Is(err, ErrNoCredential) {
		t.Errorf("RequestGrant without credential = %v, want ErrNoCredential", err)
	}

	ctx := WithCredential(context.Background(), "  secret-key \n")
	if err := g.RequestGrant(ctx); err != nil {
		t.Fatalf("RequestGrant: %v", err)
	}
	if store["video_api_key"] != "secret-key" {
		t.Errorf("stored = %q", store["video_api_key"])
	}
	if ok, _ := g.HasGrant(context.Background()); !ok {
		t.Error("HasGrant should report the stored credential")
	}
	key, err := g.Key(context.Background())
	if err != nil || key != "secret-key" {
		t.Errorf("Key() = %q, %v", key, err)
	}
}
