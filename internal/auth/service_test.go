package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService(t *testing.T) (*Service, *testClock) {
	t.Helper()
	clock := newTestClock()
	svc, err := NewService(NewMemoryStore(WithMemoryClock(clock.Now)), "test-secret",
		WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, clock
}

func TestRegisterAndLogin(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, err := svc.Register(ctx, "Alice@Example.com", "s3cret")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if identity.Email != "alice@example.com" {
		t.Fatalf("email not normalized: %s", identity.Email)
	}
	if len(identity.Roles) != 1 || identity.Roles[0] != DefaultRole {
		t.Fatalf("unexpected roles: %v", identity.Roles)
	}

	pair, _, err := svc.Login(ctx, "alice@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	claims, err := svc.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if claims.Subject != identity.ID {
		t.Fatalf("subject = %s, want %s", claims.Subject, identity.ID)
	}
	if claims.Kind != KindAccess {
		t.Fatalf("kind = %s", claims.Kind)
	}

	if _, _, err := svc.Login(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("bad password err = %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("unknown email err = %v, want ErrUnauthorized", err)
	}
}

func TestRegisterRejectsDuplicateAndBadInput(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "bob@example.com", "pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := svc.Register(ctx, "bob@example.com", "pw"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("duplicate err = %v, want ErrAlreadyExists", err)
	}
	if _, err := svc.Register(ctx, "not-an-email", "pw"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("bad email err = %v, want ErrInvalidInput", err)
	}
	if _, err := svc.Register(ctx, "carol@example.com", "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank password err = %v, want ErrInvalidInput", err)
	}
}

func TestVerifyAccessRejectsRefreshToken(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh token accepted as access, err = %v", err)
	}
}

func TestVerifyAccessRejectsExpiredAndForged(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(16 * time.Minute)
	if _, err := svc.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token err = %v, want ErrInvalidToken", err)
	}

	other, err := NewService(NewMemoryStore(), "different-secret", WithClock(clock.Now))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	forged, err := other.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, forged.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("forged token err = %v, want ErrInvalidToken", err)
	}
	if _, err := svc.VerifyAccess(ctx, "not-a-jwt"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage token err = %v, want ErrInvalidToken", err)
	}
}

func TestRotateIsSingleUse(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	next, _, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("first Rotate: %v", err)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("rotation returned the same refresh token")
	}
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("second Rotate err = %v, want ErrInvalidToken", err)
	}
	// The replacement still works.
	if _, _, err := svc.Rotate(ctx, next.RefreshToken); err != nil {
		t.Fatalf("Rotate replacement: %v", err)
	}
}

func TestRotateConcurrentSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	const redeemers = 16
	var (
		wins int64
		wg   sync.WaitGroup
	)
	wg.Add(redeemers)
	for i := 0; i < redeemers; i++ {
		go func() {
			defer wg.Done()
			if _, _, err := svc.Rotate(ctx, pair.RefreshToken); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}
}

func TestRotatePicksUpRoleChanges(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.GrantRole(ctx, identity.ID, "analyst"); err != nil {
		t.Fatalf("GrantRole: %v", err)
	}

	next, _, err := svc.Rotate(ctx, pair.RefreshToken)
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	claims, err := svc.VerifyAccess(ctx, next.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	found := false
	for _, r := range claims.Roles {
		if r == "analyst" {
			found = true
		}
	}
	if !found {
		t.Fatalf("rotated access token missing granted role, roles = %v", claims.Roles)
	}
}

func TestRevokeAllInvalidatesOutstandingTokens(t *testing.T) {
	svc, clock := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	clock.Advance(time.Second)
	if err := svc.RevokeAll(ctx, identity.ID); err != nil {
		t.Fatalf("RevokeAll: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked access err = %v, want ErrInvalidToken", err)
	}
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked refresh err = %v, want ErrInvalidToken", err)
	}

	// Tokens issued after the watermark are unaffected.
	clock.Advance(time.Second)
	fresh, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, fresh.AccessToken); err != nil {
		t.Fatalf("fresh access after RevokeAll: %v", err)
	}
}

func TestRevokeTokenDenylistsSingleJTI(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := svc.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if err := svc.RevokeToken(ctx, claims.ID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.VerifyAccess(ctx, pair.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("revoked jti err = %v, want ErrInvalidToken", err)
	}
	// Other tokens of the same identity stay valid.
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); err != nil {
		t.Fatalf("Rotate after unrelated jti revocation: %v", err)
	}
}

func TestDisabledIdentityIsLockedOut(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	identity, _ := svc.Register(ctx, "alice@example.com", "pw")
	pair, err := svc.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := svc.SetStatus(ctx, identity.ID, StatusDisabled); err != nil {
		t.Fatalf("SetStatus: %v", err)
	}
	if _, _, err := svc.Login(ctx, "alice@example.com", "pw"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("disabled login err = %v, want ErrUnauthorized", err)
	}
	if _, _, err := svc.Rotate(ctx, pair.RefreshToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("disabled rotate err = %v, want ErrInvalidToken", err)
	}
}
