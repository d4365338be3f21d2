package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"toolgate.org/internal/ids"
)

const (
	defaultIssuer     = "toolgate"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour

	// KindAccess and KindRefresh discriminate the two token kinds so one
	// can never be presented in place of the other.
	KindAccess  = "access"
	KindRefresh = "refresh"
)

// DefaultRole is granted to newly registered identities.
const DefaultRole = "guest"

// Claims represents the signed claim set carried by gateway tokens.
type Claims struct {
	Roles []string `json:"roles,omitempty"`
	Kind  string   `json:"kind"`
	jwt.RegisteredClaims
}

// TokenPair bundles a fresh access/refresh token with their expirations.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Service issues, verifies, rotates, and revokes gateway tokens.
type Service struct {
	store  Store
	secret []byte
	issuer string

	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		if v := strings.TrimSpace(issuer); v != "" {
			s.issuer = v
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs a Service bound to the given store and signing secret.
func NewService(store Store, secret string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	svc := &Service{
		store:      store,
		secret:     []byte(secret),
		issuer:     defaultIssuer,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Register creates an active identity with the default role.
func (s *Service) Register(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: valid email is required", ErrInvalidInput)
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	identity := &Identity{
		ID:           ids.New(),
		Email:        email,
		PasswordHash: hash,
		Status:       StatusActive,
		Roles:        []string{DefaultRole},
	}
	if err := s.store.Identities().Create(ctx, identity); err != nil {
		return nil, err
	}
	return identity, nil
}

// Login authenticates credentials and issues a fresh token pair.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthorized
	}
	identity, err := s.store.Identities().FindByEmail(ctx, email)
	if err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if identity.Status != StatusActive {
		return TokenPair{}, nil, ErrUnauthorized
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		return TokenPair{}, nil, ErrUnauthorized
	}
	pair, err := s.Issue(ctx, identity)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, identity, nil
}

// Issue mints a token pair for an already-authenticated identity. The
// refresh token's jti is recorded as not yet rotated.
func (s *Service) Issue(ctx context.Context, identity *Identity) (TokenPair, error) {
	now := s.now().UTC()

	accessExp := now.Add(s.accessTTL)
	access, err := s.sign(identity.ID, NormalizeRoles(identity.Roles), KindAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, err
	}

	refreshExp := now.Add(s.refreshTTL)
	refreshJTI := uuid.NewString()
	refresh, err := s.signWithJTI(identity.ID, nil, KindRefresh, refreshJTI, now, refreshExp)
	if err != nil {
		return TokenPair{}, err
	}
	rec := &RefreshToken{
		JTI:        refreshJTI,
		IdentityID: identity.ID,
		IssuedAt:   now,
		ExpiresAt:  refreshExp,
	}
	if err := s.store.RefreshTokens().Create(ctx, rec); err != nil {
		return TokenPair{}, err
	}

	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token: signature, expiry, kind, and
// revocation state (both jti and identity-wide). Every failure collapses
// to ErrInvalidToken.
func (s *Service) VerifyAccess(ctx context.Context, token string) (*Claims, error) {
	return s.verify(ctx, token, KindAccess)
}

// Rotate exchanges a refresh token for a fresh pair. The presented token
// is atomically marked rotated; redeeming it a second time fails. The new
// pair carries the identity's current role snapshot, so role changes take
// effect on rotation rather than only on the next login.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (TokenPair, *Identity, error) {
	claims, err := s.verify(ctx, refreshToken, KindRefresh)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}

	tokens := s.store.RefreshTokens()
	rec, err := tokens.Find(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if rec.Revoked || s.now().After(rec.ExpiresAt) {
		return TokenPair{}, nil, ErrInvalidToken
	}

	// The single-use gate: exactly one concurrent redeemer wins.
	won, err := tokens.MarkRotated(ctx, claims.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !won {
		return TokenPair{}, nil, ErrInvalidToken
	}
	// Denylist the jti as well so the signed token is dead everywhere.
	_ = s.store.Revocations().RevokeToken(ctx, claims.ID, rec.ExpiresAt)

	identity, err := s.store.Identities().Find(ctx, rec.IdentityID)
	if err != nil {
		return TokenPair{}, nil, ErrInvalidToken
	}
	if identity.Status != StatusActive {
		return TokenPair{}, nil, ErrInvalidToken
	}
	pair, err := s.Issue(ctx, identity)
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, identity, nil
}

// RevokeAll invalidates every outstanding token for an identity by
// inserting an identity-wide revocation watermark.
func (s *Service) RevokeAll(ctx context.Context, identityID string) error {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	if err := s.store.Revocations().RevokeIdentity(ctx, identityID, now, now.Add(s.refreshTTL)); err != nil {
		return err
	}
	return s.store.RefreshTokens().MarkRevokedByIdentity(ctx, identityID)
}

// RevokeToken denylists a single token by its jti.
func (s *Service) RevokeToken(ctx context.Context, jti string) error {
	jti = strings.TrimSpace(jti)
	if jti == "" {
		return fmt.Errorf("%w: jti is required", ErrInvalidInput)
	}
	now := s.now().UTC()
	if err := s.store.Revocations().RevokeToken(ctx, jti, now.Add(s.refreshTTL)); err != nil {
		return err
	}
	return s.store.RefreshTokens().MarkRevoked(ctx, jti)
}

// Identity loads an account by id.
func (s *Service) Identity(ctx context.Context, id string) (*Identity, error) {
	return s.store.Identities().Find(ctx, id)
}

// SetStatus activates or disables an account.
func (s *Service) SetStatus(ctx context.Context, id, status string) error {
	status = strings.TrimSpace(strings.ToLower(status))
	if status != StatusActive && status != StatusDisabled {
		return fmt.Errorf("%w: unsupported status %s", ErrInvalidInput, status)
	}
	return s.store.Identities().SetStatus(ctx, id, status)
}

// GrantRole adds a role to an identity. The change takes effect on the
// identity's next token rotation.
func (s *Service) GrantRole(ctx context.Context, id, role string) error {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	return s.store.Identities().GrantRole(ctx, id, role)
}

// RevokeRole removes a role from an identity.
func (s *Service) RevokeRole(ctx context.Context, id, role string) error {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidInput)
	}
	return s.store.Identities().RevokeRole(ctx, id, role)
}

func (s *Service) sign(sub string, roles []string, kind string, iat, exp time.Time) (string, error) {
	return s.signWithJTI(sub, roles, kind, uuid.NewString(), iat, exp)
}

func (s *Service) signWithJTI(sub string, roles []string, kind, jti string, iat, exp time.Time) (string, error) {
	claims := Claims{
		Roles: roles,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   sub,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *Service) verify(ctx context.Context, token, kind string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now), jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || strings.TrimSpace(claims.Subject) == "" || claims.ID == "" {
		return nil, ErrInvalidToken
	}

	revoked, err := s.store.Revocations().TokenRevoked(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, ErrInvalidToken
	}
	watermark, found, err := s.store.Revocations().IdentityRevokedAt(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	if found && claims.IssuedAt != nil && !claims.IssuedAt.Time.After(watermark) {
		return nil, ErrInvalidToken
	}

	claims.Roles = NormalizeRoles(claims.Roles)
	return claims, nil
}
