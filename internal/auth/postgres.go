package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"toolgate.org/internal/ids"
)

var _ Store = (*PGStore)(nil)

// PGStore implements Store using PostgreSQL.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Identities() IdentityStore        { return &pgIdentities{db: s.db} }
func (s *PGStore) RefreshTokens() RefreshTokenStore { return &pgRefresh{db: s.db} }
func (s *PGStore) Revocations() RevocationStore     { return &pgRevocations{db: s.db} }

// Identity store -----------------------------------------------------------
type pgIdentities struct{ db *sql.DB }

func (s *pgIdentities) Create(ctx context.Context, identity *Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	roles, _ := json.Marshal(identity.Roles)
	_, err := s.db.ExecContext(ctx,
		`insert into identities(id, email, password_hash, status, roles) values($1,$2,$3,$4,$5)`,
		identity.ID, identity.Email, identity.PasswordHash, identity.Status, roles,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *pgIdentities) Find(ctx context.Context, id string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, roles, created_at, updated_at from identities where id=$1`, id)
	return scanIdentity(row)
}

func (s *pgIdentities) FindByEmail(ctx context.Context, email string) (*Identity, error) {
	row := s.db.QueryRowContext(ctx,
		`select id, email, password_hash, status, roles, created_at, updated_at from identities where email=$1`,
		strings.ToLower(email))
	return scanIdentity(row)
}

func scanIdentity(row *sql.Row) (*Identity, error) {
	var (
		identity Identity
		roles    []byte
	)
	err := row.Scan(&identity.ID, &identity.Email, &identity.PasswordHash,
		&identity.Status, &roles, &identity.CreatedAt, &identity.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	_ = json.Unmarshal(roles, &identity.Roles)
	return &identity, nil
}

func (s *pgIdentities) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set status=$2, updated_at=now() where id=$1`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgIdentities) GrantRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities
		 set roles = case when roles ? $2 then roles else roles || to_jsonb($2::text) end,
		     updated_at = now()
		 where id=$1`, id, role)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (s *pgIdentities) RevokeRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx,
		`update identities set roles = roles - $2, updated_at = now() where id=$1`, id, role)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Refresh token store ------------------------------------------------------
type pgRefresh struct{ db *sql.DB }

func (s *pgRefresh) Create(ctx context.Context, tok *RefreshToken) error {
	_, err := s.db.ExecContext(ctx,
		`insert into refresh_tokens(jti, identity_id, issued_at, expires_at, revoked)
		 values($1,$2,$3,$4,false)`,
		tok.JTI, tok.IdentityID, tok.IssuedAt, tok.ExpiresAt,
	)
	if err != nil && strings.Contains(err.Error(), "duplicate key") {
		return ErrAlreadyExists
	}
	return err
}

func (s *pgRefresh) Find(ctx context.Context, jti string) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`select jti, identity_id, issued_at, expires_at, revoked from refresh_tokens where jti=$1`, jti)
	var tok RefreshToken
	if err := row.Scan(&tok.JTI, &tok.IdentityID, &tok.IssuedAt, &tok.ExpiresAt, &tok.Revoked); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &tok, nil
}

func (s *pgRefresh) MarkRotated(ctx context.Context, jti string) (bool, error) {
	// The revoked=false predicate makes the transition atomic: under
	// concurrent redemption exactly one update reports an affected row.
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where jti=$1 and revoked=false`, jti)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *pgRefresh) MarkRevoked(ctx context.Context, jti string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where jti=$1`, jti)
	return err
}

func (s *pgRefresh) MarkRevokedByIdentity(ctx context.Context, identityID string) error {
	_, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked=true where identity_id=$1`, identityID)
	return err
}

// Revocation store ---------------------------------------------------------
type pgRevocations struct{ db *sql.DB }

func (s *pgRevocations) RevokeToken(ctx context.Context, jti string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revocations(key, revoked_at, expires_at) values('jti:'||$1, now(), $2)
		 on conflict (key) do update set revoked_at=excluded.revoked_at, expires_at=excluded.expires_at`,
		jti, expiresAt,
	)
	return err
}

func (s *pgRevocations) TokenRevoked(ctx context.Context, jti string) (bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select exists(select 1 from revocations where key='jti:'||$1 and expires_at > now())`, jti)
	var revoked bool
	if err := row.Scan(&revoked); err != nil {
		return false, err
	}
	return revoked, nil
}

func (s *pgRevocations) RevokeIdentity(ctx context.Context, identityID string, revokedAt, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`insert into revocations(key, revoked_at, expires_at) values('id:'||$1, $2, $3)
		 on conflict (key) do update set revoked_at=excluded.revoked_at, expires_at=excluded.expires_at`,
		identityID, revokedAt, expiresAt,
	)
	return err
}

func (s *pgRevocations) IdentityRevokedAt(ctx context.Context, identityID string) (time.Time, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`select revoked_at from revocations where key='id:'||$1 and expires_at > now()`, identityID)
	var revokedAt time.Time
	if err := row.Scan(&revokedAt); err != nil {
		if err == sql.ErrNoRows {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return revokedAt, true, nil
}
