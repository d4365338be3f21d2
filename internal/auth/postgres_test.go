package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestPGIdentitiesFind(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	mock.ExpectQuery("select id, email, password_hash, status, roles, created_at, updated_at from identities where id=").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "status", "roles", "created_at", "updated_at"}).
			AddRow("id-1", "alice@example.com", "hash", StatusActive, []byte(`["guest","analyst"]`), now, now))

	store := NewPGStore(db)
	identity, err := store.Identities().Find(context.Background(), "id-1")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if identity.Email != "alice@example.com" {
		t.Fatalf("email = %s", identity.Email)
	}
	if len(identity.Roles) != 2 || identity.Roles[1] != "analyst" {
		t.Fatalf("roles = %v", identity.Roles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGIdentitiesFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select id, email, password_hash, status, roles, created_at, updated_at from identities where id=").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "status", "roles", "created_at", "updated_at"}))

	store := NewPGStore(db)
	if _, err := store.Identities().Find(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestPGMarkRotatedReportsWinner(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("update refresh_tokens set revoked=true where jti=(.+) and revoked=false").
		WithArgs("jti-1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set revoked=true where jti=(.+) and revoked=false").
		WithArgs("jti-1").WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPGStore(db)
	won, err := store.RefreshTokens().MarkRotated(context.Background(), "jti-1")
	if err != nil || !won {
		t.Fatalf("first MarkRotated = (%v, %v), want (true, nil)", won, err)
	}
	won, err = store.RefreshTokens().MarkRotated(context.Background(), "jti-1")
	if err != nil || won {
		t.Fatalf("second MarkRotated = (%v, %v), want (false, nil)", won, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGRevocationsRoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	mock.ExpectExec("insert into revocations").
		WithArgs("jti-1", exp).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select exists").
		WithArgs("jti-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	store := NewPGStore(db)
	if err := store.Revocations().RevokeToken(context.Background(), "jti-1", exp); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	revoked, err := store.Revocations().TokenRevoked(context.Background(), "jti-1")
	if err != nil {
		t.Fatalf("TokenRevoked: %v", err)
	}
	if !revoked {
		t.Fatal("expected revoked=true")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestPGIdentityRevokedAt(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	at := time.Now().UTC().Truncate(time.Second)
	mock.ExpectQuery("select revoked_at from revocations").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}).AddRow(at))
	mock.ExpectQuery("select revoked_at from revocations").
		WithArgs("id-2").
		WillReturnRows(sqlmock.NewRows([]string{"revoked_at"}))

	store := NewPGStore(db)
	got, found, err := store.Revocations().IdentityRevokedAt(context.Background(), "id-1")
	if err != nil || !found {
		t.Fatalf("IdentityRevokedAt = (%v, %v, %v)", got, found, err)
	}
	if !got.Equal(at) {
		t.Fatalf("revoked_at = %v, want %v", got, at)
	}
	_, found, err = store.Revocations().IdentityRevokedAt(context.Background(), "id-2")
	if err != nil || found {
		t.Fatalf("missing watermark = (%v, %v), want (false, nil)", found, err)
	}
}
