package roles

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestPGStoreCreateMapsUniqueViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into roles").
		WithArgs("viewer", "", sqlmock.AnyArg(), sqlmock.AnyArg(), true, 0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	store := NewPGStore(db)
	now := time.Now().UTC()
	err = store.Create(context.Background(), &Role{
		Name: "viewer", IsActive: true, CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindDecodesJSONSets(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{"name", "description", "permissions", "inherited_roles", "is_active", "priority", "created_at", "updated_at"}).
		AddRow("admin", "Administrative role", []byte(`["write"]`), []byte(`["user"]`), true, 1, now, now)
	mock.ExpectQuery("select name, description, permissions, inherited_roles").
		WithArgs("admin").
		WillReturnRows(rows)

	store := NewPGStore(db)
	role, err := store.Find(context.Background(), "admin")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(role.Permissions) != 1 || role.Permissions[0] != "write" {
		t.Fatalf("unexpected permissions: %v", role.Permissions)
	}
	if len(role.InheritedRoles) != 1 || role.InheritedRoles[0] != "user" {
		t.Fatalf("unexpected inherited roles: %v", role.InheritedRoles)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFindNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectQuery("select name, description, permissions, inherited_roles").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"name", "description", "permissions", "inherited_roles", "is_active", "priority", "created_at", "updated_at"}))

	store := NewPGStore(db)
	if _, err := store.Find(context.Background(), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreFoldsTransportErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	dialErr := errors.New("dial tcp 10.0.0.1:5432: connect: connection refused")
	mock.ExpectQuery("select name, description, permissions, inherited_roles").
		WithArgs("user").
		WillReturnError(dialErr)
	mock.ExpectExec("insert into principal_roles").
		WillReturnError(dialErr)

	store := NewPGStore(db)
	_, err = store.Find(context.Background(), "user")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Find, got %v", err)
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatal("transport failure must not read as a missing role")
	}

	now := time.Now().UTC()
	err = store.Bind(context.Background(), &Binding{
		Subject: "a@x.com", RoleName: "user", CreatedAt: now, UpdatedAt: now,
	})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable from Bind, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreBindUpserts(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("insert into principal_roles").
		WithArgs("a@x.com", "admin", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewPGStore(db)
	now := time.Now().UTC()
	err = store.Bind(context.Background(), &Binding{
		Subject: "a@x.com", RoleName: "admin", CreatedAt: now, UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPGStoreDeleteMapsForeignKeyViolation(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("delete from roles").
		WithArgs("user").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	store := NewPGStore(db)
	if err := store.Delete(context.Background(), "user"); !errors.Is(err, ErrRoleInUse) {
		t.Fatalf("expected ErrRoleInUse, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
