package migrate

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"testing"

	gomigrate "github.com/golang-migrate/migrate/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"animelens/launchpad/internal/config"
)

// fakeHandle is a test double for migrateHandle.
type fakeHandle struct {
	upErr      error
	stepsErr   error
	version    uint
	dirty      bool
	versionErr error
	closed     bool
}

func (f *fakeHandle) Up() error                    { return f.upErr }
func (f *fakeHandle) Steps(_ int) error            { return f.stepsErr }
func (f *fakeHandle) Version() (uint, bool, error) { return f.version, f.dirty, f.versionErr }
func (f *fakeHandle) Close() (error, error)        { f.closed = true; return nil, nil }

func makeMigrator(h *fakeHandle, openErr error) *Migrator {
	m := New(config.MigrationsConfig{Table: "schema_migrations"}, config.PostgresConfig{
		DSN: "postgres://app:secret@db:5432/app",
	})
	m.open = func() (migrateHandle, error) {
		if openErr != nil {
			return nil, openErr
		}
		return h, nil
	}
	return m
}

func TestUp_AppliesPendingMigrations(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{version: 1}
	m := makeMigrator(h, nil)

	require.NoError(t, m.Up(context.Background()))
	assert.True(t, h.closed, "handle must be closed after Up")
}

func TestUp_NoChangeIsSuccess(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{upErr: gomigrate.ErrNoChange}
	m := makeMigrator(h, nil)

	require.NoError(t, m.Up(context.Background()))
	assert.True(t, h.closed)
}

func TestUp_FailurePropagates(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{upErr: errors.New("Dirty database version 1")}
	m := makeMigrator(h, nil)

	err := m.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "applying migrations")
	assert.True(t, h.closed)
}

func TestUp_OpenFailurePropagates(t *testing.T) {
	t.Parallel()

	m := makeMigrator(nil, errors.New("connection refused"))

	err := m.Up(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestUp_CancelledContext(t *testing.T) {
	t.Parallel()

	opened := false
	m := makeMigrator(&fakeHandle{}, nil)
	m.open = func() (migrateHandle, error) {
		opened = true
		return &fakeHandle{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Up(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, opened, "no database connection on a cancelled context")
}

// fakeCloser records whether Close was called.
type fakeCloser struct {
	closed bool
}

func (f *fakeCloser) Close() error { f.closed = true; return nil }

func TestOpenWith_ClosesConnectionOnBuildError(t *testing.T) {
	t.Parallel()

	db := &fakeCloser{}
	_, err := openWith(db, func() (migrateHandle, error) {
		return nil, errors.New("bad migrations source")
	})
	require.Error(t, err)
	assert.True(t, db.closed, "connection must not leak when the handle build fails")
}

func TestOpenWith_HandleOwnsConnectionOnSuccess(t *testing.T) {
	t.Parallel()

	db := &fakeCloser{}
	h, err := openWith(db, func() (migrateHandle, error) {
		return &fakeHandle{}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.False(t, db.closed, "the handle's Close owns the connection after a successful open")
}

func TestDown_RollsBackOneStep(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{}
	m := makeMigrator(h, nil)

	require.NoError(t, m.Down(context.Background()))
	assert.True(t, h.closed)
}

func TestDown_NoChangeIsSuccess(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{stepsErr: gomigrate.ErrNoChange}
	m := makeMigrator(h, nil)

	require.NoError(t, m.Down(context.Background()))
}

func TestStatus_FreshDatabase(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{versionErr: gomigrate.ErrNilVersion}
	m := makeMigrator(h, nil)

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Applied)
	assert.Zero(t, status.Version)
	assert.False(t, status.Dirty)
}

func TestStatus_ReportsVersionAndDirty(t *testing.T) {
	t.Parallel()

	h := &fakeHandle{version: 1, dirty: true}
	m := makeMigrator(h, nil)

	status, err := m.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Applied)
	assert.EqualValues(t, 1, status.Version)
	assert.True(t, status.Dirty)
}

// TestEmbeddedMigrations_UpDownPairs guards against shipping a migration
// without its rollback counterpart.
func TestEmbeddedMigrations_UpDownPairs(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(embeddedMigrations, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries, "at least one embedded migration expected")

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file %q", name)
		}
	}

	assert.Equal(t, ups, downs, "every up migration needs a matching down")
}
