package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	gateway "github.com/goliatone/go-auth-gateway"
	"github.com/google/uuid"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupActionKeyRepo(t *testing.T) (*ActionKeyRepository, *Manager) {
	t.Helper()

	mngr, err := OpenDB(DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = mngr.Close() })

	require.NoError(t, mngr.RunMigrations(context.Background()))
	return mngr.ActionKeys(), mngr
}

func newRecord(actionType gateway.ActionType, email string, createdAt time.Time) *gateway.ActionKeyRecord {
	return &gateway.ActionKeyRecord{
		ID:         uuid.NewString(),
		ActionType: actionType,
		Email:      email,
		SigningKey: "signing-key-" + uuid.NewString(),
		OwnerID:    "uid-123",
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.Add(actionType.TTL()),
	}
}

func TestActionKeyRepository_PutGet(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	record := newRecord(gateway.ActionVerifyEmail, "User@Example.com", now)
	require.NoError(t, repo.Put(ctx, record))

	got, err := repo.Get(ctx, gateway.ActionVerifyEmail, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, record.SigningKey, got.SigningKey)
	assert.Equal(t, "uid-123", got.OwnerID)
	assert.Equal(t, "user@example.com", got.Email)
	assert.True(t, record.ExpiresAt.Equal(got.ExpiresAt))
}

func TestActionKeyRepository_PutReplacesPreviousKey(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	first := newRecord(gateway.ActionResetPassword, "user@example.com", now)
	second := newRecord(gateway.ActionResetPassword, "user@example.com", now.Add(time.Minute))

	require.NoError(t, repo.Put(ctx, first))
	require.NoError(t, repo.Put(ctx, second))

	got, err := repo.Get(ctx, gateway.ActionResetPassword, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, second.SigningKey, got.SigningKey)
	assert.Equal(t, second.ID, got.ID)
}

func TestActionKeyRepository_OneRowPerActionAndEmail(t *testing.T) {
	repo, mngr := setupActionKeyRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	first := newRecord(gateway.ActionResetPassword, "Jane@Example.com", now)
	second := newRecord(gateway.ActionResetPassword, " jane@example.com", now.Add(time.Minute))
	require.NoError(t, repo.Put(ctx, first))
	require.NoError(t, repo.Put(ctx, second))

	count, err := mngr.db.NewSelect().Model((*ActionKeyModel)(nil)).Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	got, err := repo.Get(ctx, gateway.ActionResetPassword, "JANE@example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
}

func TestActionKeyID(t *testing.T) {
	assert.Equal(t,
		ActionKeyID(gateway.ActionVerifyEmail, "jane@example.com"),
		ActionKeyID(gateway.ActionVerifyEmail, " Jane@Example.com "),
	)
	assert.NotEqual(t,
		ActionKeyID(gateway.ActionVerifyEmail, "jane@example.com"),
		ActionKeyID(gateway.ActionResetPassword, "jane@example.com"),
	)
	assert.NotEqual(t, uuid.Nil, ActionKeyID(gateway.ActionVerifyEmail, ""))
}

func TestActionKeyRepository_TypesAreIndependent(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	verify := newRecord(gateway.ActionVerifyEmail, "user@example.com", now)
	reset := newRecord(gateway.ActionResetPassword, "user@example.com", now)
	require.NoError(t, repo.Put(ctx, verify))
	require.NoError(t, repo.Put(ctx, reset))

	require.NoError(t, repo.Delete(ctx, gateway.ActionVerifyEmail, "user@example.com"))

	_, err := repo.Get(ctx, gateway.ActionVerifyEmail, "user@example.com")
	assert.True(t, gateway.IsKeyNotFound(err))

	got, err := repo.Get(ctx, gateway.ActionResetPassword, "user@example.com")
	require.NoError(t, err)
	assert.Equal(t, reset.SigningKey, got.SigningKey)
}

func TestActionKeyRepository_GetMissing(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)

	_, err := repo.Get(context.Background(), gateway.ActionVerifyEmail, "nobody@example.com")
	require.Error(t, err)
	assert.True(t, gateway.IsKeyNotFound(err))
	assert.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestActionKeyRepository_DeleteMissingIsNoop(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	assert.NoError(t, repo.Delete(context.Background(), gateway.ActionVerifyEmail, "nobody@example.com"))
}

func TestActionKeyRepository_DeleteExpired(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	ctx := context.Background()

	now := time.Now().UTC()
	stale := newRecord(gateway.ActionResetPassword, "stale@example.com", now.Add(-2*time.Hour))
	fresh := newRecord(gateway.ActionResetPassword, "fresh@example.com", now)
	verify := newRecord(gateway.ActionVerifyEmail, "stale@example.com", now.Add(-2*time.Hour))

	for _, r := range []*gateway.ActionKeyRecord{stale, fresh, verify} {
		require.NoError(t, repo.Put(ctx, r))
	}

	removed, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = repo.Get(ctx, gateway.ActionResetPassword, "stale@example.com")
	assert.True(t, gateway.IsKeyNotFound(err))

	_, err = repo.Get(ctx, gateway.ActionResetPassword, "fresh@example.com")
	assert.NoError(t, err)

	// verification links live for a day
	_, err = repo.Get(ctx, gateway.ActionVerifyEmail, "stale@example.com")
	assert.NoError(t, err)
}

func TestActionKeyRepository_WorksWithTokenService(t *testing.T) {
	repo, _ := setupActionKeyRepo(t)
	ctx := context.Background()

	mailer := &captureDispatcher{}
	svc := gateway.NewActionTokenService(repo, mailer, "https://app.example.com")

	issued, err := svc.Issue(ctx, gateway.ActionResetPassword, "user@example.com", "uid-9")
	require.NoError(t, err)
	assert.Equal(t, issued.Link, mailer.link)

	verified, err := svc.Verify(ctx, gateway.ActionResetPassword, issued.Token)
	require.NoError(t, err)
	assert.Equal(t, "uid-9", verified.OwnerID)

	_, err = svc.Verify(ctx, gateway.ActionResetPassword, issued.Token)
	assert.True(t, gateway.IsKeyNotFound(err))
}

func TestManager_RunMigrationsError(t *testing.T) {
	mngr, err := OpenDB(DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	defer mngr.Close()

	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err = mngr.RunMigrations(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := OpenDB("oracle", "dsn")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database driver")
}

func TestManager_Validate(t *testing.T) {
	_, mngr := setupActionKeyRepo(t)
	assert.NoError(t, mngr.Validate())
	assert.NoError(t, mngr.Ping(context.Background()))

	assert.Error(t, (&Manager{}).Validate())
}

type captureDispatcher struct {
	email string
	link  string
}

func (c *captureDispatcher) SendVerificationEmail(_ context.Context, email, link string) error {
	c.email, c.link = email, link
	return nil
}

func (c *captureDispatcher) SendPasswordResetEmail(_ context.Context, email, link string) error {
	c.email, c.link = email, link
	return nil
}
