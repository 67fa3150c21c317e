package repository

import (
	"context"
	"strings"
	"time"

	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
	bunrepo "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// actionKeyNamespace seeds the row id derived from action type and email.
var actionKeyNamespace = uuid.MustParse("6f1c2a0e-4b7d-5e38-9a61-2f0d8c3b7e45")

// ActionKeyModel is the Bun model for action keys. There is at most one row
// per action type and email; ID is derived from both so the row can be
// addressed directly. KeyID identifies the issued key itself.
type ActionKeyModel struct {
	bun.BaseModel `bun:"table:action_keys,alias:ak"`

	ID         uuid.UUID `bun:"id,pk,type:uuid"`
	KeyID      string    `bun:"key_id,notnull"`
	ActionType string    `bun:"action_type,notnull"`
	Email      string    `bun:"email,notnull"`
	SigningKey string    `bun:"signing_key,notnull"`
	OwnerID    string    `bun:"owner_id,notnull"`
	CreatedAt  time.Time `bun:"created_at,notnull"`
	ExpiresAt  time.Time `bun:"expires_at,notnull"`
}

// ActionKeyID returns the row id for an action type and email.
func ActionKeyID(actionType gateway.ActionType, email string) uuid.UUID {
	return uuid.NewSHA1(actionKeyNamespace, []byte(string(actionType)+":"+normalizeEmail(email)))
}

// ActionKeyRepository implements gateway.ActionKeyStore using Bun.
type ActionKeyRepository struct {
	db      bun.IDB
	records bunrepo.Repository[*ActionKeyModel]
}

func NewActionKeyRepository(db bun.IDB) *ActionKeyRepository {
	return &ActionKeyRepository{
		db: db,
		records: bunrepo.NewRepository[*ActionKeyModel](db, bunrepo.ModelHandlers[*ActionKeyModel]{
			NewRecord: func() *ActionKeyModel { return &ActionKeyModel{} },
			GetID: func(m *ActionKeyModel) uuid.UUID {
				if m == nil {
					return uuid.Nil
				}
				return m.ID
			},
			SetID: func(m *ActionKeyModel, id uuid.UUID) {
				if m != nil {
					m.ID = id
				}
			},
			GetIdentifier: func() string { return "id" },
		}),
	}
}

// Put replaces any key stored for the same action type and email.
func (r *ActionKeyRepository) Put(ctx context.Context, record *gateway.ActionKeyRecord) error {
	if _, err := r.records.Upsert(ctx, fromActionKeyRecord(record)); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store action key").
			WithMetadata(map[string]any{"action_type": record.ActionType})
	}
	return nil
}

func (r *ActionKeyRepository) Get(ctx context.Context, actionType gateway.ActionType, email string) (*gateway.ActionKeyRecord, error) {
	model, err := r.records.GetByIdentifier(ctx, ActionKeyID(actionType, email).String())
	if err != nil {
		if bunrepo.IsRecordNotFound(err) {
			return nil, gateway.WithCause(gateway.ErrKeyNotFound, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load action key")
	}
	return toActionKeyRecord(model), nil
}

func (r *ActionKeyRepository) Delete(ctx context.Context, actionType gateway.ActionType, email string) error {
	if err := r.records.Delete(ctx, &ActionKeyModel{ID: ActionKeyID(actionType, email)}); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete action key")
	}
	return nil
}

// DeleteExpired removes every key whose expiry is before the given time.
func (r *ActionKeyRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := r.db.NewDelete().
		Model((*ActionKeyModel)(nil)).
		Where("expires_at < ?", before.UTC()).
		Exec(ctx)
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete expired action keys")
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to count deleted action keys")
	}
	return int(n), nil
}

func fromActionKeyRecord(record *gateway.ActionKeyRecord) *ActionKeyModel {
	return &ActionKeyModel{
		ID:         ActionKeyID(record.ActionType, record.Email),
		KeyID:      record.ID,
		ActionType: string(record.ActionType),
		Email:      normalizeEmail(record.Email),
		SigningKey: record.SigningKey,
		OwnerID:    record.OwnerID,
		CreatedAt:  record.CreatedAt.UTC(),
		ExpiresAt:  record.ExpiresAt.UTC(),
	}
}

func toActionKeyRecord(model *ActionKeyModel) *gateway.ActionKeyRecord {
	return &gateway.ActionKeyRecord{
		ID:         model.KeyID,
		ActionType: gateway.ActionType(model.ActionType),
		Email:      model.Email,
		SigningKey: model.SigningKey,
		OwnerID:    model.OwnerID,
		CreatedAt:  model.CreatedAt,
		ExpiresAt:  model.ExpiresAt,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
