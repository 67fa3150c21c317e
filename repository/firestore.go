package repository

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/firestore"
	gateway "github.com/goliatone/go-auth-gateway"
	goerrors "github.com/goliatone/go-errors"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	CollectionVerifyEmailKeys    = "verify-email-keys"
	CollectionForgotPasswordKeys = "forgot-password-keys"
)

// firestoreActionKey is the document stored per email in the collection of
// its action type.
type firestoreActionKey struct {
	ID        string    `firestore:"id"`
	Email     string    `firestore:"email"`
	Key       string    `firestore:"key"`
	UID       string    `firestore:"uid"`
	CreatedAt time.Time `firestore:"createdAt"`
	ExpiresAt time.Time `firestore:"expiresAt"`
}

// FirestoreActionKeyStore implements gateway.ActionKeyStore on Cloud
// Firestore. Documents are keyed by the lower cased email.
type FirestoreActionKeyStore struct {
	client *firestore.Client
}

func NewFirestoreActionKeyStore(client *firestore.Client) *FirestoreActionKeyStore {
	return &FirestoreActionKeyStore{client: client}
}

// CollectionFor maps an action type to its Firestore collection.
func CollectionFor(actionType gateway.ActionType) (string, error) {
	switch actionType {
	case gateway.ActionVerifyEmail:
		return CollectionVerifyEmailKeys, nil
	case gateway.ActionResetPassword:
		return CollectionForgotPasswordKeys, nil
	}
	return "", goerrors.New("unknown action type", goerrors.CategoryBadInput).
		WithMetadata(map[string]any{"action_type": actionType})
}

func (s *FirestoreActionKeyStore) doc(actionType gateway.ActionType, email string) (*firestore.DocumentRef, error) {
	collection, err := CollectionFor(actionType)
	if err != nil {
		return nil, err
	}
	return s.client.Collection(collection).Doc(normalizeEmail(email)), nil
}

func (s *FirestoreActionKeyStore) Put(ctx context.Context, record *gateway.ActionKeyRecord) error {
	ref, err := s.doc(record.ActionType, record.Email)
	if err != nil {
		return err
	}

	_, err = ref.Set(ctx, firestoreActionKey{
		ID:        record.ID,
		Email:     normalizeEmail(record.Email),
		Key:       record.SigningKey,
		UID:       record.OwnerID,
		CreatedAt: record.CreatedAt.UTC(),
		ExpiresAt: record.ExpiresAt.UTC(),
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to store action key")
	}
	return nil
}

func (s *FirestoreActionKeyStore) Get(ctx context.Context, actionType gateway.ActionType, email string) (*gateway.ActionKeyRecord, error) {
	ref, err := s.doc(actionType, email)
	if err != nil {
		return nil, err
	}

	snap, err := ref.Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, gateway.WithCause(gateway.ErrKeyNotFound, err)
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to load action key")
	}

	var doc firestoreActionKey
	if err := snap.DataTo(&doc); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to decode action key")
	}

	return &gateway.ActionKeyRecord{
		ID:         doc.ID,
		ActionType: actionType,
		Email:      doc.Email,
		SigningKey: doc.Key,
		OwnerID:    doc.UID,
		CreatedAt:  doc.CreatedAt,
		ExpiresAt:  doc.ExpiresAt,
	}, nil
}

func (s *FirestoreActionKeyStore) Delete(ctx context.Context, actionType gateway.ActionType, email string) error {
	ref, err := s.doc(actionType, email)
	if err != nil {
		return err
	}

	if _, err := ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
		return goerrors.Wrap(err, goerrors.CategoryExternal, "failed to delete action key")
	}
	return nil
}

// DeleteExpired scans both collections for documents that expired before
// the given time.
func (s *FirestoreActionKeyStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	for _, collection := range []string{CollectionVerifyEmailKeys, CollectionForgotPasswordKeys} {
		n, err := s.deleteExpiredIn(ctx, collection, before)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

func (s *FirestoreActionKeyStore) deleteExpiredIn(ctx context.Context, collection string, before time.Time) (int, error) {
	iter := s.client.Collection(collection).Where("expiresAt", "<", before.UTC()).Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			return removed, nil
		}
		if err != nil {
			return removed, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to list expired action keys").
				WithMetadata(map[string]any{"collection": collection})
		}

		if _, err := snap.Ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return removed, goerrors.Wrap(err, goerrors.CategoryExternal, "failed to delete expired action key").
				WithMetadata(map[string]any{"collection": collection})
		}
		removed++
	}
}
