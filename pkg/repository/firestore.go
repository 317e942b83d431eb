package repository

import (
	"context"
	"net/url"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultQuotaCollection = "quotas"

// Firestore stores quota records in a Firestore collection so that every server
// instance shares the same counters. Check-and-increment runs in a transaction.
type Firestore struct {
	client     *firestore.Client
	collection string
}

type FirestoreOption func(*Firestore)

// WithCollection overrides the collection name used for quota documents
func WithCollection(name string) FirestoreOption {
	return func(f *Firestore) {
		f.collection = name
	}
}

// New creates a Firestore-backed repository
func New(ctx context.Context, projectID, databaseID string, opts ...FirestoreOption) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project_id", projectID),
			goerr.V("database_id", databaseID))
	}

	f := &Firestore{
		client:     client,
		collection: defaultQuotaCollection,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

// Close releases the underlying client
func (f *Firestore) Close() error {
	return f.client.Close()
}

// document IDs must not contain '/'
func (f *Firestore) doc(key model.QuotaKey) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(url.PathEscape(string(key)))
}

func (f *Firestore) GetQuota(ctx context.Context, key model.QuotaKey) (*model.QuotaRecord, error) {
	snap, err := f.doc(key).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to get quota", goerr.V("key", key))
	}

	var rec model.QuotaRecord
	if err := snap.DataTo(&rec); err != nil {
		return nil, goerr.Wrap(err, "failed to decode quota", goerr.V("key", key))
	}
	return &rec, nil
}

func (f *Firestore) UpdateQuota(ctx context.Context, key model.QuotaKey, fn QuotaUpdateFunc) error {
	ref := f.doc(key)

	err := f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var current *model.QuotaRecord

		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var rec model.QuotaRecord
			if err := snap.DataTo(&rec); err != nil {
				return goerr.Wrap(err, "failed to decode quota")
			}
			current = &rec
		case status.Code(err) == codes.NotFound:
		default:
			return goerr.Wrap(err, "failed to get quota in transaction")
		}

		next, err := fn(current)
		if err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return tx.Set(ref, next)
	})
	if err != nil {
		return goerr.Wrap(err, "failed to update quota", goerr.V("key", key))
	}
	return nil
}
