package store

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Firestore implements DocStore over a Firebase project, the store the
// mobile clients write to directly.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore initializes a Firebase app and its Firestore client.
// credentialsFile may be empty when ambient credentials are available.
func NewFirestore(ctx context.Context, projectID, credentialsFile string) (*Firestore, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	conf := &firebase.Config{ProjectID: projectID}
	app, err := firebase.NewApp(ctx, conf, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client.
func (f *Firestore) Close() error {
	if f == nil || f.client == nil {
		return nil
	}
	return f.client.Close()
}

// Query translates the predicate list to a Firestore query and drains
// the document iterator.
func (f *Firestore) Query(ctx context.Context, q Query) ([]Document, error) {
	fq := f.client.Collection(q.Collection).Query
	for _, p := range q.Predicates {
		fq = fq.Where(p.Field, p.Op, p.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Descending {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		out = append(out, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

// GetByID returns one document or ErrNotFound.
func (f *Firestore) GetByID(ctx context.Context, collection, id string) (Document, error) {
	snap, err := f.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

// Put creates or replaces a document.
func (f *Firestore) Put(ctx context.Context, collection, id string, data map[string]any) error {
	if _, err := f.client.Collection(collection).Doc(id).Set(ctx, data); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes a document.
func (f *Firestore) Delete(ctx context.Context, collection, id string) error {
	if _, err := f.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// BatchUpdate applies field rewrites in a single bulk writer flush.
func (f *Firestore) BatchUpdate(ctx context.Context, updates []Update) error {
	bw := f.client.BulkWriter(ctx)
	for _, u := range updates {
		ref := f.client.Collection(u.Collection).Doc(u.ID)
		if _, err := bw.Update(ref, []firestore.Update{{Path: u.Field, Value: u.Value}}); err != nil {
			bw.End()
			return fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
	}
	bw.End()
	return nil
}
