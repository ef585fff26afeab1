package firestore

import (
	"context"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Collection is a typed wrapper over a Firestore collection. Documents
// marshal through `firestore:` struct tags.
type Collection[T any] struct {
	Ref *firestore.CollectionRef
}

func (c *Collection[T]) Doc(id string) *DocumentRef[T] {
	return &DocumentRef[T]{Ref: c.Ref.Doc(id)}
}

// Query wraps a raw query over this collection's documents.
func (c *Collection[T]) Query(q firestore.Query) *TypedQuery[T] {
	return &TypedQuery[T]{Query: q}
}

type DocumentRef[T any] struct {
	Ref *firestore.DocumentRef
}

func (d *DocumentRef[T]) ID() string {
	return d.Ref.ID
}

// Get returns (nil, nil) when the document does not exist.
func (d *DocumentRef[T]) Get(ctx context.Context) (*T, error) {
	snap, err := d.Ref.Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := new(T)
	if err := snap.DataTo(out); err != nil {
		return nil, err
	}
	return out, nil
}

func (d *DocumentRef[T]) Set(ctx context.Context, data *T) error {
	_, err := d.Ref.Set(ctx, data)
	return err
}

type TypedQuery[T any] struct {
	Query firestore.Query
}

// All runs the query and decodes every document.
func (q *TypedQuery[T]) All(ctx context.Context) ([]*T, error) {
	snaps, err := q.Query.Documents(ctx).GetAll()
	if err != nil {
		return nil, err
	}
	out := make([]*T, 0, len(snaps))
	for _, snap := range snaps {
		item := new(T)
		if err := snap.DataTo(item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
