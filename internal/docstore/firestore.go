package docstore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore implements Store on Cloud Firestore. Per-document write
// ordering, transactional compare-and-write, server timestamps, and push
// delivery to snapshot listeners are all provided by the service itself.
type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{client: client}
}

func (s *FirestoreStore) Read(ctx context.Context, collection, id string) (Snapshot, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return Snapshot{Collection: collection, ID: id}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("%w: read %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return Snapshot{Collection: collection, ID: id, Exists: true, Data: snap.Data()}, nil
}

func (s *FirestoreStore) Write(ctx context.Context, collection, id string, patch Doc, merge bool) error {
	ref := s.client.Collection(collection).Doc(id)
	var err error
	if merge {
		_, err = ref.Set(ctx, translateSentinels(patch), firestore.MergeAll)
	} else {
		_, err = ref.Set(ctx, translateSentinels(patch))
	}
	if err != nil {
		return fmt.Errorf("%w: write %s/%s: %v", ErrUnavailable, collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fn UpdateFunc) error {
	ref := s.client.Collection(collection).Doc(id)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		cur := Snapshot{Collection: collection, ID: id}
		snap, err := tx.Get(ref)
		switch {
		case status.Code(err) == codes.NotFound:
			// fn decides how to treat a missing document.
		case err != nil:
			return fmt.Errorf("%w: txn read %s/%s: %v", ErrUnavailable, collection, id, err)
		default:
			cur.Exists = true
			cur.Data = snap.Data()
		}
		patch, err := fn(cur)
		if err != nil {
			return err
		}
		return tx.Set(ref, translateSentinels(patch), firestore.MergeAll)
	})
	return err
}

func (s *FirestoreStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Path, f.Op, f.Value)
	}
	docs, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("%w: query %s: %v", ErrUnavailable, collection, err)
	}
	out := make([]Snapshot, 0, len(docs))
	for _, d := range docs {
		out = append(out, Snapshot{Collection: collection, ID: d.Ref.ID, Exists: true, Data: d.Data()})
	}
	return out, nil
}

func (s *FirestoreStore) BatchWrite(ctx context.Context, ops []WriteOp) error {
	if len(ops) == 0 {
		return nil
	}
	batch := s.client.Batch()
	for _, op := range ops {
		ref := s.client.Collection(op.Collection).Doc(op.ID)
		if op.Merge {
			batch.Set(ref, translateSentinels(op.Patch), firestore.MergeAll)
		} else {
			batch.Set(ref, translateSentinels(op.Patch))
		}
	}
	if _, err := batch.Commit(ctx); err != nil {
		return fmt.Errorf("%w: batch write (%d ops): %v", ErrUnavailable, len(ops), err)
	}
	return nil
}

func (s *FirestoreStore) Subscribe(ctx context.Context, collection, id string) (<-chan Snapshot, func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	it := s.client.Collection(collection).Doc(id).Snapshots(ctx)

	ch := make(chan Snapshot, 16)
	go func() {
		defer close(ch)
		for {
			snap, err := it.Next()
			if err != nil {
				// Cancelled subscription or terminal stream error; either
				// way the listener is done.
				return
			}
			out := Snapshot{Collection: collection, ID: id, Exists: snap.Exists()}
			if snap.Exists() {
				out.Data = snap.Data()
			}
			select {
			case ch <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	stop := func() {
		cancel()
		it.Stop()
	}
	return ch, stop, nil
}

// translateSentinels maps the store-agnostic ServerTime sentinel onto
// Firestore's server-timestamp token, recursing into nested documents.
func translateSentinels(patch Doc) Doc {
	out := make(Doc, len(patch))
	for k, v := range patch {
		switch t := v.(type) {
		case serverTime:
			out[k] = firestore.ServerTimestamp
		case Doc:
			out[k] = translateSentinels(t)
		default:
			out[k] = v
		}
	}
	return out
}
