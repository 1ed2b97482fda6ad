package docstore

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same observable semantics as
// the production backend: per-document write ordering, compare-and-write
// updates under a single lock, atomic batches, and push delivery to every
// subscriber of a document. It backs the unit tests and local development.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]Doc // collection -> id -> document
	subs map[string][]*memorySub   // collection/id -> subscribers
}

type memorySub struct {
	ch     chan Snapshot
	closed bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]map[string]Doc),
		subs: make(map[string][]*memorySub),
	}
}

func (s *MemoryStore) Read(_ context.Context, collection, id string) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return Snapshot{Collection: collection, ID: id}, ErrNotFound
	}
	return Snapshot{Collection: collection, ID: id, Exists: true, Data: cloneDoc(doc)}, nil
}

func (s *MemoryStore) Write(_ context.Context, collection, id string, patch Doc, merge bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyLocked(collection, id, patch, merge)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, collection, id string, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := Snapshot{Collection: collection, ID: id}
	if doc, ok := s.data[collection][id]; ok {
		cur.Exists = true
		cur.Data = cloneDoc(doc)
	}
	patch, err := fn(cur)
	if err != nil {
		return err
	}
	s.applyLocked(collection, id, patch, true)
	return nil
}

func (s *MemoryStore) Query(_ context.Context, collection string, filters ...Filter) ([]Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Snapshot
	for id, doc := range s.data[collection] {
		if matchesAll(doc, filters) {
			out = append(out, Snapshot{Collection: collection, ID: id, Exists: true, Data: cloneDoc(doc)})
		}
	}
	return out, nil
}

func (s *MemoryStore) BatchWrite(_ context.Context, ops []WriteOp) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range ops {
		s.applyLocked(op.Collection, op.ID, op.Patch, op.Merge)
	}
	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, collection, id string) (<-chan Snapshot, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &memorySub{ch: make(chan Snapshot, 64)}
	key := collection + "/" + id
	s.subs[key] = append(s.subs[key], sub)

	// Initial snapshot, mirroring the backend's listener contract.
	initial := Snapshot{Collection: collection, ID: id}
	if doc, ok := s.data[collection][id]; ok {
		initial.Exists = true
		initial.Data = cloneDoc(doc)
	}
	sub.ch <- initial

	var once sync.Once
	stop := func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			sub.closed = true
			close(sub.ch)
			live := s.subs[key][:0]
			for _, other := range s.subs[key] {
				if other != sub {
					live = append(live, other)
				}
			}
			s.subs[key] = live
		})
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			stop()
		}()
	}
	return sub.ch, stop, nil
}

// applyLocked mutates the document and fans the new snapshot out to
// subscribers. Callers hold s.mu, which is what gives writes to one
// document a total order.
func (s *MemoryStore) applyLocked(collection, id string, patch Doc, merge bool) {
	coll, ok := s.data[collection]
	if !ok {
		coll = make(map[string]Doc)
		s.data[collection] = coll
	}
	base := Doc{}
	if merge {
		if cur, ok := coll[id]; ok {
			base = cloneDoc(cur)
		}
	}
	for k, v := range patch {
		if _, isSentinel := v.(serverTime); isSentinel {
			base[k] = time.Now().UTC()
			continue
		}
		base[k] = v
	}
	coll[id] = base

	snap := Snapshot{Collection: collection, ID: id, Exists: true, Data: cloneDoc(base)}
	for _, sub := range s.subs[collection+"/"+id] {
		if sub.closed {
			continue
		}
		select {
		case sub.ch <- snap:
		default:
			// Slow subscriber; drop rather than block the writer. The next
			// write supersedes the lost snapshot anyway.
		}
	}
}

func matchesAll(doc Doc, filters []Filter) bool {
	for _, f := range filters {
		if f.Op != "==" {
			return false
		}
		got, ok := doc[f.Path]
		if !ok {
			// Treat an absent field as null so "== nil" filters behave
			// like the backend's null-equality queries.
			got = nil
		}
		if !reflect.DeepEqual(got, f.Value) {
			return false
		}
	}
	return true
}

func cloneDoc(d Doc) Doc {
	out := make(Doc, len(d))
	for k, v := range d {
		switch t := v.(type) {
		case Doc:
			out[k] = cloneDoc(t)
		case []any:
			cp := make([]any, len(t))
			copy(cp, t)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}
