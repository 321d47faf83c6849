// Package memory provides a thread-safe in-memory Store for tests and local dry runs.
package memory

import (
	"context"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/tiercycle/tiercycle/pkg/errors"
	"github.com/tiercycle/tiercycle/pkg/types"
)

type object struct {
	data        []byte
	contentType string
	createdAt   time.Time
}

// Store keeps objects per container in maps. Containers are created on first write.
type Store struct {
	mu         sync.RWMutex
	containers map[string]map[string]object
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty Store. containers are created up front so Ping succeeds for them.
func New(containers []string, opts ...Option) *Store {
	s := &Store{
		containers: make(map[string]map[string]object),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, c := range containers {
		s.containers[c] = make(map[string]object)
	}
	return s
}

// Seed stores data with an explicit creation time.
func (s *Store) Seed(ref types.ObjectRef, data []byte, contentType string, createdAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ref, object{data: clone(data), contentType: contentType, createdAt: createdAt})
}

// Keys returns the sorted keys in container.
func (s *Store) Keys(container string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.containers[container]))
	for k := range s.containers[container] {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Has reports whether ref exists.
func (s *Store) Has(ref types.ObjectRef) bool {
	_, ok := s.lookup(ref)
	return ok
}

func (s *Store) List(ctx context.Context, container string) iter.Seq2[types.ObjectRef, error] {
	return func(yield func(types.ObjectRef, error) bool) {
		for _, key := range s.Keys(container) {
			if err := ctx.Err(); err != nil {
				yield(types.ObjectRef{}, err)
				return
			}
			if !yield(types.ObjectRef{Container: container, Key: key}, nil) {
				return
			}
		}
	}
}

func (s *Store) Stat(_ context.Context, ref types.ObjectRef) (types.ObjectMetadata, error) {
	obj, ok := s.lookup(ref)
	if !ok {
		return types.ObjectMetadata{}, errors.NotFound(ref.Container, ref.Key).WithComponent("memory").WithOperation("stat")
	}
	return types.ObjectMetadata{
		Size:        int64(len(obj.data)),
		CreatedAt:   obj.createdAt,
		ContentType: obj.contentType,
	}, nil
}

// Copy duplicates src to dst keeping the source creation time.
func (s *Store) Copy(_ context.Context, src, dst types.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.containers[src.Container][src.Key]
	if !ok {
		return errors.NotFound(src.Container, src.Key).WithComponent("memory").WithOperation("copy")
	}
	obj.data = clone(obj.data)
	s.put(dst, obj)
	return nil
}

func (s *Store) Get(_ context.Context, ref types.ObjectRef) ([]byte, error) {
	obj, ok := s.lookup(ref)
	if !ok {
		return nil, errors.NotFound(ref.Container, ref.Key).WithComponent("memory").WithOperation("get")
	}
	return clone(obj.data), nil
}

func (s *Store) Put(_ context.Context, ref types.ObjectRef, data []byte, contentType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(ref, object{data: clone(data), contentType: contentType, createdAt: s.now()})
	return nil
}

func (s *Store) Delete(_ context.Context, ref types.ObjectRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.containers[ref.Container][ref.Key]; !ok {
		return errors.NotFound(ref.Container, ref.Key).WithComponent("memory").WithOperation("delete")
	}
	delete(s.containers[ref.Container], ref.Key)
	return nil
}

func (s *Store) Ping(_ context.Context, container string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.containers[container]; !ok {
		return errors.NewError(errors.ErrCodeContainerNotFound, "container "+container+" does not exist").
			WithComponent("memory")
	}
	return nil
}

func (s *Store) lookup(ref types.ObjectRef) (object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.containers[ref.Container][ref.Key]
	return obj, ok
}

// put must be called with mu held.
func (s *Store) put(ref types.ObjectRef, obj object) {
	c, ok := s.containers[ref.Container]
	if !ok {
		c = make(map[string]object)
		s.containers[ref.Container] = c
	}
	c[ref.Key] = obj
}

func clone(b []byte) []byte {
	cp := make([]byte, len(b))
	copy(cp, b)
	return cp
}

var (
	_ types.Store  = (*Store)(nil)
	_ types.Pinger = (*Store)(nil)
)
