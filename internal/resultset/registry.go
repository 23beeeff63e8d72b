package resultset

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tuannm99/novaspool/internal/record"
	"github.com/tuannm99/novaspool/internal/selection"
)

var (
	ErrNotFound  = errors.New("resultset: not registered")
	ErrDuplicate = errors.New("resultset: already registered")
)

var _ selection.SubsetProvider = (*Registry)(nil)

// Key addresses one result set of one batch of one owner (usually an editor
// or session URI).
type Key struct {
	OwnerURI       string
	BatchIndex     int
	ResultSetIndex int
}

func (k Key) String() string {
	return fmt.Sprintf("%s[%d:%d]", k.OwnerURI, k.BatchIndex, k.ResultSetIndex)
}

// Registry tracks live result sets and serves pages of them.
type Registry struct {
	mu   sync.RWMutex
	sets map[Key]*ResultSet
}

func NewRegistry() *Registry {
	return &Registry{sets: make(map[Key]*ResultSet)}
}

func (r *Registry) Add(key Key, rs *ResultSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sets[key]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, key)
	}
	r.sets[key] = rs
	return nil
}

func (r *Registry) Get(key Key) (*ResultSet, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs, ok := r.sets[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rs, nil
}

// Remove unregisters and closes one result set.
func (r *Registry) Remove(key Key) error {
	r.mu.Lock()
	rs, ok := r.sets[key]
	delete(r.sets, key)
	r.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return rs.Close()
}

// CloseOwner closes every result set of owner.
func (r *Registry) CloseOwner(owner string) error {
	r.mu.Lock()
	var victims []*ResultSet
	for k, rs := range r.sets {
		if k.OwnerURI == owner {
			victims = append(victims, rs)
			delete(r.sets, k)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, rs := range victims {
		errs = append(errs, rs.Close())
	}
	return errors.Join(errs...)
}

// Close closes everything still registered.
func (r *Registry) Close() error {
	r.mu.Lock()
	sets := r.sets
	r.sets = make(map[Key]*ResultSet)
	r.mu.Unlock()

	var errs []error
	for _, rs := range sets {
		errs = append(errs, rs.Close())
	}
	return errors.Join(errs...)
}

func (r *Registry) Subset(ctx context.Context, req selection.SubsetRequest) ([][]record.Cell, error) {
	rs, err := r.Get(Key{OwnerURI: req.OwnerURI, BatchIndex: req.BatchIndex, ResultSetIndex: req.ResultSetIndex})
	if err != nil {
		return nil, err
	}
	return rs.Rows(ctx, req.RowsStartIndex, req.RowsCount)
}
