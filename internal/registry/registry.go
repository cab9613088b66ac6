// Package registry owns the set of registered identities and their feature
// vectors.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/your-org/punchclock/internal/models"
)

var (
	ErrEmptyName       = errors.New("name must not be empty")
	ErrNoVectors       = errors.New("at least one feature vector is required")
	ErrRaggedVectors   = errors.New("feature vectors differ in length")
	ErrDimension       = errors.New("feature vector length differs from registered identities")
	ErrUnknownIdentity = errors.New("identity not found")
	ErrDamaged         = errors.New("registry has identities without vectors, re-register them first")
)

// Store loads and overwrites the full identity set. Identities and their
// vectors are always written together.
type Store interface {
	LoadIdentities(ctx context.Context) ([]models.Identity, error)
	SaveIdentities(ctx context.Context, identities []models.Identity) error
}

type Registry struct {
	store Store

	mu         sync.RWMutex
	identities []models.Identity
}

func New(ctx context.Context, store Store) (*Registry, error) {
	ids, err := store.LoadIdentities(ctx)
	if err != nil {
		return nil, fmt.Errorf("load identities: %w", err)
	}
	slog.Info("identity registry loaded", "identities", len(ids))
	return &Registry{store: store, identities: ids}, nil
}

// Register averages vectors into one and appends a new identity. IDs follow
// the highest existing ID, which equals the registry size while no record has
// been lost. Registration is refused while any identity lacks its vector.
func (r *Registry) Register(ctx context.Context, name string, vectors [][]float32, now time.Time) (models.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.Identity{}, ErrEmptyName
	}
	mean, err := Average(vectors)
	if err != nil {
		return models.Identity{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.identities {
		if existing.Vector == nil {
			return models.Identity{}, fmt.Errorf("%w: %s", ErrDamaged, existing.Name)
		}
	}
	if dim := r.dimensionLocked(); dim > 0 && dim != len(mean) {
		return models.Identity{}, fmt.Errorf("%w: got %d, want %d", ErrDimension, len(mean), dim)
	}

	id := models.Identity{
		ID:           r.nextIDLocked(),
		Name:         name,
		Vector:       mean,
		RegisteredAt: now,
	}

	next := make([]models.Identity, len(r.identities), len(r.identities)+1)
	copy(next, r.identities)
	next = append(next, id)

	if err := r.store.SaveIdentities(ctx, next); err != nil {
		return models.Identity{}, fmt.Errorf("save identities: %w", err)
	}
	r.identities = next

	slog.Info("identity registered", "id", id.ID, "name", id.Name, "samples", len(vectors), "dim", len(mean))
	return id, nil
}

func (r *Registry) nextIDLocked() int {
	next := 0
	for _, id := range r.identities {
		if id.ID >= next {
			next = id.ID + 1
		}
	}
	return next
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.identities)
}

func (r *Registry) Get(id int) (models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, identity := range r.identities {
		if identity.ID == id {
			return identity, nil
		}
	}
	return models.Identity{}, ErrUnknownIdentity
}

// At returns the identity at position i of Names and Vectors, which is how
// the matcher reports its winner.
func (r *Registry) At(i int) (models.Identity, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if i < 0 || i >= len(r.identities) {
		return models.Identity{}, ErrUnknownIdentity
	}
	return r.identities[i], nil
}

// List returns a copy of all identities in registration order.
func (r *Registry) List() []models.Identity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.Identity, len(r.identities))
	copy(out, r.identities)
	return out
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.identities))
	for i, id := range r.identities {
		names[i] = id.Name
	}
	return names
}

// Vectors returns only the vectors that are present. A store that lost some
// vectors therefore yields fewer vectors than names.
func (r *Registry) Vectors() [][]float32 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	vectors := make([][]float32, 0, len(r.identities))
	for _, id := range r.identities {
		if id.Vector != nil {
			vectors = append(vectors, id.Vector)
		}
	}
	return vectors
}

func (r *Registry) dimensionLocked() int {
	for _, id := range r.identities {
		if len(id.Vector) > 0 {
			return len(id.Vector)
		}
	}
	return 0
}

// Average returns the element-wise mean of vectors.
func Average(vectors [][]float32) ([]float32, error) {
	if len(vectors) == 0 {
		return nil, ErrNoVectors
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, ErrNoVectors
	}

	sum := make([]float64, dim)
	for _, v := range vectors {
		if len(v) != dim {
			return nil, ErrRaggedVectors
		}
		for i, x := range v {
			sum[i] += float64(x)
		}
	}

	mean := make([]float32, dim)
	n := float64(len(vectors))
	for i := range sum {
		mean[i] = float32(sum[i] / n)
	}
	return mean, nil
}
