// Package registry holds the single active fitted model instance. The
// registry is single-writer, multi-reader: training publishes a completed
// instance with an atomic swap, predictions read whatever was active when
// they started.
package registry

import (
	"sync"

	"github.com/Aidin1998/taskpredict/common/errors"
	"github.com/Aidin1998/taskpredict/internal/ensemble"
	"github.com/Aidin1998/taskpredict/internal/store"
	"github.com/Aidin1998/taskpredict/pkg/metrics"
	"go.uber.org/zap"
)

// Instance is one immutable fitted model plus its identity.
type Instance struct {
	Model   ensemble.Model
	Family  ensemble.Family
	Version string
}

// Registry owns the active instance. Callers hold a handle rather than a
// process-wide singleton, so independent registries can coexist.
type Registry struct {
	mu     sync.RWMutex
	active *Instance
	logger *zap.Logger
}

// New creates an empty registry.
func New(logger *zap.Logger) *Registry {
	return &Registry{logger: logger}
}

// Active returns the current instance, or ErrModelNotLoaded before the
// first successful training.
func (r *Registry) Active() (*Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return nil, errors.ErrModelNotLoaded
	}
	return r.active, nil
}

// Loaded reports whether an instance is active.
func (r *Registry) Loaded() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active != nil
}

// Version returns the active version, or "not-loaded".
func (r *Registry) Version() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.active == nil {
		return "not-loaded"
	}
	return r.active.Version
}

// Publish atomically replaces the active instance. No intermediate state is
// observable: readers see either the previous or the new instance.
func (r *Registry) Publish(inst *Instance) {
	r.mu.Lock()
	prev := r.active
	r.active = inst
	r.mu.Unlock()

	if prev != nil {
		metrics.ActiveModelInfo.DeleteLabelValues(string(prev.Family), prev.Version)
	}
	metrics.ActiveModelInfo.WithLabelValues(string(inst.Family), inst.Version).Set(1)
	r.logger.Info("model published",
		zap.String("family", string(inst.Family)),
		zap.String("version", inst.Version))
}

// Restore loads the lexically latest persisted model into the registry.
// It returns false when the store holds no model yet.
func (r *Registry) Restore(st *store.Store) (bool, error) {
	record, err := st.LoadLatest()
	if err != nil {
		return false, err
	}
	if record == nil {
		return false, nil
	}
	model, err := ensemble.Unmarshal(record.State)
	if err != nil {
		return false, err
	}
	r.Publish(&Instance{Model: model, Family: model.Family(), Version: record.Version})
	return true, nil
}
