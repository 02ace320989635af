package display

import (
	"fmt"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Source loads the display inventory and persists pairing tokens.
// *Inventory is the production implementation.
type Source interface {
	Load() ([]Display, error)
	SaveToken(id, token string) error
}

// Registry is the in-memory catalogue of displays built from the
// validated inventory. The fleet is static: displays never appear or
// vanish at runtime, only webOS tokens change.
//
// All public methods are thread-safe. Lookups hand out copies, never
// internal pointers.
type Registry struct {
	source  Source
	cache   map[string]*Display
	order   []string // IDs in file order, inside group first
	cacheMu sync.RWMutex
	logger  Logger
}

// NewRegistry creates a registry backed by the given inventory source.
func NewRegistry(source Source) *Registry {
	return &Registry{
		source: source,
		cache:  make(map[string]*Display),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Load reads the inventory through the source and replaces the cache.
// Called once at startup; a validation failure here is fatal.
func (r *Registry) Load() error {
	displays, err := r.source.Load()
	if err != nil {
		return err
	}

	cache := make(map[string]*Display, len(displays))
	order := make([]string, 0, len(displays))
	for i := range displays {
		d := displays[i]
		cache[d.ID] = d.DeepCopy()
		order = append(order, d.ID)
	}

	r.cacheMu.Lock()
	r.cache = cache
	r.order = order
	r.cacheMu.Unlock()

	r.logger.Info("display inventory loaded", "count", len(displays))
	return nil
}

// Get retrieves a display by ID.
// Returns ErrDisplayNotFound if the display does not exist.
// The returned display is a copy; callers can safely modify it.
func (r *Registry) Get(id string) (*Display, error) {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	cached, ok := r.cache[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDisplayNotFound, id)
	}
	return cached.DeepCopy(), nil
}

// List returns every display in inventory file order, inside group first.
// The returned displays are copies; callers can safely modify them.
func (r *Registry) List() []Display {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	displays := make([]Display, 0, len(r.order))
	for _, id := range r.order {
		displays = append(displays, *r.cache[id].DeepCopy())
	}
	return displays
}

// ListByGroup returns the displays in a group, in file order.
// The returned displays are copies; callers can safely modify them.
func (r *Registry) ListByGroup(group Group) []Display {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	var displays []Display
	for _, id := range r.order {
		if d := r.cache[id]; d.Group == group {
			displays = append(displays, *d.DeepCopy())
		}
	}
	return displays
}

// ResolveTarget expands a batch target name into its member displays.
// Valid targets are the group names plus "all"; anything else returns
// ErrGroupNotFound. An empty result (no displays in the group) is not
// an error.
func (r *Registry) ResolveTarget(target string) ([]Display, error) {
	switch target {
	case TargetAll:
		return r.List(), nil
	case string(GroupInside):
		return r.ListByGroup(GroupInside), nil
	case string(GroupOutside):
		return r.ListByGroup(GroupOutside), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrGroupNotFound, target)
}

// SaveToken persists a webOS pairing token through the source and
// updates the cached copy. New pairings and token refreshes both land
// here. The token value itself is never logged.
func (r *Registry) SaveToken(id, token string) error {
	if err := r.source.SaveToken(id, token); err != nil {
		return err
	}

	r.cacheMu.Lock()
	if cached, ok := r.cache[id]; ok {
		updated := cached.DeepCopy()
		updated.Token = token
		r.cache[id] = updated
	}
	r.cacheMu.Unlock()

	r.logger.Info("pairing token saved", "display_id", id)
	return nil
}

// Count returns the number of displays in the registry.
func (r *Registry) Count() int {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()
	return len(r.cache)
}

// Stats returns registry statistics for monitoring.
type Stats struct {
	TotalDisplays int
	ByGroup       map[Group]int
	ByProtocol    map[Protocol]int
}

// GetStats returns current registry statistics.
func (r *Registry) GetStats() Stats {
	r.cacheMu.RLock()
	defer r.cacheMu.RUnlock()

	stats := Stats{
		TotalDisplays: len(r.cache),
		ByGroup:       make(map[Group]int),
		ByProtocol:    make(map[Protocol]int),
	}

	for _, d := range r.cache {
		stats.ByGroup[d.Group]++
		stats.ByProtocol[d.Protocol]++
	}

	return stats
}
