package threadpool

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/ajitpratap0/multicore/pkg/config"
	"github.com/ajitpratap0/multicore/pkg/errors"
	"github.com/ajitpratap0/multicore/pkg/logger"
	"github.com/ajitpratap0/multicore/pkg/metrics"
)

// Registry maps each Owner to its own Pool. The registry lock is held only
// for lookup and insert; pools are driven without it.
type Registry struct {
	mu       sync.Mutex
	pools    map[Owner]*Pool
	cfg      *config.Config
	settings *Settings
	logger   *zap.Logger
}

// NewRegistry creates an empty registry. Pool-level settings in cfg that are
// process-wide (MaxCores, ProcessorTargeting) are applied to settings.
func NewRegistry(cfg *config.Config, settings *Settings, log *zap.Logger) *Registry {
	if cfg == nil {
		cfg = config.Default()
	}
	if settings == nil {
		settings = DefaultSettings()
	}
	if log == nil {
		log = logger.Get()
	}
	if cfg.Pool.MaxCores > 0 {
		settings.SetMaxCores(cfg.Pool.MaxCores)
	}
	if cfg.Pool.ProcessorTargeting {
		settings.SetProcessorTargetingEnabled(true)
	}
	return &Registry{
		pools:    make(map[Owner]*Pool),
		cfg:      cfg,
		settings: settings,
		logger:   log.Named("threadpool"),
	}
}

// Settings returns the settings shared by the registry's pools.
func (r *Registry) Settings() *Settings { return r.settings }

// Pool returns owner's pool, creating it on first use.
func (r *Registry) Pool(owner Owner) *Pool {
	if owner.IsZero() {
		errors.Fatal(r.logger, ErrZeroOwner)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pools[owner]; ok {
		return p
	}

	p := New(owner, r.cfg, r.settings, r.logger)
	p.detach = func() { r.remove(owner, p) }
	r.pools[owner] = p
	metrics.ActivePools.Inc()
	r.logger.Debug("thread pool created",
		zap.String("owner", owner.String()),
		zap.String("thread_type", owner.ThreadType().String()))
	return p
}

// Lookup returns owner's pool without creating one.
func (r *Registry) Lookup(owner Owner) (*Pool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pools[owner]
	return p, ok
}

// Shutdown shuts owner's pool down and removes it. Unknown owners are
// ignored.
func (r *Registry) Shutdown(owner Owner) {
	if p, ok := r.Lookup(owner); ok {
		p.Shutdown()
	}
}

// ShutdownAll shuts down every pool in the registry.
func (r *Registry) ShutdownAll() {
	r.mu.Lock()
	pools := make([]*Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	r.mu.Unlock()

	for _, p := range pools {
		p.Shutdown()
	}
}

// Len returns the number of live pools.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pools)
}

// Owners returns the owners with live pools, ordered by name then creation.
func (r *Registry) Owners() []Owner {
	r.mu.Lock()
	owners := make([]Owner, 0, len(r.pools))
	for o := range r.pools {
		owners = append(owners, o)
	}
	r.mu.Unlock()

	sort.Slice(owners, func(i, j int) bool {
		if owners[i].name != owners[j].name {
			return owners[i].name < owners[j].name
		}
		return owners[i].id < owners[j].id
	})
	return owners
}

func (r *Registry) remove(owner Owner, p *Pool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pools[owner] == p {
		delete(r.pools, owner)
		metrics.ActivePools.Dec()
	}
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry, built on first use from the
// default configuration, DefaultSettings and the global logger.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry(config.Default(), DefaultSettings(), logger.Get())
	})
	return defaultRegistry
}
