package instance

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const snapshotCacheKey = "searchgate:instances:snapshot"

// Registry provides in-memory access to upstream instances. It refreshes a
// sorted snapshot from the database periodically and mirrors it to Redis so
// a process with a briefly unreachable database can still select candidates.
// Staleness is acceptable: the proxy verifies liveness by the call itself.
type Registry struct {
	mu       sync.RWMutex
	snapshot []*SearchInstance

	repo        Repository
	cache       redis.UniversalClient
	logger      *zap.Logger
	defaultURLs []string

	refreshInterval time.Duration
	snapshotTTL     time.Duration
	stopRefresh     chan struct{}
}

// RegistryConfig contains registry configuration.
type RegistryConfig struct {
	DefaultURLs     []string
	RefreshInterval time.Duration
	SnapshotTTL     time.Duration
}

// NewRegistry creates a new instance registry. The Redis client may be nil;
// the snapshot mirror is then disabled.
func NewRegistry(repo Repository, cache redis.UniversalClient, cfg RegistryConfig, logger *zap.Logger) *Registry {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = time.Minute
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 5 * time.Minute
	}
	return &Registry{
		repo:            repo,
		cache:           cache,
		logger:          logger,
		defaultURLs:     cfg.DefaultURLs,
		refreshInterval: cfg.RefreshInterval,
		snapshotTTL:     cfg.SnapshotTTL,
		stopRefresh:     make(chan struct{}),
	}
}

// Start loads the initial snapshot and starts the background refresh.
func (r *Registry) Start(ctx context.Context) error {
	if err := r.Refresh(ctx); err != nil {
		return fmt.Errorf("initial refresh: %w", err)
	}
	go r.refreshLoop()
	return nil
}

// Stop stops the background refresh.
func (r *Registry) Stop() {
	close(r.stopRefresh)
}

// Refresh reloads the snapshot from the database, falling back to the Redis
// mirror when the database is unavailable.
func (r *Registry) Refresh(ctx context.Context) error {
	instances, err := r.repo.ListActive(ctx)
	if err != nil {
		if cached, cacheErr := r.loadCachedSnapshot(ctx); cacheErr == nil {
			r.logger.Warn("instance refresh failed, using cached snapshot", zap.Error(err))
			r.setSnapshot(cached)
			return nil
		}
		return err
	}

	sort.SliceStable(instances, func(i, j int) bool {
		return instances[i].Priority > instances[j].Priority
	})

	r.setSnapshot(instances)
	r.storeCachedSnapshot(ctx, instances)
	return nil
}

func (r *Registry) refreshLoop() {
	ticker := time.NewTicker(r.refreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopRefresh:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := r.Refresh(ctx); err != nil {
				r.logger.Warn("instance registry refresh failed", zap.Error(err))
			}
			cancel()
		}
	}
}

func (r *Registry) setSnapshot(instances []*SearchInstance) {
	r.mu.Lock()
	r.snapshot = instances
	r.mu.Unlock()
}

// SelectCandidates returns the instances eligible for a search attempt,
// ordered by descending priority. When no registered instance is both active
// and healthy it degrades to the static default list instead of failing
// admission outright.
func (r *Registry) SelectCandidates() []*SearchInstance {
	r.mu.RLock()
	snapshot := r.snapshot
	r.mu.RUnlock()

	var candidates []*SearchInstance
	for _, inst := range snapshot {
		if inst.IsEligible() {
			candidates = append(candidates, inst)
		}
	}
	if len(candidates) > 0 {
		return candidates
	}

	fallback := make([]*SearchInstance, 0, len(r.defaultURLs))
	for _, url := range r.defaultURLs {
		fallback = append(fallback, &SearchInstance{
			URL:          url,
			IsActive:     true,
			HealthStatus: HealthStatusUnknown,
		})
	}
	return fallback
}

// All returns the current snapshot, eligible or not.
func (r *Registry) All() []*SearchInstance {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*SearchInstance, len(r.snapshot))
	copy(out, r.snapshot)
	return out
}

// MarkHealth updates the in-memory health of an instance by URL. The durable
// row is updated by the health monitor; this keeps the snapshot consistent
// between refreshes.
func (r *Registry) MarkHealth(url string, status HealthStatus) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inst := range r.snapshot {
		if inst.URL == url {
			inst.HealthStatus = status
		}
	}
}

func (r *Registry) storeCachedSnapshot(ctx context.Context, instances []*SearchInstance) {
	if r.cache == nil {
		return
	}
	data, err := json.Marshal(instances)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, snapshotCacheKey, data, r.snapshotTTL).Err(); err != nil {
		r.logger.Debug("failed to mirror instance snapshot", zap.Error(err))
	}
}

func (r *Registry) loadCachedSnapshot(ctx context.Context) ([]*SearchInstance, error) {
	if r.cache == nil {
		return nil, redis.Nil
	}
	data, err := r.cache.Get(ctx, snapshotCacheKey).Bytes()
	if err != nil {
		return nil, err
	}
	var instances []*SearchInstance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}
