package role

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

const (
	DefaultCacheTTL        = time.Hour
	DefaultCacheMaxEntries = 1000
)

type (
	// PermissionLoader returns the permissions granted to a role.
	PermissionLoader interface {
		RolePermissions(ctx context.Context, roleID int64) ([]Permission, error)
	}

	ResolverConfig struct {
		TTL        time.Duration
		MaxEntries int
		Clock      func() time.Time
	}

	CacheStats struct {
		Total   int `json:"total_entries"`
		Active  int `json:"active_entries"`
		Expired int `json:"expired_entries"`
	}

	cacheEntry struct {
		roleID   int64
		perms    Set
		loadedAt time.Time
	}

	// Resolver answers permission checks. Role permission sets are cached per user id for TTL.
	// Staleness up to TTL is accepted; writes to role assignments must call InvalidateAll.
	Resolver struct {
		loader     PermissionLoader
		logger     core.Logger
		ttl        time.Duration
		maxEntries int
		now        func() time.Time

		mu      sync.Mutex
		entries map[int64]cacheEntry
		// gen moves on every invalidation. A load that started before one is not cached.
		gen uint64
	}
)

func NewResolver(loader PermissionLoader, logger core.Logger, conf ResolverConfig) *Resolver {
	if conf.TTL <= 0 {
		conf.TTL = DefaultCacheTTL
	}
	if conf.MaxEntries <= 0 {
		conf.MaxEntries = DefaultCacheMaxEntries
	}
	if conf.Clock == nil {
		conf.Clock = time.Now
	}
	return &Resolver{
		loader:     loader,
		logger:     logger,
		ttl:        conf.TTL,
		maxEntries: conf.MaxEntries,
		now:        conf.Clock,
		entries:    make(map[int64]cacheEntry),
	}
}

// HasPermission never fails: unknown pairs, missing users or roles and loader errors all deny.
func (r *Resolver) HasPermission(ctx context.Context, sub Subject, m Module, a Action) bool {
	if sub.IsSuper() {
		return true
	}
	if sub.UserID == 0 || sub.RoleID == 0 || !Known(m, a) {
		return false
	}
	perms, err := r.Permissions(ctx, sub)
	if err != nil {
		if errors.Cause(err) != ErrNotFound {
			r.logger.Error("resolving permissions", errors.Wrapf(err, "user %d", sub.UserID))
		}
		return false
	}
	return perms.Has(m, a)
}

// CanAccessMenu reports whether sub holds any action on one of the menu's modules.
func (r *Resolver) CanAccessMenu(ctx context.Context, sub Subject, menu string) bool {
	mods, ok := Menus[menu]
	if !ok {
		return false
	}
	if sub.IsSuper() {
		return true
	}
	perms, err := r.Permissions(ctx, sub)
	if err != nil {
		return false
	}
	for _, m := range mods {
		if len(perms[m]) > 0 {
			return true
		}
	}
	return false
}

// Permissions returns the permission set of sub, from cache when fresh.
func (r *Resolver) Permissions(ctx context.Context, sub Subject) (Set, error) {
	if sub.IsSuper() {
		return NewSet(Catalog...), nil
	}
	if sub.RoleID == 0 {
		return nil, ErrNotFound
	}

	now := r.now()
	r.mu.Lock()
	entry, ok := r.entries[sub.UserID]
	gen := r.gen
	r.mu.Unlock()
	if ok && entry.roleID == sub.RoleID && now.Sub(entry.loadedAt) < r.ttl {
		return entry.perms, nil
	}

	// load outside the lock, the loader hits the database
	perms, err := r.loader.RolePermissions(ctx, sub.RoleID)
	if err != nil {
		return nil, errors.Wrap(err, "loading role permissions")
	}
	set := NewSet(perms...)
	r.store(sub.UserID, cacheEntry{roleID: sub.RoleID, perms: set, loadedAt: now}, gen)
	return set, nil
}

// store caches entry unless an invalidation happened after gen was read.
func (r *Resolver) store(userID int64, entry cacheEntry, gen uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return
	}

	if _, ok := r.entries[userID]; !ok && len(r.entries) >= r.maxEntries {
		r.purgeExpired(entry.loadedAt)
		if len(r.entries) >= r.maxEntries {
			r.evictOldest()
		}
	}
	r.entries[userID] = entry
}

// purgeExpired must be called with mu held.
func (r *Resolver) purgeExpired(now time.Time) {
	for id, e := range r.entries {
		if now.Sub(e.loadedAt) >= r.ttl {
			delete(r.entries, id)
		}
	}
}

// evictOldest must be called with mu held.
func (r *Resolver) evictOldest() {
	var (
		oldestID int64
		oldest   time.Time
		found    bool
	)
	for id, e := range r.entries {
		if !found || e.loadedAt.Before(oldest) {
			oldestID, oldest, found = id, e.loadedAt, true
		}
	}
	if found {
		delete(r.entries, oldestID)
	}
}

func (r *Resolver) InvalidateUser(userID int64) {
	r.mu.Lock()
	delete(r.entries, userID)
	r.gen++
	r.mu.Unlock()
}

func (r *Resolver) InvalidateAll() {
	r.mu.Lock()
	r.entries = make(map[int64]cacheEntry)
	r.gen++
	r.mu.Unlock()
}

// Warm preloads the permission sets of the given subjects.
func (r *Resolver) Warm(ctx context.Context, subs ...Subject) error {
	for _, sub := range subs {
		if sub.IsSuper() {
			continue
		}
		if _, err := r.Permissions(ctx, sub); err != nil {
			return errors.Wrapf(err, "warming permissions of user %d", sub.UserID)
		}
	}
	return nil
}

func (r *Resolver) Stats() CacheStats {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()

	stats := CacheStats{Total: len(r.entries)}
	for _, e := range r.entries {
		if now.Sub(e.loadedAt) >= r.ttl {
			stats.Expired++
		}
	}
	stats.Active = stats.Total - stats.Expired
	return stats
}
