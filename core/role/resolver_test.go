package role

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	logsvc "github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
)

type loaderMock struct {
	mu    sync.Mutex
	perms map[int64][]Permission
	calls int
	err   error
}

func (l *loaderMock) RolePermissions(_ context.Context, roleID int64) ([]Permission, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	perms, ok := l.perms[roleID]
	if !ok {
		return nil, ErrNotFound
	}
	return perms, nil
}

func (l *loaderMock) grant(roleID int64, perms ...Permission) {
	l.mu.Lock()
	l.perms[roleID] = perms
	l.mu.Unlock()
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func perm(m Module, a Action) Permission {
	return Permission{Name: PermissionName(m, a), Module: m, Action: a}
}

func newTestResolver(loader PermissionLoader, clock *fakeClock, max ...int) *Resolver {
	conf := ResolverConfig{TTL: time.Hour, Clock: clock.now}
	if len(max) > 0 {
		conf.MaxEntries = max[0]
	}
	return NewResolver(loader, logsvc.NewNopLogger(), conf)
}

func TestResolver_HasPermission(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{
		2: {perm(ModuleDossier, ActionView), perm(ModuleDossier, ActionCreate)},
		3: {},
	}}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	ctx := context.Background()

	super := Subject{UserID: 1, RoleID: 1, RoleName: SuperRoleName}
	operator := Subject{UserID: 2, RoleID: 2, RoleName: Operator}
	empty := Subject{UserID: 3, RoleID: 3, RoleName: ReadOnly}

	tests := []struct {
		name string
		sub  Subject
		m    Module
		a    Action
		want bool
	}{
		{name: "super: any catalog pair", sub: super, m: ModuleAdmin, a: ActionBackup, want: true},
		{name: "super: even unknown pair", sub: super, m: "lol", a: "lol", want: true},
		{name: "granted", sub: operator, m: ModuleDossier, a: ActionView, want: true},
		{name: "granted 2", sub: operator, m: ModuleDossier, a: ActionCreate, want: true},
		{name: "not granted", sub: operator, m: ModuleDossier, a: ActionDelete},
		{name: "other module", sub: operator, m: ModuleUser, a: ActionView},
		{name: "unknown module", sub: operator, m: "lol", a: ActionView},
		{name: "unknown action", sub: operator, m: ModuleDossier, a: "lol"},
		{name: "role without grants", sub: empty, m: ModuleDossier, a: ActionView},
		{name: "missing user", sub: Subject{RoleID: 2, RoleName: Operator}, m: ModuleDossier, a: ActionView},
		{name: "missing role", sub: Subject{UserID: 9, RoleName: Operator}, m: ModuleDossier, a: ActionView},
		{name: "unknown role", sub: Subject{UserID: 9, RoleID: 99}, m: ModuleDossier, a: ActionView},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.HasPermission(ctx, tt.sub, tt.m, tt.a))
		})
	}
}

func TestResolver_SuperRoleSkipsLookup(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{}}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	for _, p := range Catalog {
		assert.True(t, r.HasPermission(context.Background(), Subject{UserID: 1, RoleID: 1, RoleName: SuperRoleName}, p.Module, p.Action))
	}
	assert.Equal(t, 0, loader.calls)
}

func TestResolver_LoaderErrorDenies(t *testing.T) {
	loader := &loaderMock{err: errors.New("db down")}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	assert.False(t, r.HasPermission(context.Background(), Subject{UserID: 2, RoleID: 2}, ModuleDossier, ActionView))
}

func TestResolver_CacheTTLAndInvalidation(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{2: {perm(ModuleDossier, ActionView)}}}
	clock := &fakeClock{t: time.Now()}
	r := newTestResolver(loader, clock)
	ctx := context.Background()
	sub := Subject{UserID: 2, RoleID: 2, RoleName: Operator}

	assert.True(t, r.HasPermission(ctx, sub, ModuleDossier, ActionView))
	assert.False(t, r.HasPermission(ctx, sub, ModuleDossier, ActionEdit))
	assert.Equal(t, 1, loader.calls, "second check must be served from cache")

	// stale within TTL
	loader.grant(2, perm(ModuleDossier, ActionView), perm(ModuleDossier, ActionEdit))
	clock.advance(30 * time.Minute)
	assert.False(t, r.HasPermission(ctx, sub, ModuleDossier, ActionEdit))

	// expired
	clock.advance(31 * time.Minute)
	assert.Equal(t, CacheStats{Total: 1, Active: 0, Expired: 1}, r.Stats())
	assert.True(t, r.HasPermission(ctx, sub, ModuleDossier, ActionEdit))
	assert.Equal(t, 2, loader.calls)

	// invalidation
	loader.grant(2)
	r.InvalidateUser(2)
	assert.False(t, r.HasPermission(ctx, sub, ModuleDossier, ActionView))
	assert.Equal(t, 3, loader.calls)

	loader.grant(2, perm(ModuleDossier, ActionView))
	r.InvalidateAll()
	assert.Equal(t, CacheStats{}, r.Stats())
	assert.True(t, r.HasPermission(ctx, sub, ModuleDossier, ActionView))
}

// racingLoader answers with the permissions it read, then lets a concurrent write land before returning.
type racingLoader struct {
	*loaderMock
	during func()
}

func (l *racingLoader) RolePermissions(ctx context.Context, roleID int64) ([]Permission, error) {
	perms, err := l.loaderMock.RolePermissions(ctx, roleID)
	if l.during != nil {
		during := l.during
		l.during = nil
		during()
	}
	return perms, err
}

func TestResolver_InvalidationDuringLoad(t *testing.T) {
	tests := []struct {
		name       string
		invalidate func(r *Resolver)
	}{
		{name: "user", invalidate: func(r *Resolver) { r.InvalidateUser(2) }},
		{name: "another user", invalidate: func(r *Resolver) { r.InvalidateUser(9) }},
		{name: "all", invalidate: func(r *Resolver) { r.InvalidateAll() }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			loader := &racingLoader{loaderMock: &loaderMock{perms: map[int64][]Permission{2: {perm(ModuleDossier, ActionView)}}}}
			r := newTestResolver(loader, &fakeClock{t: time.Now()})
			ctx := context.Background()
			sub := Subject{UserID: 2, RoleID: 2, RoleName: Operator}

			loader.during = func() {
				loader.grant(2)
				tc.invalidate(r)
			}
			// the in-flight answer is still returned, it is just not kept
			assert.True(t, r.HasPermission(ctx, sub, ModuleDossier, ActionView))
			assert.Equal(t, CacheStats{}, r.Stats())

			assert.False(t, r.HasPermission(ctx, sub, ModuleDossier, ActionView))
			assert.Equal(t, 2, loader.calls)
			assert.Equal(t, CacheStats{Total: 1, Active: 1}, r.Stats())
		})
	}
}

func TestResolver_RoleChangeBypassesCache(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{
		2: {perm(ModuleDossier, ActionView)},
		3: {perm(ModuleUser, ActionView)},
	}}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	ctx := context.Background()

	assert.True(t, r.HasPermission(ctx, Subject{UserID: 5, RoleID: 2}, ModuleDossier, ActionView))
	assert.False(t, r.HasPermission(ctx, Subject{UserID: 5, RoleID: 3}, ModuleDossier, ActionView))
	assert.True(t, r.HasPermission(ctx, Subject{UserID: 5, RoleID: 3}, ModuleUser, ActionView))
}

func TestResolver_MaxEntries(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{2: {perm(ModuleDossier, ActionView)}}}
	clock := &fakeClock{t: time.Now()}
	r := newTestResolver(loader, clock, 2)
	ctx := context.Background()

	_ = r.Warm(ctx, Subject{UserID: 1, RoleID: 2})
	clock.advance(time.Minute)
	_ = r.Warm(ctx, Subject{UserID: 2, RoleID: 2})
	clock.advance(time.Minute)
	_ = r.Warm(ctx, Subject{UserID: 3, RoleID: 2})

	assert.Equal(t, 2, r.Stats().Total)
	calls := loader.calls
	r.HasPermission(ctx, Subject{UserID: 3, RoleID: 2}, ModuleDossier, ActionView)
	r.HasPermission(ctx, Subject{UserID: 2, RoleID: 2}, ModuleDossier, ActionView)
	assert.Equal(t, calls, loader.calls, "newest entries are kept")
}

func TestResolver_CanAccessMenu(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{2: {perm(ModuleDossier, ActionView)}}}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	ctx := context.Background()
	sub := Subject{UserID: 2, RoleID: 2}

	assert.True(t, r.CanAccessMenu(ctx, sub, "dossie"))
	assert.False(t, r.CanAccessMenu(ctx, sub, "admin"))
	assert.False(t, r.CanAccessMenu(ctx, sub, "lol"))
	assert.True(t, r.CanAccessMenu(ctx, Subject{UserID: 1, RoleID: 1, RoleName: SuperRoleName}, "admin"))
}

func TestResolver_Concurrent(t *testing.T) {
	loader := &loaderMock{perms: map[int64][]Permission{2: {perm(ModuleDossier, ActionView)}}}
	r := newTestResolver(loader, &fakeClock{t: time.Now()})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			if !r.HasPermission(ctx, Subject{UserID: id%5 + 1, RoleID: 2}, ModuleDossier, ActionView) {
				t.Error("permission denied")
			}
			if id%7 == 0 {
				r.InvalidateAll()
			}
		}(int64(i))
	}
	wg.Wait()
}

func TestParseModuleAction(t *testing.T) {
	m, err := ParseModule(" Dossie ")
	assert.NoError(t, err)
	assert.Equal(t, ModuleDossier, m)

	_, err = ParseModule("lol")
	assert.Equal(t, ErrUnknownPermission, err)

	a, err := ParseAction(ModuleReport, "gerar")
	assert.NoError(t, err)
	assert.Equal(t, ActionGen, a)

	_, err = ParseAction(ModuleDossier, "gerar")
	assert.Equal(t, ErrUnknownPermission, err)
}
