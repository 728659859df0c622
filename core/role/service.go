package role

import (
	"context"
	"errors"

	pkgerrors "github.com/pkg/errors"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

var (
	// errors
	ErrNotFound           = errors.New("role not found")
	ErrNameExists         = errors.New("a role with this name already exists")
	ErrUnknownPermission  = errors.New("unknown permission")
	ErrRoleInUse          = errors.New("role is assigned to users")
	ErrSuperRoleProtected = errors.New("the super role cannot be changed")
)

type (
	Repository interface {
		PermissionLoader

		CreateRole(ctx context.Context, r Role) (Role, error)
		GetRole(ctx context.Context, id int64) (Role, error)
		GetRoleByName(ctx context.Context, name string) (Role, error)
		QueryRoles(ctx context.Context) ([]Role, error)
		UpdateRole(ctx context.Context, r Role) (Role, error)
		DeleteRole(ctx context.Context, id int64) error
		CountRoleUsers(ctx context.Context, id int64) (int, error)

		// EnsurePermissions inserts the catalog entries that do not exist yet.
		EnsurePermissions(ctx context.Context, perms []Permission) error
		QueryPermissions(ctx context.Context) ([]Permission, error)
		// SetRolePermissions replaces the role's grants by the named permissions.
		SetRolePermissions(ctx context.Context, roleID int64, names []string) error
	}

	// InvalidationPublisher broadcasts cache invalidations to other processes. userID 0 means everyone.
	InvalidationPublisher interface {
		PublishInvalidation(ctx context.Context, userID int64) error
	}

	Service struct {
		repo      Repository
		resolver  *Resolver
		publisher InvalidationPublisher
		logger    core.Logger
	}
)

func NewService(repo Repository, resolver *Resolver, logger core.Logger) *Service {
	return &Service{repo: repo, resolver: resolver, logger: logger}
}

// SetPublisher attaches a cross-process invalidation channel.
func (svc *Service) SetPublisher(p InvalidationPublisher) {
	svc.publisher = p
}

func (svc *Service) Resolver() *Resolver { return svc.resolver }

func (svc *Service) invalidateAll(ctx context.Context) {
	svc.resolver.InvalidateAll()
	if svc.publisher != nil {
		if err := svc.publisher.PublishInvalidation(ctx, 0); err != nil {
			svc.logger.Warn("publishing permission cache invalidation", err)
		}
	}
}

// InvalidateUser drops the cached permission set of one user, here and on the cache bus.
func (svc *Service) InvalidateUser(ctx context.Context, userID int64) {
	svc.resolver.InvalidateUser(userID)
	if svc.publisher != nil {
		if err := svc.publisher.PublishInvalidation(ctx, userID); err != nil {
			svc.logger.Warn("publishing permission cache invalidation", err)
		}
	}
}

func (svc *Service) checkUniqueness(ctx context.Context, name string, excl ...Role) error {
	r, err := svc.repo.GetRoleByName(ctx, name)
	if err != nil {
		if pkgerrors.Cause(err) == ErrNotFound {
			return nil
		}
		return pkgerrors.Wrap(err, "finding role by name")
	}
	if len(excl) > 0 && excl[0].ID == r.ID {
		return nil
	}
	return core.NewFieldValidationError("name", ErrNameExists)
}

func (svc *Service) Create(ctx context.Context, nr NewRole) (Role, error) {
	if err := svc.checkUniqueness(ctx, nr.Name); err != nil {
		return Role{}, err
	}
	now := core.Now()
	return svc.repo.CreateRole(ctx, Role{Name: nr.Name, Description: nr.Description, CreatedAt: now, UpdatedAt: now})
}

func (svc *Service) Get(ctx context.Context, id int64) (Role, error) {
	return svc.repo.GetRole(ctx, id)
}

func (svc *Service) GetByName(ctx context.Context, name string) (Role, error) {
	return svc.repo.GetRoleByName(ctx, core.CleanString(name))
}

func (svc *Service) Query(ctx context.Context) ([]Role, error) {
	return svc.repo.QueryRoles(ctx)
}

func (svc *Service) Update(ctx context.Context, orig Role, ur UpdateRole) (Role, error) {
	if orig.IsSuper() && ur.Name != orig.Name {
		return Role{}, core.NewFieldValidationError("name", ErrSuperRoleProtected)
	}
	if err := svc.checkUniqueness(ctx, ur.Name, orig); err != nil {
		return Role{}, err
	}
	r := orig
	r.Name = ur.Name
	if ur.Description != nil {
		r.Description = *ur.Description
	}
	r.UpdatedAt = core.Now()
	updated, err := svc.repo.UpdateRole(ctx, r)
	if err != nil {
		return Role{}, err
	}
	svc.invalidateAll(ctx)
	return updated, nil
}

func (svc *Service) Delete(ctx context.Context, r Role) error {
	if r.IsSuper() {
		return core.NewValidationError(ErrSuperRoleProtected)
	}
	n, err := svc.repo.CountRoleUsers(ctx, r.ID)
	if err != nil {
		return pkgerrors.Wrap(err, "counting role users")
	}
	if n > 0 {
		return core.NewValidationError(ErrRoleInUse)
	}
	if err := svc.repo.DeleteRole(ctx, r.ID); err != nil {
		return err
	}
	svc.invalidateAll(ctx)
	return nil
}

func (svc *Service) Permissions(ctx context.Context, r Role) ([]Permission, error) {
	if r.IsSuper() {
		return Catalog, nil
	}
	return svc.repo.RolePermissions(ctx, r.ID)
}

// SetPermissions replaces the grants of r and drops every cached permission set.
func (svc *Service) SetPermissions(ctx context.Context, r Role, perms []Permission) error {
	if r.IsSuper() {
		return core.NewValidationError(ErrSuperRoleProtected)
	}
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, PermissionName(p.Module, p.Action))
	}
	if err := svc.repo.SetRolePermissions(ctx, r.ID, names); err != nil {
		return pkgerrors.Wrap(err, "setting role permissions")
	}
	svc.invalidateAll(ctx)
	return nil
}

func (svc *Service) QueryPermissions(ctx context.Context) ([]Permission, error) {
	return svc.repo.QueryPermissions(ctx)
}

// Seed makes sure the permission catalog and the default roles exist.
// Existing roles keep their grants.
func (svc *Service) Seed(ctx context.Context) error {
	if err := svc.repo.EnsurePermissions(ctx, Catalog); err != nil {
		return pkgerrors.Wrap(err, "seeding permissions")
	}
	for name, perms := range DefaultRoles() {
		if _, err := svc.repo.GetRoleByName(ctx, name); err == nil {
			continue
		} else if pkgerrors.Cause(err) != ErrNotFound {
			return pkgerrors.Wrap(err, "finding role "+name)
		}
		now := core.Now()
		r, err := svc.repo.CreateRole(ctx, Role{Name: name, Description: name, CreatedAt: now, UpdatedAt: now})
		if err != nil {
			return pkgerrors.Wrap(err, "creating role "+name)
		}
		if r.IsSuper() {
			continue
		}
		names := make([]string, 0, len(perms))
		for _, p := range perms {
			names = append(names, p.Name)
		}
		if err := svc.repo.SetRolePermissions(ctx, r.ID, names); err != nil {
			return pkgerrors.Wrap(err, "granting permissions to "+name)
		}
	}
	svc.invalidateAll(ctx)
	return nil
}
