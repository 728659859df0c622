package user_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func fieldErrors(t *testing.T, err error) map[string]string {
	t.Helper()
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	out := make(map[string]string, len(verr.Fields))
	for _, f := range verr.Fields {
		out[f.Field] = f.Error
	}
	return out
}

func TestService_Create(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	other := st.CreateSchool(t, "Escola Norte")
	admin := st.CreateUser(t, "Admin", "admin@escola.br", testutil.Password, role.SchoolAdmin, home.ID)
	super := st.CreateUser(t, "Root", "root@escola.br", testutil.Password, role.SuperRoleName, home.ID)
	operRole := st.Role(t, role.Operator)
	superRole := st.Role(t, role.SuperRoleName)

	nu := func(email string, schoolID, roleID int64) user.NewUser {
		return user.NewUser{Name: "Ana", Email: email, SchoolID: schoolID, RoleID: roleID, Password: testutil.Password, PasswordConfirm: testutil.Password}
	}

	_, err := st.Users.Create(ctx, admin.Session(nil), nu("ana@escola.br", other.ID, operRole.ID))
	assert.Equal(t, map[string]string{"school_id": user.ErrSchoolForbidden.Error()}, fieldErrors(t, err))

	_, err = st.Users.Create(ctx, admin.Session(nil), nu("ana@escola.br", home.ID, superRole.ID))
	assert.Equal(t, map[string]string{"role_id": user.ErrRoleForbidden.Error()}, fieldErrors(t, err))

	_, err = st.Users.Create(ctx, admin.Session(nil), nu("ana@escola.br", home.ID, 9999))
	assert.Equal(t, map[string]string{"role_id": user.ErrUnknownRole.Error()}, fieldErrors(t, err))

	usr, err := st.Users.Create(ctx, admin.Session(nil), nu("ana@escola.br", home.ID, operRole.ID))
	require.NoError(t, err)
	assert.Equal(t, role.Operator, usr.RoleName)
	assert.Equal(t, user.StatusActive, usr.Status)
	assert.NoError(t, usr.CheckPassword(testutil.Password))

	// the super role places users anywhere
	usr, err = st.Users.Create(ctx, super.Session(nil), nu("bia@escola.br", other.ID, superRole.ID))
	require.NoError(t, err)
	assert.Equal(t, other.ID, usr.SchoolID)
	assert.True(t, usr.IsSuper())

	// scoped reads
	_, err = st.Users.Get(ctx, usr.ID, tenant.ForSchool(home.ID))
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
	_, err = st.Users.Get(ctx, usr.ID, tenant.AllSchools())
	assert.NoError(t, err)
}

func TestService_Validate(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)

	nu := user.NewUser{Name: " Bia ", Email: " ANA@Escola.br ", SchoolID: home.ID, RoleID: 1, Password: testutil.Password, PasswordConfirm: testutil.Password}
	err := nu.Validate(ctx, st.Validate, st.Users)
	assert.Equal(t, map[string]string{"email": user.ErrEmailExists.Error()}, fieldErrors(t, err))
	assert.Equal(t, "Bia", nu.Name)
	assert.Equal(t, "ana@escola.br", nu.Email)
}

func TestService_Update(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	admin := st.CreateUser(t, "Admin", "admin@escola.br", testutil.Password, role.SchoolAdmin, home.ID)
	usr := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)

	// warm the cache, a role change must drop it
	_, err := st.Roles.Resolver().Permissions(ctx, usr.Subject())
	require.NoError(t, err)
	before := st.Roles.Resolver().Stats().Total

	readOnly := st.Role(t, role.ReadOnly)
	phone := "81999991234"
	updated, err := st.Users.Update(ctx, admin.Session(nil), usr, user.UpdateUser{Name: "Ana Souza", Email: usr.Email, Phone: &phone, RoleID: &readOnly.ID})
	require.NoError(t, err)
	assert.Equal(t, "Ana Souza", updated.Name)
	assert.Equal(t, role.ReadOnly, updated.RoleName)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, before-1, st.Roles.Resolver().Stats().Total)

	superRole := st.Role(t, role.SuperRoleName)
	_, err = st.Users.Update(ctx, admin.Session(nil), updated, user.UpdateUser{Name: "Ana", Email: usr.Email, RoleID: &superRole.ID})
	assert.Equal(t, map[string]string{"role_id": user.ErrRoleForbidden.Error()}, fieldErrors(t, err))
}

func TestService_Delete(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	admin := st.CreateUser(t, "Admin", "admin@escola.br", testutil.Password, role.SchoolAdmin, home.ID)
	super := st.CreateUser(t, "Root", "root@escola.br", testutil.Password, role.SuperRoleName, home.ID)
	usr := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)

	err := st.Users.Delete(ctx, admin.Session(nil), admin)
	assert.Equal(t, user.ErrDeleteSelf.Error(), err.Error())
	assert.True(t, core.IsValidationError(err))

	assert.Equal(t, core.ErrForbidden, st.Users.Delete(ctx, admin.Session(nil), super))

	require.NoError(t, st.Users.Delete(ctx, admin.Session(nil), usr))
	_, err = st.Users.Get(ctx, usr.ID, tenant.AllSchools())
	assert.Equal(t, user.ErrNotFound, errors.Cause(err))
}

func TestService_ResetPassword(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	usr := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)

	require.NoError(t, st.Users.RequestPasswordReset(ctx, "ANA@escola.br"))
	sent := st.Mail.SentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "ana@escola.br", sent[0].To[0].Address)

	assert.Equal(t, user.ErrNotFound, errors.Cause(st.Users.RequestPasswordReset(ctx, "nobody@escola.br")))

	newPwd := "N0va!Senha#2024"
	_, err := st.Users.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: "bad", Password: newPwd, PasswordConfirm: newPwd})
	assert.Contains(t, fieldErrors(t, err), "token")

	_, err = st.Users.ResetPassword(ctx, user.ResetUserPassword{UID: "!!", Token: st.Users.MakeResetToken(usr), Password: newPwd, PasswordConfirm: newPwd})
	assert.Contains(t, fieldErrors(t, err), "token")

	updated, err := st.Users.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: st.Users.MakeResetToken(usr), Password: newPwd, PasswordConfirm: newPwd})
	require.NoError(t, err)
	assert.NoError(t, updated.CheckPassword(newPwd))

	// a token is single use: it is bound to the old password hash
	_, err = st.Users.ResetPassword(ctx, user.ResetUserPassword{UID: user.EncodeUID(usr), Token: st.Users.MakeResetToken(usr), Password: newPwd, PasswordConfirm: newPwd})
	assert.Contains(t, fieldErrors(t, err), "token")
}
