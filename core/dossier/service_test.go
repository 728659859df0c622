package dossier_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
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
	oper := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)
	alien := st.CreateUser(t, "Bia", "bia@escola.br", testutil.Password, role.Operator, other.ID)

	nd := dossier.NewDossier{Number: " 001 ", Year: 2020, Name: "  Joao   Silva ", CPF: "529.982.247-25"}
	require.NoError(t, nd.Validate(st.Validate))
	d, err := st.Dossiers.Create(ctx, oper.Session(nil), nd)
	require.NoError(t, err)
	assert.Equal(t, "001", d.Number)
	assert.Equal(t, "Joao Silva", d.Name)
	assert.Equal(t, "52998224725", d.CPF)
	assert.Equal(t, home.ID, d.SchoolID)
	assert.Equal(t, dossier.StatusActive, d.Status)
	assert.Equal(t, oper.ID, *d.CreatedBy)

	_, err = st.Dossiers.Create(ctx, oper.Session(nil), dossier.NewDossier{Number: "001", Year: 2021, Name: "Outro"})
	assert.Equal(t, map[string]string{"number": dossier.ErrNumberExists.Error()}, fieldErrors(t, err))

	_, err = st.Dossiers.Create(ctx, oper.Session(nil), dossier.NewDossier{Number: "002", Year: 2020, Name: "Outro", CPF: "52998224725"})
	assert.Equal(t, map[string]string{"cpf": dossier.ErrCPFYearExists.Error()}, fieldErrors(t, err))

	// the same CPF another year is fine
	_, err = st.Dossiers.Create(ctx, oper.Session(nil), dossier.NewDossier{Number: "003", Year: 2021, Name: "Joao Silva", CPF: "52998224725"})
	assert.NoError(t, err)

	// numbers are unique per school
	_, err = st.Dossiers.Create(ctx, alien.Session(nil), dossier.NewDossier{Number: "001", Year: 2020, Name: "Carla"})
	assert.NoError(t, err)

	_, err = st.Dossiers.Get(ctx, d.ID, tenant.ForSchool(other.ID))
	assert.Equal(t, dossier.ErrNotFound, errors.Cause(err))
}

func TestService_Update(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	oper := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)
	d := st.CreateDossier(t, oper, "001", "Joao Silva")
	st.CreateDossier(t, oper, "002", "Bia Lima")

	ud := dossier.UpdateDossier{Location: strPtr(" Arquivo A ")}
	require.NoError(t, ud.Validate(d, st.Validate))
	updated, err := st.Dossiers.Update(ctx, d, ud)
	require.NoError(t, err)
	assert.Equal(t, "001", updated.Number, "unchanged fields keep their value")
	assert.Equal(t, "Arquivo A", updated.Location)

	ud = dossier.UpdateDossier{Number: "002"}
	require.NoError(t, ud.Validate(updated, st.Validate))
	_, err = st.Dossiers.Update(ctx, updated, ud)
	assert.Equal(t, map[string]string{"number": dossier.ErrNumberExists.Error()}, fieldErrors(t, err))
}

func TestService_ArchiveAndCounts(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	home := st.CreateSchool(t, "Escola Sede")
	oper := st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, home.ID)
	d := st.CreateDossier(t, oper, "001", "Joao Silva")
	loaned := st.CreateDossier(t, oper, "002", "Bia Lima")
	st.CreateDossier(t, oper, "003", "Carla Norte")

	_, err := st.Dossiers.Unarchive(ctx, d)
	assert.Equal(t, dossier.ErrNotArchived.Error(), err.Error())

	archived, err := st.Dossiers.Archive(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, dossier.StatusArchived, archived.Status)
	require.NotNil(t, archived.ArchivedAt)

	restored, err := st.Dossiers.Unarchive(ctx, archived)
	require.NoError(t, err)
	assert.Equal(t, dossier.StatusActive, restored.Status)
	assert.Nil(t, restored.ArchivedAt)
	_, err = st.Dossiers.Archive(ctx, restored)
	require.NoError(t, err)

	require.NoError(t, st.Dossiers.SetStatus(ctx, loaned.ID, dossier.StatusLoaned))
	loaned, err = st.Dossiers.Get(ctx, loaned.ID, tenant.AllSchools())
	require.NoError(t, err)
	assert.Equal(t, dossier.ErrLoaned.Error(), st.Dossiers.Delete(ctx, loaned).Error())

	counts, err := st.Dossiers.CountByStatus(ctx, tenant.ForSchool(home.ID))
	require.NoError(t, err)
	assert.Equal(t, map[dossier.Status]int{dossier.StatusActive: 1, dossier.StatusArchived: 1, dossier.StatusLoaned: 1}, counts)

	got, err := st.Dossiers.Query(ctx, dossier.QueryFilter{Status: dossier.StatusArchived}, tenant.ForSchool(home.ID), nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, d.ID, got[0].ID)

	got, err = st.Dossiers.Query(ctx, dossier.QueryFilter{Search: "lima"}, tenant.ForSchool(home.ID), nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, loaned.ID, got[0].ID)
}

func strPtr(s string) *string { return &s }
