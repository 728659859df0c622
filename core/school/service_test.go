package school_test

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/school"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func TestNewSchool_Validate(t *testing.T) {
	validate, _ := testutil.NewValidator()
	tests := []struct {
		name    string
		ns      school.NewSchool
		wantErr bool
	}{
		{name: "name only", ns: school.NewSchool{Name: "Escola"}},
		{name: "formatted cnpj", ns: school.NewSchool{Name: "Escola", CNPJ: "11.222.333/0001-81"}},
		{name: "bad cnpj check digits", ns: school.NewSchool{Name: "Escola", CNPJ: "11.222.333/0001-00"}, wantErr: true},
		{name: "repeated digits", ns: school.NewSchool{Name: "Escola", CNPJ: "11111111111111"}, wantErr: true},
		{name: "unknown uf", ns: school.NewSchool{Name: "Escola", UF: "XX"}, wantErr: true},
		{name: "missing name", ns: school.NewSchool{Name: "  "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.ns.Validate(validate)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestService(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()

	ns := school.NewSchool{Name: " Escola Rural ", CNPJ: "11.222.333/0001-81", INEP: "26123456", UF: "pe"}
	require.NoError(t, ns.Validate(st.Validate))
	s, err := st.Schools.Create(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, "Escola Rural", s.Name)
	assert.Equal(t, "11.222.333/0001-81", s.FormattedCNPJ())
	assert.True(t, s.IsActive())

	_, err = st.Schools.Create(ctx, school.NewSchool{Name: "Copia", CNPJ: "11222333000181"})
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "cnpj", verr.Fields[0].Field)

	_, err = st.Schools.Create(ctx, school.NewSchool{Name: "Copia", INEP: "26123456"})
	verr, ok = errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "got %v", err)
	assert.Equal(t, "inep", verr.Fields[0].Field)

	// updating a school keeps its own cnpj
	suspended := school.StatusSuspended
	us := school.UpdateSchool{Status: &suspended}
	require.NoError(t, us.Validate(s, st.Validate))
	s, err = st.Schools.Update(ctx, s, us)
	require.NoError(t, err)
	assert.Equal(t, school.StatusSuspended, s.Status)
	assert.Equal(t, "11222333000181", s.CNPJ)

	other := st.CreateSchool(t, "Escola Norte")
	_, err = st.Schools.Get(ctx, s.ID, tenant.ForSchool(other.ID))
	assert.Equal(t, school.ErrNotFound, err)

	st.CreateUser(t, "Ana", "ana@escola.br", testutil.Password, role.Operator, other.ID)
	err = st.Schools.Delete(ctx, other)
	assert.Equal(t, school.ErrHasDependents.Error(), err.Error())

	require.NoError(t, st.Schools.Delete(ctx, s))
	_, err = st.Schools.Get(ctx, s.ID, tenant.AllSchools())
	assert.Equal(t, school.ErrNotFound, errors.Cause(err))
}
