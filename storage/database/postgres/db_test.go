package pgrepos

import (
	"database/sql"
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

func TestSelectQuery(t *testing.T) {
	tests := []struct {
		name     string
		build    func(c *conds)
		orderBy  string
		page     core.Page
		wantSQL  string
		wantArgs []interface{}
	}{
		{
			name:    "no conditions",
			build:   func(c *conds) {},
			wantSQL: "SELECT * FROM t",
		},
		{
			name: "scoped search",
			build: func(c *conds) {
				c.scope(tenant.ForSchool(3), "school_id")
				c.search("ana", "name", "cpf")
			},
			orderBy:  "name ASC",
			wantSQL:  "SELECT * FROM t WHERE school_id = $1 AND (name ILIKE $2 OR cpf ILIKE $3) ORDER BY name ASC",
			wantArgs: []interface{}{int64(3), "%ana%", "%ana%"},
		},
		{
			name:     "unscoped with page",
			build:    func(c *conds) { c.scope(tenant.AllSchools(), "school_id") },
			page:     core.Page{Limit: 10, Offset: 20},
			wantSQL:  "SELECT * FROM t LIMIT $1 OFFSET $2",
			wantArgs: []interface{}{10, 20},
		},
		{
			name:     "page over the max",
			build:    func(c *conds) { c.add("active") },
			page:     core.Page{Limit: 10000},
			wantSQL:  "SELECT * FROM t WHERE active LIMIT $1 OFFSET $2",
			wantArgs: []interface{}{core.MaxPageSize, 0},
		},
		{
			name:     "empty search is ignored",
			build:    func(c *conds) { c.search("", "name"); c.add("id = ?", int64(1)) },
			wantSQL:  "SELECT * FROM t WHERE id = $1",
			wantArgs: []interface{}{int64(1)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c conds
			tt.build(&c)
			q, args := selectQuery("SELECT * FROM t", c, tt.orderBy, tt.page)
			assert.Equal(t, tt.wantSQL, q)
			if len(tt.wantArgs) == 0 {
				assert.Empty(t, args)
			} else {
				assert.Equal(t, tt.wantArgs, args)
			}
		})
	}
}

func TestExcludedIDs(t *testing.T) {
	q, args := excludedIDs(nil)
	assert.Empty(t, q)
	assert.Nil(t, args)

	q, args = excludedIDs([]int64{4, 7})
	assert.Equal(t, "id NOT IN (?, ?)", q)
	assert.Equal(t, []interface{}{int64(4), int64(7)}, args)
}

func TestIsUniqueViolation(t *testing.T) {
	dup := &pq.Error{Code: uniqueViolation, Constraint: "dossiers_school_cpf_year_key"}
	tests := []struct {
		name       string
		err        error
		constraint []string
		want       bool
	}{
		{name: "other error", err: errors.New("boom"), want: false},
		{name: "other pq error", err: &pq.Error{Code: "23503"}, want: false},
		{name: "any constraint", err: dup, want: true},
		{name: "wrapped", err: errors.Wrap(dup, "inserting"), want: true},
		{name: "matching constraint", err: dup, constraint: []string{"dossiers_school_cpf_year_key"}, want: true},
		{name: "other constraint", err: dup, constraint: []string{"dossiers_school_number_key"}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err, tt.constraint...); got != tt.want {
				t.Errorf("isUniqueViolation() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrapNoRowsErr(t *testing.T) {
	assert.Equal(t, dossier.ErrNotFound, trapNoRowsErr(sql.ErrNoRows, dossier.ErrNotFound, "finding dossier"))
	assert.Equal(t, dossier.ErrNotFound, trapNoRowsErr(errors.WithStack(sql.ErrNoRows), dossier.ErrNotFound, "finding dossier"))

	err := trapNoRowsErr(sql.ErrConnDone, dossier.ErrNotFound, "finding dossier")
	assert.EqualError(t, err, "finding dossier: "+sql.ErrConnDone.Error())
	assert.Equal(t, sql.ErrConnDone, errors.Cause(err))
}

func TestNullHelpers(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.True(t, nullString("x").Valid)
	assert.False(t, nullID(0).Valid)
	assert.Equal(t, int64(9), nullID(9).Int64)
	assert.Nil(t, utcPtr(nullTime(nil)))
}
