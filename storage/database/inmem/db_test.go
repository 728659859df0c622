package inmemdb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/audit"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/movement"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/setting"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/tenant"
)

type row struct {
	id   int64
	name string
}

var rowComparers = comparers[row]{
	"id":   byID(func(r row) int64 { return r.id }),
	"name": func(a, b row) int { return cmpFold(a.name, b.name) },
}

func TestSortRows(t *testing.T) {
	rows := func() []row {
		return []row{{3, "bia"}, {1, "Ana"}, {2, "bia"}, {4, "caio"}}
	}
	tests := []struct {
		name     string
		ordering []core.DBOrdering
		want     []int64
	}{
		{name: "fallback", want: []int64{1, 2, 3, 4}},
		{name: "unknown field uses fallback", ordering: []core.DBOrdering{asc("lol")}, want: []int64{1, 2, 3, 4}},
		{name: "name asc keeps ties stable", ordering: []core.DBOrdering{asc("name")}, want: []int64{1, 3, 2, 4}},
		{name: "name desc then id", ordering: []core.DBOrdering{desc("name"), asc("id")}, want: []int64{4, 2, 3, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := rows()
			sortRows(rs, tt.ordering, rowComparers, asc("id"))
			got := make([]int64, 0, len(rs))
			for _, r := range rs {
				got = append(got, r.id)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPaginate(t *testing.T) {
	rows := []int{1, 2, 3, 4, 5}
	assert.Equal(t, rows, paginate(rows, core.Page{}))
	assert.Equal(t, []int{3, 4}, paginate(rows, core.Page{Limit: 2, Offset: 2}))
	assert.Equal(t, []int{5}, paginate(rows, core.Page{Limit: 2, Offset: 4}))
	assert.Empty(t, paginate(rows, core.Page{Limit: 2, Offset: 10}))
}

func TestDossierRepository(t *testing.T) {
	ctx := context.Background()
	db := Open()
	repo := NewDossierRepository(db)
	attRepo := NewAttachmentRepository(db)
	movRepo := NewMovementRepository(db)

	d1, err := repo.CreateDossier(ctx, dossier.Dossier{Number: "001", Year: 2023, Name: "Ana", CPF: "52998224725", SchoolID: 1, Status: dossier.StatusActive})
	require.NoError(t, err)
	d2, err := repo.CreateDossier(ctx, dossier.Dossier{Number: "001", Year: 2023, Name: "Bia", SchoolID: 2, Status: dossier.StatusActive})
	require.NoError(t, err)

	t.Run("uniqueness", func(t *testing.T) {
		tests := []struct {
			name     string
			schoolID int64
			number   string
			cpf      string
			year     int
			excl     []dossier.Dossier
			wantErr  error
		}{
			{name: "same number same school", schoolID: 1, number: "001", year: 2024, wantErr: dossier.ErrNumberExists},
			{name: "same number other school", schoolID: 3, number: "001", year: 2023},
			{name: "same cpf and year", schoolID: 1, number: "002", cpf: "52998224725", year: 2023, wantErr: dossier.ErrCPFYearExists},
			{name: "same cpf other year", schoolID: 1, number: "002", cpf: "52998224725", year: 2024},
			{name: "same cpf and year in other school", schoolID: 2, number: "002", cpf: "52998224725", year: 2023},
			{name: "excluding itself", schoolID: 1, number: "001", cpf: "52998224725", year: 2023, excl: []dossier.Dossier{d1}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				err := repo.CheckDossierUniqueness(ctx, tt.schoolID, tt.number, tt.cpf, tt.year, tt.excl...)
				assert.Equal(t, tt.wantErr, err)
			})
		}
	})

	t.Run("scope", func(t *testing.T) {
		_, err := repo.GetDossier(ctx, d2.ID, tenant.ForSchool(1))
		assert.Equal(t, dossier.ErrNotFound, err)
		got, err := repo.GetDossier(ctx, d2.ID, tenant.AllSchools())
		require.NoError(t, err)
		assert.Equal(t, d2, got)

		ds, err := repo.QueryDossiers(ctx, dossier.QueryFilter{}, tenant.ForSchool(1), nil, core.Page{})
		require.NoError(t, err)
		assert.Equal(t, []dossier.Dossier{d1}, ds)
	})

	t.Run("delete cascades", func(t *testing.T) {
		_, err := attRepo.CreateAttachment(ctx, attachment.Attachment{DossierID: d1.ID, OriginalName: "a.pdf"})
		require.NoError(t, err)
		_, err = movRepo.CreateMovement(ctx, movement.Movement{DossierID: d1.ID, SchoolID: 1, Kind: movement.KindConsultation})
		require.NoError(t, err)

		require.NoError(t, repo.DeleteDossier(ctx, d1.ID))
		atts, err := attRepo.QueryAttachments(ctx, d1.ID)
		require.NoError(t, err)
		assert.Empty(t, atts)
		movs, err := movRepo.QueryMovements(ctx, movement.QueryFilter{DossierID: d1.ID}, tenant.AllSchools(), nil, core.Page{})
		require.NoError(t, err)
		assert.Empty(t, movs)
		assert.Equal(t, dossier.ErrNotFound, repo.DeleteDossier(ctx, d1.ID))
	})
}

func TestMovementRepository_overdue(t *testing.T) {
	ctx := context.Background()
	repo := NewMovementRepository(Open())
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	past, future := now.Add(-48*time.Hour), now.Add(48*time.Hour)

	late, err := repo.CreateMovement(ctx, movement.Movement{Kind: movement.KindLoan, Status: movement.StatusPending, SchoolID: 1, ExpectedReturnAt: &past, OccurredAt: past.Add(-time.Hour)})
	require.NoError(t, err)
	_, err = repo.CreateMovement(ctx, movement.Movement{Kind: movement.KindLoan, Status: movement.StatusPending, SchoolID: 1, ExpectedReturnAt: &future})
	require.NoError(t, err)
	_, err = repo.CreateMovement(ctx, movement.Movement{Kind: movement.KindLoan, Status: movement.StatusConcluded, SchoolID: 1, ExpectedReturnAt: &past})
	require.NoError(t, err)
	_, err = repo.CreateMovement(ctx, movement.Movement{Kind: movement.KindLoan, Status: movement.StatusPending, SchoolID: 2, ExpectedReturnAt: &past})
	require.NoError(t, err)

	movs, err := repo.QueryMovements(ctx, movement.QueryFilter{OverdueAt: now}, tenant.ForSchool(1), nil, core.Page{})
	require.NoError(t, err)
	require.Len(t, movs, 1)
	assert.Equal(t, late.ID, movs[0].ID)
	assert.Equal(t, 3, movs[0].DaysOverdue(now))

	counts, err := repo.CountMovementsByStatus(ctx, tenant.ForSchool(1))
	require.NoError(t, err)
	assert.Equal(t, map[movement.Status]int{movement.StatusPending: 2, movement.StatusConcluded: 1}, counts)
}

func TestAuditRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewAuditRepository(Open())
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, l := range []audit.Log{
		{Action: audit.ActionLogin, UserID: audit.Int64Ptr(1), SchoolID: audit.Int64Ptr(1)},
		{Action: audit.ActionLoginFailed, SchoolID: audit.Int64Ptr(2)},
		{Action: audit.ActionLoginFailed, UserID: audit.Int64Ptr(1), SchoolID: audit.Int64Ptr(1)},
		{Action: audit.ActionBackup},
	} {
		l.At = base.Add(time.Duration(i) * time.Hour)
		_, err := repo.CreateAuditLog(ctx, l)
		require.NoError(t, err)
	}

	actions := func(logs []audit.Log) []audit.Action {
		out := make([]audit.Action, 0, len(logs))
		for _, l := range logs {
			out = append(out, l.Action)
		}
		return out
	}

	tests := []struct {
		name   string
		filter audit.QueryFilter
		scope  tenant.Scope
		want   []audit.Action
	}{
		{name: "all, newest first", scope: tenant.AllSchools(), want: []audit.Action{audit.ActionBackup, audit.ActionLoginFailed, audit.ActionLoginFailed, audit.ActionLogin}},
		{name: "school scope hides other and system rows", scope: tenant.ForSchool(1), want: []audit.Action{audit.ActionLoginFailed, audit.ActionLogin}},
		{name: "by action", scope: tenant.AllSchools(), filter: audit.QueryFilter{Action: string(audit.ActionLoginFailed)}, want: []audit.Action{audit.ActionLoginFailed, audit.ActionLoginFailed}},
		{name: "by user", scope: tenant.AllSchools(), filter: audit.QueryFilter{UserID: 1}, want: []audit.Action{audit.ActionLoginFailed, audit.ActionLogin}},
		{name: "by period", scope: tenant.AllSchools(), filter: audit.QueryFilter{From: base.Add(time.Hour), To: base.Add(2 * time.Hour)}, want: []audit.Action{audit.ActionLoginFailed, audit.ActionLoginFailed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := repo.QueryAuditLogs(ctx, tt.filter, tt.scope, core.Page{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, actions(logs))
		})
	}
}

func TestSettingRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewSettingRepository(Open())
	schoolID := int64(7)

	global, err := repo.CreateSetting(ctx, setting.Setting{Scope: setting.ScopeGlobal, Key: "k", Value: "1", Active: true})
	require.NoError(t, err)
	school, err := repo.CreateSetting(ctx, setting.Setting{Scope: setting.ScopeSchool, SchoolID: &schoolID, Key: "k", Value: "2", Active: true})
	require.NoError(t, err)

	got, err := repo.FindSetting(ctx, setting.ScopeSchool, schoolID, "k")
	require.NoError(t, err)
	assert.Equal(t, school.ID, got.ID)
	got, err = repo.FindSetting(ctx, setting.ScopeGlobal, 0, "k")
	require.NoError(t, err)
	assert.Equal(t, global.ID, got.ID)
	_, err = repo.FindSetting(ctx, setting.ScopeSchool, 8, "k")
	assert.Equal(t, setting.ErrNotFound, err)

	school.Value = "3"
	_, err = repo.UpdateSetting(ctx, school, setting.History{OldValue: "2", NewValue: "3"})
	require.NoError(t, err)
	hist, err := repo.QueryHistory(ctx, school.ID)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "2", hist[0].OldValue)

	require.NoError(t, repo.DeleteSetting(ctx, school.ID))
	hist, err = repo.QueryHistory(ctx, school.ID)
	require.NoError(t, err)
	assert.Empty(t, hist)
}
