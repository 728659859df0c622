package movement

import (
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

func TestMovement_DaysOverdue(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	tests := []struct {
		name string
		m    Movement
		want int
	}{
		{name: "no expected return", m: Movement{Status: StatusPending}},
		{name: "not due yet", m: Movement{Status: StatusPending, ExpectedReturnAt: at(time.Hour)}},
		{name: "due now", m: Movement{Status: StatusPending, ExpectedReturnAt: at(0)}},
		{name: "an hour late", m: Movement{Status: StatusPending, ExpectedReturnAt: at(-time.Hour)}, want: 1},
		{name: "three days late", m: Movement{Status: StatusPending, ExpectedReturnAt: at(-72 * time.Hour)}, want: 4},
		{name: "concluded", m: Movement{Status: StatusConcluded, ExpectedReturnAt: at(-72 * time.Hour)}},
		{name: "returned", m: Movement{Status: StatusPending, ExpectedReturnAt: at(-72 * time.Hour), ReturnedAt: at(-time.Hour)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.m.DaysOverdue(now))
			assert.Equal(t, tt.want > 0, tt.m.IsOverdue(now))
		})
	}
}

func TestNewMovement_Validate(t *testing.T) {
	validate := validator.New()
	core.InitValidators(validate, core.NewTranslator())
	now := core.Now()
	past := now.Add(-time.Hour)
	future := now.Add(24 * time.Hour)
	dest := int64(2)

	tests := []struct {
		name      string
		nm        NewMovement
		wantField string
	}{
		{name: "consultation", nm: NewMovement{DossierID: 1, Kind: KindConsultation}},
		{name: "loan", nm: NewMovement{DossierID: 1, Kind: KindLoan, ExpectedReturnAt: &future}},
		{name: "loan without return date", nm: NewMovement{DossierID: 1, Kind: KindLoan}, wantField: "expected_return_at"},
		{name: "loan returning in the past", nm: NewMovement{DossierID: 1, Kind: KindLoan, ExpectedReturnAt: &past}, wantField: "expected_return_at"},
		{name: "transfer without destination", nm: NewMovement{DossierID: 1, Kind: KindTransfer}, wantField: "destination_school_id"},
		{name: "transfer", nm: NewMovement{DossierID: 1, Kind: KindTransfer, DestinationSchoolID: &dest}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.nm.Validate(validate)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}
			verr, ok := err.(*core.ValidationError)
			require.True(t, ok, "got %v", err)
			require.Len(t, verr.Fields, 1)
			assert.Equal(t, tt.wantField, verr.Fields[0].Field)
		})
	}

	nm := NewMovement{DossierID: 1, Kind: KindConsultation, RequesterName: "  Maria   Mae ", RequesterPhone: "(81) 99999-1234"}
	require.NoError(t, nm.Validate(validate))
	assert.Equal(t, "Maria Mae", nm.RequesterName)
	assert.Equal(t, "81999991234", nm.RequesterPhone)
}
