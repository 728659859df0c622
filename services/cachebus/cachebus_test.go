package cachebus

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fedimaraquino/dossie-escolar-sub000/services/logger"
)

type recorder struct {
	users []int64
	all   int
}

func (r *recorder) InvalidateUser(id int64) { r.users = append(r.users, id) }
func (r *recorder) InvalidateAll()          { r.all++ }

func TestDecode(t *testing.T) {
	tests := []struct {
		payload    string
		wantOrigin string
		wantUser   int64
		wantErr    error
	}{
		{payload: "abc:12", wantOrigin: "abc", wantUser: 12},
		{payload: "a:b:0", wantOrigin: "a:b", wantUser: 0},
		{payload: "12", wantErr: errBadMessage},
		{payload: ":12", wantErr: errBadMessage},
		{payload: "abc:x", wantErr: errBadMessage},
		{payload: "abc:-1", wantErr: errBadMessage},
	}
	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			origin, userID, err := decode(tt.payload)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.wantOrigin, origin)
			assert.Equal(t, tt.wantUser, userID)
		})
	}
}

func TestBus_handle(t *testing.T) {
	bus := newBus(nil, "", logsvc.NewNopLogger())
	other := newBus(nil, "", logsvc.NewNopLogger())
	assert.Equal(t, "dossie:permissions", bus.channel)

	inv := &recorder{}
	assert.False(t, bus.handle(bus.encode(3), inv), "own messages are skipped")
	assert.True(t, bus.handle(other.encode(3), inv))
	assert.True(t, bus.handle(other.encode(0), inv))
	assert.False(t, bus.handle("garbage", inv))

	assert.Equal(t, []int64{3}, inv.users)
	assert.Equal(t, 1, inv.all)
}
