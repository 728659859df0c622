package user

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMakeVerifyToken(t *testing.T) {
	timeout := 3 * 24 * time.Hour
	now := time.Now()
	tg := tokenGenerator{secret: "secret", timeout: timeout, now: time.Now}

	usr := User{
		ID:        1,
		Name:      "T",
		Email:     "t@test.test",
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
		LastLogin: &now,
	}
	_ = usr.SetPassword("pwd")

	validToken := tg.makeToken(usr)

	// generate an expired token
	dayLate := timeout + (24 * time.Hour)
	late := tg
	late.now = func() time.Time { return time.Now().Add(-dayLate) }
	expiredToken := late.makeToken(usr)

	// a login after the token was issued invalidates it
	later := now.Add(time.Minute)
	loggedAgain := usr
	loggedAgain.LastLogin = &later

	otherSecret := tokenGenerator{secret: "other", timeout: timeout, now: time.Now}

	tests := []struct {
		name    string
		tg      tokenGenerator
		usr     User
		token   string
		wantErr error
	}{
		{name: "no token", tg: tg, usr: usr, wantErr: errInvalidToken},
		{name: "invalid parts len", tg: tg, usr: usr, token: "lmaooolol", wantErr: errInvalidToken},
		{name: "invalid base32", tg: tg, usr: usr, token: "hahaha-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid timestamp", tg: tg, usr: usr, token: "NRXWY-sigsig-sig", wantErr: errInvalidToken},
		{name: "invalid token", tg: tg, usr: usr, token: "HE4TS-sigsig-sig", wantErr: errInvalidToken},
		{name: "expired token", tg: tg, usr: usr, token: expiredToken, wantErr: errTokenExpired},
		{name: "new login", tg: tg, usr: loggedAgain, token: validToken, wantErr: errInvalidToken},
		{name: "other secret", tg: otherSecret, usr: usr, token: validToken, wantErr: errInvalidToken},
		{name: "valid token", tg: tg, usr: usr, token: validToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantErr, tt.tg.verifyToken(tt.usr, tt.token))
		})
	}
}

func TestEncodeDecodeUID(t *testing.T) {
	uid := EncodeUID(User{ID: 4242})
	id, err := decodeUID(uid)
	assert.NoError(t, err)
	assert.Equal(t, int64(4242), id)

	_, err = decodeUID("***")
	assert.Error(t, err)
}
