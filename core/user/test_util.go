package user

import (
	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

// NewServiceMock returns a Service whose background work (emails) runs synchronously.
func NewServiceMock(repo Repository, roles Roles, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	svc := NewService(repo, roles, mailSvc, logger, conf)
	svc.goFunc = func(fn func()) { fn() }
	return svc
}

// MakeResetToken exposes the reset token of usr to tests of other packages.
func (svc *Service) MakeResetToken(usr User) string {
	return svc.tokens.makeToken(usr)
}
