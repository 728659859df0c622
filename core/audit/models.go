// Package audit records append-only audit and system log rows.
package audit

import (
	"time"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
)

type Action string

// Actions
const (
	ActionLogin        Action = "LOGIN_SUCESSO"
	ActionLoginFailed  Action = "LOGIN_FALHOU"
	ActionLogout       Action = "LOGOUT"
	ActionUserLocked   Action = "USUARIO_BLOQUEADO"
	ActionUserUnlocked Action = "USUARIO_DESBLOQUEADO"
	ActionSchoolSwitch Action = "TROCA_ESCOLA"
	ActionPasswordSet  Action = "SENHA_ALTERADA"

	ActionUserCreated Action = "USUARIO_CRIADO"
	ActionUserUpdated Action = "USUARIO_EDITADO"
	ActionUserDeleted Action = "USUARIO_EXCLUIDO"

	ActionDossierCreated  Action = "DOSSIE_CRIADO"
	ActionDossierUpdated  Action = "DOSSIE_EDITADO"
	ActionDossierDeleted  Action = "DOSSIE_EXCLUIDO"
	ActionDossierArchived Action = "DOSSIE_ARQUIVADO"

	ActionMovementCreated   Action = "MOVIMENTACAO_CRIADA"
	ActionMovementUpdated   Action = "MOVIMENTACAO_EDITADA"
	ActionMovementDeleted   Action = "MOVIMENTACAO_EXCLUIDA"
	ActionMovementConcluded Action = "MOVIMENTACAO_CONCLUIDA"
	ActionMovementCancelled Action = "MOVIMENTACAO_CANCELADA"

	ActionRequesterCreated Action = "SOLICITANTE_CRIADO"
	ActionRequesterUpdated Action = "SOLICITANTE_EDITADO"
	ActionRequesterDeleted Action = "SOLICITANTE_EXCLUIDO"

	ActionSchoolCreated Action = "ESCOLA_CRIADA"
	ActionSchoolUpdated Action = "ESCOLA_EDITADA"
	ActionSchoolDeleted Action = "ESCOLA_EXCLUIDA"

	ActionCityCreated Action = "CIDADE_CRIADA"
	ActionCityUpdated Action = "CIDADE_EDITADA"
	ActionCityDeleted Action = "CIDADE_EXCLUIDA"

	ActionDirectorCreated Action = "DIRETOR_CRIADO"
	ActionDirectorUpdated Action = "DIRETOR_EDITADO"
	ActionDirectorDeleted Action = "DIRETOR_EXCLUIDO"

	ActionAttachmentAdded      Action = "ANEXO_ADICIONADO"
	ActionAttachmentRemoved    Action = "ANEXO_REMOVIDO"
	ActionAttachmentDownloaded Action = "ANEXO_BAIXADO"

	ActionRoleCreated       Action = "PERFIL_CRIADO"
	ActionRoleUpdated       Action = "PERFIL_EDITADO"
	ActionRoleDeleted       Action = "PERFIL_EXCLUIDO"
	ActionPermissionChanged Action = "PERMISSAO_ALTERADA"
	ActionSettingChanged    Action = "CONFIGURACAO_ALTERADA"
	ActionExport            Action = "RELATORIO_EXPORTADO"
	ActionBackup            Action = "SISTEMA_BACKUP"
)

// Login failure reasons, stored in Log.Detail.
const (
	ReasonUnknownEmail = "unknown_email"
	ReasonBadPassword  = "bad_password"
	ReasonLocked       = "locked"
	ReasonInactive     = "inactive"
	ReasonIPBlocked    = "ip_blocked"
)

// Log is an audit trail row. Never updated.
type Log struct {
	ID        int64     `json:"id"`
	UserID    *int64    `json:"user_id"`
	Action    Action    `json:"action"`
	Target    string    `json:"target,omitempty"`
	IP        string    `json:"ip,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	SchoolID  *int64    `json:"school_id"`
	At        time.Time `json:"at"` // UTC
}

type Level string

// Levels
const (
	LevelInfo    Level = "INFO"
	LevelWarning Level = "WARNING"
	LevelError   Level = "ERROR"
)

// SystemLog is an application event row. Never updated.
type SystemLog struct {
	ID       int64     `json:"id"`
	Level    Level     `json:"level"`
	Module   string    `json:"module"`
	Function string    `json:"function,omitempty"`
	Message  string    `json:"message"`
	UserID   *int64    `json:"user_id"`
	At       time.Time `json:"at"` // UTC
}

type QueryFilter struct {
	UserID int64     `query:"user_id"`
	Action string    `query:"action"`
	Level  string    `query:"level"`
	From   time.Time `query:"-"`
	To     time.Time `query:"-"`
}

func (qf *QueryFilter) Clean() {
	qf.Action = core.CleanString(qf.Action)
	qf.Level = core.CleanString(qf.Level)
}

// Matches reports whether l passes the filter. Used by in-memory stores.
func (qf QueryFilter) Matches(userID *int64, action string, at time.Time) bool {
	if qf.UserID != 0 && (userID == nil || *userID != qf.UserID) {
		return false
	}
	if qf.Action != "" && action != qf.Action {
		return false
	}
	if !qf.From.IsZero() && at.Before(qf.From) {
		return false
	}
	if !qf.To.IsZero() && at.After(qf.To) {
		return false
	}
	return true
}
