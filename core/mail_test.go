package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingLogger struct{ errors []string }

func (l *recordingLogger) Debug(string, ...interface{}) {}
func (l *recordingLogger) Info(string, ...interface{})  {}
func (l *recordingLogger) Warn(string, ...interface{})  {}
func (l *recordingLogger) Fatal(string, ...interface{}) {}
func (l *recordingLogger) Error(msg string, args ...interface{}) {
	l.errors = append(l.errors, fmt.Sprint(append([]interface{}{msg}, args...)...))
}

func TestParseEmailTemplates(t *testing.T) {
	logger := &recordingLogger{}
	ParseEmailTemplates(logger)
	require.Empty(t, logger.errors)

	conf := &Config{AppName: "Dossiê Escolar", FrontendBaseURL: "https://dossie.escola.br"}
	tests := []struct {
		name     string
		data     map[string]interface{}
		contains []string
	}{
		{
			name:     "account_locked",
			data:     map[string]interface{}{"Name": "Maria", "Attempts": 5, "Minutes": 30},
			contains: []string{"Maria", "5 tentativas", "30 minutos"},
		},
		{
			name:     "password_reset",
			data:     map[string]interface{}{"Name": "Maria", "UID": "MQ", "Token": "abc123"},
			contains: []string{"Maria", "uid=MQ", "abc123"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := &EmailMessage{TemplateName: tt.name, TemplateData: tt.data}
			require.NoError(t, msg.Render(conf))
			require.True(t, msg.HasContent())
			assert.NotEmpty(t, msg.TextContent)
			assert.NotEmpty(t, msg.HTMLContent)
			for _, s := range tt.contains {
				assert.Contains(t, msg.TextContent, s)
				assert.Contains(t, msg.HTMLContent, s)
			}
			// the base layout wraps every message
			assert.Contains(t, msg.TextContent, conf.FrontendBaseURL)
		})
	}
}

func TestEmailMessage_RenderPlain(t *testing.T) {
	msg := &EmailMessage{BodyStr: "olá"}
	require.NoError(t, msg.Render(&Config{}))
	assert.Equal(t, "olá", msg.TextContent)
	assert.Empty(t, msg.HTMLContent)
}
