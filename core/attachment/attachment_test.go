package attachment_test

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fedimaraquino/dossie-escolar-sub000/core"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/attachment"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/dossier"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/role"
	"github.com/fedimaraquino/dossie-escolar-sub000/core/user"
	"github.com/fedimaraquino/dossie-escolar-sub000/storage/database/inmem"
	"github.com/fedimaraquino/dossie-escolar-sub000/tests"
)

func TestSizeLabel(t *testing.T) {
	tests := []struct {
		size int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1024 * 1024, "1.0 MB"},
		{5*1024*1024 + 512*1024, "5.5 MB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, attachment.SizeLabel(tt.size))
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, ".pdf", attachment.Extension("Historico.PDF"))
	assert.Equal(t, "", attachment.Extension("README"))
	assert.True(t, attachment.ExtensionAllowed(".docx"))
	assert.False(t, attachment.ExtensionAllowed(".exe"))
	assert.False(t, attachment.ExtensionAllowed("pdf"))
	assert.True(t, strings.HasPrefix(attachment.StorageKey(7, ".pdf"), "dossiers/7/"))
}

func fieldError(t *testing.T, err error) core.FieldError {
	t.Helper()
	verr, ok := errors.Cause(err).(*core.ValidationError)
	require.True(t, ok, "want a validation error, got %v", err)
	require.Len(t, verr.Fields, 1)
	return verr.Fields[0]
}

// dossierFixture creates the dossier attachments hang from.
func dossierFixture(t *testing.T, st *testutil.Stack) (user.User, dossier.Dossier) {
	t.Helper()
	s := st.CreateSchool(t, "Escola Central")
	oper := st.CreateUser(t, "Operador", "operador@escola.br", testutil.Password, role.Operator, s.ID)
	return oper, st.CreateDossier(t, oper, "1", "Ana Souza")
}

func TestService_Upload(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	svc := attachment.NewService(inmemdb.NewAttachmentRepository(st.DB), st.Files, 10, st.Logger)
	oper, d := dossierFixture(t, st)

	up := func(name string, content string) attachment.Upload {
		return attachment.Upload{DossierID: d.ID, OriginalName: name, Size: int64(len(content)), Content: strings.NewReader(content)}
	}

	tests := []struct {
		name    string
		up      attachment.Upload
		wantErr error
	}{
		{name: "no name", up: up("", "abc"), wantErr: attachment.ErrMissingFilename},
		{name: "bad extension", up: up("virus.exe", "abc"), wantErr: attachment.ErrExtNotAllowed},
		{name: "empty", up: up("a.pdf", ""), wantErr: attachment.ErrEmpty},
		{name: "too large", up: up("a.pdf", "01234567890"), wantErr: attachment.ErrTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, oper.ID, tt.up)
			fe := fieldError(t, err)
			assert.Equal(t, "file", fe.Field)
			assert.Equal(t, tt.wantErr.Error(), fe.Error)
		})
	}

	a, err := svc.Upload(ctx, oper.ID, attachment.Upload{
		DossierID: d.ID, OriginalName: "../../etc/Historico Escolar.PDF", Size: 10, Content: strings.NewReader("0123456789"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Historico Escolar.PDF", a.OriginalName)
	assert.Equal(t, "Historico Escolar", a.DisplayName)
	assert.Equal(t, "pdf", a.Extension)
	assert.Equal(t, "application/pdf", a.ContentType)
	assert.Equal(t, oper.ID, *a.UploadedBy)
	assert.True(t, strings.HasPrefix(a.StoredPath, fmt.Sprintf("dossiers/%d/", d.ID)))
	assert.Equal(t, "10 B", a.SizeLabel())

	rc, err := svc.Open(ctx, a)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "0123456789", string(body))

	list, err := svc.Query(ctx, d.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, svc.Delete(ctx, a))
	_, err = svc.Get(ctx, a.ID)
	assert.Equal(t, attachment.ErrNotFound, errors.Cause(err))
	_, err = svc.Open(ctx, a)
	assert.Equal(t, attachment.ErrNotFound, err)
}

func TestService_Upload_unknownDossier(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()

	_, err := st.Attachments.Upload(ctx, 1, attachment.Upload{DossierID: 404, OriginalName: "a.pdf", Size: 3, Content: strings.NewReader("pdf")})
	assert.Equal(t, attachment.ErrNotFound, errors.Cause(err))

	// the stored file does not outlive the failed row
	files, err := st.Files.List(ctx, "dossiers/404/")
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestService_Delete_missingFile(t *testing.T) {
	st := testutil.NewStack(t)
	ctx := context.Background()
	oper, d := dossierFixture(t, st)

	a, err := st.Attachments.Upload(ctx, oper.ID, attachment.Upload{DossierID: d.ID, OriginalName: "foto.png", DisplayName: " Foto  3x4 ", Size: 3, Content: strings.NewReader("png")})
	require.NoError(t, err)
	assert.Equal(t, "Foto 3x4", a.DisplayName)
	assert.Equal(t, "image/png", a.ContentType)
	require.NoError(t, st.Files.Delete(ctx, a.StoredPath))

	assert.NoError(t, st.Attachments.Delete(ctx, a))
}
