package filesvc_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/mkrupp/homecase-filevault/internal/domain"
	"github.com/mkrupp/homecase-filevault/internal/svc/filesvc"
)

var errBadToken = errors.New("bad token")

// tokenValidator accepts "user-<id>" tokens.
type tokenValidator struct{}

func (tokenValidator) ValidateToken(_ context.Context, token string) (domain.AuthToken, error) {
	idStr, ok := strings.CutPrefix(token, "user-")
	if !ok {
		return domain.AuthToken{}, errBadToken
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		return domain.AuthToken{}, errBadToken
	}

	return domain.AuthToken{UserID: domain.UserID(id)}, nil //nolint:exhaustruct
}

func token(userID domain.UserID) string {
	return fmt.Sprintf("user-%d", userID)
}

type httpFixture struct {
	*fixture

	handler http.Handler
}

func setupHTTP(c *qt.C) *httpFixture {
	c.Helper()

	fx := setupFileService(c)

	return &httpFixture{
		fixture: fx,
		handler: filesvc.NewHTTPTransport(fx.svc, tokenValidator{}, filesvc.HTTPTransportConfig{MultipartFileName: "file"}),
	}
}

func (fx *httpFixture) do(c *qt.C, method, path string, userID domain.UserID, body io.Reader, contentType string) *httptest.ResponseRecorder {
	c.Helper()

	req := httptest.NewRequest(method, path, body)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+token(userID))
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	rec := httptest.NewRecorder()
	fx.handler.ServeHTTP(rec, req)

	return rec
}

func (fx *httpFixture) uploadHTTP(c *qt.C, userID domain.UserID, field, filename, content string) *httptest.ResponseRecorder {
	c.Helper()

	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	c.Assert(writer.WriteField("comment", "ignored"), qt.IsNil)

	part, err := writer.CreateFormFile(field, filename)
	c.Assert(err, qt.IsNil)

	_, err = io.WriteString(part, content)
	c.Assert(err, qt.IsNil)
	c.Assert(writer.Close(), qt.IsNil)

	return fx.do(c, http.MethodPost, "/files", userID, &body, writer.FormDataContentType())
}

func TestHTTPTransport_Lifecycle(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupHTTP(c)

	rec := fx.uploadHTTP(c, fx.alice, "file", "report.txt", "hi")
	c.Assert(rec.Code, qt.Equals, http.StatusCreated)

	var uploaded domain.FileIDResponse
	c.Assert(json.NewDecoder(rec.Body).Decode(&uploaded), qt.IsNil)
	c.Assert(uploaded.Filename, qt.Equals, "report.txt")

	filePath := fmt.Sprintf("/files/%d", uploaded.ID)

	// list
	rec = fx.do(c, http.MethodGet, "/files", fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)

	var listed []map[string]any
	c.Assert(json.NewDecoder(rec.Body).Decode(&listed), qt.IsNil)
	c.Assert(listed, qt.HasLen, 1)
	c.Assert(listed[0]["filename"], qt.Equals, "report.txt")
	_, leaked := listed[0]["storagePath"]
	c.Assert(leaked, qt.IsFalse)

	// download
	rec = fx.do(c, http.MethodGet, filePath+"/download", fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "hi")
	c.Assert(rec.Header().Get("Content-Disposition"), qt.Equals, `attachment; filename=report.txt`)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "application/octet-stream")

	// view
	rec = fx.do(c, http.MethodGet, filePath+"/view", fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusOK)
	c.Assert(rec.Body.String(), qt.Equals, "hi")
	c.Assert(rec.Header().Get("Content-Disposition"), qt.Equals, `inline; filename=report.txt`)
	c.Assert(rec.Header().Get("Content-Type"), qt.Equals, "text/plain; charset=utf-8")

	// bob is refused everywhere
	for _, req := range []struct{ method, path string }{
		{http.MethodGet, filePath + "/download"},
		{http.MethodGet, filePath + "/view"},
		{http.MethodDelete, filePath},
	} {
		rec = fx.do(c, req.method, req.path, fx.bob, nil, "")
		c.Assert(rec.Code, qt.Equals, http.StatusForbidden, qt.Commentf("%s %s", req.method, req.path))
	}

	// delete
	rec = fx.do(c, http.MethodDelete, filePath, fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusNoContent)

	rec = fx.do(c, http.MethodDelete, filePath, fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)

	rec = fx.do(c, http.MethodGet, filePath+"/download", fx.alice, nil, "")
	c.Assert(rec.Code, qt.Equals, http.StatusNotFound)
}

func TestHTTPTransport_Errors(t *testing.T) {
	t.Parallel()

	c := qt.New(t)
	fx := setupHTTP(c)

	record := fx.upload(c, fx.alice, "vanishing.txt", "x")
	stored, err := fx.files.Get(context.Background(), record.ID)
	c.Assert(err, qt.IsNil)
	c.Assert(os.Remove(filepath.Join(fx.basedir, filepath.FromSlash(stored.StoragePath))), qt.IsNil)

	missing := fmt.Sprintf("/files/%d/download", record.ID)

	tests := []struct {
		name       string
		rec        func() *httptest.ResponseRecorder
		wantStatus int
	}{
		{
			name:       "no token",
			rec:        func() *httptest.ResponseRecorder { return fx.do(c, http.MethodGet, "/files", 0, nil, "") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "missing blob",
			rec:        func() *httptest.ResponseRecorder { return fx.do(c, http.MethodGet, missing, fx.alice, nil, "") },
			wantStatus: http.StatusGone,
		},
		{
			name:       "non-numeric id",
			rec:        func() *httptest.ResponseRecorder { return fx.do(c, http.MethodGet, "/files/abc/view", fx.alice, nil, "") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown id",
			rec:        func() *httptest.ResponseRecorder { return fx.do(c, http.MethodGet, "/files/999/view", fx.alice, nil, "") },
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "wrong form field",
			rec:        func() *httptest.ResponseRecorder { return fx.uploadHTTP(c, fx.alice, "upload", "a.txt", "x") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "empty filename",
			rec:        func() *httptest.ResponseRecorder { return fx.uploadHTTP(c, fx.alice, "file", "", "x") },
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "too large",
			rec: func() *httptest.ResponseRecorder {
				return fx.uploadHTTP(c, fx.alice, "file", "big.bin", strings.Repeat("x", testMaxSize+1))
			},
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name: "not multipart",
			rec: func() *httptest.ResponseRecorder {
				return fx.do(c, http.MethodPost, "/files", fx.alice, strings.NewReader("x"), "text/plain")
			},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		rec := tt.rec()
		c.Assert(rec.Code, qt.Equals, tt.wantStatus, qt.Commentf("%s", tt.name))
		c.Assert(strings.Contains(rec.Body.String(), fx.basedir), qt.IsFalse, qt.Commentf("%s", tt.name))
	}
}
