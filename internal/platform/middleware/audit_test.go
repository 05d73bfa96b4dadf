package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/intake/internal/platform/auth"
)

type mockRecorder struct {
	mu      sync.Mutex
	entries []AuditEntry
	err     error
}

func (m *mockRecorder) RecordAccess(entry AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return m.err
}

func (m *mockRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

func newAuditContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	ctx := context.WithValue(req.Context(), auth.UserIDKey, "user-7")
	ctx = context.WithValue(ctx, auth.UserRolesKey, []string{"staff"})
	req = req.WithContext(ctx)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func okHandler(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func TestAudit_RecordsWrite(t *testing.T) {
	id := uuid.New()
	c, _ := newAuditContext(http.MethodPut, "/api/v1/billing-forms/"+id.String())
	c.Set("request_id", "req-123")
	rec := &mockRecorder{}

	require.NoError(t, Audit(zerolog.Nop(), rec)(okHandler)(c))
	require.Equal(t, 1, rec.count())

	entry := rec.entries[0]
	assert.Equal(t, "update", entry.Action)
	assert.Equal(t, "billing-forms", entry.Resource)
	assert.Equal(t, id.String(), entry.ResourceID)
	assert.Equal(t, "user-7", entry.UserID)
	assert.Equal(t, "req-123", entry.RequestID)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
}

func TestAudit_SkipsReadsAndOtherPaths(t *testing.T) {
	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/v1/billing-forms"},
		{http.MethodPost, "/health"},
		{http.MethodDelete, "/internal/thing"},
	}
	for _, tt := range tests {
		c, _ := newAuditContext(tt.method, tt.path)
		rec := &mockRecorder{}
		require.NoError(t, Audit(zerolog.Nop(), rec)(okHandler)(c))
		assert.Zero(t, rec.count(), "%s %s", tt.method, tt.path)
	}
}

func TestAudit_RecorderErrorIsLogged(t *testing.T) {
	var buf bytes.Buffer
	c, _ := newAuditContext(http.MethodPost, "/api/v1/email-templates")
	rec := &mockRecorder{err: errors.New("disk full")}

	require.NoError(t, Audit(zerolog.New(&buf), rec)(okHandler)(c), "recorder failure must not fail the request")
	assert.Contains(t, buf.String(), "failed to record audit entry")
}

func TestAudit_ReturnsHandlerError(t *testing.T) {
	c, _ := newAuditContext(http.MethodDelete, "/api/v1/billing-codes/"+uuid.NewString())
	wantErr := echo.NewHTTPError(http.StatusNotFound, "billing code not found")

	err := Audit(zerolog.Nop())(func(c echo.Context) error { return wantErr })(c)
	assert.Same(t, wantErr, err)
}

func TestSplitResource(t *testing.T) {
	id := uuid.NewString()
	tests := []struct {
		path     string
		resource string
		id       string
	}{
		{"/api/v1/billing-forms", "billing-forms", ""},
		{"/api/v1/billing-forms/" + id + "/questions", "billing-forms", id},
		{"/api/v1/email-templates/placeholders", "email-templates", ""},
		{"/api/v1/", "unknown", ""},
	}
	for _, tt := range tests {
		res, rid := splitResource(tt.path)
		assert.Equal(t, tt.resource, res, tt.path)
		assert.Equal(t, tt.id, rid, tt.path)
	}
}
