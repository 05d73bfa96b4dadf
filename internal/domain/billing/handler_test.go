package billing

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinicdesk/intake/pkg/pagination"
)

func newTestHandler() (*Handler, *echo.Echo) {
	return NewHandler(newTestService()), echo.New()
}

func assertHTTPStatus(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	require.True(t, ok, "expected echo.HTTPError, got %T", err)
	assert.Equal(t, code, httpErr.Code)
}

func TestHandler_CreateCode(t *testing.T) {
	h, e := newTestHandler()
	body := `{"code":"GOÄ 1","description":"Beratung","price":4.66}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.CreateCode(c))
	assert.Equal(t, http.StatusCreated, rec.Code)

	var got Code
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Active, "new codes default to active")
	assert.Equal(t, 4.66, got.Price)
}

func TestHandler_CreateCode_BadRequest(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"price":3}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	assertHTTPStatus(t, h.CreateCode(c), http.StatusBadRequest)
}

func TestHandler_GetCode(t *testing.T) {
	h, e := newTestHandler()
	code := &Code{Code: "GOÄ 1"}
	require.NoError(t, h.svc.CreateCode(context.Background(), code))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(code.ID.String())

	require.NoError(t, h.GetCode(c))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_GetCode_NotFound(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.NewString())

	assertHTTPStatus(t, h.GetCode(c), http.StatusNotFound)
}

func TestHandler_GetCode_InvalidID(t *testing.T) {
	h, e := newTestHandler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")

	assertHTTPStatus(t, h.GetCode(c), http.StatusBadRequest)
}

func TestHandler_ListCodes(t *testing.T) {
	h, e := newTestHandler()
	ctx := context.Background()
	require.NoError(t, h.svc.CreateCode(ctx, &Code{Code: "A", Active: true}))
	require.NoError(t, h.svc.CreateCode(ctx, &Code{Code: "B"}))

	req := httptest.NewRequest(http.MethodGet, "/?active=true", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, h.ListCodes(c))
	var resp pagination.Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Total)
}

func TestHandler_UpdateAndDeleteCode(t *testing.T) {
	h, e := newTestHandler()
	code := &Code{Code: "GOÄ 1", Price: 4.66}
	require.NoError(t, h.svc.CreateCode(context.Background(), code))

	req := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(`{"code":"GOÄ 1","price":5.36,"active":true}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(code.ID.String())
	require.NoError(t, h.UpdateCode(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	got, err := h.svc.GetCode(context.Background(), code.ID)
	require.NoError(t, err)
	assert.Equal(t, 5.36, got.Price)

	req = httptest.NewRequest(http.MethodDelete, "/", nil)
	rec = httptest.NewRecorder()
	c = e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues(code.ID.String())
	require.NoError(t, h.DeleteCode(c))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
