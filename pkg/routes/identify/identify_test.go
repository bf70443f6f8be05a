package identify_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/logging"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolution"
	"github.com/Ramsey-B/clover/pkg/routes"
	"github.com/Ramsey-B/clover/pkg/routes/identify"
)

type stubResolver struct {
	view *models.ClusterView
	err  error

	gotEmail *string
	gotPhone *string
}

func (s *stubResolver) Resolve(ctx context.Context, email, phone *string) (*models.ClusterView, error) {
	s.gotEmail = email
	s.gotPhone = phone
	if s.err != nil {
		return nil, s.err
	}
	return s.view, nil
}

func newServer(resolver *stubResolver) *echo.Echo {
	e := echo.New()
	e.HTTPErrorHandler = routes.ErrorHandler(logging.NewNop())
	identify.NewHandler(resolver, logging.NewNop()).Register(e)
	return e
}

func post(e *echo.Echo, body any) *httptest.ResponseRecorder {
	data, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, "/identify", bytes.NewBuffer(data))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestIdentify_Success(t *testing.T) {
	resolver := &stubResolver{view: &models.ClusterView{
		PrimaryContactID:    1,
		Emails:              []string{"a@x.com", "b@x.com"},
		PhoneNumbers:        []string{"100"},
		SecondaryContactIDs: []int64{2},
	}}
	e := newServer(resolver)

	rec := post(e, map[string]any{"email": "b@x.com", "phoneNumber": "100"})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp models.IdentifyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Contact.PrimaryContactID)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, resp.Contact.Emails)
	assert.Equal(t, []int64{2}, resp.Contact.SecondaryContactIDs)

	require.NotNil(t, resolver.gotEmail)
	assert.Equal(t, "b@x.com", *resolver.gotEmail)
}

func TestIdentify_BothFieldsMissing(t *testing.T) {
	e := newServer(&stubResolver{})

	rec := post(e, map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentify_BlankFieldsTreatedAsMissing(t *testing.T) {
	resolver := &stubResolver{view: &models.ClusterView{PrimaryContactID: 1, Emails: []string{}, PhoneNumbers: []string{"100"}, SecondaryContactIDs: []int64{}}}
	e := newServer(resolver)

	rec := post(e, map[string]any{"email": "   ", "phoneNumber": "100"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, resolver.gotEmail)
	require.NotNil(t, resolver.gotPhone)
	assert.Equal(t, "100", *resolver.gotPhone)
}

func TestIdentify_InvalidEmail(t *testing.T) {
	e := newServer(&stubResolver{})

	rec := post(e, map[string]any{"email": "not-an-email"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdentify_ConflictMapsTo503(t *testing.T) {
	e := newServer(&stubResolver{err: resolution.ErrResolveConflict})

	rec := post(e, map[string]any{"email": "a@x.com"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestIdentify_UnexpectedErrorMapsTo500(t *testing.T) {
	e := newServer(&stubResolver{err: errors.New("boom")})

	rec := post(e, map[string]any{"email": "a@x.com"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "internal server error", body["message"])
}
