package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/attendify-api/pkg/errors"
)

func newContext() (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, w
}

func TestErrorHidesStorageCauseButKeepsItForLogs(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.Storage(errors.New("pq: deadlock detected")))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotContains(t, w.Body.String(), "deadlock")
	require.Len(t, c.Errors, 1)
	assert.Contains(t, c.Errors.String(), "deadlock")

	var body Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.NotNil(t, body.Error)
	assert.Equal(t, appErrors.ErrStorage.Code, body.Error.Code)
}

func TestErrorDoesNotLogExpectedOutcomes(t *testing.T) {
	c, w := newContext()
	Error(c, appErrors.ErrAlreadyMarked)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Empty(t, c.Errors)
	assert.Contains(t, w.Body.String(), "ALREADY_MARKED")
}

func TestImageWritesBytesAndHeaders(t *testing.T) {
	c, w := newContext()
	Image(c, http.StatusCreated, "image/png", []byte{0x89, 'P', 'N', 'G'}, map[string]string{"X-Token-Expires-At": "2024-03-04T09:35:00Z"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "2024-03-04T09:35:00Z", w.Header().Get("X-Token-Expires-At"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, []byte{0x89, 'P', 'N', 'G'}, w.Body.Bytes())
}

func TestJSONOmitsEmptyMeta(t *testing.T) {
	c, w := newContext()
	JSON(c, http.StatusOK, map[string]int{"total": 3}, nil, nil)

	assert.JSONEq(t, `{"data":{"total":3}}`, w.Body.String())
}
