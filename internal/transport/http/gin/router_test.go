package httpgin

import (
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huynhbt/raffle-go/internal/service/inventory"
	"github.com/huynhbt/raffle-go/internal/service/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func respond(t *testing.T, err error) (int, ErrorResponse, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	respondErr(c, err)

	var body ErrorResponse
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	}
	return w.Code, body, w
}

func TestRespondErrUnavailable(t *testing.T) {
	err := fmt.Errorf("wrapped:%w", &lifecycle.TicketsUnavailableError{Numbers: []int{3, 7}})

	code, body, _ := respond(t, err)
	assert.Equal(t, 409, code)
	assert.Equal(t, []int{3, 7}, body.Numbers)
	assert.False(t, body.Expired)
}

func TestRespondErrExpired(t *testing.T) {
	err := fmt.Errorf("wrapped:%w", lifecycle.ErrReservationExpired)

	code, body, _ := respond(t, err)
	assert.Equal(t, 409, code)
	assert.True(t, body.Expired)
}

func TestRespondErrNotFound(t *testing.T) {
	err := fmt.Errorf("wrapped:%w", &lifecycle.TicketsNotFoundError{Numbers: []int{999}})

	code, body, _ := respond(t, err)
	assert.Equal(t, 404, code)
	assert.Equal(t, []int{999}, body.Numbers)

	code, _, _ = respond(t, fmt.Errorf("wrapped:%w", inventory.ErrTicketNotFound))
	assert.Equal(t, 404, code)
}

func TestRespondErrRateLimited(t *testing.T) {
	err := fmt.Errorf("wrapped:%w", &lifecycle.RateLimitedError{RetryAfter: 30 * time.Second})

	code, _, w := respond(t, err)
	assert.Equal(t, 429, code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
}

func TestRespondErrBadInput(t *testing.T) {
	code, _, _ := respond(t, fmt.Errorf("wrapped:%w", lifecycle.ErrNoTicketsSelected))
	assert.Equal(t, 400, code)

	code, _, _ = respond(t, fmt.Errorf("wrapped:%w", lifecycle.ErrMissingBuyerInfo))
	assert.Equal(t, 400, code)
}

func TestRespondErrFallback(t *testing.T) {
	code, body, _ := respond(t, fmt.Errorf("pgx: connection refused"))
	assert.Equal(t, 500, code)
	assert.Equal(t, "internal error", body.Error)
}

func TestParseIntDefault(t *testing.T) {
	assert.Equal(t, 100, parseIntDefault("", 100))
	assert.Equal(t, 25, parseIntDefault("25", 100))
	assert.Equal(t, 100, parseIntDefault("abc", 100))
}
