package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoffDelay(t *testing.T) {
	b := DefaultBackoff()
	assert.Equal(t, 3, b.Attempts)
	assert.Equal(t, time.Second, b.Delay(0))
	assert.Equal(t, 2*time.Second, b.Delay(1))
	assert.Equal(t, 4*time.Second, b.Delay(2))
	assert.Equal(t, 8*time.Second, b.Delay(3))
	assert.Equal(t, 8*time.Second, b.Delay(10))
	assert.Equal(t, 8*time.Second, b.Delay(64))
}

func TestSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestHashKeyStable(t *testing.T) {
	assert.Equal(t, HashKey("a", "b"), HashKey("a", "b"))
	assert.NotEqual(t, HashKey("ab"), HashKey("a", "b"))
	assert.Len(t, HashKey("x"), 64)
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2", 4)
	require.NoError(t, err)
	assert.True(t, CheckPassword("hunter2", hash))
	assert.False(t, CheckPassword("hunter3", hash))
}

func TestJWTRoundTrip(t *testing.T) {
	token, err := GenerateJWT("admin", RoleAdmin, "secret", time.Hour)
	require.NoError(t, err)

	claims, err := ValidateJWT("Bearer "+token, "secret")
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, RoleAdmin, claims.Role)

	_, err = ValidateJWT(token, "other-secret")
	assert.Error(t, err)

	expired, err := GenerateJWT("admin", RoleAdmin, "secret", -time.Minute)
	require.NoError(t, err)
	_, err = ValidateJWT(expired, "secret")
	assert.Error(t, err)
}

func TestExtractTokenFromHeader(t *testing.T) {
	assert.Equal(t, "abc", ExtractTokenFromHeader("Bearer abc"))
	assert.Empty(t, ExtractTokenFromHeader("Basic abc"))
	assert.Empty(t, ExtractTokenFromHeader(""))
	assert.Equal(t, "abc", ExtractTokenFromHeader("bearer abc"))
	assert.Empty(t, ExtractTokenFromHeader("Bearer a b"))
}

func TestRespondWithError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)

	RespondWithBadRequest(c, "bad input", map[string]string{"field": "question"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error_code":"bad_request","message":"bad input","details":{"field":"question"}}`, w.Body.String())
}

func TestRespondWithErrorCarriesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Set("request_id", "req-7")

	RespondWithConflict(c, "job_finished", "Job already finished", nil)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.JSONEq(t, `{"error_code":"job_finished","message":"Job already finished","request_id":"req-7"}`, w.Body.String())
}

func TestValidateJWTRejectsForeignIssuer(t *testing.T) {
	claims := Claims{Username: "admin", Role: RoleAdmin}
	claims.Issuer = "someone-else"
	claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = ValidateJWT(token, "secret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestStoreTimeoutSetsDeadline(t *testing.T) {
	ctx, cancel := WithStoreTimeout(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().Add(StoreTimeout), deadline, time.Second)
}
