package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/splitlease/nightbid/core"
	"github.com/splitlease/nightbid/engine"
	"github.com/splitlease/nightbid/events"
	"github.com/splitlease/nightbid/store"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) (*Server, *store.MemoryStore) {
	t.Helper()
	memory := store.NewMemoryStore()
	e := engine.New(memory, events.NopPublisher{})
	return NewServer(e, NewAuthenticator(testSecret), nil), memory
}

func signToken(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": userID,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	assert.Nil(t, err)
	return token
}

func doJSON(t *testing.T, handler http.Handler, method, path, userID string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.Nil(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+signToken(t, userID))
	}
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func openSessionViaAPI(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/sessions", "guest_a", map[string]interface{}{
		"listing_id":   "listing_1",
		"target_night": "2026-07-04",
		"participants": []map[string]string{
			{"user_id": "guest_a", "name": "Guest A"},
			{"user_id": "guest_b", "name": "Guest B"},
		},
		"duration_hours": 24,
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var session core.Session
	assert.Nil(t, json.Unmarshal(rec.Body.Bytes(), &session))
	return session.SessionID
}

func TestAPI_RequiresAuth(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", "", nil)
	check.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/sessions/whatever", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	check.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAPI_HealthIsPublic(t *testing.T) {
	server, _ := newTestServer(t)
	rec := doJSON(t, server.Router(), http.MethodGet, "/health", "", nil)
	check.Equal(t, http.StatusOK, rec.Code)
}

func TestAPI_OpenSessionValidation(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()

	rec := doJSON(t, router, http.MethodPost, "/api/v1/sessions", "guest_a", map[string]interface{}{
		"listing_id":     "listing_1",
		"target_night":   "2026-07-04",
		"participants":   []map[string]string{{"user_id": "guest_a"}},
		"duration_hours": 24,
	})
	check.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_PlaceBidFlow(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()
	sessionID := openSessionViaAPI(t, router)

	// guest_b authorizes a proxy before guest_a opens the bidding.
	rec := doJSON(t, router, http.MethodPut,
		fmt.Sprintf("/api/v1/sessions/%s/autobid", sessionID), "guest_b",
		map[string]float64{"amount": 1500})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/bids", sessionID), "guest_a",
		map[string]float64{"amount": 1000})
	assert.Equal(t, http.StatusOK, rec.Code)

	var result engine.PlaceBidResult
	assert.Nil(t, json.Unmarshal(rec.Body.Bytes(), &result))
	check.True(t, result.Validation.Valid)
	assert.NotNil(t, result.Bid)
	assert.Equal(t, 1, len(result.AutoBids))
	check.Equal(t, 1100.0, result.AutoBids[0].Amount)

	// A rejected bid still returns 200; the verdict is in the body.
	rec = doJSON(t, router, http.MethodPost,
		fmt.Sprintf("/api/v1/sessions/%s/bids", sessionID), "guest_a",
		map[string]float64{"amount": 1200})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, json.Unmarshal(rec.Body.Bytes(), &result))
	check.False(t, result.Validation.Valid)
	check.Equal(t, 1210.0, result.Validation.MinimumNextBid)
}

func TestAPI_ErrorMapping(t *testing.T) {
	server, _ := newTestServer(t)
	router := server.Router()
	sessionID := openSessionViaAPI(t, router)

	t.Run("unknown session is 404", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodGet, "/api/v1/sessions/session_missing", "guest_a", nil)
		check.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("non-participant is 403", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/api/v1/sessions/%s/bids", sessionID), "guest_z",
			map[string]float64{"amount": 1000})
		check.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("out-of-range proxy ceiling is 400", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPut,
			fmt.Sprintf("/api/v1/sessions/%s/autobid", sessionID), "guest_a",
			map[string]float64{"amount": 50})
		check.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("double close is 409", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/api/v1/sessions/%s/close", sessionID), "guest_a", nil)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, router, http.MethodPost,
			fmt.Sprintf("/api/v1/sessions/%s/close", sessionID), "guest_a", nil)
		check.Equal(t, http.StatusConflict, rec.Code)
	})
}
