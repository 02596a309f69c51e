package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketwatch/pkg/offer"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeStore struct {
	records []offer.Record
}

func (f *fakeStore) Recent(_ context.Context, limit int) ([]offer.Record, error) {
	if len(f.records) > limit {
		return f.records[:limit], nil
	}
	return f.records, nil
}

type fakePoller struct {
	cycles int
}

func (f *fakePoller) RunCycle(_ context.Context) { f.cycles++ }

func sampleRecords() []offer.Record {
	return []offer.Record{
		{
			ID: "1234567890123", Title: "Bicicleta rodado 29", PriceText: "$45.000",
			PriceNumeric: 45000, Link: "https://www.facebook.com/marketplace/item/1234567890123/",
			Confidence: offer.ConfidenceFull, FirstSeenAt: time.Now().UTC(),
		},
		{
			ID: "9876543210987", Title: "Listing 9876543210987", PriceText: "",
			Link:       "https://www.facebook.com/marketplace/item/9876543210987",
			Confidence: offer.ConfidenceIDOnly, FirstSeenAt: time.Now().UTC().Add(-time.Hour),
		},
	}
}

func newTestServer(password string) (*Server, *fakeStore, *fakePoller) {
	store := &fakeStore{records: sampleRecords()}
	poller := &fakePoller{}
	s := New(&Config{
		Store:         store,
		Poller:        poller,
		Logger:        testLogger(),
		AdminPassword: password,
	})
	return s, store, poller
}

func TestHealthEndpoint(t *testing.T) {
	s, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, w.Body.String())
}

func TestRootWithoutPasswordShowsPanel(t *testing.T) {
	s, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bicicleta rodado 29")
	assert.Contains(t, w.Body.String(), "id only")
}

func TestRootWithPasswordShowsLogin(t *testing.T) {
	s, _, _ := newTestServer("hunter2")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `action="/login"`)
	assert.NotContains(t, w.Body.String(), "Bicicleta rodado 29")
}

func TestLoginWrongPassword(t *testing.T) {
	s, _, _ := newTestServer("hunter2")
	form := url.Values{"password": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Incorrect password")
	assert.Empty(t, w.Result().Cookies())
}

func TestLoginThenPanel(t *testing.T) {
	s, _, _ := newTestServer("hunter2")
	form := url.Values{"password": {"hunter2"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusSeeOther, w.Code)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookieName, cookies[0].Name)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Bicicleta rodado 29")
}

func TestForgedSessionCookieRejected(t *testing.T) {
	s, _, _ := newTestServer("hunter2")
	req := httptest.NewRequest(http.MethodGet, "/offers", nil)
	req.AddCookie(&http.Cookie{Name: sessionCookieName, Value: "deadbeef"})
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOffersJSON(t *testing.T) {
	s, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/offers", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var got []offer.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "1234567890123", got[0].ID)
}

func TestOffersJSONFilters(t *testing.T) {
	s, _, _ := newTestServer("")

	tests := []struct {
		name    string
		rawURL  string
		wantIDs []string
	}{
		{"title substring", "/offers?q=bicicleta", []string{"1234567890123"}},
		{"min price excludes", "/offers?min=50000", []string{"9876543210987"}},
		{"max price keeps priced and unpriced", "/offers?max=50000", []string{"1234567890123", "9876543210987"}},
		{"no match", "/offers?q=heladera", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.rawURL, nil)
			w := httptest.NewRecorder()
			s.Router().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			var got []offer.Record
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
			var ids []string
			for _, rec := range got {
				ids = append(ids, rec.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestPanelAppliesFilters(t *testing.T) {
	s, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodGet, "/?q=listing", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Listing 9876543210987")
	assert.NotContains(t, w.Body.String(), "Bicicleta rodado 29")
}

func TestPollEndpointTriggersCycle(t *testing.T) {
	s, _, poller := newTestServer("")
	req := httptest.NewRequest(http.MethodPost, "/pollz", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, poller.cycles)
}

func TestPollEndpointRequiresAuth(t *testing.T) {
	s, _, poller := newTestServer("hunter2")
	req := httptest.NewRequest(http.MethodPost, "/pollz", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, 0, poller.cycles)
}

func TestMethodNotAllowed(t *testing.T) {
	s, _, _ := newTestServer("")
	req := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()

	s.Router().ServeHTTP(w, req)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}
