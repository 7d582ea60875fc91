package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WessleyAI/wessley-mechanic/engine/agent"
	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/metrics"
	"github.com/WessleyAI/wessley-mechanic/pkg/mid"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeService struct {
	lastTurn   agent.TurnInput
	urls       []string
	workErr    error
	chats      []domain.ChatOverview
	turns      []domain.ConversationTurn
	historyErr error
}

func (f *fakeService) HandleTurn(_ context.Context, in agent.TurnInput) domain.DiagnosticResponse {
	f.lastTurn = in
	return domain.DiagnosticResponse{
		Diagnosis:         "Worn brake pads",
		Action:            domain.ActionAsk,
		Confidence:        0.5,
		FollowUpQuestions: []string{"Does it squeal?"},
		Steps:             []string{},
		YouTubeURLs:       []string{},
		ChatID:            in.ChatID,
	}
}

func (f *fakeService) FindWorkshops(_ context.Context, lat, lng float64) ([]string, error) {
	if err := domain.ValidateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	return f.urls, f.workErr
}

func (f *fakeService) History(context.Context, string) ([]domain.ChatOverview, error) {
	return f.chats, f.historyErr
}

func (f *fakeService) Transcript(context.Context, string, string) ([]domain.ConversationTurn, error) {
	return f.turns, nil
}

func testRouter(svc service) *gin.Engine {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRouter(svc, metrics.New(), "*", log)
}

func do(t *testing.T, r http.Handler, method, target, body string, user bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user {
		req.Header.Set(mid.UserIDHeader, "user-1")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), "GET", "/api/health", "", false)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), "GET", "/metrics", "", false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestChatRequiresUser(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), "POST", "/api/vehicle/chat", `{"message":"hi"}`, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestChatEndpoint(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, testRouter(svc), "POST", "/api/vehicle/chat",
		`{"message":"my brakes squeal","vehicle_id":"v1","latitude":52.5,"longitude":13.4}`, true)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp domain.DiagnosticResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, domain.ActionAsk, resp.Action)
	assert.NotEmpty(t, resp.ChatID, "chat id should be generated")
	assert.Equal(t, resp.ChatID, svc.lastTurn.ChatID)
	assert.Equal(t, "user-1", svc.lastTurn.UserID)
	assert.Equal(t, "v1", svc.lastTurn.VehicleID)
	require.NotNil(t, svc.lastTurn.Lat)
	assert.Equal(t, 52.5, *svc.lastTurn.Lat)
}

func TestChatEndpointKeepsChatID(t *testing.T) {
	svc := &fakeService{}
	rec := do(t, testRouter(svc), "POST", "/api/vehicle/chat", `{"chat_id":"c-9","message":"still squealing"}`, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "c-9", svc.lastTurn.ChatID)
	assert.Nil(t, svc.lastTurn.Lat)
}

func TestChatEndpointRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"empty message", `{"message":"   "}`},
		{"injection", `{"message":"noise ${jndi:ldap://x}"}`},
		{"half a location", `{"message":"noise","latitude":10}`},
		{"bad latitude", `{"message":"noise","latitude":100,"longitude":10}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			rec := do(t, testRouter(svc), "POST", "/api/vehicle/chat", tt.body, true)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, svc.lastTurn.UserInput, "service must not be called")
		})
	}
}

func TestWorkshopsEndpoint(t *testing.T) {
	tests := []struct {
		name   string
		svc    *fakeService
		query  string
		status int
	}{
		{"ok", &fakeService{urls: []string{"https://maps.example/a"}}, "?latitude=1&longitude=2", http.StatusOK},
		{"missing params", &fakeService{}, "?latitude=1", http.StatusBadRequest},
		{"out of range", &fakeService{}, "?latitude=91&longitude=2", http.StatusBadRequest},
		{"not configured", &fakeService{workErr: agent.ErrNoWorkshopFinder}, "?latitude=1&longitude=2", http.StatusServiceUnavailable},
		{"lookup failed", &fakeService{workErr: errors.New("boom")}, "?latitude=1&longitude=2", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, testRouter(tt.svc), "GET", "/api/vehicle/workshops"+tt.query, "", true)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestWorkshopsEndpointEmptyList(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), "GET", "/api/vehicle/workshops?latitude=1&longitude=2", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"maps_urls":[]}`, rec.Body.String())
}

func TestHistoryEndpoint(t *testing.T) {
	svc := &fakeService{chats: []domain.ChatOverview{{ChatID: "c1", Title: "Brakes", TurnCount: 2, UpdatedAt: time.Unix(0, 0).UTC()}}}
	rec := do(t, testRouter(svc), "GET", "/api/chat/history", "", true)
	require.Equal(t, http.StatusOK, rec.Code)

	var chats []domain.ChatOverview
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&chats))
	require.Len(t, chats, 1)
	assert.Equal(t, "c1", chats[0].ChatID)

	rec = do(t, testRouter(&fakeService{}), "GET", "/api/chat/history", "", true)
	assert.Equal(t, "[]", rec.Body.String())

	rec = do(t, testRouter(&fakeService{historyErr: errors.New("db down")}), "GET", "/api/chat/history", "", true)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestTranscriptEndpoint(t *testing.T) {
	rec := do(t, testRouter(&fakeService{}), "GET", "/api/chat/unknown", "", true)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc := &fakeService{turns: []domain.ConversationTurn{{ID: "t1", ChatID: "c1", Prompt: "noise"}}}
	rec = do(t, testRouter(svc), "GET", "/api/chat/c1", "", true)
	require.Equal(t, http.StatusOK, rec.Code)
	var turns []domain.ConversationTurn
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&turns))
	assert.Equal(t, "t1", turns[0].ID)
}
