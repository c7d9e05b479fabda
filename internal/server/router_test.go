package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"socialchat/internal/auth"
	"socialchat/internal/config"
	"socialchat/internal/db/dbtest"
	"socialchat/internal/mw"
	"socialchat/internal/service"
	"socialchat/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type memRevocations struct {
	mu sync.Mutex
	m  map[string]bool
}

func (r *memRevocations) Revoke(_ context.Context, token string, _ uint, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[token] = true
	return nil
}

func (r *memRevocations) IsRevoked(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.m[token], nil
}

type testServer struct {
	engine        *gin.Engine
	notifications *service.NotificationService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := config.Config{Env: "dev", JWTSecret: "secret", AccessTokenTTL: 15 * time.Minute, RefreshTokenTTL: time.Hour}

	gdb := dbtest.Open(t)
	revoked := &memRevocations{m: make(map[string]bool)}
	issuer := auth.NewIssuer(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	gateway := auth.NewGateway(issuer, revoked)

	hub := ws.NewHub()
	go hub.Run()
	t.Cleanup(hub.Stop)
	dispatch := ws.NewDispatcher(hub)

	users := service.NewUserService(gdb, issuer, revoked)
	conversations := service.NewConversationService(gdb, users, dispatch)
	presence := service.NewPresenceService(gdb, users, dispatch)
	notifications := service.NewNotificationService(gdb, users, dispatch)

	limiter := mw.NewRateLimiter(rate.Inf, 1, time.Minute)
	t.Cleanup(limiter.Stop)

	engine := SetupRouter(cfg, Deps{
		Gateway:  gateway,
		Handler:  NewHandler(users, conversations, presence, notifications),
		Endpoint: ws.NewEndpoint(hub, gateway, ws.NewRouter(conversations, presence, notifications), nil, cfg.Env, nil),
		Limiter:  limiter,
		Hub:      hub,
	})
	return &testServer{engine: engine, notifications: notifications}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)
	return w
}

type session struct {
	id      uint
	access  string
	refresh string
}

func (s *testServer) signup(t *testing.T, username string) session {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/v1/auth/register", "", gin.H{"username": username, "password": "pa55word"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/auth/login", "", gin.H{"username": username, "password": "pa55word"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
		User         struct {
			ID uint `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return session{id: resp.User.ID, access: resp.AccessToken, refresh: resp.RefreshToken}
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func itoa(v uint) string { return strconv.FormatUint(uint64(v), 10) }

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","sessions":0}`, w.Body.String())
}

func TestAuthFlow(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice")

	tests := []struct {
		name string
		path string
		body gin.H
		want int
	}{
		{"duplicate username", "/api/v1/auth/register", gin.H{"username": "alice", "password": "pa55word"}, http.StatusConflict},
		{"short username", "/api/v1/auth/register", gin.H{"username": "a", "password": "pa55word"}, http.StatusBadRequest},
		{"short password", "/api/v1/auth/register", gin.H{"username": "dave", "password": "x"}, http.StatusBadRequest},
		{"wrong password", "/api/v1/auth/login", gin.H{"username": "alice", "password": "nope"}, http.StatusUnauthorized},
		{"unknown user", "/api/v1/auth/login", gin.H{"username": "nobody", "password": "pa55word"}, http.StatusUnauthorized},
		{"refresh with access token", "/api/v1/auth/refresh", gin.H{"refreshToken": alice.access}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, tt.path, "", tt.body)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}

	w := s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refreshToken": alice.refresh})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	fresh := decode[service.TokenPair](t, w)
	assert.NotEmpty(t, fresh.AccessToken)
	assert.Equal(t, alice.refresh, fresh.RefreshToken)

	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/conversations", alice.access, nil).Code)

	w = s.do(t, http.MethodPost, "/api/v1/auth/logout", alice.access, gin.H{"refreshToken": alice.refresh})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/conversations", alice.access, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{"refreshToken": alice.refresh}).Code)
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/api/v1/conversations", fresh.AccessToken, nil).Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/api/v1/notifications", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/notifications", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, w.Body.String())
}

func TestConversationRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")
	carol := s.signup(t, "carol")

	w := s.do(t, http.MethodPost, "/api/v1/conversations/with/"+itoa(bob.id), alice.access, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	conv := decode[service.ConversationSummary](t, w)
	assert.Equal(t, bob.id, conv.ParticipantID)

	// starting again from the other side yields the same conversation
	w = s.do(t, http.MethodPost, "/api/v1/conversations/with/"+itoa(alice.id), bob.access, nil)
	assert.Equal(t, conv.ID, decode[service.ConversationSummary](t, w).ID)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/conversations/with/"+itoa(alice.id), alice.access, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodPost, "/api/v1/conversations/with/999", alice.access, nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/conversations/with/abc", alice.access, nil).Code)

	msgPath := "/api/v1/conversations/" + itoa(conv.ID) + "/messages"
	w = s.do(t, http.MethodPost, msgPath, alice.access, gin.H{"content": "hello bob"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.False(t, decode[service.MessageDTO](t, w).Read)

	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, msgPath, alice.access, gin.H{"content": "  "}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, msgPath, carol.access, gin.H{"content": "hi"}).Code)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodGet, msgPath, carol.access, nil).Code)

	w = s.do(t, http.MethodGet, msgPath+"?page=0&size=10", bob.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[service.Page[service.MessageDTO]](t, w)
	require.Len(t, page.Content, 1)
	assert.Equal(t, "hello bob", page.Content[0].Content)
	assert.True(t, page.Content[0].Read)
	assert.Equal(t, 10, page.PageSize)

	w = s.do(t, http.MethodGet, "/api/v1/conversations", alice.access, nil)
	list := decode[service.Page[service.ConversationSummary]](t, w)
	require.Len(t, list.Content, 1)
	assert.Equal(t, "hello bob", list.Content[0].LastMessage)

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, "/api/v1/conversations/"+itoa(conv.ID), carol.access, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/conversations/"+itoa(conv.ID), alice.access, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, msgPath, bob.access, nil).Code)
}

func TestPresenceRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")

	w := s.do(t, http.MethodGet, "/api/v1/presence/"+itoa(alice.id)+"/online", bob.access, nil)
	assert.JSONEq(t, `{"userId":`+itoa(alice.id)+`,"online":false}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/v1/presence/online", alice.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[service.PresenceDTO](t, w).Online)

	w = s.do(t, http.MethodGet, "/api/v1/presence/"+itoa(alice.id), bob.access, nil)
	p := decode[service.PresenceDTO](t, w)
	assert.True(t, p.Online)
	assert.Equal(t, "alice", p.Username)

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/v1/presence/offline", alice.access, nil).Code)
	w = s.do(t, http.MethodGet, "/api/v1/presence/"+itoa(alice.id)+"/online", bob.access, nil)
	assert.JSONEq(t, `{"userId":`+itoa(alice.id)+`,"online":false}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/presence/999", bob.access, nil).Code)
}

func TestNotificationRoutes(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice")
	bob := s.signup(t, "bob")
	ctx := context.Background()

	first, err := s.notifications.FriendRequestReceived(ctx, bob.id, alice.id, 1)
	require.NoError(t, err)
	_, err = s.notifications.PostLiked(ctx, bob.id, alice.id, 2)
	require.NoError(t, err)

	w := s.do(t, http.MethodGet, "/api/v1/notifications/unread/count", bob.access, nil)
	assert.JSONEq(t, `{"count":2}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/v1/notifications", bob.access, nil)
	assert.Len(t, decode[service.Page[service.NotificationDTO]](t, w).Content, 2)

	path := "/api/v1/notifications/" + itoa(first.ID)
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPut, path+"/read", alice.access, nil).Code)
	w = s.do(t, http.MethodPut, path+"/read", bob.access, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[service.NotificationDTO](t, w).IsRead)

	w = s.do(t, http.MethodGet, "/api/v1/notifications/unread", bob.access, nil)
	assert.Len(t, decode[service.Page[service.NotificationDTO]](t, w).Content, 1)

	w = s.do(t, http.MethodPut, "/api/v1/notifications/read-all", bob.access, nil)
	assert.JSONEq(t, `{"updated":1}`, w.Body.String())
	w = s.do(t, http.MethodGet, "/api/v1/notifications/unread/count", bob.access, nil)
	assert.JSONEq(t, `{"count":0}`, w.Body.String())

	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodDelete, path, alice.access, nil).Code)
	assert.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, path, bob.access, nil).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodDelete, path, bob.access, nil).Code)
}

func TestWebSocketHandshakeRejectsAnonymous(t *testing.T) {
	s := newTestServer(t)
	w := s.do(t, http.MethodGet, "/ws/chat", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"error":"unauthorized"}`, w.Body.String())
}
