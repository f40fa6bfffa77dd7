package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	authservice "auth-backend/internal/auth/service"
	"auth-backend/internal/security"
	sessiondomain "auth-backend/internal/session/domain"
	userdomain "auth-backend/internal/user/domain"
	userrepo "auth-backend/internal/user/repository"
	userservice "auth-backend/internal/user/service"
)

// In-memory stores backing the full HTTP stack under test.

type memUsers struct {
	mu     sync.Mutex
	nextID int64
	users  map[string]*userdomain.User
}

func (r *memUsers) GetByExternalID(_ context.Context, id string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUsers) GetByEmail(_ context.Context, email string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Email == email && email != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUsers) GetByMobile(_ context.Context, mobile string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Mobile == mobile && mobile != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUsers) GetByProviderUID(_ context.Context, p userdomain.Provider, uid string) (*userdomain.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.Provider == p && u.ProviderUID == uid && uid != "" {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUsers) Create(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ex := range r.users {
		if (u.Email != "" && ex.Email == u.Email) || (u.Mobile != "" && ex.Mobile == u.Mobile) {
			return userrepo.ErrDuplicateContact
		}
	}
	r.nextID++
	u.ID = r.nextID
	cp := *u
	r.users[u.ExternalID] = &cp
	return nil
}

func (r *memUsers) Update(_ context.Context, u *userdomain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.users[u.ExternalID]; ok {
		ex.DisplayName = u.DisplayName
		ex.AvatarURL = u.AvatarURL
	}
	return nil
}

func (r *memUsers) LinkProvider(_ context.Context, id string, p userdomain.Provider, uid string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ex, ok := r.users[id]; ok {
		ex.Provider = p
		ex.ProviderUID = uid
	}
	return nil
}

func (r *memUsers) RecordLogin(context.Context, string, string, time.Time) error { return nil }

func (r *memUsers) Deactivate(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Active = false
	}
	return nil
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[string]*sessiondomain.Session
}

func (r *memSessions) Create(_ context.Context, s *sessiondomain.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.sessions[s.TokenHash] = &cp
	return nil
}

func (r *memSessions) GetByTokenHash(_ context.Context, hash string) (*sessiondomain.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[hash]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *memSessions) Revoke(_ context.Context, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[hash]; ok && s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	return nil
}

func (r *memSessions) Rotate(_ context.Context, oldHash string, next *sessiondomain.Session) error {
	r.Revoke(context.Background(), oldHash)
	return r.Create(context.Background(), next)
}

func (r *memSessions) RevokeAllForUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	for _, s := range r.sessions {
		if s.UserID == userID && s.RevokedAt == nil {
			s.RevokedAt = &now
		}
	}
	return nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &memUsers{users: map[string]*userdomain.User{}}
	sessions := &memSessions{sessions: map[string]*sessiondomain.Session{}}
	tokens := authservice.NewTokenService(authservice.Deps{
		Users:    users,
		Sessions: sessions,
		Codec:    security.NewTokenCodec([]byte("test-secret"), "onescale-auth", time.Hour, 168*time.Hour),
		Hasher:   security.NewHasher(4),
		Rotate:   true,
	})
	profile := userservice.NewService(users, sessions, nil, nil)
	return NewRouter(Deps{Tokens: tokens, Users: profile})
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func do(t *testing.T, r *gin.Engine, method, path, bearer string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope from %q: %v", w.Body.String(), err)
	}
	return w.Code, env
}

type tokenData struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

func decodeTokens(t *testing.T, env envelope) tokenData {
	t.Helper()
	var d tokenData
	if err := json.Unmarshal(env.Data, &d); err != nil {
		t.Fatalf("decode token data: %v", err)
	}
	return d
}

func registerAda(t *testing.T, r *gin.Engine) {
	t.Helper()
	code, env := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "a@x.com", "password": "password123", "full_name": "Ada",
	})
	if code != http.StatusCreated || !env.Success {
		t.Fatalf("register: code = %d env = %+v", code, env)
	}
}

func loginAda(t *testing.T, r *gin.Engine) tokenData {
	t.Helper()
	code, env := do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
		"email": "a@x.com", "password": "password123",
	})
	if code != http.StatusOK {
		t.Fatalf("login: code = %d env = %+v", code, env)
	}
	return decodeTokens(t, env)
}

func TestAuthFlowOverHTTP(t *testing.T) {
	r := newTestRouter(t)

	code, env := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "a@x.com", "password": "password123", "full_name": "Ada",
	})
	if code != http.StatusCreated || !env.Success {
		t.Fatalf("register: code = %d env = %+v", code, env)
	}
	var profile struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := json.Unmarshal(env.Data, &profile); err != nil {
		t.Fatalf("decode register data: %v", err)
	}
	if profile.ID == "" || profile.Email != "a@x.com" {
		t.Fatalf("register data = %+v", profile)
	}

	login := loginAda(t, r)
	if login.TokenType != "Bearer" || login.AccessToken == "" || login.User.Email != "a@x.com" {
		t.Fatalf("login data = %+v", login)
	}

	code, env = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refreshToken": login.RefreshToken,
	})
	if code != http.StatusOK {
		t.Fatalf("refresh: code = %d env = %+v", code, env)
	}
	refreshed := decodeTokens(t, env)
	if refreshed.RefreshToken == login.RefreshToken {
		t.Error("refresh token not rotated over the wire")
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/auth/validate", refreshed.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("validate: code = %d", code)
	}

	code, _ = do(t, r, http.MethodPost, "/api/v1/auth/logout", refreshed.AccessToken, gin.H{
		"refreshToken": refreshed.RefreshToken,
	})
	if code != http.StatusOK {
		t.Fatalf("logout: code = %d", code)
	}

	code, env = do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refreshToken": refreshed.RefreshToken,
	})
	if code != http.StatusUnauthorized || env.Success {
		t.Errorf("refresh after logout: code = %d env = %+v", code, env)
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	r := newTestRouter(t)
	do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
		"email": "a@x.com", "password": "password123", "full_name": "Ada",
	})

	cases := []struct {
		name string
		run  func() int
		want int
	}{
		{"validation failure", func() int {
			code, _ := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{"password": "x"})
			return code
		}, http.StatusBadRequest},
		{"duplicate contact", func() int {
			code, _ := do(t, r, http.MethodPost, "/api/v1/auth/register", "", gin.H{
				"email": "a@x.com", "password": "password123", "full_name": "Bob",
			})
			return code
		}, http.StatusBadRequest},
		{"wrong password", func() int {
			code, _ := do(t, r, http.MethodPost, "/api/v1/auth/login", "", gin.H{
				"email": "a@x.com", "password": "wrong-password",
			})
			return code
		}, http.StatusUnauthorized},
		{"garbage refresh token", func() int {
			code, _ := do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
				"refreshToken": "garbage",
			})
			return code
		}, http.StatusUnauthorized},
		{"logout without auth", func() int {
			code, _ := do(t, r, http.MethodPost, "/api/v1/auth/logout", "", gin.H{
				"refreshToken": "whatever",
			})
			return code
		}, http.StatusUnauthorized},
		{"malformed body", func() int {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", bytes.NewBufferString("{"))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			return w.Code
		}, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if got := tc.run(); got != tc.want {
			t.Errorf("%s: code = %d, want %d", tc.name, got, tc.want)
		}
	}
}

func TestProfileRoutes(t *testing.T) {
	r := newTestRouter(t)
	registerAda(t, r)
	reg := loginAda(t, r)

	code, env := do(t, r, http.MethodGet, "/api/v1/users/me", reg.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("get profile: code = %d env = %+v", code, env)
	}

	code, env = do(t, r, http.MethodPut, "/api/v1/users/me", reg.AccessToken, gin.H{
		"full_name": "Ada Lovelace",
	})
	if code != http.StatusOK {
		t.Fatalf("update profile: code = %d env = %+v", code, env)
	}
	var prof struct {
		DisplayName string `json:"full_name"`
	}
	if err := json.Unmarshal(env.Data, &prof); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if prof.DisplayName != "Ada Lovelace" {
		t.Errorf("full_name = %q", prof.DisplayName)
	}

	if code, _ := do(t, r, http.MethodGet, "/api/v1/users/me", "", nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated profile read: code = %d, want 401", code)
	}
}

func TestUpdateProfileBlankNameIsBadRequest(t *testing.T) {
	r := newTestRouter(t)
	registerAda(t, r)
	reg := loginAda(t, r)

	code, env := do(t, r, http.MethodPut, "/api/v1/users/me", reg.AccessToken, gin.H{
		"full_name": "   ",
	})
	if code != http.StatusBadRequest {
		t.Fatalf("blank name update: code = %d env = %+v, want 400", code, env)
	}
	var fields map[string]string
	if err := json.Unmarshal(env.Data, &fields); err != nil {
		t.Fatalf("decode field errors: %v", err)
	}
	if fields["full_name"] == "" {
		t.Errorf("fields = %v, want full_name entry", fields)
	}

	code, env = do(t, r, http.MethodGet, "/api/v1/users/me", reg.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("get profile: code = %d", code)
	}
	var prof struct {
		DisplayName string `json:"full_name"`
	}
	if err := json.Unmarshal(env.Data, &prof); err != nil {
		t.Fatalf("decode profile: %v", err)
	}
	if prof.DisplayName != "Ada" {
		t.Errorf("full_name = %q, want unchanged", prof.DisplayName)
	}
}

func TestValidateRejectsNonBearerAuthorization(t *testing.T) {
	r := newTestRouter(t)
	registerAda(t, r)
	reg := loginAda(t, r)

	headers := []string{
		"",
		"Basic dXNlcjpwYXNz",
		reg.AccessToken, // bare token without a scheme
		"Bearer",
		"Bearer ",
	}
	for _, h := range headers {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/validate", nil)
		if h != "" {
			req.Header.Set("Authorization", h)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("Authorization %q: code = %d, want 401", h, w.Code)
		}
	}

	if code, env := do(t, r, http.MethodGet, "/api/v1/auth/validate", reg.AccessToken, nil); code != http.StatusOK || !env.Success {
		t.Errorf("well-formed bearer: code = %d env = %+v", code, env)
	}
}

func TestDeleteAccountKillsTokens(t *testing.T) {
	r := newTestRouter(t)
	registerAda(t, r)
	reg := loginAda(t, r)

	code, _ := do(t, r, http.MethodDelete, "/api/v1/users/me", reg.AccessToken, nil)
	if code != http.StatusOK {
		t.Fatalf("delete account: code = %d", code)
	}

	if code, _ := do(t, r, http.MethodGet, "/api/v1/users/me", reg.AccessToken, nil); code != http.StatusUnauthorized {
		t.Errorf("access token alive after account deletion: code = %d", code)
	}
	if code, _ := do(t, r, http.MethodPost, "/api/v1/auth/refresh", "", gin.H{
		"refreshToken": reg.RefreshToken,
	}); code != http.StatusUnauthorized {
		t.Errorf("refresh token alive after account deletion: code = %d", code)
	}
}

func TestEventHistoryRoute(t *testing.T) {
	r := newTestRouter(t)
	registerAda(t, r)
	reg := loginAda(t, r)

	code, env := do(t, r, http.MethodGet, "/api/v1/users/me/events", reg.AccessToken, nil)
	if code != http.StatusOK || !env.Success {
		t.Fatalf("events: code = %d env = %+v", code, env)
	}
	var events []json.RawMessage
	if err := json.Unmarshal(env.Data, &events); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if code, _ := do(t, r, http.MethodGet, "/api/v1/users/me/events", "", nil); code != http.StatusUnauthorized {
		t.Errorf("unauthenticated events read: code = %d, want 401", code)
	}
}

func TestHealthEndpoint(t *testing.T) {
	r := newTestRouter(t)
	code, env := do(t, r, http.MethodGet, "/api/v1/auth/health", "", nil)
	if code != http.StatusOK || !env.Success {
		t.Errorf("health: code = %d env = %+v", code, env)
	}
}
