package gotrue

import (
	"chat-room/auth"
	"chat-room/domain/chat"
	"chat-room/errors"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

type fakeAuthServer struct {
	mu           sync.Mutex
	pkceBodies   []map[string]string
	refreshFails bool
	logouts      []string
	withUser     bool
	token        string
}

func (f *fakeAuthServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		defer f.mu.Unlock()
		switch r.URL.Query().Get("grant_type") {
		case "pkce":
			f.pkceBodies = append(f.pkceBodies, body)
		case "refresh_token":
			if f.refreshFails || body["refresh_token"] == "" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
		default:
			http.Error(w, "bad grant", http.StatusBadRequest)
			return
		}
		resp := map[string]any{
			"access_token":  f.token,
			"refresh_token": "refresh-2",
			"expires_in":    3600,
		}
		if f.withUser {
			resp["user"] = map[string]any{
				"id":            "user-1",
				"email":         "ana@example.com",
				"user_metadata": map[string]string{"full_name": "Ana", "avatar_url": "https://img/ana.png"},
			}
		}
		_ = json.NewEncoder(w).Encode(resp)
	})
	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.logouts = append(f.logouts, r.Header.Get("Authorization"))
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

func newTestClient(t *testing.T, fake *fakeAuthServer) (*Client, *httptest.Server) {
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)
	client := NewClient(slog.New(slog.NewTextHandler(io.Discard, nil)), Config{
		URL:         srv.URL,
		APIKey:      "anon",
		RedirectURL: "http://127.0.0.1:54321/auth/callback",
	}, srv.Client())
	return client, srv
}

func flowFrom(t *testing.T, authURL string) (url.Values, string) {
	u, err := url.Parse(authURL)
	require.NoError(t, err)
	redirect, err := url.Parse(u.Query().Get("redirect_to"))
	require.NoError(t, err)
	return u.Query(), redirect.Query().Get(flowParam)
}

func TestSignIn_Builds_PKCE_URL(t *testing.T) {
	req := require.New(t)
	client, srv := newTestClient(t, &fakeAuthServer{})

	authURL, err := client.SignIn(context.Background(), "google")
	req.NoError(err)

	req.Contains(authURL, srv.URL+"/authorize?")
	q, flowID := flowFrom(t, authURL)
	req.Equal("google", q.Get("provider"))
	req.Equal("s256", q.Get("code_challenge_method"))
	req.NotEmpty(flowID)
	req.Equal(oauth2.S256ChallengeFromVerifier(client.verifiers[flowID]), q.Get("code_challenge"))
}

func TestExchange_Uses_Verifier_And_Notifies(t *testing.T) {
	req := require.New(t)
	fake := &fakeAuthServer{withUser: true, token: "opaque"}
	client, _ := newTestClient(t, fake)
	var observed []*chat.Session
	client.OnAuthStateChange(func(s *chat.Session) { observed = append(observed, s) })

	// Given
	authURL, err := client.SignIn(context.Background(), "google")
	req.NoError(err)
	_, flowID := flowFrom(t, authURL)
	verifier := client.verifiers[flowID]

	// When
	session, err := client.Exchange(context.Background(), flowID, "the-code")

	// Then
	req.NoError(err)
	req.Equal("user-1", session.UserID)
	req.Equal("Ana", session.FullName)
	req.Equal("https://img/ana.png", session.AvatarURL)
	req.Len(fake.pkceBodies, 1)
	req.Equal("the-code", fake.pkceBodies[0]["auth_code"])
	req.Equal(verifier, fake.pkceBodies[0]["code_verifier"])
	req.Len(observed, 1)

	// The flow can only be used once
	_, err = client.Exchange(context.Background(), flowID, "the-code")
	req.ErrorIs(err, errors.ErrAuthFailure)
}

func TestExchange_Falls_Back_On_Token_Claims(t *testing.T) {
	req := require.New(t)
	token, err := auth.GenerateToken("user-9", "bob@example.com",
		auth.UserMetadata{FullName: "Bob"}, []byte("secret-secret-secret-secret-1234"), time.Hour)
	req.NoError(err)
	client, _ := newTestClient(t, &fakeAuthServer{token: token})

	authURL, err := client.SignIn(context.Background(), "google")
	req.NoError(err)
	_, flowID := flowFrom(t, authURL)

	session, err := client.Exchange(context.Background(), flowID, "code")

	req.NoError(err)
	req.Equal("user-9", session.UserID)
	req.Equal("Bob", session.FullName)
	req.Equal("bob@example.com", session.Email)
}

func TestCurrentSession_Refreshes_Expired(t *testing.T) {
	req := require.New(t)
	client, _ := newTestClient(t, &fakeAuthServer{withUser: true, token: "fresh"})
	client.session = &chat.Session{UserID: "user-1", AccessToken: "stale", RefreshToken: "refresh-1",
		ExpiresAt: time.Now().Add(-time.Minute)}

	session, err := client.CurrentSession(context.Background())

	req.NoError(err)
	req.NotNil(session)
	req.Equal("fresh", session.AccessToken)
	req.Equal("refresh-2", session.RefreshToken)
}

func TestCurrentSession_Failed_Refresh_Signs_Out(t *testing.T) {
	req := require.New(t)
	client, _ := newTestClient(t, &fakeAuthServer{refreshFails: true})
	client.session = &chat.Session{UserID: "user-1", AccessToken: "stale", RefreshToken: "refresh-1",
		ExpiresAt: time.Now().Add(-time.Minute)}
	var observed []*chat.Session
	client.OnAuthStateChange(func(s *chat.Session) { observed = append(observed, s) })

	session, err := client.CurrentSession(context.Background())

	req.NoError(err)
	req.Nil(session)
	req.Equal([]*chat.Session{nil}, observed)
}

func TestSignOut(t *testing.T) {
	req := require.New(t)
	fake := &fakeAuthServer{}
	client, _ := newTestClient(t, fake)
	client.session = &chat.Session{UserID: "user-1", AccessToken: "access"}

	req.NoError(client.SignOut(context.Background()))

	session, err := client.CurrentSession(context.Background())
	req.NoError(err)
	req.Nil(session)
	req.Equal([]string{"Bearer access"}, fake.logouts)

	// Signing out twice does not call the server again
	req.NoError(client.SignOut(context.Background()))
	req.Len(fake.logouts, 1)
}

func TestCallbackServer(t *testing.T) {
	fake := &fakeAuthServer{withUser: true, token: "opaque"}
	client, _ := newTestClient(t, fake)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	callback := NewCallbackServer(log, "127.0.0.1:0", client)

	authURL, err := client.SignIn(context.Background(), "google")
	require.NoError(t, err)
	_, flowID := flowFrom(t, authURL)

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"Provider error", "?error=access_denied&error_description=denied", http.StatusBadRequest},
		{"Missing code", "?flow=" + flowID, http.StatusBadRequest},
		{"Unknown flow", "?code=abc&flow=nope", http.StatusUnauthorized},
		{"Valid code", "?code=abc&flow=" + flowID, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			callback.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, CallbackPath+tt.query, nil))
			require.Equal(t, tt.status, rec.Code)
		})
	}

	session, err := client.CurrentSession(context.Background())
	require.NoError(t, err)
	require.Equal(t, "user-1", session.UserID)
	require.Equal(t, "http://127.0.0.1:8765/auth/callback", RedirectURL("127.0.0.1:8765"))
}
