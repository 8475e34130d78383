package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.Handler, opts ...Option) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(srv.URL, opts...)
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestValidateBaseURL(t *testing.T) {
	cases := []struct {
		raw string
		ok  bool
	}{
		{"http://localhost:5050", true},
		{"https://api.example.com/base/", true},
		{"ftp://example.com", false},
		{"localhost:5050", false},
		{"http://", false},
	}
	for _, tc := range cases {
		_, err := ValidateBaseURL(tc.raw)
		if tc.ok {
			require.NoError(t, err, tc.raw)
		} else {
			require.Error(t, err, tc.raw)
		}
	}
}

func TestNewClientDefaults(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	require.Equal(t, DefaultBaseURL, c.BaseURL())
	require.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestLoginSuccessAndBearerHeader(t *testing.T) {
	var gotAuth atomic.Value
	var loginAuth atomic.Value
	mux := http.NewServeMux()
	mux.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		loginAuth.Store(r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "a@example.com", body["email"])
		writeJSON(w, 200, map[string]any{
			"token": "tok",
			"user":  map[string]any{"id": "1", "username": "a", "email": "a@example.com"},
		})
	})
	mux.HandleFunc("/api/auth/me", func(w http.ResponseWriter, r *http.Request) {
		gotAuth.Store(r.Header.Get("Authorization"))
		writeJSON(w, 200, map[string]any{"id": "1", "username": "a", "email": "a@example.com"})
	})
	c := newTestClient(t, mux, WithTokenSource(func() string { return "tok" }))

	resp, err := c.Login(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	require.Equal(t, "tok", resp.Token)
	require.Equal(t, "a", resp.User.Username)
	require.Equal(t, "", loginAuth.Load())

	u, err := c.Me(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a@example.com", u.Email)
	require.Equal(t, "Bearer tok", gotAuth.Load())
}

func TestErrorKinds(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   any
		kind   Kind
		msg    string
	}{
		{"unauthorized", 401, map[string]string{"error": "Invalid credentials"}, KindAuthRejected, "Invalid credentials"},
		{"bad request", 400, map[string]string{"error": "Email already registered"}, KindValidationFailed, "Email already registered"},
		{"not found", 404, map[string]string{"error": "User not found"}, KindValidationFailed, "User not found"},
		{"rate limited", 429, map[string]string{"error": "slow down"}, KindTransient, "slow down"},
		{"server error", 500, map[string]string{"error": "boom"}, KindTransient, "boom"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tc.status, tc.body)
			}))
			_, err := c.Login(context.Background(), "a@example.com", "pw")
			require.Error(t, err)
			require.Equal(t, tc.kind, KindOf(err))
			var apiErr *Error
			require.ErrorAs(t, err, &apiErr)
			require.Equal(t, tc.status, apiErr.Status)
			require.Equal(t, tc.msg, apiErr.Message)
		})
	}
}

func TestUserMessage(t *testing.T) {
	require.Equal(t, "Invalid credentials", UserMessage(&Error{Kind: KindAuthRejected, Message: "Invalid credentials"}, "fallback"))
	require.Equal(t, "fallback", UserMessage(&Error{Kind: KindTransient, Message: "boom"}, "fallback"))
	require.Equal(t, "fallback", UserMessage(&Error{Kind: KindValidationFailed}, "fallback"))
	require.Equal(t, "fallback", UserMessage(io.EOF, "fallback"))
}

func TestTransportFailureIsTransient(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		writeJSON(w, 200, map[string]any{})
	}), WithHTTPClient(&http.Client{Timeout: 20 * time.Millisecond}))
	_, err := c.Me(context.Background())
	require.Error(t, err)
	require.Equal(t, KindTransient, KindOf(err))
}

func TestAuthRejectedHookOnlyForAuthenticatedCalls(t *testing.T) {
	var calls atomic.Int32
	var rejected atomic.Value
	token := "tok"
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]string{"error": "Invalid or expired token"})
	}),
		WithTokenSource(func() string { return token }),
		WithAuthRejectedHandler(func(tok string) {
			calls.Add(1)
			rejected.Store(tok)
		}),
	)

	// login never sends the stored token, so a bad password cannot end the session
	_, err := c.Login(context.Background(), "a@example.com", "bad")
	require.True(t, IsAuthRejected(err))
	require.Equal(t, int32(0), calls.Load())

	_, err = c.Me(context.Background())
	require.True(t, IsAuthRejected(err))
	require.Equal(t, int32(1), calls.Load())
	require.Equal(t, "tok", rejected.Load())

	token = ""
	_, err = c.Me(context.Background())
	require.True(t, IsAuthRejected(err))
	require.Equal(t, int32(1), calls.Load())
}

func TestDecodeUserShapes(t *testing.T) {
	u, err := decodeUser("x", json.RawMessage(`{"message":"ok","user":{"id":"1","email":"a@b.c","avatar":"a.png"}}`))
	require.NoError(t, err)
	require.Equal(t, "a.png", u.Avatar)

	u, err = decodeUser("x", json.RawMessage(`{"id":"1","email":"a@b.c","username":"a"}`))
	require.NoError(t, err)
	require.Equal(t, "a", u.Username)

	_, err = decodeUser("x", json.RawMessage(`{"message":"ok"}`))
	require.Error(t, err)
}

func TestUploadAvatarMultipart(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		f, hdr, err := r.FormFile("avatar")
		require.NoError(t, err)
		defer func() { _ = f.Close() }()
		b, _ := io.ReadAll(f)
		require.Equal(t, "face.png", hdr.Filename)
		require.Equal(t, "PNGDATA", string(b))
		writeJSON(w, 200, map[string]any{"user": map[string]any{"id": "1", "email": "a@b.c", "avatar": "1_face.png"}})
	}))
	u, err := c.UploadAvatar(context.Background(), "/tmp/face.png", strings.NewReader("PNGDATA"))
	require.NoError(t, err)
	require.Equal(t, "1_face.png", u.Avatar)
}

func TestUpdateAvatarURLSendsJSON(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "https://img.example.com/a.svg", body["avatar_url"])
		writeJSON(w, 200, map[string]any{"user": map[string]any{"id": "1", "email": "a@b.c", "avatar": "1.svg"}})
	}))
	u, err := c.UpdateAvatarURL(context.Background(), "https://img.example.com/a.svg")
	require.NoError(t, err)
	require.Equal(t, "1.svg", u.Avatar)
}

func TestChatHistoryRoundTrip(t *testing.T) {
	var saved map[string]any
	var deleted string
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chat/history", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, 200, map[string]any{"chats": []any{
				map[string]any{"sessionId": "s1", "sessionName": "first", "messages": []any{map[string]any{"sender": "user", "text": "hi"}}},
			}})
		case http.MethodPost:
			require.NoError(t, json.NewDecoder(r.Body).Decode(&saved))
			writeJSON(w, 200, map[string]string{"message": "Chat history saved successfully"})
		}
	})
	mux.HandleFunc("/api/chat/history/", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		deleted = strings.TrimPrefix(r.URL.Path, "/api/chat/history/")
		writeJSON(w, 200, map[string]string{"message": "Chat session deleted successfully"})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	chats, err := c.ChatHistory(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 1)
	require.Equal(t, "hi", chats[0].Messages[0].Text)

	require.NoError(t, c.SaveChatHistory(ctx, ChatHistorySession{SessionID: "s2"}))
	require.Equal(t, "s2", saved["sessionId"])
	require.Equal(t, []any{}, saved["messages"])

	require.NoError(t, c.DeleteChatHistory(ctx, "s2"))
	require.Equal(t, "s2", deleted)
}

func TestTemplatesQuery(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		require.Equal(t, "Business", q.Get("category"))
		require.Equal(t, "pitch", q.Get("search"))
		require.Equal(t, "rating", q.Get("sort_by"))
		require.Equal(t, "5", q.Get("limit"))
		writeJSON(w, 200, map[string]any{
			"templates":  []any{map[string]any{"id": "5", "name": "Startup Pitch", "downloads": 567, "rating": 4.5, "slides_count": 14}},
			"total":      1,
			"categories": []string{"Business"},
		})
	}))
	list, err := c.Templates(context.Background(), TemplateQuery{Category: "Business", Search: "pitch", SortBy: "rating", Limit: 5})
	require.NoError(t, err)
	require.Equal(t, 1, list.Total)
	require.Equal(t, 14, list.Templates[0].SlidesCount)
}

func TestAnalyticsRejectsUnknownSection(t *testing.T) {
	c, err := NewClient("")
	require.NoError(t, err)
	_, err = c.Analytics(context.Background(), "export")
	require.Error(t, err)
}

func TestHealthAndChat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("/chatbot", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body["message"] == "" {
			writeJSON(w, 400, map[string]string{"error": "Message is required"})
			return
		}
		writeJSON(w, 200, map[string]string{"reply": "echo: " + body["message"]})
	})
	c := newTestClient(t, mux)
	ctx := context.Background()

	status, err := c.Health(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", status)

	reply, err := c.Chat(ctx, "hello")
	require.NoError(t, err)
	require.Equal(t, "echo: hello", reply)

	_, err = c.Chat(ctx, "")
	require.Equal(t, KindValidationFailed, KindOf(err))
	require.Equal(t, "Message is required", UserMessage(err, "x"))
}
