package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ChatPane/controllers"
	"ChatPane/middleware"
	"ChatPane/models"
	"ChatPane/pkg/chat"
	"ChatPane/pkg/identity"
	"ChatPane/pkg/kv"
	"ChatPane/pkg/services"
	"ChatPane/pkg/theme"
	tokenstore "ChatPane/pkg/token"
	"ChatPane/routes"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scripted struct {
	frags   []string
	err     error
	started chan struct{}
	gate    chan struct{}
}

func (s *scripted) StreamChat(ctx context.Context, history []services.ChatTurn, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.started != nil {
			s.started <- struct{}{}
		}
		if s.gate != nil {
			<-s.gate
		}
		for _, f := range s.frags {
			if !yield(f, nil) {
				return
			}
		}
		if s.err != nil {
			yield("", s.err)
		}
	}
}

type transcriberFunc func(ctx context.Context, audio []byte, mimeType string) (string, error)

func (f transcriberFunc) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	return f(ctx, audio, mimeType)
}

var echoTranscriber = transcriberFunc(func(_ context.Context, audio []byte, _ string) (string, error) {
	return string(audio), nil
})

func newRouter(t *testing.T, completer chat.Completer, transcriber chat.Transcriber) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	store := kv.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := &controllers.Deps{
		Registry: chat.NewRegistry(store, completer, transcriber, logger),
		Identity: identity.NewProvider(store),
		Tokens:   identity.NewIssuer([]byte("test-secret"), time.Hour, tokenstore.New()),
		Theme:    theme.New(store, models.ThemeLight),
		Log:      logger,
	}
	r := gin.New()
	routes.RegisterRoutes(r, d, middleware.NewRateLimiter(time.Minute, 1000))
	return r
}

func do(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine) string {
	t.Helper()
	w := do(r, http.MethodPost, "/login", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		AccessToken string          `json:"access_token"`
		User        models.Identity `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, identity.Mock, resp.User)
	return resp.AccessToken
}

type listResponse struct {
	Conversations []struct {
		ID       string `json:"id"`
		Title    string `json:"title"`
		Messages int    `json:"message_count"`
		Active   bool   `json:"active"`
	} `json:"conversations"`
	ActiveID string `json:"active_id"`
}

func list(t *testing.T, r *gin.Engine, token string) listResponse {
	t.Helper()
	w := do(r, http.MethodGet, "/conversations", token, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestSendStreamsAndPersists(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"He", "llo"}}, echoTranscriber)
	tok := login(t, r)

	w := do(r, http.MethodPost, "/conversations/send", tok, `{"message":"Hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, w.Header().Get("Content-Type"), "text/event-stream")
	assert.Contains(t, body, "event:conversation")
	assert.Contains(t, body, `"text":"He"`)
	assert.Contains(t, body, `"text":"llo"`)
	assert.Contains(t, body, "event:done")
	assert.Contains(t, body, `"content":"Hello"`)
	assert.Less(t, strings.Index(body, "event:conversation"), strings.Index(body, "event:delta"))

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, "Hi", l.Conversations[0].Title)
	assert.Equal(t, 2, l.Conversations[0].Messages)
	assert.True(t, l.Conversations[0].Active)

	w = do(r, http.MethodGet, "/conversations/"+l.ActiveID, tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var conv models.Conversation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &conv))
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, models.Message{Role: models.RoleUser, Content: "Hi"}, conv.Messages[0])
	assert.Equal(t, models.Message{Role: models.RoleModel, Content: "Hello"}, conv.Messages[1])
}

func TestSendFailureRecordsErrorMessage(t *testing.T) {
	r := newRouter(t, &scripted{err: errors.New("boom")}, echoTranscriber)
	tok := login(t, r)

	w := do(r, http.MethodPost, "/conversations/send", tok, `{"message":"Hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"state":"failed"`)
	assert.Contains(t, w.Body.String(), chat.StreamErrorMessage)

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, 2, l.Conversations[0].Messages)
}

func TestSendValidation(t *testing.T) {
	r := newRouter(t, &scripted{}, echoTranscriber)
	tok := login(t, r)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/conversations/send", tok, `{"message":"   "}`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/conversations/send", tok, `{"message":"x","conversation_id":"nope"}`).Code)
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodPost, "/conversations/send", "", `{"message":"x"}`).Code)
}

func TestSendWhileBusyConflicts(t *testing.T) {
	comp := &scripted{frags: []string{"ok"}, started: make(chan struct{}, 1), gate: make(chan struct{})}
	r := newRouter(t, comp, echoTranscriber)
	tok := login(t, r)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(r, http.MethodPost, "/conversations/send", tok, `{"message":"first"}`)
	}()
	<-comp.started

	w := do(r, http.MethodPost, "/conversations/send", tok, `{"message":"second"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(comp.gate)
	w = <-first
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"ok"`)

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, 2, l.Conversations[0].Messages)
}

func TestActiveSelectionAndDelete(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"ok"}}, echoTranscriber)
	tok := login(t, r)

	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"one"}`)
	w := do(r, http.MethodPost, "/conversations/new", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"two"}`)

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 2)
	assert.Equal(t, "two", l.Conversations[0].Title, "newest first")
	assert.Equal(t, l.Conversations[0].ID, l.ActiveID)
	older := l.Conversations[1].ID

	w = do(r, http.MethodPut, "/conversations/active", tok, `{"conversation_id":"`+older+`"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, older, list(t, r, tok).ActiveID)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/conversations/active", tok, `{"conversation_id":"missing"}`).Code)

	w = do(r, http.MethodPut, "/conversations/active", tok, `{"conversation_id":null}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, list(t, r, tok).ActiveID)

	w = do(r, http.MethodDelete, "/conversations/"+older, tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodDelete, "/conversations/"+older, tok, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/conversations/"+older, tok, "").Code)

	l = list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, "two", l.Conversations[0].Title)
}

func TestListFiltersByTitle(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"ok"}}, echoTranscriber)
	tok := login(t, r)

	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"Go generics"}`)
	do(r, http.MethodPost, "/conversations/new", tok, "")
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"Rust lifetimes"}`)

	w := do(r, http.MethodGet, "/conversations?q=GENERICS", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Conversations, 1)
	assert.Equal(t, "Go generics", resp.Conversations[0].Title)
}

func TestLogoutRevokesAndLoginReloads(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"ok"}}, echoTranscriber)
	tok := login(t, r)
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"remember me"}`)
	before := list(t, r, tok)

	w := do(r, http.MethodPost, "/logout", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = do(r, http.MethodGet, "/conversations", tok, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "revoked")

	tok = login(t, r)
	after := list(t, r, tok)
	require.Len(t, after.Conversations, len(before.Conversations))
	for i, c := range before.Conversations {
		assert.Equal(t, c.ID, after.Conversations[i].ID)
		assert.Equal(t, c.Title, after.Conversations[i].Title)
		assert.Equal(t, c.Messages, after.Conversations[i].Messages)
	}
	assert.Empty(t, after.ActiveID, "selection is not restored")
}

func TestProfile(t *testing.T) {
	r := newRouter(t, &scripted{}, echoTranscriber)
	tok := login(t, r)

	w := do(r, http.MethodGet, "/me", tok, "")
	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, identity.Mock.ID, resp["id"])
	assert.Equal(t, identity.Mock.Email, resp["email"])
	assert.Equal(t, false, resp["processing"])
}

func TestTheme(t *testing.T) {
	r := newRouter(t, &scripted{}, echoTranscriber)

	w := do(r, http.MethodGet, "/theme", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme":"light"}`, w.Body.String())

	w = do(r, http.MethodPut, "/theme", "", `{"theme":"dark"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme":"dark"}`, do(r, http.MethodGet, "/theme", "", "").Body.String())

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/theme", "", `{"theme":"blue"}`).Code)

	w = do(r, http.MethodPost, "/theme/toggle", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"theme":"light"}`, w.Body.String())
}

func audioRequest(t *testing.T, token string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("audio", "voice.webm")
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("mime_type", "audio/webm"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/conversations/audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func TestSendAudio(t *testing.T) {
	var gotMIME string
	tr := transcriberFunc(func(_ context.Context, audio []byte, mimeType string) (string, error) {
		gotMIME = mimeType
		return "what time is it", nil
	})
	r := newRouter(t, &scripted{frags: []string{"Noon"}}, tr)
	tok := login(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, audioRequest(t, tok, []byte("fake-audio")))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Equal(t, "audio/webm", gotMIME)
	assert.Contains(t, body, "event:transcript")
	assert.Contains(t, body, `"text":"what time is it"`)
	assert.Contains(t, body, `"content":"Noon"`)

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, "what time is it", l.Conversations[0].Title)
}

func TestSendAudioTranscriptionFailure(t *testing.T) {
	comp := &scripted{frags: []string{"unused"}, started: make(chan struct{}, 1)}
	tr := transcriberFunc(func(context.Context, []byte, string) (string, error) {
		return "", errors.New("unreadable")
	})
	r := newRouter(t, comp, tr)
	tok := login(t, r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, audioRequest(t, tok, []byte("fake-audio")))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "event:error")
	assert.Contains(t, w.Body.String(), chat.TranscriptionErrorMessage)
	assert.Len(t, comp.started, 0, "model is not called")

	l := list(t, r, tok)
	require.Len(t, l.Conversations, 1)
	assert.Equal(t, 1, l.Conversations[0].Messages)
}

func TestSendAudioRequiresFile(t *testing.T) {
	r := newRouter(t, &scripted{}, echoTranscriber)
	tok := login(t, r)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/conversations/audio", tok, `{}`).Code)
}

func TestChatWS(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"He", "llo"}}, echoTranscriber)
	tok := login(t, r)
	srv := httptest.NewServer(r)
	defer srv.Close()

	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"
	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "message": "Hi"}))
	var deltas []string
	for {
		msg = map[string]any{}
		require.NoError(t, conn.ReadJSON(&msg))
		if msg["type"] == "delta" {
			deltas = append(deltas, msg["data"].(string))
		}
		if msg["type"] == "done" {
			break
		}
	}
	assert.Equal(t, []string{"He", "llo"}, deltas)
	assert.Equal(t, "Hello", msg["content"])
	assert.Equal(t, true, msg["ok"])
}

func TestWebsocketAfterLogoutKeepsSavedConversations(t *testing.T) {
	r := newRouter(t, &scripted{frags: []string{"ok"}}, echoTranscriber)
	tok := login(t, r)
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"one"}`)
	do(r, http.MethodPost, "/conversations/new", tok, "")
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"two"}`)
	before := list(t, r, tok)
	require.Len(t, before.Conversations, 2)

	srv := httptest.NewServer(r)
	defer srv.Close()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/chat?token="+tok, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	require.Equal(t, http.StatusOK, do(r, http.MethodPost, "/logout", tok, "").Code)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "send", "message": "after logout"}))
	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["error"], "log in again")

	tok = login(t, r)
	after := list(t, r, tok)
	require.Len(t, after.Conversations, 2)
	for i, c := range before.Conversations {
		assert.Equal(t, c.ID, after.Conversations[i].ID)
		assert.Equal(t, c.Title, after.Conversations[i].Title)
		assert.Equal(t, c.Messages, after.Conversations[i].Messages)
	}
}

func TestBusySendKeepsActiveConversation(t *testing.T) {
	comp := &scripted{frags: []string{"ok"}}
	r := newRouter(t, comp, echoTranscriber)
	tok := login(t, r)
	do(r, http.MethodPost, "/conversations/send", tok, `{"message":"older"}`)
	older := list(t, r, tok).ActiveID
	do(r, http.MethodPost, "/conversations/new", tok, "")

	comp.started = make(chan struct{}, 1)
	comp.gate = make(chan struct{})
	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		first <- do(r, http.MethodPost, "/conversations/send", tok, `{"message":"newer"}`)
	}()
	<-comp.started

	w := do(r, http.MethodPost, "/conversations/send", tok, `{"message":"x","conversation_id":"`+older+`"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	close(comp.gate)
	require.Equal(t, http.StatusOK, (<-first).Code)
	l := list(t, r, tok)
	require.Len(t, l.Conversations, 2)
	assert.Equal(t, "newer", l.Conversations[0].Title)
	assert.Equal(t, l.Conversations[0].ID, l.ActiveID)
	assert.NotEqual(t, older, l.ActiveID)
}
