package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"refbook/internal/app"
	"refbook/internal/auth"
	"refbook/internal/database"
)

func newTestServer(t *testing.T, debug bool) *Server {
	t.Helper()
	db := database.New(database.MemoryTables(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	tokens, err := auth.NewTokenIssuer(auth.TokenConfig{
		Secret:  "test-secret",
		TTL:     time.Hour,
		Revoker: auth.NewMemoryTokenRevoker(),
	})
	if err != nil {
		t.Fatalf("token issuer: %v", err)
	}
	application, err := app.New(app.Config{Database: db, Tokens: tokens, Debug: debug})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	return New(Config{App: application})
}

func doRequest(t *testing.T, s *Server, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func signUpAndLogin(t *testing.T, s *Server, username string) string {
	t.Helper()
	creds := map[string]string{"username": username, "password": "pass-1234"}
	if rec, body := doRequest(t, s, http.MethodPost, "/api/user/create", "", creds); rec.Code != http.StatusCreated {
		t.Fatalf("create user: status %d body %v", rec.Code, body)
	}
	rec, body := doRequest(t, s, http.MethodPost, "/api/user/login", "", creds)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: status %d body %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	token, _ := data["access_token"].(string)
	if token == "" {
		t.Fatalf("no access token in %v", body)
	}
	return token
}

func detailOf(t *testing.T, s *Server, token string) map[string]any {
	t.Helper()
	rec, body := doRequest(t, s, http.MethodGet, "/api/user/me", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d body %v", rec.Code, body)
	}
	return body["data"].(map[string]any)["detail"].(map[string]any)
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, false)
	rec, body := doRequest(t, s, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected health response: %d %v", rec.Code, body)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}

func TestCreateUserHidesPasswordHash(t *testing.T) {
	s := newTestServer(t, false)
	rec, body := doRequest(t, s, http.MethodPost, "/api/user/create", "",
		map[string]string{"username": "alice", "password": "secret-pw"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["username"] != "alice" {
		t.Fatalf("unexpected user payload: %v", data)
	}
	if _, ok := data["password_hash"]; ok {
		t.Fatalf("password hash leaked: %v", data)
	}
}

func TestCreateUserDuplicate(t *testing.T) {
	s := newTestServer(t, false)
	creds := map[string]string{"username": "alice", "password": "secret-pw"}
	doRequest(t, s, http.MethodPost, "/api/user/create", "", creds)
	rec, body := doRequest(t, s, http.MethodPost, "/api/user/create", "", creds)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
	if body["type"] != "failed" {
		t.Fatalf("unexpected envelope: %v", body)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	s := newTestServer(t, false)
	doRequest(t, s, http.MethodPost, "/api/user/create", "",
		map[string]string{"username": "alice", "password": "right-pw"})

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong-pw"},
		{"username": "nobody", "password": "right-pw"},
	} {
		rec, body := doRequest(t, s, http.MethodPost, "/api/user/login", "", creds)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("creds %v: status %d body %v", creds, rec.Code, body)
		}
		if body["message"] != "Incorrect username or password" {
			t.Fatalf("unexpected message: %v", body)
		}
	}
}

func TestMeRequiresToken(t *testing.T) {
	s := newTestServer(t, false)
	rec, _ := doRequest(t, s, http.MethodGet, "/api/user/me", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rec.Code)
	}
	rec, _ = doRequest(t, s, http.MethodGet, "/api/user/me", "garbage-token", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status %d for garbage token", rec.Code)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")

	if rec, _ := doRequest(t, s, http.MethodGet, "/api/user/me", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("me before logout: %d", rec.Code)
	}
	if rec, _ := doRequest(t, s, http.MethodPost, "/api/user/logout", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	if rec, _ := doRequest(t, s, http.MethodGet, "/api/user/me", token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: %d", rec.Code)
	}
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	detail := detailOf(t, s, token)
	historyID := detail["conversation_chat_history_id"].(string)

	if rec, body := doRequest(t, s, http.MethodDelete, "/api/user", token, nil); rec.Code != http.StatusOK {
		t.Fatalf("delete user: %d %v", rec.Code, body)
	}
	// The token subject no longer resolves to a user.
	if rec, _ := doRequest(t, s, http.MethodGet, "/api/chat/"+historyID, token, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized after account deletion, got %d", rec.Code)
	}
	rec, body := doRequest(t, s, http.MethodPost, "/api/user/login", "",
		map[string]string{"username": "alice", "password": "pass-1234"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login after deletion: %d %v", rec.Code, body)
	}
}

func TestBookAttachDetachFlow(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")

	book := map[string]any{
		"title": "数学之书",
		"chapters": []map[string]any{
			{"title": "第一章", "introduction": "数列与极限", "sections": []map[string]any{
				{"title": "1.1", "introduction": "极限", "concepts": []map[string]any{
					{"introduction": "数列的极限", "explanation": "ε-N 语言", "conclusion": "极限唯一"},
				}},
			}},
		},
	}
	rec, body := doRequest(t, s, http.MethodPost, "/api/book", token, book)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create book: %d %v", rec.Code, body)
	}
	bookID := body["data"].(map[string]any)["id"].(string)

	rec, body = doRequest(t, s, http.MethodPost, "/api/user/book", token, map[string]string{"book_id": bookID})
	if rec.Code != http.StatusOK {
		t.Fatalf("attach: %d %v", rec.Code, body)
	}
	bookIDs := detailOf(t, s, token)["book_ids"].([]any)
	if len(bookIDs) != 1 || bookIDs[0] != bookID {
		t.Fatalf("detail book ids: %v", bookIDs)
	}

	// Attaching twice is a conflict.
	rec, _ = doRequest(t, s, http.MethodPost, "/api/user/book", token, map[string]string{"book_id": bookID})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second attach: %d", rec.Code)
	}

	// Detach removes the reference and deletes the book itself.
	rec, body = doRequest(t, s, http.MethodDelete, "/api/user/book", token, map[string]string{"book_id": bookID})
	if rec.Code != http.StatusOK {
		t.Fatalf("detach: %d %v", rec.Code, body)
	}
	if got := detailOf(t, s, token)["book_ids"].([]any); len(got) != 0 {
		t.Fatalf("book ids after detach: %v", got)
	}
	rec, _ = doRequest(t, s, http.MethodGet, "/api/book/"+bookID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("book fetch after detach: %d", rec.Code)
	}
}

func TestAttachUnknownBook(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	rec, _ := doRequest(t, s, http.MethodPost, "/api/user/book", token, map[string]string{"book_id": "missing"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestChatMessageFlow(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	historyID := detailOf(t, s, token)["conversation_chat_history_id"].(string)

	rec, body := doRequest(t, s, http.MethodPost, "/api/chat/"+historyID+"/message", token,
		map[string]string{"role": "human", "content": "你好"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("post message: %d %v", rec.Code, body)
	}
	messageID := body["data"].(map[string]any)["id"].(string)

	rec, body = doRequest(t, s, http.MethodGet, "/api/chat/"+historyID+"/message?index=0", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by index: %d %v", rec.Code, body)
	}
	if body["data"].(map[string]any)["content"] != "你好" {
		t.Fatalf("unexpected message: %v", body)
	}

	rec, _ = doRequest(t, s, http.MethodGet, "/api/chat/"+historyID+"/message/"+messageID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get by id: %d", rec.Code)
	}

	rec, _ = doRequest(t, s, http.MethodGet, "/api/chat/"+historyID+"/message?index=5", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("out of range index: %d", rec.Code)
	}

	rec, _ = doRequest(t, s, http.MethodDelete, "/api/chat/"+historyID+"/message/"+messageID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete message: %d", rec.Code)
	}
	rec, _ = doRequest(t, s, http.MethodGet, "/api/chat/"+historyID+"/message/"+messageID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("message still present: %d", rec.Code)
	}
}

func TestChatRejectsInvalidRole(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	historyID := detailOf(t, s, token)["conversation_chat_history_id"].(string)

	rec, _ := doRequest(t, s, http.MethodPost, "/api/chat/"+historyID+"/message", token,
		map[string]string{"role": "assistant", "content": "hi"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestChatHistoryOwnership(t *testing.T) {
	s := newTestServer(t, false)
	aliceToken := signUpAndLogin(t, s, "alice")
	bobToken := signUpAndLogin(t, s, "bob")
	aliceHistory := detailOf(t, s, aliceToken)["conversation_chat_history_id"].(string)

	rec, body := doRequest(t, s, http.MethodGet, "/api/chat/"+aliceHistory, bobToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d body %v", rec.Code, body)
	}
}

func TestCleanDBDebugOnly(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	rec, _ := doRequest(t, s, http.MethodPost, "/api/admin/clean_db", token, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status %d without debug", rec.Code)
	}
}

func TestCleanDBTruncatesInDebugMode(t *testing.T) {
	s := newTestServer(t, true)
	token := signUpAndLogin(t, s, "alice")
	rec, body := doRequest(t, s, http.MethodPost, "/api/admin/clean_db", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clean_db: %d %v", rec.Code, body)
	}
	rec, _ = doRequest(t, s, http.MethodPost, "/api/user/login", "",
		map[string]string{"username": "alice", "password": "pass-1234"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("login after clean: %d", rec.Code)
	}
}

func TestBackupUnconfigured(t *testing.T) {
	s := newTestServer(t, false)
	token := signUpAndLogin(t, s, "alice")
	rec, _ := doRequest(t, s, http.MethodPost, "/api/admin/backup", token, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s := newTestServer(t, false)
	for path, method := range map[string]string{
		"/api/user/create": http.MethodGet,
		"/api/user/login":  http.MethodDelete,
	} {
		rec, _ := doRequest(t, s, method, path, "", nil)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("%s %s: status %d", method, path, rec.Code)
		}
	}
}

func TestInvalidJSONBody(t *testing.T) {
	s := newTestServer(t, false)
	req := httptest.NewRequest(http.MethodPost, "/api/user/create", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d", rec.Code)
	}
}

func TestUsersAreIsolated(t *testing.T) {
	s := newTestServer(t, false)
	for i := 0; i < 3; i++ {
		token := signUpAndLogin(t, s, fmt.Sprintf("user-%d", i))
		if got := detailOf(t, s, token)["book_ids"].([]any); len(got) != 0 {
			t.Fatalf("user %d starts with books: %v", i, got)
		}
	}
}
