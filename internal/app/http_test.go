package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jdhibberd/sticky/internal/store"
)

func newTestServer(t *testing.T, st *fakeStore) *HTTPServer {
	t.Helper()
	return NewHTTPServer(newTestService(t, st), "*")
}

func doRequest(t *testing.T, srv *HTTPServer, method, path, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func signedInCookie(t *testing.T, srv *HTTPServer) *http.Cookie {
	t.Helper()
	sess, err := srv.service.sessions.Create(context.Background(), "user-1", "ann", srv.service.cfg.SessionTTL)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return &http.Cookie{
		Name:  sessionCookieName,
		Value: srv.service.SignSessionID(sess.ID),
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodGet, "/api/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", w.Code)
	}
}

func TestProtectedRouteWithoutSession(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodGet, "/api/notes", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "" {
		t.Errorf("401 must carry no body, got %q", body)
	}
}

func TestProtectedRouteWithTamperedCookie(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	cookie := signedInCookie(t, srv)
	cookie.Value = cookie.Value + "x"
	w := doRequest(t, srv, http.MethodGet, "/api/notes", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for tampered cookie, got %d", w.Code)
	}
}

func TestNotePageWithSession(t *testing.T) {
	st := &fakeStore{
		selectNotesByPathFn: func(_ context.Context, path string) ([]store.Note, error) {
			return []store.Note{{ID: noteID, AuthorID: "user-1", Content: "xxx", Path: ""}}, nil
		},
		selectUsersByIDsFn: func(_ context.Context, ids []string) ([]store.User, error) {
			return []store.User{{ID: "user-1", Name: "ann"}}, nil
		},
	}
	srv := newTestServer(t, st)

	w := doRequest(t, srv, http.MethodGet, "/api/notes", "", signedInCookie(t, srv))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var page NotePage
	if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.User.Name != "ann" {
		t.Errorf("expected user ann, got %s", page.User.Name)
	}
	if len(page.Notes) != 1 || page.Notes[0].ID != noteID {
		t.Errorf("expected one note, got %+v", page.Notes)
	}
}

func TestSessionEndpoint(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodGet, "/api/session", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["authenticated"] != false {
		t.Errorf("expected unauthenticated, got %v", resp)
	}

	w = doRequest(t, srv, http.MethodGet, "/api/session", "", signedInCookie(t, srv))
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["authenticated"] != true {
		t.Errorf("expected authenticated, got %v", resp)
	}
}

func TestSignUpFormValidationOverHTTP(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	// Valid partial form: 200 with the name confirmed and the rest
	// pending.
	w := doRequest(t, srv, http.MethodPost, "/api/signup",
		`{"name":"ann","email":null,"otp":null}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var form map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &form); err != nil {
		t.Fatalf("decode form: %v", err)
	}
	if form["name"] != true || form["email"] != nil || form["otp"] != nil {
		t.Errorf("unexpected form state: %v", form)
	}

	// A failed field: 400 with the message in place and trailing fields
	// reset.
	w = doRequest(t, srv, http.MethodPost, "/api/signup",
		`{"name":"x","email":"ann@example.com","otp":null}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &form); err != nil {
		t.Fatalf("decode form: %v", err)
	}
	if _, ok := form["name"].(string); !ok {
		t.Errorf("expected failure message for name, got %v", form["name"])
	}
	if form["email"] != nil || form["otp"] != nil {
		t.Errorf("fields after a failure must be null, got %v", form)
	}
}

func TestSignUpCompleteSetsCookie(t *testing.T) {
	st := &fakeStore{
		redeemOTPFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	srv := newTestServer(t, st)

	w := doRequest(t, srv, http.MethodPost, "/api/signup",
		`{"name":"ann","email":"ann@example.com","otp":"042917"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var sessionCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == sessionCookieName {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("expected a session cookie on completion")
	}
	if !strings.Contains(sessionCookie.Value, ".") {
		t.Error("session cookie should be signed")
	}

	// The cookie authenticates follow-up requests.
	w = doRequest(t, srv, http.MethodGet, "/api/notes", "", sessionCookie)
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with fresh cookie, got %d", w.Code)
	}
}

func TestSignOutClearsCookie(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})
	cookie := signedInCookie(t, srv)

	w := doRequest(t, srv, http.MethodPost, "/api/signout", "", cookie)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	// The session is gone: the old cookie no longer authenticates.
	w = doRequest(t, srv, http.MethodGet, "/api/notes", "", cookie)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 after signout, got %d", w.Code)
	}
}

func TestDeleteNoteNotFoundOverHTTP(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodDelete, "/api/notes/"+noteID, "", signedInCookie(t, srv))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404 for missing note, got %d", w.Code)
	}
}

func TestCreateNoteOverHTTP(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodPost, "/api/notes",
		`{"parentId":null,"content":"hello"}`, signedInCookie(t, srv))
	if w.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	// Malformed payloads carry the offending key.
	w = doRequest(t, srv, http.MethodPost, "/api/notes",
		`{"parentId":null,"content":""}`, signedInCookie(t, srv))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	if resp["key"] != "/content" {
		t.Errorf("expected key /content, got %v", resp["key"])
	}
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, &fakeStore{})

	w := doRequest(t, srv, http.MethodGet, "/api/nope", "", signedInCookie(t, srv))
	if w.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", w.Code)
	}
}
