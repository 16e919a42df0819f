package app

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jdhibberd/sticky/internal/auth"
	"github.com/jdhibberd/sticky/internal/session"
	"github.com/jdhibberd/sticky/internal/store"
	"github.com/jdhibberd/sticky/internal/validate"
)

const sessionCookieName = "sessionId"

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	// Sign-in/up routes are always reachable unauthenticated.
	if r.Method == http.MethodPost && r.URL.Path == "/api/signin" {
		s.handleSignIn(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/signup" {
		s.handleSignUp(w, r)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		sess, err := s.sessionFromRequest(r)
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "user": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"user":          map[string]any{"name": sess.UserName},
		})
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/signout" {
		// Best effort: an absent or dead session still clears the cookie.
		if sess, err := s.sessionFromRequest(r); err == nil {
			if err := s.service.SignOut(r.Context(), sess); err != nil {
				s.writeMappedError(w, r, err)
				return
			}
		}
		s.clearSessionCookie(w)
		w.WriteHeader(http.StatusOK)
		return
	}

	sess, ok := s.requireSession(w, r)
	if !ok {
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notes" {
		payload := map[string]any{"id": r.URL.Query().Get("id")}
		page, err := s.service.NotePage(r.Context(), sess, payload)
		if err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/notes" {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.service.CreateNote(r.Context(), sess, payload); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}

	if r.Method == http.MethodPut && r.URL.Path == "/api/notes" {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.service.UpdateNote(r.Context(), payload); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	parts := splitPath(r.URL.Path)

	if r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "api" && parts[1] == "notes" {
		if err := s.service.DeleteNote(r.Context(), parts[2]); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/likes" {
		payload, err := decodePayload(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		if err := s.service.Like(r.Context(), sess, payload); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusCreated)
		return
	}

	if r.Method == http.MethodDelete && len(parts) == 3 && parts[0] == "api" && parts[1] == "likes" {
		if err := s.service.Unlike(r.Context(), sess, parts[2]); err != nil {
			s.writeMappedError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		limit, verr := queryInt(r, "limit", 20)
		if verr != nil {
			s.writeMappedError(w, r, verr)
			return
		}
		offset, verr := queryInt(r, "offset", 0)
		if verr != nil {
			s.writeMappedError(w, r, verr)
			return
		}
		writeJSON(w, http.StatusOK, s.service.Search(q, limit, offset))
		return
	}

	writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	form, sess, err := s.service.SignIn(r.Context(), payload)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if sess != nil {
		s.setSessionCookie(w, *sess)
	}
	writeForm(w, form)
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	payload, err := decodePayload(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	form, sess, err := s.service.SignUp(r.Context(), payload)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if sess != nil {
		s.setSessionCookie(w, *sess)
	}
	writeForm(w, form)
}

func (s *HTTPServer) sessionFromRequest(r *http.Request) (store.Session, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return store.Session{}, err
	}
	return s.service.SessionFromCookie(r.Context(), cookie.Value)
}

// requireSession resolves the session once per request; handlers receive it
// explicitly. 401 responses carry no body so the client cannot tell which
// part of the auth chain failed.
func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (store.Session, bool) {
	sess, err := s.sessionFromRequest(r)
	if err != nil {
		if isUnauthenticated(err) {
			w.WriteHeader(http.StatusUnauthorized)
		} else {
			log.Error().Err(err).Msg("session lookup failed")
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
		}
		return store.Session{}, false
	}
	return sess, true
}

func isUnauthenticated(err error) bool {
	return errors.Is(err, http.ErrNoCookie) ||
		errors.Is(err, auth.ErrTamperedCookie) ||
		errors.Is(err, session.ErrNotFound)
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, sess store.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    s.service.SignSessionID(sess.ID),
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", writer.status).
			Dur("duration", time.Since(started)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeForm writes a form validation response: 400 when a field failed,
// 200 for any accepted partial or complete state.
func writeForm(w http.ResponseWriter, form validate.FormResponse) {
	status := http.StatusOK
	if form.Failed() {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, form)
}

// writeMappedError classifies an error into the client response. Anything
// unrecognized degrades to a generic 500 with full server-side logging.
func (s *HTTPServer) writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"key": verr.Key, "error": verr.Message})
		return
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		writeJSON(w, domainErr.Status, map[string]any{"code": domainErr.Code, "error": domainErr.Message})
		return
	}
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Not found"})
		return
	}
	if isUnauthenticated(err) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	log.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg("request failed")
	writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "Server error"})
}

func decodePayload(r *http.Request) (map[string]any, error) {
	payload := map[string]any{}
	if r.Body == nil {
		return payload, nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]any{}, nil
		}
		return nil, fmt.Errorf("invalid JSON body")
	}
	return payload, nil
}

func queryInt(r *http.Request, name string, fallback int) (int, *validate.Error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &validate.Error{Key: "/" + name, Message: "Not an integer."}
	}
	return parsed, nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
