package app

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/jdhibberd/sticky/internal/auth"
	"github.com/jdhibberd/sticky/internal/config"
	"github.com/jdhibberd/sticky/internal/email"
	"github.com/jdhibberd/sticky/internal/notepath"
	"github.com/jdhibberd/sticky/internal/search"
	"github.com/jdhibberd/sticky/internal/session"
	"github.com/jdhibberd/sticky/internal/store"
	"github.com/jdhibberd/sticky/internal/validate"
)

// Store is the persistence surface the service needs. *store.PostgresStore
// satisfies it; tests substitute a fake.
type Store interface {
	InsertNote(ctx context.Context, authorID, content, path string) (store.Note, error)
	UpdateNoteContent(ctx context.Context, noteID, content string) error
	GetNote(ctx context.Context, noteID string) (store.Note, error)
	SelectNotesByPath(ctx context.Context, path string) ([]store.Note, error)
	DeleteNoteRecursive(ctx context.Context, note store.Note) error
	InsertUser(ctx context.Context, name, email string) (store.User, error)
	GetUserByEmail(ctx context.Context, email string) (store.User, error)
	SelectUsersByIDs(ctx context.Context, userIDs []string) ([]store.User, error)
	InsertLike(ctx context.Context, userID, noteID string) error
	DeleteLike(ctx context.Context, userID, noteID string) error
	SelectLikesByNoteIDs(ctx context.Context, userID string, noteIDs []string) (store.NoteLikes, error)
	UpsertOTP(ctx context.Context, email, otpHash string, ttl time.Duration) error
	RedeemOTP(ctx context.Context, email, otpHash string) (bool, error)
	Ping(ctx context.Context) error
}

// Service implements the application operations behind the HTTP surface.
type Service struct {
	store    Store
	sessions session.Store
	email    *email.Service
	search   *search.Service
	cfg      config.Config
}

// NewService wires the service. search may be nil when note search is not
// configured.
func NewService(st Store, sessions session.Store, emailSvc *email.Service, searchSvc *search.Service, cfg config.Config) *Service {
	return &Service{
		store:    st,
		sessions: sessions,
		email:    emailSvc,
		search:   searchSvc,
		cfg:      cfg,
	}
}

// Ping checks the backing stores for the readiness probe.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return err
	}
	return s.sessions.Ping(ctx)
}

// SignSessionID wraps a session id for transport in the session cookie.
func (s *Service) SignSessionID(sessionID string) string {
	return auth.SignCookie([]byte(s.cfg.CookieSecret), sessionID)
}

// SessionFromCookie resolves a signed cookie value to a live session.
// Tampered signatures and unknown or expired ids both come back as errors
// the HTTP layer treats as "no session".
func (s *Service) SessionFromCookie(ctx context.Context, signed string) (store.Session, error) {
	sessionID, err := auth.VerifyCookie([]byte(s.cfg.CookieSecret), signed)
	if err != nil {
		return store.Session{}, err
	}
	return s.sessions.Get(ctx, sessionID)
}

// SignOut deletes a session. Unknown sessions are a no-op.
func (s *Service) SignOut(ctx context.Context, sess store.Session) error {
	return s.sessions.Delete(ctx, sess.ID)
}

// NotePage builds the page model for a note, or the root when the id
// property is null or empty.
func (s *Service) NotePage(ctx context.Context, sess store.Session, payload map[string]any) (*NotePage, error) {
	if verr := validate.Props("/", payload, "id"); verr != nil {
		return nil, verr
	}
	validate.NullifyEmptyString(payload, "id")
	if verr := validate.UUID("/id", payload["id"], true); verr != nil {
		return nil, verr
	}
	parent, err := s.checkNoteExists(ctx, "/id", payload["id"])
	if err != nil {
		return nil, err
	}

	path := ""
	if parent != nil {
		path = notepath.Append(parent.Path, parent.ID)
	}
	notes, err := s.store.SelectNotesByPath(ctx, path)
	if err != nil {
		return nil, err
	}

	noteIDs := make([]string, 0, len(notes))
	authorIDs := make([]string, 0, len(notes))
	seenAuthors := make(map[string]bool)
	for _, note := range notes {
		noteIDs = append(noteIDs, note.ID)
		if !seenAuthors[note.AuthorID] {
			seenAuthors[note.AuthorID] = true
			authorIDs = append(authorIDs, note.AuthorID)
		}
	}

	likes, err := s.store.SelectLikesByNoteIDs(ctx, sess.UserID, noteIDs)
	if err != nil {
		return nil, err
	}
	authors, err := s.store.SelectUsersByIDs(ctx, authorIDs)
	if err != nil {
		return nil, err
	}

	return buildNotePage(path, notes, likes, authors, sess.UserName)
}

// CreateNote inserts a note under the given parent, or at the root when
// parentId is null.
func (s *Service) CreateNote(ctx context.Context, sess store.Session, payload map[string]any) error {
	if verr := validate.Props("/", payload, "parentId", "content"); verr != nil {
		return verr
	}
	if verr := validate.UUID("/parentId", payload["parentId"], true); verr != nil {
		return verr
	}
	if verr := validate.String("/content", payload["content"], validate.StringOpts{MinLen: 1, MaxLen: store.ContentMaxLen}); verr != nil {
		return verr
	}
	parent, err := s.checkNoteExists(ctx, "/parentId", payload["parentId"])
	if err != nil {
		return err
	}
	path, verr := checkPathDepth("/parentId", parent)
	if verr != nil {
		return verr
	}

	note, err := s.store.InsertNote(ctx, sess.UserID, payload["content"].(string), path)
	if err != nil {
		return err
	}
	s.indexNote(note)
	return nil
}

// UpdateNote replaces a note's content.
func (s *Service) UpdateNote(ctx context.Context, payload map[string]any) error {
	if verr := validate.Props("/", payload, "id", "content"); verr != nil {
		return verr
	}
	if verr := validate.UUID("/id", payload["id"], false); verr != nil {
		return verr
	}
	if verr := validate.String("/content", payload["content"], validate.StringOpts{MinLen: 1, MaxLen: store.ContentMaxLen}); verr != nil {
		return verr
	}
	note, err := s.checkNoteExists(ctx, "/id", payload["id"])
	if err != nil {
		return err
	}

	content := payload["content"].(string)
	if err := s.store.UpdateNoteContent(ctx, note.ID, content); err != nil {
		return err
	}
	note.Content = content
	s.indexNote(*note)
	return nil
}

// DeleteNote removes a note and its descendants. A missing note is 404, not
// a validation failure: nothing about the request is malformed, the resource
// is simply absent at action time.
func (s *Service) DeleteNote(ctx context.Context, noteID string) error {
	if verr := validate.UUID("/id", noteID, false); verr != nil {
		return verr
	}
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Note not found")
	}
	if err != nil {
		return err
	}
	if err := s.store.DeleteNoteRecursive(ctx, note); err != nil {
		return err
	}
	if s.search != nil {
		s.search.DeleteNote(note.ID)
	}
	return nil
}

// Like records that the signed-in user likes a note. Liking twice is
// accepted silently.
func (s *Service) Like(ctx context.Context, sess store.Session, payload map[string]any) error {
	if verr := validate.Props("/", payload, "noteId"); verr != nil {
		return verr
	}
	if verr := validate.UUID("/noteId", payload["noteId"], false); verr != nil {
		return verr
	}
	note, err := s.checkNoteExists(ctx, "/noteId", payload["noteId"])
	if err != nil {
		return err
	}
	return s.store.InsertLike(ctx, sess.UserID, note.ID)
}

// Unlike removes the signed-in user's like from a note.
func (s *Service) Unlike(ctx context.Context, sess store.Session, noteID string) error {
	if verr := validate.UUID("/id", noteID, false); verr != nil {
		return verr
	}
	return s.store.DeleteLike(ctx, sess.UserID, noteID)
}

// SignIn runs the incremental email/otp sign-in form. It returns the form
// response and, on completion, the freshly created session. The form states
// drive the side effects: a confirmed email with no passcode yet issues one,
// a confirmed passcode signs the user in.
func (s *Service) SignIn(ctx context.Context, payload map[string]any) (validate.FormResponse, *store.Session, error) {
	if verr := validate.Props("/", payload, "email", "otp"); verr != nil {
		return nil, nil, verr
	}
	verr, err := s.checkSignInFields(ctx, payload)
	if err != nil {
		return nil, nil, err
	}
	form := validate.BuildFormResponse(
		[]string{"email", "otp"},
		[]any{payload["email"], payload["otp"]},
		verr,
	)
	if verr != nil {
		return form, nil, nil
	}

	if form.Passed("email") && form.Pending("otp") {
		if err := s.issueOTP(ctx, payload["email"].(string)); err != nil {
			return nil, nil, err
		}
	}
	if form.Passed("email") && form.Passed("otp") {
		user, err := s.store.GetUserByEmail(ctx, payload["email"].(string))
		if err != nil {
			return nil, nil, err
		}
		sess, err := s.sessions.Create(ctx, user.ID, user.Name, s.cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return form, &sess, nil
	}
	return form, nil, nil
}

func (s *Service) checkSignInFields(ctx context.Context, payload map[string]any) (*validate.Error, error) {
	if verr := validate.EmailFormat("/email", payload["email"], store.EmailMinLen, store.EmailMaxLen); verr != nil {
		return verr, nil
	}
	if payload["email"] != nil {
		verr, err := s.checkEmailAvailability(ctx, "/email", payload["email"].(string), true)
		if verr != nil || err != nil {
			return verr, err
		}
	}
	return s.checkOTP(ctx, payload["email"], payload["otp"])
}

// SignUp runs the incremental name/email/otp sign-up form. Completion
// creates the account and signs the new user in.
func (s *Service) SignUp(ctx context.Context, payload map[string]any) (validate.FormResponse, *store.Session, error) {
	if verr := validate.Props("/", payload, "name", "email", "otp"); verr != nil {
		return nil, nil, verr
	}
	verr, err := s.checkSignUpFields(ctx, payload)
	if err != nil {
		return nil, nil, err
	}
	form := validate.BuildFormResponse(
		[]string{"name", "email", "otp"},
		[]any{payload["name"], payload["email"], payload["otp"]},
		verr,
	)
	if verr != nil {
		return form, nil, nil
	}

	if form.Passed("name") && form.Passed("email") && form.Pending("otp") {
		if err := s.issueOTP(ctx, payload["email"].(string)); err != nil {
			return nil, nil, err
		}
	}
	if form.Passed("name") && form.Passed("email") && form.Passed("otp") {
		user, err := s.store.InsertUser(ctx, payload["name"].(string), payload["email"].(string))
		if err != nil {
			return nil, nil, err
		}
		sess, err := s.sessions.Create(ctx, user.ID, user.Name, s.cfg.SessionTTL)
		if err != nil {
			return nil, nil, err
		}
		return form, &sess, nil
	}
	return form, nil, nil
}

func (s *Service) checkSignUpFields(ctx context.Context, payload map[string]any) (*validate.Error, error) {
	if verr := validate.String("/name", payload["name"], validate.StringOpts{
		MinLen:   store.NameMinLen,
		MaxLen:   store.NameMaxLen,
		Optional: true,
	}); verr != nil {
		return verr, nil
	}
	if verr := validate.EmailFormat("/email", payload["email"], store.EmailMinLen, store.EmailMaxLen); verr != nil {
		return verr, nil
	}
	if payload["email"] != nil {
		verr, err := s.checkEmailAvailability(ctx, "/email", payload["email"].(string), false)
		if verr != nil || err != nil {
			return verr, err
		}
	}
	return s.checkOTP(ctx, payload["email"], payload["otp"])
}

// Search runs a full-text query over note content.
func (s *Service) Search(q string, limit, offset int) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Total: 0, Query: q}
	}
	return s.search.Search(search.Query{Text: q, Limit: limit, Offset: offset})
}

// checkNoteExists resolves a referenced note. A nil id passes through as a
// nil note, which callers read as the tree root.
func (s *Service) checkNoteExists(ctx context.Context, k string, id any) (*store.Note, error) {
	if id == nil {
		return nil, nil
	}
	note, err := s.store.GetNote(ctx, id.(string))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &validate.Error{Key: k, Message: "Note entity " + id.(string) + " not found."}
	}
	if err != nil {
		return nil, err
	}
	return &note, nil
}

// checkPathDepth computes the path a child of the given parent would get,
// failing when the tree is already at its maximum depth. A nil parent means
// the root.
func checkPathDepth(k string, parent *store.Note) (string, *validate.Error) {
	if parent == nil {
		return "", nil
	}
	path := notepath.Append(parent.Path, parent.ID)
	if notepath.Depth(path) >= store.PathMaxDepth {
		return "", &validate.Error{Key: k, Message: "Note max depth exceeded."}
	}
	return path, nil
}

// checkEmailAvailability checks that an email has the desired registration
// state: wantExists true for sign-in (the account must exist), false for
// sign-up (the address must be free).
func (s *Service) checkEmailAvailability(ctx context.Context, k, emailAddr string, wantExists bool) (*validate.Error, error) {
	_, err := s.store.GetUserByEmail(ctx, emailAddr)
	if errors.Is(err, sql.ErrNoRows) {
		if wantExists {
			return &validate.Error{Key: k, Message: "Email not found."}, nil
		}
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !wantExists {
		return &validate.Error{Key: k, Message: "Email already taken."}, nil
	}
	return nil, nil
}

// checkOTP validates and redeems a passcode. With no email there is nothing
// to check the passcode against, and a missing passcode just means the form
// hasn't reached that field yet. Redemption consumes the passcode, so only
// the first valid submission wins.
func (s *Service) checkOTP(ctx context.Context, emailVal, otpVal any) (*validate.Error, error) {
	if emailVal == nil || otpVal == nil {
		return nil, nil
	}
	if verr := validate.String("/otp", otpVal, validate.StringOpts{
		MinLen: auth.OTPLen,
		MaxLen: auth.OTPLen,
	}); verr != nil {
		return verr, nil
	}
	emailAddr := emailVal.(string)
	otp := otpVal.(string)
	ok, err := s.store.RedeemOTP(ctx, emailAddr, auth.HashOTP(s.cfg.OTPSecret, emailAddr, otp))
	if err != nil {
		return nil, err
	}
	if !ok {
		return &validate.Error{Key: "/otp", Message: "Invalid OTP."}, nil
	}
	return nil, nil
}

// issueOTP generates a passcode, stores its digest, and delivers it. The
// upsert replaces any live passcode for the address, so repeat submissions
// are safe. When email delivery is not configured the passcode is logged
// instead, which is the local development mode.
func (s *Service) issueOTP(ctx context.Context, emailAddr string) error {
	otp, err := auth.GenOTP()
	if err != nil {
		return err
	}
	hash := auth.HashOTP(s.cfg.OTPSecret, emailAddr, otp)
	if err := s.store.UpsertOTP(ctx, emailAddr, hash, s.cfg.OTPTTL); err != nil {
		return err
	}

	if s.email == nil || !s.email.IsConfigured() {
		log.Info().Str("email", emailAddr).Str("otp", otp).Msg("email not configured, passcode logged")
		return nil
	}
	minutes := int(s.cfg.OTPTTL.Minutes())
	if err := s.email.SendOTPEmail(emailAddr, otp, minutes); err != nil {
		return err
	}
	return nil
}

func (s *Service) indexNote(note store.Note) {
	if s.search == nil {
		return
	}
	s.search.IndexNote(search.NoteRecord{
		ID:       note.ID,
		Content:  note.Content,
		Path:     note.Path,
		AuthorID: note.AuthorID,
	})
}
