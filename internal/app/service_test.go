package app

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jdhibberd/sticky/internal/config"
	"github.com/jdhibberd/sticky/internal/session"
	"github.com/jdhibberd/sticky/internal/store"
	"github.com/jdhibberd/sticky/internal/validate"
)

type fakeStore struct {
	insertNoteFn           func(context.Context, string, string, string) (store.Note, error)
	updateNoteContentFn    func(context.Context, string, string) error
	getNoteFn              func(context.Context, string) (store.Note, error)
	selectNotesByPathFn    func(context.Context, string) ([]store.Note, error)
	deleteNoteRecursiveFn  func(context.Context, store.Note) error
	insertUserFn           func(context.Context, string, string) (store.User, error)
	getUserByEmailFn       func(context.Context, string) (store.User, error)
	selectUsersByIDsFn     func(context.Context, []string) ([]store.User, error)
	insertLikeFn           func(context.Context, string, string) error
	deleteLikeFn           func(context.Context, string, string) error
	selectLikesByNoteIDsFn func(context.Context, string, []string) (store.NoteLikes, error)
	upsertOTPFn            func(context.Context, string, string, time.Duration) error
	redeemOTPFn            func(context.Context, string, string) (bool, error)
}

func (f *fakeStore) InsertNote(ctx context.Context, authorID, content, path string) (store.Note, error) {
	if f.insertNoteFn != nil {
		return f.insertNoteFn(ctx, authorID, content, path)
	}
	return store.Note{ID: "note-1", AuthorID: authorID, Content: content, Path: path}, nil
}
func (f *fakeStore) UpdateNoteContent(ctx context.Context, noteID, content string) error {
	if f.updateNoteContentFn != nil {
		return f.updateNoteContentFn(ctx, noteID, content)
	}
	return nil
}
func (f *fakeStore) GetNote(ctx context.Context, noteID string) (store.Note, error) {
	if f.getNoteFn != nil {
		return f.getNoteFn(ctx, noteID)
	}
	return store.Note{}, sql.ErrNoRows
}
func (f *fakeStore) SelectNotesByPath(ctx context.Context, path string) ([]store.Note, error) {
	if f.selectNotesByPathFn != nil {
		return f.selectNotesByPathFn(ctx, path)
	}
	return []store.Note{}, nil
}
func (f *fakeStore) DeleteNoteRecursive(ctx context.Context, note store.Note) error {
	if f.deleteNoteRecursiveFn != nil {
		return f.deleteNoteRecursiveFn(ctx, note)
	}
	return nil
}
func (f *fakeStore) InsertUser(ctx context.Context, name, email string) (store.User, error) {
	if f.insertUserFn != nil {
		return f.insertUserFn(ctx, name, email)
	}
	return store.User{ID: "user-1", Name: name, Email: email}, nil
}
func (f *fakeStore) GetUserByEmail(ctx context.Context, email string) (store.User, error) {
	if f.getUserByEmailFn != nil {
		return f.getUserByEmailFn(ctx, email)
	}
	return store.User{}, sql.ErrNoRows
}
func (f *fakeStore) SelectUsersByIDs(ctx context.Context, userIDs []string) ([]store.User, error) {
	if f.selectUsersByIDsFn != nil {
		return f.selectUsersByIDsFn(ctx, userIDs)
	}
	return []store.User{}, nil
}
func (f *fakeStore) InsertLike(ctx context.Context, userID, noteID string) error {
	if f.insertLikeFn != nil {
		return f.insertLikeFn(ctx, userID, noteID)
	}
	return nil
}
func (f *fakeStore) DeleteLike(ctx context.Context, userID, noteID string) error {
	if f.deleteLikeFn != nil {
		return f.deleteLikeFn(ctx, userID, noteID)
	}
	return nil
}
func (f *fakeStore) SelectLikesByNoteIDs(ctx context.Context, userID string, noteIDs []string) (store.NoteLikes, error) {
	if f.selectLikesByNoteIDsFn != nil {
		return f.selectLikesByNoteIDsFn(ctx, userID, noteIDs)
	}
	return store.NoteLikes{Counts: []store.LikeCount{}, LikedByUser: []string{}}, nil
}
func (f *fakeStore) UpsertOTP(ctx context.Context, email, otpHash string, ttl time.Duration) error {
	if f.upsertOTPFn != nil {
		return f.upsertOTPFn(ctx, email, otpHash, ttl)
	}
	return nil
}
func (f *fakeStore) RedeemOTP(ctx context.Context, email, otpHash string) (bool, error) {
	if f.redeemOTPFn != nil {
		return f.redeemOTPFn(ctx, email, otpHash)
	}
	return false, nil
}
func (f *fakeStore) Ping(context.Context) error { return nil }

func newTestService(t *testing.T, st *fakeStore) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := session.NewRedisStoreWithClient(client)
	cfg := config.Config{
		CookieSecret: "test-cookie-secret",
		OTPSecret:    "test-otp-secret",
		OTPTTL:       5 * time.Minute,
		SessionTTL:   time.Hour,
	}
	return NewService(st, sessions, nil, nil, cfg)
}

const (
	noteID   = "11111111-1111-1111-1111-111111111111"
	parentID = "22222222-2222-2222-2222-222222222222"
)

func TestCreateNoteAtRoot(t *testing.T) {
	inserted := false
	st := &fakeStore{
		insertNoteFn: func(_ context.Context, authorID, content, path string) (store.Note, error) {
			inserted = true
			if path != "" {
				t.Errorf("expected root path, got %q", path)
			}
			if content != "hello" {
				t.Errorf("expected content hello, got %q", content)
			}
			return store.Note{ID: noteID, AuthorID: authorID, Content: content, Path: path}, nil
		},
	}
	svc := newTestService(t, st)

	sess := store.Session{UserID: "user-1", UserName: "ann"}
	err := svc.CreateNote(context.Background(), sess, map[string]any{
		"parentId": nil,
		"content":  "hello",
	})
	if err != nil {
		t.Fatalf("CreateNote failed: %v", err)
	}
	if !inserted {
		t.Error("expected note to be inserted")
	}
}

func TestCreateNoteMissingParent(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	sess := store.Session{UserID: "user-1"}
	err := svc.CreateNote(context.Background(), sess, map[string]any{
		"parentId": parentID,
		"content":  "hello",
	})
	assertValidationError(t, err, "/parentId")
}

func TestCreateNoteDepthLimit(t *testing.T) {
	// A parent with four ancestors would put its child at the maximum
	// depth of five.
	deepParent := store.Note{
		ID:   parentID,
		Path: "a/b/c/d",
	}
	st := &fakeStore{
		getNoteFn: func(_ context.Context, id string) (store.Note, error) {
			return deepParent, nil
		},
	}
	svc := newTestService(t, st)
	sess := store.Session{UserID: "user-1"}

	err := svc.CreateNote(context.Background(), sess, map[string]any{
		"parentId": parentID,
		"content":  "too deep",
	})
	assertValidationError(t, err, "/parentId")

	// One level shallower must succeed.
	deepParent.Path = "a/b/c"
	err = svc.CreateNote(context.Background(), sess, map[string]any{
		"parentId": parentID,
		"content":  "just fits",
	})
	if err != nil {
		t.Fatalf("CreateNote at allowed depth failed: %v", err)
	}
}

func TestCreateNoteRejectsExtraProps(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	sess := store.Session{UserID: "user-1"}

	err := svc.CreateNote(context.Background(), sess, map[string]any{
		"parentId": nil,
		"content":  "hello",
		"bogus":    1,
	})
	assertValidationError(t, err, "/")
}

func TestDeleteNoteNotFound(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	err := svc.DeleteNote(context.Background(), noteID)
	if err == nil {
		t.Fatal("expected error for missing note, got nil")
	}
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Status != 404 {
		t.Errorf("expected 404 domain error, got %v", err)
	}
}

func TestDeleteNoteRecursive(t *testing.T) {
	var deleted *store.Note
	st := &fakeStore{
		getNoteFn: func(_ context.Context, id string) (store.Note, error) {
			return store.Note{ID: id, Path: "a/b"}, nil
		},
		deleteNoteRecursiveFn: func(_ context.Context, note store.Note) error {
			deleted = &note
			return nil
		},
	}
	svc := newTestService(t, st)

	if err := svc.DeleteNote(context.Background(), noteID); err != nil {
		t.Fatalf("DeleteNote failed: %v", err)
	}
	if deleted == nil || deleted.ID != noteID {
		t.Errorf("expected recursive delete of %s, got %+v", noteID, deleted)
	}
}

func TestSignUpNameOnly(t *testing.T) {
	otpIssued := false
	st := &fakeStore{
		upsertOTPFn: func(context.Context, string, string, time.Duration) error {
			otpIssued = true
			return nil
		},
	}
	svc := newTestService(t, st)

	form, sess, err := svc.SignUp(context.Background(), map[string]any{
		"name":  "ann",
		"email": nil,
		"otp":   nil,
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if form["name"] != true || form["email"] != nil || form["otp"] != nil {
		t.Errorf("expected {name:true email:nil otp:nil}, got %v", form)
	}
	if otpIssued {
		t.Error("no OTP should be issued before the email is confirmed")
	}
	if sess != nil {
		t.Error("no session should be created")
	}
}

func TestSignUpEmailConfirmedIssuesOTP(t *testing.T) {
	otpIssued := false
	st := &fakeStore{
		upsertOTPFn: func(_ context.Context, email, otpHash string, _ time.Duration) error {
			otpIssued = true
			if email != "ann@example.com" {
				t.Errorf("OTP issued for wrong email %q", email)
			}
			if len(otpHash) != 64 {
				t.Errorf("expected 64-char digest, got %d", len(otpHash))
			}
			return nil
		},
	}
	svc := newTestService(t, st)

	form, sess, err := svc.SignUp(context.Background(), map[string]any{
		"name":  "ann",
		"email": "ann@example.com",
		"otp":   nil,
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if form["name"] != true || form["email"] != true || form["otp"] != nil {
		t.Errorf("expected {name:true email:true otp:nil}, got %v", form)
	}
	if !otpIssued {
		t.Error("expected an OTP to be issued")
	}
	if sess != nil {
		t.Error("no session should be created yet")
	}
}

func TestSignUpEmailTaken(t *testing.T) {
	st := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", Name: "ann", Email: email}, nil
		},
	}
	svc := newTestService(t, st)

	form, _, err := svc.SignUp(context.Background(), map[string]any{
		"name":  "ann",
		"email": "ann@example.com",
		"otp":   nil,
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if form["email"] != "Email already taken." {
		t.Errorf("expected email failure message, got %v", form["email"])
	}
	if form["otp"] != nil {
		t.Errorf("fields after a failure must reset to nil, got %v", form["otp"])
	}
	if !form.Failed() {
		t.Error("form should report failure")
	}
}

func TestSignUpComplete(t *testing.T) {
	st := &fakeStore{
		redeemOTPFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(t, st)

	form, sess, err := svc.SignUp(context.Background(), map[string]any{
		"name":  "ann",
		"email": "ann@example.com",
		"otp":   "042917",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if form["name"] != true || form["email"] != true || form["otp"] != true {
		t.Errorf("expected all fields true, got %v", form)
	}
	if sess == nil {
		t.Fatal("expected a session on completion")
	}
	if sess.UserName != "ann" {
		t.Errorf("expected session for ann, got %s", sess.UserName)
	}

	got, err := svc.sessions.Get(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("created session not retrievable: %v", err)
	}
	if got.UserID != sess.UserID {
		t.Errorf("session user mismatch: %s != %s", got.UserID, sess.UserID)
	}
}

func TestSignUpInvalidOTP(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	form, sess, err := svc.SignUp(context.Background(), map[string]any{
		"name":  "ann",
		"email": "ann@example.com",
		"otp":   "000000",
	})
	if err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	if form["otp"] != "Invalid OTP." {
		t.Errorf("expected invalid OTP message, got %v", form["otp"])
	}
	if sess != nil {
		t.Error("no session should be created on a failed form")
	}
}

func TestSignInUnknownEmail(t *testing.T) {
	svc := newTestService(t, &fakeStore{})

	form, _, err := svc.SignIn(context.Background(), map[string]any{
		"email": "ghost@example.com",
		"otp":   nil,
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if form["email"] != "Email not found." {
		t.Errorf("expected email failure message, got %v", form["email"])
	}
}

func TestSignInComplete(t *testing.T) {
	st := &fakeStore{
		getUserByEmailFn: func(_ context.Context, email string) (store.User, error) {
			return store.User{ID: "user-1", Name: "ann", Email: email}, nil
		},
		redeemOTPFn: func(context.Context, string, string) (bool, error) {
			return true, nil
		},
	}
	svc := newTestService(t, st)

	form, sess, err := svc.SignIn(context.Background(), map[string]any{
		"email": "ann@example.com",
		"otp":   "042917",
	})
	if err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if form["email"] != true || form["otp"] != true {
		t.Errorf("expected all fields true, got %v", form)
	}
	if sess == nil || sess.UserID != "user-1" {
		t.Fatalf("expected session for user-1, got %+v", sess)
	}
}

func TestNotePageRoot(t *testing.T) {
	st := &fakeStore{
		selectNotesByPathFn: func(_ context.Context, path string) ([]store.Note, error) {
			if path != "" {
				t.Errorf("expected root path, got %q", path)
			}
			return []store.Note{
				{ID: noteID, AuthorID: "user-1", Content: "xxx", Path: ""},
			}, nil
		},
		selectUsersByIDsFn: func(_ context.Context, ids []string) ([]store.User, error) {
			return []store.User{{ID: "user-1", Name: "ann"}}, nil
		},
	}
	svc := newTestService(t, st)

	sess := store.Session{UserID: "user-1", UserName: "ann"}
	page, err := svc.NotePage(context.Background(), sess, map[string]any{"id": ""})
	if err != nil {
		t.Fatalf("NotePage failed: %v", err)
	}
	if page.ParentID != nil {
		t.Errorf("expected nil parentId at root, got %v", page.ParentID)
	}
	if len(page.Notes) != 1 || page.Notes[0].ID != noteID {
		t.Errorf("expected one root note, got %+v", page.Notes)
	}
	if page.Notes[0].AuthorName != "ann" {
		t.Errorf("expected author ann, got %s", page.Notes[0].AuthorName)
	}
}

func TestLikeUnknownNote(t *testing.T) {
	svc := newTestService(t, &fakeStore{})
	sess := store.Session{UserID: "user-1"}

	err := svc.Like(context.Background(), sess, map[string]any{"noteId": noteID})
	assertValidationError(t, err, "/noteId")
}

func assertValidationError(t *testing.T, err error, key string) {
	t.Helper()
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	var verr *validate.Error
	if !errors.As(err, &verr) {
		t.Fatalf("expected *validate.Error at %s, got %T: %v", key, err, err)
	}
	if verr.Key != key {
		t.Errorf("expected error at %s, got %s", key, verr.Key)
	}
}
