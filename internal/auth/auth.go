package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/bcrypt"

	"github.com/example/court-autobook/internal/internaltypes"
)

const (
	cookieName = "autobook_session"
	sessionTTL = 14 * 24 * time.Hour
)

// Store guards the control plane with a single operator password and a
// signed, encrypted session cookie. A Store with no password hash lets every
// request through.
type Store struct {
	sc           *securecookie.SecureCookie
	passwordHash string
}

type ctxKey string

const operatorKey ctxKey = "operator"

func NewStore(passwordHash string, hashKey, blockKey []byte) *Store {
	s := &Store{passwordHash: passwordHash}
	if passwordHash != "" {
		s.sc = securecookie.New(hashKey, blockKey)
		s.sc.MaxAge(int(sessionTTL.Seconds()))
	}
	return s
}

// Enabled reports whether a login is required.
func (s *Store) Enabled() bool { return s.passwordHash != "" }

func HashPassword(pw string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	return string(b), err
}

func CheckPassword(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// Authenticate checks the operator password.
func (s *Store) Authenticate(password string) error {
	if !s.Enabled() {
		return nil
	}
	if !CheckPassword(s.passwordHash, password) {
		return internaltypes.ErrUnauthorized
	}
	return nil
}

type Session struct {
	IssuedAt time.Time
}

func (s *Store) SetSession(w http.ResponseWriter, r *http.Request) error {
	if !s.Enabled() {
		return nil
	}
	encoded, err := s.sc.Encode(cookieName, Session{IssuedAt: time.Now()})
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   r.TLS != nil,
		MaxAge:   int(sessionTTL.Seconds()),
	})
	return nil
}

func (s *Store) ClearSession(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     cookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

func (s *Store) GetSession(r *http.Request) (Session, bool) {
	if !s.Enabled() {
		return Session{}, true
	}
	c, err := r.Cookie(cookieName)
	if err != nil {
		return Session{}, false
	}
	var sess Session
	if err := s.sc.Decode(cookieName, c.Value, &sess); err != nil {
		return Session{}, false
	}
	return sess, true
}

// RequireAuth rejects requests without a valid session with a JSON 401.
func (s *Store) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := s.GetSession(r)
		if !ok {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"ok":false,"reason":"` + internaltypes.ErrUnauthorized.Error() + `"}` + "\n"))
			return
		}
		ctx := context.WithValue(r.Context(), operatorKey, sess)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func SessionFromContext(ctx context.Context) (Session, bool) {
	sess, ok := ctx.Value(operatorKey).(Session)
	return sess, ok
}
