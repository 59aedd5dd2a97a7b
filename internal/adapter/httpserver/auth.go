package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ezsentencefix/ez-sentence-fix/internal/domain"
)

type userIDKey struct{}

// UserIDFrom returns the authenticated user id stored by RequireAuth, or
// an empty string for unauthenticated requests.
func UserIDFrom(ctx context.Context) string {
	if v := ctx.Value(userIDKey{}); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

func (s *Server) issueToken(userID string) (string, time.Time, error) {
	now := time.Now().UTC()
	exp := now.Add(s.Cfg.JWTTTL)
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(s.Cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("op=auth.sign_token: %w", err)
	}
	return signed, exp, nil
}

func (s *Server) parseToken(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.Cfg.JWTSecret), nil
	})
	if err != nil || !tok.Valid || claims.Subject == "" {
		return "", fmt.Errorf("op=auth.parse_token: %w", domain.ErrUnauthorized)
	}
	return claims.Subject, nil
}

// RequireAuth rejects requests without a valid bearer token and stores the
// authenticated user id in the request context.
func (s *Server) RequireAuth() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := r.Header.Get("Authorization")
			if !strings.HasPrefix(h, "Bearer ") {
				writeError(w, r, fmt.Errorf("%w: missing bearer token", domain.ErrUnauthorized), nil)
				return
			}
			userID, err := s.parseToken(strings.TrimPrefix(h, "Bearer "))
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			ctx := context.WithValue(r.Context(), userIDKey{}, userID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

type registerRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=128"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type authResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      userView  `json:"user"`
}

type userView struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// RegisterHandler creates an account and returns a fresh token.
func (s *Server) RegisterHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req registerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		u, err := s.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		token, exp, err := s.issueToken(u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		LoggerFrom(r).Info("user registered", slog.String("user_id", u.ID))
		writeJSON(w, http.StatusCreated, authResponse{Token: token, ExpiresAt: exp, User: userView{ID: u.ID, Name: u.Name, Email: u.Email}})
	}
}

// LoginHandler exchanges credentials for a token.
func (s *Server) LoginHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, r, fmt.Errorf("%w: invalid json body", domain.ErrInvalidArgument), nil)
			return
		}
		if err := getValidator().Struct(req); err != nil {
			writeError(w, r, fmt.Errorf("%w: %v", domain.ErrInvalidArgument, err), nil)
			return
		}
		u, err := s.Auth.Login(r.Context(), req.Email, req.Password)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		token, exp, err := s.issueToken(u.ID)
		if err != nil {
			writeError(w, r, err, nil)
			return
		}
		writeJSON(w, http.StatusOK, authResponse{Token: token, ExpiresAt: exp, User: userView{ID: u.ID, Name: u.Name, Email: u.Email}})
	}
}
