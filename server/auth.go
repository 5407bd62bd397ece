package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"TrackHound/core/auth"
	"TrackHound/logger"
)

const adminRole = "admin"

type adminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type tokenRequest struct {
	Key string `json:"key"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// handleAdminToken exchanges the configured admin key for a short-lived JWT.
func (s *Server) handleAdminToken(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminKeyHash == "" || s.cfg.JWTSecret == "" {
		writeError(w, http.StatusServiceUnavailable, "admin surface is not configured")
		return
	}

	var req tokenRequest
	if err := decodeJSON(r, &req); err != nil || req.Key == "" {
		writeError(w, http.StatusBadRequest, "admin key is required")
		return
	}

	if !auth.CheckKey(req.Key, s.cfg.AdminKeyHash) {
		s.log.Warn("admin token refused", logger.String("requestId", RequestID(r.Context())))
		writeError(w, http.StatusUnauthorized, "invalid admin key")
		return
	}

	ttl := s.cfg.JWTTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &adminClaims{
		Role: adminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		s.log.Error("signing admin token failed", logger.ErrorField(err))
		writeError(w, http.StatusInternalServerError, "failed to sign token")
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, ExpiresAt: expiresAt})
}

// adminOnly guards an endpoint behind a bearer token from /api/admin/token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "authorization header is required")
			return
		}
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header format")
			return
		}
		claims, err := s.parseAdminToken(parts[1])
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}
		if claims.Role != adminRole {
			writeError(w, http.StatusForbidden, "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	}
}

func (s *Server) parseAdminToken(tokenString string) (*adminClaims, error) {
	if s.cfg.JWTSecret == "" {
		return nil, errors.New("jwt secret is not configured")
	}
	token, err := jwt.ParseWithClaims(tokenString, &adminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*adminClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
