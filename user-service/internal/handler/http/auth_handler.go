package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"

	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
	"github.com/vasiliy-maslov/order-platform/user-service/internal/user"
)

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type VerifyRequest struct {
	Token string `json:"token" validate:"required"`
}

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      auth.Role `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type SessionResponse struct {
	User      UserResponse `json:"user"`
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
}

type AuthHandler struct {
	service user.Service
}

func NewAuthHandler(service user.Service) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/api/auth", func(r chi.Router) {
		r.Post("/register", h.handleRegister)
		r.Post("/login", h.handleLogin)
		r.Post("/verify", h.handleVerify)
	})
}

func (h *AuthHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	session, err := h.service.Register(r.Context(), user.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("handler: failed to register user")
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondData(w, http.StatusCreated, toSessionResponse(session), "User registered successfully")
}

func (h *AuthHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	session, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("handler: login rejected")
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondData(w, http.StatusOK, toSessionResponse(session), "Login successful")
}

func (h *AuthHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req VerifyRequest
	if !httpx.Decode(w, r, &req) {
		return
	}

	u, err := h.service.Verify(r.Context(), req.Token)
	if err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("handler: token verification failed")
		httpx.RespondError(w, err)
		return
	}

	httpx.RespondData(w, http.StatusOK, toUserResponse(u), "")
}

func toUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

func toSessionResponse(s *user.Session) SessionResponse {
	return SessionResponse{
		User:      toUserResponse(s.User),
		Token:     s.Token.Value,
		ExpiresAt: s.Token.ExpiresAt,
	}
}
