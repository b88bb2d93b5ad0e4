package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/order-platform/pkg/apperr"
	"github.com/vasiliy-maslov/order-platform/pkg/auth"
	"github.com/vasiliy-maslov/order-platform/pkg/httpx"
	userHandler "github.com/vasiliy-maslov/order-platform/user-service/internal/handler/http"
	"github.com/vasiliy-maslov/order-platform/user-service/internal/user"
)

type MockUserService struct {
	mock.Mock
}

func (m *MockUserService) Register(ctx context.Context, input user.RegisterInput) (*user.Session, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.Session), args.Error(1)
}

func (m *MockUserService) Authenticate(ctx context.Context, email, password string) (*user.Session, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.Session), args.Error(1)
}

func (m *MockUserService) Verify(ctx context.Context, token string) (*user.User, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*user.User), args.Error(1)
}

func (m *MockUserService) EnsureAdmin(ctx context.Context, email, password string) error {
	args := m.Called(ctx, email, password)
	return args.Error(0)
}

func newRouter(svc user.Service) http.Handler {
	router := chi.NewRouter()
	userHandler.NewAuthHandler(svc).RegisterRoutes(router)
	return router
}

func doJSON(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func sampleSession() *user.Session {
	now := time.Now().UTC().Truncate(time.Second)
	return &user.Session{
		User: &user.User{
			ID:           uuid.Must(uuid.NewV4()),
			Email:        "a@x.com",
			Name:         "Alice",
			Role:         auth.RoleUser,
			PasswordHash: "hashed_password_from_service",
			CreatedAt:    now,
		},
		Token: auth.Token{Value: "signed.jwt.value", IssuedAt: now, ExpiresAt: now.Add(auth.TokenTTL)},
	}
}

func TestAuthHandler_handleRegister_Success(t *testing.T) {
	mockService := new(MockUserService)
	session := sampleSession()

	mockService.On("Register", mock.Anything, user.RegisterInput{Email: "a@x.com", Password: "pw", Name: "Alice"}).
		Return(session, nil).
		Once()

	rr := doJSON(t, newRouter(mockService), "/api/auth/register", userHandler.RegisterRequest{Email: "a@x.com", Password: "pw", Name: "Alice"})
	require.Equal(t, http.StatusCreated, rr.Code)

	var resp httpx.Response[userHandler.SessionResponse]
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, session.User.ID, resp.Data.User.ID)
	assert.Equal(t, auth.RoleUser, resp.Data.User.Role)
	assert.Equal(t, "signed.jwt.value", resp.Data.Token)
	assert.NotContains(t, rr.Body.String(), "hashed_password_from_service")

	mockService.AssertExpectations(t)
}

func TestAuthHandler_handleRegister_Errors(t *testing.T) {
	testCases := []struct {
		name         string
		body         any
		serviceErr   error
		expectedCode int
		expectedKind apperr.Kind
	}{
		{
			name:         "email exists",
			body:         userHandler.RegisterRequest{Email: "a@x.com", Password: "pw", Name: "Alice"},
			serviceErr:   user.ErrEmailExists,
			expectedCode: http.StatusConflict,
			expectedKind: apperr.Conflict,
		},
		{
			name:         "invalid email",
			body:         userHandler.RegisterRequest{Email: "not-an-email", Password: "pw", Name: "Alice"},
			expectedCode: http.StatusBadRequest,
			expectedKind: apperr.InvalidInput,
		},
		{
			name:         "password over 72 characters",
			body:         userHandler.RegisterRequest{Email: "a@x.com", Password: strings.Repeat("p", 73), Name: "Alice"},
			expectedCode: http.StatusBadRequest,
			expectedKind: apperr.InvalidInput,
		},
		{
			name:         "missing name",
			body:         map[string]string{"email": "a@x.com", "password": "pw"},
			expectedCode: http.StatusBadRequest,
			expectedKind: apperr.InvalidInput,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockUserService)
			if tc.serviceErr != nil {
				mockService.On("Register", mock.Anything, mock.AnythingOfType("user.RegisterInput")).
					Return(nil, tc.serviceErr).
					Once()
			}

			rr := doJSON(t, newRouter(mockService), "/api/auth/register", tc.body)
			require.Equal(t, tc.expectedCode, rr.Code)

			var resp httpx.Response[any]
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tc.expectedKind, resp.Error.Kind)

			mockService.AssertExpectations(t)
		})
	}
}

func TestAuthHandler_handleLogin(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		mockService := new(MockUserService)
		mockService.On("Authenticate", mock.Anything, "a@x.com", "pw").Return(sampleSession(), nil).Once()

		rr := doJSON(t, newRouter(mockService), "/api/auth/login", userHandler.LoginRequest{Email: "a@x.com", Password: "pw"})
		require.Equal(t, http.StatusOK, rr.Code)

		var resp httpx.Response[userHandler.SessionResponse]
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "signed.jwt.value", resp.Data.Token)
		mockService.AssertExpectations(t)
	})

	t.Run("invalid credentials", func(t *testing.T) {
		mockService := new(MockUserService)
		mockService.On("Authenticate", mock.Anything, "a@x.com", "bad").Return(nil, user.ErrInvalidCredentials).Once()

		rr := doJSON(t, newRouter(mockService), "/api/auth/login", userHandler.LoginRequest{Email: "a@x.com", Password: "bad"})
		require.Equal(t, http.StatusUnauthorized, rr.Code)

		var resp httpx.Response[any]
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		assert.Equal(t, "invalid credentials", resp.Error.Message)
		mockService.AssertExpectations(t)
	})
}

func TestAuthHandler_handleVerify(t *testing.T) {
	session := sampleSession()

	testCases := []struct {
		name         string
		returnUser   *user.User
		returnErr    error
		expectedCode int
	}{
		{name: "valid", returnUser: session.User, expectedCode: http.StatusOK},
		{name: "invalid token", returnErr: auth.ErrInvalidToken, expectedCode: http.StatusUnauthorized},
		{name: "user gone", returnErr: user.ErrNotFound, expectedCode: http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockService := new(MockUserService)
			if tc.returnUser != nil {
				mockService.On("Verify", mock.Anything, "tok").Return(tc.returnUser, nil).Once()
			} else {
				mockService.On("Verify", mock.Anything, "tok").Return(nil, tc.returnErr).Once()
			}

			rr := doJSON(t, newRouter(mockService), "/api/auth/verify", userHandler.VerifyRequest{Token: "tok"})
			assert.Equal(t, tc.expectedCode, rr.Code)
			mockService.AssertExpectations(t)
		})
	}
}
