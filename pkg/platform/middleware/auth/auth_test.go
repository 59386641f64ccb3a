package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	id "credlife/pkg/domain"
	"credlife/pkg/requestcontext"
)

// MockTokenValidator is a testify mock for TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(tokenString string) (requestcontext.AuthenticatedActor, error) {
	args := m.Called(tokenString)
	return args.Get(0).(requestcontext.AuthenticatedActor), args.Error(1)
}

// mockHandler captures whether it was called and the context it saw
type mockHandler struct {
	called  bool
	context context.Context
}

func (m *mockHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	m.called = true
	m.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareSuite struct {
	suite.Suite
	validator *MockTokenValidator
	logger    *slog.Logger
	reviewer  requestcontext.AuthenticatedActor
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareSuite))
}

func (s *AuthMiddlewareSuite) SetupTest() {
	s.validator = new(MockTokenValidator)
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.reviewer = requestcontext.AuthenticatedActor{ID: id.ActorID(uuid.New()), Role: id.RoleReviewer}
}

func (s *AuthMiddlewareSuite) request(header string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/credentials/x/history", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	return req
}

func (s *AuthMiddlewareSuite) TestValidTokenStoresActor() {
	s.validator.On("ValidateToken", "good").Return(s.reviewer, nil)
	next := &mockHandler{}
	rec := httptest.NewRecorder()

	RequireAuth(s.validator, s.logger)(next).ServeHTTP(rec, s.request("Bearer good"))

	s.Equal(http.StatusOK, rec.Code)
	s.Require().True(next.called)
	s.Equal(s.reviewer, requestcontext.Actor(next.context))
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareSuite) TestMissingHeaderIsUnauthorized() {
	for _, header := range []string{"", "Basic abc", "Bearer "} {
		next := &mockHandler{}
		rec := httptest.NewRecorder()
		RequireAuth(s.validator, s.logger)(next).ServeHTTP(rec, s.request(header))
		s.Equal(http.StatusUnauthorized, rec.Code, "header %q", header)
		s.False(next.called)
	}
	s.validator.AssertNotCalled(s.T(), "ValidateToken", mock.Anything)
}

func (s *AuthMiddlewareSuite) TestInvalidTokenIsUnauthorized() {
	s.validator.On("ValidateToken", "bad").Return(requestcontext.AuthenticatedActor{}, errors.New("signature mismatch"))
	next := &mockHandler{}
	rec := httptest.NewRecorder()

	RequireAuth(s.validator, s.logger)(next).ServeHTTP(rec, s.request("Bearer bad"))

	s.Equal(http.StatusUnauthorized, rec.Code)
	s.Contains(rec.Body.String(), `"error":"unauthorized"`)
	s.False(next.called)
}

func (s *AuthMiddlewareSuite) TestRequireRole() {
	gate := RequireRole(s.logger, id.RoleReviewer, id.RoleAdmin)

	cases := []struct {
		name   string
		actor  requestcontext.AuthenticatedActor
		status int
	}{
		{"reviewer allowed", s.reviewer, http.StatusOK},
		{"admin allowed", requestcontext.AuthenticatedActor{ID: id.ActorID(uuid.New()), Role: id.RoleAdmin}, http.StatusOK},
		{"owner forbidden", requestcontext.AuthenticatedActor{ID: id.ActorID(uuid.New()), Role: id.RoleOwner}, http.StatusForbidden},
		{"anonymous unauthorized", requestcontext.AuthenticatedActor{}, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			next := &mockHandler{}
			rec := httptest.NewRecorder()
			req := s.request("")
			req = req.WithContext(requestcontext.WithActor(req.Context(), tc.actor))

			gate(next).ServeHTTP(rec, req)
			s.Equal(tc.status, rec.Code)
			s.Equal(tc.status == http.StatusOK, next.called)
		})
	}
}
