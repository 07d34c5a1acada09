package routes

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Masterminds/semver/v3"
	"github.com/gin-gonic/gin"
	"github.com/lgulliver/quarry/internal/registry"
	"github.com/lgulliver/quarry/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockRegistryService mocks the registry service for testing
type MockRegistryService struct {
	mock.Mock
}

func (m *MockRegistryService) ListIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockRegistryService) Resolve(ctx context.Context, id string, req *semver.Constraints, limit int) ([]types.ModuleVersion, error) {
	args := m.Called(ctx, id, req, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]types.ModuleVersion), args.Error(1)
}

func (m *MockRegistryService) Download(ctx context.Context, id string, version *semver.Version) ([]byte, error) {
	args := m.Called(ctx, id, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func (m *MockRegistryService) Publish(ctx context.Context, id string, version *semver.Version, data []byte, token string) (*types.ModuleVersion, error) {
	args := m.Called(ctx, id, version, data, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ModuleVersion), args.Error(1)
}

func (m *MockRegistryService) Delete(ctx context.Context, id string, version *semver.Version, adminToken string) error {
	args := m.Called(ctx, id, version, adminToken)
	return args.Error(0)
}

func (m *MockRegistryService) AddCredential(ctx context.Context, adminToken, user, token string) (string, error) {
	args := m.Called(ctx, adminToken, user, token)
	return args.String(0), args.Error(1)
}

func (m *MockRegistryService) RemoveCredential(ctx context.Context, adminToken string, token, user *string) error {
	args := m.Called(ctx, adminToken, token, user)
	return args.Error(0)
}

func (m *MockRegistryService) Reconcile(ctx context.Context, adminToken string) (*types.ReconcileReport, error) {
	args := m.Called(ctx, adminToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.ReconcileReport), args.Error(1)
}

func (m *MockRegistryService) AuthorizeAdmin(token string) bool {
	args := m.Called(token)
	return args.Bool(0)
}

func (m *MockRegistryService) AuthorizePublisher(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

func setupMockRouter(service *MockRegistryService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	AdminRoutes(router, service)
	RegistryRoutes(router, service, 0)
	return router
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		hidesDetail    bool
	}{
		{name: "not found", err: fmt.Errorf("%w: pkg@1.0.0", registry.ErrNotFound), expectedStatus: http.StatusNotFound, expectedCode: "not_found"},
		{name: "conflict", err: fmt.Errorf("%w: pkg@1.0.0", registry.ErrConflict), expectedStatus: http.StatusConflict, expectedCode: "conflict"},
		{name: "unauthorized", err: registry.ErrUnauthorized, expectedStatus: http.StatusUnauthorized, expectedCode: "unauthorized"},
		{name: "invalid", err: fmt.Errorf("%w: bad id", registry.ErrInvalid), expectedStatus: http.StatusBadRequest, expectedCode: "invalid"},
		{name: "internal", err: fmt.Errorf("%w: %w", registry.ErrInternal, errors.New("disk on fire")), expectedStatus: http.StatusInternalServerError, expectedCode: "internal", hidesDetail: true},
		{name: "unclassified", err: errors.New("decode failed"), expectedStatus: http.StatusInternalServerError, expectedCode: "internal", hidesDetail: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gin.SetMode(gin.TestMode)
			router := gin.New()
			router.GET("/", func(c *gin.Context) { writeError(c, tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), `"code":"`+tt.expectedCode+`"`)
			if tt.hidesDetail {
				assert.NotContains(t, w.Body.String(), "disk on fire")
				assert.NotContains(t, w.Body.String(), "decode failed")
			}
		})
	}
}

func TestListPackages_Failure(t *testing.T) {
	service := new(MockRegistryService)
	service.On("ListIDs", mock.Anything).Return(nil, fmt.Errorf("%w: db down", registry.ErrInternal))

	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	service.AssertExpectations(t)
}

func TestResolvePackage_Defaults(t *testing.T) {
	service := new(MockRegistryService)
	service.On("Resolve", mock.Anything, "pkg", mock.MatchedBy(func(req *semver.Constraints) bool {
		return req != nil && req.Check(semver.MustParse("0.0.1")) && req.Check(semver.MustParse("99.0.0"))
	}), 1).Return([]types.ModuleVersion{{ID: "pkg", Version: semver.MustParse("1.0.0")}}, nil)

	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pkg", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"pkg","version":"1.0.0"}`, w.Body.String())
	service.AssertExpectations(t)
}

func TestPublishPackage_PassesTokenAndBody(t *testing.T) {
	service := new(MockRegistryService)
	service.On("AuthorizePublisher", mock.Anything, "secret").Return(true, nil)
	service.On("Publish", mock.Anything, "pkg", mock.MatchedBy(func(v *semver.Version) bool {
		return v.String() == "1.2.3"
	}), []byte("payload"), "secret").Return(&types.ModuleVersion{ID: "pkg", Version: semver.MustParse("1.2.3")}, nil)

	req := httptest.NewRequest(http.MethodPost, "/pkg/1.2.3", strings.NewReader("payload"))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"id":"pkg","version":"1.2.3"}`, w.Body.String())
	service.AssertExpectations(t)
}

// failingBody fails the test if the handler reads the request body
type failingBody struct {
	t *testing.T
}

func (b failingBody) Read([]byte) (int, error) {
	b.t.Error("request body was read")
	return 0, io.EOF
}

func TestPublishPackage_RejectsBeforeReadingBody(t *testing.T) {
	service := new(MockRegistryService)
	service.On("AuthorizePublisher", mock.Anything, "stranger").Return(false, nil)

	req := httptest.NewRequest(http.MethodPost, "/pkg/1.0.0", failingBody{t: t})
	req.Header.Set("Authorization", "stranger")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	service.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestPublishPackage_CredentialLookupFails(t *testing.T) {
	service := new(MockRegistryService)
	service.On("AuthorizePublisher", mock.Anything, "secret").Return(false, errors.New("db down"))

	req := httptest.NewRequest(http.MethodPost, "/pkg/1.0.0", failingBody{t: t})
	req.Header.Set("Authorization", "secret")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "db down")
}

func TestDeletePackage_UnparseableVersion(t *testing.T) {
	service := new(MockRegistryService)

	req := httptest.NewRequest(http.MethodDelete, "/pkg/not-a-version", nil)
	req.Header.Set("Authorization", "admin")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	service.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminRoutes_RejectBeforeDecoding(t *testing.T) {
	service := new(MockRegistryService)
	service.On("AuthorizeAdmin", "nope").Return(false)

	req := httptest.NewRequest(http.MethodPost, "/publish_key", strings.NewReader("not json"))
	req.Header.Set("Authorization", "nope")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	service.AssertNotCalled(t, "AddCredential", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestDeleteKey_PassesFields(t *testing.T) {
	service := new(MockRegistryService)
	service.On("AuthorizeAdmin", "admin").Return(true)
	service.On("RemoveCredential", mock.Anything, "admin",
		mock.MatchedBy(func(pw *string) bool { return pw != nil && *pw == "tok" }),
		mock.MatchedBy(func(user *string) bool { return user == nil }),
	).Return(nil)

	req := httptest.NewRequest(http.MethodPost, "/delete_key", strings.NewReader(`{"pw":"tok"}`))
	req.Header.Set("Authorization", "admin")
	w := httptest.NewRecorder()
	setupMockRouter(service).ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	service.AssertExpectations(t)
}
