package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/thv-git-api/internal/api"
	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/gittree"
	"github.com/stacklok/thv-git-api/internal/repository"
	"github.com/stacklok/thv-git-api/internal/repository/mocks"
)

func TestNewServer_Routes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		setupMock  func(*mocks.MockService)
		wantStatus int
	}{
		{
			name:       "health",
			path:       "/health",
			wantStatus: http.StatusOK,
		},
		{
			name: "readiness",
			path: "/readiness",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().CheckReadiness(gomock.Any()).Return(nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "version",
			path:       "/version",
			wantStatus: http.StatusOK,
		},
		{
			name: "list repositories",
			path: "/repo/all",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ListRepositories(gomock.Any()).Return([]repository.Metadata{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "tree by branch",
			path: "/repo/by-branch/demo/feature/x",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().TreeByBranch(gomock.Any(), "demo", "feature/x").Return(&gittree.Tree{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "tree by object",
			path: "/repo/by-hash/demo/abc123",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().TreeByObject(gomock.Any(), "demo", "abc123").Return(&gittree.Tree{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "commit log",
			path: "/repo/commit-log/demo/main",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().CommitLog(gomock.Any(), "demo", "main").Return([]gitlog.Commit{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "object content",
			path: "/object/by-hash/demo/abc123",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ObjectContent(gomock.Any(), "demo", "abc123").Return(&repository.ObjectContent{}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name: "command failure hides stderr",
			path: "/object/by-hash/demo/abc123",
			setupMock: func(m *mocks.MockService) {
				m.EXPECT().ObjectContent(gomock.Any(), "demo", "abc123").Return(nil, &gitcmd.CommandError{
					Args:   []string{"cat-file", "-p", "abc123"},
					Dir:    "/srv/git/demo",
					Stderr: "fatal: Not a valid object name abc123",
					Err:    gitcmd.ErrCommandFailed,
				})
			},
			wantStatus: http.StatusInternalServerError,
		},
		{
			name:       "sign-in not mounted",
			path:       "/user/sign-in",
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "metrics not mounted",
			path:       "/metrics",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockService(ctrl)
			if tt.setupMock != nil {
				tt.setupMock(svc)
			}

			rr := httptest.NewRecorder()
			api.NewServer(svc).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.NotContains(t, rr.Body.String(), "/srv/git")
			assert.NotContains(t, rr.Body.String(), "fatal")
		})
	}
}

func TestNewServer_Options(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	signIn := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("thv_git_up 1\n"))
	})

	var seen []string
	recorder := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := api.NewServer(mocks.NewMockService(ctrl),
		api.WithSignInHandler(signIn),
		api.WithMetricsHandler(metrics),
		api.WithMiddlewares(recorder, api.LoggingMiddleware),
	)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/user/sign-in", nil))
	assert.Equal(t, http.StatusTeapot, rr.Code)

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "thv_git_up 1\n", rr.Body.String())

	rr = httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	assert.Equal(t, []string{"/user/sign-in", "/metrics", "/health"}, seen)
}

func TestCORSMiddleware(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		origins    []string
		origin     string
		wantOrigin string
	}{
		{
			name:       "wildcard",
			origins:    []string{"*"},
			origin:     "https://ui.example.com",
			wantOrigin: "*",
		},
		{
			name:       "listed origin",
			origins:    []string{"https://ui.example.com"},
			origin:     "https://ui.example.com",
			wantOrigin: "https://ui.example.com",
		},
		{
			name:       "unlisted origin",
			origins:    []string{"https://ui.example.com"},
			origin:     "https://evil.example.com",
			wantOrigin: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			server := api.NewServer(mocks.NewMockService(ctrl),
				api.WithMiddlewares(api.CORSMiddleware(tt.origins, time.Hour)))

			req := httptest.NewRequest(http.MethodOptions, "/repo/all", nil)
			req.Header.Set("Origin", tt.origin)
			req.Header.Set("Access-Control-Request-Method", http.MethodGet)

			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, req)

			require.Less(t, rr.Code, http.StatusBadRequest)
			assert.Equal(t, tt.wantOrigin, rr.Header().Get("Access-Control-Allow-Origin"))
			if tt.wantOrigin != "" {
				assert.Equal(t, "3600", rr.Header().Get("Access-Control-Max-Age"))
			}
		})
	}
}
