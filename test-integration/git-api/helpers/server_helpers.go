package helpers

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/onsi/gomega"

	gitapi "github.com/stacklok/thv-git-api/internal/app"
	"github.com/stacklok/thv-git-api/internal/config"
)

// ServerTestHelper manages the git API server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	address    string
	baseURL    string
	httpClient *http.Client
	app        *gitapi.GitAPIApp
}

// NewServerTestHelper creates a new server test helper listening on a free local port
func NewServerTestHelper(ctx context.Context, configPath string) *ServerTestHelper {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	address := listener.Addr().String()
	gomega.Expect(listener.Close()).To(gomega.Succeed())

	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		address:    address,
		baseURL:    "http://" + address,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// StartServer starts the git API server programmatically
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := gitapi.NewGitAPIApp(s.ctx,
		gitapi.WithConfig(cfg),
		gitapi.WithAddress(s.address),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the git API server
func (s *ServerTestHelper) StopServer() error {
	if s.app != nil {
		return s.app.Stop(5 * time.Second)
	}
	return nil
}

// WaitForServerReady waits for the server to be ready to accept requests
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Get makes a GET request to path, with a bearer token when token is not empty
func (s *ServerTestHelper) Get(path, token string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return s.httpClient.Do(req)
}

// GetJSON makes a GET request to path and decodes a 200 response into out.
// It returns the response status code.
func (s *ServerTestHelper) GetJSON(path, token string, out any) int {
	resp, err := s.Get(path, token)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode == http.StatusOK && out != nil {
		gomega.Expect(json.NewDecoder(resp.Body).Decode(out)).To(gomega.Succeed())
	}
	return resp.StatusCode
}

// SignIn makes a GET request to /user/sign-in with key as the basic auth password
func (s *ServerTestHelper) SignIn(key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, s.baseURL+"/user/sign-in", nil)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth("", key)
	return s.httpClient.Do(req)
}

// ConfigOptions holds the settings written by WriteConfigYAML
type ConfigOptions struct {
	ReposRoot      string
	LogFormat      string
	BranchTreesTTL string
	AuthMode       string
	SecretFile     string
	// Users maps user ids to keys
	Users map[string]string
}

// WriteConfigYAML writes a YAML configuration file for testing
func WriteConfigYAML(dir string, opts ConfigOptions) string {
	var b strings.Builder
	fmt.Fprintf(&b, "reposRoot: %s\n", opts.ReposRoot)

	if opts.LogFormat != "" {
		fmt.Fprintf(&b, "git:\n  logFormat: %s\n", opts.LogFormat)
	}

	b.WriteString("cache:\n  refreshInterval: \"0\"\n  watch: true\n")
	if opts.BranchTreesTTL != "" {
		fmt.Fprintf(&b, "  branchTrees:\n    ttl: %s\n", opts.BranchTreesTTL)
	}

	if opts.AuthMode != "" {
		fmt.Fprintf(&b, "auth:\n  mode: %s\n", opts.AuthMode)
		if opts.SecretFile != "" {
			fmt.Fprintf(&b, "  secretFile: %s\n", opts.SecretFile)
		}
		if len(opts.Users) > 0 {
			b.WriteString("  users:\n")
			for id, key := range opts.Users {
				fmt.Fprintf(&b, "    - id: %s\n      key: %s\n", id, key)
			}
		}
	}

	path := filepath.Join(dir, "config.yaml")
	err := os.WriteFile(path, []byte(b.String()), 0600)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	return path
}
