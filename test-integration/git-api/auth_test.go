package integration

import (
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/thv-git-api/internal/auth"
	"github.com/stacklok/thv-git-api/test-integration/git-api/helpers"
)

var _ = Describe("JWT authentication", Label("auth"), func() {
	const (
		userID  = "0b6a2f4e-3f5d-4c1a-9e7b-2d8c1f0a5b34"
		userKey = "integration-key"
	)

	var (
		tempDir      string
		gitHelper    *helpers.GitTestHelper
		serverHelper *helpers.ServerTestHelper
	)

	BeforeEach(func() {
		tempDir = createTempDir("git-api-auth-test-")
		gitHelper = helpers.NewGitTestHelper(ctx)

		repo := gitHelper.CreateRepository("secured", "")
		gitHelper.CommitFile(repo, "README.md", "# Secured\n", "Initial commit", time.Now().UTC())

		secretFile := filepath.Join(tempDir, "jwt-secret")
		Expect(os.WriteFile(secretFile, []byte("integration-secret-of-at-least-32-bytes\n"), 0600)).To(Succeed())

		configFile := helpers.WriteConfigYAML(tempDir, helpers.ConfigOptions{
			ReposRoot:  gitHelper.RootDir(),
			AuthMode:   "jwt",
			SecretFile: secretFile,
			Users:      map[string]string{userID: userKey},
		})
		serverHelper = helpers.NewServerTestHelper(ctx, configFile)
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
		}
		if gitHelper != nil {
			_ = gitHelper.CleanupRepositories()
		}
		cleanupTempDir(tempDir)
	})

	It("serves public paths without a token", func() {
		Expect(serverHelper.GetJSON("/health", "", nil)).To(Equal(http.StatusOK))
		Expect(serverHelper.GetJSON("/version", "", nil)).To(Equal(http.StatusOK))
	})

	It("rejects repository requests without a valid token", func() {
		Expect(serverHelper.GetJSON("/repo/all", "", nil)).To(Equal(http.StatusUnauthorized))
		Expect(serverHelper.GetJSON("/repo/all", "not-a-token", nil)).To(Equal(http.StatusUnauthorized))
	})

	It("rejects sign-in with an unknown key", func() {
		resp, err := serverHelper.SignIn("wrong-key")
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			_ = resp.Body.Close()
		}()
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
	})

	It("issues a token that grants access to repositories", func() {
		resp, err := serverHelper.SignIn(userKey)
		Expect(err).NotTo(HaveOccurred())
		defer func() {
			_ = resp.Body.Close()
		}()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var signIn auth.SignInResponse
		Expect(json.NewDecoder(resp.Body).Decode(&signIn)).To(Succeed())
		Expect(signIn.StatusCode).To(Equal(http.StatusOK))
		Expect(signIn.Token).NotTo(BeEmpty())

		var list []map[string]any
		Expect(serverHelper.GetJSON("/repo/all", signIn.Token, &list)).To(Equal(http.StatusOK))
		Expect(list).To(HaveLen(1))
		Expect(list[0]["name"]).To(Equal("secured"))
	})
})
