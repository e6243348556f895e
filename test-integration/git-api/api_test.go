package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/gittree"
	"github.com/stacklok/thv-git-api/internal/repository"
	"github.com/stacklok/thv-git-api/test-integration/git-api/helpers"
)

func entryNamed(tree gittree.Tree, name string) *gittree.TreeEntry {
	for i := range tree.Objects {
		if tree.Objects[i].Name == name {
			return &tree.Objects[i]
		}
	}
	return nil
}

var _ = Describe("Repository API", Label("api"), func() {
	base := time.Date(2024, time.March, 5, 14, 7, 0, 0, time.UTC)

	for _, logFormat := range []string{gitlog.FormatDelimited, gitlog.FormatBlock} {
		Context("with the "+logFormat+" log format", func() {
			var (
				tempDir      string
				gitHelper    *helpers.GitTestHelper
				demo         *helpers.GitTestRepository
				serverHelper *helpers.ServerTestHelper
			)

			BeforeEach(func() {
				tempDir = createTempDir("git-api-test-")
				gitHelper = helpers.NewGitTestHelper(ctx)

				older := gitHelper.CreateRepository("older", "")
				gitHelper.CommitFile(older, "notes.txt", "old\n", "Initial notes", base.Add(-24*time.Hour))

				demo = gitHelper.CreateRepository("demo", "Demo repository")
				gitHelper.CommitFile(demo, "README.md", "# Demo\n", "Add README", base)
				gitHelper.CommitFile(demo, "src/main.go", "package main\n", "Add main.go", base.Add(time.Hour))

				gitHelper.CreateBranch(demo, "feature/login")
				gitHelper.CommitFile(demo, "docs/guide.md", "guide\n", "Add guide", base.Add(2*time.Hour))
				gitHelper.SwitchBranch(demo, "main")

				configFile := helpers.WriteConfigYAML(tempDir, helpers.ConfigOptions{
					ReposRoot:      gitHelper.RootDir(),
					LogFormat:      logFormat,
					BranchTreesTTL: "5s",
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

			It("lists repositories with the most recently changed first", func() {
				var list []repository.Metadata
				Expect(serverHelper.GetJSON("/repo/all", "", &list)).To(Equal(http.StatusOK))

				Expect(list).To(HaveLen(2))
				Expect(list[0].Name).To(Equal("demo"))
				Expect(list[0].Description).To(Equal("Demo repository"))
				Expect(list[0].LastCommit.Message).To(Equal("Add main.go"))
				Expect(list[0].LastCommit.Date).To(Equal("03/05/2024 15:07"))
				Expect(list[0].LastCommit.Author).To(Equal("Test User"))
				Expect(list[0].LastCommit.AuthorEmail).To(Equal("test@example.com"))
				Expect(list[0].LastCommit.Hash).To(HaveLen(gitlog.ShortHashLength))

				Expect(list[1].Name).To(Equal("older"))
				Expect(list[1].Description).To(BeEmpty())
			})

			It("returns the root tree of a branch with its README", func() {
				var tree gittree.Tree
				Expect(serverHelper.GetJSON("/repo/by-branch/demo/main", "", &tree)).To(Equal(http.StatusOK))

				Expect(tree.ReadMe).NotTo(BeNil())
				Expect(*tree.ReadMe).To(Equal("# Demo\n"))

				readme := entryNamed(tree, "README.md")
				Expect(readme).NotTo(BeNil())
				Expect(readme.FileType).To(Equal(gittree.TypeBlob))
				Expect(readme.LastCommit.Message).To(Equal("Add README"))

				src := entryNamed(tree, "src")
				Expect(src).NotTo(BeNil())
				Expect(src.FileType).To(Equal(gittree.TypeTree))
				Expect(src.ObjectHash).To(Equal(gitHelper.ObjectHash(demo, "main", "src")))
			})

			It("serves branches whose name contains a slash", func() {
				var tree gittree.Tree
				Expect(serverHelper.GetJSON("/repo/by-branch/demo/feature/login", "", &tree)).To(Equal(http.StatusOK))
				Expect(entryNamed(tree, "docs")).NotTo(BeNil())

				var commits []gitlog.Commit
				Expect(serverHelper.GetJSON("/repo/commit-log/demo/feature/login", "", &commits)).To(Equal(http.StatusOK))
				Expect(commits).To(HaveLen(3))
				Expect(commits[0].Message).To(Equal("Add guide"))
			})

			It("lists a nested tree by object id", func() {
				srcHash := gitHelper.ObjectHash(demo, "main", "src")

				var tree gittree.Tree
				Expect(serverHelper.GetJSON("/repo/by-hash/demo/"+srcHash, "", &tree)).To(Equal(http.StatusOK))

				Expect(tree.ReadMe).To(BeNil())
				Expect(tree.Objects).To(HaveLen(1))
				Expect(tree.Objects[0].Name).To(Equal("main.go"))
				Expect(tree.Objects[0].LastCommit.Message).To(Equal("Add main.go"))
			})

			It("returns object content", func() {
				blobHash := gitHelper.ObjectHash(demo, "main", "src/main.go")

				var object repository.ObjectContent
				Expect(serverHelper.GetJSON("/object/by-hash/demo/"+blobHash[:12], "", &object)).To(Equal(http.StatusOK))

				Expect(object.Name).To(Equal("src/main.go"))
				Expect(object.Ext).To(Equal("go"))
				Expect(object.Content).To(Equal("package main\n"))
				Expect(object.Size).To(Equal("13"))
			})

			It("returns the commit log of a branch, most recent first", func() {
				var commits []gitlog.Commit
				Expect(serverHelper.GetJSON("/repo/commit-log/demo/main", "", &commits)).To(Equal(http.StatusOK))

				Expect(commits).To(HaveLen(2))
				Expect(commits[0].Message).To(Equal("Add main.go"))
				Expect(commits[1].Message).To(Equal("Add README"))
				Expect(commits[1].Date).To(Equal("03/05/2024 14:07"))
			})

			It("rejects invalid input and unknown repositories", func() {
				Expect(serverHelper.GetJSON("/repo/by-branch/demo/-evil", "", nil)).To(Equal(http.StatusBadRequest))
				Expect(serverHelper.GetJSON("/repo/by-branch/demo/a..b", "", nil)).To(Equal(http.StatusBadRequest))
				Expect(serverHelper.GetJSON("/object/by-hash/demo/not-hex", "", nil)).To(Equal(http.StatusBadRequest))
				Expect(serverHelper.GetJSON("/repo/by-branch/ghost/main", "", nil)).To(Equal(http.StatusNotFound))
			})

			It("serves new commits after a push", func() {
				var tree gittree.Tree
				Expect(serverHelper.GetJSON("/repo/by-branch/demo/main", "", &tree)).To(Equal(http.StatusOK))
				Expect(*tree.ReadMe).To(Equal("# Demo\n"))

				gitHelper.CommitFile(demo, "README.md", "# Demo v2\n", "Update README", base.Add(3*time.Hour))

				Eventually(func() string {
					var updated gittree.Tree
					if serverHelper.GetJSON("/repo/by-branch/demo/main", "", &updated) != http.StatusOK || updated.ReadMe == nil {
						return ""
					}
					return *updated.ReadMe
				}, 15*time.Second, 200*time.Millisecond).Should(Equal("# Demo v2\n"))
			})
		})
	}
})
