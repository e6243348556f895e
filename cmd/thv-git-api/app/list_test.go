package app

import (
	"bytes"
	"encoding/json"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/thv-git-api/internal/gitlog"
	"github.com/stacklok/thv-git-api/internal/repository"
)

func testRepositories() []repository.Metadata {
	return []repository.Metadata{
		{
			Name:        "demo",
			Description: "Demo repository",
			LastCommit: gitlog.Commit{
				Hash:        "a1b2c3",
				Date:        "03/05/2024 15:07",
				Message:     "Add main.go",
				Author:      "Jane Doe",
				AuthorEmail: "jane@example.com",
			},
		},
		{
			Name: "older",
			LastCommit: gitlog.Commit{
				Hash:    "d4e5f6",
				Date:    "03/04/2024 14:07",
				Message: "Initial notes",
				Author:  "John Roe",
			},
		},
	}
}

func TestWriteRepositories_Table(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, writeRepositories(&out, testRepositories(), listFormatTable))

	text := out.String()
	for _, want := range []string{"demo", "a1b2c3", "03/05/2024 15:07", "Add main.go", "Demo repository", "older", "d4e5f6"} {
		assert.Contains(t, text, want)
	}
	assert.Less(t, strings.Index(text, "demo"), strings.Index(text, "older"), "rows keep list order")
}

func TestWriteRepositories_JSON(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	require.NoError(t, writeRepositories(&out, testRepositories(), listFormatJSON))

	var decoded []repository.Metadata
	require.NoError(t, json.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, testRepositories(), decoded)
}

func TestListCommand_InvalidFormat(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "list", "--repos-root", t.TempDir(), "--format", "yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestListCommand_EmptyRoot(t *testing.T) {
	t.Parallel()
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git is not installed")
	}

	out, err := execute(t, "list", "--repos-root", t.TempDir(), "--format", "json")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)
}
