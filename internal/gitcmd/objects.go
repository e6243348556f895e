package gitcmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/stacklok/thv-git-api/internal/pathguard"
)

// FindPathForObject returns the repository path at which the object id is
// reachable, using "rev-list --objects --all". The id may be abbreviated and
// the first matching line wins. Commits and root trees are listed without a
// path, for them the returned path is empty. ErrNoLastElement is returned when
// no line matches.
func FindPathForObject(ctx context.Context, runner Runner, dir string, id pathguard.ObjectID) (string, error) {
	out, err := runner.Run(ctx, dir, RunOptions{}, "rev-list", "--objects", "--all")
	if err != nil {
		return "", err
	}

	needle := strings.ToLower(id.String())
	for line := range strings.SplitSeq(out, "\n") {
		hash, path, _ := strings.Cut(strings.TrimRight(line, "\r"), " ")
		if !strings.HasPrefix(hash, needle) {
			continue
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: object %s not found", ErrNoLastElement, id)
}
