package cache

import (
	"github.com/stacklok/thv-git-api/internal/pathguard"
)

// RepositoriesKey is the single key of the repository list
const RepositoriesKey = "repositories"

// ObjectKey is the key of an object's content
func ObjectKey(repo pathguard.RepositoryName, id pathguard.ObjectID) string {
	return "object:" + repo.String() + ":" + id.String()
}

// TreeByBranchKey is the key of a branch root listing
func TreeByBranchKey(repo pathguard.RepositoryName, branch pathguard.BranchName) string {
	return "tree:" + repo.String() + ":branch:" + branch.String()
}

// TreeByObjectKey is the key of a tree object listing
func TreeByObjectKey(repo pathguard.RepositoryName, id pathguard.ObjectID) string {
	return "tree:" + repo.String() + ":object:" + id.String()
}

// CommitLogKey is the key of a branch's commit log
func CommitLogKey(repo pathguard.RepositoryName, branch pathguard.BranchName) string {
	return "log:" + repo.String() + ":" + branch.String()
}

// ObjectPathKey is the key of the path an object id is reachable at
func ObjectPathKey(repo pathguard.RepositoryName, id pathguard.ObjectID) string {
	return "path:" + repo.String() + ":" + id.String()
}

// BranchKeysPrefixes returns the prefixes of every key that depends on the
// current position of the repository's branches.
func BranchKeysPrefixes(repo pathguard.RepositoryName) []string {
	return []string{
		"tree:" + repo.String() + ":branch:",
		"log:" + repo.String() + ":",
		"path:" + repo.String() + ":",
	}
}
