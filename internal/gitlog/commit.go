// Package gitlog turns "git log" output into Commit records. Two output
// layouts are understood: a control-character delimited pretty format and
// git's default multi-line block layout.
package gitlog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
)

// ShortHashLength is the number of hash characters kept on a Commit.
const ShortHashLength = 6

var (
	// ErrParse is returned when log output does not have the expected shape
	ErrParse = errors.New("failed to parse git log output")
	// ErrDateParse is returned when a commit date matches none of the known layouts
	ErrDateParse = fmt.Errorf("%w: unrecognized date", ErrParse)
	// ErrAuthorParse is returned when an author line lacks its delimiters
	ErrAuthorParse = fmt.Errorf("%w: malformed author", ErrParse)
	// ErrNoCommits is returned when a log holds no commit at all
	ErrNoCommits = fmt.Errorf("%w: no commits", gitcmd.ErrNoLastElement)
)

// Commit is the summary of one commit as served by the API.
type Commit struct {
	Hash        string `json:"hash"`
	Date        string `json:"date"`
	Message     string `json:"msg"`
	Author      string `json:"author"`
	AuthorEmail string `json:"authorEmail"`

	// CommittedAt is the author date in UTC. Date drops the offset, so
	// ordering uses this instead.
	CommittedAt time.Time `json:"-"`
}

// First returns the first commit, which is the most recent one in git's default order.
func First(commits []Commit) (Commit, error) {
	if len(commits) == 0 {
		return Commit{}, ErrNoCommits
	}
	return commits[0], nil
}

// ParseAuthor splits an author line such as "Author: Jane Doe <jane@example.com>"
// into name and email. The name is taken between ": " and "<", the email
// between "<" and ">".
func ParseAuthor(line string) (name, email string, err error) {
	_, rest, ok := strings.Cut(line, ": ")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrAuthorParse, line)
	}
	name, rest, ok = strings.Cut(rest, "<")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrAuthorParse, line)
	}
	email, _, ok = strings.Cut(rest, ">")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrAuthorParse, line)
	}
	return strings.TrimSpace(name), strings.TrimSpace(email), nil
}

func shortHash(hash string) (string, error) {
	hash = strings.TrimSpace(hash)
	if len(hash) < ShortHashLength {
		return "", fmt.Errorf("%w: commit hash %q is too short", ErrParse, hash)
	}
	return hash[:ShortHashLength], nil
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(line)
}
