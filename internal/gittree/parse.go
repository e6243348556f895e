// Package gittree parses "git ls-tree" listings and enriches every entry with
// the last commit that touched it.
package gittree

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stacklok/thv-git-api/internal/gitlog"
)

// Object types reported by ls-tree.
const (
	TypeTree   = "tree"
	TypeBlob   = "blob"
	TypeCommit = "commit"
)

// ReadmeName is the file surfaced as Tree.ReadMe for branch listings
const ReadmeName = "README.md"

// ErrParse is returned for a listing line that is not "<mode> <type> <hash>\t<name>"
var ErrParse = errors.New("failed to parse tree listing line")

// RawEntry is one parsed ls-tree line
type RawEntry struct {
	Mode string
	Type string
	Hash string
	Name string
}

// TreeEntry is a listing entry with its last commit
type TreeEntry struct {
	Name       string        `json:"name"`
	FileType   string        `json:"fileType"`
	ObjectHash string        `json:"objectHash"`
	LastCommit gitlog.Commit `json:"lastCommit"`
}

// Tree is the browsable content of one directory
type Tree struct {
	Objects []TreeEntry `json:"objects"`
	ReadMe  *string     `json:"readMe"`
}

// ParseLine parses a single "<mode> <type> <hash>\t<name>" line. Names that
// git quoted because of unusual characters are unquoted.
func ParseLine(line string) (RawEntry, error) {
	meta, name, ok := strings.Cut(line, "\t")
	if !ok {
		return RawEntry{}, fmt.Errorf("%w: missing tab in %q", ErrParse, line)
	}
	fields := strings.Fields(meta)
	if len(fields) != 3 {
		return RawEntry{}, fmt.Errorf("%w: expected mode, type and hash in %q", ErrParse, line)
	}
	if name == "" {
		return RawEntry{}, fmt.Errorf("%w: empty name in %q", ErrParse, line)
	}
	if strings.HasPrefix(name, `"`) {
		if unquoted, err := strconv.Unquote(name); err == nil {
			name = unquoted
		}
	}
	return RawEntry{
		Mode: fields[0],
		Type: fields[1],
		Hash: fields[2],
		Name: name,
	}, nil
}

// ParseListing parses every non-empty line of an ls-tree listing. Lines that
// fail to parse are skipped and their errors returned alongside the entries.
func ParseListing(text string) ([]RawEntry, []error) {
	var (
		entries []RawEntry
		errs    []error
	)
	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		entry, err := ParseLine(line)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, errs
}
