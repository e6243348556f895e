package gitlog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
)

const (
	// FormatDelimited selects the control-character delimited layout
	FormatDelimited = "delimited"
	// FormatBlock selects git's default multi-line layout
	FormatBlock = "block"

	recordSeparator = "\x1e"
	fieldSeparator  = "\x1f"
	delimitedFields = 6
)

// Format is one way of asking git for a log and parsing the answer.
type Format interface {
	// Name returns the configuration name of the format.
	Name() string
	// Args returns the "git log" arguments that select the layout.
	Args() []string
	// Parse turns log output into commits, in the order git emitted them.
	Parse(text string) ([]Commit, error)
}

// FormatByName returns the format registered under name. An empty name
// selects the delimited format.
func FormatByName(name string) (Format, error) {
	switch name {
	case "", FormatDelimited:
		return Delimited{}, nil
	case FormatBlock:
		return Block{}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q (supported: %s, %s)", name, FormatDelimited, FormatBlock)
	}
}

// ParseCommitStream parses log output produced with format f.
func ParseCommitStream(text string, f Format) ([]Commit, error) {
	return f.Parse(text)
}

// Delimited parses "--pretty=format:%x1e%H%x1f%an%x1f%ae%x1f%ad%x1f%P%x1f%B"
// output with strict ISO dates.
type Delimited struct{}

// Name implements Format
func (Delimited) Name() string { return FormatDelimited }

// Args implements Format
func (Delimited) Args() []string {
	return []string{
		"--date=iso-strict",
		"--pretty=format:%x1e%H%x1f%an%x1f%ae%x1f%ad%x1f%P%x1f%B",
	}
}

// Parse implements Format. Records are separated by 0x1E and blank records
// are skipped; fields within a record are separated by 0x1F.
func (Delimited) Parse(text string) ([]Commit, error) {
	var commits []Commit
	for record := range strings.SplitSeq(text, recordSeparator) {
		if strings.TrimSpace(record) == "" {
			continue
		}
		fields := strings.SplitN(record, fieldSeparator, delimitedFields)
		if len(fields) < delimitedFields {
			return nil, fmt.Errorf("%w: record has %d fields, want %d", ErrParse, len(fields), delimitedFields)
		}
		hash, err := shortHash(fields[0])
		if err != nil {
			return nil, err
		}
		date, when, err := parseDate(fields[3])
		if err != nil {
			return nil, err
		}
		commits = append(commits, Commit{
			Hash:        hash,
			Author:      strings.TrimSpace(fields[1]),
			AuthorEmail: strings.TrimSpace(fields[2]),
			Date:        date,
			Message:     firstLine(fields[5]),
			CommittedAt: when,
		})
	}
	return commits, nil
}

// Block parses git's default log layout:
//
//	commit <hash>
//	[Merge: <parents>]
//	Author: <name> <<email>>
//	Date:   <date>
//
//	    <subject>
type Block struct{}

// Name implements Format
func (Block) Name() string { return FormatBlock }

// Args implements Format. Layout and date format are pinned so log.date or
// format.pretty in the user's git configuration cannot change them.
func (Block) Args() []string { return []string{"--pretty=medium", "--date=default"} }

// Parse implements Format. The stream is cut into blocks at lines that start
// with "commit ".
func (Block) Parse(text string) ([]Commit, error) {
	var (
		commits []Commit
		block   []string
	)
	flush := func() error {
		if block == nil {
			return nil
		}
		c, err := parseBlock(block)
		if err != nil {
			return err
		}
		commits = append(commits, c)
		return nil
	}

	for line := range strings.SplitSeq(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.HasPrefix(line, "commit ") {
			if err := flush(); err != nil {
				return nil, err
			}
			block = []string{line}
			continue
		}
		if block != nil {
			block = append(block, line)
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return commits, nil
}

func parseBlock(block []string) (Commit, error) {
	if len(block) < 3 {
		return Commit{}, fmt.Errorf("%w: commit block has %d lines", ErrParse, len(block))
	}

	fields := strings.Fields(block[0])
	if len(fields) < 2 {
		return Commit{}, fmt.Errorf("%w: malformed commit line %q", ErrParse, block[0])
	}
	hash, err := shortHash(fields[1])
	if err != nil {
		return Commit{}, err
	}

	authorLine := block[1]
	if !strings.HasPrefix(authorLine, "Author:") {
		authorLine = block[2]
	}
	author, email, err := ParseAuthor(authorLine)
	if err != nil {
		return Commit{}, err
	}

	dateIdx, msgIdx := 2, 4
	if !strings.Contains(block[2], "Date:") {
		dateIdx, msgIdx = 3, 5
	}
	if len(block) <= dateIdx {
		return Commit{}, fmt.Errorf("%w: commit block has no date line", ErrParse)
	}
	dateValue := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(block[dateIdx]), "Date:"))
	date, when, err := parseDate(dateValue)
	if err != nil {
		return Commit{}, err
	}

	var msg string
	if len(block) > msgIdx {
		msg = strings.TrimSpace(block[msgIdx])
	}

	return Commit{
		Hash:        hash,
		Author:      author,
		AuthorEmail: email,
		Date:        date,
		Message:     msg,
		CommittedAt: when,
	}, nil
}

// Query describes one "git log" invocation.
type Query struct {
	// Rev is the branch or revision to start from. Empty means HEAD.
	Rev string
	// Path limits the log to commits touching this path.
	Path string
	// MaxCount limits the number of commits. Zero means no limit.
	MaxCount int
}

// Args returns the full argument vector for the query in format f:
// log --no-merges [-n <count>] [<rev>] <format args> [-- <path>]
func (q Query) Args(f Format) []string {
	args := []string{"log", "--no-merges"}
	if q.MaxCount > 0 {
		args = append(args, "-n", strconv.Itoa(q.MaxCount))
	}
	if q.Rev != "" {
		args = append(args, q.Rev)
	}
	args = append(args, f.Args()...)
	if q.Path != "" {
		args = append(args, "--", q.Path)
	}
	return args
}

// Fetch runs the query in dir and parses the output.
func Fetch(ctx context.Context, runner gitcmd.Runner, dir string, f Format, q Query) ([]Commit, error) {
	out, err := runner.Run(ctx, dir, gitcmd.RunOptions{}, q.Args(f)...)
	if err != nil {
		return nil, err
	}
	return ParseCommitStream(out, f)
}
