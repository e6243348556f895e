package filtering

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gobwas/glob"
)

// NameFilter handles name-based filtering using glob patterns
type NameFilter struct {
	include []pattern
	exclude []pattern
}

type pattern struct {
	source string
	glob   glob.Glob
}

// NewNameFilter compiles the include and exclude patterns. It fails on the
// first invalid pattern.
func NewNameFilter(include, exclude []string) (*NameFilter, error) {
	inc, err := compileAll(include)
	if err != nil {
		return nil, fmt.Errorf("include: %w", err)
	}
	exc, err := compileAll(exclude)
	if err != nil {
		return nil, fmt.Errorf("exclude: %w", err)
	}
	return &NameFilter{include: inc, exclude: exc}, nil
}

// CompilePattern validates and compiles a single glob pattern. "*" matches
// across every character, so "team-*" matches "team-a.mirror".
func CompilePattern(p string) (glob.Glob, error) {
	if p == "" {
		return nil, errors.New("pattern cannot be empty")
	}
	// filepath.Match catches malformed character classes first
	if _, err := filepath.Match(p, "test"); err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", p, err)
	}
	compiled, err := glob.Compile(p)
	if err != nil {
		return nil, fmt.Errorf("invalid glob pattern '%s': %w", p, err)
	}
	return compiled, nil
}

func compileAll(patterns []string) ([]pattern, error) {
	out := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		compiled, err := CompilePattern(p)
		if err != nil {
			return nil, err
		}
		out = append(out, pattern{source: p, glob: compiled})
	}
	return out, nil
}

// ShouldInclude determines if a repository name should be served based on
// include/exclude patterns. A nil filter includes everything.
//
// Logic:
// 1. If name matches any exclude pattern -> exclude (exclude takes precedence)
// 2. If include patterns are specified and name matches any of them -> include
// 3. If include patterns are specified and name matches none -> exclude
// 4. Otherwise -> include
func (f *NameFilter) ShouldInclude(name string) (bool, string) {
	if f == nil {
		return true, "no name filters specified"
	}

	for _, p := range f.exclude {
		if p.glob.Match(name) {
			return false, fmt.Sprintf("excluded by pattern '%s'", p.source)
		}
	}

	if len(f.include) > 0 {
		for _, p := range f.include {
			if p.glob.Match(name) {
				return true, fmt.Sprintf("included by pattern '%s'", p.source)
			}
		}
		return false, "no match found in include patterns"
	}

	if len(f.exclude) > 0 {
		return true, "no match in exclude patterns"
	}
	return true, "no name filters specified"
}

// Empty reports whether the filter has no patterns at all
func (f *NameFilter) Empty() bool {
	return f == nil || (len(f.include) == 0 && len(f.exclude) == 0)
}
