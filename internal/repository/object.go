package repository

import (
	"context"
	"path"
	"strings"

	"github.com/stacklok/thv-git-api/internal/gitcmd"
	"github.com/stacklok/thv-git-api/internal/pathguard"
)

// DiffExtension is reported for objects whose name has no extension, such as commits
const DiffExtension = "diff"

var imageExtensions = map[string]struct{}{
	"png":  {},
	"jpg":  {},
	"jpeg": {},
	"gif":  {},
	"webp": {},
	"ico":  {},
	"bmp":  {},
}

// Extension returns the extension of the last element of name, without the
// dot, or DiffExtension when there is none.
func Extension(name string) string {
	base := path.Base(name)
	i := strings.LastIndexByte(base, '.')
	if i < 0 || i == len(base)-1 {
		return DiffExtension
	}
	return base[i+1:]
}

// IsImageExtension reports whether objects with extension ext are served base64 encoded
func IsImageExtension(ext string) bool {
	_, ok := imageExtensions[strings.ToLower(ext)]
	return ok
}

// readObject reads an object's content and size. The name is the path the
// object is reachable at, or the id itself for commits and root trees.
func (s *gitService) readObject(ctx context.Context, dir string, id pathguard.ObjectID) (*ObjectContent, error) {
	name, err := s.findPath(ctx, dir, id)
	if err != nil {
		return nil, err
	}
	if name == "" {
		name = id.String()
	}
	ext := Extension(name)

	content, err := s.runner.Run(ctx, dir, gitcmd.RunOptions{Binary: IsImageExtension(ext)}, "show", "-p", id.String())
	if err != nil {
		return nil, err
	}

	size, err := s.runner.Run(ctx, dir, gitcmd.RunOptions{}, "cat-file", "-s", id.String())
	if err != nil {
		return nil, err
	}

	return &ObjectContent{
		Name:    name,
		Content: content,
		Size:    strings.TrimSpace(size),
		Ext:     ext,
	}, nil
}
