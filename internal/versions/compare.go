package versions

import (
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// MinimumGitVersion is the oldest git release whose ls-tree, log and
// cat-file output the parsers understand.
const MinimumGitVersion = "2.20.0"

// ErrUnsupportedGit is returned when the installed git is older than MinimumGitVersion
var ErrUnsupportedGit = errors.New("unsupported git version")

// CheckGitVersion fails when version, as reported by "git --version" once
// vendor suffixes are dropped, is older than MinimumGitVersion.
func CheckGitVersion(version string) error {
	v, err := semver.NewVersion(version)
	if err != nil {
		return fmt.Errorf("%w: cannot parse %q: %w", ErrUnsupportedGit, version, err)
	}
	if v.LessThan(semver.MustParse(MinimumGitVersion)) {
		return fmt.Errorf("%w: found %s, need %s or newer", ErrUnsupportedGit, v, MinimumGitVersion)
	}
	return nil
}
