// Package filtering decides which repositories below the root are served.
//
// Repositories are matched by name against include and exclude glob patterns.
// Exclude patterns take precedence over include patterns, and a filter with
// no patterns includes every repository.
//
// A repository that is filtered out is neither listed nor browsable: the
// repository service reports it as not found.
package filtering
