// Package refresh keeps the cached repository data fresh in the background.
//
// Two mechanisms are provided:
//
//   - Coordinator rescans the repository root on an interval with jitter and
//     replaces the cached repository list. Failed scans are retried with
//     exponential backoff.
//   - Watcher watches the repository root and the refs of every repository
//     with fsnotify. A push that moves a branch invalidates the branch keyed
//     caches of that repository and the repository list.
//
// Both follow the same lifecycle:
//
//	coord := refresh.NewCoordinator(svc, refresh.WithInterval(5*time.Minute))
//	go coord.Start(ctx)
//	// ... serve ...
//	coord.Stop()
package refresh
