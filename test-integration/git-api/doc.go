// Package integration provides integration tests for the ToolHive git API server.
// These tests build real bare repositories with the git binary, start the complete
// server and exercise every endpoint over HTTP, including cache invalidation on push.
package integration
