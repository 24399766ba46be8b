// Package logging provides internal tests for capture.go.
// It tests internal implementation details using white-box testing.
package logging

// Note: Internal tests for capture.go are minimal as most functionality
// is tested through the external tests. The nopCloser is tested in
// nopcloser_internal_test.go.
