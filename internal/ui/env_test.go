package ui

import (
	"os"
	"testing"
)

// unsetenv removes key for the duration of the test. t.Setenv registers the
// restore, so it must run first.
func unsetenv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("unsetenv %s: %v", key, err)
	}
}
