// Package testutil holds the small helpers shared by tests across packages.
package testutil

import (
	"testing"
	"time"
)

// WaitUntil polls cond until it returns true or the timeout passes, failing
// the test on timeout. Worker tests use it instead of fixed sleeps so fast
// machines do not wait out the worst case.
func WaitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
