package config

import "testing"

// resetGlobal clears the global manager before and after a test.
func resetGlobal(t *testing.T) {
	t.Helper()
	clear := func() {
		globalMu.Lock()
		defer globalMu.Unlock()
		globalManager = nil
	}
	clear()
	t.Cleanup(clear)
}
