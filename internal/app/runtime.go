package app

import (
	"os"
	"strconv"
	"sync/atomic"
)

const testModeEnv = "ECOLIX_TEST_MODE"

// testMode caches ECOLIX_TEST_MODE; nil until first read.
var testMode atomic.Pointer[bool]

// InTestMode reports whether binaries should skip startup side effects such as
// dialing postgres and redis.
func InTestMode() bool {
	if v := testMode.Load(); v != nil {
		return *v
	}
	return RefreshTestMode()
}

// RefreshTestMode re-reads ECOLIX_TEST_MODE and returns the new value.
func RefreshTestMode() bool {
	on, _ := strconv.ParseBool(os.Getenv(testModeEnv))
	testMode.Store(&on)
	return on
}
