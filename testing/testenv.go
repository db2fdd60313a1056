// Package testing prepares the process environment for tests. Importing it for
// side effects marks the process as running under test before any binary or
// config code reads the environment.
package testing

import "os"

var defaults = map[string]string{
	"ECOLIX_TEST_MODE": "1",
	"CSRF_SECRET":      "test-csrf-secret",
	"JWT_SECRET":       "test-secret-test-secret-test-secret-0",
}

func init() {
	for key, value := range defaults {
		if key == "ECOLIX_TEST_MODE" || os.Getenv(key) == "" {
			_ = os.Setenv(key, value)
		}
	}
}
