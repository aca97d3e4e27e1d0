// Package guard switches the process into test mode when imported, so command
// entry points exercised from tests never open real connections.
package guard

import (
	"os"
	"sync"
)

const testModeEnv = "EMPORIA_TEST_MODE"

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv(testModeEnv) == "" {
			_ = os.Setenv(testModeEnv, "1")
		}
	})
}
