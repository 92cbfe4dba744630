package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("FABTRACK_TEST_MODE") == "" {
			_ = os.Setenv("FABTRACK_TEST_MODE", "1")
		}
	})
}
