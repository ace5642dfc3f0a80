package callback

import (
	"sync"

	"github.com/okpass/mobilecore/internal/common"
)

var holder struct {
	mu sync.Mutex
	s  *Services
}

// Register installs the platform services. The first call wins; later
// calls leave the installed services untouched and return
// common.ErrAlreadyInitialized.
func Register(s Services) error {
	holder.mu.Lock()
	defer holder.mu.Unlock()

	if holder.s != nil {
		return common.ErrAlreadyInitialized
	}
	holder.s = &s
	return nil
}

// Current returns the registered services.
func Current() (*Services, error) {
	holder.mu.Lock()
	defer holder.mu.Unlock()

	if holder.s == nil {
		return nil, common.ErrNotInitialized
	}
	return holder.s, nil
}

// ResetForTest clears the registered services. Test use only.
func ResetForTest() {
	holder.mu.Lock()
	defer holder.mu.Unlock()
	holder.s = nil
}
