package config

import "sync"

var (
	instanceMu sync.Mutex
	instance   ConfigManager
)

// GetInstance returns the process-wide ConfigManager, creating it on first
// use. Packages that only need ambient configuration (log, tracing, plugin)
// call this instead of threading a ConfigManager through every constructor.
func GetInstance() ConfigManager {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = NewConfigManager()
	}
	return instance
}

// SetInstanceForTesting overrides the singleton instance, letting tests
// substitute a mock ConfigManager without touching the filesystem.
func SetInstanceForTesting(cm ConfigManager) {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = cm
}

// ResetInstance clears the singleton so the next GetInstance call builds a
// fresh ConfigManager. Intended for test teardown.
func ResetInstance() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	instance = nil
}
