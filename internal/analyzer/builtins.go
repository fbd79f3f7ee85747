package analyzer

import "github.com/funvibe/inkvm/internal/config"

// DefaultGlobals returns the native names every VM installs.
func DefaultGlobals() map[string]bool {
	globals := make(map[string]bool, len(config.NativeNames))
	for _, name := range config.NativeNames {
		globals[name] = true
	}
	return globals
}
