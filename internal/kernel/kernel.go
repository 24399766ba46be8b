// Package kernel provides OS abstraction for the supervisor.
package kernel

import (
	"github.com/shellforge/shellcore/internal/kernel/adapters"
	"github.com/shellforge/shellcore/internal/kernel/ports"
)

// Kernel provides access to the OS abstraction interfaces the supervisor
// needs: signal handling and process group control.
type Kernel struct {
	// Signals handles signal notification and forwarding operations.
	Signals ports.SignalManager
	// Process handles process group operations.
	Process ports.ProcessControl
}

// New creates a new Kernel with platform-specific implementations.
func New() *Kernel {
	return &Kernel{
		Signals: adapters.NewUnixSignalManager(),
		Process: adapters.NewProcessControl(),
	}
}

// Default is the default kernel instance.
var Default *Kernel = New()
