// Package core exposes the supervisor, fabric, router, and bridge as
// the single command surface the embedding desktop shell binds
// against — one method per operation, no transport of its own.
package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/shellforge/shellcore/internal/bridge"
	"github.com/shellforge/shellcore/internal/fabric"
	"github.com/shellforge/shellcore/internal/health"
	"github.com/shellforge/shellcore/internal/ipcrouter"
	"github.com/shellforge/shellcore/internal/registry"
	"github.com/shellforge/shellcore/internal/supervisor"
)

// ErrBridgeUnavailable is returned by the personality-language
// operations when Core was built without a runtime bridge.
var ErrBridgeUnavailable = errors.New("core: personality runtime bridge not configured")

// ErrNoHealthData is returned by GetHealthStatus before a service has
// completed its first probe.
var ErrNoHealthData = errors.New("core: no health data recorded yet")

// Core wires the supervisor, health monitor, IPC router, message
// fabric, and an optional personality-language bridge behind the
// command surface the shell calls into directly, in place of a
// network transport.
type Core struct {
	sup     *supervisor.Supervisor
	monitor *health.Monitor
	router  *ipcrouter.Router
	fabric  *fabric.Fabric
	bridge  *bridge.Bridge
}

// New assembles a Core. bridge may be nil, in which case the
// personality-language operations all fail with ErrBridgeUnavailable.
func New(sup *supervisor.Supervisor, monitor *health.Monitor, router *ipcrouter.Router, msgFabric *fabric.Fabric, br *bridge.Bridge) *Core {
	return &Core{sup: sup, monitor: monitor, router: router, fabric: msgFabric, bridge: br}
}

// SendIPCMessage wraps payload in a router Message with a fresh
// correlation id, forwards it to the named worker, and waits for the
// correlated reply. The payload is sent as-is; it is not framed
// through the message fabric.
func (c *Core) SendIPCMessage(ctx context.Context, service, method string, payload json.RawMessage) ipcrouter.Response {
	msg := ipcrouter.Message{
		ID:      uuid.New(),
		Service: service,
		Method:  method,
		Payload: payload,
	}
	return c.router.Send(ctx, msg)
}

// FrameMessage applies the fabric's inline/shared-buffer framing law
// to an arbitrary payload, independent of any IPC call.
func (c *Core) FrameMessage(sender, recipient, method string, payload []byte, priority fabric.Priority) fabric.Message {
	return c.fabric.CreateMessage(sender, recipient, method, payload, priority)
}

// ResolveMessage reads a framed message's payload back out, following
// a shared-buffer reference if the message carries one.
func (c *Core) ResolveMessage(msg fabric.Message) ([]byte, error) {
	return c.fabric.Resolve(msg)
}

// GetServiceStatus returns a snapshot of one service's lifecycle
// state.
func (c *Core) GetServiceStatus(name string) (registry.ServiceState, error) {
	return c.sup.Get(name)
}

// GetServiceByIdentity resolves a service by the identity assigned at
// registration rather than by name.
func (c *Core) GetServiceByIdentity(id uuid.UUID) (registry.ServiceState, error) {
	return c.sup.Registry().FindByIdentity(id)
}

// StartService starts the named service.
func (c *Core) StartService(ctx context.Context, name string) (uuid.UUID, error) {
	return c.sup.Start(ctx, name)
}

// StopService stops the named service.
func (c *Core) StopService(name string) error {
	return c.sup.Stop(name)
}

// RestartService stops, waits the fixed restart delay, and starts the
// named service again.
func (c *Core) RestartService(ctx context.Context, name string) (uuid.UUID, error) {
	return c.sup.Restart(ctx, name)
}

// GetAllServices returns a snapshot of every registered service.
func (c *Core) GetAllServices() map[string]registry.ServiceState {
	return c.sup.List()
}

// GetHealthStatus returns the most recently recorded health result for
// the service registered under identity, or ErrNoHealthData before its
// first probe completes.
func (c *Core) GetHealthStatus(identity uuid.UUID) (health.Result, error) {
	st, err := c.sup.Registry().FindByIdentity(identity)
	if err != nil {
		return health.Result{}, err
	}
	hist := c.monitor.History(st.Config.Name)
	if len(hist) == 0 {
		return health.Result{}, fmt.Errorf("%w: %s", ErrNoHealthData, st.Config.Name)
	}
	return hist[len(hist)-1], nil
}

// ParsePersonality parses personality-language source through the
// embedded runtime bridge.
func (c *Core) ParsePersonality(content string, filename *string) (bridge.ParseResult, error) {
	if c.bridge == nil {
		return bridge.ParseResult{}, ErrBridgeUnavailable
	}
	return c.bridge.Parse(content, filename)
}

// CompilePersonality compiles a parsed personality to one of the
// supported targets through the embedded runtime bridge.
func (c *Core) CompilePersonality(req bridge.CompileRequest) (bridge.CompileResult, error) {
	if c.bridge == nil {
		return bridge.CompileResult{}, ErrBridgeUnavailable
	}
	return c.bridge.Compile(req)
}

// ValidatePersonality runs the local, no-FFI validation pass; it does
// not require a bridge.
func (c *Core) ValidatePersonality(p bridge.PersonalityData) []string {
	return bridge.Validate(p)
}

// GetParserVersion returns the embedded runtime's opaque parser
// version string.
func (c *Core) GetParserVersion() (string, error) {
	if c.bridge == nil {
		return "", ErrBridgeUnavailable
	}
	return c.bridge.Version()
}
