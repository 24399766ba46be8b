package bridge

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/wasmerio/wasmer-go/wasmer"
)

// The WASM module is instantiated at most once process-wide: every
// Bridge value shares this handle, mirroring a long-lived foreign
// runtime that multiple call sites initialize against but that only
// truly starts up on the first caller.
var (
	globalOnce     sync.Once
	globalLoadErr  error
	globalInstance *wasmer.Instance
	globalCallMu   sync.Mutex
)

// Bridge is a per-caller handle onto the shared foreign runtime: its
// own initialized flag tracks whether this handle has called
// Initialize, independent of whether the runtime itself already
// started via another handle.
type Bridge struct {
	wasmBytes []byte
	log       zerolog.Logger

	mu          sync.Mutex
	initialized bool
}

// New creates a Bridge around the given WASM module bytes. The module
// is not loaded until the first Initialize call across all Bridge
// values.
func New(wasmBytes []byte, log zerolog.Logger) *Bridge {
	return &Bridge{wasmBytes: wasmBytes, log: log}
}

// Initialize starts the foreign runtime on the very first call across
// every Bridge sharing this process, and is a no-op success on every
// call thereafter, including on other Bridge values.
func (b *Bridge) Initialize() error {
	globalOnce.Do(func() {
		globalInstance, globalLoadErr = b.load()
	})
	if globalLoadErr != nil {
		return fmt.Errorf("bridge: initialize: %w", globalLoadErr)
	}

	b.mu.Lock()
	b.initialized = true
	b.mu.Unlock()
	return nil
}

func (b *Bridge) load() (*wasmer.Instance, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)

	module, err := wasmer.NewModule(store, b.wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("compile module: %w", err)
	}

	instance, err := wasmer.NewInstance(module, wasmer.NewImportObject())
	if err != nil {
		return nil, fmt.Errorf("instantiate module: %w", err)
	}
	return instance, nil
}

// IsInitialized reports this handle's local flag.
func (b *Bridge) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Cleanup clears this handle's local flag; the shared foreign runtime
// is not torn down.
func (b *Bridge) Cleanup() {
	b.mu.Lock()
	b.initialized = false
	b.mu.Unlock()
}

// invoke marshals input to JSON, calls the named export under the
// process-wide call mutex, and returns the raw result bytes. Every
// foreign call funnels through here so parse/compile/version are
// strictly serialized.
func (b *Bridge) invoke(export string, input any) ([]byte, error) {
	if !b.IsInitialized() {
		return nil, ErrRuntimeNotInitialized
	}

	payload, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	globalCallMu.Lock()
	defer globalCallMu.Unlock()

	fn, err := globalInstance.Exports.GetFunction(export)
	if err != nil {
		return nil, fmt.Errorf("%w: export %q not found: %v", ErrExecutionFailed, export, err)
	}

	result, err := fn(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExecutionFailed, err)
	}

	out, ok := result.([]byte)
	if !ok {
		return nil, fmt.Errorf("%w: export %q returned non-bytes result", ErrMarshalFailed, export)
	}
	return out, nil
}

// Parse runs the personality DSL parser and returns its full success
// or failure record.
func (b *Bridge) Parse(content string, filename *string) (ParseResult, error) {
	name := "<string>"
	if filename != nil {
		name = *filename
	}

	raw, err := b.invoke("parse", struct {
		Content  string `json:"content"`
		Filename string `json:"filename"`
	}{Content: content, Filename: name})
	if err != nil {
		return ParseResult{}, err
	}

	var envelope foreignEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return ParseResult{}, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	if envelope.Tag != 0 {
		errs, convErr := decodeParseErrors(envelope.Errors)
		if convErr != nil {
			return ParseResult{}, convErr
		}
		return ParseResult{Success: false, Errors: errs, Warnings: []string{}}, nil
	}

	var personality PersonalityData
	if err := json.Unmarshal(envelope.Payload, &personality); err != nil {
		return ParseResult{}, fmt.Errorf("%w: decoding personality: %v", ErrMarshalFailed, err)
	}

	return ParseResult{Success: true, Personality: &personality, Errors: []ParseError{}, Warnings: []string{}}, nil
}

func decodeParseErrors(raw []json.RawMessage) ([]ParseError, error) {
	errs := make([]ParseError, 0, len(raw))
	for _, r := range raw {
		var pe ParseError
		if err := json.Unmarshal(r, &pe); err != nil {
			return nil, fmt.Errorf("%w: decoding parse error: %v", ErrMarshalFailed, err)
		}
		errs = append(errs, pe)
	}
	return errs, nil
}

// Compile runs the personality compiler against one of the supported
// targets.
func (b *Bridge) Compile(req CompileRequest) (CompileResult, error) {
	raw, err := b.invoke("compile", req)
	if err != nil {
		return CompileResult{}, err
	}

	var envelope foreignEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return CompileResult{}, fmt.Errorf("%w: %v", ErrMarshalFailed, err)
	}

	if envelope.Tag != 0 {
		messages := make([]string, 0, len(envelope.Errors))
		for _, r := range envelope.Errors {
			var msg string
			if err := json.Unmarshal(r, &msg); err != nil {
				return CompileResult{}, fmt.Errorf("%w: decoding compile error: %v", ErrMarshalFailed, err)
			}
			messages = append(messages, msg)
		}
		return CompileResult{Success: false, Errors: messages}, nil
	}

	var output string
	if err := json.Unmarshal(envelope.Payload, &output); err != nil {
		return CompileResult{}, fmt.Errorf("%w: decoding compile output: %v", ErrMarshalFailed, err)
	}

	return CompileResult{Success: true, Output: &output, Errors: []string{}}, nil
}

// Version returns the opaque parser version string.
func (b *Bridge) Version() (string, error) {
	raw, err := b.invoke("version", struct{}{})
	if err != nil {
		return "", err
	}

	var version string
	if err := json.Unmarshal(raw, &version); err != nil {
		return "", fmt.Errorf("%w: decoding version: %v", ErrMarshalFailed, err)
	}
	return version, nil
}

// Validate runs the local, no-FFI validation pass: an empty name and
// any trait strength outside [0.0, 1.0] each produce a warning.
func Validate(p PersonalityData) []string {
	var warnings []string

	if p.Name == "" {
		warnings = append(warnings, "personality name is empty")
	}

	for _, trait := range p.Traits {
		if trait.Strength < 0.0 || trait.Strength > 1.0 {
			warnings = append(warnings, fmt.Sprintf("trait %s has invalid strength: %v", trait.Name, trait.Strength))
		}
	}

	return warnings
}
