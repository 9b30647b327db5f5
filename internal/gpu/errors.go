package gpu

import (
	"errors"
	"fmt"

	"github.com/born-ml/convtex/internal/tensor"
)

// Common errors.
var (
	ErrNotCompiled          = errors.New("operation is not compiled")
	ErrMissingTensor        = errors.New("source or destination tensor is not set")
	ErrNoWorkGroup          = errors.New("no valid work group size")
	ErrUnsupportedPrecision = errors.New("unsupported calculations precision")
	ErrUnsupportedStorage   = errors.New("unsupported storage type")
	ErrInvalidBlockSize     = errors.New("block size must be at least 1 on every axis")
	ErrArgumentOrder        = errors.New("argument bound out of declaration order")
	ErrArgumentType         = errors.New("argument type does not match declaration")
	ErrArgumentsIncomplete  = errors.New("not every kernel parameter is bound")
	ErrForeignKernel        = errors.New("kernel was not compiled by this device")
)

// ConfigurationError reports an invalid static configuration detected before
// any device work is issued.
type ConfigurationError struct {
	Field   string // Configuration field at fault (e.g., "block_size", "precision")
	Details string
	Err     error // Underlying sentinel, if any
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Details)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// CompileError wraps a compiler failure and keeps the rejected source.
type CompileError struct {
	Entry  string
	Source string
	Err    error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("compile %q: %v", e.Entry, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// BindError reports a kernel argument the executor or binder rejected.
type BindError struct {
	Index int
	Name  string
	Err   error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("bind argument %d (%s): %v", e.Index, e.Name, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// DispatchError reports an executor failure while enqueueing a kernel.
type DispatchError struct {
	Grid      tensor.Int3
	WorkGroup tensor.Int3
	Err       error
}

// Error implements the error interface.
func (e *DispatchError) Error() string {
	return fmt.Sprintf("dispatch grid %v with work group %v: %v", e.Grid, e.WorkGroup, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

// TuneError reports a failed work group search.
type TuneError struct {
	Grid       tensor.Int3
	Candidates int
	Err        error
}

// Error implements the error interface.
func (e *TuneError) Error() string {
	return fmt.Sprintf("tune grid %v over %d candidates: %v", e.Grid, e.Candidates, e.Err)
}

func (e *TuneError) Unwrap() error { return e.Err }

// AllocationError reports a failed device allocation or upload.
type AllocationError struct {
	Resource string
	Err      error
}

// Error implements the error interface.
func (e *AllocationError) Error() string {
	return fmt.Sprintf("allocate %s: %v", e.Resource, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }
