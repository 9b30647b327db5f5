package gpu

import (
	"time"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/tensor"
)

// CompilerOption is a device-specific build flag.
type CompilerOption int

// Compiler options.
const (
	// AdrenoFullSIMDLine asks Adreno compilers to use the full SIMD width for half math.
	AdrenoFullSIMDLine CompilerOption = iota
)

// Flag returns the compiler command-line spelling of the option.
func (o CompilerOption) Flag() string {
	switch o {
	case AdrenoFullSIMDLine:
		return "-qcom-accelerate-16-bit"
	default:
		return ""
	}
}

// CompileRequest is the input of a compile. Source is the artifact a text
// compiler consumes; Program is the structured form it was printed from.
type CompileRequest struct {
	Source     string
	EntryPoint string
	Options    []CompilerOption
	Program    *codegen.Program
}

// Kernel is a compiled kernel handle.
type Kernel interface {
	EntryPoint() string
	Release()
}

// Compiler builds kernels for one device.
type Compiler interface {
	Compile(req CompileRequest) (Kernel, error)
}

// CompileCache returns a compiled kernel for a request, compiling at most once
// per distinct (source, entry point, options). Each kernel handed out by
// GetOrCreate is given back with Release once its holder is done with it.
type CompileCache interface {
	GetOrCreate(req CompileRequest) (Kernel, error)
	Release(k Kernel)
}

// Executor enqueues kernels on a device queue.
type Executor interface {
	// DispatchImplicit runs k over grid rounded up to whole work groups.
	DispatchImplicit(k Kernel, args *Arguments, grid, workGroup tensor.Int3) error
	// Measure runs k once with the given work group and reports its duration.
	Measure(k Kernel, args *Arguments, grid, workGroup tensor.Int3) (time.Duration, error)
}
