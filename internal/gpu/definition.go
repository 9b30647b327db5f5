package gpu

import (
	"fmt"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/tensor"
)

// OperationDef is the static description of an operation's numeric mode and
// tensor storage, chosen by the caller before the operation is created.
type OperationDef struct {
	Precision codegen.Precision
	// BatchSupport folds the batch dimension into tensor width.
	BatchSupport bool
	Src          []tensor.Descriptor
	Dst          []tensor.Descriptor
}

// DataType returns the storage data type implied by the precision.
func (d OperationDef) DataType() (tensor.DataType, error) {
	switch d.Precision {
	case codegen.F32:
		return tensor.Float32, nil
	case codegen.F16, codegen.F32F16:
		return tensor.Float16, nil
	default:
		return 0, &ConfigurationError{
			Field:   "precision",
			Details: fmt.Sprintf("unrecognized precision %d", int(d.Precision)),
			Err:     ErrUnsupportedPrecision,
		}
	}
}

// PrimaryStorageType returns the storage type of the first source tensor.
func (d OperationDef) PrimaryStorageType() tensor.StorageType {
	if len(d.Src) == 0 {
		return tensor.Buffer
	}
	return d.Src[0].Storage
}
