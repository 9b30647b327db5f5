package main

import (
	"fmt"
	"math/rand/v2"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/elementwise"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

// Config is a YAML problem description. Pointer fields distinguish "not set"
// from zero values; command-line flags win over anything set here.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	Precision    string       `yaml:"precision"`
	Storage      string       `yaml:"storage"`
	BatchSupport *bool        `yaml:"batch_support"`
	Device       DeviceConfig `yaml:"device"`

	Input          *InputConfig   `yaml:"input"`
	OutputChannels *int           `yaml:"output_channels"`
	Kernel         *Pair          `yaml:"kernel"`
	Stride         *Pair          `yaml:"stride"`
	Dilation       *Pair          `yaml:"dilation"`
	Padding        *PaddingConfig `yaml:"padding"`

	BlockSize *Triple `yaml:"block_size"`
	WorkGroup *Triple `yaml:"work_group"`

	ReLU   *ReLUConfig   `yaml:"relu"`
	MulAdd *MulAddConfig `yaml:"mul_add"`

	Tuning string `yaml:"tuning"`
	Seed   *int   `yaml:"seed"`
}

// DeviceConfig names the device whose heuristics the kernel targets.
type DeviceConfig struct {
	Vendor   string `yaml:"vendor"`
	Renderer string `yaml:"renderer"`
}

// InputConfig is the BHWC source shape.
type InputConfig struct {
	Batch    int `yaml:"batch"`
	Height   int `yaml:"height"`
	Width    int `yaml:"width"`
	Channels int `yaml:"channels"`
}

// Pair is a (width, height) value.
type Pair struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

// Triple is an (x, y, z) value.
type Triple struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
	Z int `yaml:"z"`
}

// PaddingConfig is the zero padding before and after the spatial axes.
type PaddingConfig struct {
	Prepended Pair `yaml:"prepended"`
	Appended  Pair `yaml:"appended"`
}

// ReLUConfig fuses a ReLU into the kernel epilogue.
type ReLUConfig struct {
	Alpha float32 `yaml:"alpha"`
	Clip  float32 `yaml:"clip"`
}

// MulAddConfig fuses v*mul + add into the kernel epilogue.
type MulAddConfig struct {
	Mul float32 `yaml:"mul"`
	Add float32 `yaml:"add"`
}

func (p Pair) int2() tensor.Int2   { return tensor.Int2{X: p.X, Y: p.Y} }
func (t Triple) int3() tensor.Int3 { return tensor.Int3{X: t.X, Y: t.Y, Z: t.Z} }
func square(n int) tensor.Int2     { return tensor.Int2{X: n, Y: n} }

func orSquare(p *Pair, n int) tensor.Int2 {
	if p == nil {
		return square(n)
	}
	return p.int2()
}

// LoadConfig reads a problem description. An empty path yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// applyConfig copies config values into the flag variables whose flags were
// not set explicitly. Pair-valued settings are returned separately since
// their flags are square.
func applyConfig(isSet func(string) bool, cfg Config) (kernelSize, strides, dilations tensor.Int2, pad convtex.Padding2D) {
	setString := func(flag string, dst *string, v string) {
		if v != "" && !isSet(flag) {
			*dst = v
		}
	}
	setString("log-level", &logLevel, cfg.LogLevel)
	setString("log-format", &logFormat, cfg.LogFormat)
	setString("precision", &precisionName, cfg.Precision)
	setString("storage", &storageName, cfg.Storage)
	setString("vendor", &vendor, cfg.Device.Vendor)
	setString("renderer", &renderer, cfg.Device.Renderer)
	setString("tuning", &tuningName, cfg.Tuning)

	if cfg.BatchSupport != nil && !isSet("batch-support") {
		batchSupport = *cfg.BatchSupport
	}
	if in := cfg.Input; in != nil {
		for _, f := range []struct {
			flag string
			dst  *int
			v    int
		}{
			{"batch", &batch, in.Batch},
			{"height", &height, in.Height},
			{"width", &width, in.Width},
			{"channels", &channels, in.Channels},
		} {
			if f.v != 0 && !isSet(f.flag) {
				*f.dst = f.v
			}
		}
	}
	if cfg.OutputChannels != nil && !isSet("out-channels") {
		outChannels = *cfg.OutputChannels
	}
	if cfg.Seed != nil && !isSet("seed") {
		seed = *cfg.Seed
	}

	pick := func(flag string, p *Pair, n int) tensor.Int2 {
		if isSet(flag) {
			return square(n)
		}
		return orSquare(p, n)
	}
	kernelSize = pick("kernel", cfg.Kernel, kernel)
	strides = pick("stride", cfg.Stride, stride)
	dilations = pick("dilation", cfg.Dilation, dilation)
	pad = convtex.Padding2D{Prepended: square(padding), Appended: square(padding)}
	if cfg.Padding != nil && !isSet("padding") {
		pad = convtex.Padding2D{Prepended: cfg.Padding.Prepended.int2(), Appended: cfg.Padding.Appended.int2()}
	}
	return kernelSize, strides, dilations, pad
}

// problem is one fully resolved convolution with random weights.
type problem struct {
	device gpu.DeviceInfo
	def    gpu.OperationDef
	input  tensor.BHWC
	attr   convtex.Convolution2DAttributes
	opts   []convtex.Option
	linked []gpu.LinkedOperation
	tuning convtex.TuningType
	rng    *rand.Rand
}

// resolveProblem merges cfg under the command-line flags and builds the
// convolution they describe.
func resolveProblem(isSet func(string) bool, cfg Config) (*problem, error) {
	kernelSize, strides, dilations, pad := applyConfig(isSet, cfg)

	precision, err := codegen.ParsePrecision(precisionName)
	if err != nil {
		return nil, err
	}
	storage, ok := tensor.ParseStorageType(storageName)
	if !ok {
		return nil, fmt.Errorf("unknown storage type %q", storageName)
	}
	tuning, err := convtex.ParseTuningType(tuningName)
	if err != nil {
		return nil, err
	}
	input := tensor.BHWC{B: batch, H: height, W: width, C: channels}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	dt := tensor.Float16
	if precision == codegen.F32 {
		dt = tensor.Float32
	}
	desc := tensor.Descriptor{Storage: storage, DataType: dt, Layout: tensor.LayoutBHWC}
	p := &problem{
		device: gpu.ParseDeviceInfo(vendor, renderer),
		def: gpu.OperationDef{
			Precision:    precision,
			BatchSupport: batchSupport || batch > 1,
			Src:          []tensor.Descriptor{desc},
			Dst:          []tensor.Descriptor{desc},
		},
		input:  input,
		tuning: tuning,
		rng:    rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
	}

	shape := tensor.OHWI{O: outChannels, H: kernelSize.Y, W: kernelSize.X, I: channels}
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	p.attr = convtex.Convolution2DAttributes{
		Weights:   convtex.Weights{Shape: shape, Data: p.random(shape.NumElements(), 1)},
		Bias:      p.random(outChannels, 0.5),
		Strides:   strides,
		Dilations: dilations,
		Padding:   pad,
	}

	if cfg.BlockSize != nil {
		p.opts = append(p.opts, convtex.WithBlockSize(cfg.BlockSize.int3()))
	}
	if cfg.WorkGroup != nil {
		p.opts = append(p.opts, convtex.WithWorkGroupSize(cfg.WorkGroup.int3()))
	}
	if cfg.ReLU != nil {
		p.linked = append(p.linked, elementwise.ReLU{Alpha: cfg.ReLU.Alpha, Clip: cfg.ReLU.Clip})
	}
	if cfg.MulAdd != nil {
		p.linked = append(p.linked, elementwise.MulAdd{Mul: cfg.MulAdd.Mul, Add: cfg.MulAdd.Add})
	}
	if len(p.linked) > 0 {
		p.opts = append(p.opts, convtex.WithLinked(p.linked...))
	}
	return p, nil
}

// random returns n values uniform in [-scale, scale).
func (p *problem) random(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = (p.rng.Float32()*2 - 1) * scale
	}
	return out
}

func (p *problem) output() tensor.BHWC {
	return convtex.OutputShape(p.input, p.attr)
}
