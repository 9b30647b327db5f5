package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/elementwise"
	"github.com/born-ml/convtex/internal/gpu"
	"github.com/born-ml/convtex/internal/tensor"
)

const sampleConfig = `
precision: f16
storage: texture_2d
device:
  vendor: QUALCOMM
  renderer: Adreno (TM) 430
input:
  batch: 2
  height: 12
  width: 10
  channels: 6
output_channels: 12
kernel: {x: 3, y: 1}
stride: {x: 2, y: 1}
padding:
  prepended: {x: 1, y: 0}
  appended: {x: 1, y: 0}
block_size: {x: 1, y: 2, z: 2}
relu: {alpha: 0.1}
mul_add: {mul: 2, add: 0.5}
tuning: exhaustive
seed: 7
`

// resetFlags restores the flag defaults declared in flags.go.
func resetFlags(t *testing.T) {
	t.Helper()
	logLevel, logFormat, configPath = "warn", "text", ""
	precisionName, storageName, batchSupport = "f32", "texture_array", false
	vendor, renderer = "QUALCOMM", "Adreno (TM) 630"
	batch, height, width, channels, outChannels = 1, 32, 32, 8, 16
	kernel, stride, dilation, padding = 3, 1, 1, 0
	tuningName, seed = "fast", 1
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "convtex.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func noneSet(string) bool { return false }

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "f16", cfg.Precision)
	assert.Equal(t, DeviceConfig{Vendor: "QUALCOMM", Renderer: "Adreno (TM) 430"}, cfg.Device)
	require.NotNil(t, cfg.Input)
	assert.Equal(t, InputConfig{Batch: 2, Height: 12, Width: 10, Channels: 6}, *cfg.Input)
	require.NotNil(t, cfg.Kernel)
	assert.Equal(t, Pair{X: 3, Y: 1}, *cfg.Kernel)
	assert.Nil(t, cfg.Dilation)
	assert.Nil(t, cfg.BatchSupport)
	require.NotNil(t, cfg.ReLU)
	assert.Equal(t, float32(0.1), cfg.ReLU.Alpha)
	require.NotNil(t, cfg.Seed)
	assert.Equal(t, 7, *cfg.Seed)

	empty, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, Config{}, empty)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "input: [1, 2"))
	assert.Error(t, err)
}

func TestResolveProblem_Config(t *testing.T) {
	resetFlags(t)
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	p, err := resolveProblem(noneSet, cfg)
	require.NoError(t, err)

	assert.Equal(t, 430, p.device.AdrenoVersion)
	assert.Equal(t, codegen.F16, p.def.Precision)
	assert.True(t, p.def.BatchSupport)
	assert.Equal(t, tensor.Descriptor{Storage: tensor.Texture2D, DataType: tensor.Float16, Layout: tensor.LayoutBHWC}, p.def.Src[0])
	assert.Equal(t, tensor.BHWC{B: 2, H: 12, W: 10, C: 6}, p.input)
	assert.Equal(t, tensor.OHWI{O: 12, H: 1, W: 3, I: 6}, p.attr.Weights.Shape)
	assert.Len(t, p.attr.Weights.Data, 12*3*6)
	assert.Len(t, p.attr.Bias, 12)
	assert.Equal(t, tensor.Int2{X: 2, Y: 1}, p.attr.Strides)
	assert.Equal(t, tensor.Int2{X: 1, Y: 1}, p.attr.Dilations)
	assert.Equal(t, convtex.Padding2D{Prepended: tensor.Int2{X: 1}, Appended: tensor.Int2{X: 1}}, p.attr.Padding)
	assert.Equal(t, convtex.TuningExhaustive, p.tuning)
	assert.Equal(t, []gpu.LinkedOperation{elementwise.ReLU{Alpha: 0.1}, elementwise.MulAdd{Mul: 2, Add: 0.5}}, p.linked)
	// Block size and linked chain.
	assert.Len(t, p.opts, 2)
	assert.Equal(t, tensor.BHWC{B: 2, H: 12, W: 5, C: 12}, p.output())
}

func TestResolveProblem_FlagsWin(t *testing.T) {
	resetFlags(t)
	cfg, err := LoadConfig(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	precisionName, kernel, height = "f32", 1, 20
	set := map[string]bool{"precision": true, "kernel": true, "height": true}
	p, err := resolveProblem(func(name string) bool { return set[name] }, cfg)
	require.NoError(t, err)

	assert.Equal(t, codegen.F32, p.def.Precision)
	assert.Equal(t, tensor.Float32, p.def.Src[0].DataType)
	assert.Equal(t, tensor.OHWI{O: 12, H: 1, W: 1, I: 6}, p.attr.Weights.Shape)
	assert.Equal(t, 20, p.input.H)
	// Unset flags still take the config values.
	assert.Equal(t, tensor.Texture2D, p.def.Src[0].Storage)
	assert.Equal(t, tensor.Int2{X: 2, Y: 1}, p.attr.Strides)
}

func TestResolveProblem_Defaults(t *testing.T) {
	resetFlags(t)
	p, err := resolveProblem(noneSet, Config{})
	require.NoError(t, err)

	assert.False(t, p.def.BatchSupport)
	assert.Equal(t, tensor.TextureArray, p.def.Src[0].Storage)
	assert.Equal(t, tensor.OHWI{O: 16, H: 3, W: 3, I: 8}, p.attr.Weights.Shape)
	assert.Equal(t, convtex.TuningFast, p.tuning)
	assert.Empty(t, p.opts)
	assert.Equal(t, tensor.BHWC{B: 1, H: 30, W: 30, C: 16}, p.output())

	// Same seed, same weights.
	again, err := resolveProblem(noneSet, Config{})
	require.NoError(t, err)
	assert.Equal(t, p.attr.Weights.Data, again.attr.Weights.Data)
}

func TestResolveProblem_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func()
	}{
		{"precision", func() { precisionName = "f64" }},
		{"storage", func() { storageName = "texture_cube" }},
		{"tuning", func() { tuningName = "thorough" }},
		{"input", func() { width = 0 }},
		{"weights", func() { outChannels = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			tt.mutate()
			_, err := resolveProblem(noneSet, Config{})
			assert.Error(t, err)
		})
	}
}

func TestExpected(t *testing.T) {
	resetFlags(t)
	channels, outChannels, kernel, height, width = 4, 4, 1, 2, 2
	p, err := resolveProblem(noneSet, Config{ReLU: &ReLUConfig{}, MulAdd: &MulAddConfig{Mul: 2, Add: 1}})
	require.NoError(t, err)

	input, err := tensor.NewHost(p.input)
	require.NoError(t, err)
	out, err := p.expected(input)
	require.NoError(t, err)
	// Zero input leaves only the bias, rectified then scaled.
	for i, v := range out.Data {
		b := p.attr.Bias[i%4]
		assert.InDelta(t, max(b, 0)*2+1, v, 1e-6)
	}
}

func TestMaxRelativeError(t *testing.T) {
	assert.Zero(t, maxRelativeError([]float32{1, 2}, []float32{1, 2}))
	assert.InDelta(t, 0.5, maxRelativeError([]float32{0.5, 4}, []float32{1, 4}), 1e-9)
	assert.InDelta(t, 0.25, maxRelativeError([]float32{8}, []float32{10}), 1e-9)
}
