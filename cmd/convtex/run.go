package main

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convtex/internal/backend/cpu"
	"github.com/born-ml/convtex/internal/backend/ref"
	"github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/gpu/cache"
	"github.com/born-ml/convtex/internal/parallel"
	"github.com/born-ml/convtex/internal/tensor"
)

// pointwise is implemented by linked operations with a host rendition.
type pointwise interface {
	Apply(v float32) float32
}

func runCmd() *cli.Command {
	var (
		iterations int
		tolerance  float64
	)
	return &cli.Command{
		Name:  "run",
		Usage: "Run a convolution on the reference device and compare it with the host result",
		Flags: append(problemFlags(),
			&cli.IntFlag{Name: "iterations", Usage: "number of dispatches to time", Value: 1, Destination: &iterations},
			&cli.Float64Flag{Name: "tolerance", Usage: "fail when the max relative error exceeds this (0 disables)", Destination: &tolerance},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := LoadConfig(configPath)
			if err != nil {
				return err
			}
			p, err := resolveProblem(cmd.IsSet, cfg)
			if err != nil {
				return err
			}
			log := stderrLogger()

			dev := ref.NewDevice(p.device, ref.WithLogger(log))
			kernels, err := cache.New(dev, 0)
			if err != nil {
				return err
			}
			cc := convtex.CreationContext{Device: p.device, Context: dev, Cache: kernels}
			op, err := convtex.Create(cc, p.def, p.attr, append(p.opts, convtex.WithLogger(log))...)
			if err != nil {
				return err
			}
			defer op.Release()
			if err := op.Compile(cc); err != nil {
				return err
			}

			input, err := tensor.NewHost(p.input)
			if err != nil {
				return err
			}
			copy(input.Data, p.random(len(input.Data), 1))
			src, err := dev.CreateTensor(p.input, p.def.Src[0])
			if err != nil {
				return err
			}
			defer src.Release()
			if err := dev.Upload(src, input); err != nil {
				return err
			}
			dst, err := dev.CreateTensor(p.output(), p.def.Dst[0])
			if err != nil {
				return err
			}
			defer dst.Release()
			op.SetSrc(src)
			op.SetDst(dst)

			if err := op.Tune(convtex.TuningParameters{Executor: dev, Device: p.device, Type: p.tuning}); err != nil {
				log.Warn("tuning failed, keeping work group", "work_group", op.WorkGroupSize(), "error", err)
			}

			start := time.Now()
			for range max(iterations, 1) {
				if err := op.AddToQueue(dev); err != nil {
					return err
				}
			}
			elapsed := time.Since(start) / time.Duration(max(iterations, 1))

			got, err := dev.Download(dst)
			if err != nil {
				return err
			}
			want, err := p.expected(input)
			if err != nil {
				return err
			}
			maxErr := maxRelativeError(want.Data, got.Data)

			fmt.Printf("input:       %+v\n", p.input)
			fmt.Printf("output:      %+v\n", got.Shape)
			fmt.Printf("precision:   %s\n", p.def.Precision)
			fmt.Printf("storage:     %s\n", p.def.Src[0].Storage)
			fmt.Printf("block:       %v\n", op.BlockSize())
			fmt.Printf("grid:        %v\n", op.GridSize())
			fmt.Printf("work group:  %v\n", op.WorkGroupSize())
			fmt.Printf("dispatch:    %s\n", elapsed)
			fmt.Printf("max error:   %.3g\n", maxErr)

			if tolerance > 0 && maxErr > tolerance {
				return fmt.Errorf("max relative error %.3g exceeds tolerance %.3g", maxErr, tolerance)
			}
			return nil
		},
	}
}

// expected convolves input on the host and applies the linked chain.
func (p *problem) expected(input *tensor.Host) (*tensor.Host, error) {
	out, err := tensor.NewHost(p.output())
	if err != nil {
		return nil, err
	}
	err = cpu.Conv2D(out, input, p.attr.Weights.Shape, p.attr.Weights.Data, p.attr.Bias, cpu.Conv2DParams{
		Stride:   p.attr.Strides,
		Dilation: p.attr.Dilations,
		Padding:  p.attr.Padding.Prepended,
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}
	for _, op := range p.linked {
		pw, ok := op.(pointwise)
		if !ok {
			return nil, fmt.Errorf("linked operation %T has no host rendition", op)
		}
		for i, v := range out.Data {
			out.Data[i] = pw.Apply(v)
		}
	}
	return out, nil
}

// maxRelativeError is the largest |w-g| / max(1, |w|).
func maxRelativeError(want, got []float32) float64 {
	var worst float64
	for i := range want {
		w, g := float64(want[i]), float64(got[i])
		worst = max(worst, math.Abs(w-g)/math.Max(1, math.Abs(w)))
	}
	return worst
}
