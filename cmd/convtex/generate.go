package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convtex/internal/backend/ref"
	"github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/gpu/cache"
)

func generateCmd() *cli.Command {
	return &cli.Command{
		Name:  "generate",
		Usage: "Print the kernel source generated for a convolution",
		Flags: problemFlags(),
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
			fmt.Print(op.Source())
			return nil
		},
	}
}
