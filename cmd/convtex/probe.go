package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convtex/internal/backend/webgpu"
	"github.com/born-ml/convtex/internal/codegen"
	"github.com/born-ml/convtex/internal/convtex"
	"github.com/born-ml/convtex/internal/gpu"
)

func probeCmd() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "Report the local GPU and the kernel heuristics it selects",
		Flags: deviceFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := stderrLogger()
			info := gpu.ParseDeviceInfo(vendor, renderer)
			source := "flags"
			if !cmd.IsSet("vendor") && !cmd.IsSet("renderer") {
				adapter, err := webgpu.Probe()
				switch {
				case err == nil:
					info = adapter.DeviceInfo()
					source = "webgpu"
					log.Info("adapter found", "vendor", adapter.Vendor, "device", adapter.Device, "architecture", adapter.Architecture)
				case errors.Is(err, webgpu.ErrUnavailable):
					log.Info("webgpu unavailable, using flag defaults")
				default:
					log.Warn("webgpu probe failed, using flag defaults", "error", err)
				}
			}
			return printDeviceReport(source, info)
		},
	}
}

func printDeviceReport(source string, info gpu.DeviceInfo) error {
	size, total := info.WorkGroupLimits()
	fmt.Printf("source:          %s\n", source)
	fmt.Printf("name:            %s\n", info.Name)
	fmt.Printf("vendor:          %s\n", info.Vendor)
	if info.IsAdreno() {
		fmt.Printf("adreno version:  %d\n", info.AdrenoVersion)
	}
	fmt.Printf("work group max:  %v (%d invocations)\n", size, total)
	fmt.Printf("fast path:       %t\n", info.IsAdreno4xx())
	for _, p := range []codegen.Precision{codegen.F32, codegen.F16, codegen.F32F16} {
		simd, err := convtex.UseFP16SIMD(info, p, true)
		if err != nil {
			return err
		}
		fmt.Printf("fp16 simd %-9s %t\n", p.String()+":", simd)
	}
	return nil
}
