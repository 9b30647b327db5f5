package main

import (
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/born-ml/convtex/internal/logger"
)

var (
	logLevel   string
	logFormat  string
	configPath string

	precisionName string
	storageName   string
	batchSupport  bool
	vendor        string
	renderer      string

	batch       int
	height      int
	width       int
	channels    int
	outChannels int
	kernel      int
	stride      int
	dilation    int
	padding     int

	tuningName string
	seed       int
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "warn",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (text, json)",
			Value:       "text",
			Destination: &logFormat,
		},
		&cli.StringFlag{
			Name:        "config",
			Aliases:     []string{"c"},
			Usage:       "path to a YAML problem description",
			Destination: &configPath,
		},
	}
}

func deviceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "vendor",
			Usage:       "device vendor string as reported by the driver",
			Value:       "QUALCOMM",
			Destination: &vendor,
		},
		&cli.StringFlag{
			Name:        "renderer",
			Usage:       "device renderer string as reported by the driver",
			Value:       "Adreno (TM) 630",
			Destination: &renderer,
		},
	}
}

func problemFlags() []cli.Flag {
	return append(deviceFlags(),
		&cli.StringFlag{
			Name:        "precision",
			Aliases:     []string{"p"},
			Usage:       "calculations precision (f32, f16, f32_f16)",
			Value:       "f32",
			Destination: &precisionName,
		},
		&cli.StringFlag{
			Name:        "storage",
			Usage:       "tensor storage (buffer, image_buffer, texture_2d, texture_3d, texture_array)",
			Value:       "texture_array",
			Destination: &storageName,
		},
		&cli.BoolFlag{
			Name:        "batch-support",
			Usage:       "fold batch into width even for a single batch",
			Destination: &batchSupport,
		},
		&cli.IntFlag{Name: "batch", Usage: "input batch", Value: 1, Destination: &batch},
		&cli.IntFlag{Name: "height", Usage: "input height", Value: 32, Destination: &height},
		&cli.IntFlag{Name: "width", Usage: "input width", Value: 32, Destination: &width},
		&cli.IntFlag{Name: "channels", Usage: "input channels", Value: 8, Destination: &channels},
		&cli.IntFlag{Name: "out-channels", Usage: "output channels", Value: 16, Destination: &outChannels},
		&cli.IntFlag{Name: "kernel", Aliases: []string{"k"}, Usage: "square kernel size", Value: 3, Destination: &kernel},
		&cli.IntFlag{Name: "stride", Usage: "square stride", Value: 1, Destination: &stride},
		&cli.IntFlag{Name: "dilation", Usage: "square dilation", Value: 1, Destination: &dilation},
		&cli.IntFlag{Name: "padding", Usage: "zero padding on every side", Destination: &padding},
		&cli.StringFlag{
			Name:        "tuning",
			Usage:       "work group search (fast, exhaustive)",
			Value:       "fast",
			Destination: &tuningName,
		},
		&cli.IntFlag{Name: "seed", Usage: "seed for random weights and input", Value: 1, Destination: &seed},
	)
}

func newLogger(w io.Writer) logger.Logger {
	level := logger.ParseLevel(logLevel)
	if logFormat == "json" {
		return logger.JSON(w, level)
	}
	return logger.Text(w, level)
}

func stderrLogger() logger.Logger {
	return newLogger(os.Stderr)
}
