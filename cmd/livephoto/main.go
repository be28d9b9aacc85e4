package main

import (
	"context"
	"fmt"
	"os"
	"sync"

	"livephoto/pkg/livephoto"
	"livephoto/pkg/log"

	"github.com/urfave/cli"
	"gopkg.in/yaml.v2"
)

var app = cli.NewApp()

func init() {
	app.Name = "livephoto"
	app.Usage = "Package a photo and a short video into a live photo file"
	app.HideVersion = true
	app.Commands = []cli.Command{
		{
			Name:      "encode",
			Aliases:   []string{"e"},
			Usage:     "Encode a photo and video into a live photo",
			ArgsUsage: "photo video output",
			Flags: []cli.Flag{
				cli.StringFlag{Name: "config", Usage: "yaml configuration file"},
				cli.IntFlag{Name: "quality", Usage: "still image quality 1-100", Value: 0},
				cli.StringFlag{Name: "asset-id", Usage: "use this asset identifier instead of generating one"},
				cli.IntFlag{Name: "frame-index", Usage: "main frame index into the video"},
				cli.BoolFlag{Name: "no-metadata", Usage: "skip embedding the metadata block"},
			},
			Action: encode,
		},
		{
			Name:      "validate",
			Aliases:   []string{"v"},
			Usage:     "Check the structural signature of a live photo file",
			ArgsUsage: "file",
			Action:    validate,
		},
		{
			Name:      "extract",
			Aliases:   []string{"x"},
			Usage:     "Read back the metadata of a live photo file",
			ArgsUsage: "file",
			Action:    extract,
		},
	}
}

// fileConfig is the optional yaml configuration.
type fileConfig struct {
	Quality          int    `yaml:"quality"`
	EmbedMetadata    *bool  `yaml:"embedMetadata"`
	PreserveExif     *bool  `yaml:"preserveExif"`
	HardwareAccel    *bool  `yaml:"hardwareAccel"`
	TargetFileSizeMb int    `yaml:"targetFileSizeMb"`
	TempDir          string `yaml:"tempDir"`
	LogDB            string `yaml:"logDb"`
}

func loadConfig(path string) (*fileConfig, error) {
	config := &fileConfig{}
	if path == "" {
		return config, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, config); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return config, nil
}

func encode(c *cli.Context) error {
	photoPath := c.Args().Get(0)
	videoPath := c.Args().Get(1)
	outputPath := c.Args().Get(2)
	if photoPath == "" || videoPath == "" || outputPath == "" {
		return fmt.Errorf("usage: livephoto encode photo video output")
	}

	fileConf, err := loadConfig(c.String("config"))
	if err != nil {
		return err
	}

	config := livephoto.DefaultConfig()
	if fileConf.Quality != 0 {
		config.Quality = fileConf.Quality
	}
	if fileConf.EmbedMetadata != nil {
		config.EmbedMetadata = *fileConf.EmbedMetadata
	}
	if fileConf.PreserveExif != nil {
		config.PreserveExif = *fileConf.PreserveExif
	}
	if fileConf.HardwareAccel != nil {
		config.HardwareAccel = *fileConf.HardwareAccel
	}
	config.TargetFileSizeMb = fileConf.TargetFileSizeMb

	if quality := c.Int("quality"); quality != 0 {
		config.Quality = quality
	}
	if c.Bool("no-metadata") {
		config.EmbedMetadata = false
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	wg := &sync.WaitGroup{}
	logger := log.NewLogger(wg)
	logger.Start(ctx)
	go logger.LogToStdout(ctx)

	if fileConf.LogDB != "" {
		logDB := log.NewDB(fileConf.LogDB, wg)
		if err := logDB.Init(ctx); err != nil {
			return fmt.Errorf("init log database: %w", err)
		}
		go logDB.SaveLogs(ctx, logger)
	}

	encoder := livephoto.NewEncoder(logger, fileConf.TempDir)
	result, err := encoder.EncodeFile(ctx, photoPath, videoPath, outputPath,
		livephoto.Metadata{
			AssetID:        c.String("asset-id"),
			MainFrameIndex: c.Int("frame-index"),
		}, config)
	if err != nil {
		return err
	}

	fmt.Printf("%v %v bytes in %vms id %v\n",
		result.OutputPath,
		result.OutputSize,
		result.EncodingTimeMs,
		result.Metadata.AssetID)

	cancel()
	wg.Wait()
	return nil
}

func validate(c *cli.Context) error {
	path := c.Args().Get(0)
	if path == "" {
		return fmt.Errorf("usage: livephoto validate file")
	}

	v := livephoto.Validate(path)
	if !v.Valid {
		return fmt.Errorf("invalid: %v", v.Reason)
	}
	fmt.Printf("valid brand=%v size=%v\n", v.Brand, v.FileSize)
	return nil
}

func extract(c *cli.Context) error {
	path := c.Args().Get(0)
	if path == "" {
		return fmt.Errorf("usage: livephoto extract file")
	}

	meta := livephoto.ExtractMetadata(path)
	if meta == nil {
		return fmt.Errorf("no video region found in %v", path)
	}

	fmt.Printf("assetIdentifier: %q\n", meta.AssetID)
	fmt.Printf("mainFrameIndex:  %v\n", meta.MainFrameIndex)
	fmt.Printf("videoDurationMs: %v\n", meta.VideoDurationMs)
	fmt.Printf("video:           %vx%v\n", meta.VideoWidth, meta.VideoHeight)
	fmt.Printf("photo:           %vx%v\n", meta.PhotoWidth, meta.PhotoHeight)
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
