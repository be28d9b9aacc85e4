package livephoto

import (
	"context"
	"fmt"
	"os"
	"time"

	"livephoto/pkg/heif"
	"livephoto/pkg/log"
	"livephoto/pkg/repack"
	"livephoto/pkg/stillimage"

	"github.com/shirou/gopsutil/v3/disk"
)

const (
	megabyte = 1000 * 1000

	// Encoding is refused below this amount of free space to avoid
	// leaving half-written files on a full disk.
	defaultMinFreeSpace = 100 * megabyte
)

// Encoder packages live photos. The zero value is not usable, use
// NewEncoder. Encoders are safe for concurrent use as long as
// concurrent calls target distinct output files.
type Encoder struct {
	logger  *log.Logger
	tempDir string

	minFreeSpace uint64
	freeSpace    func(path string) (uint64, error)
}

// NewEncoder returns an encoder that keeps temporary files in tempDir.
// An empty tempDir means the system default. Logger may be nil.
func NewEncoder(logger *log.Logger, tempDir string) *Encoder {
	return &Encoder{
		logger:       logger,
		tempDir:      tempDir,
		minFreeSpace: defaultMinFreeSpace,
		freeSpace:    diskFreeSpace,
	}
}

func diskFreeSpace(path string) (uint64, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return 0, err
	}
	return usage.Free, nil
}

// Encode packages bitmap and the video at videoPath into a live photo
// at outputPath. The asset identifier in meta is generated when empty
// and echoed back in the result.
//
// Steps are strictly sequential: allocate identifier, repackage video,
// encode still, write container, remove temporary file.
func (e *Encoder) Encode( //nolint:funlen
	ctx context.Context,
	bitmap *stillimage.Bitmap,
	videoPath string,
	outputPath string,
	meta Metadata,
	config Config,
) (*Result, error) {
	start := time.Now()

	// Checked before anything touches the filesystem.
	if bitmap == nil || bitmap.Released() {
		return nil, fmt.Errorf("%w: bitmap already released", ErrInputInvalid)
	}

	if _, err := os.Stat(videoPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", ErrInputMissing, videoPath)
		}
		return nil, fmt.Errorf("stat video: %w", err)
	}

	if err := e.checkDiskSpace(); err != nil {
		return nil, err
	}

	meta.AssetID = AllocateAssetID(meta.AssetID)
	e.logf(meta.AssetID, "encode %v", outputPath)

	tempVideo, err := os.CreateTemp(e.tempDir, "livephoto_*.mp4")
	if err != nil {
		return nil, fmt.Errorf("create temporary file: %w", err)
	}
	tempVideo.Close()
	tempPath := tempVideo.Name()

	// Best-effort cleanup, must not mask the primary result.
	defer func() {
		if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
			e.logf(meta.AssetID, "could not remove temporary file: %v", err)
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	repackID := meta.AssetID
	if !config.EmbedMetadata {
		repackID = ""
	}
	if err := repack.Repackage(videoPath, tempPath, repackID, meta.MainFrameIndex); err != nil {
		return nil, fmt.Errorf("repackage video: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	still, err := stillimage.Encode(bitmap, config.Quality)
	if err != nil {
		if err == stillimage.ErrReleased {
			return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
		}
		return nil, fmt.Errorf("encode still image: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	err = heif.WriteFile(outputPath, still, tempPath, heif.ContainerOptions{
		AssetID:        meta.AssetID,
		MainFrameIndex: meta.MainFrameIndex,
		EmbedMetadata:  config.EmbedMetadata,
	})
	if err != nil {
		return nil, fmt.Errorf("write container: %w", err)
	}

	stat, err := os.Stat(outputPath)
	if err != nil {
		return nil, fmt.Errorf("stat output: %w", err)
	}

	elapsed := time.Since(start).Milliseconds()
	e.logf(meta.AssetID, "encoded %v bytes in %vms", stat.Size(), elapsed)

	return &Result{
		OutputPath:     outputPath,
		OutputSize:     stat.Size(),
		Metadata:       meta,
		EncodingTimeMs: elapsed,
	}, nil
}

// EncodeFile is a convenience variant that loads the photo from disk.
func (e *Encoder) EncodeFile(
	ctx context.Context,
	photoPath string,
	videoPath string,
	outputPath string,
	meta Metadata,
	config Config,
) (*Result, error) {
	if _, err := os.Stat(photoPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %v", ErrInputMissing, photoPath)
		}
		return nil, fmt.Errorf("stat photo: %w", err)
	}

	bitmap, err := stillimage.FromFile(photoPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInputInvalid, err)
	}
	defer bitmap.Release()

	return e.Encode(ctx, bitmap, videoPath, outputPath, meta, config)
}

func (e *Encoder) checkDiskSpace() error {
	dir := e.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	free, err := e.freeSpace(dir)
	if err != nil {
		// Unknown filesystems are not a reason to refuse encoding.
		return nil
	}
	if free < e.minFreeSpace {
		return fmt.Errorf("%w: %v bytes free in %v", ErrDiskSpace, free, dir)
	}
	return nil
}

func (e *Encoder) logf(jobID, format string, v ...interface{}) {
	if e.logger == nil {
		return
	}
	e.logger.Info().Src("encoder").Job(jobID).Msgf(format, v...)
}

// Validate checks the structural signature of the file at path.
func Validate(path string) heif.Validation {
	return heif.Validate(path)
}
