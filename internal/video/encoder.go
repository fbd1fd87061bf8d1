package video

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color/palette"
	"image/draw"
	"image/gif"
	"image/png"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
)

// Format describes an encoder's output file
type Format struct {
	Ext         string
	ContentType string
}

var (
	FormatMP4 = Format{Ext: ".mp4", ContentType: "video/mp4"}
	FormatGIF = Format{Ext: ".gif", ContentType: "image/gif"}
)

// Encoder turns the numbered PNG frames in a directory into a video file
type Encoder interface {
	Format() Format
	Encode(ctx context.Context, frameDir string, fps int, outPath string) error
}

// FFmpegEncoder shells out to ffmpeg for H.264 mp4 output
type FFmpegEncoder struct {
	path string
}

func NewFFmpegEncoder(path string) *FFmpegEncoder {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegEncoder{path: path}
}

// Available reports whether the ffmpeg binary can be found
func (e *FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(e.path)
	return err == nil
}

func (e *FFmpegEncoder) Format() Format { return FormatMP4 }

func (e *FFmpegEncoder) Encode(ctx context.Context, frameDir string, fps int, outPath string) error {
	if fps <= 0 {
		fps = 1
	}
	cmd := exec.CommandContext(ctx, e.path,
		"-y",
		"-loglevel", "error",
		"-framerate", fmt.Sprint(fps),
		"-i", filepath.Join(frameDir, framePattern),
		// even dimensions are required by yuv420p
		"-vf", "scale=trunc(iw/2)*2:trunc(ih/2)*2",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		outPath,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

// GIFEncoder writes an animated GIF with the standard library. It is used
// when ffmpeg is not installed.
type GIFEncoder struct{}

func NewGIFEncoder() *GIFEncoder { return &GIFEncoder{} }

func (e *GIFEncoder) Format() Format { return FormatGIF }

func (e *GIFEncoder) Encode(ctx context.Context, frameDir string, fps int, outPath string) error {
	if fps <= 0 {
		fps = 1
	}
	paths, err := framePaths(frameDir)
	if err != nil {
		return err
	}
	if len(paths) == 0 {
		return fmt.Errorf("no frames to encode")
	}

	anim := &gif.GIF{}
	delay := 100 / fps
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		img, err := decodePNG(p)
		if err != nil {
			return err
		}
		frame := image.NewPaletted(img.Bounds(), palette.Plan9)
		draw.FloydSteinberg.Draw(frame, img.Bounds(), img, image.Point{})
		anim.Image = append(anim.Image, frame)
		anim.Delay = append(anim.Delay, delay)
	}

	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	if err := gif.EncodeAll(f, anim); err != nil {
		f.Close()
		return fmt.Errorf("failed to encode gif: %w", err)
	}
	return f.Close()
}

func decodePNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return img, nil
}

func framePaths(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}
