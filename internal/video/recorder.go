package video

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
)

const framePattern = "frame_%05d.png"

// Filename returns the artifact name for a job's video
func Filename(jobID string, f Format) string {
	return "tutorial_" + jobID + f.Ext
}

// Capture collects the frames of one recording in a temporary directory
type Capture struct {
	dir string

	mu sync.Mutex
	n  int
}

// AddFrame stores the next PNG frame
func (c *Capture) AddFrame(png []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	name := filepath.Join(c.dir, fmt.Sprintf(framePattern, c.n))
	if err := os.WriteFile(name, png, 0o644); err != nil {
		return err
	}
	c.n++
	return nil
}

func (c *Capture) Frames() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Cleanup removes the frames
func (c *Capture) Cleanup() error {
	return os.RemoveAll(c.dir)
}

// Recorder encodes captured frames and publishes the result to storage
type Recorder struct {
	encoder Encoder
	storage client.StorageClient
	tempDir string
	fps     int
	logger  *slog.Logger
}

func NewRecorder(encoder Encoder, storage client.StorageClient, tempDir string, fps int, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if fps <= 0 {
		fps = 2
	}
	return &Recorder{
		encoder: encoder,
		storage: storage,
		tempDir: tempDir,
		fps:     fps,
		logger:  logger,
	}
}

// NewCapture starts collecting frames for jobID
func (r *Recorder) NewCapture(jobID string) (*Capture, error) {
	if err := os.MkdirAll(r.tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	dir, err := os.MkdirTemp(r.tempDir, "frames_"+jobID+"_")
	if err != nil {
		return nil, fmt.Errorf("failed to create frame dir: %w", err)
	}
	return &Capture{dir: dir}, nil
}

// Publish encodes the capture and uploads it, returning the artifact
// filename and the URL it is served from
func (r *Recorder) Publish(ctx context.Context, jobID string, c *Capture) (string, string, error) {
	if c.Frames() == 0 {
		return "", "", fmt.Errorf("no frames were captured")
	}

	format := r.encoder.Format()
	filename := Filename(jobID, format)
	outPath := filepath.Join(c.dir, filename)

	if err := r.encoder.Encode(ctx, c.dir, r.fps, outPath); err != nil {
		return "", "", err
	}

	f, err := os.Open(outPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to open encoded video: %w", err)
	}
	defer f.Close()

	url, err := r.storage.Upload(ctx, filename, f, format.ContentType)
	if err != nil {
		return "", "", err
	}

	r.logger.Info("video published", "job_id", jobID, "filename", filename, "frames", c.Frames())
	return filename, url, nil
}

// Remove deletes a published video
func (r *Recorder) Remove(ctx context.Context, filename string) error {
	return r.storage.Delete(ctx, filename)
}
