package handler

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/client"
	"github.com/StefaNNN772/Computer-Use-Video-Instructions/pkg/response"
)

const signedURLExpiry = 15 * time.Minute

// VideoHandler serves finished videos. Files kept on local disk are sent
// directly; objects in remote storage are reached through a signed URL.
type VideoHandler struct {
	storage client.StorageClient
	logger  *slog.Logger
}

func NewVideoHandler(storage client.StorageClient, logger *slog.Logger) *VideoHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VideoHandler{storage: storage, logger: logger}
}

// Stream handles GET /api/videos/:filename
func (h *VideoHandler) Stream(c *fiber.Ctx) error {
	return h.serve(c, false)
}

// Download handles GET /api/download/:filename
func (h *VideoHandler) Download(c *fiber.Ctx) error {
	return h.serve(c, true)
}

func (h *VideoHandler) serve(c *fiber.Ctx, attachment bool) error {
	filename := c.Params("filename")
	if !validFilename(filename) {
		return response.ValidationError(c, "Invalid filename", nil)
	}

	if local, ok := h.storage.(client.LocalFiles); ok {
		path := local.LocalPath(filename)
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return response.NotFound(c, "Video not found")
			}
			return response.ServiceError(c, err.Error())
		}
		if attachment {
			return c.Download(path, filename)
		}
		return c.SendFile(path)
	}

	url, err := h.storage.GetSignedURL(c.Context(), filename, signedURLExpiry)
	if err != nil {
		h.logger.Error("failed to sign video url", "filename", filename, "error", err)
		return response.ServiceError(c, "Failed to access video")
	}
	return c.Redirect(url, fiber.StatusFound)
}

// validFilename accepts bare base names only
func validFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return false
	}
	return filepath.Base(name) == name
}
