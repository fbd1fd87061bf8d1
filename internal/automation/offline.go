package automation

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"sync"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// OfflineEngine simulates a desktop: every step succeeds unless its target is
// listed as missing, and frames are synthetic images that change per step.
// It keeps the whole pipeline runnable without a browser.
type OfflineEngine struct {
	width, height int
	missing       map[string]bool
}

func NewOfflineEngine(missingTargets ...string) *OfflineEngine {
	missing := make(map[string]bool, len(missingTargets))
	for _, t := range missingTargets {
		missing[t] = true
	}
	return &OfflineEngine{width: 640, height: 360, missing: missing}
}

func (e *OfflineEngine) Name() string { return "offline" }

func (e *OfflineEngine) NewSession(ctx context.Context) (Session, error) {
	return &offlineSession{engine: e}, nil
}

type offlineSession struct {
	engine *OfflineEngine

	mu        sync.Mutex
	performed []model.Step
	open      bool
	closed    bool
}

func (s *offlineSession) Perform(ctx context.Context, step model.Step) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("session closed")
	}
	if s.engine.missing[step.Target] {
		return fmt.Errorf("%w: %q", ErrElementNotFound, step.Target)
	}

	switch step.Action {
	case model.ActionOpenApplication:
		s.open = true
	case model.ActionCloseApplication:
		s.open = false
	case model.ActionKeyCombination:
		if len(SplitCombination(KeyInput(step))) == 0 {
			return fmt.Errorf("%w: empty key combination", ErrUnsupportedAction)
		}
	}
	s.performed = append(s.performed, step)
	return nil
}

var actionColors = map[model.ActionType]color.RGBA{
	model.ActionClick:            {0x3b, 0x82, 0xf6, 0xff},
	model.ActionDoubleClick:      {0x63, 0x66, 0xf1, 0xff},
	model.ActionRightClick:       {0x8b, 0x5c, 0xf6, 0xff},
	model.ActionTypeText:         {0x10, 0xb9, 0x81, 0xff},
	model.ActionKeyPress:         {0xf5, 0x9e, 0x0b, 0xff},
	model.ActionKeyCombination:   {0xf9, 0x73, 0x16, 0xff},
	model.ActionScroll:           {0x06, 0xb6, 0xd4, 0xff},
	model.ActionOpenApplication:  {0x22, 0xc5, 0x5e, 0xff},
	model.ActionCloseApplication: {0xef, 0x44, 0x44, 0xff},
}

// Capture draws a desktop: a window when an application is open, a bar
// coloured by the last action and one tick per performed step
func (s *offlineSession) Capture(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	n := len(s.performed)
	var last model.ActionType
	if n > 0 {
		last = s.performed[n-1].Action
	}
	open := s.open
	s.mu.Unlock()

	w, h := s.engine.width, s.engine.height
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{color.RGBA{0x1f, 0x29, 0x37, 0xff}}, image.Point{}, draw.Src)

	if open {
		window := image.Rect(w/10, h/10, w-w/10, h-h/5)
		draw.Draw(img, window, &image.Uniform{color.RGBA{0xf3, 0xf4, 0xf6, 0xff}}, image.Point{}, draw.Src)
	}

	if c, ok := actionColors[last]; ok {
		draw.Draw(img, image.Rect(0, h-h/10, w, h), &image.Uniform{c}, image.Point{}, draw.Src)
	}

	for i := 0; i < n; i++ {
		x := 8 + i*12
		if x+8 > w {
			break
		}
		draw.Draw(img, image.Rect(x, 8, x+8, 16), &image.Uniform{color.White}, image.Point{}, draw.Src)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *offlineSession) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
