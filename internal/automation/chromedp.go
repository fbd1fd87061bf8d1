package automation

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// ChromeEngine performs plans in a Chrome browser driven over the DevTools protocol
type ChromeEngine struct {
	headless bool
	startURL string
	width    int
	height   int
	logger   *slog.Logger
}

func NewChromeEngine(headless bool, startURL string, logger *slog.Logger) *ChromeEngine {
	if logger == nil {
		logger = slog.Default()
	}
	if startURL == "" {
		startURL = "about:blank"
	}
	return &ChromeEngine{
		headless: headless,
		startURL: startURL,
		width:    1280,
		height:   720,
		logger:   logger,
	}
}

func (e *ChromeEngine) Name() string { return "chromedp" }

func (e *ChromeEngine) NewSession(ctx context.Context) (Session, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", e.headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.WindowSize(e.width, e.height),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &chromeSession{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		startURL:      e.startURL,
		logger:        e.logger,
	}

	if err := s.run(ctx, chromedp.Navigate(e.startURL)); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return s, nil
}

type chromeSession struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	startURL      string
	logger        *slog.Logger
}

// run executes actions in the browser context, aborting when ctx ends
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	actionCtx, cancel := context.WithCancel(s.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	return chromedp.Run(actionCtx, actions...)
}

func (s *chromeSession) Perform(ctx context.Context, step model.Step) error {
	switch step.Action {
	case model.ActionOpenApplication:
		return s.run(ctx, chromedp.Navigate(s.resolveURL(step.Target)))

	case model.ActionCloseApplication:
		return s.run(ctx, chromedp.Navigate("about:blank"))

	case model.ActionClick:
		return s.run(ctx, chromedp.Click(textSelector(step.Target), chromedp.BySearch, chromedp.NodeVisible))

	case model.ActionDoubleClick:
		return s.run(ctx, chromedp.DoubleClick(textSelector(step.Target), chromedp.BySearch, chromedp.NodeVisible))

	case model.ActionRightClick:
		var nodes []*cdp.Node
		if err := s.run(ctx, chromedp.Nodes(textSelector(step.Target), &nodes, chromedp.BySearch, chromedp.NodeVisible)); err != nil {
			return err
		}
		if len(nodes) == 0 {
			return fmt.Errorf("%w: %q", ErrElementNotFound, step.Target)
		}
		return s.run(ctx, chromedp.MouseClickNode(nodes[0], chromedp.ButtonType(input.Right)))

	case model.ActionTypeText:
		if step.Value == nil || *step.Value == "" {
			return nil
		}
		if typesIntoFocus(step.Target) {
			return s.run(ctx, chromedp.KeyEvent(*step.Value))
		}
		return s.run(ctx, chromedp.SendKeys(fieldSelector(step.Target), *step.Value, chromedp.BySearch, chromedp.NodeVisible))

	case model.ActionKeyPress:
		key, err := keyFor(KeyInput(step))
		if err != nil {
			return err
		}
		return s.run(ctx, chromedp.KeyEvent(key))

	case model.ActionKeyCombination:
		keys := SplitCombination(KeyInput(step))
		if len(keys) == 0 {
			return fmt.Errorf("%w: empty key combination", ErrUnsupportedAction)
		}
		var modifiers []input.Modifier
		for _, k := range keys[:len(keys)-1] {
			m, ok := modifierKeys[k]
			if !ok {
				return fmt.Errorf("%w: modifier %q", ErrUnsupportedAction, k)
			}
			modifiers = append(modifiers, m)
		}
		key, err := keyFor(keys[len(keys)-1])
		if err != nil {
			return err
		}
		return s.run(ctx, chromedp.KeyEvent(key, chromedp.KeyModifiers(modifiers...)))

	case model.ActionScroll:
		pixels := -ParseScrollAmount(step.Value) * 100
		return s.run(ctx, chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %d)", pixels), nil))

	case model.ActionWait:
		return nil
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedAction, step.Action)
}

func (s *chromeSession) Capture(ctx context.Context) ([]byte, error) {
	var buf []byte
	if err := s.run(ctx, chromedp.CaptureScreenshot(&buf)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (s *chromeSession) Close() error {
	s.browserCancel()
	s.allocCancel()
	return nil
}

// resolveURL turns an open_application target into a page to load. Names
// that are not URLs open the configured start page.
func (s *chromeSession) resolveURL(target string) string {
	target = strings.TrimSpace(target)
	if u, err := url.Parse(target); err == nil && u.Scheme != "" && u.Host != "" {
		return target
	}
	if strings.HasPrefix(target, "www.") {
		return "https://" + target
	}
	s.logger.Debug("target is not a URL, opening start page", "target", target)
	return s.startURL
}

// textSelector matches the innermost element whose visible text is target
func textSelector(target string) string {
	q := xpathLiteral(strings.TrimSpace(target))
	return fmt.Sprintf(`//*[normalize-space(text())=%s or @aria-label=%s or @title=%s or @value=%s]`, q, q, q, q)
}

// fieldSelector matches an input or textarea labelled target
func fieldSelector(target string) string {
	q := xpathLiteral(strings.TrimSpace(target))
	return fmt.Sprintf(`//*[self::input or self::textarea][@placeholder=%s or @aria-label=%s or @name=%s or @id=//label[normalize-space(text())=%s]/@for]`, q, q, q, q)
}

// xpathLiteral quotes s for use in an XPath expression
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, "'") {
		return "'" + s + "'"
	}
	parts := strings.Split(s, `"`)
	return `concat("` + strings.Join(parts, `", '"', "`) + `")`
}

var modifierKeys = map[string]input.Modifier{
	"ctrl":    input.ModifierCtrl,
	"control": input.ModifierCtrl,
	"alt":     input.ModifierAlt,
	"shift":   input.ModifierShift,
	"cmd":     input.ModifierMeta,
	"meta":    input.ModifierMeta,
	"win":     input.ModifierMeta,
}

var namedKeys = map[string]string{
	"enter":     kb.Enter,
	"return":    kb.Enter,
	"tab":       kb.Tab,
	"esc":       kb.Escape,
	"escape":    kb.Escape,
	"backspace": kb.Backspace,
	"delete":    kb.Delete,
	"del":       kb.Delete,
	"space":     " ",
	"up":        kb.ArrowUp,
	"down":      kb.ArrowDown,
	"left":      kb.ArrowLeft,
	"right":     kb.ArrowRight,
	"home":      kb.Home,
	"end":       kb.End,
	"pageup":    kb.PageUp,
	"pagedown":  kb.PageDown,
	"f1":        kb.F1,
	"f2":        kb.F2,
	"f3":        kb.F3,
	"f4":        kb.F4,
	"f5":        kb.F5,
	"f6":        kb.F6,
	"f7":        kb.F7,
	"f8":        kb.F8,
	"f9":        kb.F9,
	"f10":       kb.F10,
	"f11":       kb.F11,
	"f12":       kb.F12,
}

// keyFor maps a key name from a plan to the key sequence chromedp sends
func keyFor(name string) (string, error) {
	if k, ok := namedKeys[name]; ok {
		return k, nil
	}
	if len([]rune(name)) == 1 {
		return name, nil
	}
	return "", fmt.Errorf("%w: key %q", ErrUnsupportedAction, name)
}
