// internal/browser/manager.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/internal/config"
)

// ErrClosed is returned by Run after Shutdown.
var ErrClosed = errors.New("browser manager is shut down")

const defaultLaunchTimeout = 30 * time.Second

// Manager owns the browser process and the single tab the loop acts on.
type Manager struct {
	logger *zap.Logger
	cfg    config.BrowserConfig

	// allocatorCtx manages the entire browser process; tabCtx is derived from it.
	allocatorCtx    context.Context
	allocatorCancel context.CancelFunc
	tabCtx          context.Context
	tabCancel       context.CancelFunc
	panelCancel     context.CancelFunc

	// wg tracks in-flight Run calls for a graceful shutdown.
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

// NewManager launches the browser, sizes the viewport and loads the target page.
func NewManager(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}

	m := &Manager{
		logger: logger.Named("browser_manager"),
		cfg:    cfg,
	}
	if err := m.launchBrowser(ctx); err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	return m, nil
}

// launchBrowser starts the process and opens the tab. The first chromedp.Run
// on a tab allocates the browser and binds its lifetime to the tab context, so
// it runs on tabCtx itself and is bounded by a timer instead of a deadline.
func (m *Manager) launchBrowser(ctx context.Context) error {
	m.logger.Info("Initializing browser allocator...", zap.Bool("headless", m.cfg.Headless))

	m.allocatorCtx, m.allocatorCancel = chromedp.NewExecAllocator(ctx, buildAllocatorOptions(m.cfg)...)
	m.tabCtx, m.tabCancel = chromedp.NewContext(m.allocatorCtx)

	timeout := m.cfg.LaunchTimeout
	if timeout <= 0 {
		timeout = defaultLaunchTimeout
	}

	started := make(chan error, 1)
	go func() { started <- chromedp.Run(m.tabCtx) }()

	select {
	case err := <-started:
		if err != nil {
			m.allocatorCancel()
			return fmt.Errorf("browser failed to start: %w", err)
		}
	case <-time.After(timeout):
		m.allocatorCancel()
		return fmt.Errorf("browser did not start within %v", timeout)
	case <-ctx.Done():
		m.allocatorCancel()
		return ctx.Err()
	}

	vp := m.cfg.Viewport
	if err := m.Run(ctx,
		chromedp.EmulateViewport(int64(vp.Width), int64(vp.Height)),
		chromedp.Navigate(m.cfg.TargetURL),
	); err != nil {
		m.allocatorCancel()
		return fmt.Errorf("preparing tab: %w", err)
	}

	m.logger.Info("Browser launched successfully and is responsive.",
		zap.String("target_url", m.cfg.TargetURL),
		zap.Int("viewport_width", vp.Width),
		zap.Int("viewport_height", vp.Height),
	)
	return nil
}

// buildAllocatorOptions assembles the Chrome flags for the configured browser.
func buildAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("ignore-certificate-errors", cfg.IgnoreTLSErrors),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", cfg.Headless),
		chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	for _, f := range parseFlags(cfg.Args) {
		opts = append(opts, chromedp.Flag(f.name, f.value))
	}

	// Flags required for running inside containers (e.g., Docker on Linux).
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return opts
}

type flag struct {
	name  string
	value interface{}
}

// parseFlags turns "--name=value" and "--name" strings into chromedp flags.
func parseFlags(args []string) []flag {
	out := make([]flag, 0, len(args))
	for _, arg := range args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimLeft(strings.TrimSpace(parts[0]), "-")
		if name == "" {
			continue
		}
		if len(parts) == 2 {
			out = append(out, flag{name: name, value: parts[1]})
		} else {
			out = append(out, flag{name: name, value: true})
		}
	}
	return out
}

// Run executes chromedp actions in the tab. Cancelling ctx aborts the actions
// without closing the tab.
func (m *Manager) Run(ctx context.Context, actions ...chromedp.Action) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return ErrClosed
	}
	m.wg.Add(1)
	m.mu.RUnlock()
	defer m.wg.Done()

	runCtx, cancel := context.WithCancel(m.tabCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// OpenPanel opens url in a second tab of the same browser, next to the page
// being driven. The tab stays open until Shutdown. Repeated calls are no-ops.
func (m *Manager) OpenPanel(ctx context.Context, url string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.panelCancel != nil {
		m.mu.Unlock()
		return nil
	}
	panelCtx, panelCancel := chromedp.NewContext(m.tabCtx)
	m.panelCancel = panelCancel
	m.wg.Add(1)
	m.mu.Unlock()
	defer m.wg.Done()

	// The first Run binds the new tab to panelCtx, so cancellation closes the
	// tab itself.
	stop := context.AfterFunc(ctx, panelCancel)
	defer stop()

	if err := chromedp.Run(panelCtx, chromedp.Navigate(url)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("opening panel: %w", err)
	}
	m.logger.Info("Annotation panel opened.", zap.String("url", url))
	return nil
}

// Shutdown waits for in-flight actions, then closes the tabs and the browser.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	panelCancel := m.panelCancel
	m.mu.Unlock()

	m.logger.Info("Browser manager shutdown initiated.")

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	if panelCancel != nil {
		panelCancel()
	}
	m.tabCancel()
	m.allocatorCancel()
	<-m.allocatorCtx.Done()
	m.logger.Info("Browser process terminated.")
	return nil
}
