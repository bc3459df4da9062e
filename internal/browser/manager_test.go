package browser

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
)

func TestParseFlags(t *testing.T) {
	got := parseFlags([]string{"--lang=de-DE", "mute-audio", "  ", "--", "--proxy-server=http://a=b"})
	assert.Equal(t, []flag{
		{name: "lang", value: "de-DE"},
		{name: "mute-audio", value: true},
		{name: "proxy-server", value: "http://a=b"},
	}, got)
}

func TestBuildAllocatorOptionsAppendsConfiguredFlags(t *testing.T) {
	base := len(chromedp.DefaultExecAllocatorOptions)
	cfg := config.NewDefaultConfig().Browser()

	plain := buildAllocatorOptions(cfg)
	cfg.Args = []string{"--mute-audio", "--lang=en"}
	cfg.ExecPath = "/usr/bin/chromium"
	extended := buildAllocatorOptions(cfg)

	assert.Greater(t, len(plain), base)
	assert.Equal(t, len(plain)+3, len(extended))
}

func TestNewManagerValidation(t *testing.T) {
	_, err := NewManager(context.Background(), config.BrowserConfig{}, zap.NewNop())
	assert.ErrorContains(t, err, "invalid viewport")

	_, err = NewManager(context.Background(), config.BrowserConfig{Viewport: schemas.Viewport{Width: 1, Height: 1}}, nil)
	assert.EqualError(t, err, "logger cannot be nil")
}

func findChrome() string {
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestManagerLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome binary available")
	}

	cfg := config.NewDefaultConfig().Browser()
	cfg.ExecPath = chrome
	cfg.Viewport = schemas.Viewport{Width: 640, Height: 480}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m, err := NewManager(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	var width int64
	require.NoError(t, m.Run(ctx, chromedp.Evaluate(`window.innerWidth`, &width)))
	assert.EqualValues(t, 640, width)

	cancelled, cancelNow := context.WithCancel(ctx)
	cancelNow()
	assert.ErrorIs(t, m.Run(cancelled, chromedp.Sleep(time.Second)), context.Canceled)

	require.NoError(t, m.Shutdown(ctx))
	assert.ErrorIs(t, m.Run(ctx), ErrClosed)
	assert.ErrorIs(t, m.OpenPanel(ctx, "about:blank"), ErrClosed)
}

func TestManagerOpenPanel(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	chrome := findChrome()
	if chrome == "" {
		t.Skip("no Chrome binary available")
	}

	panel := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<title>panel</title>")
	}))
	defer panel.Close()

	cfg := config.NewDefaultConfig().Browser()
	cfg.ExecPath = chrome
	cfg.TargetURL = "about:blank"

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	m, err := NewManager(ctx, cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer func() { require.NoError(t, m.Shutdown(ctx)) }()

	require.NoError(t, m.OpenPanel(ctx, panel.URL))
	require.NoError(t, m.OpenPanel(ctx, panel.URL), "second call is a no-op")

	targets, err := chromedp.Targets(m.tabCtx)
	require.NoError(t, err)
	var urls []string
	for _, target := range targets {
		if target.Type == "page" {
			urls = append(urls, target.URL)
		}
	}
	assert.Contains(t, urls, panel.URL+"/")

	// The driven tab is untouched.
	var location string
	require.NoError(t, m.Run(ctx, chromedp.Location(&location)))
	assert.Equal(t, "about:blank", location)
}
