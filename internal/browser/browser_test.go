package browser

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/leadscout/internal/lead"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.NavigationTimeout = 0
	_, err := New(cfg, nil)
	require.Error(t, err)

	cfg = DefaultConfig()
	cfg.WindowWidth = 0
	_, err = New(cfg, nil)
	require.ErrorContains(t, err, "window size")
}

func TestNewFillsUserAgents(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.UserAgents = nil
	b, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)
	require.Equal(t, DefaultUserAgents, b.cfg.UserAgents)
}

func TestUserAgentPick(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.UserAgents = []string{"ua-a", "ua-b", "ua-c"}
	b, err := New(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(b.Close)

	b.pick = func(n int) int { return n - 1 }
	require.Equal(t, "ua-c", b.userAgent())
	b.pick = func(int) int { return 0 }
	require.Equal(t, "ua-a", b.userAgent())
}

func TestNewSessionAfterClose(t *testing.T) {
	t.Parallel()

	b, err := New(DefaultConfig(), nil)
	require.NoError(t, err)
	b.Close()
	b.Close()

	_, err = b.NewSession(t.Context())
	require.ErrorIs(t, err, ErrClosed)
}

func TestAllocatorOptionsOptionalFlags(t *testing.T) {
	t.Parallel()

	base := DefaultConfig()
	withProxy := base
	withProxy.ProxyServer = "http://127.0.0.1:3128"
	withProxy.ExecPath = "/usr/bin/chromium"

	require.Len(t, allocatorOptions(withProxy), len(allocatorOptions(base))+2)
}

func TestSelectorKinds(t *testing.T) {
	t.Parallel()

	require.True(t, isXPath("//div[contains(text(),'Выручка')]"))
	require.False(t, isXPath(".serp-item a"))

	require.Equal(t,
		`document.querySelector(".CheckboxCaptcha")`,
		findExpr(".CheckboxCaptcha"))
	require.Equal(t,
		`document.evaluate("//a[@href=\"x\"]", document, null, XPathResult.FIRST_ORDERED_NODE_TYPE, null).singleNodeValue`,
		findExpr(`//a[@href="x"]`))
}

func TestTimeoutErr(t *testing.T) {
	t.Parallel()

	err := timeoutErr(fmt.Errorf("run: %w", context.DeadlineExceeded), "wait for .x")
	require.ErrorIs(t, err, lead.ErrNavigationTimeout)

	other := errors.New("boom")
	require.Same(t, other, timeoutErr(other, "click"))
}

func TestStealthScriptHidesWebdriver(t *testing.T) {
	t.Parallel()

	require.Contains(t, stealthScript, "navigator, 'webdriver'")
	require.Less(t, time.Duration(0), DefaultConfig().NavigationTimeout)
}
