package schulmanager

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	viewportWidth  = 1920
	viewportHeight = 1080

	pollInterval = 250 * time.Millisecond
)

// ChromeLauncher launches headless chrome sessions through the devtools protocol.
type ChromeLauncher struct {
	// ExecPath is the chrome or chromium binary, empty means the default lookup.
	ExecPath string
}

func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Headless,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(viewportWidth, viewportHeight),
	)
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	// the session outlives the launching call, it ends with Close
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// running no actions starts the browser process
	err := chromedp.Run(tabCtx, chromedp.EmulateViewport(viewportWidth, viewportHeight))
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	return &chromeBrowser{
		tabCtx:      tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
	}, nil
}

type chromeBrowser struct {
	tabCtx      context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// run executes actions in the tab, bounded by both the caller's context and timeout.
func (b *chromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(b.tabCtx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	// assigning location avoids waiting for a load event, which never fires
	// when only the fragment of a single page app url changes
	literal, err := json.Marshal(url)
	if err != nil {
		return err
	}
	var assigned bool
	return b.run(ctx, 30*time.Second, chromedp.Evaluate(
		fmt.Sprintf("(window.location.assign(%s), true)", literal),
		&assigned,
	))
}

const queryAnyScript = `(() => {
	const selectors = %s;
	for (const s of selectors) {
		if (document.querySelector(s) !== null) {
			return s;
		}
	}
	return "";
})()`

func (b *chromeBrowser) WaitAny(ctx context.Context, timeout time.Duration, selectors ...string) (string, error) {
	if len(selectors) == 0 {
		return "", errors.New("no selectors given")
	}
	literal, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	script := fmt.Sprintf(queryAnyScript, literal)

	deadline := time.Now().Add(timeout)
	for {
		var matched string
		err := b.run(ctx, pollInterval*4, chromedp.Evaluate(script, &matched))
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		// evaluation fails while a navigation swaps the document, retry
		if err == nil && matched != "" {
			return matched, nil
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("none of %v appeared within %s", selectors, timeout)
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (b *chromeBrowser) WaitVisible(ctx context.Context, timeout time.Duration, selector string) error {
	err := b.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
	if err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (b *chromeBrowser) SendKeys(ctx context.Context, selector, text string) error {
	return b.run(ctx, 10*time.Second, chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (b *chromeBrowser) Click(ctx context.Context, xpath string) error {
	return b.run(ctx, 10*time.Second, chromedp.Click(xpath, chromedp.BySearch))
}

func (b *chromeBrowser) PageSource(ctx context.Context) (string, error) {
	var html string
	err := b.run(ctx, 10*time.Second, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (b *chromeBrowser) Close() error {
	err := chromedp.Cancel(b.tabCtx)
	b.cancelTab()
	b.cancelAlloc()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
