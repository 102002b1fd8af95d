// Package browser drives the user's Chrome over the DevTools protocol: it
// lists tabs, navigates them, injects the page adapter and relays messages
// between the adapter and the worker.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker"
	"github.com/licanhuadev/Grok-Imagine-Assistant/internal/worker/domain"
)

// ErrTabNotFound is returned for a tab id that is no longer open
var ErrTabNotFound = errors.New("tab not found")

// Config holds browser connection configuration
type Config struct {
	RemoteURL     string // http://host:port or a ws:// browser endpoint
	AdapterScript string // path of the page adapter script
	MessageBuffer int
}

// Browser is a connection to a running Chrome
type Browser struct {
	logger  *slog.Logger
	adapter string

	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	mu   sync.Mutex
	tabs map[target.ID]context.Context

	msgs chan domain.AdapterMessage
}

// New connects to the browser at cfg.RemoteURL
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*Browser, error) {
	adapter, err := loadAdapter(cfg.AdapterScript)
	if err != nil {
		return nil, err
	}

	buffer := cfg.MessageBuffer
	if buffer <= 0 {
		buffer = 64
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), cfg.RemoteURL)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	b := &Browser{
		logger:        logger,
		adapter:       adapter,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		tabs:          make(map[target.ID]context.Context),
		msgs:          make(chan domain.AdapterMessage, buffer),
	}

	tabs, err := b.Tabs(ctx)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("failed to connect to browser at %s: %w", cfg.RemoteURL, err)
	}

	logger.Info("Connected to browser",
		slog.String("remote_url", cfg.RemoteURL),
		slog.Int("tabs", len(tabs)),
	)
	return b, nil
}

func loadAdapter(path string) (string, error) {
	if path == "" {
		return "", errors.New("adapter script path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read adapter script: %w", err)
	}
	return string(data), nil
}

// Close drops the browser connection. Tabs stay open.
func (b *Browser) Close() {
	b.browserCancel()
	b.allocCancel()
}

// Messages delivers adapter messages from every tab in arrival order
func (b *Browser) Messages() <-chan domain.AdapterMessage {
	return b.msgs
}

// Tabs lists the open pages
func (b *Browser) Tabs(ctx context.Context) ([]worker.Tab, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	infos, err := chromedp.Targets(b.browserCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to list targets: %w", err)
	}

	tabs := pageTabs(infos)
	b.forgetClosed(tabs)
	return tabs, nil
}

func pageTabs(infos []*target.Info) []worker.Tab {
	tabs := make([]worker.Tab, 0, len(infos))
	for _, info := range infos {
		if info == nil || info.Type != "page" {
			continue
		}
		tabs = append(tabs, worker.Tab{ID: string(info.TargetID), URL: info.URL})
	}
	return tabs
}

func (b *Browser) forgetClosed(open []worker.Tab) {
	ids := make(map[target.ID]struct{}, len(open))
	for _, t := range open {
		ids[target.ID(t.ID)] = struct{}{}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for id := range b.tabs {
		if _, ok := ids[id]; !ok {
			delete(b.tabs, id)
		}
	}
}

// Navigate points tab at url without waiting for it to load
func (b *Browser) Navigate(ctx context.Context, tabID, url string) error {
	return b.run(ctx, tabID, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("navigation failed: %s", errorText)
		}
		return nil
	}))
}

// TabReady reports whether the tab's document has finished loading
func (b *Browser) TabReady(ctx context.Context, tabID string) (bool, error) {
	var state string
	if err := b.run(ctx, tabID, chromedp.Evaluate(`document.readyState`, &state)); err != nil {
		return false, err
	}
	return state == "complete", nil
}

// Ping succeeds when the adapter in the tab answers
func (b *Browser) Ping(ctx context.Context, tabID string) error {
	var resp pingResponse
	if err := b.run(ctx, tabID, chromedp.Evaluate(dispatchExpression([]byte(pingMessage)), &resp, awaitPromise)); err != nil {
		return err
	}
	return resp.check()
}

// Inject installs the bridge and the adapter script in the tab
func (b *Browser) Inject(ctx context.Context, tabID string) error {
	b.logger.Info("Injecting adapter script", slog.String("tab_id", tabID))
	return b.run(ctx, tabID,
		chromedp.Evaluate(bridgeScript, nil),
		chromedp.Evaluate(b.adapter, nil),
	)
}

// Send hands a start message to the adapter
func (b *Browser) Send(ctx context.Context, tabID string, msg domain.StartMessage) error {
	payload, err := startPayload(msg)
	if err != nil {
		return err
	}
	var resp any
	return b.run(ctx, tabID, chromedp.Evaluate(dispatchExpression(payload), &resp, awaitPromise))
}

// run executes actions in the tab, bounded by the caller's ctx
func (b *Browser) run(ctx context.Context, tabID string, actions ...chromedp.Action) error {
	tabCtx, err := b.attach(tabID)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(tabCtx)
	stop := context.AfterFunc(ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()

	return chromedp.Run(runCtx, actions...)
}

// attach returns the chromedp context for tabID, attaching on first use.
// Tab contexts are never cancelled: chromedp closes a tab when its context
// ends.
func (b *Browser) attach(tabID string) (context.Context, error) {
	id := target.ID(tabID)

	b.mu.Lock()
	defer b.mu.Unlock()

	if tabCtx, ok := b.tabs[id]; ok {
		return tabCtx, nil
	}
	if err := b.browserCtx.Err(); err != nil {
		return nil, err
	}

	tabCtx, _ := chromedp.NewContext(context.WithoutCancel(b.browserCtx), chromedp.WithTargetID(id))
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		if e, ok := ev.(*runtime.EventBindingCalled); ok && e.Name == bindingName {
			b.deliver(tabID, e.Payload)
		}
	})

	err := chromedp.Run(tabCtx,
		runtime.AddBinding(bindingName),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(bridgeScript).Do(ctx)
			return err
		}),
	)
	if err != nil {
		if strings.Contains(err.Error(), "No target with given id") {
			return nil, fmt.Errorf("%w: %s", ErrTabNotFound, tabID)
		}
		return nil, fmt.Errorf("failed to attach to tab: %w", err)
	}

	b.tabs[id] = tabCtx
	b.logger.Debug("Attached to tab", slog.String("tab_id", tabID))
	return tabCtx, nil
}

// deliver decodes a message sent by the adapter and queues it
func (b *Browser) deliver(tabID, payload string) {
	msg, err := domain.DecodeAdapterMessage([]byte(payload))
	if err != nil {
		b.logger.Warn("Dropping adapter message",
			slog.String("tab_id", tabID),
			slog.Any("error", err),
		)
		return
	}

	select {
	case b.msgs <- msg:
	case <-b.browserCtx.Done():
	}
}
