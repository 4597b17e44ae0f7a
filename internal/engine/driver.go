package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Driver owns a browser process and hands out exclusive page sessions. The
// engine is written against this capability set rather than any specific
// automation product.
type Driver interface {
	NewSession(ctx context.Context) (Session, error)
	Close() error
}

// Session is one exclusive page for the lifetime of a run. It must be
// released on every exit path.
type Session interface {
	Navigate(url string, timeout time.Duration) error
	Locate(selector string) Element
	Wait(d time.Duration)
	Screenshot() ([]byte, error)
	Close() error
}

// Element is a handle to zero or more matched page regions. Handles are
// ephemeral and valid only within the current page load.
type Element interface {
	Count() (int, error)
	Nth(i int) Element
	First() Element
	Locate(selector string) Element
	Text() (string, error)
	Attribute(name string) (string, error)
	Click() error
	SetValue(value string) error
}

// PlaywrightDriver implements Driver on a Chromium browser.
type PlaywrightDriver struct {
	pw      *playwright.Playwright
	browser playwright.Browser
}

// DriverOptions configures the browser launch.
type DriverOptions struct {
	Headless bool
	SlowMo   time.Duration
}

// NewPlaywrightDriver starts Playwright and launches a browser.
func NewPlaywrightDriver(opts DriverOptions) (*PlaywrightDriver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("starting playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
	}
	if opts.SlowMo > 0 {
		launchOpts.SlowMo = playwright.Float(float64(opts.SlowMo.Milliseconds()))
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("launching browser: %w", err)
	}

	return &PlaywrightDriver{pw: pw, browser: browser}, nil
}

// NewSession creates a fresh browser context and page.
func (d *PlaywrightDriver) NewSession(_ context.Context) (Session, error) {
	browserCtx, err := d.browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  1280,
			Height: 900,
		},
		UserAgent: playwright.String("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	})
	if err != nil {
		return nil, fmt.Errorf("creating browser context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		return nil, fmt.Errorf("creating page: %w", err)
	}

	return &playwrightSession{ctx: browserCtx, page: page}, nil
}

// Close shuts down the browser and the Playwright process.
func (d *PlaywrightDriver) Close() error {
	if d.browser != nil {
		d.browser.Close()
	}
	if d.pw != nil {
		return d.pw.Stop()
	}
	return nil
}

type playwrightSession struct {
	ctx  playwright.BrowserContext
	page playwright.Page
}

func (s *playwrightSession) Navigate(url string, timeout time.Duration) error {
	_, err := s.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return fmt.Errorf("navigating to %s: %w", url, err)
	}
	return nil
}

func (s *playwrightSession) Locate(selector string) Element {
	return playwrightElement{loc: s.page.Locator(selector)}
}

func (s *playwrightSession) Wait(d time.Duration) {
	s.page.WaitForTimeout(float64(d.Milliseconds()))
}

func (s *playwrightSession) Screenshot() ([]byte, error) {
	return s.page.Screenshot(playwright.PageScreenshotOptions{
		FullPage: playwright.Bool(true),
		Type:     playwright.ScreenshotTypeJpeg,
	})
}

func (s *playwrightSession) Close() error {
	s.page.Close()
	return s.ctx.Close()
}

type playwrightElement struct {
	loc playwright.Locator
}

func (e playwrightElement) Count() (int, error) {
	return e.loc.Count()
}

func (e playwrightElement) Nth(i int) Element {
	return playwrightElement{loc: e.loc.Nth(i)}
}

func (e playwrightElement) First() Element {
	return playwrightElement{loc: e.loc.First()}
}

func (e playwrightElement) Locate(selector string) Element {
	return playwrightElement{loc: e.loc.Locator(selector)}
}

func (e playwrightElement) Text() (string, error) {
	return e.loc.InnerText()
}

func (e playwrightElement) Attribute(name string) (string, error) {
	return e.loc.GetAttribute(name)
}

func (e playwrightElement) Click() error {
	return e.loc.Click()
}

func (e playwrightElement) SetValue(value string) error {
	return e.loc.Fill(value)
}
