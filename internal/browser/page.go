package browser

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned (wrapped) when a bounded wait expires.
var ErrTimeout = errors.New("browser: timeout")

// Page is a single tab.
type Page interface {
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForURL(ctx context.Context, pattern string, timeout time.Duration) error
	URL() string
	Content(ctx context.Context) (string, error)

	// Locate returns the first element matching selector. The element is
	// resolved lazily.
	Locate(selector string) Element

	// LocateInFrame resolves selector inside the frame matched by frameSelector.
	LocateInFrame(frameSelector, selector string) Element

	// QueryAll returns every element currently matching selector.
	QueryAll(ctx context.Context, selector string) ([]Element, error)

	MoveMouse(ctx context.Context, x, y float64) error

	// Screenshot writes a full-page PNG to path.
	Screenshot(ctx context.Context, path string) error

	// ExpectDownload runs trigger and waits up to timeout for the download it
	// starts.
	ExpectDownload(ctx context.Context, timeout time.Duration, trigger func() error) (Download, error)

	Close() error
}

// Element is a lazily resolved DOM element.
type Element interface {
	// WaitVisible blocks until the element is visible or timeout passes.
	WaitVisible(ctx context.Context, timeout time.Duration) error
	Visible(ctx context.Context, timeout time.Duration) (bool, error)
	Checked(ctx context.Context) (bool, error)
	Fill(ctx context.Context, value string) error
	Click(ctx context.Context) error
	Attribute(ctx context.Context, name string) (string, error)
	Text(ctx context.Context) (string, error)
}

// Download is a file the page started downloading.
type Download interface {
	SuggestedFilename() string
	SaveAs(path string) error
}
