// Package browser is the capability surface the attendance engine uses to
// drive the portal. The engine only sees these interfaces; the playwright
// adapter in this package is the production implementation.
package browser

import (
	"context"

	"github.com/attendbot/attend/internal/models"
)

//go:generate go tool mockgen -source=driver.go -destination=mock_driver.go -package=browser

// Driver opens isolated browsing contexts.
type Driver interface {
	// Open launches a browsing context with a single blank page.
	Open(ctx context.Context, opts ContextOptions) (Context, error)

	// Close releases the driver and any contexts that are still open.
	Close() error
}

// Context is one isolated browsing context (its own cookie jar).
type Context interface {
	// Page returns the primary page of the context.
	Page() Page

	// NewPage opens an additional page sharing the context's cookies.
	NewPage(ctx context.Context) (Page, error)

	// Cookies returns the context's current cookies.
	Cookies(ctx context.Context) ([]models.Cookie, error)

	// Close tears the context down, including its browser process.
	Close() error
}

// ContextOptions configure a new browsing context.
type ContextOptions struct {
	// Headless selects an invisible browser. Interactive challenge solving
	// needs Headless=false.
	Headless bool

	UserAgent  string
	Locale     string
	TimezoneID string

	// ExtraHeaders are sent with every request made by the context.
	ExtraHeaders map[string]string
}
