package lead

import (
	"context"
	"io"
	"time"
)

// PointerActuator moves and clicks the pointer at viewport coordinates.
type PointerActuator interface {
	MoveTo(ctx context.Context, p Point) error
	ClickAt(ctx context.Context, p Point) error
}

// Session is one exclusively owned browser tab.
// Selectors are CSS unless they start with "/", in which case they are XPath.
// Screenshot with an empty selector captures the viewport.
type Session interface {
	PointerActuator
	Open(ctx context.Context, url string) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	Exists(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context) (string, error)
	ScrollBy(ctx context.Context, fraction float64) error
	ScrollToBottom(ctx context.Context) error
	Screenshot(ctx context.Context, selector string) ([]byte, error)
	Click(ctx context.Context, selector string) error
	Origin(ctx context.Context, selector string) (Point, error)
	RunScript(ctx context.Context, code string, out any) error
	Close() error
}

// SessionFactory opens new browser sessions.
type SessionFactory interface {
	NewSession(ctx context.Context) (Session, error)
}

// Throttle delays navigation to a URL's host.
type Throttle interface {
	Wait(ctx context.Context, url string) error
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// ReportStore persists request reports.
type ReportStore interface {
	SaveReport(ctx context.Context, report Report) error
	GetReport(ctx context.Context, id string) (Report, error)
}

// Publisher pushes report notifications to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces report IDs.
type IDGenerator interface {
	NewID() (string, error)
}
