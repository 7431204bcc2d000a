package tivo

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"archivist/internal/services"
)

// Locator resolves a recording identifier to the URL the device serves it
// from.
type Locator interface {
	Locate(ctx context.Context, recordingID string) (string, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context, recordingID string) (string, error)

func (f LocatorFunc) Locate(ctx context.Context, recordingID string) (string, error) {
	return f(ctx, recordingID)
}

// DirectLocator accepts identifiers that already are http or https URLs.
type DirectLocator struct{}

func (DirectLocator) Locate(_ context.Context, recordingID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(recordingID))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", services.Wrap(services.ErrNotFound, "connecting", "locate recording",
			"The recording's download address is not valid",
			fmt.Errorf("not a download URL: %q", recordingID))
	}
	return u.String(), nil
}
