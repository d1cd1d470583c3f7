package media

import "context"

// Selector asks for media-library permission and lets the user pick one
// item. It returns ErrPermissionDenied or ErrSelectionCanceled instead of an
// asset when the user declines.
type Selector interface {
	Select(ctx context.Context, req SelectRequest) (Asset, error)
}
