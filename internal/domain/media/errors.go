package media

import "errors"

var (
	// ErrPermissionDenied means access to the media library was refused.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrSelectionCanceled is a neutral outcome: the user closed the picker.
	ErrSelectionCanceled = errors.New("media selection canceled")

	// ErrUnsupportedMedia means the picked item does not match the kind or bounds.
	ErrUnsupportedMedia = errors.New("unsupported media")
)
