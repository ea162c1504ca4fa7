package wire

import "errors"

// Errors returned by the codec.
var (
	// ErrTruncated is returned when fewer bytes remain than the field being decoded needs.
	// The cursor is left where it was.
	ErrTruncated = errors.New("wire: truncated data")
	// ErrUnsized is returned for string or slice fields whose length cannot be derived
	// from the static shape.
	ErrUnsized = errors.New("wire: field has no static length")
	// ErrUnsupportedType is returned for kinds without a fixed wire width (int, uint,
	// maps, pointers, channels, ...).
	ErrUnsupportedType = errors.New("wire: unsupported type")
	// ErrLength is returned when a value is longer than the length its tag declares.
	ErrLength = errors.New("wire: value exceeds declared length")
	// ErrWidth is returned for header widths other than 1, 2, 4 or 8.
	ErrWidth = errors.New("wire: invalid integer width")
)
