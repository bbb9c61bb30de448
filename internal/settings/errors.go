package settings

import "errors"

var (
	// ErrNotFound is returned when the settings file does not exist.
	ErrNotFound = errors.New("settings file not found")
	// ErrTooLarge is returned when the settings file exceeds maxSettingsFileSize.
	ErrTooLarge = errors.New("settings file too large")
	// ErrUnsupportedFormat is returned for file extensions without a decoder.
	ErrUnsupportedFormat = errors.New("unsupported settings format")
	// ErrMalformed is returned when a settings file cannot be tokenised or decoded.
	ErrMalformed = errors.New("malformed settings file")
)
