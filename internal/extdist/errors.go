package extdist

import "errors"

var (
	// ErrExtensionNotFound is returned when the distributor page offers no
	// bundle for the requested extension and release.
	ErrExtensionNotFound = errors.New("extension not found; the name may be wrong, there may be no release for this MediaWiki version (an older one could still work), or the extension is not shipped through the ExtensionDistributor")

	// ErrUnsafeArchive is returned when a bundle entry would be written outside
	// the target directory.
	ErrUnsafeArchive = errors.New("archive entry escapes target directory")
)
