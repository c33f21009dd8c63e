package version

// Version is set by the build system.
//
//nolint:gochecknoglobals
var (
	Name        = "apk-resigman"
	Version     = "development"
	Description = "Re-sign the APKs in an Android target-files package with release keys"
)
