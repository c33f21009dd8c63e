package apktypes

import (
	"regexp"
	"strings"
)

// Build property keys whose values carry the build signing tags.
const (
	FingerprintProp = "ro.build.fingerprint"
	DescriptionProp = "ro.build.description"
)

// Signing tag markers rewritten when a build is re-signed for release.
const (
	TestKeysTag    = "test-keys"
	ReleaseKeysTag = "release-keys"
)

// PatchProperty rewrites the value of prop within a line-oriented property
// file, replacing whole-word occurrences of oldMarker with newMarker. The
// rest of the file is returned byte-identical. found reports whether the
// marker was present in the property value at all - a missing marker is not
// an error, the property may already be in a release state.
func PatchProperty(text string, prop string, oldMarker string, newMarker string) (string, bool) {
	markerRx := regexp.MustCompile(`\b` + regexp.QuoteMeta(oldMarker) + `\b`)

	found := false
	lines := strings.Split(text, "\n")
	for idx, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		if strings.TrimSpace(key) != prop {
			continue
		}
		if !markerRx.MatchString(value) {
			continue
		}
		found = true
		lines[idx] = key + "=" + markerRx.ReplaceAllString(value, newMarker)
	}
	return strings.Join(lines, "\n"), found
}
