package apktypes

import (
	. "gopkg.in/check.v1"
)

type BuildPropSuite struct{}

var _ = Suite(&BuildPropSuite{})

const buildProp = `# begin build properties
ro.build.id=MASTER
ro.build.fingerprint=device/vendor/product:version/id/build:test-keys/tags
ro.build.description=product-user 1.0 MASTER 42 test-keys
ro.build.type=user
`

func (s *BuildPropSuite) TestPatchProperty(c *C) {
	patched, found := PatchProperty(buildProp, FingerprintProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(found, Equals, true)
	c.Assert(patched, Matches, `(?s).*ro\.build\.fingerprint=device/vendor/product:version/id/build:release-keys/tags.*`)
	// Only the named property changes.
	c.Assert(patched, Matches, `(?s).*ro\.build\.description=product-user 1\.0 MASTER 42 test-keys.*`)

	patched, found = PatchProperty(patched, DescriptionProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(found, Equals, true)
	c.Assert(patched, Matches, `(?s).*ro\.build\.description=product-user 1\.0 MASTER 42 release-keys.*`)
}

func (s *BuildPropSuite) TestPatchPropertyMarkerAbsent(c *C) {
	const released = "ro.build.fingerprint=device/vendor/product:version/id/build:release-keys/tags\n"
	patched, found := PatchProperty(released, FingerprintProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(found, Equals, false)
	c.Assert(patched, Equals, released)
}

func (s *BuildPropSuite) TestPatchPropertyWholeWordOnly(c *C) {
	const prop = "ro.build.fingerprint=device/vendor/product:version/id/build:latest-keys/tags\n"
	patched, found := PatchProperty(prop, FingerprintProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(found, Equals, false)
	c.Assert(patched, Equals, prop)
}

func (s *BuildPropSuite) TestPatchPropertyMissingProperty(c *C) {
	patched, found := PatchProperty("ro.build.id=MASTER\n", FingerprintProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(found, Equals, false)
	c.Assert(patched, Equals, "ro.build.id=MASTER\n")
}

func (s *BuildPropSuite) TestPatchPropertyPreservesUnrelatedContent(c *C) {
	patched, _ := PatchProperty(buildProp, FingerprintProp, TestKeysTag, ReleaseKeysTag)
	c.Assert(patched, Matches, `(?s)# begin build properties\nro\.build\.id=MASTER\n.*ro\.build\.type=user\n`)
}
