package apktypes

import (
	"strings"

	. "gopkg.in/check.v1"
)

type ApkCertsSuite struct{}

var _ = Suite(&ApkCertsSuite{})

const apkCerts = `name="Phone.apk" certificate="build/target/product/security/platform.x509.pem" private_key="build/target/product/security/platform.pk8"

name="Browser.apk" certificate="build/target/product/security/testkey.x509.pem" private_key="build/target/product/security/testkey.pk8"
name="Media.apk" certificate="build/target/product/security/media.x509.pem" private_key="build/target/product/security/media.pk8"
`

func (s *ApkCertsSuite) TestParseApkCerts(c *C) {
	mapping := NewKeyMapping()
	mapping.AddDefaultDirectory("vendor/keys")

	certmap, err := ParseApkCerts(strings.NewReader(apkCerts), mapping, nil)
	c.Assert(err, IsNil)
	c.Assert(certmap, DeepEquals, CertificateMap{
		"Phone.apk":   "vendor/keys/platform",
		"Browser.apk": "vendor/keys/releasekey",
		"Media.apk":   "vendor/keys/media",
	})
}

func (s *ApkCertsSuite) TestParseApkCertsIdentityMapping(c *C) {
	certmap, err := ParseApkCerts(strings.NewReader(apkCerts), NewKeyMapping(), nil)
	c.Assert(err, IsNil)
	c.Assert(certmap["Phone.apk"], Equals, "build/target/product/security/platform")
}

func (s *ApkCertsSuite) TestParseApkCertsOverridesWin(c *C) {
	overrides := map[string]string{
		"Browser.apk": "vendor/keys/browser",
		"Extra.apk":   "vendor/keys/extra",
	}
	certmap, err := ParseApkCerts(strings.NewReader(apkCerts), NewKeyMapping(), overrides)
	c.Assert(err, IsNil)
	c.Assert(certmap["Browser.apk"], Equals, "vendor/keys/browser")
	c.Assert(certmap["Extra.apk"], Equals, "vendor/keys/extra")
	c.Assert(certmap, HasLen, 4)
}

func (s *ApkCertsSuite) TestParseApkCertsBadLine(c *C) {
	const bad = `name="x" certificate="y.x509.pem" private_key="z.pk8"`
	_, err := ParseApkCerts(strings.NewReader(bad), NewKeyMapping(), nil)
	c.Assert(err, NotNil)
	c.Assert(err, FitsTypeOf, &ErrInvalidDataFormat{})
}
