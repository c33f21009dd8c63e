package apktypes

import (
	. "gopkg.in/check.v1"
)

type OtaKeysSuite struct{}

var _ = Suite(&OtaKeysSuite{})

func (s *OtaKeysSuite) TestParseOtaKeys(c *C) {
	mapping := NewKeyMapping()
	mapping.Add("keyA", "relA")

	resolved, err := ParseOtaKeys([]byte("keyA.x509.pem keyB.x509.pem\n"), mapping)
	c.Assert(err, IsNil)
	c.Assert(resolved, DeepEquals, []string{"relA.x509.pem", "keyB.x509.pem"})
}

func (s *OtaKeysSuite) TestParseOtaKeysPreservesOrderAndDuplicates(c *C) {
	resolved, err := ParseOtaKeys([]byte("b.x509.pem a.x509.pem\nb.x509.pem"), NewKeyMapping())
	c.Assert(err, IsNil)
	c.Assert(resolved, DeepEquals, []string{"b.x509.pem", "a.x509.pem", "b.x509.pem"})
}

func (s *OtaKeysSuite) TestParseOtaKeysBadToken(c *C) {
	_, err := ParseOtaKeys([]byte("keyA.x509.pem notakey.der"), NewKeyMapping())
	c.Assert(err, NotNil)
	c.Assert(err, FitsTypeOf, &ErrInvalidDataFormat{})
	c.Assert(err.Error(), Matches, ".*notakey.der.*")
}

func (s *OtaKeysSuite) TestParseOtaKeysEmpty(c *C) {
	resolved, err := ParseOtaKeys([]byte("  \n "), NewKeyMapping())
	c.Assert(err, IsNil)
	c.Assert(resolved, HasLen, 0)
}
