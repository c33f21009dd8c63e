package resignman

import (
	. "gopkg.in/check.v1"
)

type PassphraseSuite struct{}

var _ = Suite(&PassphraseSuite{})

func (s *PassphraseSuite) TestCacheRequestsOnce(c *C) {
	source := &countingSource{
		passphrases: StaticPassphraseSource{"keys/releasekey": "pw"},
		requests:    map[string]int{},
	}
	cache := NewPassphraseCache(source)

	for range 3 {
		passphrase, err := cache.Get("keys/releasekey")
		c.Assert(err, IsNil)
		c.Assert(passphrase, Equals, "pw")
	}
	c.Assert(source.requests["keys/releasekey"], Equals, 1)
}

func (s *PassphraseSuite) TestCollectAllPrimesCache(c *C) {
	source := &countingSource{
		passphrases: StaticPassphraseSource{"a": "pw-a", "b": "pw-b"},
		requests:    map[string]int{},
	}
	cache := NewPassphraseCache(source)
	c.Assert(cache.CollectAll([]string{"a", "b"}), IsNil)

	// Later lookups are cache hits.
	_, err := cache.Get("a")
	c.Assert(err, IsNil)
	_, err = cache.Get("b")
	c.Assert(err, IsNil)
	c.Assert(source.requests, DeepEquals, map[string]int{"a": 1, "b": 1})
}

func (s *PassphraseSuite) TestUnknownKeyIsAnError(c *C) {
	cache := NewPassphraseCache(StaticPassphraseSource{})
	_, err := cache.Get("keys/unknown")
	c.Assert(err, NotNil)
	c.Assert(err, FitsTypeOf, &ErrPassphrase{})
}

func (s *PassphraseSuite) TestTerminalSourceEnvVarName(c *C) {
	source := &TerminalPassphraseSource{EnvPrefix: "APK_RESIGMAN"}
	c.Assert(source.envVarName("vendor/keys/release-key"), Equals,
		"APK_RESIGMAN_PASSPHRASE_VENDOR_KEYS_RELEASE_KEY")
}
