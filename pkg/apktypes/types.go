package apktypes

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

type ErrInvalidDataFormat struct {
	Source string
}

func (e ErrInvalidDataFormat) Error() string {
	return fmt.Sprintf("invalid data format: %s", e.Source)
}

// CertSuffix is the extension carried by public certificate files in key
// manifests.
const CertSuffix = ".x509.pem"

// PrivateKeySuffix is the extension carried by private key files in the
// certificate assignment manifest.
const PrivateKeySuffix = ".pk8"

// Well-known test key stems which the default-directory shortcut remaps.
const (
	TestKeyStem     = "build/target/product/security/testkey"
	MediaKeyStem    = "build/target/product/security/media"
	SharedKeyStem   = "build/target/product/security/shared"
	PlatformKeyStem = "build/target/product/security/platform"
)

// certEntryRx matches one certificate assignment manifest line. The stems of
// the certificate and private key fields are captured separately so mismatches
// can be rejected.
var certEntryRx = regexp.MustCompile(`^name="([^"]+)"\s+certificate="([^"]+)\.x509\.pem"\s+private_key="([^"]+)\.pk8"$`)

// CertEntry is one parsed line of the certificate assignment manifest. KeyStem
// holds the stem exactly as written - remapping through a KeyMapping happens
// at CertificateMap construction.
type CertEntry struct {
	Name    string
	KeyStem string
}

func (c *CertEntry) UnmarshalText(text []byte) error {
	m := certEntryRx.FindStringSubmatch(string(text))
	if m == nil {
		return &ErrInvalidDataFormat{Source: string(text)}
	}
	if m[2] != m[3] {
		return &ErrInvalidDataFormat{Source: string(text)}
	}
	c.Name = m[1]
	c.KeyStem = m[2]
	return nil
}

func (c *CertEntry) MarshalText() (text []byte, err error) {
	return []byte(c.String()), nil
}

func (c *CertEntry) String() string {
	if c.Name == "" {
		return ""
	}
	return fmt.Sprintf("name=%q certificate=%q private_key=%q",
		c.Name, c.KeyStem+CertSuffix, c.KeyStem+PrivateKeySuffix)
}

// KeyMapping is the source to destination key stem remapping table. Lookups
// are total: an unmapped stem resolves to itself.
type KeyMapping struct {
	pairs map[string]string
}

func NewKeyMapping() *KeyMapping {
	return &KeyMapping{pairs: map[string]string{}}
}

// Add inserts a remapping pair. A later Add for the same source replaces the
// earlier destination; pairs for other sources are unaffected.
func (k *KeyMapping) Add(source string, destination string) {
	k.pairs[source] = destination
}

// AddDefaultDirectory expands the well-known test key stems to release key
// stems under dir.
func (k *KeyMapping) AddDefaultDirectory(dir string) {
	dir = strings.TrimSuffix(dir, "/")
	k.Add(TestKeyStem, dir+"/releasekey")
	k.Add(MediaKeyStem, dir+"/media")
	k.Add(SharedKeyStem, dir+"/shared")
	k.Add(PlatformKeyStem, dir+"/platform")
}

// Lookup resolves a key stem through the mapping table, returning the stem
// unchanged when no pair exists for it.
func (k *KeyMapping) Lookup(name string) string {
	if mapped, found := k.pairs[name]; found {
		return mapped
	}
	return name
}

func (k *KeyMapping) Len() int {
	return len(k.pairs)
}

// CertificateMap maps APK basenames to the key stem used to sign them. An
// empty stem marks a package which is deliberately shipped unsigned.
type CertificateMap map[string]string

// DistinctKeys returns the sorted set of key stems which will actually be
// used for signing. Unsigned entries are dropped.
func (c CertificateMap) DistinctKeys() []string {
	keys := mapset.NewSet[string]()
	for _, stem := range c {
		if stem == "" {
			continue
		}
		keys.Add(stem)
	}
	result := keys.ToSlice()
	sort.Strings(result)
	return result
}
