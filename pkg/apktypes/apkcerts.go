package apktypes

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// ParseApkCerts reads the certificate assignment manifest and produces a
// CertificateMap with every stem resolved through mapping. overrides are
// name to key stem assignments from the command line: they always win over
// manifest entries for the same name and are not remapped.
func ParseApkCerts(reader io.Reader, mapping *KeyMapping, overrides map[string]string) (CertificateMap, error) {
	certmap := CertificateMap{}

	bio := bufio.NewScanner(reader)
	for bio.Scan() {
		line := strings.TrimSpace(bio.Text())
		if line == "" {
			continue
		}
		entry := CertEntry{}
		if err := entry.UnmarshalText([]byte(line)); err != nil {
			return nil, err
		}
		certmap[entry.Name] = mapping.Lookup(entry.KeyStem)
	}
	if err := bio.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	for name, stem := range overrides {
		certmap[name] = stem
	}

	return certmap, nil
}
