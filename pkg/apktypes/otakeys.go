package apktypes

import (
	"strings"
)

// ParseOtaKeys parses the whitespace separated OTA trust manifest and resolves
// each key stem through mapping, re-appending the certificate suffix. Manifest
// order is preserved, duplicates included - the derived trust artifacts are
// order sensitive.
func ParseOtaKeys(text []byte, mapping *KeyMapping) ([]string, error) {
	resolved := []string{}
	for _, token := range strings.Fields(string(text)) {
		stem, ok := strings.CutSuffix(token, CertSuffix)
		if !ok || stem == "" {
			return nil, &ErrInvalidDataFormat{Source: token}
		}
		resolved = append(resolved, mapping.Lookup(stem)+CertSuffix)
	}
	return resolved, nil
}
