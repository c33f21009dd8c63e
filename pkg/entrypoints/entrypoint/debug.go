package entrypoint

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/fatih/color"
	"github.com/goccy/go-yaml"
	"github.com/samber/lo"
	"github.com/wrouesnel/apk-resigman/pkg/apktypes"
	"github.com/wrouesnel/apk-resigman/pkg/resignman"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals
type CertmapConfig struct {
	Format             string   `help:"Output format (${enum})" enum:"console,json,yaml" default:"console"`
	ExtraApks          []string `short:"e" help:"Extra name-list=key assignments (comma separated names)" placeholder:"NAMES=KEY"`
	KeyMapping         []string `short:"k" help:"Remap a source key stem to a replacement stem" placeholder:"SRC=DST"`
	DefaultKeyMappings string   `short:"d" help:"Directory which expands to the well-known test key remappings"`
	Input              string   `arg:"" help:"Input target-files package" type:"existingfile"`
}

//nolint:gochecknoglobals
type OtakeysConfig struct {
	KeyMapping         []string `short:"k" help:"Remap a source key stem to a replacement stem" placeholder:"SRC=DST"`
	DefaultKeyMappings string   `short:"d" help:"Directory which expands to the well-known test key remappings"`
	Input              string   `arg:"" help:"Input target-files package" type:"existingfile"`
}

// DebugCertmap prints the certificate map a signing run would resolve, without
// touching any keys or passphrases.
func DebugCertmap(cmdCtx *CmdContext) error {
	keyMapping, err := buildKeyMapping(CLI.Debug.Certmap.DefaultKeyMappings, CLI.Debug.Certmap.KeyMapping)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}
	extraApks, err := parseExtraApks(CLI.Debug.Certmap.ExtraApks)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}

	input, closer, err := openTargetFiles(cmdCtx, CLI.Debug.Certmap.Input)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}
	defer closer.Close()

	content, found, err := readArchiveEntry(input, resignman.ApkCertsEntry)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}
	if !found {
		return errors.Join(&ErrCommand{}, &resignman.ErrMissingEntry{Path: resignman.ApkCertsEntry})
	}

	certmap, err := apktypes.ParseApkCerts(bytes.NewReader(content), keyMapping, extraApks)
	if err != nil {
		cmdCtx.logger.Error("Could not parse certificate manifest", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	switch CLI.Debug.Certmap.Format {
	case "json":
		output, err := json.MarshalIndent(certmap, "", "  ")
		if err != nil {
			return errors.Join(&ErrCommand{}, err)
		}
		cmdCtx.stdOut.Write(output)
		cmdCtx.stdOut.Write([]byte("\n"))

	case "yaml":
		output, err := yaml.Marshal(certmap)
		if err != nil {
			return errors.Join(&ErrCommand{}, err)
		}
		cmdCtx.stdOut.Write(output)

	default:
		names := lo.Keys(certmap)
		sort.Strings(names)
		for _, name := range names {
			stem := certmap[name]
			if stem == "" {
				stem = color.YellowString("(unsigned)")
			}
			cmdCtx.stdOut.Write([]byte(fmt.Sprintf("%s:%s\n", color.CyanString(name), stem)))
		}
	}
	return nil
}

// DebugOtakeys prints the resolved OTA trust key list in manifest order.
func DebugOtakeys(cmdCtx *CmdContext) error {
	keyMapping, err := buildKeyMapping(CLI.Debug.Otakeys.DefaultKeyMappings, CLI.Debug.Otakeys.KeyMapping)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}

	input, closer, err := openTargetFiles(cmdCtx, CLI.Debug.Otakeys.Input)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}
	defer closer.Close()

	content, found, err := readArchiveEntry(input, resignman.OtaKeysEntry)
	if err != nil {
		return errors.Join(&ErrCommand{}, err)
	}
	if !found {
		return errors.Join(&ErrCommand{}, &resignman.ErrMissingEntry{Path: resignman.OtaKeysEntry})
	}

	resolved, err := apktypes.ParseOtaKeys(content, keyMapping)
	if err != nil {
		cmdCtx.logger.Error("Could not parse OTA trust manifest", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	for _, key := range resolved {
		cmdCtx.stdOut.Write([]byte(key))
		cmdCtx.stdOut.Write([]byte("\n"))
	}
	return nil
}
