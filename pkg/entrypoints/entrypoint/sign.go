package entrypoint

import (
	"archive/zip"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/1lann/countwriter"
	"github.com/chigopher/pathlib"
	"github.com/ncruces/go-strftime"
	"github.com/spf13/afero"
	"github.com/wrouesnel/apk-resigman/pkg/resignman"
	"github.com/wrouesnel/apk-resigman/version"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

//nolint:gochecknoglobals
type SignConfig struct {
	ExtraApks          []string `short:"e" help:"Extra name-list=key assignments (comma separated names)" placeholder:"NAMES=KEY"`
	KeyMapping         []string `short:"k" help:"Remap a source key stem to a replacement stem" placeholder:"SRC=DST"`
	DefaultKeyMappings string   `short:"d" help:"Directory which expands to the well-known test key remappings"`
	ReplaceOtaKeys     bool     `short:"o" help:"Regenerate the OTA trust artifacts from the trust manifest"`
	Parallelism        int      `help:"Concurrent signer invocations (0 selects the CPU count)" default:"0"`
	Backup             bool     `help:"Keep a timestamped backup of an existing output package" default:"false"`
	Input              string   `arg:"" help:"Input target-files package" type:"existingfile"`
	Output             string   `arg:"" help:"Output target-files package"`
}

// Sign implements re-signing a target-files package with release keys.
func Sign(cmdCtx *CmdContext) error {
	l := cmdCtx.logger

	keyMapping, err := buildKeyMapping(CLI.Sign.DefaultKeyMappings, CLI.Sign.KeyMapping)
	if err != nil {
		l.Error("Bad key mapping on command line", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	extraApks, err := parseExtraApks(CLI.Sign.ExtraApks)
	if err != nil {
		l.Error("Bad extra APK assignment on command line", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	parallelism := CLI.Sign.Parallelism
	if parallelism < 1 {
		parallelism = runtime.NumCPU()
	}
	l.Debug("Run configuration",
		zap.Int("key_mappings", keyMapping.Len()),
		zap.Int("extra_apks", len(extraApks)),
		zap.Int("parallelism", parallelism))

	input, closer, err := openTargetFiles(cmdCtx, CLI.Sign.Input)
	if err != nil {
		l.Error("Could not open input package", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}
	defer closer.Close()

	manager := resignman.NewReSignManager(l, resignman.Config{
		KeyMapping: keyMapping,
		ExtraApks:  extraApks,
		Signer: &resignman.SignapkTool{
			JavaPath:  CLI.JavaPath,
			JarPath:   CLI.SignapkJar,
			Alignment: 4,
		},
		Digester: &resignman.DumpkeyTool{
			JavaPath: CLI.JavaPath,
			JarPath:  CLI.DumpkeyJar,
		},
		Passphrases: &resignman.TerminalPassphraseSource{
			Prompt:    cmdCtx.stdErr,
			EnvPrefix: strings.ToUpper(strings.ReplaceAll(version.Name, "-", "_")),
		},
		Parallelism: parallelism,
		Status:      cmdCtx.stdOut,
	})

	// Passphrases for every distinct key are collected here, before any
	// signing starts.
	if err := manager.LoadCertificates(input); err != nil {
		l.Error("Could not load certificate manifest", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	outputPath := pathlib.NewPath(CLI.Sign.Output, pathlib.PathWithAfero(cmdCtx.fs)).Clean()
	tempPath := outputPath.Parent().Join(outputPath.Name() + ".signing")

	if CLI.Sign.Backup {
		if exists, _ := afero.Exists(cmdCtx.fs, outputPath.String()); exists {
			backupPath := fmt.Sprintf("%s.%s", outputPath.String(),
				strftime.Format("%Y-%m-%d-%H-%M-%S", time.Now()))
			l.Info("Backing up existing output package", zap.String("backup_path", backupPath))
			if err := cmdCtx.fs.Rename(outputPath.String(), backupPath); err != nil {
				return errors.Join(&ErrCommand{}, err)
			}
		}
	}

	outFh, err := cmdCtx.fs.Create(tempPath.String())
	if err != nil {
		l.Error("Could not create output package", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	counted := countwriter.NewWriter(outFh)
	outputZip := zip.NewWriter(counted)

	err = manager.SignApks(cmdCtx.ctx, input, outputZip)
	if err == nil && CLI.Sign.ReplaceOtaKeys {
		err = manager.ReplaceOtaKeys(cmdCtx.ctx, input, outputZip)
	}
	err = multierr.Combine(err, outputZip.Close(), outFh.Close())

	if err != nil {
		// The partial archive must not survive as the output artifact.
		_ = cmdCtx.fs.Remove(tempPath.String())
		return errors.Join(&ErrCommand{}, err)
	}

	if err := cmdCtx.fs.Rename(tempPath.String(), outputPath.String()); err != nil {
		l.Error("Could not move finished package into place", zap.Error(err))
		return errors.Join(&ErrCommand{}, err)
	}

	l.Info("Re-signing complete",
		zap.String("output", outputPath.String()),
		zap.Uint64("output_bytes", counted.Count()))
	return nil
}
