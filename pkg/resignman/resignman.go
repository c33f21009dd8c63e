package resignman

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mholt/archives"
	"github.com/samber/lo"
	"github.com/wrouesnel/apk-resigman/pkg/apktypes"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Fixed entry paths within a target-files package.
const (
	ApkCertsEntry            = "META/apkcerts.txt"
	OtaKeysEntry             = "META/otakeys.txt"
	SystemBuildPropEntry     = "SYSTEM/build.prop"
	RecoveryDefaultPropEntry = "RECOVERY/RAMDISK/default.prop"
	RecoveryKeysEntry        = "RECOVERY/RAMDISK/res/keys"
	OtaCertsEntry            = "SYSTEM/etc/security/otacerts.zip"
)

// ApkSuffix marks signable package entries.
const ApkSuffix = ".apk"

type ErrMissingEntry struct {
	Path string
}

func (e ErrMissingEntry) Error() string {
	return fmt.Sprintf("required archive entry missing: %s", e.Path)
}

// Config carries the collaborators and options for a re-signing run.
type Config struct {
	// KeyMapping remaps test key stems to release key stems.
	KeyMapping *apktypes.KeyMapping
	// ExtraApks are command line name to key assignments which always win
	// over the certificate manifest.
	ExtraApks map[string]string
	// Signer and Digester are the external tool collaborators.
	Signer   SignerTool
	Digester DigestTool
	// Passphrases is the credential source backing the passphrase cache.
	Passphrases PassphraseSource
	// Parallelism bounds concurrent signer invocations. Values below 1 are
	// treated as 1.
	Parallelism int
	// Status receives the human readable per-entry listing.
	Status io.Writer
}

// ReSigMan drives one re-signing run over a target-files package. It is not
// safe for use by multiple goroutines.
type ReSigMan struct {
	logger      *zap.Logger
	keyMapping  *apktypes.KeyMapping
	extraApks   map[string]string
	certMap     apktypes.CertificateMap
	passphrases *PassphraseCache
	signer      SignerTool
	digester    DigestTool
	parallelism int
	status      io.Writer
}

// NewReSignManager initializes a manager from config. LoadCertificates must
// be called before SignApks.
func NewReSignManager(logger *zap.Logger, config Config) *ReSigMan {
	parallelism := config.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	status := config.Status
	if status == nil {
		status = io.Discard
	}
	keyMapping := config.KeyMapping
	if keyMapping == nil {
		keyMapping = apktypes.NewKeyMapping()
	}
	return &ReSigMan{
		logger:      logger,
		keyMapping:  keyMapping,
		extraApks:   config.ExtraApks,
		passphrases: NewPassphraseCache(config.Passphrases),
		signer:      config.Signer,
		digester:    config.Digester,
		parallelism: parallelism,
		status:      status,
	}
}

// findEntry locates a named entry in the input archive.
func findEntry(input *zip.Reader, name string) *zip.File {
	for _, file := range input.File {
		if file.Name == name {
			return file
		}
	}
	return nil
}

func readEntry(file *zip.File) ([]byte, error) {
	rd, err := file.Open()
	if err != nil {
		return nil, err
	}
	defer rd.Close()
	return io.ReadAll(rd)
}

// copyEntryRaw copies one entry to the output archive without recompression,
// preserving the compressed payload and all declared metadata.
func copyEntryRaw(output *zip.Writer, file *zip.File) error {
	rd, err := file.OpenRaw()
	if err != nil {
		return err
	}
	header := file.FileHeader
	wr, err := output.CreateRaw(&header)
	if err != nil {
		return err
	}
	_, err = io.Copy(wr, rd)
	return err
}

// writeEntry writes replacement content under the original entry's metadata.
// Sizes and checksums are recomputed by the archive writer.
func writeEntry(output *zip.Writer, file *zip.File, content []byte) error {
	header := file.FileHeader
	header.CRC32 = 0
	header.CompressedSize64 = 0
	header.UncompressedSize64 = 0
	wr, err := output.CreateHeader(&header)
	if err != nil {
		return err
	}
	_, err = wr.Write(content)
	return err
}

// LoadCertificates parses the certificate assignment manifest out of the
// input archive and batch-acquires the passphrases for every distinct
// signing key before any signing starts.
func (m *ReSigMan) LoadCertificates(input *zip.Reader) error {
	manifest := findEntry(input, ApkCertsEntry)
	if manifest == nil {
		return &ErrMissingEntry{Path: ApkCertsEntry}
	}
	rd, err := manifest.Open()
	if err != nil {
		return err
	}
	defer rd.Close()

	certMap, err := apktypes.ParseApkCerts(rd, m.keyMapping, m.extraApks)
	if err != nil {
		return err
	}
	m.certMap = certMap

	distinctKeys := certMap.DistinctKeys()
	m.logger.Debug("Certificate map loaded",
		zap.Int("packages", len(certMap)),
		zap.Int("distinct_keys", len(distinctKeys)))
	return m.passphrases.CollectAll(distinctKeys)
}

// CertificateMap returns the loaded certificate map.
func (m *ReSigMan) CertificateMap() apktypes.CertificateMap {
	return m.certMap
}

// signJob tracks one package entry from payload read to signed output.
type signJob struct {
	name    string
	keyStem string
	content []byte
	signed  []byte
}

// SignApks streams every entry of the input archive to the output archive in
// input order. Package entries with a resolved key are re-signed, the build
// property entries have their signing tags rewritten, and everything else is
// copied verbatim.
func (m *ReSigMan) SignApks(ctx context.Context, input *zip.Reader, output *zip.Writer) error {
	jobs := map[int]*signJob{}
	widest := 0
	for idx, file := range input.File {
		if !strings.HasSuffix(file.Name, ApkSuffix) {
			continue
		}
		name := path.Base(file.Name)
		if len(name) > widest {
			widest = len(name)
		}
		keyStem := m.certMap[name]
		if keyStem == "" {
			continue
		}
		content, err := readEntry(file)
		if err != nil {
			return err
		}
		jobs[idx] = &signJob{name: name, keyStem: keyStem, content: content}
	}

	if err := m.signAll(ctx, lo.Values(jobs)); err != nil {
		return err
	}

	for idx, file := range input.File {
		switch {
		case strings.HasSuffix(file.Name, ApkSuffix):
			name := path.Base(file.Name)
			job := jobs[idx]
			if job == nil {
				m.notice(name, widest, color.WhiteString("UNSIGNED"), "no key assigned")
				m.logger.Info("Not signing package", zap.String("entry", file.Name))
				if err := copyEntryRaw(output, file); err != nil {
					return err
				}
				continue
			}
			if job.signed == nil {
				return fmt.Errorf("no signed payload for entry: %s", file.Name)
			}
			m.notice(name, widest, color.GreenString("SIGNED"), job.keyStem)
			if err := writeEntry(output, file, job.signed); err != nil {
				return err
			}

		case file.Name == SystemBuildPropEntry || file.Name == RecoveryDefaultPropEntry:
			content, err := readEntry(file)
			if err != nil {
				return err
			}
			patched := m.patchBuildProps(file.Name, string(content))
			if err := writeEntry(output, file, []byte(patched)); err != nil {
				return err
			}

		default:
			if err := copyEntryRaw(output, file); err != nil {
				return err
			}
		}
	}
	return nil
}

// signAll signs the collected package payloads, at most parallelism at a
// time. The first failure cancels every remaining invocation.
func (m *ReSigMan) signAll(ctx context.Context, jobs []*signJob) error {
	signCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	var signErr error
	signErrMtx := new(sync.Mutex)
	wg := new(sync.WaitGroup)
	sem := semaphore.NewWeighted(int64(m.parallelism))

	for _, job := range jobs {
		if err := sem.Acquire(signCtx, 1); err != nil {
			// A previous job failed and canceled the run.
			break
		}
		wg.Add(1)
		go func(job *signJob) {
			defer wg.Done()
			defer sem.Release(1)
			passphrase, err := m.passphrases.Get(job.keyStem)
			if err == nil {
				job.signed, err = m.signer.Sign(signCtx, job.content, job.keyStem, passphrase)
			}
			if err != nil {
				m.logger.Error("Signing failed",
					zap.String("package", job.name),
					zap.String("key", job.keyStem),
					zap.Error(err))
				signErrMtx.Lock()
				if signErr == nil {
					signErr = err
					cancelFn()
				}
				signErrMtx.Unlock()
			}
		}(job)
	}
	wg.Wait()
	if signErr == nil {
		// Acquire can also fail because the parent context was canceled
		// (signal handling). That is a failed run, not a clean one.
		signErr = ctx.Err()
	}
	return signErr
}

// patchBuildProps rewrites the signing tags in one build property entry. A
// property without the test tag is left alone with a warning - the build may
// already be in a release state.
func (m *ReSigMan) patchBuildProps(entryName string, content string) string {
	patched := content
	for _, prop := range []string{apktypes.FingerprintProp, apktypes.DescriptionProp} {
		var found bool
		patched, found = apktypes.PatchProperty(patched, prop, apktypes.TestKeysTag, apktypes.ReleaseKeysTag)
		if !found {
			m.logger.Warn("Property does not carry the test-keys tag",
				zap.String("entry", entryName),
				zap.String("property", prop))
			m.status.Write([]byte(fmt.Sprintf("%s:%s:%s\n",
				color.CyanString(entryName), color.YellowString("NOMARKER"), prop)))
			continue
		}
		m.status.Write([]byte(fmt.Sprintf("%s:%s:%s\n",
			color.CyanString(entryName), color.GreenString("PATCHED"), prop)))
	}
	return patched
}

func (m *ReSigMan) notice(name string, widest int, status string, detail string) {
	m.status.Write([]byte(fmt.Sprintf("%-*s:%s:%s\n", widest, name, status, detail)))
}

// ReplaceOtaKeys regenerates the OTA trust artifacts from the remapped trust
// manifest and writes them over the fixed output paths.
func (m *ReSigMan) ReplaceOtaKeys(ctx context.Context, input *zip.Reader, output *zip.Writer) error {
	manifest := findEntry(input, OtaKeysEntry)
	if manifest == nil {
		return &ErrMissingEntry{Path: OtaKeysEntry}
	}
	content, err := readEntry(manifest)
	if err != nil {
		return err
	}

	resolved, err := apktypes.ParseOtaKeys(content, m.keyMapping)
	if err != nil {
		return err
	}
	m.logger.Info("Using keys for OTA package verification", zap.Strings("keys", resolved))

	blob, err := m.digester.Digest(ctx, resolved)
	if err != nil {
		return err
	}
	wr, err := output.Create(RecoveryKeysEntry)
	if err != nil {
		return err
	}
	if _, err := wr.Write(blob); err != nil {
		return err
	}

	certsArchive, err := buildCertsArchive(ctx, resolved)
	if err != nil {
		return err
	}
	wr, err = output.Create(OtaCertsEntry)
	if err != nil {
		return err
	}
	_, err = wr.Write(certsArchive)
	return err
}

// buildCertsArchive packs the resolved certificate files into an independent
// in-memory archive for the system update verifier. The file list is
// assembled by hand because manifest order and duplicates are significant in
// the derived artifact.
func buildCertsArchive(ctx context.Context, certFiles []string) ([]byte, error) {
	files := make([]archives.FileInfo, 0, len(certFiles))
	for _, certFile := range certFiles {
		info, err := os.Stat(certFile)
		if err != nil {
			return nil, err
		}
		files = append(files, archives.FileInfo{
			FileInfo:      info,
			NameInArchive: certFile,
			Open: func() (fs.File, error) {
				return os.Open(certFile)
			},
		})
	}
	buf := &bytes.Buffer{}
	if err := (archives.Zip{}).Archive(ctx, buf, files); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
