package resignman

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/wrouesnel/apk-resigman/pkg/apktypes"
	"go.uber.org/multierr"
)

type ErrExternalTool struct {
	Tool   string
	Output string
}

func (e ErrExternalTool) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("external tool failed: %s", e.Tool)
	}
	return fmt.Sprintf("external tool failed: %s: %s", e.Tool, e.Output)
}

// SignerTool signs a package payload with the named key. Implementations
// block until the signing completes or fails.
type SignerTool interface {
	Sign(ctx context.Context, content []byte, keyStem string, passphrase string) ([]byte, error)
}

// DigestTool converts an ordered list of public certificate files into the
// recovery console key digest blob.
type DigestTool interface {
	Digest(ctx context.Context, certFiles []string) ([]byte, error)
}

// SignapkTool invokes a signapk jar over temporary files. The passphrase is
// fed on stdin, once per key prompt.
type SignapkTool struct {
	JavaPath string
	JarPath  string
	// Alignment is the zip entry alignment requested from the signer.
	// Installable packages require 4.
	Alignment int
}

func (s *SignapkTool) Sign(ctx context.Context, content []byte, keyStem string, passphrase string) (signed []byte, err error) {
	unsigned, err := os.CreateTemp("", "unsigned-*.apk")
	if err != nil {
		return nil, errors.Join(&ErrExternalTool{Tool: s.JarPath}, err)
	}
	defer os.Remove(unsigned.Name())
	defer func() { err = multierr.Append(err, unsigned.Close()) }()

	output, err := os.CreateTemp("", "signed-*.apk")
	if err != nil {
		return nil, errors.Join(&ErrExternalTool{Tool: s.JarPath}, err)
	}
	defer os.Remove(output.Name())
	defer func() { err = multierr.Append(err, output.Close()) }()

	if _, err := unsigned.Write(content); err != nil {
		return nil, errors.Join(&ErrExternalTool{Tool: s.JarPath}, err)
	}

	args := []string{"-jar", s.JarPath}
	if s.Alignment > 0 {
		args = append(args, "-a", strconv.Itoa(s.Alignment))
	}
	args = append(args,
		keyStem+apktypes.CertSuffix,
		keyStem+apktypes.PrivateKeySuffix,
		unsigned.Name(),
		output.Name(),
	)

	cmd := exec.CommandContext(ctx, s.JavaPath, args...)
	cmd.Stdin = strings.NewReader(passphrase + "\n")
	if combined, err := cmd.CombinedOutput(); err != nil {
		return nil, errors.Join(&ErrExternalTool{
			Tool:   s.JarPath,
			Output: strings.TrimSpace(string(combined)),
		}, err)
	}

	signed, err = os.ReadFile(output.Name())
	if err != nil {
		return nil, errors.Join(&ErrExternalTool{Tool: s.JarPath}, err)
	}
	return signed, nil
}

// DumpkeyTool invokes a dumpkey jar over the resolved certificate files and
// captures the digest blob from stdout.
type DumpkeyTool struct {
	JavaPath string
	JarPath  string
}

func (d *DumpkeyTool) Digest(ctx context.Context, certFiles []string) ([]byte, error) {
	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}

	cmd := exec.CommandContext(ctx, d.JavaPath, append([]string{"-jar", d.JarPath}, certFiles...)...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Join(&ErrExternalTool{
			Tool:   d.JarPath,
			Output: strings.TrimSpace(stderr.String()),
		}, err)
	}
	return stdout.Bytes(), nil
}
