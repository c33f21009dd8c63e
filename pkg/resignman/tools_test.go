package resignman

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "gopkg.in/check.v1"
)

type ToolsSuite struct{}

var _ = Suite(&ToolsSuite{})

// stubTool writes a shell script standing in for the java launcher.
func stubTool(c *C, script string) string {
	toolPath := filepath.Join(c.MkDir(), "java")
	err := os.WriteFile(toolPath, []byte("#!/bin/sh\n"+script+"\n"), 0755)
	c.Assert(err, IsNil)
	return toolPath
}

func (s *ToolsSuite) TestSignapkToolInvocation(c *C) {
	// Arguments: -jar <jar> -a 4 <cert> <pk8> <in> <out>. The stub appends
	// stdin to the payload so the passphrase plumbing is observable.
	tool := &SignapkTool{
		JavaPath:  stubTool(c, `{ cat "$7"; cat; } > "$8"`),
		JarPath:   "signapk.jar",
		Alignment: 4,
	}
	signed, err := tool.Sign(context.Background(), []byte("payload"), "keys/releasekey", "secret")
	c.Assert(err, IsNil)
	c.Assert(string(signed), Equals, "payloadsecret\n")
}

func (s *ToolsSuite) TestSignapkToolFailure(c *C) {
	tool := &SignapkTool{
		JavaPath: stubTool(c, `echo "keystore was tampered with" >&2; exit 1`),
		JarPath:  "signapk.jar",
	}
	_, err := tool.Sign(context.Background(), []byte("payload"), "keys/releasekey", "secret")
	c.Assert(err, NotNil)
	var toolErr *ErrExternalTool
	c.Assert(errors.As(err, &toolErr), Equals, true)
	c.Assert(toolErr.Error(), Matches, ".*signapk.jar.*")
}

func (s *ToolsSuite) TestDumpkeyToolCapturesStdout(c *C) {
	tool := &DumpkeyTool{
		JavaPath: stubTool(c, `shift 2; printf 'digest:%s' "$*"`),
		JarPath:  "dumpkey.jar",
	}
	blob, err := tool.Digest(context.Background(), []string{"a.x509.pem", "b.x509.pem"})
	c.Assert(err, IsNil)
	c.Assert(string(blob), Equals, "digest:a.x509.pem b.x509.pem")
}

func (s *ToolsSuite) TestDumpkeyToolFailure(c *C) {
	tool := &DumpkeyTool{
		JavaPath: stubTool(c, `exit 2`),
		JarPath:  "dumpkey.jar",
	}
	_, err := tool.Digest(context.Background(), []string{"a.x509.pem"})
	c.Assert(err, NotNil)
	var toolErr *ErrExternalTool
	c.Assert(errors.As(err, &toolErr), Equals, true)
}
