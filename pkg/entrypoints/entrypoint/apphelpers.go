package entrypoint

import (
	"archive/zip"
	"io"
	"strings"

	"github.com/wrouesnel/apk-resigman/pkg/apktypes"
)

// buildKeyMapping assembles the key remapping table from the command line.
// The default directory expansion is applied first so explicit pairs win.
func buildKeyMapping(defaultDir string, pairs []string) (*apktypes.KeyMapping, error) {
	mapping := apktypes.NewKeyMapping()
	if defaultDir != "" {
		mapping.AddDefaultDirectory(defaultDir)
	}
	for _, pair := range pairs {
		src, dst, ok := strings.Cut(pair, "=")
		if !ok || src == "" || dst == "" {
			return nil, &apktypes.ErrInvalidDataFormat{Source: pair}
		}
		mapping.Add(src, dst)
	}
	return mapping, nil
}

// parseExtraApks expands the repeated name-list=key assignments into a flat
// package to key map.
func parseExtraApks(assignments []string) (map[string]string, error) {
	extraApks := map[string]string{}
	for _, assignment := range assignments {
		names, keyStem, ok := strings.Cut(assignment, "=")
		if !ok || names == "" {
			return nil, &apktypes.ErrInvalidDataFormat{Source: assignment}
		}
		for _, name := range strings.Split(names, ",") {
			extraApks[strings.TrimSpace(name)] = keyStem
		}
	}
	return extraApks, nil
}

// openTargetFiles opens a target-files package through the context
// filesystem. The returned closer releases the underlying file handle.
func openTargetFiles(cmdCtx *CmdContext, inputPath string) (*zip.Reader, io.Closer, error) {
	fh, err := cmdCtx.fs.Open(inputPath)
	if err != nil {
		return nil, nil, err
	}
	info, err := fh.Stat()
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	reader, err := zip.NewReader(fh, info.Size())
	if err != nil {
		fh.Close()
		return nil, nil, err
	}
	return reader, fh, nil
}

// readArchiveEntry pulls one named entry out of an opened package.
func readArchiveEntry(input *zip.Reader, name string) ([]byte, bool, error) {
	for _, file := range input.File {
		if file.Name != name {
			continue
		}
		rd, err := file.Open()
		if err != nil {
			return nil, true, err
		}
		defer rd.Close()
		content, err := io.ReadAll(rd)
		return content, true, err
	}
	return nil, false, nil
}
