package ingest

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// SupportedExtensions are the document types the pipeline can load.
var SupportedExtensions = []string{".pdf", ".txt"}

var ErrUnsupportedDocument = errors.New("unsupported document type")

// Document is a file in the upload directory, ready to be ingested.
type Document struct {
	// Path is absolute, the pipeline may run in another working directory.
	Path string
	// SourceID is the file name, it is what answers cite as their source.
	SourceID string
}

func IsSupported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// StoreUpload copies src into dir under its base name, replacing a previous
// upload of the same name.
func StoreUpload(src string, dir string) (Document, error) {
	if !IsSupported(src) {
		return Document{}, errors.Wrapf(ErrUnsupportedDocument, "%s (supported: %s)",
			filepath.Base(src), strings.Join(SupportedExtensions, ", "))
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return Document{}, errors.Wrapf(err, "could not resolve upload directory %s", dir)
	}
	if err := os.MkdirAll(absDir, 0o755); err != nil {
		return Document{}, errors.Wrapf(err, "could not create upload directory %s", absDir)
	}

	name := filepath.Base(src)
	dst := filepath.Join(absDir, name)
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return Document{}, errors.Wrapf(err, "could not resolve %s", src)
	}

	doc := Document{Path: dst, SourceID: name}
	if absSrc == dst {
		if _, err := os.Stat(dst); err != nil {
			return Document{}, errors.Wrapf(err, "could not read %s", src)
		}
		return doc, nil
	}

	in, err := os.Open(absSrc)
	if err != nil {
		return Document{}, errors.Wrapf(err, "could not open %s", src)
	}
	defer func() {
		_ = in.Close()
	}()

	out, err := os.Create(dst)
	if err != nil {
		return Document{}, errors.Wrapf(err, "could not create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return Document{}, errors.Wrapf(err, "could not copy %s", src)
	}
	if err := out.Close(); err != nil {
		return Document{}, errors.Wrapf(err, "could not write %s", dst)
	}

	return doc, nil
}
