package refdoc

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"

	"github.com/kk-code-lab/virtref/internal/refs"
)

// WriteFile serializes the store to path, picking codec and
// compression from the filename: ".json" or ".cbor", optionally
// wrapped in ".gz" or ".zst".
func WriteFile(path string, store *refs.Store) error {
	format, compression, err := splitExt(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case ".json":
		data, err := Encode(store)
		if err != nil {
			return err
		}
		buf.Write(data)
	case ".cbor":
		if err := EncodeBinary(&buf, store); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var w io.Writer = f
	var closers []io.Closer
	switch compression {
	case ".gz":
		gz := gzip.NewWriter(f)
		w = gz
		closers = append(closers, gz)
	case ".zst":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close()
			return err
		}
		w = zw
		closers = append(closers, zw)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		f.Close()
		return err
	}
	for _, c := range closers {
		if err := c.Close(); err != nil {
			f.Close()
			return err
		}
	}
	return f.Close()
}

// ReadFile deserializes a store from path, reversing WriteFile's
// codec and compression selection.
func ReadFile(path string) (*refs.Store, error) {
	format, compression, err := splitExt(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	switch compression {
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer gz.Close()
		r = gz
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		r = zr
	}

	switch format {
	case ".cbor":
		return DecodeBinary(r)
	default:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		return Decode(data)
	}
}

// splitExt returns the codec extension and the optional compression
// extension of a document path. A bare ".gz"/".zst" implies JSON.
func splitExt(path string) (format, compression string, err error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".gz" || ext == ".zst" {
		compression = ext
		ext = strings.ToLower(filepath.Ext(strings.TrimSuffix(path, compression)))
	}
	switch ext {
	case "", ".json":
		format = ".json"
	case ".cbor":
		format = ".cbor"
	default:
		return "", "", fmt.Errorf("refdoc: unsupported document extension %q", ext)
	}
	return format, compression, nil
}
