package index

import (
	"context"
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"

	"github.com/kk-code-lab/virtref/internal/refcache"
	"github.com/kk-code-lab/virtref/internal/refdoc"
	"github.com/kk-code-lab/virtref/internal/refs"
)

// DocIndexer reads per-source reference documents written ahead of
// time by an external single-file indexer. The source string is the
// document path itself, optionally extended by Suffix (so a source
// list of data files can map onto sidecar documents like "f.nc.json").
type DocIndexer struct {
	Suffix string
}

func (d *DocIndexer) Index(ctx context.Context, source string) (*refs.Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return refdoc.ReadFile(source + d.Suffix)
}

// Cached wraps an indexer with a fingerprint-keyed document cache.
// On a hit the cached document is decoded instead of re-indexing the
// source; on a miss the fresh store is encoded and stored.
type Cached struct {
	Indexer Indexer
	Cache   *refcache.Cache
	// Fingerprint identifies the current content of a source.
	// Defaults to FileFingerprint.
	Fingerprint func(source string) (string, error)
}

func (c *Cached) Index(ctx context.Context, source string) (*refs.Store, error) {
	fp := c.Fingerprint
	if fp == nil {
		fp = FileFingerprint
	}
	fingerprint, err := fp(source)
	if err != nil {
		return nil, err
	}
	if doc, ok, err := c.Cache.Get(ctx, source, fingerprint); err != nil {
		return nil, err
	} else if ok {
		return refdoc.Decode(doc)
	}
	st, err := c.Indexer.Index(ctx, source)
	if err != nil {
		return nil, err
	}
	doc, err := refdoc.Encode(st)
	if err != nil {
		return nil, err
	}
	if err := c.Cache.Put(ctx, source, fingerprint, doc); err != nil {
		return nil, err
	}
	return st, nil
}

// FileFingerprint hashes a local file's contents with BLAKE3.
func FileFingerprint(source string) (string, error) {
	f, err := os.Open(source)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
