package refdoc

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/kk-code-lab/virtref/internal/refs"
)

const (
	binaryMagic   = 0x46455256 // "VREF"
	binaryVersion = 1
	headerLen     = 4 + 4
	checksumLen   = 32
)

type binaryStore struct {
	Arrays  []binaryArray `cbor:"arrays"`
	Chunks  []binaryChunk `cbor:"chunks"`
	Sources []string      `cbor:"sources"`
}

type binaryArray struct {
	Name       string   `cbor:"name"`
	Shape      []int    `cbor:"shape"`
	ChunkShape []int    `cbor:"chunk_shape"`
	Dtype      string   `cbor:"dtype"`
	Dimensions []string `cbor:"dimensions"`
	// Attrs and FillValue travel as JSON so attribute values keep the
	// same representation in both document forms.
	Attrs     []byte `cbor:"attrs,omitempty"`
	FillValue []byte `cbor:"fill_value,omitempty"`
}

type binaryChunk struct {
	Key    string `cbor:"key"`
	Remote bool   `cbor:"remote"`
	Inline []byte `cbor:"inline,omitempty"`
	Source int    `cbor:"source,omitempty"`
	Offset uint64 `cbor:"offset,omitempty"`
	Length uint64 `cbor:"length,omitempty"`
}

// EncodeBinary writes the compact CBOR form: an 8-byte magic+version
// header, the CBOR body, and a BLAKE3 checksum of the body.
func EncodeBinary(w io.Writer, store *refs.Store) error {
	if store == nil {
		return errors.New("refdoc: nil store")
	}
	bs := binaryStore{Sources: store.Sources}

	names := make([]string, 0, len(store.Arrays))
	for name := range store.Arrays {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := store.Arrays[name]
		ba := binaryArray{
			Name:       m.Name,
			Shape:      m.Shape,
			ChunkShape: m.ChunkShape,
			Dtype:      m.Dtype,
			Dimensions: m.Dimensions,
		}
		if len(m.Attrs) > 0 {
			raw, err := json.Marshal(m.Attrs)
			if err != nil {
				return fmt.Errorf("refdoc: array %q attributes: %w", name, err)
			}
			ba.Attrs = raw
		}
		if m.FillValue != nil {
			raw, err := json.Marshal(m.FillValue)
			if err != nil {
				return fmt.Errorf("refdoc: array %q fill value: %w", name, err)
			}
			ba.FillValue = raw
		}
		bs.Arrays = append(bs.Arrays, ba)
	}

	keys := make([]string, 0, len(store.Chunks))
	for k := range store.Chunks {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		loc := store.Chunks[k]
		bc := binaryChunk{Key: k}
		switch loc.Kind {
		case refs.KindInline:
			bc.Inline = loc.Inline
			if bc.Inline == nil {
				bc.Inline = []byte{}
			}
		case refs.KindRemote:
			bc.Remote = true
			bc.Source = loc.Source
			bc.Offset = loc.Offset
			bc.Length = loc.Length
		default:
			return fmt.Errorf("refdoc: chunk %s: unknown locator kind %d", k, loc.Kind)
		}
		bs.Chunks = append(bs.Chunks, bc)
	}

	body, err := cbor.Marshal(bs)
	if err != nil {
		return fmt.Errorf("refdoc: %w", err)
	}
	var header [headerLen]byte
	binary.LittleEndian.PutUint32(header[0:4], binaryMagic)
	binary.LittleEndian.PutUint32(header[4:8], binaryVersion)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}
	checksum := blake3.Sum256(body)
	_, err = w.Write(checksum[:])
	return err
}

// DecodeBinary reads the CBOR form, verifying header and checksum.
func DecodeBinary(r io.Reader) (*refs.Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < headerLen+checksumLen {
		return nil, errors.New("refdoc: truncated document")
	}
	if binary.LittleEndian.Uint32(data[0:4]) != binaryMagic {
		return nil, errors.New("refdoc: bad magic")
	}
	if binary.LittleEndian.Uint32(data[4:8]) != binaryVersion {
		return nil, errors.New("refdoc: unsupported binary version")
	}
	body := data[headerLen : len(data)-checksumLen]
	sum := blake3.Sum256(body)
	if string(sum[:]) != string(data[len(data)-checksumLen:]) {
		return nil, errors.New("refdoc: checksum mismatch")
	}

	var bs binaryStore
	if err := cbor.Unmarshal(body, &bs); err != nil {
		return nil, fmt.Errorf("refdoc: %w", err)
	}

	store := refs.NewStore()
	store.Sources = bs.Sources
	for _, ba := range bs.Arrays {
		m := &refs.ArrayMeta{
			Name:       ba.Name,
			Shape:      ba.Shape,
			ChunkShape: ba.ChunkShape,
			Dtype:      ba.Dtype,
			Dimensions: ba.Dimensions,
		}
		if len(ba.Attrs) > 0 {
			attrs := map[string]any{}
			if err := json.Unmarshal(ba.Attrs, &attrs); err != nil {
				return nil, fmt.Errorf("refdoc: array %q attributes: %w", ba.Name, err)
			}
			m.Attrs = attrs
		}
		if len(ba.FillValue) > 0 {
			var fv any
			if err := json.Unmarshal(ba.FillValue, &fv); err != nil {
				return nil, fmt.Errorf("refdoc: array %q fill value: %w", ba.Name, err)
			}
			m.FillValue = fv
		}
		store.Arrays[ba.Name] = m
	}
	for _, bc := range bs.Chunks {
		if bc.Remote {
			store.Chunks[bc.Key] = refs.RemoteLocator(bc.Source, bc.Offset, bc.Length)
		} else {
			store.Chunks[bc.Key] = refs.InlineLocator(bc.Inline)
		}
	}
	return store, nil
}
