package refdoc

import (
	"bytes"
	"testing"

	"github.com/kk-code-lab/virtref/internal/refs"
)

func TestBinaryRoundTrip(t *testing.T) {
	s := sampleStore()
	var buf bytes.Buffer
	if err := EncodeBinary(&buf, s); err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	got, err := DecodeBinary(&buf)
	if err != nil {
		t.Fatalf("DecodeBinary: %v", err)
	}
	if !refs.Equal(s, got) {
		t.Fatalf("binary round-trip mismatch")
	}
}

func TestBinaryChecksumMismatch(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeBinary(&buf, sampleStore()); err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	data := buf.Bytes()
	data[len(data)-1] ^= 0xff
	if _, err := DecodeBinary(bytes.NewReader(data)); err == nil {
		t.Fatalf("expected checksum error")
	}
}

func TestBinaryBadMagic(t *testing.T) {
	var buf bytes.Buffer
	if err := EncodeBinary(&buf, sampleStore()); err != nil {
		t.Fatalf("EncodeBinary: %v", err)
	}
	data := buf.Bytes()
	data[0] ^= 0xff
	if _, err := DecodeBinary(bytes.NewReader(data)); err == nil {
		t.Fatalf("expected bad magic error")
	}
}

func TestBinaryTruncated(t *testing.T) {
	if _, err := DecodeBinary(bytes.NewReader([]byte("VREF"))); err == nil {
		t.Fatalf("expected truncation error")
	}
}
