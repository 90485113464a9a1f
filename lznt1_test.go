package vdisk

import (
	"bytes"
	"testing"

	"github.com/dsoprea/go-logging"
)

func TestLznt1Decompress_StoredChunk(t *testing.T) {
	// Header: stored (bit 15 clear), signature 3, size 8.
	data := []byte{0x07, 0x30, 'A', 'B', 'C', 'D', 'E', 'F', 'G', 'H'}

	decompressed, err := Lznt1Decompress(data)
	log.PanicIf(err)

	if string(decompressed) != "ABCDEFGH" {
		t.Fatalf("Stored chunk not correct: [%s]", string(decompressed))
	}
}

func TestLznt1Decompress_CompressedChunk(t *testing.T) {
	// Three literals then a back-reference: displacement 3, length 3.
	data := []byte{0x05, 0xb0, 0x08, 'A', 'B', 'C', 0x00, 0x20}

	decompressed, err := Lznt1Decompress(data)
	log.PanicIf(err)

	if string(decompressed) != "ABCABC" {
		t.Fatalf("Compressed chunk not correct: [%s]", string(decompressed))
	}
}

func TestLznt1Decompress_OverlappingCopy(t *testing.T) {
	// One literal then a run-length copy: displacement 1, length 5.
	data := []byte{0x03, 0xb0, 0x02, 'Z', 0x02, 0x00}

	decompressed, err := Lznt1Decompress(data)
	log.PanicIf(err)

	if string(decompressed) != "ZZZZZZ" {
		t.Fatalf("Overlapping copy not correct: [%s]", string(decompressed))
	}
}

func TestLznt1Decompress_MultipleChunks(t *testing.T) {
	data := []byte{
		0x02, 0x30, 'a', 'b', 'c',
		0x01, 0x30, 'd', 'e',
	}

	decompressed, err := Lznt1Decompress(data)
	log.PanicIf(err)

	if string(decompressed) != "abcde" {
		t.Fatalf("Multiple chunks not correct: [%s]", string(decompressed))
	}
}

func TestLznt1Decompress_ZeroHeaderStops(t *testing.T) {
	data := []byte{0x02, 0x30, 'a', 'b', 'c', 0x00, 0x00, 'x', 'y'}

	decompressed, err := Lznt1Decompress(data)
	log.PanicIf(err)

	if bytes.Equal(decompressed, []byte("abc")) != true {
		t.Fatalf("Zero header did not stop decompression: [%s]", string(decompressed))
	}
}

func TestLznt1Decompress_Truncated(t *testing.T) {
	data := []byte{0x07, 0x30, 'A'}

	_, err := Lznt1Decompress(data)
	if log.Is(err, ErrUnexpectedEof) != true {
		t.Fatalf("Truncated stream did not fail correctly: %v", err)
	}
}

func TestLznt1Decompress_BadDisplacement(t *testing.T) {
	// A back-reference with nothing produced yet.
	data := []byte{0x02, 0xb0, 0x01, 0x00, 0x00}

	_, err := Lznt1Decompress(data)
	if log.Is(err, ErrUnexpectedEof) != true {
		t.Fatalf("Bad displacement did not fail correctly: %v", err)
	}
}
