package vdisk

import (
	"io"
	"testing"

	"github.com/dsoprea/go-logging"
)

func TestMemoryByteStream_ReadWriteSeek(t *testing.T) {
	mbs := NewMemoryByteStream(nil)

	_, err := mbs.Write([]byte("abcdef"))
	log.PanicIf(err)

	length, err := mbs.Length()
	log.PanicIf(err)

	if length != 6 {
		t.Fatalf("Length not correct: (%d)", length)
	}

	_, err = mbs.Seek(2, io.SeekStart)
	log.PanicIf(err)

	buffer := make([]byte, 2)

	_, err = mbs.Read(buffer)
	log.PanicIf(err)

	if string(buffer) != "cd" {
		t.Fatalf("Read not correct: [%s]", string(buffer))
	}

	_, err = mbs.WriteAt([]byte("ZZ"), 8)
	log.PanicIf(err)

	length, err = mbs.Length()
	log.PanicIf(err)

	if length != 10 {
		t.Fatalf("Grown length not correct: (%d)", length)
	}

	tail := make([]byte, 2)

	_, err = mbs.ReadAt(tail, 8)
	log.PanicIf(err)

	if string(tail) != "ZZ" {
		t.Fatalf("Sparse gap write not correct: [%s]", string(tail))
	}
}

func TestMemoryByteStream_ReadOnly(t *testing.T) {
	mbs := NewReadOnlyMemoryByteStream([]byte("data"))

	_, err := mbs.Write([]byte("x"))
	if err != ErrAccessDenied {
		t.Fatalf("Read-only stream accepted a write: %v", err)
	}
}

func TestMemoryByteStream_ReadAtEof(t *testing.T) {
	mbs := NewReadOnlyMemoryByteStream([]byte("ab"))

	buffer := make([]byte, 4)

	n, err := mbs.ReadAt(buffer, 0)
	if err != io.EOF {
		t.Fatalf("Short ReadAt did not EOF: %v", err)
	}

	if n != 2 {
		t.Fatalf("Short ReadAt count not correct: (%d)", n)
	}

	_, err = mbs.ReadAt(buffer, 10)
	if err != io.EOF {
		t.Fatalf("Past-end ReadAt did not EOF: %v", err)
	}
}
