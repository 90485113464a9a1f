package vdisk

import (
	"io"
	"os"

	"github.com/dsoprea/go-logging"
)

// ByteStream is a seekable, length-known byte sequence with positional
// read/write. The caller that opened it owns it and must close it on all
// exit paths.
type ByteStream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.ReaderAt
	io.WriterAt
	io.Closer

	// Length returns the current byte length of the stream.
	Length() (int64, error)
}

// fileByteStream adapts an *os.File to the ByteStream contract.
type fileByteStream struct {
	f *os.File
}

// NewFileByteStream wraps an already-open file. The stream takes ownership
// of the handle.
func NewFileByteStream(f *os.File) ByteStream {
	return &fileByteStream{
		f: f,
	}
}

func (fbs *fileByteStream) Read(p []byte) (n int, err error) {
	return fbs.f.Read(p)
}

func (fbs *fileByteStream) Write(p []byte) (n int, err error) {
	return fbs.f.Write(p)
}

func (fbs *fileByteStream) Seek(offset int64, whence int) (pos int64, err error) {
	return fbs.f.Seek(offset, whence)
}

func (fbs *fileByteStream) ReadAt(p []byte, off int64) (n int, err error) {
	return fbs.f.ReadAt(p, off)
}

func (fbs *fileByteStream) WriteAt(p []byte, off int64) (n int, err error) {
	return fbs.f.WriteAt(p, off)
}

func (fbs *fileByteStream) Close() (err error) {
	return fbs.f.Close()
}

func (fbs *fileByteStream) Length() (length int64, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	fi, err := fbs.f.Stat()
	log.PanicIf(err)

	return fi.Size(), nil
}

// MemoryByteStream is a growable in-memory ByteStream. It backs the
// in-memory filesystem used by the disc-rooted locator and the tests.
type MemoryByteStream struct {
	data     []byte
	position int64
	writable bool
}

// NewMemoryByteStream returns a writable stream seeded with `data` (which
// may be nil).
func NewMemoryByteStream(data []byte) *MemoryByteStream {
	return &MemoryByteStream{
		data:     data,
		writable: true,
	}
}

// NewReadOnlyMemoryByteStream returns a stream over `data` that rejects
// writes with ErrAccessDenied.
func NewReadOnlyMemoryByteStream(data []byte) *MemoryByteStream {
	return &MemoryByteStream{
		data: data,
	}
}

// Bytes returns the current backing slice.
func (mbs *MemoryByteStream) Bytes() []byte {
	return mbs.data
}

func (mbs *MemoryByteStream) Read(p []byte) (n int, err error) {
	if mbs.position >= int64(len(mbs.data)) {
		return 0, io.EOF
	}

	n = copy(p, mbs.data[mbs.position:])
	mbs.position += int64(n)

	return n, nil
}

func (mbs *MemoryByteStream) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}

	if off >= int64(len(mbs.data)) {
		return 0, io.EOF
	}

	n = copy(p, mbs.data[off:])
	if n < len(p) {
		return n, io.EOF
	}

	return n, nil
}

func (mbs *MemoryByteStream) grow(end int64) {
	if end <= int64(len(mbs.data)) {
		return
	}

	grown := make([]byte, end)
	copy(grown, mbs.data)
	mbs.data = grown
}

func (mbs *MemoryByteStream) Write(p []byte) (n int, err error) {
	if mbs.writable == false {
		return 0, ErrAccessDenied
	}

	mbs.grow(mbs.position + int64(len(p)))

	n = copy(mbs.data[mbs.position:], p)
	mbs.position += int64(n)

	return n, nil
}

func (mbs *MemoryByteStream) WriteAt(p []byte, off int64) (n int, err error) {
	if mbs.writable == false {
		return 0, ErrAccessDenied
	}

	if off < 0 {
		return 0, ErrOutOfRange
	}

	mbs.grow(off + int64(len(p)))

	n = copy(mbs.data[off:], p)

	return n, nil
}

func (mbs *MemoryByteStream) Seek(offset int64, whence int) (pos int64, err error) {
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = mbs.position + offset
	case io.SeekEnd:
		pos = int64(len(mbs.data)) + offset
	default:
		return 0, ErrOutOfRange
	}

	if pos < 0 {
		return 0, ErrOutOfRange
	}

	mbs.position = pos

	return pos, nil
}

func (mbs *MemoryByteStream) Close() (err error) {
	return nil
}

func (mbs *MemoryByteStream) Length() (length int64, err error) {
	return int64(len(mbs.data)), nil
}
