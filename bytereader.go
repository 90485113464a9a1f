// Endian-explicit scalar and string codecs over flat byte arrays. These are
// the leaf utilities under all of the binary parsers.

package vdisk

import (
	"reflect"

	"encoding/binary"

	"github.com/dsoprea/go-logging"
)

// ByteReader decodes scalars and strings out of a flat byte slice at
// explicit offsets with an explicit byte order.
type ByteReader struct {
	data  []byte
	order binary.ByteOrder
}

// NewByteReader returns a reader over `data` using the given byte order.
func NewByteReader(data []byte, order binary.ByteOrder) *ByteReader {
	return &ByteReader{
		data:  data,
		order: order,
	}
}

// Len returns the total number of bytes under the reader.
func (br *ByteReader) Len() int {
	return len(br.data)
}

func (br *ByteReader) slice(offset, count int) (window []byte, err error) {
	if offset < 0 || count < 0 || offset+count > len(br.data) {
		return nil, ErrUnexpectedEof
	}

	return br.data[offset : offset+count], nil
}

// Uint8 reads one byte at `offset`.
func (br *ByteReader) Uint8(offset int) (value uint8, err error) {
	window, err := br.slice(offset, 1)
	if err != nil {
		return 0, err
	}

	return window[0], nil
}

// Uint16 reads a 16-bit scalar at `offset`.
func (br *ByteReader) Uint16(offset int) (value uint16, err error) {
	window, err := br.slice(offset, 2)
	if err != nil {
		return 0, err
	}

	return br.order.Uint16(window), nil
}

// Uint32 reads a 32-bit scalar at `offset`.
func (br *ByteReader) Uint32(offset int) (value uint32, err error) {
	window, err := br.slice(offset, 4)
	if err != nil {
		return 0, err
	}

	return br.order.Uint32(window), nil
}

// Uint64 reads a 64-bit scalar at `offset`.
func (br *ByteReader) Uint64(offset int) (value uint64, err error) {
	window, err := br.slice(offset, 8)
	if err != nil {
		return 0, err
	}

	return br.order.Uint64(window), nil
}

// Bytes copies `count` bytes starting at `offset`.
func (br *ByteReader) Bytes(offset, count int) (data []byte, err error) {
	window, err := br.slice(offset, count)
	if err != nil {
		return nil, err
	}

	data = make([]byte, count)
	copy(data, window)

	return data, nil
}

// String reads `count` raw bytes at `offset` and trims trailing NULs.
func (br *ByteReader) String(offset, count int) (s string, err error) {
	window, err := br.slice(offset, count)
	if err != nil {
		return "", err
	}

	end := count
	for end > 0 && window[end-1] == 0 {
		end--
	}

	return string(window[:end]), nil
}

// Utf16String reads `charCount` UTF-16LE characters at `offset`.
func (br *ByteReader) Utf16String(offset, charCount int) (s string, err error) {
	window, err := br.slice(offset, charCount*2)
	if err != nil {
		return "", err
	}

	s, err = UnicodeFromUtf16le(window)
	if err != nil {
		return "", err
	}

	return s, nil
}

// Struct unpacks a fixed-layout struct at `offset` spanning `count` bytes.
func (br *ByteReader) Struct(offset, count int, x interface{}) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%s] [%v]", reflect.TypeOf(err).Name(), err)
			}
		}
	}()

	window, err := br.slice(offset, count)
	if err != nil {
		log.Panic(err)
	}

	err = unpackStruct(window, br.order, x)
	log.PanicIf(err)

	return nil
}

// ByteWriter encodes scalars and strings into a flat byte slice at explicit
// offsets with an explicit byte order.
type ByteWriter struct {
	data  []byte
	order binary.ByteOrder
}

// NewByteWriter returns a writer over `data` using the given byte order.
func NewByteWriter(data []byte, order binary.ByteOrder) *ByteWriter {
	return &ByteWriter{
		data:  data,
		order: order,
	}
}

func (bw *ByteWriter) slice(offset, count int) (window []byte, err error) {
	if offset < 0 || count < 0 || offset+count > len(bw.data) {
		return nil, ErrUnexpectedEof
	}

	return bw.data[offset : offset+count], nil
}

// PutUint8 writes one byte at `offset`.
func (bw *ByteWriter) PutUint8(offset int, value uint8) (err error) {
	window, err := bw.slice(offset, 1)
	if err != nil {
		return err
	}

	window[0] = value

	return nil
}

// PutUint16 writes a 16-bit scalar at `offset`.
func (bw *ByteWriter) PutUint16(offset int, value uint16) (err error) {
	window, err := bw.slice(offset, 2)
	if err != nil {
		return err
	}

	bw.order.PutUint16(window, value)

	return nil
}

// PutUint32 writes a 32-bit scalar at `offset`.
func (bw *ByteWriter) PutUint32(offset int, value uint32) (err error) {
	window, err := bw.slice(offset, 4)
	if err != nil {
		return err
	}

	bw.order.PutUint32(window, value)

	return nil
}

// PutUint64 writes a 64-bit scalar at `offset`.
func (bw *ByteWriter) PutUint64(offset int, value uint64) (err error) {
	window, err := bw.slice(offset, 8)
	if err != nil {
		return err
	}

	bw.order.PutUint64(window, value)

	return nil
}

// PutBytes copies `data` into the buffer at `offset`.
func (bw *ByteWriter) PutBytes(offset int, data []byte) (err error) {
	window, err := bw.slice(offset, len(data))
	if err != nil {
		return err
	}

	copy(window, data)

	return nil
}

// PutString writes `s` into a `count`-byte field at `offset`, NUL-padding
// the remainder.
func (bw *ByteWriter) PutString(offset, count int, s string) (err error) {
	if len(s) > count {
		return ErrUnexpectedEof
	}

	window, err := bw.slice(offset, count)
	if err != nil {
		return err
	}

	copy(window, s)

	for i := len(s); i < count; i++ {
		window[i] = 0
	}

	return nil
}
