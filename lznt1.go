// LZNT1 decompression, as used by compressed NTFS attribute content. The
// stream is a sequence of chunks, each decompressing to at most 4KiB; a
// chunk is either stored raw or as flag-grouped literal/back-reference
// tokens with chunk-relative displacements.

package vdisk

import (
	"github.com/dsoprea/go-logging"
)

const (
	lznt1ChunkSize = 4096
)

// Lznt1Decompress inflates an LZNT1 stream.
func Lznt1Decompress(data []byte) (decompressed []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	decompressed = make([]byte, 0, len(data)*2)

	offset := 0
	for offset+2 <= len(data) {
		header := ntfsEncoding.Uint16(data[offset : offset+2])
		offset += 2

		if header == 0 {
			break
		}

		chunkLength := int(header&0x0fff) + 1
		isCompressed := header&0x8000 != 0

		if offset+chunkLength > len(data) {
			log.Panic(ErrUnexpectedEof)
		}

		chunk := data[offset : offset+chunkLength]
		offset += chunkLength

		if isCompressed == false {
			decompressed = append(decompressed, chunk...)
			continue
		}

		chunkOut, err := lznt1DecompressChunk(chunk)
		log.PanicIf(err)

		decompressed = append(decompressed, chunkOut...)
	}

	return decompressed, nil
}

func lznt1DecompressChunk(chunk []byte) (out []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	out = make([]byte, 0, lznt1ChunkSize)

	offset := 0
	for offset < len(chunk) {
		flags := chunk[offset]
		offset++

		for bit := uint(0); bit < 8 && offset < len(chunk); bit++ {
			if flags>>bit&1 == 0 {
				out = append(out, chunk[offset])
				offset++

				continue
			}

			if offset+2 > len(chunk) {
				log.Panic(ErrUnexpectedEof)
			}

			token := ntfsEncoding.Uint16(chunk[offset : offset+2])
			offset += 2

			// The split between displacement and length bits depends on how
			// much of the chunk has been produced.
			lengthMask := uint16(0x0fff)
			displacementShift := uint(12)

			for pos := len(out) - 1; pos >= 0x10; pos >>= 1 {
				lengthMask >>= 1
				displacementShift--
			}

			length := int(token&lengthMask) + 3
			displacement := int(token>>displacementShift) + 1

			if displacement > len(out) {
				log.Panic(ErrUnexpectedEof)
			}

			for i := 0; i < length; i++ {
				out = append(out, out[len(out)-displacement])
			}
		}
	}

	return out, nil
}
