// This package reads and manipulates virtual-disk images and the on-disk
// structures inside them: VMDK descriptor files, the LDM dynamic-disk
// metadata database, and the NTFS attribute model. Backing bytes may live on
// the host filesystem or inside another mounted disk image; the FileLocator
// abstraction keeps the codecs agnostic to which.

package vdisk

import (
	"errors"

	"encoding/binary"

	"github.com/go-restruct/restruct"
)

var (
	// ldmEncoding is the byte order of the LDM (VMDB/VBLK) structures.
	ldmEncoding = binary.BigEndian

	// ntfsEncoding is the byte order of NTFS on-disk structures.
	ntfsEncoding = binary.LittleEndian
)

var (
	// ErrUnexpectedEof indicates that a fixed-size structured read could not
	// be filled.
	ErrUnexpectedEof = errors.New("unexpected EOF in structured read")

	// ErrCorruptDatabase indicates an invalid LDM database header, a version
	// mismatch, or a duplicate record ID.
	ErrCorruptDatabase = errors.New("corrupt LDM database")

	// ErrMalformedLine indicates a descriptor-file line that fits neither the
	// extent grammar nor KEY=VALUE.
	ErrMalformedLine = errors.New("malformed descriptor line")

	// ErrInvalidUuid indicates a descriptor UUID that does not decompose into
	// sixteen hex bytes.
	ErrInvalidUuid = errors.New("invalid descriptor UUID")

	// ErrUnknownEnum indicates a token outside a closed enumeration.
	ErrUnknownEnum = errors.New("unknown enumeration token")

	// ErrNotFound indicates a failed lookup by name, ID, or GUID.
	ErrNotFound = errors.New("not found")

	// ErrAccessDenied indicates a permission mismatch on open or write.
	ErrAccessDenied = errors.New("access denied")

	// ErrDuplicateExtent indicates an attribute-extent insertion conflict.
	ErrDuplicateExtent = errors.New("duplicate attribute extent")

	// ErrResidentHasNoVcn indicates a VCN lookup against a resident
	// attribute.
	ErrResidentHasNoVcn = errors.New("resident attribute has no VCN")

	// ErrOutOfRange indicates a VCN not covered by any extent, or a position
	// a buffer or stream cannot serve: a negative offset or seek, or a
	// non-resident write into a hole or past the data length.
	ErrOutOfRange = errors.New("VCN out of range")

	// ErrInconsistentExtents indicates an extent map violating the coverage
	// invariants (e.g. no extent starting at VCN zero).
	ErrInconsistentExtents = errors.New("inconsistent attribute extents")
)

// unpackStruct decodes a fixed-layout struct from raw bytes with an explicit
// byte order.
func unpackStruct(raw []byte, order binary.ByteOrder, x interface{}) error {
	return restruct.Unpack(raw, order, x)
}

