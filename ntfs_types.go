package vdisk

import (
	"fmt"
)

// AttributeType identifies an NTFS attribute kind.
type AttributeType uint32

const (
	AttributeTypeNone                AttributeType = 0x00
	AttributeTypeStandardInformation AttributeType = 0x10
	AttributeTypeAttributeList       AttributeType = 0x20
	AttributeTypeFileName            AttributeType = 0x30
	AttributeTypeObjectId            AttributeType = 0x40
	AttributeTypeSecurityDescriptor  AttributeType = 0x50
	AttributeTypeVolumeName          AttributeType = 0x60
	AttributeTypeVolumeInformation   AttributeType = 0x70
	AttributeTypeData                AttributeType = 0x80
	AttributeTypeIndexRoot           AttributeType = 0x90
	AttributeTypeIndexAllocation     AttributeType = 0xa0
	AttributeTypeBitmap              AttributeType = 0xb0
	AttributeTypeReparsePoint        AttributeType = 0xc0
	AttributeTypeExtendedAttrInfo    AttributeType = 0xd0
	AttributeTypeExtendedAttributes  AttributeType = 0xe0
	AttributeTypeLoggedUtilityStream AttributeType = 0x100
	AttributeTypeEndOfAttributes     AttributeType = 0xffffffff
)

var (
	attributeTypeNames = map[AttributeType]string{
		AttributeTypeStandardInformation: "StandardInformation",
		AttributeTypeAttributeList:       "AttributeList",
		AttributeTypeFileName:            "FileName",
		AttributeTypeObjectId:            "ObjectId",
		AttributeTypeSecurityDescriptor:  "SecurityDescriptor",
		AttributeTypeVolumeName:          "VolumeName",
		AttributeTypeVolumeInformation:   "VolumeInformation",
		AttributeTypeData:                "Data",
		AttributeTypeIndexRoot:           "IndexRoot",
		AttributeTypeIndexAllocation:     "IndexAllocation",
		AttributeTypeBitmap:              "Bitmap",
		AttributeTypeReparsePoint:        "ReparsePoint",
		AttributeTypeExtendedAttrInfo:    "ExtendedAttrInfo",
		AttributeTypeExtendedAttributes:  "ExtendedAttributes",
		AttributeTypeLoggedUtilityStream: "LoggedUtilityStream",
	}
)

func (at AttributeType) String() string {
	if name, found := attributeTypeNames[at]; found == true {
		return name
	}

	return fmt.Sprintf("Unknown<0x%x>", uint32(at))
}

// AttributeFlags carries the attribute state bits.
type AttributeFlags uint16

const (
	AttributeFlagCompressed AttributeFlags = 0x0001
	AttributeFlagEncrypted  AttributeFlags = 0x4000
	AttributeFlagSparse     AttributeFlags = 0x8000
)

// IsCompressed indicates LZNT1-compressed content.
func (af AttributeFlags) IsCompressed() bool {
	return af&AttributeFlagCompressed > 0
}

// IsEncrypted indicates EFS-encrypted content.
func (af AttributeFlags) IsEncrypted() bool {
	return af&AttributeFlagEncrypted > 0
}

// IsSparse indicates sparse allocation.
func (af AttributeFlags) IsSparse() bool {
	return af&AttributeFlagSparse > 0
}

func (af AttributeFlags) String() string {
	return fmt.Sprintf("AttributeFlags<IS-COMPRESSED=[%v] IS-ENCRYPTED=[%v] IS-SPARSE=[%v]>", af.IsCompressed(), af.IsEncrypted(), af.IsSparse())
}

// FileRecordReference packs a 48-bit MFT record index and a 16-bit sequence
// number.
type FileRecordReference uint64

// NewFileRecordReference builds a reference from its parts.
func NewFileRecordReference(mftIndex uint64, sequenceNumber uint16) FileRecordReference {
	return FileRecordReference(mftIndex&0x0000ffffffffffff | uint64(sequenceNumber)<<48)
}

// MftIndex returns the 48-bit record index.
func (frr FileRecordReference) MftIndex() uint64 {
	return uint64(frr) & 0x0000ffffffffffff
}

// SequenceNumber returns the 16-bit reuse sequence number.
func (frr FileRecordReference) SequenceNumber() uint16 {
	return uint16(uint64(frr) >> 48)
}

func (frr FileRecordReference) String() string {
	return fmt.Sprintf("FileRecordReference<MFT-INDEX=(%d) SEQUENCE-NUMBER=(%d)>", frr.MftIndex(), frr.SequenceNumber())
}

// AttributeReference identifies one attribute extent across MFT-record
// boundaries: the file record containing the extent plus the extent's
// attribute ID. It is comparable and serves as a map key.
type AttributeReference struct {
	File        FileRecordReference
	AttributeId uint16
}

func (ar AttributeReference) String() string {
	return fmt.Sprintf("AttributeReference<MFT-INDEX=(%d) ATTRIBUTE-ID=(%d)>", ar.File.MftIndex(), ar.AttributeId)
}
