// Structured renderings of attribute content. The closed set of structured
// attribute types maps to parsing strategies; the strategies are data (one
// map entry each), not types, and every attribute type outside the set is
// served raw.

package vdisk

import (
	"fmt"
	"io"
	"time"

	"github.com/dsoprea/go-logging"
)

// NtfsTimestamp is a FILETIME: 100ns ticks since 1601-01-01 UTC.
type NtfsTimestamp uint64

const (
	ntfsTimestampEpochDelta = 116444736000000000
)

// Timestamp converts to a time.Time in UTC.
func (nt NtfsTimestamp) Timestamp() time.Time {
	ticks := int64(nt) - ntfsTimestampEpochDelta

	return time.Unix(ticks/10000000, ticks%10000000*100).UTC()
}

func (nt NtfsTimestamp) String() string {
	return nt.Timestamp().Format("2006-01-02 15:04:05")
}

// DosAttributes are the DOS-style file-attribute bits carried by
// StandardInformation and FileName.
type DosAttributes uint32

func (da DosAttributes) IsReadOnly() bool {
	return da&0x0001 > 0
}

func (da DosAttributes) IsHidden() bool {
	return da&0x0002 > 0
}

func (da DosAttributes) IsSystem() bool {
	return da&0x0004 > 0
}

func (da DosAttributes) IsArchive() bool {
	return da&0x0020 > 0
}

func (da DosAttributes) String() string {
	return fmt.Sprintf("DosAttributes<IS-READONLY=[%v] IS-HIDDEN=[%v] IS-SYSTEM=[%v] IS-ARCHIVE=[%v]>", da.IsReadOnly(), da.IsHidden(), da.IsSystem(), da.IsArchive())
}

// AttributePayload is a parsed structured rendering of attribute content.
type AttributePayload interface {
	DumpBareIndented(w io.Writer, indent string)
}

type payloadParser func(data []byte) (payload AttributePayload, err error)

var (
	// attributePayloadParsers is the closed structured set. Parsing
	// strategies are selected here by attribute type.
	attributePayloadParsers = map[AttributeType]payloadParser{
		AttributeTypeStandardInformation: parseStandardInformationPayload,
		AttributeTypeFileName:            parseFileNamePayload,
		AttributeTypeSecurityDescriptor:  parseSecurityDescriptorPayload,
		AttributeTypeVolumeName:          parseVolumeNamePayload,
		AttributeTypeVolumeInformation:   parseVolumeInformationPayload,
		AttributeTypeObjectId:            parseObjectIdPayload,
		AttributeTypeReparsePoint:        parseReparsePointPayload,
		AttributeTypeAttributeList:       parseAttributeListPayload,
	}
)

const (
	// maxStructuredPayloadSize bounds how much attribute content the
	// structured parsers will materialize.
	maxStructuredPayloadSize = 1024 * 1024
)

// Structured parses the attribute content with the strategy registered for
// its type. Types outside the structured set return a nil payload.
func (na *NtfsAttribute) Structured() (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	parser, found := attributePayloadParsers[na.AttributeType()]
	if found == false {
		return nil, nil
	}

	length := na.DataLength()
	if length > maxStructuredPayloadSize {
		length = maxStructuredPayloadSize
	}

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	data := make([]byte, length)

	_, err = buffer.ReadAt(data, 0)
	log.PanicIf(err)

	payload, err = parser(data)
	log.PanicIf(err)

	return payload, nil
}

// StandardInformationPayload carries the file timestamps and DOS flags.
type StandardInformationPayload struct {
	// CreationTime: This field is mandatory.
	CreationTime NtfsTimestamp

	// ModificationTime: last content change.
	ModificationTime NtfsTimestamp

	// MftChangedTime: last MFT-record change.
	MftChangedTime NtfsTimestamp

	// LastAccessTime: last read access.
	LastAccessTime NtfsTimestamp

	// FileAttributes: the DOS attribute bits.
	FileAttributes DosAttributes

	// MaxVersions / Version / ClassId: legacy versioning fields.
	MaxVersions uint32
	Version     uint32
	ClassId     uint32
}

func (sip *StandardInformationPayload) String() string {
	return fmt.Sprintf("StandardInformation<CTIME=[%s] MTIME=[%s] ATIME=[%s]>", sip.CreationTime, sip.ModificationTime, sip.LastAccessTime)
}

func (sip *StandardInformationPayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sCreationTime: [%s]\n", indent, sip.CreationTime)
	fmt.Fprintf(w, "%sModificationTime: [%s]\n", indent, sip.ModificationTime)
	fmt.Fprintf(w, "%sMftChangedTime: [%s]\n", indent, sip.MftChangedTime)
	fmt.Fprintf(w, "%sLastAccessTime: [%s]\n", indent, sip.LastAccessTime)
	fmt.Fprintf(w, "%sFileAttributes: %s\n", indent, sip.FileAttributes)
}

func parseStandardInformationPayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < 48 {
		log.Panic(ErrUnexpectedEof)
	}

	sip := StandardInformationPayload{}

	err = unpackStruct(data[:48], ntfsEncoding, &sip)
	log.PanicIf(err)

	return &sip, nil
}

// FileNamePayload carries the parent reference and one of the file's names.
type FileNamePayload struct {
	// ParentDirectory: the file record of the directory indexing this name.
	ParentDirectory FileRecordReference

	CreationTime     NtfsTimestamp
	ModificationTime NtfsTimestamp
	MftChangedTime   NtfsTimestamp
	LastAccessTime   NtfsTimestamp

	// AllocatedSize / RealSize: sizes as recorded at last index update.
	AllocatedSize uint64
	RealSize      uint64

	FileAttributes DosAttributes

	// EaSizeOrReparse: packed EA size, or the reparse tag for reparse
	// points.
	EaSizeOrReparse uint32

	// FileNameLength: name length in UTF-16 characters.
	FileNameLength uint8

	// Namespace: 0=POSIX, 1=Win32, 2=DOS, 3=Win32-and-DOS.
	Namespace uint8

	// FileName: the decoded name.
	FileName string
}

func (fnp *FileNamePayload) String() string {
	return fmt.Sprintf("FileName<PARENT=(%d) NAME=[%s]>", fnp.ParentDirectory.MftIndex(), fnp.FileName)
}

func (fnp *FileNamePayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sParentDirectory: (%d)\n", indent, fnp.ParentDirectory.MftIndex())
	fmt.Fprintf(w, "%sFileName: [%s]\n", indent, fnp.FileName)
	fmt.Fprintf(w, "%sNamespace: (%d)\n", indent, fnp.Namespace)
	fmt.Fprintf(w, "%sRealSize: (%d)\n", indent, fnp.RealSize)
	fmt.Fprintf(w, "%sFileAttributes: %s\n", indent, fnp.FileAttributes)
}

type fileNameFixed struct {
	ParentDirectory  uint64
	CreationTime     uint64
	ModificationTime uint64
	MftChangedTime   uint64
	LastAccessTime   uint64
	AllocatedSize    uint64
	RealSize         uint64
	FileAttributes   uint32
	EaSizeOrReparse  uint32
	FileNameLength   uint8
	Namespace        uint8
}

func parseFileNamePayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < 66 {
		log.Panic(ErrUnexpectedEof)
	}

	fixed := fileNameFixed{}

	err = unpackStruct(data[:66], ntfsEncoding, &fixed)
	log.PanicIf(err)

	br := NewByteReader(data, ntfsEncoding)

	name, err := br.Utf16String(66, int(fixed.FileNameLength))
	log.PanicIf(err)

	fnp := FileNamePayload{
		ParentDirectory:  FileRecordReference(fixed.ParentDirectory),
		CreationTime:     NtfsTimestamp(fixed.CreationTime),
		ModificationTime: NtfsTimestamp(fixed.ModificationTime),
		MftChangedTime:   NtfsTimestamp(fixed.MftChangedTime),
		LastAccessTime:   NtfsTimestamp(fixed.LastAccessTime),
		AllocatedSize:    fixed.AllocatedSize,
		RealSize:         fixed.RealSize,
		FileAttributes:   DosAttributes(fixed.FileAttributes),
		EaSizeOrReparse:  fixed.EaSizeOrReparse,
		FileNameLength:   fixed.FileNameLength,
		Namespace:        fixed.Namespace,
		FileName:         name,
	}

	return &fnp, nil
}

// SecurityDescriptorPayload carries the raw security descriptor bytes.
type SecurityDescriptorPayload struct {
	Data []byte
}

func (sdp *SecurityDescriptorPayload) String() string {
	return fmt.Sprintf("SecurityDescriptor<LENGTH=(%d)>", len(sdp.Data))
}

func (sdp *SecurityDescriptorPayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sDescriptor: %s\n", indent, HexPreview(sdp.Data, 32))
}

func parseSecurityDescriptorPayload(data []byte) (payload AttributePayload, err error) {
	sdp := SecurityDescriptorPayload{
		Data: data,
	}

	return &sdp, nil
}

// VolumeNamePayload carries the volume label.
type VolumeNamePayload struct {
	Name string
}

func (vnp *VolumeNamePayload) String() string {
	return fmt.Sprintf("VolumeName<NAME=[%s]>", vnp.Name)
}

func (vnp *VolumeNamePayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sName: [%s]\n", indent, vnp.Name)
}

func parseVolumeNamePayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	name, err := UnicodeFromUtf16le(data)
	log.PanicIf(err)

	vnp := VolumeNamePayload{
		Name: name,
	}

	return &vnp, nil
}

// VolumeInformationPayload carries the volume metadata revision and state.
type VolumeInformationPayload struct {
	Reserved     uint64
	MajorVersion uint8
	MinorVersion uint8
	Flags        uint16
}

func (vip *VolumeInformationPayload) String() string {
	return fmt.Sprintf("VolumeInformation<VERSION=(%d).(%d) FLAGS=(0x%04x)>", vip.MajorVersion, vip.MinorVersion, vip.Flags)
}

func (vip *VolumeInformationPayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sVersion: (%d).(%d)\n", indent, vip.MajorVersion, vip.MinorVersion)
	fmt.Fprintf(w, "%sFlags: (0x%04x)\n", indent, vip.Flags)
}

func parseVolumeInformationPayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < 12 {
		log.Panic(ErrUnexpectedEof)
	}

	vip := VolumeInformationPayload{}

	err = unpackStruct(data[:12], ntfsEncoding, &vip)
	log.PanicIf(err)

	return &vip, nil
}

// ObjectIdPayload carries the object GUIDs. Only ObjectId itself is always
// present; the birth GUIDs appear when recorded.
type ObjectIdPayload struct {
	ObjectId      [16]byte
	BirthVolumeId [16]byte
	BirthObjectId [16]byte
	DomainId      [16]byte
}

func (oip *ObjectIdPayload) String() string {
	return fmt.Sprintf("ObjectId<ID=[%x]>", oip.ObjectId)
}

func (oip *ObjectIdPayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sObjectId: [%x]\n", indent, oip.ObjectId)
	fmt.Fprintf(w, "%sBirthVolumeId: [%x]\n", indent, oip.BirthVolumeId)
	fmt.Fprintf(w, "%sBirthObjectId: [%x]\n", indent, oip.BirthObjectId)
	fmt.Fprintf(w, "%sDomainId: [%x]\n", indent, oip.DomainId)
}

func parseObjectIdPayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < 16 {
		log.Panic(ErrUnexpectedEof)
	}

	oip := ObjectIdPayload{}

	copy(oip.ObjectId[:], data[0:16])

	if len(data) >= 32 {
		copy(oip.BirthVolumeId[:], data[16:32])
	}

	if len(data) >= 48 {
		copy(oip.BirthObjectId[:], data[32:48])
	}

	if len(data) >= 64 {
		copy(oip.DomainId[:], data[48:64])
	}

	return &oip, nil
}

// ReparsePointPayload carries the reparse tag and its data.
type ReparsePointPayload struct {
	Tag        uint32
	DataLength uint16
	Data       []byte
}

func (rpp *ReparsePointPayload) String() string {
	return fmt.Sprintf("ReparsePoint<TAG=(0x%08x) LENGTH=(%d)>", rpp.Tag, rpp.DataLength)
}

func (rpp *ReparsePointPayload) DumpBareIndented(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sTag: (0x%08x)\n", indent, rpp.Tag)
	fmt.Fprintf(w, "%sData: %s\n", indent, HexPreview(rpp.Data, 32))
}

func parseReparsePointPayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if len(data) < 8 {
		log.Panic(ErrUnexpectedEof)
	}

	br := NewByteReader(data, ntfsEncoding)

	tag, err := br.Uint32(0)
	log.PanicIf(err)

	dataLength, err := br.Uint16(4)
	log.PanicIf(err)

	if 8+int(dataLength) > len(data) {
		log.Panic(ErrUnexpectedEof)
	}

	reparseData, err := br.Bytes(8, int(dataLength))
	log.PanicIf(err)

	rpp := ReparsePointPayload{
		Tag:        tag,
		DataLength: dataLength,
		Data:       reparseData,
	}

	return &rpp, nil
}

// AttributeListEntry points at one extent of an attribute that did not fit
// in the base MFT record.
type AttributeListEntry struct {
	// AttributeType: the type of the extent's attribute.
	AttributeType AttributeType

	// RecordLength: length of this list entry in bytes.
	RecordLength uint16

	// StartVcn: the first VCN covered by the extent.
	StartVcn uint64

	// BaseFileReference: the MFT record holding the extent.
	BaseFileReference FileRecordReference

	// AttributeId: the extent's attribute ID within that record.
	AttributeId uint16

	// Name: the attribute name, when named.
	Name string
}

// Reference returns the extent key the entry points to.
func (ale AttributeListEntry) Reference() AttributeReference {
	return AttributeReference{
		File:        ale.BaseFileReference,
		AttributeId: ale.AttributeId,
	}
}

func (ale AttributeListEntry) String() string {
	return fmt.Sprintf("AttributeListEntry<TYPE=[%s] START-VCN=(%d) MFT-INDEX=(%d) ATTRIBUTE-ID=(%d)>", ale.AttributeType, ale.StartVcn, ale.BaseFileReference.MftIndex(), ale.AttributeId)
}

// AttributeListPayload enumerates the extents of fragmented attributes.
type AttributeListPayload struct {
	Entries []AttributeListEntry
}

func (alp *AttributeListPayload) String() string {
	return fmt.Sprintf("AttributeList<ENTRIES=(%d)>", len(alp.Entries))
}

func (alp *AttributeListPayload) DumpBareIndented(w io.Writer, indent string) {
	for i, entry := range alp.Entries {
		fmt.Fprintf(w, "%sEntry (%d): %s\n", indent, i, entry)
	}
}

const (
	attributeListEntryFixedSize = 26
)

func parseAttributeListPayload(data []byte) (payload AttributePayload, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	alp := AttributeListPayload{
		Entries: make([]AttributeListEntry, 0),
	}

	br := NewByteReader(data, ntfsEncoding)

	offset := 0
	for offset+attributeListEntryFixedSize <= len(data) {
		attributeType, err := br.Uint32(offset)
		log.PanicIf(err)

		recordLength, err := br.Uint16(offset + 4)
		log.PanicIf(err)

		if recordLength < attributeListEntryFixedSize {
			log.Panic(ErrUnexpectedEof)
		}

		nameLength, err := br.Uint8(offset + 6)
		log.PanicIf(err)

		nameOffset, err := br.Uint8(offset + 7)
		log.PanicIf(err)

		startVcn, err := br.Uint64(offset + 8)
		log.PanicIf(err)

		baseReference, err := br.Uint64(offset + 16)
		log.PanicIf(err)

		attributeId, err := br.Uint16(offset + 24)
		log.PanicIf(err)

		name := ""
		if nameLength > 0 {
			name, err = br.Utf16String(offset+int(nameOffset), int(nameLength))
			log.PanicIf(err)
		}

		alp.Entries = append(alp.Entries, AttributeListEntry{
			AttributeType:     AttributeType(attributeType),
			RecordLength:      recordLength,
			StartVcn:          startVcn,
			BaseFileReference: FileRecordReference(baseReference),
			AttributeId:       attributeId,
			Name:              name,
		})

		if offset+int(recordLength) > len(data) {
			break
		}

		offset += int(recordLength)
	}

	return &alp, nil
}
