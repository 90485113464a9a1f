// NTFS attribute records: the resident and non-resident on-disk forms of a
// single attribute extent, plus the packed cluster-run list decoder. All
// fields are little-endian.

package vdisk

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	attributeRecordHeaderSize      = 16
	residentAttributeHeaderSize    = 8
	nonResidentAttributeHeaderSize = 48
)

// AttributeRecord is one attribute extent as stored in an MFT record,
// resident or non-resident.
type AttributeRecord interface {
	AttributeType() AttributeType
	AttributeId() uint16
	Name() string
	Flags() AttributeFlags
	DataLength() uint64
	IsNonResident() bool

	// OffsetToAbsolutePos translates a byte offset within this extent's
	// data to an absolute position. `recordStart` is the absolute position
	// of the MFT record for resident extents; `bytesPerCluster` sizes the
	// cluster math for non-resident extents. A negative result means the
	// offset falls in a hole.
	OffsetToAbsolutePos(offset, recordStart, bytesPerCluster int64) int64

	// Dump writes record-level detail.
	Dump(w io.Writer, indent string)
}

// attributeRecordHeader is the common 16-byte attribute header.
type attributeRecordHeader struct {
	// AttributeTypeRaw: the attribute type tag; 0xffffffff terminates the
	// attribute sequence of an MFT record.
	AttributeTypeRaw uint32

	// RecordLength: total record length including this header, rounded to
	// eight bytes.
	RecordLength uint32

	// NonResidentFlag: zero for resident records.
	NonResidentFlag uint8

	// NameLength: attribute-name length in UTF-16 characters; zero for the
	// unnamed attribute.
	NameLength uint8

	// NameOffset: byte offset of the UTF-16LE name from the record start.
	NameOffset uint16

	// FlagsRaw: compressed/encrypted/sparse state bits.
	FlagsRaw uint16

	// AttributeIdRaw: the attribute ID, unique within the MFT record.
	AttributeIdRaw uint16
}

// residentAttributeHeader follows the common header in resident records.
type residentAttributeHeader struct {
	// ContentLength: the inline content length in bytes.
	ContentLength uint32

	// ContentOffset: byte offset of the content from the record start.
	ContentOffset uint16

	// IndexedFlag: nonzero when the content is indexed.
	IndexedFlag uint8

	// Reserved: padding.
	Reserved uint8
}

// nonResidentAttributeHeader follows the common header in non-resident
// records.
type nonResidentAttributeHeader struct {
	// StartVcnRaw: the first virtual cluster this extent covers.
	StartVcnRaw uint64

	// LastVcnRaw: the last virtual cluster this extent covers, inclusive.
	LastVcnRaw uint64

	// DataRunsOffset: byte offset of the packed run list from the record
	// start.
	DataRunsOffset uint16

	// CompressionUnitSizeRaw: log2 of the clusters per compression unit;
	// zero for uncompressed attributes.
	CompressionUnitSizeRaw uint16

	// Reserved: padding.
	Reserved uint32

	// AllocatedLength: bytes allocated on disk for the attribute.
	AllocatedLength uint64

	// DataLengthRaw: the logical attribute length in bytes.
	DataLengthRaw uint64

	// InitializedDataLength: bytes actually written; reads beyond this
	// return zeros.
	InitializedDataLength uint64
}

// DataRun is one entry of the packed run list, still relative to the
// previous run.
type DataRun struct {
	// RunOffset: signed LCN delta from the previous run. Ignored for a
	// sparse run, which does not move the running LCN.
	RunOffset int64

	// RunLength: run length in clusters.
	RunLength int64

	// IsSparse: the run has no backing clusters (a zero-width offset field
	// in the packed list).
	IsSparse bool
}

func (dr DataRun) String() string {
	return fmt.Sprintf("DataRun<OFFSET=(%d) LENGTH=(%d) IS-SPARSE=[%v]>", dr.RunOffset, dr.RunLength, dr.IsSparse)
}

// ClusterRun is a resolved run: an absolute starting cluster (or a hole)
// and a count.
type ClusterRun struct {
	// FirstCluster: absolute LCN of the first cluster; negative for a
	// sparse run.
	FirstCluster int64

	// ClusterCount: run length in clusters.
	ClusterCount int64
}

// IsSparse indicates the run has no backing clusters.
func (cr ClusterRun) IsSparse() bool {
	return cr.FirstCluster < 0
}

func (cr ClusterRun) String() string {
	return fmt.Sprintf("ClusterRun<FIRST-CLUSTER=(%d) CLUSTER-COUNT=(%d)>", cr.FirstCluster, cr.ClusterCount)
}

// ResidentAttributeRecord stores its content inline in the MFT record.
type ResidentAttributeRecord struct {
	attributeType AttributeType
	attributeId   uint16
	name          string
	flags         AttributeFlags

	contentOffset uint16
	indexedFlag   uint8

	data []byte
}

// NewResidentAttributeRecord assembles a resident record.
func NewResidentAttributeRecord(attributeType AttributeType, attributeId uint16, name string, flags AttributeFlags, data []byte) *ResidentAttributeRecord {
	return &ResidentAttributeRecord{
		attributeType: attributeType,
		attributeId:   attributeId,
		name:          name,
		flags:         flags,
		data:          data,
	}
}

func (rar *ResidentAttributeRecord) AttributeType() AttributeType {
	return rar.attributeType
}

func (rar *ResidentAttributeRecord) AttributeId() uint16 {
	return rar.attributeId
}

func (rar *ResidentAttributeRecord) Name() string {
	return rar.name
}

func (rar *ResidentAttributeRecord) Flags() AttributeFlags {
	return rar.flags
}

func (rar *ResidentAttributeRecord) DataLength() uint64 {
	return uint64(len(rar.data))
}

func (rar *ResidentAttributeRecord) IsNonResident() bool {
	return false
}

// Data returns the inline content.
func (rar *ResidentAttributeRecord) Data() []byte {
	return rar.data
}

// SetData replaces the inline content.
func (rar *ResidentAttributeRecord) SetData(data []byte) {
	rar.data = data
}

// DataOffset returns the content offset within the MFT record, when the
// record was parsed from one.
func (rar *ResidentAttributeRecord) DataOffset() int64 {
	return int64(rar.contentOffset)
}

func (rar *ResidentAttributeRecord) OffsetToAbsolutePos(offset, recordStart, bytesPerCluster int64) int64 {
	return recordStart + int64(rar.contentOffset) + offset
}

func (rar *ResidentAttributeRecord) String() string {
	return fmt.Sprintf("ResidentAttributeRecord<TYPE=[%s] ID=(%d) NAME=[%s] DATA-LENGTH=(%d)>", rar.attributeType, rar.attributeId, rar.name, len(rar.data))
}

func (rar *ResidentAttributeRecord) Dump(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sResident: [true]\n", indent)
	fmt.Fprintf(w, "%sContentLength: (%d)\n", indent, len(rar.data))
	fmt.Fprintf(w, "%sContentOffset: (%d)\n", indent, rar.contentOffset)
}

// NonResidentAttributeRecord stores its content in allocated clusters and
// covers the virtual-cluster range [StartVcn, LastVcn].
type NonResidentAttributeRecord struct {
	attributeType AttributeType
	attributeId   uint16
	name          string
	flags         AttributeFlags

	startVcn              uint64
	lastVcn               uint64
	compressionUnitSize   uint16
	allocatedLength       uint64
	dataLength            uint64
	initializedDataLength uint64

	dataRuns []DataRun
}

// NewNonResidentAttributeRecord assembles a non-resident record.
func NewNonResidentAttributeRecord(attributeType AttributeType, attributeId uint16, name string, flags AttributeFlags, startVcn, lastVcn uint64, compressionUnitSize uint16, dataRuns []DataRun, dataLength uint64) *NonResidentAttributeRecord {
	return &NonResidentAttributeRecord{
		attributeType:       attributeType,
		attributeId:         attributeId,
		name:                name,
		flags:               flags,
		startVcn:            startVcn,
		lastVcn:             lastVcn,
		compressionUnitSize: compressionUnitSize,
		dataRuns:            dataRuns,
		dataLength:          dataLength,

		initializedDataLength: dataLength,
	}
}

func (nrar *NonResidentAttributeRecord) AttributeType() AttributeType {
	return nrar.attributeType
}

func (nrar *NonResidentAttributeRecord) AttributeId() uint16 {
	return nrar.attributeId
}

func (nrar *NonResidentAttributeRecord) Name() string {
	return nrar.name
}

func (nrar *NonResidentAttributeRecord) Flags() AttributeFlags {
	return nrar.flags
}

func (nrar *NonResidentAttributeRecord) DataLength() uint64 {
	return nrar.dataLength
}

func (nrar *NonResidentAttributeRecord) IsNonResident() bool {
	return true
}

// StartVcn returns the first virtual cluster of the extent.
func (nrar *NonResidentAttributeRecord) StartVcn() uint64 {
	return nrar.startVcn
}

// LastVcn returns the last virtual cluster of the extent, inclusive.
func (nrar *NonResidentAttributeRecord) LastVcn() uint64 {
	return nrar.lastVcn
}

// CompressionUnitSize returns log2 of the clusters per compression unit;
// zero for uncompressed attributes.
func (nrar *NonResidentAttributeRecord) CompressionUnitSize() uint16 {
	return nrar.compressionUnitSize
}

// CompressionUnitClusters returns the clusters per compression unit, or
// zero when uncompressed.
func (nrar *NonResidentAttributeRecord) CompressionUnitClusters() int64 {
	if nrar.compressionUnitSize == 0 {
		return 0
	}

	return int64(1) << nrar.compressionUnitSize
}

// AllocatedLength returns the bytes allocated on disk.
func (nrar *NonResidentAttributeRecord) AllocatedLength() uint64 {
	return nrar.allocatedLength
}

// InitializedDataLength returns the bytes actually written.
func (nrar *NonResidentAttributeRecord) InitializedDataLength() uint64 {
	return nrar.initializedDataLength
}

// DataRuns returns the decoded (still-relative) run list.
func (nrar *NonResidentAttributeRecord) DataRuns() []DataRun {
	return nrar.dataRuns
}

// GetClusters resolves the run list to absolute cluster runs.
func (nrar *NonResidentAttributeRecord) GetClusters() []ClusterRun {
	runs := make([]ClusterRun, 0, len(nrar.dataRuns))

	currentCluster := int64(0)

	for _, run := range nrar.dataRuns {
		if run.IsSparse == true {
			runs = append(runs, ClusterRun{
				FirstCluster: -1,
				ClusterCount: run.RunLength,
			})

			continue
		}

		currentCluster += run.RunOffset

		runs = append(runs, ClusterRun{
			FirstCluster: currentCluster,
			ClusterCount: run.RunLength,
		})
	}

	return runs
}

func (nrar *NonResidentAttributeRecord) OffsetToAbsolutePos(offset, recordStart, bytesPerCluster int64) int64 {
	clusterIndex := offset / bytesPerCluster
	withinCluster := offset % bytesPerCluster

	for _, run := range nrar.GetClusters() {
		if clusterIndex < run.ClusterCount {
			if run.IsSparse() == true {
				return -1
			}

			return (run.FirstCluster+clusterIndex)*bytesPerCluster + withinCluster
		}

		clusterIndex -= run.ClusterCount
	}

	return -1
}

func (nrar *NonResidentAttributeRecord) String() string {
	return fmt.Sprintf("NonResidentAttributeRecord<TYPE=[%s] ID=(%d) NAME=[%s] START-VCN=(%d) LAST-VCN=(%d) DATA-LENGTH=(%d)>", nrar.attributeType, nrar.attributeId, nrar.name, nrar.startVcn, nrar.lastVcn, nrar.dataLength)
}

func (nrar *NonResidentAttributeRecord) Dump(w io.Writer, indent string) {
	fmt.Fprintf(w, "%sResident: [false]\n", indent)
	fmt.Fprintf(w, "%sStartVcn: (%d)\n", indent, nrar.startVcn)
	fmt.Fprintf(w, "%sLastVcn: (%d)\n", indent, nrar.lastVcn)
	fmt.Fprintf(w, "%sCompressionUnitSize: (%d)\n", indent, nrar.compressionUnitSize)
	fmt.Fprintf(w, "%sAllocatedLength: (%d)\n", indent, nrar.allocatedLength)
	fmt.Fprintf(w, "%sInitializedDataLength: (%d)\n", indent, nrar.initializedDataLength)

	for i, run := range nrar.GetClusters() {
		fmt.Fprintf(w, "%sRun (%d): %s\n", indent, i, run)
	}
}

// ParseAttributeRecord decodes one attribute record from raw MFT-record
// bytes starting at offset zero of `data`. A type tag of 0xffffffff returns
// a nil record: the end of the attribute sequence.
func ParseAttributeRecord(data []byte) (record AttributeRecord, consumed int, err error) {
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

	if len(data) < 4 {
		log.Panic(ErrUnexpectedEof)
	}

	if ntfsEncoding.Uint32(data[:4]) == uint32(AttributeTypeEndOfAttributes) {
		return nil, 0, nil
	}

	if len(data) < attributeRecordHeaderSize {
		log.Panic(ErrUnexpectedEof)
	}

	arh := attributeRecordHeader{}

	err = unpackStruct(data[:attributeRecordHeaderSize], ntfsEncoding, &arh)
	log.PanicIf(err)

	if arh.RecordLength < attributeRecordHeaderSize || int(arh.RecordLength) > len(data) {
		log.Panic(ErrUnexpectedEof)
	}

	recordData := data[:arh.RecordLength]

	name := ""
	if arh.NameLength > 0 {
		br := NewByteReader(recordData, ntfsEncoding)

		name, err = br.Utf16String(int(arh.NameOffset), int(arh.NameLength))
		log.PanicIf(err)
	}

	if arh.NonResidentFlag == 0 {
		rah := residentAttributeHeader{}

		err = unpackStruct(recordData[attributeRecordHeaderSize:attributeRecordHeaderSize+residentAttributeHeaderSize], ntfsEncoding, &rah)
		log.PanicIf(err)

		if int(rah.ContentOffset)+int(rah.ContentLength) > len(recordData) {
			log.Panic(ErrUnexpectedEof)
		}

		content := make([]byte, rah.ContentLength)
		copy(content, recordData[rah.ContentOffset:])

		rar := NewResidentAttributeRecord(AttributeType(arh.AttributeTypeRaw), arh.AttributeIdRaw, name, AttributeFlags(arh.FlagsRaw), content)
		rar.contentOffset = rah.ContentOffset
		rar.indexedFlag = rah.IndexedFlag

		return rar, int(arh.RecordLength), nil
	}

	nrh := nonResidentAttributeHeader{}

	err = unpackStruct(recordData[attributeRecordHeaderSize:attributeRecordHeaderSize+nonResidentAttributeHeaderSize], ntfsEncoding, &nrh)
	log.PanicIf(err)

	if int(nrh.DataRunsOffset) > len(recordData) {
		log.Panic(ErrUnexpectedEof)
	}

	dataRuns, err := DecodeDataRuns(recordData[nrh.DataRunsOffset:])
	log.PanicIf(err)

	nrar := NewNonResidentAttributeRecord(AttributeType(arh.AttributeTypeRaw), arh.AttributeIdRaw, name, AttributeFlags(arh.FlagsRaw), nrh.StartVcnRaw, nrh.LastVcnRaw, nrh.CompressionUnitSizeRaw, dataRuns, nrh.DataLengthRaw)
	nrar.allocatedLength = nrh.AllocatedLength
	nrar.initializedDataLength = nrh.InitializedDataLength

	return nrar, int(arh.RecordLength), nil
}

// DecodeDataRuns decodes a packed NTFS run list. Each entry leads with a
// nibble pair sizing the length and offset fields; a zero offset size marks
// a sparse run; offsets are signed deltas from the previous run.
func DecodeDataRuns(data []byte) (runs []DataRun, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	runs = make([]DataRun, 0)

	offset := 0
	for offset < len(data) {
		idx := data[offset]
		if idx == 0 {
			break
		}

		lengthSize := int(idx & 0xf)
		offsetSize := int(idx >> 4)
		offset++

		if offset+lengthSize+offsetSize > len(data) {
			log.Panic(ErrUnexpectedEof)
		}

		if lengthSize > 8 || offsetSize > 8 {
			log.Panic(ErrUnexpectedEof)
		}

		lengthBuffer := make([]byte, 8)
		copy(lengthBuffer, data[offset:offset+lengthSize])
		offset += lengthSize

		runLength := int64(ntfsEncoding.Uint64(lengthBuffer))

		offsetBuffer := make([]byte, 8)
		copy(offsetBuffer, data[offset:offset+offsetSize])

		// Sign-extend the offset.
		if offsetSize > 0 && data[offset+offsetSize-1]&0x80 != 0 {
			for i := offsetSize; i < 8; i++ {
				offsetBuffer[i] = 0xff
			}
		}

		offset += offsetSize

		runOffset := int64(ntfsEncoding.Uint64(offsetBuffer))

		runs = append(runs, DataRun{
			RunOffset: runOffset,
			RunLength: runLength,
			IsSparse:  offsetSize == 0,
		})
	}

	return runs, nil
}
