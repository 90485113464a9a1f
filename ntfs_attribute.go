// The unified NTFS attribute view. One logical attribute may be described
// by several attribute records spread across MFT records (via the
// AttributeList mechanism); NtfsAttribute owns the complete extent map,
// keyed by (containing file record, attribute ID).

package vdisk

import (
	"fmt"
	"io"
	"strings"

	"github.com/dsoprea/go-logging"
)

// AttributeHost is the narrow back-reference an attribute keeps to the file
// layer that owns it. It is a lookup handle, never ownership; the file owns
// the attribute, not the other way around.
type AttributeHost interface {
	// AttributeOffset returns the byte offset of the referenced attribute
	// header within its MFT record.
	AttributeOffset(ref AttributeReference) (offset int64, err error)

	// RecordAbsolutePosition resolves a record-relative byte offset of the
	// given file record to an absolute position, through the MFT's own Data
	// attribute.
	RecordAbsolutePosition(file FileRecordReference, recordOffset int64) (pos int64, err error)

	// BytesPerCluster returns the volume cluster size.
	BytesPerCluster() int64

	// VolumeReader returns positional access to the volume bytes backing
	// non-resident content.
	VolumeReader() io.ReaderAt
}

// NtfsAttribute is the logical attribute: a primary record, the reference
// of the file record containing it, and the map of every extent record
// belonging to the same logical attribute.
//
// Extent-map mutation is not safe against concurrent readers of the same
// attribute; callers provide exclusion.
type NtfsAttribute struct {
	host AttributeHost

	containingFile FileRecordReference
	primary        AttributeRecord

	extents     map[AttributeReference]AttributeRecord
	extentOrder []AttributeReference
}

// NewNtfsAttribute builds the unified view from the attribute's primary
// record. Structured payload parsing is selected by the record's attribute
// type on demand (see Structured); every type outside the structured set is
// served raw.
func NewNtfsAttribute(host AttributeHost, containingFile FileRecordReference, record AttributeRecord) *NtfsAttribute {
	na := &NtfsAttribute{
		host: host,

		containingFile: containingFile,
		primary:        record,

		extents:     make(map[AttributeReference]AttributeRecord),
		extentOrder: make([]AttributeReference, 0),
	}

	ref := AttributeReference{
		File:        containingFile,
		AttributeId: record.AttributeId(),
	}

	na.extents[ref] = record
	na.extentOrder = append(na.extentOrder, ref)

	return na
}

// Reference identifies the attribute: the containing file record plus the
// primary record's attribute ID.
func (na *NtfsAttribute) Reference() AttributeReference {
	return AttributeReference{
		File:        na.containingFile,
		AttributeId: na.primary.AttributeId(),
	}
}

// ContainingFile returns the file record holding the primary record.
func (na *NtfsAttribute) ContainingFile() FileRecordReference {
	return na.containingFile
}

// Record returns the primary record.
func (na *NtfsAttribute) Record() AttributeRecord {
	return na.primary
}

// AttributeType returns the attribute's type tag.
func (na *NtfsAttribute) AttributeType() AttributeType {
	return na.primary.AttributeType()
}

// Name returns the attribute name ("" for the unnamed attribute).
func (na *NtfsAttribute) Name() string {
	return na.primary.Name()
}

// Flags returns the primary record's state bits.
func (na *NtfsAttribute) Flags() AttributeFlags {
	return na.primary.Flags()
}

// IsNonResident indicates non-resident content.
func (na *NtfsAttribute) IsNonResident() bool {
	return na.primary.IsNonResident()
}

// DataLength returns the logical attribute length. For a fragmented
// attribute the first extent carries it.
func (na *NtfsAttribute) DataLength() uint64 {
	if first, err := na.FirstExtent(); err == nil {
		return first.DataLength()
	}

	return na.primary.DataLength()
}

// ExtentCount returns the number of extents in the map.
func (na *NtfsAttribute) ExtentCount() int {
	return len(na.extents)
}

// HasExtent reports whether the reference is present in the extent map.
func (na *NtfsAttribute) HasExtent(ref AttributeReference) bool {
	_, found := na.extents[ref]
	return found
}

// Extent returns the extent record for the reference.
func (na *NtfsAttribute) Extent(ref AttributeReference) (record AttributeRecord, found bool) {
	record, found = na.extents[ref]
	return record, found
}

// ExtentVisitorFunc is a visitor callback over attribute extents.
type ExtentVisitorFunc func(ref AttributeReference, record AttributeRecord) (doContinue bool, err error)

// EnumerateExtents calls the callback for each extent in insertion order.
// The order is stable for the lifetime of the attribute instance.
func (na *NtfsAttribute) EnumerateExtents(cb ExtentVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for _, ref := range na.extentOrder {
		doContinue, err := cb(ref, na.extents[ref])
		log.PanicIf(err)

		if doContinue == false {
			break
		}
	}

	return nil
}

// AddExtent inserts a new extent. An already-present reference fails with
// ErrDuplicateExtent.
func (na *NtfsAttribute) AddExtent(ref AttributeReference, record AttributeRecord) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if _, found := na.extents[ref]; found == true {
		log.Panic(ErrDuplicateExtent)
	}

	na.extents[ref] = record
	na.extentOrder = append(na.extentOrder, ref)

	return nil
}

func (na *NtfsAttribute) dropFromOrder(ref AttributeReference) {
	for i, current := range na.extentOrder {
		if current == ref {
			na.extentOrder = append(na.extentOrder[:i], na.extentOrder[i+1:]...)
			break
		}
	}
}

// RemoveExtent removes an extent. A missing reference fails with
// ErrNotFound; callers that tolerate absence check HasExtent first.
func (na *NtfsAttribute) RemoveExtent(ref AttributeReference) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if _, found := na.extents[ref]; found == false {
		log.Panic(ErrNotFound)
	}

	delete(na.extents, ref)
	na.dropFromOrder(ref)

	return nil
}

// SetExtent clears the extent map and replaces it with the single given
// pair. The primary record and containing file reference follow the new
// extent.
func (na *NtfsAttribute) SetExtent(ref AttributeReference, record AttributeRecord) {
	na.extents = make(map[AttributeReference]AttributeRecord)
	na.extentOrder = na.extentOrder[:0]

	na.extents[ref] = record
	na.extentOrder = append(na.extentOrder, ref)

	na.primary = record
	na.containingFile = ref.File
}

// ReplaceExtent swaps `oldRef` for `(newRef -> record)`. It returns false
// if `oldRef` is not present. When the replaced extent was the primary one
// (or the map became empty just prior to reinsertion), the primary record
// and containing file reference follow the new extent.
func (na *NtfsAttribute) ReplaceExtent(oldRef, newRef AttributeReference, record AttributeRecord) bool {
	if _, found := na.extents[oldRef]; found == false {
		return false
	}

	wasPrimary := oldRef == na.Reference()

	delete(na.extents, oldRef)
	na.dropFromOrder(oldRef)

	if wasPrimary == true || len(na.extents) == 0 {
		na.primary = record
		na.containingFile = newRef.File
	}

	na.extents[newRef] = record
	na.extentOrder = append(na.extentOrder, newRef)

	return true
}

// GetNonResidentExtent returns the extent covering `targetVcn`. Any
// resident extent in the map fails the call with ErrResidentHasNoVcn; an
// uncovered VCN fails with ErrOutOfRange.
func (na *NtfsAttribute) GetNonResidentExtent(targetVcn uint64) (nrar *NonResidentAttributeRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for _, ref := range na.extentOrder {
		if _, ok := na.extents[ref].(*NonResidentAttributeRecord); ok == false {
			log.Panic(ErrResidentHasNoVcn)
		}
	}

	for _, ref := range na.extentOrder {
		current := na.extents[ref].(*NonResidentAttributeRecord)

		if current.StartVcn() <= targetVcn && targetVcn <= current.LastVcn() {
			return current, nil
		}
	}

	log.Panic(ErrOutOfRange)

	return nil, nil
}

// FirstExtent returns the resident extent if one exists (resident
// attributes have exactly one extent), else the non-resident extent
// starting at VCN zero. An extent map without either fails with
// ErrInconsistentExtents.
func (na *NtfsAttribute) FirstExtent() (record AttributeRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for _, ref := range na.extentOrder {
		if current := na.extents[ref]; current.IsNonResident() == false {
			return current, nil
		}
	}

	for _, ref := range na.extentOrder {
		current := na.extents[ref]

		if current.(*NonResidentAttributeRecord).StartVcn() == 0 {
			return current, nil
		}
	}

	log.Panic(ErrInconsistentExtents)

	return nil, nil
}

// LastExtent returns the resident extent if one exists, else the
// non-resident extent with the greatest LastVcn.
func (na *NtfsAttribute) LastExtent() (record AttributeRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	var last *NonResidentAttributeRecord

	for _, ref := range na.extentOrder {
		current := na.extents[ref]

		if current.IsNonResident() == false {
			return current, nil
		}

		nrar := current.(*NonResidentAttributeRecord)

		if last == nil || nrar.LastVcn() > last.LastVcn() {
			last = nrar
		}
	}

	if last == nil {
		log.Panic(ErrInconsistentExtents)
	}

	return last, nil
}

// CompressionUnitSize returns log2 clusters per compression unit from the
// first extent when non-resident, else zero.
func (na *NtfsAttribute) CompressionUnitSize() (size uint16, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	first, err := na.FirstExtent()
	log.PanicIf(err)

	if nrar, ok := first.(*NonResidentAttributeRecord); ok == true {
		return nrar.CompressionUnitSize(), nil
	}

	return 0, nil
}

// OffsetToAbsolutePos translates a byte offset within the attribute's data
// to an absolute position. Non-resident attributes resolve through the
// cluster runs; resident attributes resolve through the containing file's
// record position. A negative result means the offset falls in a hole.
func (na *NtfsAttribute) OffsetToAbsolutePos(offset int64) (pos int64, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if na.primary.IsNonResident() == true {
		return na.primary.OffsetToAbsolutePos(offset, 0, na.host.BytesPerCluster()), nil
	}

	attrStart, err := na.host.AttributeOffset(na.Reference())
	log.PanicIf(err)

	rar := na.primary.(*ResidentAttributeRecord)

	pos, err = na.host.RecordAbsolutePosition(na.containingFile, attrStart+rar.DataOffset()+offset)
	log.PanicIf(err)

	return pos, nil
}

// DataBuffer returns the byte-addressable view of the attribute content,
// virtualizing resident vs non-resident storage, sparse runs, and
// compression.
func (na *NtfsAttribute) DataBuffer() (buffer DataBuffer, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	first, err := na.FirstExtent()
	log.PanicIf(err)

	if rar, ok := first.(*ResidentAttributeRecord); ok == true {
		return newResidentDataBuffer(rar), nil
	}

	if na.host == nil {
		log.Panicf("non-resident attribute has no host to read through")
	}

	buffer = newNonResidentDataBuffer(na, na.host.VolumeReader(), na.host.BytesPerCluster())

	return buffer, nil
}

// Open returns a sparse byte stream over the attribute content. Writing
// requires AccessWrite.
func (na *NtfsAttribute) Open(access OpenAccess) (bs ByteStream, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	return newBufferStream(buffer, access), nil
}

// Dump writes a human-readable rendering: the attribute banner, length, a
// 32-byte hex preview of the content, and record-level detail per extent.
// A failed content read renders as "<can't read>"; this is the only place
// read errors are swallowed.
func (na *NtfsAttribute) Dump(w io.Writer, indent string) {
	name := na.Name()
	if name == "" {
		name = "no name"
	}

	fmt.Fprintf(w, "%s%s ATTRIBUTE (%s)\n", indent, strings.ToUpper(na.AttributeType().String()), name)
	fmt.Fprintf(w, "%s  Length: %d bytes\n", indent, na.DataLength())

	preview := "<can't read>"

	previewLength := na.DataLength()
	if previewLength > 32 {
		previewLength = 32
	}

	raw := make([]byte, previewLength)

	if buffer, err := na.DataBuffer(); err == nil {
		if _, err := buffer.ReadAt(raw, 0); err == nil {
			preview = HexPreview(raw, 32)
		}
	}

	fmt.Fprintf(w, "%s  Data: %s\n", indent, preview)

	for _, ref := range na.extentOrder {
		fmt.Fprintf(w, "%s  Extent %s\n", indent, ref)
		na.extents[ref].Dump(w, indent+"    ")
	}
}
