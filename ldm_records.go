// Typed VBLK records of the LDM database. Each record type has a fixed
// on-disk layout and is selected by the type tag in the block header.

package vdisk

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/dsoprea/go-logging"
)

// RecordType is the VBLK record-type tag.
type RecordType uint8

const (
	RecordTypeNone      RecordType = 0x00
	RecordTypeComponent RecordType = 0x32
	RecordTypeExtent    RecordType = 0x33
	RecordTypeDisk      RecordType = 0x34
	RecordTypeDiskGroup RecordType = 0x35
	RecordTypeVolume    RecordType = 0x51
)

var (
	recordTypeNames = map[RecordType]string{
		RecordTypeComponent: "Component",
		RecordTypeExtent:    "Extent",
		RecordTypeDisk:      "Disk",
		RecordTypeDiskGroup: "DiskGroup",
		RecordTypeVolume:    "Volume",
	}
)

func (rt RecordType) String() string {
	if name, found := recordTypeNames[rt]; found == true {
		return name
	}

	return fmt.Sprintf("Unknown<0x%02x>", uint8(rt))
}

// DatabaseRecord is one typed record of the database.
type DatabaseRecord interface {
	RecordId() uint64
	Type() RecordType
	RecordName() string
	Dump()
}

// vblkHeader leads every record block.
type vblkHeader struct {
	// Signature: The valid value for this field is, in ASCII characters,
	// "VBLK". A block with any other signature is not a record block and is
	// skipped.
	Signature [4]byte

	// SequenceNumber: update sequence of the block within the database.
	SequenceNumber uint32

	// GroupNumber: the disk group the record belongs to.
	GroupNumber uint32

	// RecordType: selects the record layout following this header.
	RecordType uint8

	// Flags: record state bits. No flag currently affects decoding.
	Flags uint8
}

const (
	vblkHeaderSize = 14

	ldmNameSize = 31
	ldmGuidSize = 64
)

var (
	requiredVblkSignature = []byte("VBLK")
)

// DiskGroupRecord is the root record of a dynamic-disk group.
type DiskGroupRecord struct {
	// Id: unique record identifier within the database.
	Id uint64

	// Name: the administrative name of the disk group.
	Name [ldmNameSize]byte

	// GroupGuid: the group GUID as NUL-padded ASCII.
	GroupGuid [ldmGuidSize]byte
}

func (dgr *DiskGroupRecord) RecordId() uint64 {
	return dgr.Id
}

func (dgr *DiskGroupRecord) Type() RecordType {
	return RecordTypeDiskGroup
}

func (dgr *DiskGroupRecord) RecordName() string {
	return trimName(dgr.Name[:])
}

// GroupGuidString returns the group GUID in its on-disk spelling.
func (dgr *DiskGroupRecord) GroupGuidString() string {
	return strings.TrimRight(string(dgr.GroupGuid[:]), "\x00")
}

func (dgr *DiskGroupRecord) String() string {
	return fmt.Sprintf("DiskGroupRecord<ID=(%d) NAME=[%s] GUID=[%s]>", dgr.Id, dgr.RecordName(), dgr.GroupGuidString())
}

func (dgr *DiskGroupRecord) Dump() {
	fmt.Printf("Disk Group Record\n")
	fmt.Printf("=================\n")
	fmt.Printf("\n")

	fmt.Printf("Id: (%d)\n", dgr.Id)
	fmt.Printf("Name: [%s]\n", dgr.RecordName())
	fmt.Printf("GroupGuid: [%s]\n", dgr.GroupGuidString())
	fmt.Printf("\n")
}

// DiskRecord describes one physical disk member of the group.
type DiskRecord struct {
	// Id: unique record identifier within the database.
	Id uint64

	// Name: the administrative name of the disk.
	Name [ldmNameSize]byte

	// DiskGuid: the disk GUID as NUL-padded ASCII.
	DiskGuid [ldmGuidSize]byte

	// DevicePath: the last-known host device path, informational only.
	DevicePath [ldmGuidSize]byte
}

func (dr *DiskRecord) RecordId() uint64 {
	return dr.Id
}

func (dr *DiskRecord) Type() RecordType {
	return RecordTypeDisk
}

func (dr *DiskRecord) RecordName() string {
	return trimName(dr.Name[:])
}

// DiskGuidString returns the disk GUID in its on-disk spelling.
func (dr *DiskRecord) DiskGuidString() string {
	return strings.TrimRight(string(dr.DiskGuid[:]), "\x00")
}

func (dr *DiskRecord) String() string {
	return fmt.Sprintf("DiskRecord<ID=(%d) NAME=[%s] GUID=[%s]>", dr.Id, dr.RecordName(), dr.DiskGuidString())
}

func (dr *DiskRecord) Dump() {
	fmt.Printf("Disk Record\n")
	fmt.Printf("===========\n")
	fmt.Printf("\n")

	fmt.Printf("Id: (%d)\n", dr.Id)
	fmt.Printf("Name: [%s]\n", dr.RecordName())
	fmt.Printf("DiskGuid: [%s]\n", dr.DiskGuidString())
	fmt.Printf("DevicePath: [%s]\n", trimName(dr.DevicePath[:]))
	fmt.Printf("\n")
}

// VolumeRecord describes one logical volume of the group.
type VolumeRecord struct {
	// Id: unique record identifier within the database.
	Id uint64

	// Name: the administrative name of the volume.
	Name [ldmNameSize]byte

	// VolumeGuid: the volume GUID as NUL-padded ASCII.
	VolumeGuid [ldmGuidSize]byte

	// State: the volume state string ("ACTIVE", "SYNC", ...).
	State [14]byte

	// VolumeType: layout discriminator (simple, spanned, striped, ...).
	VolumeType uint8

	// BiosType: the partition-type byte surfaced to the BIOS.
	BiosType uint8

	// SizeLba: the volume length in sectors.
	SizeLba uint64
}

func (vr *VolumeRecord) RecordId() uint64 {
	return vr.Id
}

func (vr *VolumeRecord) Type() RecordType {
	return RecordTypeVolume
}

func (vr *VolumeRecord) RecordName() string {
	return trimName(vr.Name[:])
}

// VolumeGuidString returns the volume GUID in its on-disk spelling.
func (vr *VolumeRecord) VolumeGuidString() string {
	return strings.TrimRight(string(vr.VolumeGuid[:]), "\x00")
}

// StateString returns the volume state.
func (vr *VolumeRecord) StateString() string {
	return trimName(vr.State[:])
}

func (vr *VolumeRecord) String() string {
	return fmt.Sprintf("VolumeRecord<ID=(%d) NAME=[%s] GUID=[%s] SIZE-LBA=(%d)>", vr.Id, vr.RecordName(), vr.VolumeGuidString(), vr.SizeLba)
}

func (vr *VolumeRecord) Dump() {
	fmt.Printf("Volume Record\n")
	fmt.Printf("=============\n")
	fmt.Printf("\n")

	fmt.Printf("Id: (%d)\n", vr.Id)
	fmt.Printf("Name: [%s]\n", vr.RecordName())
	fmt.Printf("VolumeGuid: [%s]\n", vr.VolumeGuidString())
	fmt.Printf("State: [%s]\n", vr.StateString())
	fmt.Printf("VolumeType: (0x%02x)\n", vr.VolumeType)
	fmt.Printf("BiosType: (0x%02x)\n", vr.BiosType)
	fmt.Printf("SizeLba: (%d)\n", vr.SizeLba)
	fmt.Printf("\n")
}

// ComponentRecord binds a volume to a set of extents.
type ComponentRecord struct {
	// Id: unique record identifier within the database.
	Id uint64

	// Name: the administrative name of the component.
	Name [ldmNameSize]byte

	// VolumeId: the record ID of the parent volume.
	VolumeId uint64

	// StripeSizeLba: the stripe interleave in sectors; zero when the
	// component is not striped.
	StripeSizeLba uint64

	// NumExtents: the number of extents the component expects.
	NumExtents uint32
}

func (cr *ComponentRecord) RecordId() uint64 {
	return cr.Id
}

func (cr *ComponentRecord) Type() RecordType {
	return RecordTypeComponent
}

func (cr *ComponentRecord) RecordName() string {
	return trimName(cr.Name[:])
}

func (cr *ComponentRecord) String() string {
	return fmt.Sprintf("ComponentRecord<ID=(%d) NAME=[%s] VOLUME-ID=(%d)>", cr.Id, cr.RecordName(), cr.VolumeId)
}

func (cr *ComponentRecord) Dump() {
	fmt.Printf("Component Record\n")
	fmt.Printf("================\n")
	fmt.Printf("\n")

	fmt.Printf("Id: (%d)\n", cr.Id)
	fmt.Printf("Name: [%s]\n", cr.RecordName())
	fmt.Printf("VolumeId: (%d)\n", cr.VolumeId)
	fmt.Printf("StripeSizeLba: (%d)\n", cr.StripeSizeLba)
	fmt.Printf("NumExtents: (%d)\n", cr.NumExtents)
	fmt.Printf("\n")
}

// ExtentRecord maps a contiguous run of a component onto a disk.
type ExtentRecord struct {
	// Id: unique record identifier within the database.
	Id uint64

	// Name: the administrative name of the extent.
	Name [ldmNameSize]byte

	// ComponentId: the record ID of the parent component.
	ComponentId uint64

	// DiskId: the record ID of the disk carrying the extent.
	DiskId uint64

	// DiskOffsetLba: the starting sector of the extent on the disk.
	DiskOffsetLba uint64

	// OffsetInVolumeLba: the starting sector of the extent within the
	// volume's address space.
	OffsetInVolumeLba uint64

	// SizeLba: the extent length in sectors.
	SizeLba uint64
}

func (er *ExtentRecord) RecordId() uint64 {
	return er.Id
}

func (er *ExtentRecord) Type() RecordType {
	return RecordTypeExtent
}

func (er *ExtentRecord) RecordName() string {
	return trimName(er.Name[:])
}

func (er *ExtentRecord) String() string {
	return fmt.Sprintf("ExtentRecord<ID=(%d) NAME=[%s] COMPONENT-ID=(%d) DISK-ID=(%d) DISK-OFFSET-LBA=(%d) SIZE-LBA=(%d)>", er.Id, er.RecordName(), er.ComponentId, er.DiskId, er.DiskOffsetLba, er.SizeLba)
}

func (er *ExtentRecord) Dump() {
	fmt.Printf("Extent Record\n")
	fmt.Printf("=============\n")
	fmt.Printf("\n")

	fmt.Printf("Id: (%d)\n", er.Id)
	fmt.Printf("Name: [%s]\n", er.RecordName())
	fmt.Printf("ComponentId: (%d)\n", er.ComponentId)
	fmt.Printf("DiskId: (%d)\n", er.DiskId)
	fmt.Printf("DiskOffsetLba: (%d)\n", er.DiskOffsetLba)
	fmt.Printf("OffsetInVolumeLba: (%d)\n", er.OffsetInVolumeLba)
	fmt.Printf("SizeLba: (%d)\n", er.SizeLba)
	fmt.Printf("\n")
}

var (
	// databaseRecordParsers expresses every record type the database
	// recognizes. Blocks with any other type tag are skipped.
	databaseRecordParsers = map[RecordType]reflect.Type{
		RecordTypeDiskGroup: reflect.TypeOf(DiskGroupRecord{}),
		RecordTypeDisk:      reflect.TypeOf(DiskRecord{}),
		RecordTypeVolume:    reflect.TypeOf(VolumeRecord{}),
		RecordTypeComponent: reflect.TypeOf(ComponentRecord{}),
		RecordTypeExtent:    reflect.TypeOf(ExtentRecord{}),
	}
)

func trimName(raw []byte) string {
	return strings.TrimRight(string(raw), "\x00")
}

// parseDatabaseRecord decodes one block. A nil record (with nil error) means
// the block is not a recognized record and the caller should skip it.
func parseDatabaseRecord(block []byte) (record DatabaseRecord, err error) {
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

	if len(block) < vblkHeaderSize {
		log.Panic(ErrUnexpectedEof)
	}

	vh := vblkHeader{}

	err = unpackStruct(block[:vblkHeaderSize], ldmEncoding, &vh)
	log.PanicIf(err)

	if string(vh.Signature[:]) != string(requiredVblkSignature) {
		// Not a record block (unallocated or reserved); skip.
		return nil, nil
	}

	structType, found := databaseRecordParsers[RecordType(vh.RecordType)]
	if found == false {
		// Unknown/reserved record type; skip.
		return nil, nil
	}

	s := reflect.New(structType)
	x := s.Interface()

	err = unpackStruct(block[vblkHeaderSize:], ldmEncoding, x)
	log.PanicIf(err)

	return x.(DatabaseRecord), nil
}
