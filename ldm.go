// This file reads the LDM dynamic-disk metadata database: the VMDB header
// sector followed by a dense region of fixed-size VBLK record blocks. All
// multi-byte fields are big-endian.

package vdisk

import (
	"fmt"
	"io"
	"reflect"

	"github.com/dsoprea/go-logging"
)

const (
	databaseSectorSize = 512
)

var (
	requiredVmdbSignature = []byte("VMDB")
)

const (
	requiredDatabaseVersionMajor = 4
	requiredDatabaseVersionMinor = 10
)

// DatabaseHeader describes the geometry of the record region.
type DatabaseHeader struct {
	// Signature: The valid value for this field is, in ASCII characters,
	// "VMDB". Any other value invalidates the database.
	Signature [4]byte

	// HeaderSize: the byte offset, from the start of the database, of the
	// first record block. At least one sector.
	HeaderSize uint32

	// BlockSize: the size of each record block in bytes.
	BlockSize uint32

	// NumVBlks: the number of record blocks in the region. Unallocated
	// blocks within the region carry no VBLK signature.
	NumVBlks uint32

	// VersionMajor / VersionMinor: the database format revision. This
	// implementation requires 4.10.
	VersionMajor uint16
	VersionMinor uint16

	// GroupName: the administrative name of the disk group that owns the
	// database.
	GroupName [ldmNameSize]byte

	// DiskGroupGuid: the group GUID as NUL-padded ASCII.
	DiskGroupGuid [ldmGuidSize]byte
}

// GroupNameString returns the disk-group name.
func (dh DatabaseHeader) GroupNameString() string {
	return trimName(dh.GroupName[:])
}

// DiskGroupGuidString returns the group GUID in its on-disk spelling.
func (dh DatabaseHeader) DiskGroupGuidString() string {
	return trimName(dh.DiskGroupGuid[:])
}

func (dh DatabaseHeader) String() string {
	return "DatabaseHeader<GROUP=[" + dh.GroupNameString() + "] GUID=[" + dh.DiskGroupGuidString() + "]>"
}

// Dump prints the header parameters.
func (dh DatabaseHeader) Dump() {
	fmt.Printf("Database Header\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	fmt.Printf("HeaderSize: (%d)\n", dh.HeaderSize)
	fmt.Printf("BlockSize: (%d)\n", dh.BlockSize)
	fmt.Printf("NumVBlks: (%d)\n", dh.NumVBlks)
	fmt.Printf("Version: (%d).(%d)\n", dh.VersionMajor, dh.VersionMinor)
	fmt.Printf("GroupName: [%s]\n", dh.GroupNameString())
	fmt.Printf("DiskGroupGuid: [%s]\n", dh.DiskGroupGuidString())
	fmt.Printf("\n")
}

// Database is the fully-loaded record index. Once loaded it is read-only
// and safe for concurrent readers.
type Database struct {
	rs io.ReadSeeker

	header DatabaseHeader

	records     map[uint64]DatabaseRecord
	recordOrder []uint64
}

// NewDatabase reads the database at the stream's current position and
// indexes every record by ID.
func NewDatabase(rs io.ReadSeeker) (db *Database, err error) {
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

	db = &Database{
		rs: rs,

		records:     make(map[uint64]DatabaseRecord),
		recordOrder: make([]uint64, 0),
	}

	err = db.load()
	log.PanicIf(err)

	return db, nil
}

func (db *Database) parseN(byteCount int, x interface{}) (err error) {
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

	raw := make([]byte, byteCount)

	_, err = io.ReadFull(db.rs, raw)
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		log.Panic(ErrUnexpectedEof)
	}

	log.PanicIf(err)

	err = unpackStruct(raw, ldmEncoding, x)
	log.PanicIf(err)

	return nil
}

func (db *Database) readHeader() (dh DatabaseHeader, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	err = db.parseN(databaseSectorSize, &dh)
	log.PanicIf(err)

	if string(dh.Signature[:]) != string(requiredVmdbSignature) {
		log.Panic(ErrCorruptDatabase)
	} else if dh.VersionMajor != requiredDatabaseVersionMajor || dh.VersionMinor != requiredDatabaseVersionMinor {
		log.Panic(ErrCorruptDatabase)
	} else if dh.HeaderSize < databaseSectorSize {
		log.Panic(ErrCorruptDatabase)
	} else if dh.BlockSize < vblkHeaderSize {
		log.Panic(ErrCorruptDatabase)
	}

	return dh, nil
}

func (db *Database) load() (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	dbStart, err := db.rs.Seek(0, io.SeekCurrent)
	log.PanicIf(err)

	// TODO(dustin): Fall back to the backup database copy when the primary
	// header is corrupt.

	dh, err := db.readHeader()
	log.PanicIf(err)

	db.header = dh

	_, err = db.rs.Seek(dbStart+int64(dh.HeaderSize), io.SeekStart)
	log.PanicIf(err)

	block := make([]byte, dh.BlockSize)

	for i := uint32(0); i < dh.NumVBlks; i++ {
		_, err = io.ReadFull(db.rs, block)
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			log.Panic(ErrUnexpectedEof)
		}

		log.PanicIf(err)

		record, err := parseDatabaseRecord(block)
		log.PanicIf(err)

		if record == nil {
			// Unallocated or reserved block.
			continue
		}

		id := record.RecordId()

		if _, found := db.records[id]; found == true {
			log.Panic(ErrCorruptDatabase)
		}

		db.records[id] = record
		db.recordOrder = append(db.recordOrder, id)
	}

	return nil
}

// Header returns the parsed database header.
func (db *Database) Header() DatabaseHeader {
	return db.header
}

// RecordCount returns the number of records successfully parsed. Never more
// than NumVBlks.
func (db *Database) RecordCount() int {
	return len(db.records)
}

// RecordVisitorFunc is a visitor callback over database records.
type RecordVisitorFunc func(record DatabaseRecord) (doContinue bool, err error)

// EnumerateRecords calls the given callback for each record. Iteration
// order is the block order of the load and is stable for the lifetime of
// the database instance.
func (db *Database) EnumerateRecords(cb RecordVisitorFunc) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	for _, id := range db.recordOrder {
		doContinue, err := cb(db.records[id])
		log.PanicIf(err)

		if doContinue == false {
			break
		}
	}

	return nil
}

// FindRecord returns the first record of the given type satisfying the
// predicate, or nil if none does.
func (db *Database) FindRecord(recordType RecordType, pred func(record DatabaseRecord) bool) DatabaseRecord {
	for _, id := range db.recordOrder {
		record := db.records[id]

		if record.Type() != recordType {
			continue
		}

		if pred == nil || pred(record) == true {
			return record
		}
	}

	return nil
}

// GetDiskGroup returns the disk-group record whose GUID matches `guid`
// under canonicalization.
func (db *Database) GetDiskGroup(guid string) (dgr *DiskGroupRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	wanted := CanonicalGuid(guid)

	record := db.FindRecord(RecordTypeDiskGroup, func(record DatabaseRecord) bool {
		return CanonicalGuid(record.(*DiskGroupRecord).GroupGuidString()) == wanted
	})

	if record == nil {
		log.Panic(ErrNotFound)
	}

	return record.(*DiskGroupRecord), nil
}

// Disks returns all disk records in stable order.
func (db *Database) Disks() []*DiskRecord {
	disks := make([]*DiskRecord, 0)

	for _, id := range db.recordOrder {
		if dr, ok := db.records[id].(*DiskRecord); ok == true {
			disks = append(disks, dr)
		}
	}

	return disks
}

// Volumes returns all volume records in stable order.
func (db *Database) Volumes() []*VolumeRecord {
	volumes := make([]*VolumeRecord, 0)

	for _, id := range db.recordOrder {
		if vr, ok := db.records[id].(*VolumeRecord); ok == true {
			volumes = append(volumes, vr)
		}
	}

	return volumes
}

// VolumeComponents returns the components whose parent is the given volume,
// in stable order.
func (db *Database) VolumeComponents(volumeId uint64) []*ComponentRecord {
	components := make([]*ComponentRecord, 0)

	for _, id := range db.recordOrder {
		if cr, ok := db.records[id].(*ComponentRecord); ok == true && cr.VolumeId == volumeId {
			components = append(components, cr)
		}
	}

	return components
}

// ComponentExtents returns the extents whose parent is the given component,
// in stable order.
func (db *Database) ComponentExtents(componentId uint64) []*ExtentRecord {
	extents := make([]*ExtentRecord, 0)

	for _, id := range db.recordOrder {
		if er, ok := db.records[id].(*ExtentRecord); ok == true && er.ComponentId == componentId {
			extents = append(extents, er)
		}
	}

	return extents
}

// GetRecord returns the record with the given ID.
func (db *Database) GetRecord(id uint64) (record DatabaseRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	record, found := db.records[id]
	if found == false {
		log.Panic(ErrNotFound)
	}

	return record, nil
}

// GetDisk returns the disk record with the given ID. A missing ID or a
// record of another type fails with ErrNotFound.
func (db *Database) GetDisk(id uint64) (dr *DiskRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	record, err := db.GetRecord(id)
	log.PanicIf(err)

	dr, ok := record.(*DiskRecord)
	if ok == false {
		log.Panic(ErrNotFound)
	}

	return dr, nil
}

// GetVolume returns the volume record with the given ID. A missing ID or a
// record of another type fails with ErrNotFound.
func (db *Database) GetVolume(id uint64) (vr *VolumeRecord, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	record, err := db.GetRecord(id)
	log.PanicIf(err)

	vr, ok := record.(*VolumeRecord)
	if ok == false {
		log.Panic(ErrNotFound)
	}

	return vr, nil
}

// Dump prints the header and every record.
func (db *Database) Dump() {
	db.header.Dump()

	for _, id := range db.recordOrder {
		db.records[id].Dump()
	}
}
