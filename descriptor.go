// This file manages the VMDK descriptor file: a three-section text manifest
// (header key/values, extent descriptors, disk-database key/values) that
// round-trips through Load and Save.

package vdisk

import (
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strconv"
	"strings"

	"github.com/Velocidex/ordereddict"
	"github.com/dsoprea/go-logging"
)

const (
	headerKeyVersion            = "version"
	headerKeyContentId          = "CID"
	headerKeyParentContentId    = "parentCID"
	headerKeyCreateType         = "createType"
	headerKeyParentFileNameHint = "parentFileNameHint"

	ddbKeyAdapterType       = "ddb.adapterType"
	ddbKeyGeometrySectors   = "ddb.geometry.sectors"
	ddbKeyGeometryHeads     = "ddb.geometry.heads"
	ddbKeyGeometryCylinders = "ddb.geometry.cylinders"
	ddbKeyHardwareVersion   = "ddb.virtualHWVersion"
	ddbKeyUuid              = "ddb.uuid"

	ddbKeyPrefix = "ddb."
)

// DiskGeometry is the BIOS geometry carried in the disk database.
type DiskGeometry struct {
	Cylinders uint32
	Heads     uint32
	Sectors   uint32
}

func (dg DiskGeometry) String() string {
	return fmt.Sprintf("DiskGeometry<C=(%d) H=(%d) S=(%d)>", dg.Cylinders, dg.Heads, dg.Sectors)
}

// DescriptorFile is the parsed descriptor: header entries, extent
// descriptors, and disk-database entries, each preserving insertion order.
type DescriptorFile struct {
	header  *ordereddict.Dict
	ddb     *ordereddict.Dict
	extents []ExtentDescriptor
}

// NewDescriptorFile returns a descriptor populated with the standard
// defaults for a new disk.
func NewDescriptorFile() *DescriptorFile {
	df := &DescriptorFile{
		header:  ordereddict.NewDict(),
		ddb:     ordereddict.NewDict(),
		extents: make([]ExtentDescriptor, 0),
	}

	df.SetEntry(DescriptorEntry{Key: headerKeyVersion, Value: "1", Kind: EntryPlain})
	df.SetEntry(DescriptorEntry{Key: headerKeyContentId, Value: "ffffffff", Kind: EntryPlain})
	df.SetEntry(DescriptorEntry{Key: headerKeyParentContentId, Value: "ffffffff", Kind: EntryPlain})
	df.SetEntry(DescriptorEntry{Key: headerKeyCreateType, Value: "", Kind: EntryQuoted})

	df.SetEntry(DescriptorEntry{Key: ddbKeyAdapterType, Value: "lsilogic", Kind: EntryQuoted})
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometrySectors, Value: "", Kind: EntryQuoted})
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometryHeads, Value: "", Kind: EntryQuoted})
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometryCylinders, Value: "", Kind: EntryQuoted})

	return df
}

// ParseDescriptorFile parses descriptor text.
func ParseDescriptorFile(data []byte) (df *DescriptorFile, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	df = &DescriptorFile{
		header:  ordereddict.NewDict(),
		ddb:     ordereddict.NewDict(),
		extents: make([]ExtentDescriptor, 0),
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimRight(line, "\x00")
		line = strings.TrimRight(line, "\r")

		if hashAt := strings.IndexByte(line, '#'); hashAt >= 0 {
			line = line[:hashAt]
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "RW") == true || strings.HasPrefix(line, "RDONLY") == true || strings.HasPrefix(line, "NOACCESS") == true {
			ed, err := parseExtentDescriptor(line)
			log.PanicIf(err)

			df.extents = append(df.extents, ed)

			continue
		}

		equalsAt := strings.IndexByte(line, '=')
		if equalsAt < 0 {
			log.Panic(ErrMalformedLine)
		}

		key := strings.TrimSpace(line[:equalsAt])
		value := strings.TrimSpace(line[equalsAt+1:])

		kind := EntryPlain
		if len(value) >= 2 && strings.HasPrefix(value, "\"") == true && strings.HasSuffix(value, "\"") == true {
			kind = EntryQuoted
			value = value[1 : len(value)-1]
		}

		df.SetEntry(DescriptorEntry{Key: key, Value: value, Kind: kind})
	}

	return df, nil
}

// LoadDescriptorFile opens the named stream through the locator and parses
// it.
func LoadDescriptorFile(fl FileLocator, name string) (df *DescriptorFile, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	bs, err := fl.Open(name, os.O_RDONLY)
	log.PanicIf(err)

	defer bs.Close()

	data, err := ioutil.ReadAll(bs)
	log.PanicIf(err)

	df, err = ParseDescriptorFile(data)
	log.PanicIf(err)

	return df, nil
}

// section selects the header or disk-database dict for a key.
func (df *DescriptorFile) section(key string) *ordereddict.Dict {
	if strings.HasPrefix(key, ddbKeyPrefix) == true {
		return df.ddb
	}

	return df.header
}

// GetEntry looks a key up in whichever section owns it.
func (df *DescriptorFile) GetEntry(key string) (de DescriptorEntry, found bool) {
	raw, found := df.section(key).Get(key)
	if found == false {
		return de, false
	}

	return raw.(DescriptorEntry), true
}

// SetEntry inserts or replaces an entry in whichever section owns its key.
// Keys are unique within a section; a replace keeps the original position.
func (df *DescriptorFile) SetEntry(de DescriptorEntry) {
	df.section(de.Key).Set(de.Key, de)
}

// entryValue returns the value for a key or "" if absent.
func (df *DescriptorFile) entryValue(key string) string {
	de, found := df.GetEntry(key)
	if found == false {
		return ""
	}

	return de.Value
}

func sectionEntries(section *ordereddict.Dict) []DescriptorEntry {
	keys := section.Keys()

	entries := make([]DescriptorEntry, 0, len(keys))
	for _, key := range keys {
		raw, _ := section.Get(key)
		entries = append(entries, raw.(DescriptorEntry))
	}

	return entries
}

// HeaderEntries returns the header-section entries in insertion order.
func (df *DescriptorFile) HeaderEntries() []DescriptorEntry {
	return sectionEntries(df.header)
}

// DiskDatabaseEntries returns the disk-database entries in insertion order.
func (df *DescriptorFile) DiskDatabaseEntries() []DescriptorEntry {
	return sectionEntries(df.ddb)
}

// Extents returns the extent descriptors in insertion order.
func (df *DescriptorFile) Extents() []ExtentDescriptor {
	return df.extents
}

// AddExtent appends an extent descriptor.
func (df *DescriptorFile) AddExtent(ed ExtentDescriptor) {
	df.extents = append(df.extents, ed)
}

// Version returns the header `version` value.
func (df *DescriptorFile) Version() (version int64, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := df.entryValue(headerKeyVersion)
	if raw == "" {
		return 0, nil
	}

	version, err = strconv.ParseInt(raw, 10, 64)
	if err != nil {
		log.Panic(ErrMalformedLine)
	}

	return version, nil
}

// SetVersion sets the header `version` value.
func (df *DescriptorFile) SetVersion(version int64) {
	df.SetEntry(DescriptorEntry{Key: headerKeyVersion, Value: strconv.FormatInt(version, 10), Kind: EntryPlain})
}

// ContentId returns the `CID` value.
func (df *DescriptorFile) ContentId() (cid uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	cid, err = parseContentId(df.entryValue(headerKeyContentId))
	log.PanicIf(err)

	return cid, nil
}

// SetContentId sets the `CID` value (eight lowercase hex digits).
func (df *DescriptorFile) SetContentId(cid uint32) {
	df.SetEntry(DescriptorEntry{Key: headerKeyContentId, Value: formatContentId(cid), Kind: EntryPlain})
}

// ParentContentId returns the `parentCID` value.
func (df *DescriptorFile) ParentContentId() (cid uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	cid, err = parseContentId(df.entryValue(headerKeyParentContentId))
	log.PanicIf(err)

	return cid, nil
}

// SetParentContentId sets the `parentCID` value.
func (df *DescriptorFile) SetParentContentId(cid uint32) {
	df.SetEntry(DescriptorEntry{Key: headerKeyParentContentId, Value: formatContentId(cid), Kind: EntryPlain})
}

// CreateType returns the `createType` enumeration. An absent or empty value
// is CreateTypeNone; an unrecognized token fails with ErrUnknownEnum.
func (df *DescriptorFile) CreateType() (dct DiskCreateType, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := df.entryValue(headerKeyCreateType)
	if raw == "" {
		return CreateTypeNone, nil
	}

	dct, err = ParseCreateType(raw)
	log.PanicIf(err)

	return dct, nil
}

// SetCreateType sets the `createType` token.
func (df *DescriptorFile) SetCreateType(dct DiskCreateType) {
	df.SetEntry(DescriptorEntry{Key: headerKeyCreateType, Value: dct.String(), Kind: EntryQuoted})
}

// ParentFileNameHint returns the `parentFileNameHint` value.
func (df *DescriptorFile) ParentFileNameHint() string {
	return df.entryValue(headerKeyParentFileNameHint)
}

// SetParentFileNameHint sets the `parentFileNameHint` value.
func (df *DescriptorFile) SetParentFileNameHint(hint string) {
	df.SetEntry(DescriptorEntry{Key: headerKeyParentFileNameHint, Value: hint, Kind: EntryQuoted})
}

// AdapterType returns the `ddb.adapterType` enumeration. An absent or empty
// value is AdapterTypeNone; an unrecognized token fails with ErrUnknownEnum.
func (df *DescriptorFile) AdapterType() (dat DiskAdapterType, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := df.entryValue(ddbKeyAdapterType)
	if raw == "" {
		return AdapterTypeNone, nil
	}

	dat, err = ParseAdapterType(raw)
	log.PanicIf(err)

	return dat, nil
}

// SetAdapterType sets the `ddb.adapterType` token.
func (df *DescriptorFile) SetAdapterType(dat DiskAdapterType) {
	df.SetEntry(DescriptorEntry{Key: ddbKeyAdapterType, Value: dat.String(), Kind: EntryQuoted})
}

func (df *DescriptorFile) geometryValue(key string) (value uint32, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	raw := df.entryValue(key)
	if raw == "" {
		return 0, nil
	}

	parsed, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		log.Panic(ErrMalformedLine)
	}

	return uint32(parsed), nil
}

// Geometry returns the BIOS geometry from the disk database. Absent or
// empty entries read as zero.
func (df *DescriptorFile) Geometry() (dg DiskGeometry, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	cylinders, err := df.geometryValue(ddbKeyGeometryCylinders)
	log.PanicIf(err)

	heads, err := df.geometryValue(ddbKeyGeometryHeads)
	log.PanicIf(err)

	sectors, err := df.geometryValue(ddbKeyGeometrySectors)
	log.PanicIf(err)

	dg = DiskGeometry{
		Cylinders: cylinders,
		Heads:     heads,
		Sectors:   sectors,
	}

	return dg, nil
}

// SetGeometry sets the disk-database geometry entries.
func (df *DescriptorFile) SetGeometry(dg DiskGeometry) {
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometrySectors, Value: strconv.FormatUint(uint64(dg.Sectors), 10), Kind: EntryQuoted})
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometryHeads, Value: strconv.FormatUint(uint64(dg.Heads), 10), Kind: EntryQuoted})
	df.SetEntry(DescriptorEntry{Key: ddbKeyGeometryCylinders, Value: strconv.FormatUint(uint64(dg.Cylinders), 10), Kind: EntryQuoted})
}

// HardwareVersion returns the `ddb.virtualHWVersion` value.
func (df *DescriptorFile) HardwareVersion() string {
	return df.entryValue(ddbKeyHardwareVersion)
}

// SetHardwareVersion sets the `ddb.virtualHWVersion` value.
func (df *DescriptorFile) SetHardwareVersion(version string) {
	df.SetEntry(DescriptorEntry{Key: ddbKeyHardwareVersion, Value: version, Kind: EntryQuoted})
}

// Uuid returns the `ddb.uuid` GUID.
func (df *DescriptorFile) Uuid() (guid [16]byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	guid, err = ParseDescriptorUuid(df.entryValue(ddbKeyUuid))
	log.PanicIf(err)

	return guid, nil
}

// SetUuid sets the `ddb.uuid` GUID.
func (df *DescriptorFile) SetUuid(guid [16]byte) {
	df.SetEntry(DescriptorEntry{Key: ddbKeyUuid, Value: FormatDescriptorUuid(guid), Kind: EntryQuoted})
}

// Write emits the descriptor in the standard three-section format. Output is
// ASCII with LF line endings; each section preserves its insertion order.
func (df *DescriptorFile) Write(w io.Writer) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	writeLine := func(line string) {
		_, err := io.WriteString(w, line+"\n")
		log.PanicIf(err)
	}

	writeLine("# Disk DescriptorFile")

	for _, de := range df.HeaderEntries() {
		writeLine(de.Emit())
	}

	writeLine("")
	writeLine("# Extent description")

	for _, ed := range df.extents {
		writeLine(ed.Emit())
	}

	writeLine("")
	writeLine("# The Disk Data Base")
	writeLine("#DDB")

	for _, de := range df.DiskDatabaseEntries() {
		writeLine(de.Emit())
	}

	return nil
}

// Save writes the descriptor through the locator, truncating any existing
// stream.
func (df *DescriptorFile) Save(fl FileLocator, name string) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	bs, err := fl.Open(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	log.PanicIf(err)

	defer bs.Close()

	err = df.Write(bs)
	log.PanicIf(err)

	return nil
}

// Dump prints the parsed descriptor.
func (df *DescriptorFile) Dump() {
	fmt.Printf("Descriptor File\n")
	fmt.Printf("===============\n")
	fmt.Printf("\n")

	for _, de := range df.HeaderEntries() {
		fmt.Printf("%s\n", de)
	}

	fmt.Printf("\n")

	for _, ed := range df.extents {
		fmt.Printf("%s\n", ed)
	}

	fmt.Printf("\n")

	for _, de := range df.DiskDatabaseEntries() {
		fmt.Printf("%s\n", de)
	}

	fmt.Printf("\n")
}
