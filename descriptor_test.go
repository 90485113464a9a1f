package vdisk

import (
	"bytes"
	"os"
	"reflect"
	"testing"

	"github.com/dsoprea/go-logging"
)

const (
	minimalDescriptorText = `# Disk DescriptorFile
version=1
CID=deadbeef
parentCID=ffffffff
createType="monolithicSparse"

# Extent description
RW 20480 SPARSE "disk-s001.vmdk"

# The Disk Data Base
#DDB
ddb.adapterType="lsilogic"
`
)

func TestParseDescriptorFile_Minimal(t *testing.T) {
	df, err := ParseDescriptorFile([]byte(minimalDescriptorText))
	log.PanicIf(err)

	cid, err := df.ContentId()
	log.PanicIf(err)

	if cid != 0xdeadbeef {
		t.Fatalf("ContentId not correct: (0x%08x)", cid)
	}

	parentCid, err := df.ParentContentId()
	log.PanicIf(err)

	if parentCid != 0xffffffff {
		t.Fatalf("ParentContentId not correct: (0x%08x)", parentCid)
	}

	createType, err := df.CreateType()
	log.PanicIf(err)

	if createType != CreateTypeMonolithicSparse {
		t.Fatalf("CreateType not correct: [%s]", createType)
	}

	adapterType, err := df.AdapterType()
	log.PanicIf(err)

	if adapterType != AdapterTypeLsiLogicScsi {
		t.Fatalf("AdapterType not correct: [%s]", adapterType)
	}

	extents := df.Extents()
	if len(extents) != 1 {
		t.Fatalf("Extent count not correct: (%d)", len(extents))
	}

	expectedExtent := ExtentDescriptor{
		Access:      ExtentAccessRw,
		SizeSectors: 20480,
		ExtentType:  "SPARSE",
		Filename:    "disk-s001.vmdk",
	}

	if extents[0] != expectedExtent {
		t.Fatalf("Extent not correct: %s", extents[0])
	}
}

func TestParseDescriptorFile_UnknownCreateType(t *testing.T) {
	text := `version=1
createType="notARealCreateType"
`

	df, err := ParseDescriptorFile([]byte(text))
	log.PanicIf(err)

	_, err = df.CreateType()
	if log.Is(err, ErrUnknownEnum) != true {
		t.Fatalf("Unknown createType did not fail correctly: %v", err)
	}
}

func TestParseDescriptorFile_MalformedLine(t *testing.T) {
	_, err := ParseDescriptorFile([]byte("this is not a descriptor line\n"))
	if log.Is(err, ErrMalformedLine) != true {
		t.Fatalf("Malformed line did not fail correctly: %v", err)
	}
}

func TestDescriptorFile_Emit(t *testing.T) {
	df, err := ParseDescriptorFile([]byte(minimalDescriptorText))
	log.PanicIf(err)

	b := new(bytes.Buffer)

	err = df.Write(b)
	log.PanicIf(err)

	if b.String() != minimalDescriptorText {
		t.Fatalf("Emitted descriptor not correct:\n%s", b.String())
	}
}

func TestDescriptorFile_RoundTrip(t *testing.T) {
	df1, err := ParseDescriptorFile([]byte(minimalDescriptorText))
	log.PanicIf(err)

	b := new(bytes.Buffer)

	err = df1.Write(b)
	log.PanicIf(err)

	df2, err := ParseDescriptorFile(b.Bytes())
	log.PanicIf(err)

	if reflect.DeepEqual(df1.HeaderEntries(), df2.HeaderEntries()) != true {
		t.Fatalf("Header entries did not round-trip.")
	}

	if reflect.DeepEqual(df1.Extents(), df2.Extents()) != true {
		t.Fatalf("Extents did not round-trip.")
	}

	if reflect.DeepEqual(df1.DiskDatabaseEntries(), df2.DiskDatabaseEntries()) != true {
		t.Fatalf("Disk-database entries did not round-trip.")
	}
}

func TestNewDescriptorFile_Defaults(t *testing.T) {
	df := NewDescriptorFile()

	version, err := df.Version()
	log.PanicIf(err)

	if version != 1 {
		t.Fatalf("Default version not correct: (%d)", version)
	}

	cid, err := df.ContentId()
	log.PanicIf(err)

	if cid != 0xffffffff {
		t.Fatalf("Default CID not correct: (0x%08x)", cid)
	}

	createType, err := df.CreateType()
	log.PanicIf(err)

	if createType != CreateTypeNone {
		t.Fatalf("Default createType not correct: [%s]", createType)
	}

	adapterType, err := df.AdapterType()
	log.PanicIf(err)

	if adapterType != AdapterTypeLsiLogicScsi {
		t.Fatalf("Default adapterType not correct: [%s]", adapterType)
	}

	for _, key := range []string{"ddb.geometry.sectors", "ddb.geometry.heads", "ddb.geometry.cylinders"} {
		de, found := df.GetEntry(key)
		if found == false {
			t.Fatalf("Default geometry entry missing: [%s]", key)
		}

		if de.Kind != EntryQuoted || de.Value != "" {
			t.Fatalf("Default geometry entry not correct: %s", de)
		}
	}
}

func TestDescriptorFile_TypedMutators(t *testing.T) {
	df := NewDescriptorFile()

	df.SetContentId(0x0000beef)
	df.SetCreateType(CreateTypeStreamOptimized)
	df.SetAdapterType(AdapterTypeBusLogicScsi)
	df.SetGeometry(DiskGeometry{Cylinders: 1024, Heads: 255, Sectors: 63})

	cid, err := df.ContentId()
	log.PanicIf(err)

	if cid != 0xbeef {
		t.Fatalf("ContentId mutation not correct: (0x%08x)", cid)
	}

	de, found := df.GetEntry("CID")
	if found == false || de.Value != "0000beef" {
		t.Fatalf("ContentId not formatted as eight hex digits: [%s]", de.Value)
	}

	createType, err := df.CreateType()
	log.PanicIf(err)

	if createType != CreateTypeStreamOptimized {
		t.Fatalf("CreateType mutation not correct: [%s]", createType)
	}

	dg, err := df.Geometry()
	log.PanicIf(err)

	if dg.Cylinders != 1024 || dg.Heads != 255 || dg.Sectors != 63 {
		t.Fatalf("Geometry mutation not correct: %s", dg)
	}
}

func TestFormatDescriptorUuid(t *testing.T) {
	guid := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	s := FormatDescriptorUuid(guid)
	if s != "01 02 03 04 05 06 07 08-09 0a 0b 0c 0d 0e 0f 10" {
		t.Fatalf("Formatted UUID not correct: [%s]", s)
	}
}

func TestParseDescriptorUuid_DashSeparators(t *testing.T) {
	expected := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	guid, err := ParseDescriptorUuid("01-02-03-04-05-06-07-08-09-0a-0b-0c-0d-0e-0f-10")
	log.PanicIf(err)

	if guid != expected {
		t.Fatalf("Parsed UUID not correct: %x", guid)
	}
}

func TestParseDescriptorUuid_RoundTrip(t *testing.T) {
	guid := [16]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb}

	recovered, err := ParseDescriptorUuid(FormatDescriptorUuid(guid))
	log.PanicIf(err)

	if recovered != guid {
		t.Fatalf("UUID did not round-trip: %x", recovered)
	}
}

func TestParseDescriptorUuid_Invalid(t *testing.T) {
	_, err := ParseDescriptorUuid("01 02 03")
	if log.Is(err, ErrInvalidUuid) != true {
		t.Fatalf("Short UUID did not fail correctly: %v", err)
	}

	_, err = ParseDescriptorUuid("zz 02 03 04 05 06 07 08-09 0a 0b 0c 0d 0e 0f 10")
	if log.Is(err, ErrInvalidUuid) != true {
		t.Fatalf("Non-hex UUID did not fail correctly: %v", err)
	}
}

func TestDescriptorFile_Uuid(t *testing.T) {
	df := NewDescriptorFile()

	guid := [16]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b, 0x0c, 0x0d, 0x0e, 0x0f, 0x10}

	df.SetUuid(guid)

	recovered, err := df.Uuid()
	log.PanicIf(err)

	if recovered != guid {
		t.Fatalf("Descriptor UUID did not round-trip: %x", recovered)
	}
}

func TestLoadDescriptorFile_ThroughLocator(t *testing.T) {
	mfs := NewMemoryFilesystem()
	mfs.SetFile("disks/test.vmdk", []byte(minimalDescriptorText))

	dfl := NewDiscFileLocator(mfs, "disks")

	df, err := LoadDescriptorFile(dfl, "test.vmdk")
	log.PanicIf(err)

	cid, err := df.ContentId()
	log.PanicIf(err)

	if cid != 0xdeadbeef {
		t.Fatalf("ContentId not correct after locator load: (0x%08x)", cid)
	}
}

func TestDescriptorFile_SaveThroughLocator(t *testing.T) {
	rootPath := makeHostTree(t)
	defer os.RemoveAll(rootPath)

	hfl := NewHostFileLocator(rootPath)

	df, err := ParseDescriptorFile([]byte(minimalDescriptorText))
	log.PanicIf(err)

	err = df.Save(hfl, "saved.vmdk")
	log.PanicIf(err)

	reloaded, err := LoadDescriptorFile(hfl, "saved.vmdk")
	log.PanicIf(err)

	if reflect.DeepEqual(df.HeaderEntries(), reloaded.HeaderEntries()) != true {
		t.Fatalf("Saved descriptor did not reload identically.")
	}
}
