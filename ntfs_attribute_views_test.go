package vdisk

import (
	"bytes"
	"strings"
	"testing"

	"github.com/dsoprea/go-logging"
)

func structuredFromResident(attributeType AttributeType, data []byte) AttributePayload {
	rar := NewResidentAttributeRecord(attributeType, 2, "", 0, data)
	na := NewNtfsAttribute(nil, NewFileRecordReference(5, 1), rar)

	payload, err := na.Structured()
	log.PanicIf(err)

	return payload
}

func TestNtfsTimestamp(t *testing.T) {
	// The FILETIME epoch delta lands exactly on the Unix epoch.
	nt := NtfsTimestamp(116444736000000000)

	if nt.String() != "1970-01-01 00:00:00" {
		t.Fatalf("Timestamp not correct: [%s]", nt)
	}
}

func TestStructured_StandardInformation(t *testing.T) {
	data := make([]byte, 48)

	bw := NewByteWriter(data, ntfsEncoding)

	log.PanicIf(bw.PutUint64(0, 116444736000000000))
	log.PanicIf(bw.PutUint64(8, 116444736000000000))
	log.PanicIf(bw.PutUint64(16, 116444736000000000))
	log.PanicIf(bw.PutUint64(24, 116444736000000000))
	log.PanicIf(bw.PutUint32(32, 0x07)) // read-only, hidden, system

	payload := structuredFromResident(AttributeTypeStandardInformation, data)

	sip, ok := payload.(*StandardInformationPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if sip.FileAttributes.IsReadOnly() != true || sip.FileAttributes.IsHidden() != true || sip.FileAttributes.IsSystem() != true {
		t.Fatalf("DOS attributes not correct: %s", sip.FileAttributes)
	}

	if sip.CreationTime.String() != "1970-01-01 00:00:00" {
		t.Fatalf("Creation time not correct: [%s]", sip.CreationTime)
	}
}

func TestStructured_FileName(t *testing.T) {
	nameRaw, err := Utf16leFromUnicode("README.md")
	log.PanicIf(err)

	data := make([]byte, 66+len(nameRaw))

	bw := NewByteWriter(data, ntfsEncoding)

	log.PanicIf(bw.PutUint64(0, uint64(NewFileRecordReference(5, 2))))
	log.PanicIf(bw.PutUint64(40, 4096)) // allocated size
	log.PanicIf(bw.PutUint64(48, 1234)) // real size
	log.PanicIf(bw.PutUint8(64, 9))     // name length in characters
	log.PanicIf(bw.PutUint8(65, 1))     // Win32 namespace
	log.PanicIf(bw.PutBytes(66, nameRaw))

	payload := structuredFromResident(AttributeTypeFileName, data)

	fnp, ok := payload.(*FileNamePayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if fnp.FileName != "README.md" {
		t.Fatalf("File name not correct: [%s]", fnp.FileName)
	}

	if fnp.ParentDirectory.MftIndex() != 5 {
		t.Fatalf("Parent reference not correct: %s", fnp.ParentDirectory)
	}

	if fnp.RealSize != 1234 {
		t.Fatalf("Real size not correct: (%d)", fnp.RealSize)
	}
}

func TestStructured_VolumeName(t *testing.T) {
	nameRaw, err := Utf16leFromUnicode("System")
	log.PanicIf(err)

	payload := structuredFromResident(AttributeTypeVolumeName, nameRaw)

	vnp, ok := payload.(*VolumeNamePayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if vnp.Name != "System" {
		t.Fatalf("Volume name not correct: [%s]", vnp.Name)
	}
}

func TestStructured_VolumeInformation(t *testing.T) {
	data := make([]byte, 12)

	bw := NewByteWriter(data, ntfsEncoding)

	log.PanicIf(bw.PutUint8(8, 3))
	log.PanicIf(bw.PutUint8(9, 1))
	log.PanicIf(bw.PutUint16(10, 0x0001))

	payload := structuredFromResident(AttributeTypeVolumeInformation, data)

	vip, ok := payload.(*VolumeInformationPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if vip.MajorVersion != 3 || vip.MinorVersion != 1 {
		t.Fatalf("Version not correct: (%d).(%d)", vip.MajorVersion, vip.MinorVersion)
	}
}

func TestStructured_ObjectId(t *testing.T) {
	data := make([]byte, 16)
	for i := range data {
		data[i] = byte(i)
	}

	payload := structuredFromResident(AttributeTypeObjectId, data)

	oip, ok := payload.(*ObjectIdPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if oip.ObjectId[0] != 0 || oip.ObjectId[15] != 15 {
		t.Fatalf("Object ID not correct: %x", oip.ObjectId)
	}
}

func TestStructured_ReparsePoint(t *testing.T) {
	data := make([]byte, 8+4)

	bw := NewByteWriter(data, ntfsEncoding)

	log.PanicIf(bw.PutUint32(0, 0xa000000c)) // symlink tag
	log.PanicIf(bw.PutUint16(4, 4))
	log.PanicIf(bw.PutBytes(8, []byte{1, 2, 3, 4}))

	payload := structuredFromResident(AttributeTypeReparsePoint, data)

	rpp, ok := payload.(*ReparsePointPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if rpp.Tag != 0xa000000c {
		t.Fatalf("Reparse tag not correct: (0x%08x)", rpp.Tag)
	}

	if bytes.Equal(rpp.Data, []byte{1, 2, 3, 4}) != true {
		t.Fatalf("Reparse data not correct: %v", rpp.Data)
	}
}

func TestStructured_SecurityDescriptor(t *testing.T) {
	payload := structuredFromResident(AttributeTypeSecurityDescriptor, []byte{1, 0, 0x04, 0x80})

	sdp, ok := payload.(*SecurityDescriptorPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if len(sdp.Data) != 4 {
		t.Fatalf("Descriptor bytes not correct: %v", sdp.Data)
	}
}

func buildAttributeListEntryBytes(attributeType AttributeType, startVcn uint64, mftIndex uint64, attributeId uint16, name string) []byte {
	nameRaw := []byte{}

	if name != "" {
		encoded, err := Utf16leFromUnicode(name)
		log.PanicIf(err)

		nameRaw = encoded
	}

	length := attributeListEntryFixedSize + len(nameRaw)
	length = (length + 7) &^ 7

	data := make([]byte, length)

	bw := NewByteWriter(data, ntfsEncoding)

	log.PanicIf(bw.PutUint32(0, uint32(attributeType)))
	log.PanicIf(bw.PutUint16(4, uint16(length)))
	log.PanicIf(bw.PutUint8(6, uint8(len(nameRaw)/2)))
	log.PanicIf(bw.PutUint8(7, attributeListEntryFixedSize))
	log.PanicIf(bw.PutUint64(8, startVcn))
	log.PanicIf(bw.PutUint64(16, uint64(NewFileRecordReference(mftIndex, 1))))
	log.PanicIf(bw.PutUint16(24, attributeId))
	log.PanicIf(bw.PutBytes(attributeListEntryFixedSize, nameRaw))

	return data
}

func TestStructured_AttributeList(t *testing.T) {
	data := append(
		buildAttributeListEntryBytes(AttributeTypeData, 0, 5, 2, ""),
		buildAttributeListEntryBytes(AttributeTypeData, 100, 6, 5, "stream")...,
	)

	payload := structuredFromResident(AttributeTypeAttributeList, data)

	alp, ok := payload.(*AttributeListPayload)
	if ok == false {
		t.Fatalf("Payload type not correct: %v", payload)
	}

	if len(alp.Entries) != 2 {
		t.Fatalf("Entry count not correct: (%d)", len(alp.Entries))
	}

	first := alp.Entries[0]

	if first.StartVcn != 0 || first.BaseFileReference.MftIndex() != 5 || first.AttributeId != 2 {
		t.Fatalf("First entry not correct: %s", first)
	}

	expectedRef := AttributeReference{
		File:        NewFileRecordReference(5, 1),
		AttributeId: 2,
	}

	if first.Reference() != expectedRef {
		t.Fatalf("Entry reference not correct: %s", first.Reference())
	}

	second := alp.Entries[1]

	if second.Name != "stream" || second.StartVcn != 100 {
		t.Fatalf("Second entry not correct: %s", second)
	}
}

func TestStructured_RawTypeHasNoPayload(t *testing.T) {
	payload := structuredFromResident(AttributeTypeBitmap, []byte{0xff})

	if payload != nil {
		t.Fatalf("Raw attribute type produced a payload: %v", payload)
	}
}

func TestAttributePayload_DumpBareIndented(t *testing.T) {
	nameRaw, err := Utf16leFromUnicode("System")
	log.PanicIf(err)

	payload := structuredFromResident(AttributeTypeVolumeName, nameRaw)

	b := new(bytes.Buffer)

	payload.DumpBareIndented(b, "  ")

	if strings.Contains(b.String(), "Name: [System]") != true {
		t.Fatalf("Dump not correct:\n%s", b.String())
	}
}
