package vdisk

import (
	"bytes"
	"io"
	"io/ioutil"
	"testing"

	"github.com/dsoprea/go-logging"
)

type testAttributeHost struct {
	volume          io.ReaderAt
	bytesPerCluster int64

	attributeOffset int64
	recordPosition  int64
}

func newTestAttributeHost(volume io.ReaderAt, bytesPerCluster int64) *testAttributeHost {
	return &testAttributeHost{
		volume:          volume,
		bytesPerCluster: bytesPerCluster,
	}
}

func (tah *testAttributeHost) AttributeOffset(ref AttributeReference) (offset int64, err error) {
	return tah.attributeOffset, nil
}

func (tah *testAttributeHost) RecordAbsolutePosition(file FileRecordReference, recordOffset int64) (pos int64, err error) {
	return tah.recordPosition + recordOffset, nil
}

func (tah *testAttributeHost) BytesPerCluster() int64 {
	return tah.bytesPerCluster
}

func (tah *testAttributeHost) VolumeReader() io.ReaderAt {
	return tah.volume
}

const (
	testClusterSize = 512
)

// buildTestVolume lays out eight clusters of recognizable content: every byte
// of cluster N is 'A'+N.
func buildTestVolume() *MemoryByteStream {
	volume := make([]byte, 8*testClusterSize)

	for cluster := 0; cluster < 8; cluster++ {
		for i := 0; i < testClusterSize; i++ {
			volume[cluster*testClusterSize+i] = byte('A' + cluster)
		}
	}

	return NewMemoryByteStream(volume)
}

// buildSparseTestAttribute maps VCNs 0-3: two clusters at LCN 1, one sparse
// cluster, one cluster at LCN 4.
func buildSparseTestAttribute(host AttributeHost, dataLength uint64) *NtfsAttribute {
	runs := []DataRun{
		{RunOffset: 1, RunLength: 2},
		{RunLength: 1, IsSparse: true},
		{RunOffset: 3, RunLength: 1},
	}

	record := NewNonResidentAttributeRecord(AttributeTypeData, 2, "", 0, 0, 3, 0, runs, dataLength)

	return NewNtfsAttribute(host, NewFileRecordReference(5, 1), record)
}

func TestResidentDataBuffer_ReadPastLength(t *testing.T) {
	rar := NewResidentAttributeRecord(AttributeTypeData, 2, "", 0, []byte("abc"))

	buffer := newResidentDataBuffer(rar)

	p := make([]byte, 6)

	n, err := buffer.ReadAt(p, 0)
	log.PanicIf(err)

	if n != 6 {
		t.Fatalf("Read count not correct: (%d)", n)
	}

	if bytes.Equal(p, []byte{'a', 'b', 'c', 0, 0, 0}) != true {
		t.Fatalf("Zero extension not correct: %v", p)
	}
}

func TestResidentDataBuffer_WriteExtends(t *testing.T) {
	rar := NewResidentAttributeRecord(AttributeTypeData, 2, "", 0, []byte("abc"))

	buffer := newResidentDataBuffer(rar)

	_, err := buffer.WriteAt([]byte("XY"), 4)
	log.PanicIf(err)

	if buffer.Capacity() != 6 {
		t.Fatalf("Extended capacity not correct: (%d)", buffer.Capacity())
	}

	if bytes.Equal(rar.Data(), []byte{'a', 'b', 'c', 0, 'X', 'Y'}) != true {
		t.Fatalf("Extended content not correct: %v", rar.Data())
	}
}

func TestNonResidentDataBuffer_ReadMappedAndSparse(t *testing.T) {
	volume := buildTestVolume()
	host := newTestAttributeHost(volume, testClusterSize)

	na := buildSparseTestAttribute(host, 4*testClusterSize)

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	if buffer.Capacity() != 4*testClusterSize {
		t.Fatalf("Capacity not correct: (%d)", buffer.Capacity())
	}

	p := make([]byte, 4*testClusterSize)

	_, err = buffer.ReadAt(p, 0)
	log.PanicIf(err)

	// VCN 0 and 1 map to LCNs 1 and 2.
	if p[0] != 'B' || p[testClusterSize] != 'C' {
		t.Fatalf("Mapped clusters not correct: (%c) (%c)", p[0], p[testClusterSize])
	}

	// VCN 2 is sparse.
	if p[2*testClusterSize] != 0 || p[3*testClusterSize-1] != 0 {
		t.Fatalf("Sparse cluster did not read as zeros.")
	}

	// VCN 3 maps to LCN 4.
	if p[3*testClusterSize] != 'E' {
		t.Fatalf("Post-sparse cluster not correct: (%c)", p[3*testClusterSize])
	}
}

func TestNonResidentDataBuffer_ReadPastDataLength(t *testing.T) {
	volume := buildTestVolume()
	host := newTestAttributeHost(volume, testClusterSize)

	// The logical length ends mid-way through the second cluster.
	na := buildSparseTestAttribute(host, testClusterSize+10)

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	p := make([]byte, testClusterSize)

	_, err = buffer.ReadAt(p, testClusterSize)
	log.PanicIf(err)

	if p[9] != 'C' {
		t.Fatalf("In-range byte not correct: (%c)", p[9])
	}

	for i := 10; i < testClusterSize; i++ {
		if p[i] != 0 {
			t.Fatalf("Read past data length not zero at (%d).", i)
		}
	}
}

func TestNonResidentDataBuffer_WriteIntoMappedRun(t *testing.T) {
	volume := buildTestVolume()
	host := newTestAttributeHost(volume, testClusterSize)

	na := buildSparseTestAttribute(host, 4*testClusterSize)

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	_, err = buffer.WriteAt([]byte("mark"), 16)
	log.PanicIf(err)

	p := make([]byte, 4)

	_, err = buffer.ReadAt(p, 16)
	log.PanicIf(err)

	if string(p) != "mark" {
		t.Fatalf("Written bytes did not read back: [%s]", string(p))
	}

	// The write landed in LCN 1.
	raw := make([]byte, 4)

	_, err = volume.ReadAt(raw, 1*testClusterSize+16)
	log.PanicIf(err)

	if string(raw) != "mark" {
		t.Fatalf("Write did not land in the mapped cluster: [%s]", string(raw))
	}
}

func TestNonResidentDataBuffer_WriteIntoHole(t *testing.T) {
	volume := buildTestVolume()
	host := newTestAttributeHost(volume, testClusterSize)

	na := buildSparseTestAttribute(host, 4*testClusterSize)

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	_, err = buffer.WriteAt([]byte("x"), 2*testClusterSize+1)
	if log.Is(err, ErrOutOfRange) != true {
		t.Fatalf("Hole write did not fail correctly: %v", err)
	}

	_, err = buffer.WriteAt([]byte("x"), 4*testClusterSize)
	if log.Is(err, ErrOutOfRange) != true {
		t.Fatalf("Extending write did not fail correctly: %v", err)
	}
}

func TestNtfsAttribute_Open_AccessEnforcement(t *testing.T) {
	volume := buildTestVolume()
	host := newTestAttributeHost(volume, testClusterSize)

	na := buildSparseTestAttribute(host, 2*testClusterSize)

	bs, err := na.Open(AccessRead)
	log.PanicIf(err)

	defer bs.Close()

	_, err = bs.Write([]byte("x"))
	if err != ErrAccessDenied {
		t.Fatalf("Read-only stream accepted a write: %v", err)
	}

	length, err := bs.Length()
	log.PanicIf(err)

	if length != 2*testClusterSize {
		t.Fatalf("Stream length not correct: (%d)", length)
	}

	data, err := ioutil.ReadAll(bs)
	log.PanicIf(err)

	if len(data) != 2*testClusterSize {
		t.Fatalf("Stream read count not correct: (%d)", len(data))
	}

	if data[0] != 'B' {
		t.Fatalf("Stream contents not correct: (%c)", data[0])
	}
}

func TestNtfsAttribute_Open_Resident(t *testing.T) {
	file1 := NewFileRecordReference(5, 1)

	rar := NewResidentAttributeRecord(AttributeTypeData, 2, "", 0, []byte("inline-data"))
	na := NewNtfsAttribute(nil, file1, rar)

	bs, err := na.Open(AccessReadWrite)
	log.PanicIf(err)

	defer bs.Close()

	data, err := ioutil.ReadAll(bs)
	log.PanicIf(err)

	if string(data) != "inline-data" {
		t.Fatalf("Resident stream contents not correct: [%s]", string(data))
	}

	_, err = bs.WriteAt([]byte("INLINE"), 0)
	log.PanicIf(err)

	if string(rar.Data()[:6]) != "INLINE" {
		t.Fatalf("Resident stream write not applied: [%s]", string(rar.Data()))
	}
}

func TestNonResidentDataBuffer_CompressedUnit(t *testing.T) {
	// One compression unit of four clusters: two mapped clusters carrying
	// the LZNT1 payload, then two sparse clusters.
	chunkData := []byte{0x08, 'A', 'B', 'C', 0x00, 0x20}
	compressed := make([]byte, 2*testClusterSize)

	bw := NewByteWriter(compressed, ntfsEncoding)

	log.PanicIf(bw.PutUint16(0, 0xb005))
	log.PanicIf(bw.PutBytes(2, chunkData))

	volume := make([]byte, 8*testClusterSize)
	copy(volume[2*testClusterSize:], compressed)

	runs := []DataRun{
		{RunOffset: 2, RunLength: 2},
		{RunLength: 2, IsSparse: true},
	}

	record := NewNonResidentAttributeRecord(AttributeTypeData, 2, "", AttributeFlagCompressed, 0, 3, 2, runs, 6)

	host := newTestAttributeHost(NewMemoryByteStream(volume), testClusterSize)
	na := NewNtfsAttribute(host, NewFileRecordReference(5, 1), record)

	buffer, err := na.DataBuffer()
	log.PanicIf(err)

	p := make([]byte, 6)

	_, err = buffer.ReadAt(p, 0)
	log.PanicIf(err)

	if string(p) != "ABCABC" {
		t.Fatalf("Decompressed content not correct: [%s]", string(p))
	}
}
