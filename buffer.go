// Data buffers virtualize attribute content: resident bytes live inline in
// the MFT record; non-resident bytes are mapped through cluster runs, with
// sparse runs reading as zeros and compressed units decompressing on read.

package vdisk

import (
	"io"

	"github.com/dsoprea/go-logging"
)

// OpenAccess selects the access a stream is opened with.
type OpenAccess int

const (
	AccessRead OpenAccess = 1 << iota
	AccessWrite
)

const (
	AccessReadWrite = AccessRead | AccessWrite
)

// DataBuffer is a byte-addressable view of attribute content. Reads past
// the logical data length return zeros.
type DataBuffer interface {
	// Capacity returns the logical data length in bytes.
	Capacity() int64

	ReadAt(p []byte, off int64) (n int, err error)
	WriteAt(p []byte, off int64) (n int, err error)
}

// residentDataBuffer serves inline content.
type residentDataBuffer struct {
	record *ResidentAttributeRecord
}

func newResidentDataBuffer(record *ResidentAttributeRecord) *residentDataBuffer {
	return &residentDataBuffer{
		record: record,
	}
}

func (rdb *residentDataBuffer) Capacity() int64 {
	return int64(len(rdb.record.Data()))
}

func (rdb *residentDataBuffer) ReadAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}

	for i := range p {
		p[i] = 0
	}

	data := rdb.record.Data()

	if off < int64(len(data)) {
		copy(p, data[off:])
	}

	return len(p), nil
}

func (rdb *residentDataBuffer) WriteAt(p []byte, off int64) (n int, err error) {
	if off < 0 {
		return 0, ErrOutOfRange
	}

	data := rdb.record.Data()

	end := off + int64(len(p))
	if end > int64(len(data)) {
		grown := make([]byte, end)
		copy(grown, data)
		data = grown
	}

	copy(data[off:], p)
	rdb.record.SetData(data)

	return len(p), nil
}

// nonResidentDataBuffer maps content through the attribute's extents and
// cluster runs.
type nonResidentDataBuffer struct {
	attr            *NtfsAttribute
	volume          io.ReaderAt
	bytesPerCluster int64
}

func newNonResidentDataBuffer(attr *NtfsAttribute, volume io.ReaderAt, bytesPerCluster int64) *nonResidentDataBuffer {
	return &nonResidentDataBuffer{
		attr:            attr,
		volume:          volume,
		bytesPerCluster: bytesPerCluster,
	}
}

func (nrdb *nonResidentDataBuffer) Capacity() int64 {
	return int64(nrdb.attr.DataLength())
}

// clusterForVcn resolves one virtual cluster to an absolute cluster, or a
// negative value when the cluster is a hole (sparse run or beyond the
// mapped extents).
func (nrdb *nonResidentDataBuffer) clusterForVcn(vcn uint64) (lcn int64, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	extent, err := nrdb.attr.GetNonResidentExtent(vcn)
	if err != nil {
		if log.Is(err, ErrOutOfRange) == true {
			return -1, nil
		}

		log.Panic(err)
	}

	currentVcn := extent.StartVcn()

	for _, run := range extent.GetClusters() {
		if vcn < currentVcn+uint64(run.ClusterCount) {
			if run.IsSparse() == true {
				return -1, nil
			}

			return run.FirstCluster + int64(vcn-currentVcn), nil
		}

		currentVcn += uint64(run.ClusterCount)
	}

	return -1, nil
}

// initializedLength returns the read cutoff: bytes beyond it serve zeros.
func (nrdb *nonResidentDataBuffer) initializedLength() int64 {
	first, err := nrdb.attr.FirstExtent()
	if err != nil {
		return 0
	}

	if nrar, ok := first.(*NonResidentAttributeRecord); ok == true {
		initialized := int64(nrar.InitializedDataLength())
		if initialized < nrdb.Capacity() {
			return initialized
		}
	}

	return nrdb.Capacity()
}

func (nrdb *nonResidentDataBuffer) ReadAt(p []byte, off int64) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			var ok bool
			if err, ok = errRaw.(error); ok == true {
				err = log.Wrap(err)
			} else {
				err = log.Errorf("Error not an error: [%v]", errRaw)
			}
		}
	}()

	if off < 0 {
		return 0, ErrOutOfRange
	}

	for i := range p {
		p[i] = 0
	}

	end := off + int64(len(p))

	if cutoff := nrdb.initializedLength(); end > cutoff {
		end = cutoff
	}

	compressionUnit, err := nrdb.attr.CompressionUnitSize()
	log.PanicIf(err)

	isCompressed := nrdb.attr.Flags().IsCompressed() == true && compressionUnit > 0

	pos := off
	for pos < end {
		if isCompressed == true {
			unitClusters := int64(1) << compressionUnit
			unitBytes := unitClusters * nrdb.bytesPerCluster
			unitVcn := uint64(pos / nrdb.bytesPerCluster / unitClusters * unitClusters)

			unitData, err := nrdb.readCompressionUnit(unitVcn, unitClusters)
			log.PanicIf(err)

			withinUnit := pos - int64(unitVcn)*nrdb.bytesPerCluster

			chunk := unitBytes - withinUnit
			if chunk > end-pos {
				chunk = end - pos
			}

			copy(p[pos-off:], unitData[withinUnit:withinUnit+chunk])
			pos += chunk

			continue
		}

		vcn := uint64(pos / nrdb.bytesPerCluster)
		withinCluster := pos % nrdb.bytesPerCluster

		chunk := nrdb.bytesPerCluster - withinCluster
		if chunk > end-pos {
			chunk = end - pos
		}

		lcn, err := nrdb.clusterForVcn(vcn)
		log.PanicIf(err)

		if lcn >= 0 {
			_, err = nrdb.volume.ReadAt(p[pos-off:pos-off+chunk], lcn*nrdb.bytesPerCluster+withinCluster)
			if err != nil && err != io.EOF {
				log.Panic(err)
			}
		}

		pos += chunk
	}

	return len(p), nil
}

// readCompressionUnit materializes one compression unit: raw when fully
// mapped, zeros when fully sparse, LZNT1-decompressed otherwise.
func (nrdb *nonResidentDataBuffer) readCompressionUnit(unitVcn uint64, unitClusters int64) (unitData []byte, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	unitData = make([]byte, unitClusters*nrdb.bytesPerCluster)

	mapped := make([]int64, unitClusters)
	mappedCount := 0

	for i := int64(0); i < unitClusters; i++ {
		lcn, err := nrdb.clusterForVcn(unitVcn + uint64(i))
		log.PanicIf(err)

		mapped[i] = lcn
		if lcn >= 0 {
			mappedCount++
		}
	}

	if mappedCount == 0 {
		// Fully sparse unit.
		return unitData, nil
	}

	if mappedCount == int(unitClusters) {
		// Stored uncompressed.
		for i, lcn := range mapped {
			_, err = nrdb.volume.ReadAt(unitData[int64(i)*nrdb.bytesPerCluster:(int64(i)+1)*nrdb.bytesPerCluster], lcn*nrdb.bytesPerCluster)
			if err != nil && err != io.EOF {
				log.Panic(err)
			}
		}

		return unitData, nil
	}

	// The leading mapped clusters hold the compressed payload; the sparse
	// tail pads the unit.
	compressed := make([]byte, 0, int64(mappedCount)*nrdb.bytesPerCluster)

	for _, lcn := range mapped {
		if lcn < 0 {
			continue
		}

		clusterData := make([]byte, nrdb.bytesPerCluster)

		_, err = nrdb.volume.ReadAt(clusterData, lcn*nrdb.bytesPerCluster)
		if err != nil && err != io.EOF {
			log.Panic(err)
		}

		compressed = append(compressed, clusterData...)
	}

	decompressed, err := Lznt1Decompress(compressed)
	log.PanicIf(err)

	copy(unitData, decompressed)

	return unitData, nil
}

func (nrdb *nonResidentDataBuffer) WriteAt(p []byte, off int64) (n int, err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = log.Wrap(errRaw.(error))
		}
	}()

	if off < 0 {
		return 0, ErrOutOfRange
	}

	writer, ok := nrdb.volume.(io.WriterAt)
	if ok == false {
		log.Panic(ErrAccessDenied)
	}

	compressionUnit, err := nrdb.attr.CompressionUnitSize()
	log.PanicIf(err)

	if nrdb.attr.Flags().IsCompressed() == true && compressionUnit > 0 {
		// Rewriting a compressed unit needs a cluster allocator.
		//
		// TODO(dustin): Support compressed-unit rewrites once allocation is
		// available.
		log.Panic(ErrAccessDenied)
	}

	if off+int64(len(p)) > nrdb.Capacity() {
		// Extending requires allocating clusters.
		log.Panic(ErrOutOfRange)
	}

	pos := off
	for pos < off+int64(len(p)) {
		vcn := uint64(pos / nrdb.bytesPerCluster)
		withinCluster := pos % nrdb.bytesPerCluster

		chunk := nrdb.bytesPerCluster - withinCluster
		if chunk > off+int64(len(p))-pos {
			chunk = off + int64(len(p)) - pos
		}

		lcn, err := nrdb.clusterForVcn(vcn)
		log.PanicIf(err)

		if lcn < 0 {
			// A hole; materializing it requires allocation.
			log.Panic(ErrOutOfRange)
		}

		_, err = writer.WriteAt(p[pos-off:pos-off+chunk], lcn*nrdb.bytesPerCluster+withinCluster)
		log.PanicIf(err)

		pos += chunk
	}

	return len(p), nil
}

// bufferStream adapts a DataBuffer to the ByteStream contract, bounded at
// the buffer capacity and enforcing the opened access.
type bufferStream struct {
	buffer   DataBuffer
	access   OpenAccess
	position int64
}

func newBufferStream(buffer DataBuffer, access OpenAccess) *bufferStream {
	return &bufferStream{
		buffer: buffer,
		access: access,
	}
}

func (bs *bufferStream) Read(p []byte) (n int, err error) {
	if bs.access&AccessRead == 0 {
		return 0, ErrAccessDenied
	}

	capacity := bs.buffer.Capacity()

	if bs.position >= capacity {
		return 0, io.EOF
	}

	if int64(len(p)) > capacity-bs.position {
		p = p[:capacity-bs.position]
	}

	n, err = bs.buffer.ReadAt(p, bs.position)
	bs.position += int64(n)

	return n, err
}

func (bs *bufferStream) ReadAt(p []byte, off int64) (n int, err error) {
	if bs.access&AccessRead == 0 {
		return 0, ErrAccessDenied
	}

	capacity := bs.buffer.Capacity()

	if off >= capacity {
		return 0, io.EOF
	}

	if int64(len(p)) > capacity-off {
		p = p[:capacity-off]
	}

	return bs.buffer.ReadAt(p, off)
}

func (bs *bufferStream) Write(p []byte) (n int, err error) {
	if bs.access&AccessWrite == 0 {
		return 0, ErrAccessDenied
	}

	n, err = bs.buffer.WriteAt(p, bs.position)
	bs.position += int64(n)

	return n, err
}

func (bs *bufferStream) WriteAt(p []byte, off int64) (n int, err error) {
	if bs.access&AccessWrite == 0 {
		return 0, ErrAccessDenied
	}

	return bs.buffer.WriteAt(p, off)
}

func (bs *bufferStream) Seek(offset int64, whence int) (pos int64, err error) {
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = bs.position + offset
	case io.SeekEnd:
		pos = bs.buffer.Capacity() + offset
	default:
		return 0, ErrOutOfRange
	}

	if pos < 0 {
		return 0, ErrOutOfRange
	}

	bs.position = pos

	return pos, nil
}

func (bs *bufferStream) Close() (err error) {
	return nil
}

func (bs *bufferStream) Length() (length int64, err error) {
	return bs.buffer.Capacity(), nil
}
