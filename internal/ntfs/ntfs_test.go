package ntfs_test

import (
	"encoding/binary"
	"testing"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/internal/ntfs"
	"github.com/stretchr/testify/require"
)

func le16(b []byte, off int, v uint16) { binary.LittleEndian.PutUint16(b[off:], v) }
func le32(b []byte, off int, v uint32) { binary.LittleEndian.PutUint32(b[off:], v) }
func le64(b []byte, off int, v uint64) { binary.LittleEndian.PutUint64(b[off:], v) }

func utf16le(s string) []byte {
	b := make([]byte, 2*len(s))
	for i, r := range s {
		binary.LittleEndian.PutUint16(b[2*i:], uint16(r))
	}
	return b
}

// 2017-05-01T00:00:00Z as a FILETIME.
const testFiletime = (1493596800 + 11644473600) * 10000000

func residentAttr(typ uint32, name string, value []byte) []byte {
	nameBytes := utf16le(name)
	valueOff := 24 + len(nameBytes)
	total := (valueOff + len(value) + 7) &^ 7

	b := make([]byte, total)
	le32(b, 0, typ)
	le32(b, 4, uint32(total))
	b[8] = 0 // resident
	b[9] = byte(len(name))
	le16(b, 10, 24)
	le32(b, 16, uint32(len(value)))
	le16(b, 20, uint16(valueOff))
	copy(b[24:], nameBytes)
	copy(b[valueOff:], value)
	return b
}

func nonResidentAttr(typ uint32, name string, firstVCN, lastVCN uint64, runs []byte, logicalSize uint64) []byte {
	nameBytes := utf16le(name)
	runOff := 64 + len(nameBytes)
	total := (runOff + len(runs) + 1 + 7) &^ 7

	b := make([]byte, total)
	le32(b, 0, typ)
	le32(b, 4, uint32(total))
	b[8] = 1 // non-resident
	b[9] = byte(len(name))
	le16(b, 10, 64)
	le64(b, 16, firstVCN)
	le64(b, 24, lastVCN)
	le16(b, 32, uint16(runOff))
	le64(b, 40, (logicalSize+4095)&^4095)
	le64(b, 48, logicalSize)
	le64(b, 56, logicalSize)
	if len(nameBytes) > 0 {
		copy(b[64:], nameBytes)
	}
	copy(b[runOff:], runs)
	return b
}

func fileNameValue(parent uint64, flags uint32, name string) []byte {
	nb := utf16le(name)
	v := make([]byte, 66+len(nb))
	le64(v, 0, parent)
	le64(v, 8, testFiletime)
	le64(v, 16, testFiletime)
	le64(v, 24, testFiletime)
	le64(v, 32, testFiletime)
	le64(v, 40, 4096)
	le64(v, 48, 14)
	le32(v, 56, flags)
	v[64] = byte(len(name))
	v[65] = 1 // Win32 namespace
	copy(v[66:], nb)
	return v
}

func standardInfoValue(flags uint32) []byte {
	v := make([]byte, 72)
	le64(v, 0, testFiletime)
	le64(v, 8, testFiletime)
	le64(v, 16, testFiletime)
	le64(v, 24, testFiletime)
	le32(v, 32, flags)
	return v
}

// buildRecord assembles a fixed-up 1024-byte MFT record: real attribute
// bytes, a terminator, and sector tails swapped out through the update
// sequence array exactly as a live volume stores them.
func buildRecord(num uint32, flags uint16, attrs ...[]byte) []byte {
	buf := make([]byte, 1024)
	copy(buf, "FILE")
	le16(buf, 4, 48) // update sequence offset
	le16(buf, 6, 3)  // sentinel + one word per 512-byte sector
	le16(buf, 16, 1) // sequence number
	le16(buf, 18, 1) // hard links
	le16(buf, 20, 56)
	le16(buf, 22, flags)
	le32(buf, 28, 1024)
	le16(buf, 40, 7)
	le32(buf, 44, num)

	pos := 56
	for _, a := range attrs {
		copy(buf[pos:], a)
		pos += len(a)
	}
	le32(buf, pos, 0xFFFFFFFF)
	pos += 8
	le32(buf, 24, uint32(pos)) // logical size

	le16(buf, 48, 0x0001)
	for i := 1; i <= 2; i++ {
		tail := 512*i - 2
		copy(buf[48+2*i:], buf[tail:tail+2])
		buf[tail], buf[tail+1] = 0x01, 0x00
	}
	return buf
}

func TestParseDataRuns(t *testing.T) {
	// Two runs: 0x18 clusters at LCN 0x5634, then 8 clusters 16 back.
	runs, err := ntfs.ParseDataRuns([]byte{0x21, 0x18, 0x34, 0x56, 0x11, 0x08, 0xF0, 0x00})
	require.NoError(t, err)
	require.Len(t, runs, 2)

	require.Equal(t, int64(0x5634), runs[0].Start)
	require.Equal(t, uint64(0x18), runs[0].Count)
	require.Equal(t, int64(0x5634-16), runs[1].Start)
	require.Equal(t, uint64(8), runs[1].Count)
}

func TestParseDataRunsSparseHole(t *testing.T) {
	// A zero offset width is a sparse hole; the delta accumulator must skip
	// it entirely.
	runs, err := ntfs.ParseDataRuns([]byte{0x11, 0x02, 0x0A, 0x01, 0x05, 0x11, 0x03, 0x02, 0x00})
	require.NoError(t, err)
	require.Len(t, runs, 3)

	require.False(t, runs[0].Sparse)
	require.Equal(t, int64(10), runs[0].Start)
	require.True(t, runs[1].Sparse)
	require.Equal(t, uint64(5), runs[1].Count)
	require.False(t, runs[2].Sparse)
	require.Equal(t, int64(12), runs[2].Start)
}

func TestDataRunClusters(t *testing.T) {
	run := ntfs.DataRun{Start: 100, Count: 3}
	require.Equal(t, []int64{100, 101, 102}, run.Clusters())

	sparse := ntfs.DataRun{Count: 4, Sparse: true}
	require.Nil(t, sparse.Clusters())
}

func TestParseDataRunsTruncated(t *testing.T) {
	_, err := ntfs.ParseDataRuns([]byte{0x31, 0x02})
	require.ErrorIs(t, err, fserr.ErrCorrupt)
}

func TestParseRecordSignature(t *testing.T) {
	buf := make([]byte, 1024)
	copy(buf, "BAAD")
	_, err := ntfs.ParseRecord(buf)
	require.ErrorIs(t, err, fserr.ErrInvalidSignature)
}

func TestParseRecordFixup(t *testing.T) {
	// buildRecord moved each sector's original tail bytes into the update
	// sequence array; after parsing they must be back at the tails.
	rec := buildRecord(12, 0x0001,
		residentAttr(0x10, "", standardInfoValue(0x20)))

	// Sector tails now carry the sentinel.
	require.Equal(t, []byte{0x01, 0x00}, rec[510:512])
	stored1 := []byte{rec[50], rec[51]}

	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)
	require.Equal(t, uint32(12), parsed.Header.RecordNumber)
	require.True(t, parsed.Header.InUse())
	require.False(t, parsed.Header.IsDirectory())

	// The parser swapped the stored bytes back in place.
	require.Equal(t, stored1, rec[510:512])
}

func TestParseRecordFixupMismatch(t *testing.T) {
	rec := buildRecord(12, 0x0001, residentAttr(0x10, "", standardInfoValue(0)))
	rec[510] = 0xEE // torn sector tail
	_, err := ntfs.ParseRecord(rec)
	require.ErrorIs(t, err, fserr.ErrCorrupt)
}

func TestParseRecordAttributes(t *testing.T) {
	rec := buildRecord(5, 0x0001,
		residentAttr(0x10, "", standardInfoValue(0x22)),
		residentAttr(0x30, "", fileNameValue(5|(1<<48), 0, "hello.txt")),
		residentAttr(0x80, "", []byte("Hello, world!\n")),
	)

	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)
	require.Len(t, parsed.Attributes, 3)

	si, err := ntfs.ParseStandardInfo(parsed.FirstAttribute(ntfs.AttrStandardInformation))
	require.NoError(t, err)
	require.Equal(t, uint32(0x22), si.Flags)
	require.True(t, si.IsHidden())
	require.Equal(t, 2017, si.CreateTime().Year())

	fn, err := ntfs.ParseFileName(parsed.FirstAttribute(ntfs.AttrFileName))
	require.NoError(t, err)
	require.Equal(t, "hello.txt", fn.Name)
	require.Equal(t, uint64(5), fn.ParentMFT)
	require.Equal(t, uint16(1), fn.ParentSequence)
	require.False(t, fn.IsDirectory())

	data := parsed.FirstAttribute(ntfs.AttrData)
	payload, err := data.ResidentData()
	require.NoError(t, err)
	require.Equal(t, "Hello, world!\n", string(payload))
}

func TestParseRecordBaseReference(t *testing.T) {
	rec := buildRecord(31, 0x0001, residentAttr(0x10, "", standardInfoValue(0)))
	le64(rec[:], 32, 17|(3<<48))
	// Offset 32 lies in sector one, clear of the sector tails and the update
	// sequence array, so the fixup built by buildRecord still holds.
	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)
	require.Equal(t, uint64(17), parsed.Header.BaseRecord())
	require.Equal(t, uint16(3), parsed.Header.BaseSequence())
}

func TestParseAttributeList(t *testing.T) {
	item := func(typ uint32, vcn, ref uint64) []byte {
		b := make([]byte, 32)
		le32(b, 0, typ)
		le16(b, 4, 32)
		le64(b, 8, vcn)
		le64(b, 16, ref)
		le16(b, 24, 2)
		return b
	}
	value := append(item(0x80, 0, 8|(1<<48)), item(0x80, 1, 9|(2<<48))...)

	rec := buildRecord(8, 0x0001, residentAttr(0x20, "", value))
	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)

	items, err := ntfs.ParseAttributeList(parsed.FirstAttribute(ntfs.AttrAttributeList))
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, ntfs.AttrData, items[0].Type)
	require.Equal(t, uint64(8), items[0].MFT())
	require.Equal(t, uint16(1), items[0].Sequence())
	require.Equal(t, uint64(1), items[1].StartVCN)
	require.Equal(t, uint64(9), items[1].MFT())
}

func TestNamedAttributeIsADS(t *testing.T) {
	rec := buildRecord(9, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "carrier.txt")),
		residentAttr(0x80, "", []byte("visible")),
		residentAttr(0x80, "secret", []byte("hidden payload")),
	)

	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)

	datas := parsed.AttributesOfType(ntfs.AttrData)
	require.Len(t, datas, 2)
	require.False(t, datas[0].HasName())
	require.True(t, datas[1].HasName())
	require.Equal(t, "secret", datas[1].Name)
}

// --- index machinery ---

func indexEntry(mft uint64, name string, last, hasChild bool, childVCN uint64) []byte {
	var flags byte
	if hasChild {
		flags |= 0x01
	}
	if last {
		flags |= 0x02
	}

	if last {
		total := 16
		if hasChild {
			total += 8
		}
		b := make([]byte, total)
		le16(b, 8, uint16(total))
		b[12] = flags
		if hasChild {
			le64(b, total-8, childVCN)
		}
		return b
	}

	key := fileNameValue(5, 0, name)
	total := (16 + len(key) + 7) &^ 7
	if hasChild {
		total += 8
	}
	b := make([]byte, total)
	le64(b, 0, mft)
	le16(b, 8, uint16(total))
	le16(b, 10, uint16(len(key)))
	b[12] = flags
	copy(b[16:], key)
	if hasChild {
		le64(b, total-8, childVCN)
	}
	return b
}

func buildIndexBuffer(vcn uint64, entries ...[]byte) []byte {
	buf := make([]byte, 4096)
	copy(buf, "INDX")
	le16(buf, 4, 40) // update sequence offset
	le16(buf, 6, 9)  // sentinel + 8 sectors
	le64(buf, 16, vcn)

	pos := 64
	for _, e := range entries {
		copy(buf[pos:], e)
		pos += len(e)
	}
	le32(buf, 24, 40)              // offset to entries, relative to byte 24
	le32(buf, 28, uint32(pos)-24)  // logical size
	le32(buf, 32, 4096-24)         // physical size

	le16(buf, 40, 0x0002)
	for i := 1; i <= 8; i++ {
		tail := 512*i - 2
		copy(buf[40+2*i:], buf[tail:tail+2])
		buf[tail], buf[tail+1] = 0x02, 0x00
	}
	return buf
}

func TestParseIndexBuffer(t *testing.T) {
	buf := buildIndexBuffer(0,
		indexEntry(21, "a.txt", false, false, 0),
		indexEntry(22, "b.txt", false, true, 7),
		indexEntry(0, "", true, false, 0),
	)

	ib, err := ntfs.ParseIndexBuffer(buf)
	require.NoError(t, err)
	require.Equal(t, uint64(0), ib.VCN)
	require.True(t, ib.IsLeaf())
	require.Len(t, ib.Entries, 3)

	require.Equal(t, uint64(21), ib.Entries[0].MFT)
	require.Equal(t, "a.txt", ib.Entries[0].Name())
	require.Equal(t, 2017, ib.Entries[0].FileName.CreateTime().Year())

	require.True(t, ib.Entries[1].HasChild())
	require.Equal(t, uint64(7), ib.Entries[1].ChildVCN)

	require.True(t, ib.Entries[2].IsLast())
	require.Equal(t, "", ib.Entries[2].Name())
}

func TestParseIndexBufferBadSignature(t *testing.T) {
	buf := make([]byte, 4096)
	copy(buf, "XXXX")
	_, err := ntfs.ParseIndexBuffer(buf)
	require.ErrorIs(t, err, fserr.ErrInvalidSignature)
}

func TestParseIndexBufferFixupMismatch(t *testing.T) {
	buf := buildIndexBuffer(0, indexEntry(0, "", true, false, 0))
	buf[1022] = 0x77
	_, err := ntfs.ParseIndexBuffer(buf)
	require.ErrorIs(t, err, fserr.ErrCorrupt)
}

func TestParseIndexRoot(t *testing.T) {
	entries := append(indexEntry(30, "child.txt", false, false, 0),
		indexEntry(0, "", true, false, 0)...)

	value := make([]byte, 32+len(entries))
	le32(value, 0, 0x30)  // indexed attribute type
	le32(value, 4, 1)     // collation rule
	le32(value, 8, 4096)  // index buffer size
	le32(value, 12, 1)    // clusters per buffer
	le32(value, 16, 16)   // offset to entries from node header
	le32(value, 20, uint32(16+len(entries))) // logical size
	le32(value, 24, uint32(16+len(entries)))
	le32(value, 28, 1) // index is non-resident too
	copy(value[32:], entries)

	rec := buildRecord(11, 0x0003, residentAttr(0x90, "$I30", value))
	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)

	root, err := ntfs.ParseIndexRoot(parsed.FirstAttribute(ntfs.AttrIndexRoot))
	require.NoError(t, err)
	require.Equal(t, ntfs.AttrFileName, root.IndexedType)
	require.Equal(t, uint32(4096), root.BufferSize)
	require.True(t, root.NonResidentIndex)
	require.Len(t, root.Entries, 2)
	require.Equal(t, "child.txt", root.Entries[0].Name())
}

func TestParseBitmap(t *testing.T) {
	rec := buildRecord(11, 0x0003, residentAttr(0xB0, "$I30", []byte{0b101}))
	parsed, err := ntfs.ParseRecord(rec)
	require.NoError(t, err)

	bm, err := ntfs.ParseBitmap(parsed.FirstAttribute(ntfs.AttrBitmap))
	require.NoError(t, err)
	require.True(t, bm.InUse(0))
	require.False(t, bm.InUse(1))
	require.True(t, bm.InUse(2))
	require.False(t, bm.InUse(3))
	require.False(t, bm.InUse(100))
	require.Equal(t, 2, bm.InUseCount())
}
