package disk_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/ppolstra/windows-forensics/internal/disk"
	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/stretchr/testify/require"
)

func putEntry(sector []byte, slot int, active bool, ptype byte, firstLBA, totalSectors uint32) {
	off := 0x1BE + slot*16
	if active {
		sector[off] = 0x80
	}
	sector[off+4] = ptype
	binary.LittleEndian.PutUint32(sector[off+8:], firstLBA)
	binary.LittleEndian.PutUint32(sector[off+12:], totalSectors)
}

func signSector(sector []byte) {
	sector[510] = 0x55
	sector[511] = 0xAA
}

func TestParseMBRSignature(t *testing.T) {
	sector := make([]byte, 512)
	_, err := disk.ParseMBR(sector)
	require.ErrorIs(t, err, fserr.ErrInvalidSignature)

	signSector(sector)
	mbr, err := disk.ParseMBR(sector)
	require.NoError(t, err)
	require.True(t, mbr.ValidSignature())
}

func TestParseMBRRoundTrip(t *testing.T) {
	sector := make([]byte, 512)
	putEntry(sector, 0, true, 0x0C, 2048, 129024)
	putEntry(sector, 1, false, 0x07, 131072, 262144)
	signSector(sector)

	mbr, err := disk.ParseMBR(sector)
	require.NoError(t, err)

	e0 := &mbr.PartitionEntries[0]
	require.True(t, e0.IsActive())
	require.Equal(t, disk.PartitionTypeFAT32LBA, e0.PartitionType)
	require.Equal(t, uint32(2048), e0.ReadStartLBA())
	require.Equal(t, uint32(129024), e0.ReadTotalSectors())

	e1 := &mbr.PartitionEntries[1]
	require.False(t, e1.IsActive())
	require.Equal(t, disk.PartitionTypeNTFS, e1.PartitionType)

	require.True(t, mbr.PartitionEntries[2].IsEmpty())
	require.True(t, mbr.PartitionEntries[3].IsEmpty())
}

func TestCHSUnpacking(t *testing.T) {
	sector := make([]byte, 512)
	off := 0x1BE
	// head 254, sector byte packs sector 63 with cylinder high bits 0b10,
	// cylinder low byte 0x2A -> cylinder 0x22A.
	sector[off+1] = 254
	sector[off+2] = 0x3F | 0x80
	sector[off+3] = 0x2A
	sector[off+4] = 0x83
	signSector(sector)

	mbr, err := disk.ParseMBR(sector)
	require.NoError(t, err)

	chs := mbr.PartitionEntries[0].ReadStartCHS()
	require.Equal(t, uint8(254), chs.Head)
	require.Equal(t, uint8(63), chs.Sector)
	require.Equal(t, uint16(0x22A), chs.Cylinder)
}

func TestScanSinglePrimaryPartition(t *testing.T) {
	img := make([]byte, 4096*512)
	putEntry(img, 0, true, 0x0C, 2048, 129024)
	signSector(img)

	parts, err := disk.Scan(bytes.NewReader(img))
	require.NoError(t, err)
	require.Len(t, parts, 1)

	p := parts[0]
	require.Equal(t, disk.SchemeMBR, p.Scheme)
	require.Equal(t, 1, p.Index)
	require.Equal(t, disk.PartitionTypeFAT32LBA, p.Type)
	require.Equal(t, uint64(2048), p.FirstLBA)
	require.Equal(t, uint64(2048*512), p.Offset())
	require.Equal(t, uint64(129024*512), p.Size())
}

func TestScanExtendedChain(t *testing.T) {
	// Extended container at LBA 2048 holding two logical FAT16 volumes.
	// EBR #1 sits at the container base; its entry 1 points 63 sectors in,
	// entry 2 points to EBR #2 at base+20544.
	img := make([]byte, 30000*512)
	putEntry(img, 0, false, 0x05, 2048, 27000)
	signSector(img)

	ebr1 := img[2048*512:]
	putEntry(ebr1, 0, false, 0x06, 63, 20000)
	putEntry(ebr1, 1, false, 0x05, 20544, 6000)
	signSector(ebr1)

	ebr2 := img[(2048+20544)*512:]
	putEntry(ebr2, 0, false, 0x06, 63, 5000)
	signSector(ebr2)

	parts, err := disk.Scan(bytes.NewReader(img))
	require.NoError(t, err)
	require.Len(t, parts, 3)

	require.Equal(t, disk.PartitionTypeExtendedCHS, parts[0].Type)
	require.False(t, parts[0].Logical)

	require.Equal(t, 5, parts[1].Index)
	require.True(t, parts[1].Logical)
	require.Equal(t, uint64(2048+63), parts[1].FirstLBA)
	require.Equal(t, uint64(20000), parts[1].TotalSectors)

	require.Equal(t, 6, parts[2].Index)
	require.Equal(t, uint64(2048+20544+63), parts[2].FirstLBA)
	require.Equal(t, uint64(5000), parts[2].TotalSectors)
}

func TestScanExtendedChainCycleIsBounded(t *testing.T) {
	// EBR whose next pointer loops back to itself.
	img := make([]byte, 4096*512)
	putEntry(img, 0, false, 0x0F, 1024, 2048)
	signSector(img)

	ebr := img[1024*512:]
	putEntry(ebr, 0, false, 0x06, 63, 512)
	putEntry(ebr, 1, false, 0x05, 0, 512) // next EBR = base again
	signSector(ebr)

	_, err := disk.Scan(bytes.NewReader(img))
	require.ErrorIs(t, err, fserr.ErrCorrupt)
}

func gptImage(t *testing.T) []byte {
	t.Helper()

	img := make([]byte, 8192*512)
	putEntry(img, 0, false, 0xEE, 1, 8191)
	signSector(img)

	hdr := img[512:]
	copy(hdr, "EFI PART")
	binary.LittleEndian.PutUint64(hdr[72:], 2)    // partition entry LBA
	binary.LittleEndian.PutUint32(hdr[80:], 128)  // entries
	binary.LittleEndian.PutUint32(hdr[84:], 128)  // entry size

	// Entry 0: Microsoft basic data at [2048, 6143].
	entry := img[2*512:]
	typeGUID := []byte{
		0xA2, 0xA0, 0xD0, 0xEB, 0xE5, 0xB9, 0x33, 0x44,
		0x87, 0xC0, 0x68, 0xB6, 0xB7, 0x26, 0x99, 0xC7,
	}
	copy(entry, typeGUID)
	for i := 16; i < 32; i++ {
		entry[i] = byte(i)
	}
	binary.LittleEndian.PutUint64(entry[32:], 2048)
	binary.LittleEndian.PutUint64(entry[40:], 6143)
	binary.LittleEndian.PutUint64(entry[48:], 4)
	name := "Basic data"
	for i, r := range name {
		binary.LittleEndian.PutUint16(entry[56+2*i:], uint16(r))
	}
	return img
}

func TestScanGPT(t *testing.T) {
	img := gptImage(t)

	parts, err := disk.Scan(bytes.NewReader(img))
	require.NoError(t, err)
	require.Len(t, parts, 1)

	p := parts[0]
	require.Equal(t, disk.SchemeGPT, p.Scheme)
	require.Equal(t, 1, p.Index)
	require.Equal(t, "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7", p.TypeGUID)
	require.Equal(t, "Basic data", p.Label)
	require.Equal(t, uint64(2048), p.FirstLBA)
	require.Equal(t, uint64(6143-2048+1), p.TotalSectors)
	require.Equal(t, uint64(4), p.Attributes)
	require.True(t, disk.GPTTypeSupported(p.TypeGUID))
}

func TestScanGPTMissingHeader(t *testing.T) {
	img := gptImage(t)
	copy(img[512:], "NOTEFI !")

	_, err := disk.Scan(bytes.NewReader(img))
	require.ErrorIs(t, err, fserr.ErrInvalidSignature)
}

func TestMountSpecs(t *testing.T) {
	parts := []disk.Partition{
		{Scheme: disk.SchemeMBR, Index: 1, Type: 0x0C, FirstLBA: 2048, TotalSectors: 129024},
		{Scheme: disk.SchemeMBR, Index: 2, Type: 0x82, FirstLBA: 140000, TotalSectors: 1000},  // swap
		{Scheme: disk.SchemeMBR, Index: 3, Type: 0x05, FirstLBA: 150000, TotalSectors: 10000}, // extended
		{Scheme: disk.SchemeGPT, Index: 4, TypeGUID: "00000000-0000-0000-0000-000000000001", FirstLBA: 1, TotalSectors: 1},
	}

	specs := disk.MountSpecs("disk.img", parts)
	require.Len(t, specs, 1)
	require.Equal(t, "disk.img", specs[0].Image)
	require.Equal(t, "/media/part1", specs[0].Mountpoint)
	require.Equal(t, uint64(2048*512), specs[0].Offset)
	require.Equal(t, uint64(129024*512), specs[0].SizeLimit)
	require.Equal(t, "loop,ro,noatime,offset=1048576,sizelimit=66060288", specs[0].Options())
}

func TestMountOptionsWithoutSizeLimit(t *testing.T) {
	spec := disk.MountSpec{Image: "x", Mountpoint: "/media/part5", Offset: 32256}
	require.Equal(t, "loop,ro,noatime,offset=32256", spec.Options())
}
