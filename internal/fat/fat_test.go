package fat_test

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppolstra/windows-forensics/internal/fat"
	"github.com/stretchr/testify/require"
)

// buildFAT32VBR assembles a minimal FAT32 boot sector: 512-byte sectors,
// 8-sector clusters, 32 reserved sectors, two FATs of 16 sectors each.
func buildFAT32VBR(totalSectors uint32) []byte {
	b := make([]byte, 512)
	copy(b[3:], "MSDOS5.0")
	binary.LittleEndian.PutUint16(b[11:], 512) // bytes/sector
	b[13] = 8                                  // sectors/cluster
	binary.LittleEndian.PutUint16(b[14:], 32)  // reserved sectors
	b[16] = 2                                  // FAT copies
	binary.LittleEndian.PutUint16(b[17:], 0)   // root entries (FAT32)
	b[21] = 0xF8
	binary.LittleEndian.PutUint16(b[22:], 0) // sectors/FAT16 (FAT32)
	binary.LittleEndian.PutUint32(b[32:], totalSectors)
	binary.LittleEndian.PutUint32(b[36:], 16) // sectors/FAT32
	binary.LittleEndian.PutUint32(b[44:], 2)  // root cluster
	copy(b[71:], "NO NAME    ")
	copy(b[82:], "FAT32   ")
	b[510], b[511] = 0x55, 0xAA
	return b
}

func buildFAT16VBR() []byte {
	b := make([]byte, 512)
	copy(b[3:], "MSDOS5.0")
	binary.LittleEndian.PutUint16(b[11:], 512)
	b[13] = 4
	binary.LittleEndian.PutUint16(b[14:], 4)   // reserved
	b[16] = 2                                  // FATs
	binary.LittleEndian.PutUint16(b[17:], 512) // root entries
	binary.LittleEndian.PutUint16(b[19:], 40960)
	b[21] = 0xF8
	binary.LittleEndian.PutUint16(b[22:], 40) // sectors/FAT
	copy(b[43:], "NO NAME    ")
	copy(b[54:], "FAT16   ")
	b[510], b[511] = 0x55, 0xAA
	return b
}

func TestParseVBRSignature(t *testing.T) {
	b := buildFAT32VBR(4096)
	b[510] = 0
	_, err := fat.ParseVBR(b)
	require.Error(t, err)
}

func TestParseVBRFAT32(t *testing.T) {
	vbr, err := fat.ParseVBR(buildFAT32VBR(4096))
	require.NoError(t, err)

	require.Equal(t, fat.FAT32, vbr.Variant())
	require.True(t, vbr.IsFAT32())
	require.Equal(t, uint32(4096), vbr.TotalSectors())
	require.Equal(t, uint32(16), vbr.SectorsPerFAT())
	require.Equal(t, uint32(4096), vbr.ClusterSize())
	require.Equal(t, uint32(512), vbr.TotalClusters())
	require.Equal(t, "FAT32", vbr.FilesystemType)

	// Data area starts after reserved sectors and both FATs.
	require.Equal(t, uint32(64), vbr.SectorFromCluster(2))
	require.Equal(t, uint32(72), vbr.SectorFromCluster(3))
	require.Equal(t, uint32(2), vbr.ClusterFromSector(64))
	require.Equal(t, int64(64*512), vbr.OffsetFromCluster(2))
	require.Equal(t, uint32(32), vbr.SectorOfFAT1())
	require.Equal(t, uint32(48), vbr.SectorOfFAT2())
}

func TestParseVBRFAT16(t *testing.T) {
	vbr, err := fat.ParseVBR(buildFAT16VBR())
	require.NoError(t, err)

	require.Equal(t, fat.FAT16, vbr.Variant())
	require.Equal(t, uint32(40960), vbr.TotalSectors())
	require.Equal(t, uint32(40), vbr.SectorsPerFAT())
	// Root directory area: 512 entries = 32 sectors after the FATs.
	require.Equal(t, uint32(4+2*40), vbr.RootDirSector())
	require.Equal(t, uint32(4+2*40+512/16), vbr.SectorFromCluster(2))
}

func fat32Table(entries map[uint32]uint32, totalClusters uint32) *fat.Table {
	buf := make([]byte, (totalClusters+2)*4)
	for c, v := range entries {
		binary.LittleEndian.PutUint32(buf[c*4:], v)
	}
	return fat.NewTable(buf, fat.FAT32, totalClusters)
}

func TestTableFAT32(t *testing.T) {
	tbl := fat32Table(map[uint32]uint32{
		2: 3, 3: 4, 4: 0x0FFFFFFF,
		7: 0xFFFFFFFF, // reserved top nibble must be masked
	}, 512)

	require.Equal(t, uint32(3), tbl.Entry(2))
	require.True(t, tbl.IsAllocated(2))
	require.False(t, tbl.IsAllocated(5))
	require.False(t, tbl.IsAllocated(0))
	require.True(t, tbl.IsEnd(4))
	require.True(t, tbl.IsEnd(7))
	require.Equal(t, uint32(0x0FFFFFFF), tbl.Entry(7))

	require.Equal(t, []uint32{2, 3, 4}, tbl.Chain(2))
	require.Empty(t, tbl.Chain(5))
}

func TestTableFAT12NibblePacking(t *testing.T) {
	// Cells: entry 0 = 0xABC, entry 1 = 0xDEF packed into three bytes.
	buf := []byte{0xBC, 0xFA, 0xDE, 0x03, 0x40, 0x00}
	tbl := fat.NewTable(buf, fat.FAT12, 16)

	require.Equal(t, uint32(0xABC), tbl.Entry(0))
	require.Equal(t, uint32(0xDEF), tbl.Entry(1))
	require.Equal(t, uint32(0x003), tbl.Entry(2))
	require.Equal(t, uint32(0x004), tbl.Entry(3))

	require.False(t, tbl.IsEnd(2))
	end := fat.NewTable([]byte{0xFF, 0x0F, 0x00}, fat.FAT12, 16)
	require.True(t, end.IsEnd(0))
}

func TestTableFAT16(t *testing.T) {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint16(buf[4:], 3)      // cluster 2 -> 3
	binary.LittleEndian.PutUint16(buf[6:], 0xFFFF) // cluster 3 ends
	tbl := fat.NewTable(buf, fat.FAT16, 16)

	require.Equal(t, []uint32{2, 3}, tbl.Chain(2))
	require.True(t, tbl.IsEnd(3))
}

func TestChainCycleIsBounded(t *testing.T) {
	tbl := fat32Table(map[uint32]uint32{2: 3, 3: 2}, 512)
	chain := tbl.Chain(2)
	require.Equal(t, []uint32{2, 3}, chain)
}

func shortEntry(name, ext string, attrs byte, cluster uint32, size uint32, deleted bool) []byte {
	b := make([]byte, 32)
	copy(b[0:8], "        ")
	copy(b[8:11], "   ")
	copy(b[0:8], name)
	copy(b[8:11], ext)
	if deleted {
		b[0] = 0xE5
	}
	b[11] = attrs
	binary.LittleEndian.PutUint16(b[14:], 13<<11|37<<5|21)  // create 13:37:42
	binary.LittleEndian.PutUint16(b[16:], 37<<9|4<<5|28)    // create 2017-04-28
	binary.LittleEndian.PutUint16(b[18:], 37<<9|5<<5|1)     // access 2017-05-01
	binary.LittleEndian.PutUint16(b[20:], uint16(cluster>>16))
	binary.LittleEndian.PutUint16(b[22:], 13<<11|37<<5|21)
	binary.LittleEndian.PutUint16(b[24:], 37<<9|4<<5|28)
	binary.LittleEndian.PutUint16(b[26:], uint16(cluster&0xFFFF))
	binary.LittleEndian.PutUint32(b[28:], size)
	return b
}

func lfnEntry(seq byte, last bool, fragment string) []byte {
	b := make([]byte, 32)
	if last {
		seq |= 0x40
	}
	b[0] = seq
	b[11] = 0x0F
	b[13] = 0x42 // checksum, arbitrary

	// 13 UCS-2 slots: 5 + 6 + 2, NUL terminated then 0xFFFF padded.
	slots := [][2]int{
		{1, 3}, {3, 5}, {5, 7}, {7, 9}, {9, 11},
		{14, 16}, {16, 18}, {18, 20}, {20, 22}, {22, 24}, {24, 26},
		{28, 30}, {30, 32},
	}
	runes := []rune(fragment)
	for i, slot := range slots {
		var v uint16
		switch {
		case i < len(runes):
			v = uint16(runes[i])
		case i == len(runes):
			v = 0x0000
		default:
			v = 0xFFFF
		}
		binary.LittleEndian.PutUint16(b[slot[0]:slot[1]], v)
	}
	return b
}

func TestDirectorySingleShortEntry(t *testing.T) {
	buf := append(shortEntry("README  ", "TXT", fat.AttrArchive, 9, 1234, false), make([]byte, 32)...)

	dir := fat.ParseDirectory(buf)
	require.Len(t, dir.Entries, 1)

	fe := dir.Entries[0]
	require.Equal(t, 1, fe.Count())
	require.False(t, fe.Deleted())
	require.Equal(t, "README.TXT", fe.ShortName())
	require.Equal(t, "README.TXT", fe.Name())
	require.Equal(t, uint32(9), fe.StartCluster())
	require.Equal(t, uint32(1234), fe.FileSize())
	require.False(t, fe.IsDir())

	require.Equal(t, 2017, fe.CreateTime().Year())
	require.Equal(t, 42, fe.CreateTime().Second())
}

func TestDirectoryLongFilename(t *testing.T) {
	// "photo_of_mountain.jpg" spans two LFN slots (13 + 8 chars); physical
	// order is last fragment first.
	name := "photo_of_mountain.jpg"
	var buf []byte
	buf = append(buf, lfnEntry(2, true, name[13:])...)
	buf = append(buf, lfnEntry(1, false, name[:13])...)
	buf = append(buf, shortEntry("PHOTO_~1", "JPG", fat.AttrArchive, 77, 50000, false)...)
	buf = append(buf, make([]byte, 32)...)

	dir := fat.ParseDirectory(buf)
	require.Len(t, dir.Entries, 1)

	fe := dir.Entries[0]
	require.Equal(t, 3, fe.Count())
	require.True(t, fe.HasLongName())
	require.Equal(t, name, fe.LongName())
	require.Equal(t, "PHOTO_~1.JPG", fe.ShortName())
	require.Equal(t, name, fe.Name())
	require.Equal(t, uint32(77), fe.StartCluster())
}

func TestDirectoryDeletedEntryStandsAlone(t *testing.T) {
	var buf []byte
	deleted := lfnEntry(1, true, "gone.txt")
	deleted[0] = 0xE5
	buf = append(buf, deleted...)
	buf = append(buf, shortEntry("GONE    ", "TXT", fat.AttrArchive, 5, 100, true)...)
	buf = append(buf, make([]byte, 32)...)

	dir := fat.ParseDirectory(buf)
	require.Len(t, dir.Entries, 2)
	require.True(t, dir.Entries[0].Deleted())
	require.Equal(t, 1, dir.Entries[0].Count())
	require.True(t, dir.Entries[1].Deleted())
	require.Equal(t, "_ONE.TXT", dir.Entries[1].ShortName())

	require.Len(t, dir.DeletedEntries(), 2)
}

func TestFAT32StartClusterHighWord(t *testing.T) {
	buf := shortEntry("BIG     ", "BIN", fat.AttrArchive, 0x0002_0005, 1, false)
	fe := fat.ParseFileEntry(buf, 0)
	require.Equal(t, uint32(0x0002_0005), fe.StartCluster())
}

// buildFAT32Volume creates an in-memory FAT32 volume image with the given
// FAT cells and returns the image plus its parsed VBR and table.
func buildFAT32Volume(t *testing.T, cells map[uint32]uint32) ([]byte, *fat.VBR, *fat.Table) {
	t.Helper()

	img := make([]byte, 4096*512)
	copy(img, buildFAT32VBR(4096))

	fatStart := 32 * 512
	for c, v := range cells {
		binary.LittleEndian.PutUint32(img[fatStart+int(c)*4:], v)
	}

	vbr, err := fat.ParseVBR(img[:512])
	require.NoError(t, err)
	table, err := vbr.ReadFAT(bytes.NewReader(img), 0)
	require.NoError(t, err)
	return img, vbr, table
}

func fillCluster(img []byte, vbr *fat.VBR, cluster uint32, pattern byte) {
	off := vbr.OffsetFromCluster(cluster)
	for i := int64(0); i < int64(vbr.ClusterSize()); i++ {
		img[off+i] = pattern
	}
}

func TestRecoverDefinitelyRecoverable(t *testing.T) {
	img, vbr, table := buildFAT32Volume(t, map[uint32]uint32{2: 0x0FFFFFFF})

	// 2048-byte deleted file pointing at free cluster 5.
	fe := fat.ParseFileEntry(shortEntry("NOTES   ", "TXT", fat.AttrArchive, 5, 2048, true), 0)
	require.True(t, fat.DefinitelyRecoverable(&fe, table, vbr))
	require.False(t, fat.DefinitelyNotRecoverable(&fe, table, vbr))

	fillCluster(img, vbr, 5, 0x41)

	cfg := fat.DefaultRecoverConfig()
	cfg.OutputDir = t.TempDir()

	n, err := fat.RecoverFile(bytes.NewReader(img), 0, &fe, table, vbr, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := os.ReadFile(filepath.Join(cfg.OutputDir, "_OTES.TXT"))
	require.NoError(t, err)
	require.Len(t, out, 2048)
	require.Equal(t, byte(0x41), out[0])
}

func TestRecoverAllocatedStartIsHopeless(t *testing.T) {
	_, vbr, table := buildFAT32Volume(t, map[uint32]uint32{5: 6})

	fe := fat.ParseFileEntry(shortEntry("NOTES   ", "TXT", fat.AttrArchive, 5, 2048, true), 0)
	require.True(t, fat.DefinitelyNotRecoverable(&fe, table, vbr))

	cfg := fat.DefaultRecoverConfig()
	cfg.OutputDir = t.TempDir()
	n, err := fat.RecoverFile(nil, 0, &fe, table, vbr, 0, cfg)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestRecoverMultiClusterChain(t *testing.T) {
	// 6144-byte file needs two clusters; cluster 6 is taken so the chain
	// must skip to 7. Non-zero content defeats the zero-cluster veto; the
	// file ends on a sector boundary, so it has no RAM slack for the slack
	// veto to check.
	img, vbr, table := buildFAT32Volume(t, map[uint32]uint32{6: 0x0FFFFFFF})

	fe := fat.ParseFileEntry(shortEntry("CHAIN   ", "BIN", fat.AttrArchive, 5, 6144, true), 0)
	require.False(t, fat.DefinitelyNotRecoverable(&fe, table, vbr))
	require.False(t, fat.DefinitelyRecoverable(&fe, table, vbr))

	fillCluster(img, vbr, 5, 0x11)
	fillCluster(img, vbr, 7, 0x22)

	cfg := fat.DefaultRecoverConfig()
	cfg.OutputDir = t.TempDir()

	n, err := fat.RecoverFile(bytes.NewReader(img), 0, &fe, table, vbr, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	out, err := os.ReadFile(filepath.Join(cfg.OutputDir, "_HAIN.BIN"))
	require.NoError(t, err)
	require.Len(t, out, 6144)
	require.Equal(t, byte(0x11), out[0])
	require.Equal(t, byte(0x22), out[4096])
}

func TestRecoverZeroClusterVeto(t *testing.T) {
	img, vbr, table := buildFAT32Volume(t, nil)

	fe := fat.ParseFileEntry(shortEntry("BLANK   ", "BIN", fat.AttrArchive, 5, 6144, true), 0)

	cfg := fat.DefaultRecoverConfig()
	cfg.HiWord = fat.SingleHint
	cfg.OutputDir = t.TempDir()

	// All clusters are zero; the veto should reject every chain.
	n, err := fat.RecoverFile(bytes.NewReader(img), 0, &fe, table, vbr, 0, cfg)
	require.NoError(t, err)
	require.Zero(t, n)

	// Disarming the vetoes recovers the chain.
	cfg.VetoZeroClusters = false
	cfg.VetoZeroRAMSlack = false
	n, err = fat.RecoverFile(bytes.NewReader(img), 0, &fe, table, vbr, 0, cfg)
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

func TestReadDirectoryBufferRoot(t *testing.T) {
	img, vbr, table := buildFAT32Volume(t, map[uint32]uint32{2: 0x0FFFFFFF})

	// Root directory lives in cluster 2 on FAT32.
	entry := shortEntry("HELLO   ", "TXT", fat.AttrArchive, 9, 42, false)
	copy(img[vbr.OffsetFromCluster(2):], entry)

	buf, err := fat.ReadDirectoryBuffer(bytes.NewReader(img), 0, vbr, table, 0)
	require.NoError(t, err)
	require.Len(t, buf, int(vbr.ClusterSize()))

	dir := fat.ParseDirectory(buf)
	require.Len(t, dir.Entries, 1)
	require.Equal(t, "HELLO.TXT", dir.Entries[0].ShortName())
}
