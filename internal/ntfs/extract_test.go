package ntfs_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ppolstra/windows-forensics/internal/fserr"
	"github.com/ppolstra/windows-forensics/internal/ntfs"
	"github.com/stretchr/testify/require"
)

// buildVolume creates a 64-cluster in-memory NTFS volume: 4 KiB clusters,
// 1 KiB file records, MFT at cluster 4.
func buildVolume(t *testing.T) ([]byte, *ntfs.VBR) {
	t.Helper()

	img := make([]byte, 64*4096)
	copy(img[3:], "NTFS    ")
	le16(img, 11, 512)
	img[13] = 8
	le64(img, 40, 512) // total sectors
	le64(img, 48, 4)   // MFT cluster
	le64(img, 56, 5)   // MFT mirror cluster
	img[64] = 0xF6     // -10: file records are 2^10 bytes
	img[68] = 0x01     // one cluster per index buffer
	le64(img, 72, 0xDEADBEEF)
	img[510], img[511] = 0x55, 0xAA

	vbr, err := ntfs.ParseVBR(img[:512])
	require.NoError(t, err)
	require.Equal(t, uint32(4096), vbr.BytesPerCluster())
	require.Equal(t, uint32(1024), vbr.FileRecordSize())
	require.Equal(t, uint32(4096), vbr.IndexBufferSize())
	return img, vbr
}

func placeRecord(img []byte, n uint64, rec []byte) {
	copy(img[4*4096+1024*n:], rec)
}

func fillCluster(img []byte, cluster int, pattern byte) {
	for i := 0; i < 4096; i++ {
		img[cluster*4096+i] = pattern
	}
}

func newExtractor(t *testing.T, img []byte, vbr *ntfs.VBR) *ntfs.Extractor {
	t.Helper()
	return &ntfs.Extractor{
		Image:     bytes.NewReader(img),
		VBR:       vbr,
		OutputDir: t.TempDir(),
	}
}

func TestParseVBRSignedRecordSize(t *testing.T) {
	_, vbr := buildVolume(t)
	require.Equal(t, int64(0), vbr.ClusterOffset(0))
	require.Equal(t, int64(4*4096), vbr.ClusterOffset(4))
}

func TestSanitizeName(t *testing.T) {
	require.Equal(t, "root", ntfs.SanitizeName("."))
	require.Equal(t, "dollarMFT", ntfs.SanitizeName("$MFT"))
	require.Equal(t, "hello.txt", ntfs.SanitizeName("hello.txt"))
	require.Equal(t, "unnamed", ntfs.SanitizeName(""))
}

func TestExtractResidentFile(t *testing.T) {
	img, vbr := buildVolume(t)
	placeRecord(img, 5, buildRecord(5, 0x0001,
		residentAttr(0x10, "", standardInfoValue(0x20)),
		residentAttr(0x30, "", fileNameValue(5, 0, "hello.txt")),
		residentAttr(0x80, "", []byte("Hello, world!\n")),
	))

	e := newExtractor(t, img, vbr)
	written, err := e.Extract(5)
	require.NoError(t, err)
	require.Len(t, written, 1)

	out, err := os.ReadFile(filepath.Join(e.OutputDir, "hello.txt"))
	require.NoError(t, err)
	require.Equal(t, "Hello, world!\n", string(out))
}

func TestExtractAlternateDataStream(t *testing.T) {
	img, vbr := buildVolume(t)
	placeRecord(img, 9, buildRecord(9, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "carrier.txt")),
		residentAttr(0x80, "", []byte("visible")),
		residentAttr(0x80, "secret", []byte("hidden payload")),
	))

	e := newExtractor(t, img, vbr)
	written, err := e.Extract(9)
	require.NoError(t, err)
	require.Len(t, written, 2)

	def, err := os.ReadFile(filepath.Join(e.OutputDir, "carrier.txt"))
	require.NoError(t, err)
	require.Equal(t, "visible", string(def))

	ads, err := os.ReadFile(filepath.Join(e.OutputDir, "carrier.txt-ads-secret"))
	require.NoError(t, err)
	require.Equal(t, "hidden payload", string(ads))
}

func TestExtractNonResidentFile(t *testing.T) {
	img, vbr := buildVolume(t)
	fillCluster(img, 20, 'A')
	fillCluster(img, 21, 'A')
	placeRecord(img, 6, buildRecord(6, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "blob.bin")),
		// Two clusters at LCN 20.
		nonResidentAttr(0x80, "", 0, 1, []byte{0x11, 0x02, 0x14, 0x00}, 8192),
	))

	e := newExtractor(t, img, vbr)
	_, err := e.Extract(6)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(e.OutputDir, "blob.bin"))
	require.NoError(t, err)
	require.Len(t, out, 8192)
	require.Equal(t, byte('A'), out[0])
	require.Equal(t, byte('A'), out[8191])
}

func TestExtractDirectoryIndex(t *testing.T) {
	img, vbr := buildVolume(t)
	fillCluster(img, 10, 0xAA)
	fillCluster(img, 11, 0xBB)

	dirRecord := func(num uint32, bitmapBits byte) []byte {
		return buildRecord(num, 0x0003,
			residentAttr(0x30, "", fileNameValue(5, ntfs.FlagDirectory, "Users")),
			nonResidentAttr(0xA0, "$I30", 0, 1, []byte{0x11, 0x02, 0x0A, 0x00}, 8192),
			residentAttr(0xB0, "$I30", []byte{bitmapBits}),
		)
	}

	// Both buffers allocated: full 8 KiB index.
	placeRecord(img, 11, dirRecord(11, 0b11))
	e := newExtractor(t, img, vbr)
	written, err := e.Extract(11)
	require.NoError(t, err)
	require.Len(t, written, 1)

	out, err := os.ReadFile(filepath.Join(e.OutputDir, "index-Users"))
	require.NoError(t, err)
	require.Len(t, out, 8192)
	require.Equal(t, byte(0xAA), out[0])
	require.Equal(t, byte(0xBB), out[4096])

	// Only the first buffer allocated: the second is slack.
	placeRecord(img, 12, dirRecord(12, 0b01))
	e2 := newExtractor(t, img, vbr)
	_, err = e2.Extract(12)
	require.NoError(t, err)

	out, err = os.ReadFile(filepath.Join(e2.OutputDir, "index-Users"))
	require.NoError(t, err)
	require.Len(t, out, 4096)
	require.Equal(t, byte(0xAA), out[0])

	// Slack requested: unallocated buffers come along anyway.
	e3 := newExtractor(t, img, vbr)
	e3.IncludeSlack = true
	_, err = e3.Extract(12)
	require.NoError(t, err)

	out, err = os.ReadFile(filepath.Join(e3.OutputDir, "index-Users"))
	require.NoError(t, err)
	require.Len(t, out, 8192)
}

func TestExtractFragmentedMFTAborts(t *testing.T) {
	img, vbr := buildVolume(t)
	placeRecord(img, 7, buildRecord(99, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "wrong.txt")),
	))

	e := newExtractor(t, img, vbr)
	_, err := e.Extract(7)
	require.ErrorIs(t, err, fserr.ErrFragmentedMFT)
}

func TestExtractCrossRecordDataViaAttributeList(t *testing.T) {
	img, vbr := buildVolume(t)
	fillCluster(img, 20, 'X')
	fillCluster(img, 21, 'Y')

	item := func(typ uint32, vcn, ref uint64) []byte {
		b := make([]byte, 32)
		le32(b, 0, typ)
		le16(b, 4, 32)
		le64(b, 8, vcn)
		le64(b, 16, ref)
		return b
	}
	// List the second slice first to prove VCN ordering, not list order,
	// decides reassembly.
	list := append(item(0x80, 1, 9), item(0x80, 0, 8)...)

	placeRecord(img, 8, buildRecord(8, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "frag.bin")),
		residentAttr(0x20, "", list),
		nonResidentAttr(0x80, "", 0, 0, []byte{0x11, 0x01, 0x14, 0x00}, 4096),
	))
	placeRecord(img, 9, buildRecord(9, 0x0000,
		nonResidentAttr(0x80, "", 1, 1, []byte{0x11, 0x01, 0x15, 0x00}, 4096),
	))

	e := newExtractor(t, img, vbr)
	_, err := e.Extract(8)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(e.OutputDir, "frag.bin"))
	require.NoError(t, err)
	require.Len(t, out, 8192)
	require.Equal(t, byte('X'), out[0])
	require.Equal(t, byte('Y'), out[4096])
}

func TestExtractFromExternalMFT(t *testing.T) {
	img, vbr := buildVolume(t)

	// The image's MFT area stays empty; only the sidecar MFT has records.
	mft := make([]byte, 8*1024)
	copy(mft[5*1024:], buildRecord(5, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "aside.txt")),
		residentAttr(0x80, "", []byte("from the sidecar")),
	))

	e := newExtractor(t, img, vbr)
	e.MFT = bytes.NewReader(mft)

	_, err := e.Extract(5)
	require.NoError(t, err)

	out, err := os.ReadFile(filepath.Join(e.OutputDir, "aside.txt"))
	require.NoError(t, err)
	require.Equal(t, "from the sidecar", string(out))
}

func TestScanDeleted(t *testing.T) {
	var stream []byte
	stream = append(stream, buildRecord(1, 0x0001,
		residentAttr(0x30, "", fileNameValue(5, 0, "alive.txt")))...)
	stream = append(stream, buildRecord(3, 0x0000,
		residentAttr(0x30, "", fileNameValue(5, 0, "gone.txt")))...)
	stream = append(stream, make([]byte, 1024)...) // unused slot
	stream = append(stream, buildRecord(4, 0x0002,
		residentAttr(0x30, "", fileNameValue(5, ntfs.FlagDirectory, "lostdir")))...)

	found, err := ntfs.ScanDeleted(bytes.NewReader(stream), 1024)
	require.NoError(t, err)
	require.Len(t, found, 2)

	require.Equal(t, uint64(3), found[0].MFT)
	require.Equal(t, "gone.txt", found[0].Name)
	require.False(t, found[0].IsDirectory)

	require.Equal(t, "lostdir", found[1].Name)
	require.True(t, found[1].IsDirectory)
}
