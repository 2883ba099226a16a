package sniff_test

import (
	"bytes"
	"testing"

	"github.com/ppolstra/windows-forensics/internal/sniff"
	"github.com/stretchr/testify/require"
)

func TestNewFinderKeywords(t *testing.T) {
	for _, kind := range []string{
		"jpeg", "jpg", "png", "gif", "bmp", "pdf", "exe", "zip",
		"doc", "xls", "ppt", "ofc", "image", "img",
	} {
		f, err := sniff.NewFinder(kind)
		require.NoError(t, err, kind)
		require.NotEmpty(t, f.Type())
	}

	_, err := sniff.NewFinder("floppy")
	require.Error(t, err)
}

func TestSignatureMatching(t *testing.T) {
	jpeg, _ := sniff.NewFinder("jpeg")
	require.True(t, jpeg.Matches([]byte{0xFF, 0xD8, 0xFF, 0xE0, 0x00}))
	require.False(t, jpeg.Matches([]byte{0x89, 0x50, 0x4E, 0x47}))

	gif, _ := sniff.NewFinder("gif")
	require.True(t, gif.Matches([]byte("GIF89a......")))
	require.True(t, gif.Matches([]byte("GIF87a......")))
	require.False(t, gif.Matches([]byte("GIF88a......")))

	image, _ := sniff.NewFinder("image")
	require.True(t, image.Matches([]byte{0xFF, 0xD8, 0xFF}))
	require.True(t, image.Matches([]byte("BM......")))
	require.False(t, image.Matches([]byte("%PDF-1.4")))

	office, _ := sniff.NewFinder("ofc")
	require.True(t, office.Matches([]byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0}))
}

func TestScanReportsOffsetsAndSectors(t *testing.T) {
	// 8-sector windows; a JPEG header at window 2, a PDF at window 5.
	img := make([]byte, 64*512)
	copy(img[2*8*512:], []byte{0xFF, 0xD8, 0xFF, 0xE1})
	copy(img[5*8*512:], "%PDF-1.7")

	finders, err := sniff.NewFinders([]string{"jpeg", "pdf"})
	require.NoError(t, err)

	sc := &sniff.Scanner{Finders: finders, WindowSectors: 8}

	var matches []sniff.Match
	err = sc.Scan(bytes.NewReader(img), 0, func(m sniff.Match) bool {
		matches = append(matches, m)
		return true
	})
	require.NoError(t, err)
	require.Len(t, matches, 2)

	require.Equal(t, "JPEG", matches[0].Type)
	require.Equal(t, uint64(2*8*512), matches[0].Offset)
	require.Equal(t, uint64(2*8), matches[0].Sector)

	require.Equal(t, "PDF", matches[1].Type)
	require.Equal(t, uint64(5*8*512), matches[1].Offset)
}

func TestScanStartSectorAndEarlyStop(t *testing.T) {
	img := make([]byte, 32*512)
	copy(img[0:], []byte{0xFF, 0xD8, 0xFF})
	copy(img[16*512:], []byte{0xFF, 0xD8, 0xFF})

	finders, _ := sniff.NewFinders([]string{"jpeg"})
	sc := &sniff.Scanner{Finders: finders, WindowSectors: 1}

	// Starting past the first hit skips it.
	var got []sniff.Match
	err := sc.Scan(bytes.NewReader(img), 8, func(m sniff.Match) bool {
		got = append(got, m)
		return true
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(16), got[0].Sector)

	// A false return stops the scan.
	count := 0
	err = sc.Scan(bytes.NewReader(img), 0, func(m sniff.Match) bool {
		count++
		return false
	})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}
