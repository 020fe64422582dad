package imagepipe

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

// makeTestImage returns a deterministic gradient image.
func makeTestImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{
				R: uint8(x * 255 / max(w, 1)),
				G: uint8(y * 255 / max(h, 1)),
				B: uint8((x + y) % 256),
				A: 255,
			})
		}
	}
	return img
}

// makeCheckerImage returns a high-contrast checkerboard, perceptually far
// from the gradient fixture regardless of scaling.
func makeCheckerImage(w, h, cell int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if (x/cell+y/cell)%2 == 0 {
				img.Set(x, y, color.NRGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.NRGBA{0, 0, 0, 255})
			}
		}
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}

// makePalettedPNG encodes a paletted image whose palette carries a fully
// transparent entry, so the encoder emits a tRNS chunk.
func makePalettedPNG(t *testing.T, w, h int) []byte {
	t.Helper()
	palette := color.Palette{
		color.NRGBA{0, 0, 0, 0}, // transparent
		color.NRGBA{255, 0, 0, 255},
		color.NRGBA{0, 255, 0, 255},
		color.NRGBA{0, 0, 255, 255},
	}
	img := image.NewPaletted(image.Rect(0, 0, w, h), palette)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetColorIndex(x, y, uint8((x+y)%len(palette)))
		}
	}
	return encodePNG(t, img)
}

// injectBadPNGChunk splices a tEXt chunk with a deliberately wrong CRC
// right after IHDR, which makes the standard decoder reject the stream.
func injectBadPNGChunk(t *testing.T, data []byte) []byte {
	t.Helper()
	if !bytes.HasPrefix(data, pngFileSig) {
		t.Fatal("not a png")
	}
	// IHDR always carries 13 data bytes: signature(8) + len(4) + type(4) +
	// data(13) + crc(4) puts the insertion point at offset 33.
	const insertAt = 33

	payload := []byte("k\x00v")
	chunk := binary.BigEndian.AppendUint32(nil, uint32(len(payload)))
	chunk = append(chunk, []byte("tEXt")...)
	chunk = append(chunk, payload...)
	goodCRC := crc32.ChecksumIEEE(chunk[4:])
	chunk = binary.BigEndian.AppendUint32(chunk, goodCRC+1)

	out := make([]byte, 0, len(data)+len(chunk))
	out = append(out, data[:insertAt]...)
	out = append(out, chunk...)
	out = append(out, data[insertAt:]...)
	return out
}
