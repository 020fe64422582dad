package imagepipe

import (
	"bytes"
	"crypto/md5" //nolint:gosec // content addressing, not authentication
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"image"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ExtractInfo derives an ImageRecord from raw bytes. SizeBytes and
// ContentHash are always populated. When the bytes decode as a raster image
// the perceptual hash, dimensions, orientation, decoder-reported format and
// any rights metadata are filled in as well.
//
// A decode failure triggers at most one structural repair attempt (stripped
// JPEG metadata segments, rebuilt PNG chunks) followed by a single
// re-extraction of the repaired bytes. Total failure degrades to a
// non-image record; extraction never fails the caller.
func (cfg *Config) ExtractInfo(data []byte) ImageRecord {
	if cfg.OnExtract != nil {
		cfg.OnExtract()
	}
	return cfg.extractInfo(data, true)
}

func (cfg *Config) extractInfo(data []byte, allowRepair bool) ImageRecord {
	rec := ImageRecord{
		SizeBytes:   uint64(len(data)),
		ContentHash: fmt.Sprintf("%X", md5.Sum(data)), //nolint:gosec
		Orientation: OrientationUnknown,
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if allowRepair {
			if fixed := repairImage(data); fixed != nil {
				slog.Debug("imagepipe: re-extracting repaired bytes", "original", len(data), "repaired", len(fixed))
				return cfg.extractInfo(fixed, false)
			}
		}
		slog.Debug("imagepipe: undecodable content", "error", err.Error())
		return rec
	}

	// Normalize paletted images so the hash is computed over flat pixels
	// rather than palette indices.
	if p, ok := img.(*image.Paletted); ok {
		flat := image.NewNRGBA(p.Bounds())
		draw.Draw(flat, p.Bounds(), p, p.Bounds().Min, draw.Src)
		img = flat
	}

	rec.FileType = format
	b := img.Bounds()
	rec.Width = uint32(b.Dx())
	rec.Height = uint32(b.Dy())
	rec.Orientation = orientationOf(rec.Width, rec.Height)
	rec.Artist, rec.Copyright = extractRights(data)

	if hash, err := goimagehash.PerceptionHash(img); err == nil {
		rec.PerceptualHash = fmt.Sprintf("%016X", hash.GetHash())
	} else {
		slog.Debug("imagepipe: perceptual hash failed", "error", err.Error())
	}

	return rec
}

var (
	jpegMagic  = []byte{0xff, 0xd8, 0xff}
	pngFileSig = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}
	pngKeep    = map[string]bool{"IHDR": true, "PLTE": true, "tRNS": true, "IDAT": true, "IEND": true}
)

// repairImage rewrites common corruption patterns: JPEG metadata segments
// carrying corrupt EXIF payloads are stripped, and PNG streams are rebuilt
// from their critical chunks (plus tRNS, so palette transparency survives)
// with recomputed checksums. Returns nil when the bytes are not a
// repairable format or the structure is too damaged to walk.
func repairImage(data []byte) []byte {
	switch {
	case bytes.HasPrefix(data, jpegMagic):
		return stripJPEGMetadata(data)
	case bytes.HasPrefix(data, pngFileSig):
		return rebuildPNG(data)
	}
	return nil
}

// stripJPEGMetadata drops APP1-APP15 and COM segments, keeping APP0 so the
// stream stays a valid JFIF. Everything from the start-of-scan marker on is
// copied verbatim.
func stripJPEGMetadata(data []byte) []byte {
	out := make([]byte, 0, len(data))
	out = append(out, data[:2]...)

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xff {
			return nil
		}
		marker := data[i+1]
		if marker == 0xda {
			out = append(out, data[i:]...)
			return out
		}
		segLen := int(data[i+2])<<8 | int(data[i+3])
		end := i + 2 + segLen
		if segLen < 2 || end > len(data) {
			return nil
		}
		if (marker < 0xe1 || marker > 0xef) && marker != 0xfe {
			out = append(out, data[i:end]...)
		}
		i = end
	}
	return nil
}

// rebuildPNG re-serializes a PNG keeping only the chunks in pngKeep, with
// fresh CRCs. Corrupt ancillary chunks (bad checksums, malformed text
// metadata) are discarded in the process.
func rebuildPNG(data []byte) []byte {
	if len(data) < len(pngFileSig)+12 {
		return nil
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngFileSig...)

	i := len(pngFileSig)
	for i+12 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[i:]))
		end := i + 12 + length
		if length < 0 || end > len(data) {
			return nil
		}
		typ := string(data[i+4 : i+8])
		if pngKeep[typ] {
			out = append(out, data[i:i+8+length]...)
			out = binary.BigEndian.AppendUint32(out, crc32.ChecksumIEEE(data[i+4:i+8+length]))
		}
		if typ == "IEND" {
			return out
		}
		i = end
	}
	return nil
}
