package imagepipe

import "bytes"

// Canonical file type tags returned by IdentifyType.
const (
	TypePNG  = "png"
	TypeJPEG = "jpeg"
	TypeGIF  = "gif"
	TypeBMP  = "bmp"
	TypeTIFF = "tiff"
	TypeWEBP = "webp"
	TypeAVIF = "avif"
	TypeICO  = "ico"
	TypePSD  = "psd"
	TypePDF  = "pdf"
	TypeDOC  = "doc"
	TypeHTML = "html"
	TypeMP3  = "mp3"
	TypeWAV  = "wav"
	TypeFLAC = "flac"
	TypeMP4  = "mp4"
	TypeAVI  = "avi"
	TypeMOV  = "mov"
	TypeMKV  = "mkv"
	TypeZIP  = "zip"
	TypeRAR  = "rar"
	Type7Z   = "7z"
	TypeEXE  = "exe"
	TypeELF  = "elf"
	TypePY   = "py"
	TypePL   = "pl"
	TypePHP  = "php"
	TypeCPP  = "cpp"
	TypeSH   = "sh"
)

type signature struct {
	magic    []byte
	fileType string
}

// signatures is ordered by match priority: longer/more specific prefixes
// come before shorter generic ones where they overlap.
var signatures = []signature{
	{[]byte("PK\x03\x04"), TypeZIP},
	{[]byte("PK\x05\x06"), TypeZIP},
	{[]byte("PK\x07\x08"), TypeZIP},
	{[]byte("Rar!\x1a\x07\x00"), TypeRAR},
	{[]byte("Rar!\x1a\x07\x01\x00"), TypeRAR},
	{[]byte("7z\xbc\xaf\x27\x1c"), Type7Z},
	{[]byte("%PDF"), TypePDF},
	{[]byte{0x7f, 'E', 'L', 'F'}, TypeELF},
	{[]byte("MZ"), TypeEXE},
	{[]byte("\x00\x00\x00\x1cftypavif"), TypeAVIF},
	{[]byte("\x00\x00\x00\x18ftyp"), TypeMP4},
	{[]byte("\x00\x00\x00\x20ftyp"), TypeMP4},
	{[]byte("ftypqt"), TypeMOV},
	{[]byte("moov"), TypeMOV},
	{[]byte("free"), TypeMOV},
	// Generic RIFF fallback for buffers too short to carry a subtype;
	// IdentifyType resolves AVI/WAVE/WEBP from bytes 8-12 first.
	{[]byte("RIFF"), TypeAVI},
	{[]byte{0x1a, 0x45, 0xdf, 0xa3}, TypeMKV},
	{[]byte("fLaC"), TypeFLAC},
	{[]byte("ID3"), TypeMP3},
	{[]byte("\x89PNG"), TypePNG},
	{[]byte{0xff, 0xd8, 0xff}, TypeJPEG},
	{[]byte("GIF89a"), TypeGIF},
	{[]byte("GIF87a"), TypeGIF},
	{[]byte("BM"), TypeBMP},
	{[]byte{0x49, 0x49, 0x2a, 0x00}, TypeTIFF},
	{[]byte{0x4d, 0x4d, 0x00, 0x2a}, TypeTIFF},
	{[]byte("8BPS"), TypePSD},
	{[]byte{0x00, 0x00, 0x01, 0x00}, TypeICO},
	{[]byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}, TypeDOC},
	{[]byte("<!DOCTYP"), TypeHTML},
	{[]byte("<!doctype"), TypeHTML},
	{[]byte("#!/usr/bin/env python"), TypePY},
	{[]byte("#!/usr/bin/python"), TypePY},
	{[]byte("#!/bin/bash"), TypeSH},
	{[]byte("#!/bin/sh"), TypeSH},
	{[]byte("#!/usr/bin/perl"), TypePL},
	{[]byte("<?php"), TypePHP},
	{[]byte("#include <"), TypeCPP},
}

// extensions maps type tags to their canonical dot extension.
// Types missing here fall back to "." + tag.
var extensions = map[string]string{
	TypeJPEG: ".jpg",
	TypeTIFF: ".tiff",
}

// rasterImageTypes are the tags the pipeline treats as decodable images.
var rasterImageTypes = map[string]bool{
	TypePNG:  true,
	TypeJPEG: true,
	TypeGIF:  true,
	TypeBMP:  true,
	TypeWEBP: true,
	TypeTIFF: true,
	TypeAVIF: true,
}

// IdentifyType classifies a byte buffer by its leading bytes (at least the
// first ~32 bytes should be supplied). The RIFF container is disambiguated
// by its subtype field before the generic table is consulted. Returns ""
// when nothing matches; that is not an error.
func IdentifyType(data []byte) string {
	if len(data) < 2 {
		return ""
	}

	if bytes.HasPrefix(data, []byte("RIFF")) && len(data) >= 12 {
		switch string(data[8:12]) {
		case "AVI ":
			return TypeAVI
		case "WAVE":
			return TypeWAV
		case "WEBP":
			return TypeWEBP
		}
	}

	for _, sig := range signatures {
		if bytes.HasPrefix(data, sig.magic) {
			return sig.fileType
		}
	}
	return ""
}

// ExtensionFor returns the dot extension for a type tag, or "" for an
// unrecognized (empty) tag.
func ExtensionFor(fileType string) string {
	if fileType == "" {
		return ""
	}
	if ext, ok := extensions[fileType]; ok {
		return ext
	}
	return "." + fileType
}

// IsRasterImage reports whether fileType is a decodable raster image tag.
func IsRasterImage(fileType string) bool {
	return rasterImageTypes[fileType]
}
