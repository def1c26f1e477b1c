// Package image inspects candidate source images before flashing.
package image

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

const (
	// minImageSize is the smallest usable image: anything that cannot fill
	// the header window is rejected as truncated.
	minImageSize = 32 * 1024
	// headerWindow is how much of the file the signature scan reads. It is
	// slightly larger than minImageSize so the ISO-9660 primary volume
	// descriptor at offset 0x8001 falls inside it.
	headerWindow = 36 * 1024

	// DefaultMaxSize is the sanity ceiling for source images. It guards
	// against flashing the wrong file, not a protocol limit; override via
	// NewValidator.
	DefaultMaxSize = 10 * 1024 * 1024 * 1024
)

// isoMagic is the ISO-9660 volume descriptor identifier.
var isoMagic = []byte("CD001")

// gptMagic is the GPT header signature found at the start of LBA 1.
var gptMagic = []byte("EFI PART")

// bootloaderFragments are strings common to hybrid-boot images.
var bootloaderFragments = [][]byte{
	[]byte("ISOLINUX"),
	[]byte("isolinux"),
	[]byte("GRUB"),
	[]byte("EL TORITO SPECIFICATION"),
}

// Descriptor is the outcome of validating one source image. Computed once
// per call and immutable afterwards.
type Descriptor struct {
	Path string
	Name string
	Size int64

	// Valid means the image passed the existence/size/readability gates.
	// Classification below is informational only.
	Valid bool

	// ISO9660 is set when the header carries the CD001 magic.
	ISO9660 bool
	// Hybrid is set when boot-sector, GPT, or bootloader markers are
	// present in the header.
	Hybrid bool

	// SHA256 is the hex digest over the full byte stream. Empty when the
	// image is invalid.
	SHA256 string

	// Err holds the human-readable reason when Valid is false.
	Err string
}

// Validator applies the image gates. The size ceiling is configurable so
// callers can raise it for large appliance images.
type Validator struct {
	maxSize int64
}

// NewValidator creates a validator with the given size ceiling. A
// non-positive ceiling falls back to DefaultMaxSize.
func NewValidator(maxSize int64) *Validator {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Validator{maxSize: maxSize}
}

// Validate inspects the image at path. It never returns a Go error: every
// failure populates Err and leaves Valid false.
func (v *Validator) Validate(path string) Descriptor {
	d := Descriptor{
		Path: path,
		Name: filepath.Base(path),
	}

	st, err := os.Stat(path)
	if err != nil {
		d.Err = fmt.Sprintf("image not found: %s", path)
		slog.Error("image_validation_failed", "path", path, "reason", "not_found")
		return d
	}
	if !st.Mode().IsRegular() {
		d.Err = fmt.Sprintf("not a regular file: %s", path)
		slog.Error("image_validation_failed", "path", path, "reason", "not_regular")
		return d
	}

	d.Size = st.Size()
	if d.Size == 0 {
		d.Err = fmt.Sprintf("image is empty: %s", path)
		slog.Error("image_validation_failed", "path", path, "reason", "empty")
		return d
	}
	if d.Size > v.maxSize {
		d.Err = fmt.Sprintf("image size %d exceeds ceiling %d bytes", d.Size, v.maxSize)
		slog.Error("image_validation_failed", "path", path, "reason", "oversized",
			"size", d.Size, "max_size", v.maxSize)
		return d
	}

	f, err := os.Open(path)
	if err != nil {
		d.Err = fmt.Sprintf("cannot read image: %v", err)
		slog.Error("image_validation_failed", "path", path, "reason", "unreadable", "error", err)
		return d
	}
	defer f.Close()

	header := make([]byte, headerWindow)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF {
		d.Err = fmt.Sprintf("cannot read image header: %v", err)
		slog.Error("image_validation_failed", "path", path, "reason", "header_read", "error", err)
		return d
	}
	header = header[:n]
	if n < minImageSize {
		d.Err = fmt.Sprintf("image too small to be usable: %d bytes of header available", n)
		slog.Error("image_validation_failed", "path", path, "reason", "truncated", "header_bytes", n)
		return d
	}

	d.ISO9660, d.Hybrid = classifyHeader(header)
	d.Valid = true

	sum, err := checksumFrom(header, f)
	if err != nil {
		d.Valid = false
		d.Err = fmt.Sprintf("checksum failed: %v", err)
		slog.Error("image_validation_failed", "path", path, "reason", "checksum", "error", err)
		return d
	}
	d.SHA256 = sum

	slog.Info("image_validated", "path", path, "size", d.Size,
		"iso9660", d.ISO9660, "hybrid", d.Hybrid, "sha256", d.SHA256)
	return d
}

// Validate inspects path with the default size ceiling.
func Validate(path string) Descriptor {
	return NewValidator(DefaultMaxSize).Validate(path)
}

// classifyHeader determines the informational ISO/hybrid flags from the
// header window.
func classifyHeader(header []byte) (iso, hybrid bool) {
	iso = bytes.Contains(header, isoMagic)

	// MBR boot signature at the end of the first sector.
	if len(header) >= 512 && binary.LittleEndian.Uint16(header[510:512]) == 0xAA55 {
		hybrid = true
	}
	// GPT header at LBA 1.
	if len(header) >= 512+len(gptMagic) && bytes.Equal(header[512:512+len(gptMagic)], gptMagic) {
		hybrid = true
	}
	if !hybrid {
		for _, frag := range bootloaderFragments {
			if bytes.Contains(header, frag) {
				hybrid = true
				break
			}
		}
	}
	return iso, hybrid
}

// checksumFrom hashes the already-read header plus the remainder of the
// stream, so the file is only traversed once.
func checksumFrom(header []byte, rest io.Reader) (string, error) {
	h := sha256.New()
	h.Write(header)
	if _, err := io.Copy(h, rest); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Checksum streams the whole file at path through SHA-256. Used by the
// verifier to recompute the source digest independently of validation.
func Checksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return checksumFrom(nil, f)
}
