// Package nifti implements a minimal NIfTI-1 header codec.
//
// It covers exactly what the harness needs: writing synthetic single-file
// (.nii / .nii.gz) volumes for test fixtures and checking that a produced
// artifact has a structurally valid header (readable dimension and datatype
// fields). It is not a general-purpose NIfTI library.
package nifti

import (
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
)

const (
	// HeaderSize is the fixed size of a NIfTI-1 header.
	HeaderSize = 348
	// voxOffset is where voxel data starts in a single-file NIfTI-1.
	voxOffset = 352
)

// NIfTI-1 datatype codes (subset).
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
)

var bitpixByType = map[int16]int16{
	DTUint8:   8,
	DTInt16:   16,
	DTInt32:   32,
	DTFloat32: 32,
	DTFloat64: 64,
}

var (
	ErrShortHeader   = fmt.Errorf("header shorter than %d bytes", HeaderSize)
	ErrBadMagic      = fmt.Errorf("bad NIfTI magic")
	ErrBadDimCount   = fmt.Errorf("dim[0] out of range 1..7")
	ErrBadDatatype   = fmt.Errorf("unrecognized datatype code")
	ErrBadHeaderSize = fmt.Errorf("sizeof_hdr is not 348 in either byte order")
)

// Header carries the fields the harness reads and writes. Everything else in
// the 348-byte block is zero on write and ignored on read.
type Header struct {
	Dim      [8]int16 // Dim[0] = number of dimensions
	Datatype int16
	Bitpix   int16
	PixDim   [8]float32
	Magic    string // "n+1" for single-file
}

// NDim returns the declared dimension count.
func (h *Header) NDim() int { return int(h.Dim[0]) }

// VoxelCount returns the product of the used dimensions.
func (h *Header) VoxelCount() int {
	n := 1
	for i := 1; i <= h.NDim(); i++ {
		n *= int(h.Dim[i])
	}
	return n
}

func (h *Header) encode() []byte {
	buf := make([]byte, voxOffset)
	le := binary.LittleEndian

	le.PutUint32(buf[0:], uint32(HeaderSize)) // sizeof_hdr
	buf[38] = 'r'                             // "regular" byte, kept for ANALYZE compatibility

	for i, d := range h.Dim {
		le.PutUint16(buf[40+2*i:], uint16(d))
	}
	le.PutUint16(buf[70:], uint16(h.Datatype))
	le.PutUint16(buf[72:], uint16(h.Bitpix))
	for i, p := range h.PixDim {
		le.PutUint32(buf[76+4*i:], math.Float32bits(p))
	}
	le.PutUint32(buf[108:], math.Float32bits(voxOffset)) // vox_offset
	le.PutUint32(buf[112:], math.Float32bits(1))         // scl_slope
	copy(buf[344:], "n+1\x00")
	return buf
}

// WriteVolume writes data as a single-file NIfTI-1 volume at path. If the
// path ends in .gz the stream is gzip-compressed. len(data) must equal the
// voxel count implied by hdr.Dim, and hdr.Datatype selects the on-disk
// encoding (values are converted from float64).
func WriteVolume(path string, hdr Header, data []float64) error {
	if hdr.Magic == "" {
		hdr.Magic = "n+1"
	}
	if hdr.Bitpix == 0 {
		bp, ok := bitpixByType[hdr.Datatype]
		if !ok {
			return fmt.Errorf("write %s: %w (%d)", path, ErrBadDatatype, hdr.Datatype)
		}
		hdr.Bitpix = bp
	}
	if want := hdr.VoxelCount(); want != len(data) {
		return fmt.Errorf("write %s: dim implies %d voxels, got %d values", path, want, len(data))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create volume: %w", err)
	}
	defer f.Close()

	var w io.Writer = f
	var gz *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		gz = gzip.NewWriter(f)
		w = gz
	}

	if _, err := w.Write(hdr.encode()); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if err := writeVoxels(w, hdr.Datatype, data); err != nil {
		return fmt.Errorf("write voxels: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("close gzip stream: %w", err)
		}
	}
	return nil
}

func writeVoxels(w io.Writer, datatype int16, data []float64) error {
	le := binary.LittleEndian
	switch datatype {
	case DTUint8:
		buf := make([]byte, len(data))
		for i, v := range data {
			buf[i] = byte(v)
		}
		_, err := w.Write(buf)
		return err
	case DTInt16:
		buf := make([]byte, 2*len(data))
		for i, v := range data {
			le.PutUint16(buf[2*i:], uint16(int16(v)))
		}
		_, err := w.Write(buf)
		return err
	case DTInt32:
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			le.PutUint32(buf[4*i:], uint32(int32(v)))
		}
		_, err := w.Write(buf)
		return err
	case DTFloat32:
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			le.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
		}
		_, err := w.Write(buf)
		return err
	case DTFloat64:
		buf := make([]byte, 8*len(data))
		for i, v := range data {
			le.PutUint64(buf[8*i:], math.Float64bits(v))
		}
		_, err := w.Write(buf)
		return err
	default:
		return fmt.Errorf("%w (%d)", ErrBadDatatype, datatype)
	}
}

// DecodeHeader parses the first 348 bytes of a (decompressed) NIfTI-1 stream.
// Both byte orders are accepted; the order is inferred from sizeof_hdr.
func DecodeHeader(raw []byte) (*Header, error) {
	if len(raw) < HeaderSize {
		return nil, ErrShortHeader
	}

	var order binary.ByteOrder = binary.LittleEndian
	switch order.Uint32(raw[0:]) {
	case HeaderSize:
	default:
		order = binary.BigEndian
		if order.Uint32(raw[0:]) != HeaderSize {
			return nil, ErrBadHeaderSize
		}
	}

	h := &Header{}
	for i := range h.Dim {
		h.Dim[i] = int16(order.Uint16(raw[40+2*i:]))
	}
	h.Datatype = int16(order.Uint16(raw[70:]))
	h.Bitpix = int16(order.Uint16(raw[72:]))
	for i := range h.PixDim {
		h.PixDim[i] = math.Float32frombits(order.Uint32(raw[76+4*i:]))
	}
	h.Magic = strings.TrimRight(string(raw[344:348]), "\x00")

	if h.Magic != "n+1" && h.Magic != "ni1" {
		return nil, fmt.Errorf("%w %q", ErrBadMagic, h.Magic)
	}
	if h.Dim[0] < 1 || h.Dim[0] > 7 {
		return nil, fmt.Errorf("%w: dim[0]=%d", ErrBadDimCount, h.Dim[0])
	}
	if _, ok := bitpixByType[h.Datatype]; !ok {
		return nil, fmt.Errorf("%w (%d)", ErrBadDatatype, h.Datatype)
	}
	return h, nil
}

// ReadHeader opens path (gzip-decompressing if needed) and decodes the header.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open volume: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("gzip reader for %s: %w", path, err)
		}
		defer gz.Close()
		r = gz
	}

	raw := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, ErrShortHeader)
	}
	return DecodeHeader(raw)
}

// IsVolumePath reports whether path names a NIfTI volume by extension.
func IsVolumePath(path string) bool {
	return strings.HasSuffix(path, ".nii") || strings.HasSuffix(path, ".nii.gz")
}
