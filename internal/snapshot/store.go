// Package snapshot persists in-memory caches as single compressed files.
//
// A snapshot file is a 14-byte header followed by the compressed CBOR
// encoding of the cached value:
//
//	offset 0  magic "FSIX"
//	offset 4  format version
//	offset 5  compression tag
//	offset 6  xxhash64 of the compressed payload, little endian
//
// Writes are not atomic. A torn or foreign file fails validation on load and
// is reported as ErrCorrupt, which callers treat the same as a missing
// snapshot.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash"
	"github.com/edsrzf/mmap-go"
	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	magic         = "FSIX"
	formatVersion = 1
	headerSize    = len(magic) + 1 + 1 + 8
)

var (
	// ErrNoSnapshot means the snapshot file does not exist.
	ErrNoSnapshot = errors.New("snapshot: no snapshot file")
	// ErrCorrupt means the snapshot file exists but cannot be decoded.
	ErrCorrupt = errors.New("snapshot: corrupt snapshot file")
)

// CompressionTag identifies the compression applied to a snapshot payload.
type CompressionTag uint8

const (
	CompressionNone CompressionTag = 0
	// CompressionZstd is used for the large volume snapshot.
	CompressionZstd CompressionTag = 1
	// CompressionLZ4 is used for small, frequently flushed snapshots.
	CompressionLZ4 CompressionTag = 2
)

// String returns the human-readable name of a compression tag.
func (tag CompressionTag) String() string {
	switch tag {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

var (
	encMode     cbor.EncMode
	decMode     cbor.DecMode
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error

	// Volume caches hold millions of keys; sorting them buys nothing.
	encMode, err = cbor.PreferredUnsortedEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		MaxArrayElements: 2147483647,
		MaxMapPairs:      2147483647,
	}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}

	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("snapshot: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("snapshot: zstd decoder initialization failed: " + err.Error())
	}
}

// Store saves and loads values of type T at one fixed path.
type Store[T any] struct {
	path        string
	compression CompressionTag
}

// New returns a store for the file at path.
func New[T any](path string, compression CompressionTag) *Store[T] {
	return &Store[T]{path: path, compression: compression}
}

// Path returns the snapshot file location.
func (s *Store[T]) Path() string {
	return s.path
}

// Encode serializes v. It touches only memory, so callers may run it while
// holding the lock that guards v and do the disk write afterwards.
func (s *Store[T]) Encode(v T) ([]byte, error) {
	data, err := encMode.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("snapshot: encode: %w", err)
	}
	return data, nil
}

// Save encodes v and writes it. It returns the number of bytes written.
func (s *Store[T]) Save(v T) (int, error) {
	encoded, err := s.Encode(v)
	if err != nil {
		return 0, err
	}
	return s.WriteEncoded(encoded)
}

// WriteEncoded compresses an Encode result and overwrites the snapshot file.
func (s *Store[T]) WriteEncoded(encoded []byte) (int, error) {
	payload, err := compress(encoded, s.compression)
	if err != nil {
		return 0, err
	}

	header := make([]byte, headerSize)
	copy(header, magic)
	header[4] = formatVersion
	header[5] = byte(s.compression)
	binary.LittleEndian.PutUint64(header[6:], xxhash.Sum64(payload))

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return 0, fmt.Errorf("snapshot: create cache directory: %w", err)
	}
	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("snapshot: open %s: %w", s.path, err)
	}
	defer file.Close()

	w := bufio.NewWriterSize(file, 256*1024)
	if _, err := w.Write(header); err != nil {
		return 0, fmt.Errorf("snapshot: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return 0, fmt.Errorf("snapshot: write payload: %w", err)
	}
	if err := w.Flush(); err != nil {
		return 0, fmt.Errorf("snapshot: flush: %w", err)
	}
	return headerSize + len(payload), nil
}

// Load reads the snapshot. A missing file yields ErrNoSnapshot; any other
// failure yields an error wrapping ErrCorrupt. Load never panics on
// malformed input.
func (s *Store[T]) Load() (value T, err error) {
	file, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return value, ErrNoSnapshot
		}
		return value, fmt.Errorf("%w: open: %v", ErrCorrupt, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return value, fmt.Errorf("%w: stat: %v", ErrCorrupt, err)
	}
	if info.Size() < int64(headerSize) {
		return value, fmt.Errorf("%w: %d bytes is shorter than the header", ErrCorrupt, info.Size())
	}

	data, err := mmap.Map(file, mmap.RDONLY, 0)
	if err != nil {
		return value, fmt.Errorf("%w: mmap: %v", ErrCorrupt, err)
	}
	defer data.Unmap()

	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, err = zero, fmt.Errorf("%w: panic while decoding: %v", ErrCorrupt, r)
		}
	}()

	encoded, err := unwrap(data)
	if err != nil {
		return value, err
	}
	if err := decMode.Unmarshal(encoded, &value); err != nil {
		var zero T
		return zero, fmt.Errorf("%w: decode: %v", ErrCorrupt, err)
	}
	return value, nil
}

// unwrap validates the header and returns the decompressed payload.
func unwrap(data []byte) ([]byte, error) {
	if string(data[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if data[4] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, data[4])
	}
	tag := CompressionTag(data[5])
	payload := data[headerSize:]
	if sum := binary.LittleEndian.Uint64(data[6:headerSize]); sum != xxhash.Sum64(payload) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return decompress(payload, tag)
}

func compress(data []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return data, nil
	case CompressionZstd:
		return zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)/4)), nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(data); err != nil {
			return nil, fmt.Errorf("snapshot: lz4 compress: %w", err)
		}
		if err := w.Close(); err != nil {
			return nil, fmt.Errorf("snapshot: lz4 compress: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("snapshot: unsupported compression %s", tag)
	}
}

// decompress always returns a fresh buffer so nothing aliases the mapping.
func decompress(payload []byte, tag CompressionTag) ([]byte, error) {
	switch tag {
	case CompressionNone:
		return bytes.Clone(payload), nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
		}
		return out, nil
	case CompressionLZ4:
		out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
		if err != nil {
			return nil, fmt.Errorf("%w: lz4: %v", ErrCorrupt, err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unknown compression %s", ErrCorrupt, tag)
	}
}
