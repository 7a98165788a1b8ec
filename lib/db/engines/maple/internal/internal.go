package internal

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// --------------------------------------------------------------------------
// File Format
// --------------------------------------------------------------------------

const (
	MagicNum      = "MAPLEDB\x00" // File format identifier
	FormatVersion = 4             // Ordered key/value records
	maxKeyLen     = 1 << 24       // Sanity limit for a single key (16 MB)
)

// Entry is a single key/value record of a maple file
type Entry struct {
	Key   []byte
	Value []byte
}

func (e Entry) String() string {
	return fmt.Sprintf("Entry{Key: %q, Value: %d bytes}", e.Key, len(e.Value))
}

// --------------------------------------------------------------------------
// Writer
// --------------------------------------------------------------------------

// Writer writes entries in the maple file format.
// The number of entries must be known up front because it is part of the header.
type Writer struct {
	bw      *bufio.Writer
	pending uint64
}

// NewWriter writes the file header for count entries to w
func NewWriter(w io.Writer, count uint64) (*Writer, error) {
	bw := bufio.NewWriterSize(w, 1024*1024) // 1 MB buffer

	// Write file header
	if _, err := bw.WriteString(MagicNum); err != nil {
		return nil, err
	}

	// Write format version
	if err := binary.Write(bw, binary.LittleEndian, uint8(FormatVersion)); err != nil {
		return nil, err
	}

	// Write total entry count
	if err := binary.Write(bw, binary.LittleEndian, count); err != nil {
		return nil, err
	}

	return &Writer{bw: bw, pending: count}, nil
}

// Write appends one entry
func (w *Writer) Write(key, value []byte) error {
	if w.pending == 0 {
		return fmt.Errorf("more entries written than announced in header")
	}
	w.pending--

	if err := binary.Write(w.bw, binary.LittleEndian, uint32(len(key))); err != nil {
		return err
	}
	if _, err := w.bw.Write(key); err != nil {
		return err
	}
	if err := binary.Write(w.bw, binary.LittleEndian, uint32(len(value))); err != nil {
		return err
	}
	_, err := w.bw.Write(value)
	return err
}

// Close checks that all announced entries were written and flushes the buffer
func (w *Writer) Close() error {
	if w.pending != 0 {
		return fmt.Errorf("%d announced entries were not written", w.pending)
	}
	return w.bw.Flush()
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// ReadAll reads a maple file and calls fn for every entry in file order.
// The slices passed to fn are owned by fn.
func ReadAll(r io.Reader, fn func(e Entry) error) (count uint64, err error) {
	br := bufio.NewReaderSize(r, 1024*1024) // 1 MB buffer

	// Read and verify magic number
	magicBytes := make([]byte, len(MagicNum))
	if _, err := io.ReadFull(br, magicBytes); err != nil {
		return 0, err
	}
	if string(magicBytes) != MagicNum {
		return 0, fmt.Errorf("invalid file format: magic number mismatch")
	}

	// Read and verify version
	var version uint8
	if err := binary.Read(br, binary.LittleEndian, &version); err != nil {
		return 0, err
	}
	if int(version) != FormatVersion {
		return 0, fmt.Errorf("unsupported version: %d (expected %d)", version, FormatVersion)
	}

	// Read entry count
	if err := binary.Read(br, binary.LittleEndian, &count); err != nil {
		return 0, err
	}

	for i := uint64(0); i < count; i++ {
		key, err := readChunk(br, maxKeyLen)
		if err != nil {
			return 0, fmt.Errorf("entry %d: key: %w", i, err)
		}
		value, err := readChunk(br, 0)
		if err != nil {
			return 0, fmt.Errorf("entry %d: value: %w", i, err)
		}
		if err := fn(Entry{Key: key, Value: value}); err != nil {
			return 0, err
		}
	}

	return count, nil
}

// readChunk reads a uint32 length followed by that many bytes. A limit of 0 means no limit.
func readChunk(br *bufio.Reader, limit uint32) ([]byte, error) {
	var n uint32
	if err := binary.Read(br, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("length %d exceeds limit %d", n, limit)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
