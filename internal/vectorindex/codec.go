package vectorindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"

	"github.com/custodia-labs/safety-consultant/internal/core/domain"
)

// File layout, all integers little endian:
//
//	magic   [4]byte "SCVI"
//	version uint16
//	dim     uint32
//	count   uint32
//	model   uint16 length + bytes
//	vectors count*dim float32
//	chunks  uint64 length + JSON array
//	crc32   uint32 (IEEE) over everything above
var magic = [4]byte{'S', 'C', 'V', 'I'}

const formatVersion uint16 = 1

// preallocLimit caps how many vector slots are reserved up front.
const preallocLimit = 4096

// ErrCorrupt indicates a persisted index failed validation.
var ErrCorrupt = errors.New("vectorindex: corrupt index file")

// Encode writes idx to w in the binary index format.
func Encode(w io.Writer, idx *Index) error {
	crc := crc32.NewIEEE()
	bw := bufio.NewWriter(io.MultiWriter(w, crc))

	if len(idx.model) > math.MaxUint16 {
		return fmt.Errorf("%w: model name too long", domain.ErrInvalidInput)
	}

	header := []any{
		magic,
		formatVersion,
		uint32(idx.dim),
		uint32(len(idx.chunks)),
		uint16(len(idx.model)),
	}
	for _, v := range header {
		if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}
	if _, err := bw.WriteString(idx.model); err != nil {
		return fmt.Errorf("write model: %w", err)
	}

	buf := make([]byte, 4)
	for _, vec := range idx.vectors {
		for _, x := range vec {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
			if _, err := bw.Write(buf); err != nil {
				return fmt.Errorf("write vectors: %w", err)
			}
		}
	}

	chunks, err := json.Marshal(idx.chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	if err := binary.Write(bw, binary.LittleEndian, uint64(len(chunks))); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}
	if _, err := bw.Write(chunks); err != nil {
		return fmt.Errorf("write chunks: %w", err)
	}

	if err := bw.Flush(); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, crc.Sum32())
}

// Decode reads an index written by Encode.
// Stored vectors are already normalised and are used as-is.
func Decode(r io.Reader) (*Index, error) {
	crc := crc32.NewIEEE()
	buffered := bufio.NewReader(r)
	br := io.TeeReader(buffered, crc)

	var (
		gotMagic [4]byte
		version  uint16
		dim      uint32
		count    uint32
		modelLen uint16
	)
	for _, v := range []any{&gotMagic, &version, &dim, &count, &modelLen} {
		if err := binary.Read(br, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: header: %w", ErrCorrupt, err)
		}
	}
	if gotMagic != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrCorrupt)
	}
	if version != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, version)
	}

	model := make([]byte, modelLen)
	if _, err := io.ReadFull(br, model); err != nil {
		return nil, fmt.Errorf("%w: model: %w", ErrCorrupt, err)
	}

	if dim == 0 && count > 0 {
		return nil, fmt.Errorf("%w: %d vectors of dimension 0", ErrCorrupt, count)
	}

	// Lengths come from the file; allocation follows the bytes actually read.
	idx := &Index{
		model:   string(model),
		dim:     int(dim),
		vectors: make([][]float32, 0, min(int(count), preallocLimit)),
	}
	buf := make([]byte, 4*int(dim))
	for range count {
		if _, err := io.ReadFull(br, buf); err != nil {
			return nil, fmt.Errorf("%w: vectors: %w", ErrCorrupt, err)
		}
		vec := make([]float32, dim)
		for j := range vec {
			vec[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*j:]))
		}
		idx.vectors = append(idx.vectors, vec)
	}

	var chunksLen uint64
	if err := binary.Read(br, binary.LittleEndian, &chunksLen); err != nil {
		return nil, fmt.Errorf("%w: chunks: %w", ErrCorrupt, err)
	}
	if chunksLen > math.MaxInt64 {
		return nil, fmt.Errorf("%w: chunks length %d", ErrCorrupt, chunksLen)
	}
	chunks, err := io.ReadAll(io.LimitReader(br, int64(chunksLen)))
	if err != nil {
		return nil, fmt.Errorf("%w: chunks: %w", ErrCorrupt, err)
	}
	if uint64(len(chunks)) != chunksLen {
		return nil, fmt.Errorf("%w: chunks: want %d bytes, file has %d", ErrCorrupt, chunksLen, len(chunks))
	}
	if err := json.Unmarshal(chunks, &idx.chunks); err != nil {
		return nil, fmt.Errorf("%w: chunks: %w", ErrCorrupt, err)
	}
	if len(idx.chunks) != int(count) {
		return nil, fmt.Errorf("%w: %d vectors but %d chunks", ErrCorrupt, count, len(idx.chunks))
	}

	want := crc.Sum32()
	var got uint32
	if err := binary.Read(buffered, binary.LittleEndian, &got); err != nil {
		return nil, fmt.Errorf("%w: checksum: %w", ErrCorrupt, err)
	}
	if got != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}
	return idx, nil
}
