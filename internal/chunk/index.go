package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	apperrors "github.com/arkilian/chunkstats/internal/errors"
	"github.com/arkilian/chunkstats/internal/rwio"
	"github.com/arkilian/chunkstats/internal/statistics"
	"github.com/arkilian/chunkstats/pkg/types"
)

// Index file layout:
//
//	magic "CSIX" | version (1 byte) | snappy(body) | murmur3-32(snappy(body)) (4 bytes, big-endian)
//
// body is a uvarint record count followed by the records. Each record is:
//
//	chunk ID (16 bytes) | series (length-prefixed) | type tag (1 byte) |
//	created at (unix nanos, int64) | chunk statistics envelope |
//	page count (uvarint) | page statistics envelopes
const (
	IndexVersion   byte = 1
	IndexExtension      = ".csix"
)

var indexMagic = []byte("CSIX")

const (
	indexPrefixSize = 5
	indexFooterSize = 4
)

// EncodeIndex serializes chunk metadata into the index file format.
func EncodeIndex(records []*Metadata) ([]byte, error) {
	var body bytes.Buffer
	if _, err := rwio.WriteUvarint(&body, uint64(len(records))); err != nil {
		return nil, err
	}
	for _, m := range records {
		if err := EncodeMetadata(&body, m); err != nil {
			return nil, err
		}
	}

	compressed := snappy.Encode(nil, body.Bytes())

	out := make([]byte, 0, indexPrefixSize+len(compressed)+indexFooterSize)
	out = append(out, indexMagic...)
	out = append(out, IndexVersion)
	out = append(out, compressed...)
	out = binary.BigEndian.AppendUint32(out, murmur3.Sum32(compressed))
	return out, nil
}

// DecodeIndex parses an index file produced by EncodeIndex.
func DecodeIndex(data []byte) ([]*Metadata, error) {
	if len(data) < indexPrefixSize+indexFooterSize {
		return nil, apperrors.NewStatisticsError(apperrors.CodeTruncatedInput,
			fmt.Sprintf("index file too short: %d bytes", len(data)), rwio.ErrTruncated)
	}
	if !bytes.Equal(data[:len(indexMagic)], indexMagic) {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected, "index file has bad magic", nil)
	}
	if v := data[len(indexMagic)]; v != IndexVersion {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected,
			fmt.Sprintf("unsupported index version %d", v), nil)
	}

	compressed := data[indexPrefixSize : len(data)-indexFooterSize]
	want := binary.BigEndian.Uint32(data[len(data)-indexFooterSize:])
	if got := murmur3.Sum32(compressed); got != want {
		return nil, apperrors.NewStatisticsError(apperrors.CodeChecksumMismatch,
			fmt.Sprintf("index checksum mismatch: stored %08x, computed %08x", want, got), nil)
	}

	body, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected, "index body does not decompress", err)
	}

	buf := rwio.NewBuffer(body)
	n, err := buf.ReadUvarint()
	if err != nil {
		return nil, fmt.Errorf("chunk: failed to read record count: %w", err)
	}
	if n > uint64(buf.Remaining()) {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected,
			fmt.Sprintf("index claims %d records in %d bytes", n, buf.Remaining()), nil)
	}

	records := make([]*Metadata, 0, n)
	for i := uint64(0); i < n; i++ {
		m, err := DecodeMetadata(buf)
		if err != nil {
			return nil, fmt.Errorf("chunk: failed to decode record %d: %w", i, err)
		}
		records = append(records, m)
	}
	return records, nil
}

// EncodeMetadata writes one chunk record.
func EncodeMetadata(w io.Writer, m *Metadata) error {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return fmt.Errorf("chunk: invalid chunk ID %q: %w", m.ID, err)
	}
	if m.Statistics == nil || m.Statistics.Type() != m.DataType {
		return fmt.Errorf("chunk: statistics of %s do not match type %s", m.ID, m.DataType)
	}

	if _, err := w.Write(id[:]); err != nil {
		return err
	}
	if _, err := rwio.WriteBinary(w, []byte(m.Series)); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(m.DataType)}); err != nil {
		return err
	}
	if _, err := rwio.WriteInt64(w, m.CreatedAt.UnixNano()); err != nil {
		return err
	}
	if _, err := statistics.Serialize(w, m.Statistics); err != nil {
		return fmt.Errorf("chunk: failed to serialize chunk statistics: %w", err)
	}
	if _, err := rwio.WriteUvarint(w, uint64(len(m.Pages))); err != nil {
		return err
	}
	for i, p := range m.Pages {
		if _, err := statistics.Serialize(w, p); err != nil {
			return fmt.Errorf("chunk: failed to serialize page %d statistics: %w", i, err)
		}
	}
	return nil
}

// DecodeMetadata reads one chunk record written by EncodeMetadata.
func DecodeMetadata(buf *rwio.Buffer) (*Metadata, error) {
	raw, err := buf.Next(16)
	if err != nil {
		return nil, err
	}
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return nil, err
	}
	series, err := buf.ReadBinary()
	if err != nil {
		return nil, err
	}
	tag, err := buf.Next(1)
	if err != nil {
		return nil, err
	}
	dt := types.DataType(tag[0])
	created, err := buf.ReadInt64()
	if err != nil {
		return nil, err
	}

	stats, err := statistics.ReadBuffer(buf, dt)
	if err != nil {
		return nil, err
	}
	pageCount, err := buf.ReadUvarint()
	if err != nil {
		return nil, err
	}
	if pageCount > uint64(buf.Remaining())/statistics.HeaderSize {
		return nil, apperrors.NewManifestError(apperrors.CodeCorruptionDetected,
			fmt.Sprintf("chunk %s claims %d pages", id, pageCount), nil)
	}
	pages := make([]statistics.Statistics, 0, pageCount)
	for i := uint64(0); i < pageCount; i++ {
		p, err := statistics.ReadBuffer(buf, dt)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", i, err)
		}
		pages = append(pages, p)
	}

	return &Metadata{
		ID:         id.String(),
		Series:     string(series),
		DataType:   dt,
		Statistics: stats,
		Pages:      pages,
		CreatedAt:  time.Unix(0, created).UTC(),
	}, nil
}

// WriteIndexFile encodes records and writes them to path, creating parent
// directories as needed.
func WriteIndexFile(path string, records []*Metadata) (int64, error) {
	data, err := EncodeIndex(records)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return 0, fmt.Errorf("chunk: failed to create index directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return 0, fmt.Errorf("chunk: failed to write index file: %w", err)
	}
	return int64(len(data)), nil
}

// ReadIndexFile reads and decodes the index file at path.
func ReadIndexFile(path string) ([]*Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("chunk: failed to read index file: %w", err)
	}
	return DecodeIndex(data)
}

// ObjectKey returns the storage key of a chunk's index file.
func ObjectKey(series, chunkID string) string {
	return fmt.Sprintf("chunks/%s/%s%s", series, chunkID, IndexExtension)
}
