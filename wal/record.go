// Package wal implements the write-ahead log client view spec 6 describes:
// records keyed by (region, table, sequence), cache-flush markers, and
// flush-complete markers, appended to a file the assumed DFS collaborator
// exposes as append-only sequential write (spec 1). The record codec is a
// flat varint+CRC32 layout in the teacher's non-protobuf style
// (utils/wal.go's WalHander/WalCodec/HashReader), generalised from a single
// key/value entry to the three record kinds spec 6 requires.
package wal

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

type RecordType byte

const (
	RecordEdit RecordType = iota
	RecordFlushStart
	RecordFlushComplete
)

// Record is one WAL entry. Region/Table/Sequence are present on every
// record type; Row/Column/Timestamp/Value/Delete are meaningful only for
// RecordEdit (spec 6).
type Record struct {
	Type      RecordType
	Region    string
	Table     string
	Sequence  uint64
	Row       []byte
	Column    []byte
	Timestamp uint64
	Value     []byte
	Delete    bool
}

func putBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(lenBuf[:], uint64(len(b)))
	buf.Write(lenBuf[:n])
	buf.Write(b)
}

func putString(buf *bytes.Buffer, s string) { putBytes(buf, []byte(s)) }

// Encode serialises a record as:
//
//	bodyLen | type | region | table | sequence | [row | column | timestamp | delete | value] | crc32
//
// the bracketed fields present only for RecordEdit. bodyLen is a uvarint
// and crc32 is the big-endian Castagnoli checksum of the body (everything
// between bodyLen and crc32, not bodyLen itself). Grounded on
// utils/wal.go's WalCodec (header varints, then payload, then a trailing
// CRC32).
func Encode(r Record) []byte {
	var body bytes.Buffer
	body.WriteByte(byte(r.Type))
	putString(&body, r.Region)
	putString(&body, r.Table)
	var seqBuf [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(seqBuf[:], r.Sequence)
	body.Write(seqBuf[:n])

	if r.Type == RecordEdit {
		putBytes(&body, r.Row)
		putBytes(&body, r.Column)
		var tsBuf [binary.MaxVarintLen64]byte
		n := binary.PutUvarint(tsBuf[:], r.Timestamp)
		body.Write(tsBuf[:n])
		if r.Delete {
			body.WriteByte(1)
		} else {
			body.WriteByte(0)
		}
		putBytes(&body, r.Value)
	}

	checksum := crc32.Checksum(body.Bytes(), crcTable)

	var out bytes.Buffer
	var lenBuf [binary.MaxVarintLen64]byte
	n = binary.PutUvarint(lenBuf[:], uint64(body.Len()))
	out.Write(lenBuf[:n])
	out.Write(body.Bytes())
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], checksum)
	out.Write(crcBuf[:])
	return out.Bytes()
}

// Decode reads one record from r. It returns io.EOF when r is exhausted
// exactly at a record boundary (the normal end-of-log condition) and
// ErrCorruptRecord when a checksum fails or the log ends mid-record (the
// common crash-during-append case, which recovery treats as "truncate
// here", not as a fatal error).
var ErrCorruptRecord = errors.New("wal: corrupt or truncated record")

func Decode(r io.Reader) (Record, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = &byteReader{r}
	}
	bodyLen, err := binary.ReadUvarint(br)
	if err != nil {
		if err == io.EOF {
			return Record{}, io.EOF
		}
		return Record{}, ErrCorruptRecord
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return Record{}, ErrCorruptRecord
	}
	var crcBuf [4]byte
	if _, err := io.ReadFull(r, crcBuf[:]); err != nil {
		return Record{}, ErrCorruptRecord
	}
	if crc32.Checksum(body, crcTable) != binary.BigEndian.Uint32(crcBuf[:]) {
		return Record{}, ErrCorruptRecord
	}
	return decodeBody(body)
}

func decodeBody(body []byte) (Record, error) {
	rd := bytes.NewReader(body)
	br := &byteReader{rd}

	typByte, err := br.ReadByte()
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	rec := Record{Type: RecordType(typByte)}

	region, err := readBytes(rd, br)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	rec.Region = string(region)

	table, err := readBytes(rd, br)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	rec.Table = string(table)

	seq, err := binary.ReadUvarint(br)
	if err != nil {
		return Record{}, ErrCorruptRecord
	}
	rec.Sequence = seq

	if rec.Type == RecordEdit {
		rec.Row, err = readBytes(rd, br)
		if err != nil {
			return Record{}, ErrCorruptRecord
		}
		rec.Column, err = readBytes(rd, br)
		if err != nil {
			return Record{}, ErrCorruptRecord
		}
		rec.Timestamp, err = binary.ReadUvarint(br)
		if err != nil {
			return Record{}, ErrCorruptRecord
		}
		delByte, err := br.ReadByte()
		if err != nil {
			return Record{}, ErrCorruptRecord
		}
		rec.Delete = delByte != 0
		rec.Value, err = readBytes(rd, br)
		if err != nil {
			return Record{}, ErrCorruptRecord
		}
	}
	return rec, nil
}

func readBytes(rd *bytes.Reader, br io.ByteReader) ([]byte, error) {
	n, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rd, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

type byteReader struct{ io.Reader }

func (b *byteReader) ReadByte() (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(b.Reader, buf[:])
	return buf[0], err
}
