package dumpwriter

import (
	"encoding/binary"
	"io"
)

// indexWriter accumulates the `.idx` sidecar: one fixed-width big-endian
// uint64 offset every ~1 MiB of data bytes written, plus a final entry
// equal to the total data-byte length.
type indexWriter struct {
	w            io.WriteCloser
	everyBytes   uint64
	nextMark     uint64
	lastEmitted  uint64
}

const defaultIndexInterval = 1 << 20 // ~1 MiB

func newIndexWriter(w io.WriteCloser) *indexWriter {
	return &indexWriter{w: w, everyBytes: defaultIndexInterval, nextMark: defaultIndexInterval}
}

// observe is called after each row with the cumulative data-byte offset
// (the offset of the *next* row). It emits at most one entry per call,
// the current offset, the first time that offset reaches or crosses the
// next ~1 MiB mark; a single row spanning several marks (a large BLOB)
// still advances nextMark past all of them but is recorded once, so
// emitted offsets stay strictly increasing.
func (ix *indexWriter) observe(cumulativeDataBytes uint64) error {
	if cumulativeDataBytes < ix.nextMark {
		return nil
	}
	for ix.nextMark <= cumulativeDataBytes {
		ix.nextMark += ix.everyBytes
	}
	if cumulativeDataBytes == ix.lastEmitted {
		return nil
	}
	return ix.emit(cumulativeDataBytes)
}

func (ix *indexWriter) emit(offset uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], offset)
	if _, err := ix.w.Write(buf[:]); err != nil {
		return err
	}
	ix.lastEmitted = offset
	return nil
}

// finish writes the closing entry (total data-byte length) if it wasn't
// already emitted as a regular interval boundary, and closes the sidecar.
func (ix *indexWriter) finish(totalDataBytes uint64) error {
	if ix.lastEmitted != totalDataBytes {
		if err := ix.emit(totalDataBytes); err != nil {
			return err
		}
	}
	return ix.w.Close()
}
