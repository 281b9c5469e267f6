// Package wal is the write-ahead log a caller appends serialized cell
// bytes to before they are considered durable. Every record is
// framed as a 4-byte big-endian length, the payload, and a 4-byte
// CRC-32 checksum of the payload, so a crash mid-write leaves a
// trailing record that replay can detect and discard rather than a
// file that silently fails to parse.
package wal

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/decisiongraph/core/pkg/apperr"
)

const segmentPrefix = "wal-"
const segmentSuffix = ".seg"

// WAL is a segmented, append-only log. One WAL instance owns a
// directory; segments rotate once the active segment reaches
// SegmentMaxBytes.
type WAL struct {
	mu              sync.Mutex
	dir             string
	segmentMaxBytes int64
	segments        []string // ordered segment file names, oldest first
	current         *os.File
	currentSize     int64
}

// Open opens (or creates) a WAL rooted at dir, replaying every
// existing segment. It returns the WAL ready for further appends and
// the records recovered from prior runs, in commit order. Replay
// stops at the first record that fails its length/CRC check — a
// crash only ever corrupts the tail of the last segment written, so
// everything before that point is trustworthy and everything at or
// after it is discarded. The corrupted tail is truncated from disk so
// the next Append starts from a clean offset.
func Open(dir string, segmentMaxBytes int64) (*WAL, [][]byte, error) {
	if segmentMaxBytes <= 0 {
		segmentMaxBytes = 64 * 1024 * 1024
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, apperr.Wrap(apperr.CodeIOFailure, "wal: creating directory", err)
	}

	names, err := listSegments(dir)
	if err != nil {
		return nil, nil, err
	}

	w := &WAL{dir: dir, segmentMaxBytes: segmentMaxBytes, segments: names}

	var records [][]byte
	for i, name := range names {
		path := filepath.Join(dir, name)
		segRecords, validBytes, clean, err := replaySegment(path)
		if err != nil {
			return nil, nil, err
		}
		records = append(records, segRecords...)
		if !clean {
			if err := os.Truncate(path, validBytes); err != nil {
				return nil, nil, apperr.Wrap(apperr.CodeIOFailure, "wal: truncating corrupt tail", err)
			}
			// A truncated-tail segment can only be the last one we trust;
			// any segments after it in the listing predate a crash that
			// never reached them and are dropped from the active set.
			if i < len(names)-1 {
				w.segments = names[:i+1]
				for _, stale := range names[i+1:] {
					_ = os.Remove(filepath.Join(dir, stale))
				}
			}
			break
		}
	}

	if len(w.segments) == 0 {
		if err := w.openNewSegment(); err != nil {
			return nil, nil, err
		}
	} else {
		last := filepath.Join(dir, w.segments[len(w.segments)-1])
		f, err := os.OpenFile(last, os.O_APPEND|os.O_RDWR, 0o644)
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.CodeIOFailure, "wal: reopening segment", err)
		}
		info, err := f.Stat()
		if err != nil {
			return nil, nil, apperr.Wrap(apperr.CodeIOFailure, "wal: stat segment", err)
		}
		w.current = f
		w.currentSize = info.Size()
	}

	return w, records, nil
}

// Append writes data as one record, rotating to a new segment first
// if the write would exceed SegmentMaxBytes. It fsyncs before
// returning, so a successful Append is durable.
func (w *WAL) Append(data []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	recordSize := int64(4 + len(data) + 4)
	if w.currentSize > 0 && w.currentSize+recordSize > w.segmentMaxBytes {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(data)))
	var crcBuf [4]byte
	binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(data))

	if _, err := w.current.Write(lenBuf[:]); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: writing length prefix", err)
	}
	if _, err := w.current.Write(data); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: writing payload", err)
	}
	if _, err := w.current.Write(crcBuf[:]); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: writing checksum", err)
	}
	if err := w.current.Sync(); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: fsync", err)
	}

	w.currentSize += recordSize
	return nil
}

// Close closes the active segment; every Append has already synced it.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.current == nil {
		return nil
	}
	return w.current.Close()
}

// Compact merges every segment into a single new segment containing
// every currently-recoverable record, then removes the old segments.
// It does not filter records: the WAL never deletes committed cells,
// so compaction here reclaims the overhead of many small segment
// files rather than pruning content.
func (w *WAL) Compact() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var all [][]byte
	for _, name := range w.segments {
		recs, _, _, err := replaySegment(filepath.Join(w.dir, name))
		if err != nil {
			return err
		}
		all = append(all, recs...)
	}

	if w.current != nil {
		_ = w.current.Close()
	}
	oldSegments := w.segments
	tmpName := segmentPrefix + "compact" + segmentSuffix
	tmpPath := filepath.Join(w.dir, tmpName)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: creating compaction segment", err)
	}

	var size int64
	for _, rec := range all {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(rec)))
		var crcBuf [4]byte
		binary.BigEndian.PutUint32(crcBuf[:], crc32.ChecksumIEEE(rec))
		if _, err := f.Write(lenBuf[:]); err != nil {
			return apperr.Wrap(apperr.CodeIOFailure, "wal: writing compacted record", err)
		}
		if _, err := f.Write(rec); err != nil {
			return apperr.Wrap(apperr.CodeIOFailure, "wal: writing compacted record", err)
		}
		if _, err := f.Write(crcBuf[:]); err != nil {
			return apperr.Wrap(apperr.CodeIOFailure, "wal: writing compacted record", err)
		}
		size += int64(4 + len(rec) + 4)
	}
	if err := f.Sync(); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: fsync compaction segment", err)
	}

	finalName := segmentName(0)
	finalPath := filepath.Join(w.dir, finalName)
	if err := f.Close(); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: closing compaction segment", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: installing compacted segment", err)
	}
	for _, name := range oldSegments {
		if name == finalName {
			continue
		}
		_ = os.Remove(filepath.Join(w.dir, name))
	}

	w.segments = []string{finalName}
	reopened, err := os.OpenFile(finalPath, os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: reopening compacted segment", err)
	}
	w.current = reopened
	w.currentSize = size
	return nil
}

func (w *WAL) rotate() error {
	if w.current != nil {
		if err := w.current.Close(); err != nil {
			return apperr.Wrap(apperr.CodeIOFailure, "wal: closing segment on rotate", err)
		}
	}
	return w.openNewSegment()
}

func (w *WAL) openNewSegment() error {
	next := len(w.segments)
	name := segmentName(next)
	path := filepath.Join(w.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o644)
	if err != nil {
		return apperr.Wrap(apperr.CodeIOFailure, "wal: creating segment", err)
	}
	w.segments = append(w.segments, name)
	w.current = f
	w.currentSize = 0
	return nil
}

func segmentName(n int) string {
	return fmt.Sprintf("%s%06d%s", segmentPrefix, n, segmentSuffix)
}

func listSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeIOFailure, "wal: listing segments", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if len(e.Name()) > len(segmentPrefix)+len(segmentSuffix) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// replaySegment reads every complete, checksum-valid record from
// path in order. It returns the records, the byte offset through
// which the segment is trustworthy (validBytes), and whether the
// whole file was clean (no trailing partial or corrupt record).
func replaySegment(path string) (records [][]byte, validBytes int64, clean bool, err error) {
	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return nil, 0, false, apperr.Wrap(apperr.CodeIOFailure, "wal: reading segment", readErr)
	}

	var offset int64
	for offset < int64(len(data)) {
		if offset+4 > int64(len(data)) {
			return records, offset, false, nil
		}
		length := binary.BigEndian.Uint32(data[offset : offset+4])
		recordEnd := offset + 4 + int64(length) + 4
		if recordEnd > int64(len(data)) {
			return records, offset, false, nil
		}
		payload := data[offset+4 : offset+4+int64(length)]
		wantCRC := binary.BigEndian.Uint32(data[offset+4+int64(length) : recordEnd])
		if crc32.ChecksumIEEE(payload) != wantCRC {
			return records, offset, false, nil
		}
		rec := make([]byte, len(payload))
		copy(rec, payload)
		records = append(records, rec)
		offset = recordEnd
	}
	return records, offset, true, nil
}
