package protocol

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Upload framing limits.
const (
	// MaxUploadHeaderBytes caps the JSON header of an upload.
	MaxUploadHeaderBytes = 16 * 1024
	// MaxUploadFileBytes caps a single uploaded file.
	MaxUploadFileBytes = 64 * 1024 * 1024
)

// Upload framing errors. All of them are protocol violations: the
// connection is closed and the partial transfer discarded.
var (
	ErrBadHeaderLength = errors.New("invalid upload header length")
	ErrBadHeader       = errors.New("invalid upload header")
	ErrUploadTooLarge  = errors.New("upload exceeds size limit")
)

// UploadHeader describes one assignment upload. It travels as a UTF-8 JSON
// object after a 4-byte big-endian length prefix, followed by exactly
// Filesize bytes of payload.
type UploadHeader struct {
	AssignmentID string `json:"assignmentId"`
	StudentName  string `json:"studentName"`
	Filename     string `json:"filename"`
	Filesize     int64  `json:"filesize"`
}

type transferPhase int

const (
	phaseHeaderLen transferPhase = iota
	phaseHeader
	phasePayload
	phaseDone
)

// TransferState is the incremental parser for one upload connection. It
// advances through the three protocol phases as bytes arrive and tolerates
// arbitrary split points; Feed never blocks and never over-consumes into a
// later phase without completing the current one.
type TransferState struct {
	phase    transferPhase
	lenBuf   [4]byte
	lenGot   int
	header   UploadHeader
	hdrWant  int
	hdrBuf   bytes.Buffer
	payload  bytes.Buffer
	trailing int64
}

// Feed consumes a chunk of bytes from the connection. It returns true once
// the declared payload has been fully read. Bytes arriving after completion
// are counted but otherwise ignored.
func (t *TransferState) Feed(p []byte) (bool, error) {
	for len(p) > 0 {
		switch t.phase {
		case phaseHeaderLen:
			n := copy(t.lenBuf[t.lenGot:], p)
			t.lenGot += n
			p = p[n:]
			if t.lenGot < 4 {
				return false, nil
			}
			hdrLen := int32(binary.BigEndian.Uint32(t.lenBuf[:]))
			if hdrLen <= 0 || hdrLen > MaxUploadHeaderBytes {
				return false, fmt.Errorf("%w: %d", ErrBadHeaderLength, hdrLen)
			}
			t.hdrWant = int(hdrLen)
			t.phase = phaseHeader

		case phaseHeader:
			take := t.hdrWant - t.hdrBuf.Len()
			if take > len(p) {
				take = len(p)
			}
			t.hdrBuf.Write(p[:take])
			p = p[take:]
			if t.hdrBuf.Len() < t.hdrWant {
				return false, nil
			}
			if err := json.Unmarshal(t.hdrBuf.Bytes(), &t.header); err != nil {
				return false, fmt.Errorf("%w: %v", ErrBadHeader, err)
			}
			if t.header.Filesize < 0 {
				return false, fmt.Errorf("%w: negative filesize", ErrBadHeader)
			}
			if t.header.Filesize > MaxUploadFileBytes {
				return false, fmt.Errorf("%w: %d bytes declared", ErrUploadTooLarge, t.header.Filesize)
			}
			t.phase = phasePayload
			if t.header.Filesize == 0 {
				t.phase = phaseDone
			}

		case phasePayload:
			take := t.header.Filesize - int64(t.payload.Len())
			if take > int64(len(p)) {
				take = int64(len(p))
			}
			t.payload.Write(p[:take])
			p = p[take:]
			if int64(t.payload.Len()) >= t.header.Filesize {
				t.phase = phaseDone
			}

		case phaseDone:
			t.trailing += int64(len(p))
			p = nil
		}
	}
	return t.phase == phaseDone, nil
}

// Complete reports whether the full declared payload has been received.
func (t *TransferState) Complete() bool { return t.phase == phaseDone }

// Header returns the parsed upload header. Valid once the header phase has
// completed.
func (t *TransferState) Header() UploadHeader { return t.header }

// Payload returns the assembled file bytes.
func (t *TransferState) Payload() []byte { return t.payload.Bytes() }

// TrailingBytes reports bytes received after the declared payload ended.
func (t *TransferState) TrailingBytes() int64 { return t.trailing }

// WriteUploadRequest encodes one complete upload onto w using the framing
// the reactor expects. Filesize in hdr is overwritten with len(data).
func WriteUploadRequest(w io.Writer, hdr UploadHeader, data []byte) error {
	hdr.Filesize = int64(len(data))
	hb, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshal upload header: %w", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(hb)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hb); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}
