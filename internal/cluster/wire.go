package cluster

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// MaxFrameSize caps a single wire message. Carts and catalogs are small;
// anything larger than this is a protocol violation, not a big payload.
const MaxFrameSize = 1 << 20

// DefaultCallTimeout bounds one dial-send-receive exchange with a peer.
const DefaultCallTimeout = 5 * time.Second

// ErrFrameTooLarge is returned when a peer announces a frame above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// WriteFrame encodes v as JSON and writes it as one length-prefixed frame:
// a 4-byte big-endian payload length followed by the payload itself.
func WriteFrame(w io.Writer, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and decodes its JSON payload
// into v. Frames above MaxFrameSize are rejected before any payload read so
// a misbehaving peer cannot make us allocate unbounded memory.
func ReadFrame(r io.Reader, v any) error {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return fmt.Errorf("read frame header: %w", err)
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > MaxFrameSize {
		return ErrFrameTooLarge
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return fmt.Errorf("read frame payload: %w", err)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	return nil
}

// Call performs one request/response exchange with the shard at addr:
// dial, write the request frame, read the response frame, close.
//
// The whole exchange is bounded by the context deadline, falling back to
// DefaultCallTimeout when the context carries none. Any dial error, I/O
// error, or deadline expiry is returned to the caller for classification;
// Call itself does not distinguish failure modes.
func Call(ctx context.Context, addr string, req *Request) (*Response, error) {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultCallTimeout)
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	if err := WriteFrame(conn, req); err != nil {
		return nil, err
	}
	var resp Response
	if err := ReadFrame(conn, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
