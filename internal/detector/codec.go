package detector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// maxMessageSize bounds a single frame on the wire.
const maxMessageSize = 16 << 20

// ErrMessageTooLarge is returned when a length prefix exceeds maxMessageSize.
var ErrMessageTooLarge = errors.New("detector: message too large")

// request is sent to the landmark service for every frame.
type request struct {
	Image           []byte  `msgpack:"image"`
	MaxHands        int     `msgpack:"max_hands"`
	MinConfidence   float64 `msgpack:"min_confidence"`
	MinTrackingConf float64 `msgpack:"min_tracking_confidence"`
}

// response is the service's answer to one request.
type response struct {
	Hands []wireHand `msgpack:"hands"`
	Error string     `msgpack:"error,omitempty"`
}

type wireHand struct {
	Points     []Point3D `msgpack:"points"`
	Handedness string    `msgpack:"handedness"`
	Score      float64   `msgpack:"score"`
}

func (h wireHand) toHandLandmarks() HandLandmarks {
	lm := HandLandmarks{
		Handedness: h.Handedness,
		Score:      h.Score,
	}
	copy(lm.Points[:], h.Points)
	return lm
}

// writeMessage writes v as msgpack with a 4-byte big-endian length prefix.
func writeMessage(w io.Writer, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal msgpack: %w", err)
	}
	if len(data) > maxMessageSize {
		return ErrMessageTooLarge
	}

	buf := make([]byte, 4+len(data))
	binary.BigEndian.PutUint32(buf, uint32(len(data)))
	copy(buf[4:], data)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

// readMessage reads one length-prefixed msgpack message into v.
func readMessage(r io.Reader, v any) error {
	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return err
	}

	n := binary.BigEndian.Uint32(lengthBuf)
	if n > maxMessageSize {
		return ErrMessageTooLarge
	}

	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return fmt.Errorf("read message body: %w", err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal msgpack: %w", err)
	}
	return nil
}
