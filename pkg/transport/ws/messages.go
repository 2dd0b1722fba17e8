// Package ws carries worker RPCs over a websocket connection. Every
// frame is a binary CBOR message; responses echo the request id.
package ws

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

const (
	MethodHello    = "hello"
	MethodFit      = "fit"
	MethodEvaluate = "evaluate"

	// maxMessageSize bounds a single frame, large enough for a few
	// million float64 parameters.
	maxMessageSize   = 64 << 20
	maxArrayElements = 1 << 24
)

var (
	ErrClosed        = errors.New("connection closed")
	ErrUnknownMethod = errors.New("unknown method")
	ErrRemote        = errors.New("worker returned an error")
	ErrEmptyAddress  = errors.New("empty worker address")
)

type message struct {
	ID      uint64          `cbor:"id"`
	Method  string          `cbor:"method,omitempty"`
	Payload cbor.RawMessage `cbor:"payload,omitempty"`
	Error   string          `cbor:"error,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	if encMode, err = cbor.CoreDetEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: maxArrayElements}).DecMode(); err != nil {
		panic(err)
	}
}

func encode(id uint64, method string, payload any) ([]byte, error) {
	msg := message{ID: id, Method: method}
	if payload != nil {
		raw, err := encMode.Marshal(payload)
		if err != nil {
			return nil, err
		}
		msg.Payload = raw
	}

	return encMode.Marshal(msg)
}

func encodeError(id uint64, err error) ([]byte, error) {
	return encMode.Marshal(message{ID: id, Error: err.Error()})
}

func decode(data []byte) (message, error) {
	var msg message
	if err := decMode.Unmarshal(data, &msg); err != nil {
		return message{}, err
	}

	return msg, nil
}
