// Package publish fans poller events out over a brokerless PUB socket.
//
// Every message is "<topic> <json>" where topic is "plc.<event kind>", so SUB
// sockets can filter on prefixes such as "plc.updated".
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"go.nanomsg.org/mangos/v3"
	"go.nanomsg.org/mangos/v3/protocol/pub"

	// Registers tcp, ipc, inproc and websocket transports.
	_ "go.nanomsg.org/mangos/v3/transport/all"

	"github.com/oshokin/plc-monitor/internal/api/wire"
	"github.com/oshokin/plc-monitor/internal/logger"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

// TopicPrefix prefixes every topic.
const TopicPrefix = "plc."

// ErrMalformedMessage is returned by Decode for a message without a topic.
var ErrMalformedMessage = errors.New("malformed message")

// Publisher implements poller.Sink on a PUB socket.
// Sends never block: messages for slow subscribers are dropped by the socket.
type Publisher struct {
	// sock is the listening PUB socket.
	sock mangos.Socket
	// address is the listen address, e.g. tcp://0.0.0.0:40899.
	address string
}

// Listen opens a PUB socket listening on address.
func Listen(address string) (*Publisher, error) {
	sock, err := pub.NewSocket()
	if err != nil {
		return nil, fmt.Errorf("create pub socket: %w", err)
	}

	if err = sock.Listen(address); err != nil {
		_ = sock.Close()

		return nil, fmt.Errorf("listen on %s: %w", address, err)
	}

	return &Publisher{
		sock:    sock,
		address: address,
	}, nil
}

// Topic returns the topic of events of kind.
func Topic(kind string) string {
	return TopicPrefix + kind
}

// Encode builds the message published for event.
func Encode(event poller.Event) ([]byte, error) {
	data, err := wire.Marshal(event)
	if err != nil {
		return nil, err
	}

	message := make([]byte, 0, len(TopicPrefix)+len(event.Kind())+1+len(data))
	message = append(message, Topic(event.Kind())...)
	message = append(message, ' ')
	message = append(message, data...)

	return message, nil
}

// Decode splits a message into its topic and JSON payload.
func Decode(message []byte) (string, []byte, error) {
	topic, payload, ok := bytes.Cut(message, []byte{' '})
	if !ok || !bytes.HasPrefix(topic, []byte(TopicPrefix)) {
		return "", nil, ErrMalformedMessage
	}

	return string(topic), payload, nil
}

// Emit implements poller.Sink.
func (p *Publisher) Emit(ctx context.Context, event poller.Event) {
	if event.Kind() == poller.KindReady {
		return
	}

	message, err := Encode(event)
	if err != nil {
		logger.WarnKV(ctx, "Failed to encode published event", "kind", event.Kind(), "error", err)

		return
	}

	if err = p.sock.Send(message); err != nil {
		logger.DebugKV(ctx, "Publish failed", "address", p.address, "error", err)
	}
}

// Close closes the socket.
func (p *Publisher) Close() error {
	return p.sock.Close()
}
