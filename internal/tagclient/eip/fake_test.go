package eip

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

// fakeSessionHandle is the handle assigned by fakeAdapter.
const fakeSessionHandle = 0x00C0FFEE

// fakeAdapter emulates a Logix controller reachable through an EtherNet/IP adapter.
type fakeAdapter struct {
	// listener accepts client connections.
	listener net.Listener
	// silent makes the adapter swallow SendRRData requests without replying.
	silent bool

	// mu protects the fields below.
	mu sync.Mutex
	// tags holds readable BOOL tag values.
	tags map[string]bool
	// writes records written tags in order.
	writes []string
	// slots records the route slot of each request.
	slots []byte
	// unregistered counts UnRegisterSession requests.
	unregistered int
}

// startFakeAdapter listens on a loopback port and serves until the test ends.
func startFakeAdapter(t *testing.T, tags map[string]bool, silent bool) *fakeAdapter {
	t.Helper()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeAdapter{listener: lis, silent: silent, tags: tags}

	go func() {
		for {
			conn, err := lis.Accept()
			if err != nil {
				return
			}

			go f.serve(conn)
		}
	}()

	t.Cleanup(func() {
		_ = lis.Close()
	})

	return f
}

// address returns the host:port clients dial.
func (f *fakeAdapter) address() string {
	return f.listener.Addr().String()
}

func (f *fakeAdapter) serve(conn net.Conn) {
	defer func() {
		_ = conn.Close()
	}()

	for {
		buf := make([]byte, headerSize)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}

		h := unmarshalHeader(buf)

		body := make([]byte, h.Length)
		if _, err := io.ReadFull(conn, body); err != nil {
			return
		}

		var replyBody []byte

		switch h.Command {
		case cmdRegisterSession:
			h.Session = fakeSessionHandle
			replyBody = body
		case cmdUnregisterSession:
			f.mu.Lock()
			f.unregistered++
			f.mu.Unlock()

			return
		case cmdSendRRData:
			if f.silent {
				continue
			}

			replyBody = sendRRData(f.handleCIP(body), 0)
		default:
			h.Status = 0x01
		}

		h.Length = uint16(len(replyBody))

		if _, err := conn.Write(append(h.marshal(), replyBody...)); err != nil {
			return
		}
	}
}

// handleCIP unwraps Unconnected Send and executes the embedded tag service.
func (f *fakeAdapter) handleCIP(body []byte) []byte {
	cip, err := unconnectedData(body)
	if err != nil || len(cip) < 2 || cip[0] != serviceUnconnectedSend {
		return []byte{serviceUnconnectedSend | replyFlag, 0, 0x08, 0}
	}

	offset := 2 + 2*int(cip[1]) + 2
	size := int(binary.LittleEndian.Uint16(cip[offset:]))
	offset += 2
	embedded := cip[offset : offset+size]

	routeOffset := offset + size + size%2
	slot := cip[routeOffset+3]

	service := embedded[0]
	pathEnd := 2 + 2*int(embedded[1])
	tag := decodeSymbolic(embedded[2:pathEnd])

	f.mu.Lock()
	defer f.mu.Unlock()

	f.slots = append(f.slots, slot)

	switch service {
	case serviceReadTag:
		value, ok := f.tags[tag]
		if !ok {
			return []byte{serviceReadTag | replyFlag, 0, 0x04, 0}
		}

		out := []byte{serviceReadTag | replyFlag, 0, 0, 0, 0xC1, 0x00, 0x00}
		if value {
			out[6] = 0x01
		}

		return out
	case serviceWriteTag:
		if _, ok := f.tags[tag]; !ok {
			return []byte{serviceWriteTag | replyFlag, 0, 0x05, 0}
		}

		data := embedded[pathEnd:]
		f.tags[tag] = data[4] != 0
		f.writes = append(f.writes, tag)

		return []byte{serviceWriteTag | replyFlag, 0, 0, 0}
	default:
		return []byte{service | replyFlag, 0, 0x08, 0}
	}
}

// snapshot returns copies of the recorded writes and slots.
func (f *fakeAdapter) snapshot() ([]string, []byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]string(nil), f.writes...), append([]byte(nil), f.slots...), f.unregistered
}

// decodeSymbolic turns symbolic segments back into a dotted tag name.
func decodeSymbolic(path []byte) string {
	var members []string

	for len(path) >= 2 && path[0] == segmentSymbolic {
		n := int(path[1])
		members = append(members, string(path[2:2+n]))
		path = path[2+n+n%2:]
	}

	return strings.Join(members, ".")
}

// errorsAs is a small helper keeping assertions on typed errors readable.
func errorsAs[T error](err error) (T, bool) {
	var target T

	ok := errors.As(err, &target)

	return target, ok
}
