package eip

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"
)

// DefaultPort is the registered EtherNet/IP encapsulation port.
const DefaultPort = 44818

// closeTimeout bounds the UnRegisterSession write on close.
const closeTimeout = 200 * time.Millisecond

// errClosed is returned when using a closed session.
var errClosed = errors.New("session closed")

// Options configures how sessions reach the controller.
type Options struct {
	// Port is used when the address carries none.
	Port int
	// Slot is the backplane slot of the controller CPU.
	Slot byte
}

// Session is a registered encapsulation session with one controller.
type Session struct {
	// conn is the TCP connection to the adapter.
	conn net.Conn
	// handle is the session handle assigned by the adapter.
	handle uint32
	// slot is the backplane slot addressed by Unconnected Send.
	slot byte
	// mu serializes request/reply exchanges.
	mu sync.Mutex
	// sequence fills the sender context of each request.
	sequence uint64
	// closed is set by Close.
	closed bool
}

// Dial connects to address and registers a session.
func Dial(ctx context.Context, address string, opts Options) (*Session, error) {
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}

	if _, _, err := net.SplitHostPort(address); err != nil {
		address = net.JoinHostPort(address, strconv.Itoa(opts.Port))
	}

	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", address, err)
	}

	s := &Session{
		conn: conn,
		slot: opts.Slot,
	}

	registered, err := s.roundTrip(ctx, cmdRegisterSession, registerSessionData())
	if err != nil {
		_ = conn.Close()

		return nil, fmt.Errorf("register session: %w", err)
	}

	s.handle = registered.Session

	return s, nil
}

// ReadBool reads a BOOL tag.
func (s *Session) ReadBool(ctx context.Context, tag string) (bool, error) {
	req, err := readTagRequest(tag)
	if err != nil {
		return false, err
	}

	data, err := s.request(ctx, req, serviceReadTag)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", tag, err)
	}

	value, err := decodeBool(data)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", tag, err)
	}

	return value, nil
}

// WriteBool writes a BOOL tag.
func (s *Session) WriteBool(ctx context.Context, tag string, value bool) error {
	req, err := writeBoolRequest(tag, value)
	if err != nil {
		return err
	}

	if _, err = s.request(ctx, req, serviceWriteTag); err != nil {
		return fmt.Errorf("write %s: %w", tag, err)
	}

	return nil
}

// Close unregisters the session and closes the connection.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	h := header{Command: cmdUnregisterSession, Session: s.handle}

	// The adapter sends no reply to UnRegisterSession; failing to deliver it only delays cleanup on its side.
	_ = s.conn.SetWriteDeadline(time.Now().Add(closeTimeout))
	_, unregisterErr := s.conn.Write(h.marshal())

	return errors.Join(unregisterErr, s.conn.Close())
}

// request sends an embedded CIP request through Unconnected Send and returns the reply data.
func (s *Session) request(ctx context.Context, embedded []byte, service byte) ([]byte, error) {
	timeout := uint16(0)
	if deadline, ok := ctx.Deadline(); ok {
		timeout = uint16(max(1, int(time.Until(deadline).Seconds()+0.5)))
	}

	response, err := s.roundTrip(ctx, cmdSendRRData, sendRRData(unconnectedSend(embedded, s.slot), timeout))
	if err != nil {
		return nil, err
	}

	cip, err := unconnectedData(response.Body)
	if err != nil {
		return nil, err
	}

	return cipReply(cip, service)
}

// packet is a decoded encapsulation reply.
type packet struct {
	header

	// Body is the command specific data following the header.
	Body []byte
}

// roundTrip writes one encapsulation request and reads its reply.
func (s *Session) roundTrip(ctx context.Context, command uint16, body []byte) (*packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errClosed
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	release := s.bind(ctx)
	defer release()

	s.sequence++

	h := header{Command: command, Length: uint16(len(body)), Session: s.handle}
	binary.LittleEndian.PutUint64(h.Context[:], s.sequence)

	if _, err := s.conn.Write(append(h.marshal(), body...)); err != nil {
		return nil, s.contextErr(ctx, err)
	}

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(s.conn, buf); err != nil {
		return nil, s.contextErr(ctx, err)
	}

	r := &packet{header: unmarshalHeader(buf)}

	r.Body = make([]byte, r.Length)
	if _, err := io.ReadFull(s.conn, r.Body); err != nil {
		return nil, s.contextErr(ctx, err)
	}

	if r.Command != command || r.Context != h.Context {
		return nil, fmt.Errorf("%w: reply to command 0x%04X", ErrMalformedReply, r.Command)
	}

	if r.Status != 0 {
		return nil, &EncapsulationError{Command: command, Status: r.Status}
	}

	return r, nil
}

// bind applies the context deadline to the connection and interrupts
// blocked I/O on cancellation. The returned func must be called when the exchange ends.
func (s *Session) bind(ctx context.Context) func() {
	if deadline, ok := ctx.Deadline(); ok {
		_ = s.conn.SetDeadline(deadline)
	}

	stop := context.AfterFunc(ctx, func() {
		_ = s.conn.SetDeadline(time.Unix(1, 0))
	})

	return func() {
		if stop() {
			_ = s.conn.SetDeadline(time.Time{})
		}
	}
}

// contextErr prefers the context error over the I/O error it caused.
func (s *Session) contextErr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	return err
}
