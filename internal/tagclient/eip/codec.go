package eip

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Encapsulation commands.
const (
	cmdRegisterSession   uint16 = 0x0065
	cmdUnregisterSession uint16 = 0x0066
	cmdSendRRData        uint16 = 0x006F
)

// CIP services and identifiers.
const (
	serviceReadTag         byte = 0x4C
	serviceWriteTag        byte = 0x4D
	serviceUnconnectedSend byte = 0x52
	replyFlag              byte = 0x80

	typeBool uint16 = 0x00C1

	itemNullAddress     uint16 = 0x0000
	itemUnconnectedData uint16 = 0x00B2

	segmentSymbolic byte = 0x91
	backplanePort   byte = 0x01

	// priorityTick and timeoutTicks give the target roughly 2 s to answer the embedded request.
	priorityTick byte = 0x0A
	timeoutTicks byte = 0x05

	headerSize      = 24
	protocolVersion = 1
)

var (
	// ErrMalformedReply is returned when a reply cannot be decoded.
	ErrMalformedReply = errors.New("malformed reply")
	// ErrUnsupportedType is returned when a tag does not hold a BOOL.
	ErrUnsupportedType = errors.New("unsupported tag type")
	// errEmptyTag is returned for an empty tag name.
	errEmptyTag = errors.New("tag name must be provided")
)

// EncapsulationError reports a non-zero encapsulation status.
type EncapsulationError struct {
	Command uint16
	Status  uint32
}

func (e *EncapsulationError) Error() string {
	return fmt.Sprintf("encapsulation command 0x%04X failed with status 0x%08X", e.Command, e.Status)
}

// CIPError reports a non-zero CIP general status.
type CIPError struct {
	Service byte
	Status  byte
	Extra   []uint16
}

func (e *CIPError) Error() string {
	if len(e.Extra) == 0 {
		return fmt.Sprintf("cip service 0x%02X failed with status 0x%02X", e.Service, e.Status)
	}

	return fmt.Sprintf("cip service 0x%02X failed with status 0x%02X %v", e.Service, e.Status, e.Extra)
}

// header is the fixed encapsulation header.
type header struct {
	Command uint16
	Length  uint16
	Session uint32
	Status  uint32
	Context [8]byte
	Options uint32
}

func (h *header) marshal() []byte {
	buf := make([]byte, headerSize)
	binary.LittleEndian.PutUint16(buf[0:], h.Command)
	binary.LittleEndian.PutUint16(buf[2:], h.Length)
	binary.LittleEndian.PutUint32(buf[4:], h.Session)
	binary.LittleEndian.PutUint32(buf[8:], h.Status)
	copy(buf[12:20], h.Context[:])
	binary.LittleEndian.PutUint32(buf[20:], h.Options)

	return buf
}

func unmarshalHeader(buf []byte) header {
	var h header
	h.Command = binary.LittleEndian.Uint16(buf[0:])
	h.Length = binary.LittleEndian.Uint16(buf[2:])
	h.Session = binary.LittleEndian.Uint32(buf[4:])
	h.Status = binary.LittleEndian.Uint32(buf[8:])
	copy(h.Context[:], buf[12:20])
	h.Options = binary.LittleEndian.Uint32(buf[20:])

	return h
}

// registerSessionData is the body of a RegisterSession request.
func registerSessionData() []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint16(buf[0:], protocolVersion)

	return buf
}

// symbolicPath encodes a tag name as ANSI extended symbolic segments, one per member.
func symbolicPath(tag string) ([]byte, error) {
	if tag == "" {
		return nil, errEmptyTag
	}

	var path []byte

	for _, member := range strings.Split(tag, ".") {
		if member == "" || len(member) > 255 {
			return nil, fmt.Errorf("invalid tag name %q", tag)
		}

		path = append(path, segmentSymbolic, byte(len(member)))
		path = append(path, member...)

		if len(member)%2 == 1 {
			path = append(path, 0)
		}
	}

	return path, nil
}

// readTagRequest encodes a Read Tag request for one element.
func readTagRequest(tag string) ([]byte, error) {
	path, err := symbolicPath(tag)
	if err != nil {
		return nil, err
	}

	req := append([]byte{serviceReadTag, byte(len(path) / 2)}, path...)

	return binary.LittleEndian.AppendUint16(req, 1), nil
}

// writeBoolRequest encodes a Write Tag request for one BOOL element.
func writeBoolRequest(tag string, value bool) ([]byte, error) {
	path, err := symbolicPath(tag)
	if err != nil {
		return nil, err
	}

	req := append([]byte{serviceWriteTag, byte(len(path) / 2)}, path...)
	req = binary.LittleEndian.AppendUint16(req, typeBool)
	req = binary.LittleEndian.AppendUint16(req, 1)

	if value {
		return append(req, 0x01), nil
	}

	return append(req, 0x00), nil
}

// unconnectedSend wraps an embedded request for the connection manager
// and routes it through the backplane to slot.
func unconnectedSend(embedded []byte, slot byte) []byte {
	req := []byte{
		serviceUnconnectedSend,
		0x02,       // path size in words
		0x20, 0x06, // class: connection manager
		0x24, 0x01, // instance 1
		priorityTick,
		timeoutTicks,
	}

	req = binary.LittleEndian.AppendUint16(req, uint16(len(embedded)))
	req = append(req, embedded...)

	if len(embedded)%2 == 1 {
		req = append(req, 0)
	}

	return append(req, 0x01, 0x00, backplanePort, slot)
}

// sendRRData builds the common packet format body carrying an unconnected CIP message.
func sendRRData(cip []byte, timeoutSeconds uint16) []byte {
	buf := make([]byte, 0, 16+len(cip))
	buf = binary.LittleEndian.AppendUint32(buf, 0) // interface handle
	buf = binary.LittleEndian.AppendUint16(buf, timeoutSeconds)
	buf = binary.LittleEndian.AppendUint16(buf, 2) // item count
	buf = binary.LittleEndian.AppendUint16(buf, itemNullAddress)
	buf = binary.LittleEndian.AppendUint16(buf, 0)
	buf = binary.LittleEndian.AppendUint16(buf, itemUnconnectedData)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(cip)))

	return append(buf, cip...)
}

// unconnectedData extracts the unconnected data item from a SendRRData reply body.
func unconnectedData(body []byte) ([]byte, error) {
	const prefix = 8 // interface handle + timeout + item count

	if len(body) < prefix {
		return nil, fmt.Errorf("%w: short common packet", ErrMalformedReply)
	}

	count := int(binary.LittleEndian.Uint16(body[6:]))
	offset := prefix

	for range count {
		if len(body) < offset+4 {
			return nil, fmt.Errorf("%w: truncated item header", ErrMalformedReply)
		}

		kind := binary.LittleEndian.Uint16(body[offset:])
		length := int(binary.LittleEndian.Uint16(body[offset+2:]))
		offset += 4

		if len(body) < offset+length {
			return nil, fmt.Errorf("%w: truncated item data", ErrMalformedReply)
		}

		if kind == itemUnconnectedData {
			return body[offset : offset+length], nil
		}

		offset += length
	}

	return nil, fmt.Errorf("%w: no unconnected data item", ErrMalformedReply)
}

// cipReply checks a CIP reply for service and returns its response data.
func cipReply(reply []byte, service byte) ([]byte, error) {
	if len(reply) < 4 {
		return nil, fmt.Errorf("%w: short cip reply", ErrMalformedReply)
	}

	extraWords := int(reply[3])
	if len(reply) < 4+2*extraWords {
		return nil, fmt.Errorf("%w: truncated additional status", ErrMalformedReply)
	}

	if status := reply[2]; status != 0 {
		extra := make([]uint16, extraWords)
		for i := range extra {
			extra[i] = binary.LittleEndian.Uint16(reply[4+2*i:])
		}

		return nil, &CIPError{Service: reply[0] &^ replyFlag, Status: status, Extra: extra}
	}

	if reply[0] != service|replyFlag {
		return nil, fmt.Errorf("%w: reply service 0x%02X for request 0x%02X", ErrMalformedReply, reply[0], service)
	}

	return reply[4+2*extraWords:], nil
}

// decodeBool decodes Read Tag response data holding a BOOL.
func decodeBool(data []byte) (bool, error) {
	if len(data) < 3 {
		return false, fmt.Errorf("%w: short tag value", ErrMalformedReply)
	}

	if kind := binary.LittleEndian.Uint16(data); kind != typeBool {
		return false, fmt.Errorf("%w: 0x%04X", ErrUnsupportedType, kind)
	}

	return data[2] != 0, nil
}
