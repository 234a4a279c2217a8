// Package wire defines the JSON shape of poller events shared by every
// consumer transport: the gRPC event stream, the websocket feed and the
// pub/sub publisher.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/service/poller"
)

// ErrUnsupportedEvent is returned for events without a wire form.
var ErrUnsupportedEvent = errors.New("unsupported event")

// Host is the wire form of plc.Host.
type Host struct {
	Label      string `json:"label"`
	Address    string `json:"address"`
	Responding bool   `json:"responding"`
}

// System is the wire form of plc.SystemInfo with derived status fields.
type System struct {
	Name           string   `json:"name"`
	Alarm          string   `json:"alarm"`
	EthernetOK     bool     `json:"ethernet_ok"`
	NodesOK        bool     `json:"nodes_ok"`
	EthernetStatus string   `json:"ethernet_status"`
	NodesStatus    string   `json:"nodes_status"`
	FailedHosts    []string `json:"failed_hosts,omitempty"`
	EthernetHosts  []Host   `json:"ethernet_hosts"`
	NodeHosts      []Host   `json:"node_hosts"`
}

// Event is the wire form of a poller event.
type Event struct {
	Kind    string     `json:"kind"`
	Cycle   uint64     `json:"cycle,omitempty"`
	At      *time.Time `json:"at,omitempty"`
	System  *System    `json:"system,omitempty"`
	Source  string     `json:"source,omitempty"`
	Message string     `json:"message,omitempty"`
	Systems []string   `json:"systems,omitempty"`
}

// FromSystem converts a system snapshot.
func FromSystem(system *plc.SystemInfo) *System {
	if system == nil {
		return nil
	}

	return &System{
		Name:           system.Name,
		Alarm:          system.Alarm.String(),
		EthernetOK:     system.EthernetOK(),
		NodesOK:        system.NodesOK(),
		EthernetStatus: system.EthernetStatus(),
		NodesStatus:    system.NodesStatus(),
		FailedHosts:    system.FailedHosts(),
		EthernetHosts:  fromHosts(system.EthernetHosts),
		NodeHosts:      fromHosts(system.NodeHosts),
	}
}

func fromHosts(hosts []plc.Host) []Host {
	result := make([]Host, 0, len(hosts))
	for _, host := range hosts {
		result = append(result, Host(host))
	}

	return result
}

// FromEvent converts a poller event.
func FromEvent(event poller.Event) (*Event, error) {
	switch e := event.(type) {
	case poller.Ready:
		return &Event{Kind: e.Kind()}, nil
	case poller.Updated:
		at := e.At.UTC()

		return &Event{
			Kind:   e.Kind(),
			Cycle:  e.Cycle,
			At:     &at,
			System: FromSystem(e.System),
		}, nil
	case poller.ImportFailed:
		return &Event{Kind: e.Kind(), Source: e.Source, Message: e.Message}, nil
	case poller.Reloaded:
		return &Event{Kind: e.Kind(), Source: e.Source, Systems: e.Systems}, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedEvent, event)
	}
}

// Marshal encodes a poller event as JSON.
func Marshal(event poller.Event) ([]byte, error) {
	wireEvent, err := FromEvent(event)
	if err != nil {
		return nil, err
	}

	return json.Marshal(wireEvent)
}

// ToStruct converts any JSON-encodable value to a protobuf Struct.
func ToStruct(value any) (*structpb.Struct, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}

	result := new(structpb.Struct)
	if err = protojson.Unmarshal(data, result); err != nil {
		return nil, fmt.Errorf("convert to struct: %w", err)
	}

	return result, nil
}

// FromStruct decodes a protobuf Struct into target.
func FromStruct(s *structpb.Struct, target any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("convert from struct: %w", err)
	}

	if err = json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	return nil
}
