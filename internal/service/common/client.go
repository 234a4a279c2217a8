//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	api "github.com/oshokin/plc-monitor/internal/api/grpc/monitor"
	"github.com/oshokin/plc-monitor/internal/api/wire"
	"github.com/oshokin/plc-monitor/internal/config"
	"github.com/oshokin/plc-monitor/internal/domain/plc"
	"github.com/oshokin/plc-monitor/internal/version"
)

// Client wraps the monitor gRPC client with convenience helpers.
type Client struct {
	// conn is the underlying gRPC connection to the monitor.
	conn *grpc.ClientConn
	// api is the monitor service client.
	api *api.PLCMonitorClient
	// actor is attached to every mutating call.
	actor *plc.Actor

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for unary calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithActor sets the operator identity sent with commands.
func WithActor(actor *plc.Actor) Option {
	return func(c *Client) {
		c.actor = actor.Clone()
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("address must be provided")
	// errActorRequired is returned when an actor is not provided but is required for the operation.
	errActorRequired = errors.New("actor must be provided")
)

// Dial establishes a gRPC connection to the monitor.
// Note: this uses insecure transport credentials; deploy on a trusted network
// or terminate TLS in a proxy until native TLS is added.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	// Use the non-context NewClient API recommended by grpc-go
	// (DialContext is deprecated as of grpc-go v1.60+).
	conn, err := grpc.NewClient(address,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUserAgent(version.UserAgent("plc-monitorctl")))
	if err != nil {
		return nil, fmt.Errorf("dial monitor: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         api.NewPLCMonitorClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// ResetSystem asks the monitor to reset the alarm of one system.
func (c *Client) ResetSystem(ctx context.Context, name string) error {
	callCtx, cancel, err := c.commandContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err = c.api.ResetSystem(callCtx, wrapperspb.String(name)); err != nil {
		return fmt.Errorf("reset system: %w", err)
	}

	return nil
}

// ResetAll asks the monitor to reset the alarm of every system.
func (c *Client) ResetAll(ctx context.Context) error {
	callCtx, cancel, err := c.commandContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err = c.api.ResetAll(callCtx, new(emptypb.Empty)); err != nil {
		return fmt.Errorf("reset all: %w", err)
	}

	return nil
}

// ReloadTopology asks the monitor to import the host list at source.
// The path is resolved on the monitor host.
func (c *Client) ReloadTopology(ctx context.Context, source string) error {
	callCtx, cancel, err := c.commandContext(ctx)
	if err != nil {
		return err
	}
	defer cancel()

	if _, err = c.api.ReloadTopology(callCtx, wrapperspb.String(source)); err != nil {
		return fmt.Errorf("reload topology: %w", err)
	}

	return nil
}

// ListSystems returns the latest snapshot of every system.
func (c *Client) ListSystems(ctx context.Context) ([]wire.System, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	result, err := c.api.ListSystems(callCtx, new(emptypb.Empty))
	if err != nil {
		return nil, fmt.Errorf("list systems: %w", err)
	}

	var listing struct {
		Systems []wire.System `json:"systems"`
	}

	if err = wire.FromStruct(result, &listing); err != nil {
		return nil, fmt.Errorf("decode systems: %w", err)
	}

	return listing.Systems, nil
}

// WatchEvents calls handle for every event until ctx is canceled, the stream
// ends or handle returns an error.
func (c *Client) WatchEvents(ctx context.Context, handle func(*wire.Event) error) error {
	stream, err := c.api.WatchEvents(ctx, new(emptypb.Empty))
	if err != nil {
		return fmt.Errorf("watch events: %w", err)
	}

	for {
		message, err := stream.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			return fmt.Errorf("receive event: %w", err)
		}

		event := new(wire.Event)
		if err = wire.FromStruct(message, event); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}

		if err = handle(event); err != nil {
			return err
		}
	}
}

// commandContext returns a call context carrying the operator identity.
func (c *Client) commandContext(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.actor == nil {
		return nil, nil, errActorRequired
	}

	callCtx, cancel := c.callContext(api.AppendActor(ctx, c.actor))

	return callCtx, cancel, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
