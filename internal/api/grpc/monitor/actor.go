package monitor

import (
	"context"

	"google.golang.org/grpc/metadata"

	"github.com/oshokin/plc-monitor/internal/domain/plc"
)

// Metadata keys carrying the operator identity.
const (
	HostnameMetadataKey = "x-actor-hostname"
	UsernameMetadataKey = "x-actor-username"
)

// AppendActor attaches actor to the outgoing request metadata.
func AppendActor(ctx context.Context, actor *plc.Actor) context.Context {
	if actor == nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx,
		HostnameMetadataKey, actor.Hostname,
		UsernameMetadataKey, actor.Username)
}

// ActorFromContext extracts the operator identity from incoming metadata.
// It returns nil when either part is missing.
func ActorFromContext(ctx context.Context) *plc.Actor {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}

	hostname := first(md.Get(HostnameMetadataKey))
	username := first(md.Get(UsernameMetadataKey))

	if hostname == "" || username == "" {
		return nil
	}

	return &plc.Actor{
		Hostname: hostname,
		Username: username,
	}
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}

	return values[0]
}
