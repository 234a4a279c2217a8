// Package monitor implements the gRPC transport of the PLC monitor.
//
// The service is described by hand on top of protobuf well-known types:
// string arguments travel as StringValue, listings and events as Struct
// documents in the shape defined by package wire. The operator identity is
// carried in request metadata.
package monitor
