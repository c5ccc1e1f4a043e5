// Package monitor implements the gRPC transport for the monitor service.
//
// The service descriptor is declared by hand and every message is a
// google.protobuf.Struct, so clients need no generated stubs: the method
// names and field keys exported here are the whole contract.
package monitor
