// Package client talks to the GophNotes relay server.
//
// Client is the transport-agnostic contract the sync engine uses; GRPCClient
// implements it over gRPC. The unary interceptor attaches the access token
// from a TokenSource and, when the server answers "token expired", refreshes
// once through the token source and replays the call. gRPC status codes are
// mapped to sentinel errors (ErrUnauthorized, ErrUnavailable,
// common.ErrInvalidGrant) so callers can use errors.Is.
package client
