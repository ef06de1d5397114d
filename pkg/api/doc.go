// Package api wires the narrow slice of gRPC transport concerns this
// module actually owns: mapping pkg/auth's InvalidCommand to a
// gRPC status (done on the error type itself, see pkg/auth/errors.go's
// GRPCStatus method) and a read-only-method interceptor for listener
// sockets that should never accept a mutating auth request.
//
// The full service definition — wire messages, generated stubs, and
// mTLS server setup — is out of scope here: no .proto file or
// generated stub package exists for this service, and RPC
// framing/transport is handled by whatever deployment fronts it.
package api
