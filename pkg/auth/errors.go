package auth

import (
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// InvalidCommand is the single error kind surfaced to clients for
// every validation failure: user/role not found or already exists,
// auth disabled, root constraints violated, permission not granted,
// token errors. It implements GRPCStatus so the narrow grpc/status
// surface wired in pkg/api can map it directly to codes.InvalidArgument
// without every caller needing its own switch over error types.
type InvalidCommand struct {
	Message string
}

func (e *InvalidCommand) Error() string {
	return e.Message
}

// GRPCStatus implements the interface google.golang.org/grpc/status
// looks for when converting an error returned from a handler.
func (e *InvalidCommand) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Message)
}

func invalidCommand(format string, args ...interface{}) error {
	return &InvalidCommand{Message: fmt.Sprintf(format, args...)}
}
