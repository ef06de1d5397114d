package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ReadOnlyInterceptor creates a gRPC unary interceptor that only
// allows read-only auth operations (AuthStatus, UserGet, UserList,
// RoleGet, RoleList). It protects a local, unauthenticated listener
// from driving raft applies that should only ever be submitted over
// the authenticated path.
func ReadOnlyInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req interface{},
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (interface{}, error) {
		if !isReadOnlyMethod(info.FullMethod) {
			return nil, status.Errorf(
				codes.PermissionDenied,
				"write operations not allowed on this listener",
			)
		}
		return handler(ctx, req)
	}
}

// isReadOnlyMethod checks whether a gRPC method name corresponds to
// one of pkg/auth's read-only ops, i.e. ones whose Sync is a no-op.
func isReadOnlyMethod(method string) bool {
	parts := strings.Split(method, "/")
	if len(parts) < 2 {
		return false
	}
	methodName := parts[len(parts)-1]

	readOnlyMethods := []string{
		"AuthStatus",
		"UserGet",
		"UserList",
		"RoleGet",
		"RoleList",
	}
	for _, m := range readOnlyMethods {
		if methodName == m {
			return true
		}
	}
	return false
}
