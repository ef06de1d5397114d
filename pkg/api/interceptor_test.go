package api

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestIsReadOnlyMethod(t *testing.T) {
	tests := []struct {
		method string
		want   bool
	}{
		{"/keystone.AuthAPI/AuthStatus", true},
		{"/keystone.AuthAPI/UserGet", true},
		{"/keystone.AuthAPI/UserList", true},
		{"/keystone.AuthAPI/RoleGet", true},
		{"/keystone.AuthAPI/RoleList", true},
		{"/keystone.AuthAPI/UserAdd", false},
		{"/keystone.AuthAPI/AuthEnable", false},
		{"malformed", false},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			assert.Equal(t, tt.want, isReadOnlyMethod(tt.method))
		})
	}
}

func TestReadOnlyInterceptorBlocksWrites(t *testing.T) {
	interceptor := ReadOnlyInterceptor()
	handlerCalled := false
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		handlerCalled = true
		return "ok", nil
	}

	_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/keystone.AuthAPI/UserAdd"}, handler)
	assert.Error(t, err)
	assert.False(t, handlerCalled)
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}

func TestReadOnlyInterceptorAllowsReads(t *testing.T) {
	interceptor := ReadOnlyInterceptor()
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return "ok", nil
	}

	resp, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: "/keystone.AuthAPI/AuthStatus"}, handler)
	assert.NoError(t, err)
	assert.Equal(t, "ok", resp)
}
