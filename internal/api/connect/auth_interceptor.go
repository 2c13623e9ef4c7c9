package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
)

const (
	// AdminTokenHeader is the header name for admin authentication token.
	AdminTokenHeader = "X-Admin-Token"
)

// adminAuthInterceptor validates the admin token of every unary and
// streaming call handled by the admin service.
type adminAuthInterceptor struct {
	token string
}

// NewAdminAuthInterceptor creates an interceptor that validates admin tokens
// from request headers.
func NewAdminAuthInterceptor(token string) connect.Interceptor {
	return &adminAuthInterceptor{token: token}
}

func (i *adminAuthInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if req.Spec().IsClient {
			return next(ctx, req)
		}
		if err := i.check(req.Header().Get(AdminTokenHeader)); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *adminAuthInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *adminAuthInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(AdminTokenHeader)); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *adminAuthInterceptor) check(token string) error {
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(i.token)) != 1 {
		return connect.NewError(connect.CodeUnauthenticated, nil)
	}
	return nil
}
