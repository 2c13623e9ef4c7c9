package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/19mix/internal/app/notification"
)

// AdminClient calls the admin service with an admin token.
type AdminClient struct {
	token string

	getStatus      *connect.Client[emptypb.Empty, GetStatusResponse]
	listLibrary    *connect.Client[emptypb.Empty, ListLibraryResponse]
	refreshLibrary *connect.Client[emptypb.Empty, RefreshLibraryResponse]
	setMix         *connect.Client[SetMixRequest, SetMixResponse]
	clearMix       *connect.Client[emptypb.Empty, SetMixResponse]
	tickNow        *connect.Client[emptypb.Empty, TickNowResponse]
	watchEvents    *connect.Client[emptypb.Empty, notification.Event]
}

// NewAdminClient creates a client for the server at baseURL.
func NewAdminClient(httpClient connect.HTTPClient, baseURL, token string, opts ...connect.ClientOption) *AdminClient {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(jsonCodec{})}, opts...)
	return &AdminClient{
		token:          token,
		getStatus:      connect.NewClient[emptypb.Empty, GetStatusResponse](httpClient, baseURL+GetStatusProcedure, opts...),
		listLibrary:    connect.NewClient[emptypb.Empty, ListLibraryResponse](httpClient, baseURL+ListLibraryProcedure, opts...),
		refreshLibrary: connect.NewClient[emptypb.Empty, RefreshLibraryResponse](httpClient, baseURL+RefreshLibraryProcedure, opts...),
		setMix:         connect.NewClient[SetMixRequest, SetMixResponse](httpClient, baseURL+SetMixProcedure, opts...),
		clearMix:       connect.NewClient[emptypb.Empty, SetMixResponse](httpClient, baseURL+ClearMixProcedure, opts...),
		tickNow:        connect.NewClient[emptypb.Empty, TickNowResponse](httpClient, baseURL+TickNowProcedure, opts...),
		watchEvents:    connect.NewClient[emptypb.Empty, notification.Event](httpClient, baseURL+WatchEventsProcedure, opts...),
	}
}

func newRequest[T any](msg *T, token string) *connect.Request[T] {
	req := connect.NewRequest(msg)
	req.Header().Set(AdminTokenHeader, token)
	return req
}

// GetStatus returns the scheduler snapshot.
func (c *AdminClient) GetStatus(ctx context.Context) (*GetStatusResponse, error) {
	resp, err := c.getStatus.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ListLibrary lists the cached playlists.
func (c *AdminClient) ListLibrary(ctx context.Context) (*ListLibraryResponse, error) {
	resp, err := c.listLibrary.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// RefreshLibrary fetches playlists not cached yet.
func (c *AdminClient) RefreshLibrary(ctx context.Context) (*RefreshLibraryResponse, error) {
	resp, err := c.refreshLibrary.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// SetMix replaces the mix.
func (c *AdminClient) SetMix(ctx context.Context, sources []SourceWeight) (*SetMixResponse, error) {
	resp, err := c.setMix.CallUnary(ctx, newRequest(&SetMixRequest{Sources: sources}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// ClearMix disables the scheduler.
func (c *AdminClient) ClearMix(ctx context.Context) (*SetMixResponse, error) {
	resp, err := c.clearMix.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// TickNow runs a tick immediately.
func (c *AdminClient) TickNow(ctx context.Context) (*TickNowResponse, error) {
	resp, err := c.tickNow.CallUnary(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return nil, err
	}
	return resp.Msg, nil
}

// WatchEvents calls fn for every event until ctx is done or the server
// closes the stream.
func (c *AdminClient) WatchEvents(ctx context.Context, fn func(*notification.Event)) error {
	stream, err := c.watchEvents.CallServerStream(ctx, newRequest(&emptypb.Empty{}, c.token))
	if err != nil {
		return err
	}
	defer stream.Close()

	for stream.Receive() {
		fn(stream.Msg())
	}
	return stream.Err()
}
