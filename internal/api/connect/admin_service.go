// Package connect provides Connect RPC service implementations.
package connect

import (
	"context"
	"fmt"
	"net/http"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"google.golang.org/protobuf/types/known/emptypb"

	"github.com/osa030/19mix/internal/app/mixer"
	"github.com/osa030/19mix/internal/app/notification"
	"github.com/osa030/19mix/internal/domain/mix"
	"github.com/osa030/19mix/internal/domain/playlist"
)

// AdminServiceName is the fully-qualified name of the admin service.
const AdminServiceName = "mix.v1.AdminService"

// Procedure paths of the admin service.
const (
	GetStatusProcedure      = "/" + AdminServiceName + "/GetStatus"
	ListLibraryProcedure    = "/" + AdminServiceName + "/ListLibrary"
	RefreshLibraryProcedure = "/" + AdminServiceName + "/RefreshLibrary"
	SetMixProcedure         = "/" + AdminServiceName + "/SetMix"
	ClearMixProcedure       = "/" + AdminServiceName + "/ClearMix"
	TickNowProcedure        = "/" + AdminServiceName + "/TickNow"
	WatchEventsProcedure    = "/" + AdminServiceName + "/WatchEvents"
)

// Mixer is the scheduler as seen by the admin service.
type Mixer interface {
	Status() mixer.Status
	SetActiveSources(sources []mix.Source) error
	Tick(ctx context.Context) (mixer.Result, error)
}

// Library is the library cache as seen by the admin service.
type Library interface {
	Get(id string) (playlist.Playlist, bool)
	Entries() []playlist.Playlist
	Len() int
	Refresh(ctx context.Context) (map[string]playlist.Playlist, error)
}

// Notifier delivers mixer events to watchers.
type Notifier interface {
	Subscribe(stream notification.Stream) string
	Unsubscribe(subscriptionID string)
	Publish(event notification.Event)
}

// AdminService implements the operator RPCs.
type AdminService struct {
	mixer     Mixer
	library   Library
	notifier  Notifier
	done      <-chan struct{}
	refreshed func(total int)
}

// AdminOption configures an AdminService.
type AdminOption func(*AdminService)

// WithDone ends event streams when done is closed.
func WithDone(done <-chan struct{}) AdminOption {
	return func(s *AdminService) { s.done = done }
}

// WithRefreshHook is called with the library size after every refresh.
func WithRefreshHook(fn func(total int)) AdminOption {
	return func(s *AdminService) { s.refreshed = fn }
}

// NewAdminService creates a new AdminService.
func NewAdminService(m Mixer, lib Library, notifier Notifier, opts ...AdminOption) *AdminService {
	s := &AdminService{
		mixer:     m,
		library:   lib,
		notifier:  notifier,
		refreshed: func(int) {},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the HTTP handler serving every admin procedure.
// The returned path is the prefix to mount it on.
func (s *AdminService) Handler(opts ...connect.HandlerOption) (string, http.Handler) {
	opts = append([]connect.HandlerOption{connect.WithCodec(jsonCodec{})}, opts...)

	mux := http.NewServeMux()
	mux.Handle(GetStatusProcedure, connect.NewUnaryHandler(GetStatusProcedure, s.GetStatus, opts...))
	mux.Handle(ListLibraryProcedure, connect.NewUnaryHandler(ListLibraryProcedure, s.ListLibrary, opts...))
	mux.Handle(RefreshLibraryProcedure, connect.NewUnaryHandler(RefreshLibraryProcedure, s.RefreshLibrary, opts...))
	mux.Handle(SetMixProcedure, connect.NewUnaryHandler(SetMixProcedure, s.SetMix, opts...))
	mux.Handle(ClearMixProcedure, connect.NewUnaryHandler(ClearMixProcedure, s.ClearMix, opts...))
	mux.Handle(TickNowProcedure, connect.NewUnaryHandler(TickNowProcedure, s.TickNow, opts...))
	mux.Handle(WatchEventsProcedure, connect.NewServerStreamHandler(WatchEventsProcedure, s.WatchEvents, opts...))
	return "/" + AdminServiceName + "/", mux
}

// GetStatus returns the scheduler snapshot.
func (s *AdminService) GetStatus(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[GetStatusResponse], error) {
	st := s.mixer.Status()

	resp := &GetStatusResponse{
		SessionID:   st.SessionID,
		StartedAt:   st.StartedAt,
		Enabled:     st.Enabled,
		Ticking:     st.Ticking,
		TotalPlayed: st.TotalPlayed,
		IntervalSec: st.Interval.Seconds(),
		LastOutcome: string(st.LastOutcome),
		LibrarySize: s.library.Len(),
		Sources:     make([]SourceInfo, 0, len(st.Sources)),
	}
	if !st.LastTickAt.IsZero() {
		at := st.LastTickAt
		resp.LastTickAt = &at
	}
	for _, src := range st.Sources {
		resp.Sources = append(resp.Sources, SourceInfo{
			PlaylistID:  src.ID,
			Name:        src.Name,
			Weight:      src.Weight,
			PlayCount:   src.PlayCount,
			Score:       src.Score,
			TargetShare: src.TargetShare,
			ActualShare: src.ActualShare,
		})
	}
	return connect.NewResponse(resp), nil
}

// ListLibrary lists the cached playlists, marking the ones in the mix.
func (s *AdminService) ListLibrary(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[ListLibraryResponse], error) {
	active := make(map[string]bool)
	for _, src := range s.mixer.Status().Sources {
		active[src.ID] = true
	}

	entries := s.library.Entries()
	infos := make([]PlaylistInfo, len(entries))
	for i, p := range entries {
		infos[i] = PlaylistInfo{
			PlaylistID: p.ID,
			Name:       p.Name,
			URL:        p.URL(),
			TrackCount: p.TrackCount(),
			Active:     active[p.ID],
		}
	}
	return connect.NewResponse(&ListLibraryResponse{Playlists: infos}), nil
}

// RefreshLibrary fetches playlists not cached yet.
// A partial refresh is reported in the message, not as an RPC error.
func (s *AdminService) RefreshLibrary(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[RefreshLibraryResponse], error) {
	before := s.library.Len()
	entries, err := s.library.Refresh(ctx)
	resp := &RefreshLibraryResponse{
		Added: len(entries) - before,
		Total: len(entries),
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, connect.NewError(connect.CodeCanceled, err)
		}
		resp.Message = err.Error()
	}
	s.refreshed(resp.Total)

	s.notifier.Publish(notification.Event{
		Type:    notification.EventLibraryRefreshed,
		Message: refreshMessage(resp),
	})
	return connect.NewResponse(resp), nil
}

// SetMix replaces the mix. Every playlist must be in the library.
func (s *AdminService) SetMix(
	ctx context.Context,
	req *connect.Request[SetMixRequest],
) (*connect.Response[SetMixResponse], error) {
	sources := make([]mix.Source, 0, len(req.Msg.Sources))
	for _, sw := range req.Msg.Sources {
		src, err := mix.NewSource(sw.PlaylistID, sw.Weight)
		if err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
		if _, ok := s.library.Get(src.ID); !ok {
			return nil, connect.NewError(connect.CodeInvalidArgument,
				errors.Newf("playlist %s is not in the library", src.ID))
		}
		sources = append(sources, src)
	}
	return s.install(sources)
}

// ClearMix removes every source, disabling the scheduler.
func (s *AdminService) ClearMix(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[SetMixResponse], error) {
	return s.install(nil)
}

func (s *AdminService) install(sources []mix.Source) (*connect.Response[SetMixResponse], error) {
	if err := s.mixer.SetActiveSources(sources); err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	st := s.mixer.Status()
	zlog.Info().Msgf("admin: mix set: session_id=%s sources=%d", st.SessionID, len(st.Sources))
	return connect.NewResponse(&SetMixResponse{
		SessionID: st.SessionID,
		Sources:   len(st.Sources),
	}), nil
}

// TickNow runs a tick immediately. Tick failures are reported in the
// response so that the outcome is always visible.
func (s *AdminService) TickNow(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[TickNowResponse], error) {
	result, err := s.mixer.Tick(ctx)
	if err != nil && ctx.Err() != nil {
		return nil, connect.NewError(connect.CodeCanceled, err)
	}
	return connect.NewResponse(toTickNowResponse(result, err)), nil
}

// WatchEvents streams mixer events until the client disconnects.
func (s *AdminService) WatchEvents(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
	stream *connect.ServerStream[notification.Event],
) error {
	subscriptionID := s.notifier.Subscribe(&eventStreamAdapter{stream: stream})
	defer s.notifier.Unsubscribe(subscriptionID)
	zlog.Debug().Msgf("admin: watcher subscribed: subscription_id=%s", subscriptionID)

	select {
	case <-ctx.Done():
	case <-s.done:
	}
	return nil
}

// eventStreamAdapter adapts connect.ServerStream to notification.Stream.
type eventStreamAdapter struct {
	stream *connect.ServerStream[notification.Event]
}

func (a *eventStreamAdapter) Send(event *notification.Event) error {
	return a.stream.Send(event)
}

func refreshMessage(r *RefreshLibraryResponse) string {
	msg := fmt.Sprintf("added=%d total=%d", r.Added, r.Total)
	if r.Message != "" {
		msg += " error=" + r.Message
	}
	return msg
}
