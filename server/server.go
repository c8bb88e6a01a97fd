package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/wfunc/playerhook/broadcast"
	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/monitor"
	"github.com/wfunc/playerhook/network"
	"github.com/wfunc/playerhook/persistence"
	playerhook_rpc "github.com/wfunc/playerhook/rpc"
	"github.com/wfunc/playerhook/services"
	"github.com/wfunc/playerhook/session"
	"github.com/wfunc/playerhook/webhook"
)

var (
	errBadRequest  = errors.New("malformed request")
	errForbidden   = errors.New("stream cannot act for this player")
	errStreamEnded = errors.New("session stream ended")
)

const shutdownTimeout = 5 * time.Second

// Server exposes a SessionService over HTTP, websocket streams and,
// optionally, net/rpc.
type Server struct {
	addr      string
	service   *services.SessionService
	monitor   *monitor.Monitor
	rpcServer *playerhook_rpc.Server
	mcp       *mcpserver.MCPServer
	router    *mux.Router
	upgrader  websocket.Upgrader
	streams   *StreamManager
	limiters  *limiters
	heartbeat time.Duration
	http      *http.Server
}

type Option func(*Server)

func WithRPC(rpcServer *playerhook_rpc.Server) Option {
	return func(s *Server) { s.rpcServer = rpcServer }
}

// WithMCP serves the MCP tools as JSON-RPC over POST /mcp.
func WithMCP(mcp *mcpserver.MCPServer) Option {
	return func(s *Server) { s.mcp = mcp }
}

// WithHeartbeat closes streams that stay silent for twice the interval.
func WithHeartbeat(interval time.Duration) Option {
	return func(s *Server) { s.heartbeat = interval }
}

// WithPlacementRate limits the placements a single client address may
// submit over HTTP. A non-positive rate disables the limit.
func WithPlacementRate(perSecond float64, burst int) Option {
	return func(s *Server) {
		if perSecond > 0 {
			s.limiters = newLimiters(rate.Limit(perSecond), burst)
		}
	}
}

func NewServer(addr string, service *services.SessionService, mon *monitor.Monitor, opts ...Option) *Server {
	s := &Server{
		addr:    addr,
		service: service,
		monitor: mon,
		streams: NewStreamManager(mon),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	s.http = &http.Server{Addr: addr, Handler: s.router}
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.observe)

	r.HandleFunc("/rules", s.handleListRules).Methods("GET")
	r.HandleFunc("/sessions", s.handleCreateSession).Methods("POST")
	r.HandleFunc("/sessions", s.handleListSessions).Methods("GET")
	r.HandleFunc("/sessions/{id}", s.handleGetSession).Methods("GET")
	r.HandleFunc("/sessions/{id}/players", s.handleJoin).Methods("POST")
	r.HandleFunc("/sessions/{id}/hooks", s.handleAddHook).Methods("POST")
	r.HandleFunc("/sessions/{id}/hooks", s.handleListHooks).Methods("GET")
	r.HandleFunc("/sessions/{id}/start", s.lifecycle(s.service.Start)).Methods("POST")
	r.HandleFunc("/sessions/{id}/suspend", s.lifecycle(s.service.Suspend)).Methods("POST")
	r.HandleFunc("/sessions/{id}/resume", s.lifecycle(s.service.Resume)).Methods("POST")
	r.HandleFunc("/sessions/{id}/sign", s.handleSign).Methods("POST")
	r.HandleFunc("/sessions/{id}/key", s.handleKey).Methods("GET")
	r.HandleFunc("/sessions/{id}"+webhook.PlacementsPath, s.limit(s.handlePlacement)).Methods("POST")
	r.HandleFunc("/sessions/{id}/results", s.handleResults).Methods("GET")
	r.HandleFunc("/sessions/{id}/ws", s.handleStream).Methods("GET")
	r.HandleFunc("/sessions/{id}/streams", s.handleListStreams).Methods("GET")
	r.HandleFunc("/sync", s.handleSync).Methods("POST")

	if s.mcp != nil {
		r.HandleFunc("/mcp", s.handleMCP).Methods("POST")
	}
	r.Handle("/metrics", s.monitor.Handler())
	r.Handle("/debug/vars", s.monitor.VarsHandler())
	return r
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Streams() *StreamManager {
	return s.streams
}

// Start serves HTTP, and RPC when configured, until ctx is cancelled or a
// listener fails.
func (s *Server) Start(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Log.Infof("Session server listening on %s", s.addr)
		if err := s.http.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if s.rpcServer != nil {
		g.Go(func() error {
			s.rpcServer.Start()
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return s.Shutdown()
	})
	return g.Wait()
}

// Shutdown closes every stream and stops the listeners.
func (s *Server) Shutdown() error {
	s.streams.CloseAll()
	if s.rpcServer != nil {
		s.rpcServer.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		s.monitor.ObserveRequest(r.Method+" "+route, time.Since(start))
	})
}

func (s *Server) limit(next http.HandlerFunc) http.HandlerFunc {
	if s.limiters == nil {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiters.allow(clientAddr(r)) {
			respondJSON(w, http.StatusTooManyRequests, map[string]string{"error": "too many placements"})
			return
		}
		next(w, r)
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusOf(err), map[string]string{"error": err.Error()})
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, persistence.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrAlreadyJoined),
		errors.Is(err, session.ErrNoSeatsAvailable),
		errors.Is(err, session.ErrAlreadyStarted),
		errors.Is(err, session.ErrNotEnoughPlayers),
		errors.Is(err, session.ErrNotInProgress),
		errors.Is(err, session.ErrNotSuspended),
		errors.Is(err, session.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, errBadRequest),
		errors.Is(err, session.ErrMalformedRecord),
		errors.Is(err, services.ErrUnknownRules),
		errors.Is(err, services.ErrInvalidHook),
		errors.Is(err, game.ErrUnknownPlayer),
		errors.Is(err, game.ErrOutOfBounds),
		errors.Is(err, game.ErrPositionOccupied):
		return http.StatusBadRequest
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, game.ErrUnsupported):
		return http.StatusNotImplemented
	}
	return http.StatusInternalServerError
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

// privacyFor shows a named viewer its own secrets and everyone else the
// public view.
func privacyFor(viewer string) session.Privacy {
	if viewer != "" {
		return session.Protected
	}
	return session.Public
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Session Handlers

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"rules": s.service.Rules()})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rules string `json:"rules"`
		Title string `json:"title,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}

	sess, err := s.service.Create(r.Context(), req.Rules, req.Title)
	if err != nil {
		respondError(w, err)
		return
	}
	w.Header().Set("Location", sess.URL())
	respondJSON(w, http.StatusCreated, sess.Snapshot().Record(session.Public, ""))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.service.List()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	viewer := r.URL.Query().Get("u")
	respondJSON(w, http.StatusOK, snap.Record(privacyFor(viewer), viewer))
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var req struct {
		game.Player
		Hook string `json:"hook,omitempty"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if req.Username == "" {
		respondError(w, fmt.Errorf("%w: username is required", errBadRequest))
		return
	}

	if err := s.service.Join(id, req.Player, req.Hook); err != nil {
		respondError(w, err)
		return
	}
	sess, err := s.service.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sess.Snapshot().Record(session.Protected, req.Username))
}

func (s *Server) handleAddHook(w http.ResponseWriter, r *http.Request) {
	var hook webhook.Hook
	if err := decode(r, &hook); err != nil {
		respondError(w, err)
		return
	}
	if err := s.service.AddHook(mux.Vars(r)["id"], hook); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, hook)
}

func (s *Server) handleListHooks(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := s.service.Get(id); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string][]webhook.Hook{"hooks": s.service.Hooks(id)})
}

// lifecycle adapts a status transition of the service to a handler that
// answers with the public record.
func (s *Server) lifecycle(op func(id string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := op(id); err != nil {
			respondError(w, err)
			return
		}
		sess, err := s.service.Get(id)
		if err != nil {
			respondError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, sess.Snapshot().Record(session.Public, ""))
	}
}

func (s *Server) handleSign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Secret string `json:"secret"`
	}
	if err := decode(r, &req); err != nil {
		respondError(w, err)
		return
	}
	if err := s.service.Sign(mux.Vars(r)["id"], req.Secret); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, session.Acknowledgement{Acknowledged: true})
}

func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("u")
	if username == "" {
		respondError(w, fmt.Errorf("%w: query parameter u is required", errBadRequest))
		return
	}
	key, err := s.service.Key(mux.Vars(r)["id"], username)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"key": key})
}

// placementReply acknowledges a placement and reports how it was judged.
type placementReply struct {
	session.Acknowledgement
	Move session.MoveRecord `json:"move"`
}

func (s *Server) handlePlacement(w http.ResponseWriter, r *http.Request) {
	var rec session.PlacementRecord
	if err := decode(r, &rec); err != nil {
		respondError(w, err)
		return
	}
	move, err := s.service.Play(mux.Vars(r)["id"], rec.Placement())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, placementReply{
		Acknowledgement: session.Acknowledgement{Acknowledged: true},
		Move:            session.MoveRecordOf(move),
	})
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	results, err := s.service.Results(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

// handleSync accepts an update pushed by the authority of a session this
// node mirrors.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	var rec session.UpdateRecord
	if err := decode(r, &rec); err != nil {
		respondError(w, err)
		return
	}
	applied, err := s.service.Sync(rec.Session)
	if err != nil {
		respondError(w, err)
		return
	}
	logger.Log.Debugf("Sync of %s version %d applied: %v", rec.Session.URL, rec.Session.Version, applied)
	respondJSON(w, http.StatusOK, session.Acknowledgement{Acknowledged: true})
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}
	respondJSON(w, http.StatusOK, s.mcp.HandleMessage(r.Context(), body))
}

// Stream Handlers

// handleStream follows a session over a websocket. The stream opens with a
// MsgTypeSnapshot frame, then carries one MsgTypeUpdate per change and a
// final MsgTypeEnd. Placements sent by the client are answered with
// MsgTypeMove or MsgTypeError.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.service.Get(id)
	if err != nil {
		respondError(w, err)
		return
	}
	viewer := r.URL.Query().Get("u")
	level := privacyFor(viewer)

	sub := sess.Subscribe()
	defer sub.Close()
	initial := sess.Snapshot()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Log.Infof("Failed to upgrade connection: %v", err)
		return
	}
	wsConn := network.NewWSConnection(conn)
	if s.heartbeat > 0 {
		wsConn.SetHeartbeat(s.heartbeat)
	}
	stream := NewStream(sess.URL(), viewer, wsConn)
	s.streams.Add(stream)
	logger.Log.Infof("Stream %s opened from %s on %s", stream.ID, wsConn.RemoteAddr(), stream.SessionURL)

	defer func() {
		logger.Log.Infof("Stream %s closed from %s", stream.ID, wsConn.RemoteAddr())
		s.streams.Remove(stream.ID)
		wsConn.Close()
	}()

	if err := wsConn.SendJSON(network.MsgTypeSnapshot, initial.Record(level, viewer)); err != nil {
		return
	}

	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		return writeUpdates(ctx, stream, sub, initial, level)
	})
	g.Go(func() error {
		return s.readPackets(id, stream)
	})
	g.Go(func() error {
		<-ctx.Done()
		return wsConn.Close()
	})
	if err := g.Wait(); err != nil && !errors.Is(err, errStreamEnded) {
		logger.Log.Debugf("Stream %s: %v", stream.ID, err)
	}
}

// writeUpdates forwards updates newer than initial until the session's
// stream completes.
func writeUpdates(ctx context.Context, stream *Stream, sub *broadcast.Subscription[session.Update], initial *session.Snapshot, level session.Privacy) error {
	last := initial
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-sub.Updates():
			if !ok {
				end := network.EndMessage{Status: last.Status().String()}
				if err := sub.Err(); err != nil {
					end.Error = err.Error()
				}
				if err := stream.Conn.SendJSON(network.MsgTypeEnd, end); err != nil {
					return err
				}
				return errStreamEnded
			}
			if u.Snapshot.Version() <= initial.Version() {
				continue
			}
			last = u.Snapshot
			if err := stream.Conn.SendJSON(network.MsgTypeUpdate, u.Record(level, stream.Viewer)); err != nil {
				return err
			}
		}
	}
}

func (s *Server) readPackets(id string, stream *Stream) error {
	for {
		packet, err := stream.Conn.ReadPacket()
		if err != nil {
			return err
		}
		stream.Touch()

		switch packet.MsgID {
		case network.MsgTypeHeartbeat:
			if err := stream.Conn.Send(network.MsgTypeHeartbeat, nil); err != nil {
				return err
			}
		case network.MsgTypePlacement:
			if err := s.handlePlacementPacket(id, stream, packet); err != nil {
				return err
			}
		default:
			logger.Log.Infof("Unknown message type: %d", packet.MsgID)
		}
	}
}

// handlePlacementPacket plays a placement received on a stream. Failures
// of the placement itself are reported to the client; only a failed send
// ends the stream.
func (s *Server) handlePlacementPacket(id string, stream *Stream, packet *network.Packet) error {
	var rec session.PlacementRecord
	if err := packet.Decode(&rec); err != nil {
		return sendError(stream, fmt.Errorf("%w: %v", errBadRequest, err))
	}
	if stream.Viewer == "" || rec.Player.Username != stream.Viewer {
		return sendError(stream, fmt.Errorf("%w: %s", errForbidden, rec.Player.Username))
	}
	move, err := s.service.Play(id, rec.Placement())
	if err != nil {
		return sendError(stream, err)
	}
	return stream.Conn.SendJSON(network.MsgTypeMove, session.MoveRecordOf(move))
}

func sendError(stream *Stream, err error) error {
	return stream.Conn.SendJSON(network.MsgTypeError, network.ErrorMessage{Error: err.Error()})
}

// streamInfo describes an open stream of a session.
type streamInfo struct {
	ID       string    `json:"id"`
	Viewer   string    `json:"viewer,omitempty"`
	OpenedAt time.Time `json:"openedAt"`
	IdleMs   int64     `json:"idleMs"`
}

func (s *Server) handleListStreams(w http.ResponseWriter, r *http.Request) {
	sess, err := s.service.Get(mux.Vars(r)["id"])
	if err != nil {
		respondError(w, err)
		return
	}
	infos := []streamInfo{}
	for _, stream := range s.streams.BySession(sess.URL()) {
		infos = append(infos, streamInfo{
			ID:       stream.ID,
			Viewer:   stream.Viewer,
			OpenedAt: stream.OpenedAt,
			IdleMs:   stream.Idle().Milliseconds(),
		})
	}
	respondJSON(w, http.StatusOK, map[string][]streamInfo{"streams": infos})
}

// limiters hands out one token bucket per client address.
type limiters struct {
	limit   rate.Limit
	burst   int
	clients map[string]*rate.Limiter
	mutex   sync.Mutex
}

func newLimiters(limit rate.Limit, burst int) *limiters {
	if burst < 1 {
		burst = 1
	}
	return &limiters{
		limit:   limit,
		burst:   burst,
		clients: make(map[string]*rate.Limiter),
	}
}

func (l *limiters) allow(client string) bool {
	l.mutex.Lock()
	limiter, ok := l.clients[client]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.clients[client] = limiter
	}
	l.mutex.Unlock()
	return limiter.Allow()
}
