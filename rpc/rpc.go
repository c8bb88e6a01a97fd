package rpc

import (
	"errors"
	"net"
	"net/rpc"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/logger"
	"github.com/wfunc/playerhook/services"
	"github.com/wfunc/playerhook/session"
)

// ServiceName is the name GameService is registered under.
const ServiceName = "GameService"

// Server manages the RPC listener.
type Server struct {
	listener net.Listener
	address  string
	server   *rpc.Server
}

// NewServer listens on addr and serves a GameService backed by sessions.
func NewServer(addr string, sessions *services.SessionService) (*Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName(ServiceName, NewGameService(sessions)); err != nil {
		return nil, err
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: listener,
		address:  addr,
		server:   server,
	}, nil
}

// Addr returns the bound address, useful when listening on port 0.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Start accepts connections until the listener is closed.
func (s *Server) Start() {
	logger.Log.Infof("RPC server listening on %s", s.listener.Addr())
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				logger.Log.Info("RPC server listener closed.")
				return
			}
			logger.Log.Errorf("RPC server accept error: %v", err)
			continue
		}
		go s.server.ServeConn(conn)
	}
}

// Stop closes the RPC listener.
func (s *Server) Stop() {
	if s.listener != nil {
		logger.Log.Info("Stopping RPC server.")
		s.listener.Close()
	}
}

// GameService exposes session operations over net/rpc.
type GameService struct {
	sessions *services.SessionService
}

func NewGameService(sessions *services.SessionService) *GameService {
	return &GameService{sessions: sessions}
}

type CreateArgs struct {
	Rules string
	Title string
}

type SessionReply struct {
	ID     string
	Record session.Record
}

type JoinArgs struct {
	ID     string
	Player game.Player
	Hook   string
}

type SessionArgs struct {
	ID     string
	Viewer string
}

type PlayArgs struct {
	ID        string
	Placement session.PlacementRecord
}

type PlayReply struct {
	Move session.MoveRecord
}

// Create opens a session and replies with its id and public record.
func (gs *GameService) Create(args *CreateArgs, reply *SessionReply) error {
	sess, err := gs.sessions.Create(gs.sessions.Context(), args.Rules, args.Title)
	if err != nil {
		return err
	}
	reply.ID = gs.sessions.IDOf(sess.URL())
	reply.Record = sess.Snapshot().Record(session.Public, "")
	return nil
}

// Join seats the player and replies with its protected view.
func (gs *GameService) Join(args *JoinArgs, reply *SessionReply) error {
	if err := gs.sessions.Join(args.ID, args.Player, args.Hook); err != nil {
		return err
	}
	return gs.Snapshot(&SessionArgs{ID: args.ID, Viewer: args.Player.Username}, reply)
}

func (gs *GameService) Start(args *SessionArgs, reply *SessionReply) error {
	if err := gs.sessions.Start(args.ID); err != nil {
		return err
	}
	return gs.Snapshot(args, reply)
}

func (gs *GameService) Play(args *PlayArgs, reply *PlayReply) error {
	move, err := gs.sessions.Play(args.ID, args.Placement.Placement())
	if err != nil {
		return err
	}
	reply.Move = session.MoveRecordOf(move)
	return nil
}

// Snapshot replies with the protected view of Viewer, or the public view
// without one.
func (gs *GameService) Snapshot(args *SessionArgs, reply *SessionReply) error {
	snap, err := gs.sessions.Snapshot(gs.sessions.Context(), args.ID)
	if err != nil {
		return err
	}
	level := session.Public
	if args.Viewer != "" {
		level = session.Protected
	}
	reply.ID = args.ID
	reply.Record = snap.Record(level, args.Viewer)
	return nil
}

// Client calls a remote GameService.
type Client struct {
	client *rpc.Client
}

func Dial(addr string) (*Client, error) {
	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{client: client}, nil
}

func (c *Client) Create(rules, title string) (SessionReply, error) {
	var reply SessionReply
	err := c.client.Call(ServiceName+".Create", &CreateArgs{Rules: rules, Title: title}, &reply)
	return reply, err
}

func (c *Client) Join(id string, player game.Player, hook string) (SessionReply, error) {
	var reply SessionReply
	err := c.client.Call(ServiceName+".Join", &JoinArgs{ID: id, Player: player, Hook: hook}, &reply)
	return reply, err
}

func (c *Client) Start(id string) (SessionReply, error) {
	var reply SessionReply
	err := c.client.Call(ServiceName+".Start", &SessionArgs{ID: id}, &reply)
	return reply, err
}

func (c *Client) Play(id string, p game.Placement) (session.MoveRecord, error) {
	var reply PlayReply
	err := c.client.Call(ServiceName+".Play", &PlayArgs{ID: id, Placement: session.PlacementRecordOf(p)}, &reply)
	return reply.Move, err
}

func (c *Client) Snapshot(id, viewer string) (SessionReply, error) {
	var reply SessionReply
	err := c.client.Call(ServiceName+".Snapshot", &SessionArgs{ID: id, Viewer: viewer}, &reply)
	return reply, err
}

func (c *Client) Close() error {
	return c.client.Close()
}
