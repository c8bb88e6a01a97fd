// Package mcp exposes sessions to Model Context Protocol agents.
//
// Tools:
//   - list_rules: rules ids sessions can be created with
//   - list_sessions: summaries of the live sessions
//   - create_session: open a session of the given rules
//   - get_session: a session record, protected for the given player
//   - join_session: seat a player
//   - start_session: start a session with enough players
//   - play: submit a drop, or a shift when a source is given
//   - get_key: the key a player signs its next placement with
//
// The server is served over stdio by the mcp command and over HTTP at
// /mcp by the session server.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/services"
	"github.com/wfunc/playerhook/session"
)

const instructions = `Turn-based board game sessions.

Create a session with create_session, seat players with join_session and
start it with start_session. Players take turns with play; a placement that
breaks the rules is answered with a violation code such as NOT_YOUR_TURN or
POSITION_ALREADY_TAKEN and the turn does not pass. Signed sessions require
the key returned by get_key on every placement.`

// Server serves the session tools.
type Server struct {
	sessions  *services.SessionService
	mcpServer *server.MCPServer
}

func NewServer(sessions *services.SessionService, version string) *Server {
	s := &Server{sessions: sessions}
	s.mcpServer = server.NewMCPServer(
		"playerhook",
		version,
		server.WithToolCapabilities(true),
		server.WithInstructions(instructions),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying server for ServeStdio or HandleMessage.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio blocks serving the tools on stdin and stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func stringProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
	}
}

func integerProp(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "integer",
		"description": description,
	}
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_rules",
		Description: "List the rules sessions can be created with",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListRules)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "list_sessions",
		Description: "List the live sessions",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}, s.handleListSessions)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "create_session",
		Description: "Create a session of the given rules",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"rules": stringProp("Rules id, see list_rules"),
				"title": stringProp("Session title (optional)"),
			},
			Required: []string{"rules"},
		},
	}, s.handleCreateSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_session",
		Description: "Get a session record. With a player, that player's secrets are included",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID"),
				"player":     stringProp("Username of the viewer (optional)"),
			},
			Required: []string{"session_id"},
		},
	}, s.handleGetSession)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "join_session",
		Description: "Seat a player in a session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":   stringProp("Session ID"),
				"player":       stringProp("Username"),
				"display_name": stringProp("Display name (optional)"),
			},
			Required: []string{"session_id", "player"},
		},
	}, s.handleJoin)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "start_session",
		Description: "Start a session once enough players are seated",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID"),
			},
			Required: []string{"session_id"},
		},
	}, s.handleStart)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "play",
		Description: "Place a token. Without a source the token is dropped from the player's deck, with one it is moved on the board",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id":    stringProp("Session ID"),
				"player":        stringProp("Username of the player placing"),
				"token":         stringProp("Token to place"),
				"row":           integerProp("Destination row"),
				"column":        integerProp("Destination column"),
				"source_row":    integerProp("Source row of a shift (optional)"),
				"source_column": integerProp("Source column of a shift (optional)"),
				"key":           stringProp("Placement key of signed sessions (optional)"),
			},
			Required: []string{"session_id", "player", "token", "row", "column"},
		},
	}, s.handlePlay)

	s.mcpServer.AddTool(mcp.Tool{
		Name:        "get_key",
		Description: "Get the key a player must attach to its next placement in a signed session",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"session_id": stringProp("Session ID"),
				"player":     stringProp("Username"),
			},
			Required: []string{"session_id", "player"},
		},
	}, s.handleKey)
}

func arguments(request mcp.CallToolRequest) map[string]interface{} {
	args, _ := request.Params.Arguments.(map[string]interface{})
	if args == nil {
		return map[string]interface{}{}
	}
	return args
}

// intArg reads a JSON number argument.
func intArg(args map[string]interface{}, name string) (int, bool) {
	v, ok := args[name].(float64)
	return int(v), ok
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// Tool handlers

func (s *Server) handleListRules(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sessions.Rules())
}

func (s *Server) handleListSessions(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.sessions.List())
}

func (s *Server) handleCreateSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	rules, _ := args["rules"].(string)
	title, _ := args["title"].(string)

	sess, err := s.sessions.Create(ctx, rules, title)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]interface{}{
		"session_id": s.sessions.IDOf(sess.URL()),
		"session":    sess.Snapshot().Record(session.Public, ""),
	})
}

func (s *Server) handleGetSession(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, _ := args["session_id"].(string)
	player, _ := args["player"].(string)

	snap, err := s.sessions.Snapshot(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	level := session.Public
	if player != "" {
		level = session.Protected
	}
	return jsonResult(snap.Record(level, player))
}

func (s *Server) handleJoin(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, _ := args["session_id"].(string)
	username, _ := args["player"].(string)
	displayName, _ := args["display_name"].(string)
	if username == "" {
		return mcp.NewToolResultError("player is required"), nil
	}

	player := game.Player{Username: username, DisplayName: displayName}
	if err := s.sessions.Join(id, player, ""); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s joined session %s", player, id)), nil
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := arguments(request)["session_id"].(string)
	if err := s.sessions.Start(id); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Session %s started", id)), nil
}

func (s *Server) handlePlay(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, _ := args["session_id"].(string)
	username, _ := args["player"].(string)
	token, _ := args["token"].(string)
	key, _ := args["key"].(string)
	row, okRow := intArg(args, "row")
	column, okColumn := intArg(args, "column")
	if !okRow || !okColumn {
		return mcp.NewToolResultError("row and column must be numbers"), nil
	}

	destination := game.Position{Row: row, Column: column}
	p := game.Drop(game.Token(token), game.NewPlayer(username), destination)
	sourceRow, okSourceRow := intArg(args, "source_row")
	sourceColumn, okSourceColumn := intArg(args, "source_column")
	if okSourceRow && okSourceColumn {
		p = game.Shift(game.Token(token), game.NewPlayer(username), game.Position{Row: sourceRow, Column: sourceColumn}, destination)
	}
	if key != "" {
		p = p.Sign(key)
	}

	move, err := s.sessions.Play(id, p)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if move.Rejected() {
		return mcp.NewToolResultText(fmt.Sprintf("Rejected with %s: %s", move.Violation.Code(), move.Violation.Message())), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Accepted: %s", p)), nil
}

func (s *Server) handleKey(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := arguments(request)
	id, _ := args["session_id"].(string)
	username, _ := args["player"].(string)

	key, err := s.sessions.Key(id, username)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if key == "" {
		return mcp.NewToolResultText("Session is not signed; no key needed"), nil
	}
	return mcp.NewToolResultText(key), nil
}
