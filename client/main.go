package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand/v2"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/urfave/cli/v3"

	"github.com/wfunc/playerhook/game"
	"github.com/wfunc/playerhook/network"
	"github.com/wfunc/playerhook/session"
)

func main() {
	cmd := &cli.Command{
		Name:  "playerhook-client",
		Usage: "follow a session stream and play from the terminal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "localhost:8080", Usage: "host:port of the session server"},
			&cli.StringFlag{Name: "session", Required: true, Usage: "session id"},
			&cli.StringFlag{Name: "user", Usage: "username to play as; empty watches the public view"},
			&cli.BoolFlag{Name: "bot", Usage: "play a random legal-looking placement whenever it is our turn"},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	user := cmd.String("user")
	u := url.URL{
		Scheme:   "ws",
		Host:     cmd.String("server"),
		Path:     "/sessions/" + cmd.String("session") + "/ws",
		RawQuery: url.Values{"u": {user}}.Encode(),
	}
	log.Printf("Connecting to %s", u.String())

	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	defer c.Close()

	p := &player{conn: c, user: user, bot: cmd.Bool("bot")}
	done := make(chan struct{})

	// Read loop
	go func() {
		defer close(done)
		for {
			_, message, err := c.ReadMessage()
			if err != nil {
				log.Println("Read error:", err)
				return
			}
			packet, err := network.Decode(message)
			if err != nil {
				log.Printf("Received invalid packet: %v", err)
				continue
			}
			if p.handle(packet) {
				return
			}
		}
	}()

	go heartbeat(ctx, c, done)

	if !p.bot && user != "" {
		log.Println("Type 'place <token> <row> <column>' or 'shift <token> <row> <column> <to-row> <to-column>'.")
		go p.readCommands(os.Stdin)
	}

	select {
	case <-done:
	case <-ctx.Done():
		log.Println("Interrupt received, closing connection.")
		err := c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		if err != nil {
			log.Println("Write close error:", err)
		}
		select {
		case <-done:
		case <-time.After(time.Second):
		}
	}
	return nil
}

func heartbeat(ctx context.Context, c *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			frame, _ := network.Encode(network.MsgTypeHeartbeat, nil)
			if err := c.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}
	}
}

type player struct {
	conn *websocket.Conn
	user string
	bot  bool
}

// handle prints a frame and, for bots, answers with a placement. It
// reports whether the stream ended.
func (p *player) handle(packet *network.Packet) bool {
	switch packet.MsgID {
	case network.MsgTypeHeartbeat:
	case network.MsgTypeSnapshot:
		var rec session.Record
		if err := packet.Decode(&rec); err == nil {
			printRecord("SNAPSHOT", rec)
			p.maybePlay(rec)
		}
	case network.MsgTypeUpdate:
		var update session.UpdateRecord
		if err := packet.Decode(&update); err == nil {
			printRecord(string(update.Type), update.Session)
			p.maybePlay(update.Session)
		}
	case network.MsgTypeMove:
		var move session.MoveRecord
		if err := packet.Decode(&move); err == nil && move.Violation != "" {
			log.Printf("<- REJECTED %s: %s", move.Violation.Code(), move.Violation.Message())
		}
	case network.MsgTypeEnd:
		var end network.EndMessage
		packet.Decode(&end)
		log.Printf("<- END status=%s %s", end.Status, end.Error)
		return true
	case network.MsgTypeError:
		var msg network.ErrorMessage
		packet.Decode(&msg)
		log.Printf("<- ERROR %s", msg.Error)
	default:
		log.Printf("<- RECV (ID: %d): %s", packet.MsgID, string(packet.Data))
	}
	return false
}

func printRecord(kind string, rec session.Record) {
	onTurn := "-"
	if rec.PlayerOnTurn != nil {
		onTurn = rec.PlayerOnTurn.Name()
	}
	log.Printf("<- %s %s status=%s on turn=%s scores=%v", kind, rec.Game.Title, rec.Status, onTurn, rec.Scores)
	fmt.Print(render(rec.Board))
}

// render draws the board with one column per cell and "." for empty ones.
func render(b session.BoardRecord) string {
	cells := make(map[game.Position]game.Token, len(b.TokenPlacements))
	for _, tp := range b.TokenPlacements {
		cells[tp.Destination] = tp.Token
	}
	var sb strings.Builder
	for row := b.FirstRow; row < b.FirstRow+b.Height; row++ {
		for column := b.FirstColumn; column < b.FirstColumn+b.Width; column++ {
			token, ok := cells[game.Position{Row: row, Column: column}]
			if !ok {
				token = "."
			}
			sb.WriteString(token.Symbol())
			sb.WriteByte(' ')
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (p *player) maybePlay(rec session.Record) {
	if !p.bot || rec.Status != "IN_PROGRESS" || rec.PlayerOnTurn == nil || rec.PlayerOnTurn.Username != p.user {
		return
	}
	tokens := rec.Decks[p.user].Tokens
	if len(tokens) == 0 {
		return
	}

	taken := make(map[game.Position]bool, len(rec.Board.TokenPlacements))
	for _, tp := range rec.Board.TokenPlacements {
		taken[tp.Destination] = true
	}
	var free []game.Position
	for row := rec.Board.FirstRow; row < rec.Board.FirstRow+rec.Board.Height; row++ {
		for column := rec.Board.FirstColumn; column < rec.Board.FirstColumn+rec.Board.Width; column++ {
			if pos := (game.Position{Row: row, Column: column}); !taken[pos] {
				free = append(free, pos)
			}
		}
	}
	if len(free) == 0 {
		return
	}

	placement := game.Drop(tokens[rand.IntN(len(tokens))], game.NewPlayer(p.user), free[rand.IntN(len(free))])
	p.send(session.PlacementRecordOf(placement))
}

func (p *player) send(rec session.PlacementRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Println("Encode error:", err)
		return
	}
	frame, err := network.Encode(network.MsgTypePlacement, data)
	if err != nil {
		log.Println("Encode error:", err)
		return
	}
	if err := p.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		log.Println("Write error:", err)
		return
	}
	log.Printf("-> SENT: %s", rec.Placement())
}

func (p *player) readCommands(in *os.File) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		numbers := make([]int, 0, len(fields))
		for _, f := range fields[min(2, len(fields)):] {
			n, err := strconv.Atoi(f)
			if err != nil {
				break
			}
			numbers = append(numbers, n)
		}

		me := game.NewPlayer(p.user)
		switch {
		case fields[0] == "place" && len(fields) == 4 && len(numbers) == 2:
			p.send(session.PlacementRecordOf(game.Drop(game.Token(fields[1]), me, game.Position{Row: numbers[0], Column: numbers[1]})))
		case fields[0] == "shift" && len(fields) == 6 && len(numbers) == 4:
			source := game.Position{Row: numbers[0], Column: numbers[1]}
			destination := game.Position{Row: numbers[2], Column: numbers[3]}
			p.send(session.PlacementRecordOf(game.Shift(game.Token(fields[1]), me, source, destination)))
		default:
			log.Printf("Unknown command %q", scanner.Text())
		}
	}
}
