package network

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestEncodeDecode(t *testing.T) {
	frame, err := Encode(MsgTypeUpdate, []byte(`{"type":"MOVE"}`))
	if err != nil {
		t.Fatal(err)
	}
	if len(frame) != headerSize+15 {
		t.Fatalf("Expected frame of %d bytes, got %d", headerSize+15, len(frame))
	}

	p, err := Decode(frame)
	if err != nil {
		t.Fatal(err)
	}
	if p.MsgID != MsgTypeUpdate || p.Length != 15 {
		t.Errorf("Unexpected header: %d/%d", p.MsgID, p.Length)
	}
	var v struct{ Type string }
	if err := p.Decode(&v); err != nil || v.Type != "MOVE" {
		t.Errorf("Unexpected payload %q: %v", p.Data, err)
	}
}

func TestDecodeShortFrames(t *testing.T) {
	if _, err := Decode([]byte{0, 1, 0}); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected short buffer for truncated header, got %v", err)
	}
	frame, _ := Encode(MsgTypeMove, []byte("abcdef"))
	if _, err := Decode(frame[:len(frame)-1]); !errors.Is(err, io.ErrShortBuffer) {
		t.Errorf("Expected short buffer for truncated payload, got %v", err)
	}
}

func TestEncodeRejectsLargePayload(t *testing.T) {
	if _, err := Encode(MsgTypeUpdate, make([]byte, MaxPacketSize+1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Expected ErrPacketTooLarge, got %v", err)
	}
}

func TestWSConnectionRoundTrip(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws := NewWSConnection(conn)
		defer ws.Close()
		ws.SetHeartbeat(time.Second)

		p, err := ws.ReadPacket()
		if err != nil {
			return
		}
		ws.SendJSON(MsgTypeMove, ErrorMessage{Error: string(p.Data)})
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatal(err)
	}
	client := NewWSConnection(conn)
	defer client.Close()

	if err := client.Send(MsgTypePlacement, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	p, err := client.ReadPacket()
	if err != nil {
		t.Fatal(err)
	}
	var msg ErrorMessage
	if err := p.Decode(&msg); err != nil {
		t.Fatal(err)
	}
	if p.MsgID != MsgTypeMove || msg.Error != "ping" {
		t.Errorf("Unexpected echo: %d %+v", p.MsgID, msg)
	}
}
