package network

// Message ids of the session stream. Ids below 200 flow from the client,
// the rest from the server.
const (
	MsgTypeHeartbeat = 1
	MsgTypePlacement = 101
	MsgTypeMove      = 201
	MsgTypeSnapshot  = 300
	MsgTypeUpdate    = 301
	MsgTypeEnd       = 305
	MsgTypeError     = 400
)

// ErrorMessage is the payload of MsgTypeError.
type ErrorMessage struct {
	Error string `json:"error"`
}

// EndMessage is the payload of MsgTypeEnd. Error is set when the session
// stream failed rather than completed.
type EndMessage struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}
