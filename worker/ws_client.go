package worker

import (
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/inconshreveable/log15"
)

// wsEventEnvelope is the line-delimited JSON frame sent by the platform's
// validator WebSocket endpoint, per spec.md §6 "WebSocket events
// (validator)": a `type` discriminator plus payload fields.
type wsEventEnvelope struct {
	Type      string `json:"type"`
	AgentHash string `json:"agent_hash"`
}

// WSEventSource reads validator events off a WebSocket connection and
// republishes them as Event values on a channel consumable by
// ValidatorWorker.Run.
type WSEventSource struct {
	url string
	log log15.Logger
}

// NewWSEventSource builds a source that dials url on Run and emits a
// Reconnected event every time the dial succeeds after a prior failure.
func NewWSEventSource(url string) *WSEventSource {
	return &WSEventSource{url: url, log: log15.New("module", "worker.ws")}
}

// Run dials the WebSocket endpoint and forwards decoded events to out
// until stop is closed, reconnecting with a fixed backoff on failure.
func (s *WSEventSource) Run(out chan<- Event, stop <-chan struct{}) {
	reconnecting := false
	for {
		select {
		case <-stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
		if err != nil {
			s.log.Warn("websocket dial failed, retrying", "err", err)
			if !sleepOrStop(2*time.Second, stop) {
				return
			}
			reconnecting = true
			continue
		}

		if reconnecting {
			select {
			case out <- Event{Kind: EventReconnected}:
			case <-stop:
				conn.Close()
				return
			}
			reconnecting = false
		}

		s.readLoop(conn, out, stop)
		conn.Close()
		reconnecting = true
	}
}

func (s *WSEventSource) readLoop(conn *websocket.Conn, out chan<- Event, stop <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Warn("websocket read failed", "err", err)
			return
		}
		var env wsEventEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.log.Warn("malformed websocket event", "err", err)
			continue
		}

		ev, ok := decodeEvent(env)
		if !ok {
			continue
		}
		select {
		case out <- ev:
		case <-stop:
			return
		}
	}
}

func decodeEvent(env wsEventEnvelope) (Event, bool) {
	switch env.Type {
	case "binary_ready":
		return Event{Kind: EventBinaryReady, AgentHash: env.AgentHash}, true
	case "new_submission_assigned":
		return Event{Kind: EventNewSubmissionAssigned, AgentHash: env.AgentHash}, true
	case "reconnected":
		return Event{Kind: EventReconnected}, true
	default:
		return Event{}, false
	}
}

func sleepOrStop(d time.Duration, stop <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}
