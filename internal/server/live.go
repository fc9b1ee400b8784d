package server

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"trade-journal/internal/analytics"
	"trade-journal/internal/journal"
	"trade-journal/internal/logging"
)

// Live connection timeouts
const (
	liveWriteTimeout = 10 * time.Second
	livePongTimeout  = 60 * time.Second
	livePingInterval = 30 * time.Second
)

// liveMessage is pushed to live clients on connect and after every change
// to the user's journal.
type liveMessage struct {
	Event       journal.Event         `json:"event"`
	Aggregation analytics.Aggregation `json:"aggregation"`
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.origins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			s.log.Warn().Str("origin", origin).Msg("Live connection origin not allowed")
			return false
		},
	}
}

// handleLive upgrades to a websocket and streams the user's journal state
// until the client goes away or the server stops.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	uid := userFrom(r.Context()).UID
	log := logging.WithUser(s.log, uid)

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Live upgrade failed")
		return
	}
	defer conn.Close()

	events := s.hub.Subscribe(uid)
	defer s.hub.Unsubscribe(uid, events)
	log.Debug().Msg("Live client connected")

	// The read side only handles control frames and notices a closed peer
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(livePongTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(livePongTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(e journal.Event) error {
		_ = conn.SetWriteDeadline(time.Now().Add(liveWriteTimeout))
		return conn.WriteJSON(liveMessage{Event: e, Aggregation: sess.Aggregation()})
	}

	st := sess.Store.State()
	initial := journal.Event{UserID: uid, Version: st.Version, Status: st.Status, Error: st.Error, Count: st.Count, At: time.Now()}
	if err := send(initial); err != nil {
		return
	}

	ping := time.NewTicker(livePingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			log.Debug().Msg("Live client disconnected")
			return
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
					time.Now().Add(time.Second))
				return
			}
			if err := send(e); err != nil {
				log.Debug().Err(err).Msg("Live write failed")
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(liveWriteTimeout)); err != nil {
				return
			}
		}
	}
}
