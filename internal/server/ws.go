package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"scenecraft/internal/logging"
	"scenecraft/internal/scene"
	"scenecraft/internal/types"

	"golang.org/x/net/websocket"
)

// wsMessage is the envelope pushed to every connected observer. Type is
// either "change" (one store mutation) or "snapshot" (the full scene, sent
// on connect and after external reloads).
type wsMessage struct {
	Type     string              `json:"type"`
	Change   *types.ChangeEvent  `json:"change,omitempty"`
	Snapshot []types.SceneObject `json:"snapshot,omitempty"`
}

// hub fans scene changes out to WebSocket observers. Sends never block: a
// peer that cannot keep up is disconnected.
type hub struct {
	store *scene.Store

	mu    sync.Mutex
	peers map[*wsPeer]struct{}
}

type wsPeer struct {
	conn *websocket.Conn
	out  chan wsMessage
	once sync.Once
	done chan struct{}
}

func newHub(store *scene.Store) *hub {
	return &hub{
		store: store,
		peers: make(map[*wsPeer]struct{}),
	}
}

// run pumps store change events into the hub until ctx is cancelled.
func (h *hub) run(ctx context.Context) {
	events, cancel := h.store.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			e := ev
			h.broadcast(wsMessage{Type: "change", Change: &e})
		}
	}
}

// broadcastSnapshot pushes the full scene to every peer.
func (h *hub) broadcastSnapshot() {
	h.broadcast(wsMessage{Type: "snapshot", Snapshot: h.store.Snapshot()})
}

func (h *hub) broadcast(msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for p := range h.peers {
		select {
		case p.out <- msg:
		default:
			// Peer is not draining its queue; drop it rather than stall
			// everyone else.
			logging.Get(logging.CategoryBroadcast).Warn("dropping slow websocket peer")
			delete(h.peers, p)
			p.close()
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for p := range h.peers {
		delete(h.peers, p)
		p.close()
	}
}

// handleWS upgrades the connection and streams changes until the peer
// disconnects. The first message is always a full snapshot.
func (h *hub) handleWS(w http.ResponseWriter, r *http.Request) {
	websocket.Handler(func(conn *websocket.Conn) {
		p := &wsPeer{
			conn: conn,
			out:  make(chan wsMessage, 64),
			done: make(chan struct{}),
		}
		p.out <- wsMessage{Type: "snapshot", Snapshot: h.store.Snapshot()}

		h.mu.Lock()
		h.peers[p] = struct{}{}
		n := len(h.peers)
		h.mu.Unlock()
		logging.Get(logging.CategoryBroadcast).Info("websocket peer connected (%d total)", n)

		go p.readLoop(h)
		p.writeLoop()

		h.mu.Lock()
		delete(h.peers, p)
		h.mu.Unlock()
		logging.Get(logging.CategoryBroadcast).Info("websocket peer disconnected")
	}).ServeHTTP(w, r)
}

// readLoop discards inbound frames; the feed is one-way. It exists to detect
// the peer closing the connection.
func (p *wsPeer) readLoop(h *hub) {
	var discard json.RawMessage
	for {
		if err := websocket.JSON.Receive(p.conn, &discard); err != nil {
			p.close()
			return
		}
	}
}

func (p *wsPeer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case msg := <-p.out:
			if err := websocket.JSON.Send(p.conn, msg); err != nil {
				p.close()
				return
			}
		}
	}
}

func (p *wsPeer) close() {
	p.once.Do(func() {
		close(p.done)
		p.conn.Close()
	})
}
