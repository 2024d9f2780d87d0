package app

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/flight_core/internal/config"
	"github.com/relabs-tech/flight_core/internal/fusion"
	"github.com/relabs-tech/flight_core/internal/status"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// webStatus is a status as served to the dashboard, with the GPS position
// expressed as meters from the configured reference point.
type webStatus struct {
	status.Status
	NorthM *float64 `json:"north_m,omitempty"`
	EastM  *float64 `json:"east_m,omitempty"`
}

// statusHub keeps the latest status and fans it out to websocket clients.
type statusHub struct {
	calc *fusion.Calculator // nil when no reference point is configured

	mu      sync.RWMutex
	last    *webStatus
	clients map[chan webStatus]struct{}
}

func newStatusHub(calc *fusion.Calculator) *statusHub {
	return &statusHub{
		calc:    calc,
		clients: make(map[chan webStatus]struct{}),
	}
}

func (h *statusHub) publish(s status.Status) {
	ws := webStatus{Status: s}
	if h.calc != nil && s.GPS != nil {
		north, east := h.calc.DegreesToMeters(*s.GPS)
		ws.NorthM, ws.EastM = &north, &east
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.last = &ws
	for ch := range h.clients {
		select {
		case ch <- ws:
		default:
			// slow client, it will catch up with the next status
		}
	}
}

func (h *statusHub) latest() (webStatus, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.last == nil {
		return webStatus{}, false
	}
	return *h.last, true
}

func (h *statusHub) subscribe() chan webStatus {
	ch := make(chan webStatus, 16)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *statusHub) unsubscribe(ch chan webStatus) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
}

func (h *statusHub) handleStatus(w http.ResponseWriter, r *http.Request) {
	s, ok := h.latest()
	if !ok {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s); err != nil {
		log.Printf("web: json encode error: %v", err)
	}
}

func (h *statusHub) handleWS(w http.ResponseWriter, r *http.Request) {
	ch := h.subscribe()
	defer h.unsubscribe(ch)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	if s, ok := h.latest(); ok {
		if err := conn.WriteJSON(s); err != nil {
			return
		}
	}

	for {
		select {
		case s := <-ch:
			if err := conn.WriteJSON(s); err != nil {
				log.Printf("web: websocket write error: %v", err)
				return
			}
		case <-gone:
			return
		}
	}
}

func (h *statusHub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", h.handleStatus)
	mux.HandleFunc("/ws", h.handleWS)
	return mux
}

// RunWeb serves the latest flight status on /api/status and streams every
// status to websocket clients on /ws.
func RunWeb() error {
	cfg := config.Get()

	var calc *fusion.Calculator
	if cfg.ReferenceLat != 0 || cfg.ReferenceLon != 0 {
		calc = fusion.NewCalculator(fusion.LatLon{Lat: cfg.ReferenceLat, Lon: cfg.ReferenceLon})
	}
	hub := newStatusHub(calc)

	client, err := connectMQTT("web", cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	err = status.Subscribe(client, cfg.TopicStatus, hub.publish, func(err error) {
		log.Printf("web: %v", err)
	})
	if err != nil {
		return err
	}
	log.Printf("web: subscribed to MQTT topic %s", cfg.TopicStatus)

	addr := fmt.Sprintf(":%d", cfg.WebServerPort)
	log.Printf("web: server listening on %s", addr)
	return http.ListenAndServe(addr, hub.handler())
}
