package internet_bridge

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

// Config wires a local controller to the public relay server so
// operators can reach it from outside the greenhouse network.
type Config struct {
	PublicWS   string // ws://host:port/agent
	LocalURL   string // http://localhost:8080
	AgentID    string // unique agent id registered with the relay
	RetryDelay time.Duration
}

type requestMsg struct {
	Type    string            `json:"type"`
	ReqId   string            `json:"reqId"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers,omitempty"`
	Body    interface{}       `json:"body"`
}

type responseMsg struct {
	Type   string      `json:"type"`
	ReqId  string      `json:"reqId"`
	Status int         `json:"status"`
	Body   interface{} `json:"body"`
}

// Start connects to the relay and reconnects forever. Run it in its
// own goroutine.
func Start(cfg Config) {
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 2 * time.Second
	}

	for {
		run(cfg)
		log.Println("BRIDGE: Disconnected from relay, reconnecting...")
		time.Sleep(cfg.RetryDelay)
	}
}

func run(cfg Config) {
	ws, _, err := websocket.DefaultDialer.Dial(cfg.PublicWS, nil)
	if err != nil {
		log.Printf("BRIDGE: WebSocket error: %v", err)
		return
	}
	defer ws.Close()

	ws.WriteJSON(map[string]interface{}{
		"type": "register",
		"id":   cfg.AgentID,
	})
	log.Printf("BRIDGE: Registered as agent %s", cfg.AgentID)

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var req requestMsg
		if err := json.Unmarshal(msg, &req); err != nil {
			continue
		}
		if req.Type != "request" {
			continue
		}

		respBody, status := doLocalRequest(cfg.LocalURL, req)

		ws.WriteJSON(responseMsg{
			Type:   "response",
			ReqId:  req.ReqId,
			Status: status,
			Body:   respBody,
		})
	}
}

// doLocalRequest replays a relayed request against the local API.
// Auth headers pass through untouched so the local middleware still
// decides who gets in.
func doLocalRequest(base string, req requestMsg) (interface{}, int) {
	bodyBytes, _ := json.Marshal(req.Body)

	httpReq, err := http.NewRequest(req.Method, base+req.Path, bytes.NewBuffer(bodyBytes))
	if err != nil {
		return "invalid relayed request", 400
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for name, value := range req.Headers {
		httpReq.Header.Set(name, value)
	}

	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "local request failed", 500
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)

	var parsed interface{}
	json.Unmarshal(raw, &parsed)

	return parsed, resp.StatusCode
}
