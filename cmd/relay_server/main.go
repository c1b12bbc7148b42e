// The relay server is the public half of the remote access bridge.
// Controllers on greenhouse networks dial out to it over WebSocket and
// register an agent id; operator requests carrying X-Agent-ID are
// forwarded to the matching agent and the response relayed back.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const requestTimeout = 10 * time.Second

type Agent struct {
	ID  string
	WS  *websocket.Conn
	Mux sync.Mutex
}

var agents = map[string]*Agent{}
var agentsMux sync.Mutex

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type RequestMsg struct {
	Type    string            `json:"type"`
	ReqId   string            `json:"reqId"`
	Method  string            `json:"method"`
	Path    string            `json:"path"`
	Headers map[string]string `json:"headers"`
	Body    interface{}       `json:"body"`
}

type ResponseMsg struct {
	Type   string      `json:"type"`
	ReqId  string      `json:"reqId"`
	Status int         `json:"status"`
	Body   interface{} `json:"body"`
}

var pending = struct {
	m   map[string]chan ResponseMsg
	mux sync.Mutex
}{m: map[string]chan ResponseMsg{}}

var reqCounter uint64

func nextReqID() string {
	n := atomic.AddUint64(&reqCounter, 1)
	return fmt.Sprintf("%d-%d", time.Now().UnixNano(), n)
}

func main() {
	r := gin.Default()

	r.GET("/agent", handleAgentWS)

	r.NoRoute(handleClientRequest)

	log.Println("Relay server running on :5069")
	r.Run(":5069")
}

func handleAgentWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	var agentID string

	for {
		_, msg, err := ws.ReadMessage()
		if err != nil {
			if agentID != "" {
				agentsMux.Lock()
				delete(agents, agentID)
				agentsMux.Unlock()
				log.Println("Agent disconnected:", agentID)
			}
			return
		}

		var data map[string]interface{}
		if err := json.Unmarshal(msg, &data); err != nil {
			continue
		}

		switch data["type"] {
		case "register":
			id, ok := data["id"].(string)
			if !ok || id == "" {
				continue
			}
			agentID = id
			log.Println("Agent registered:", agentID)

			agentsMux.Lock()
			agents[agentID] = &Agent{ID: agentID, WS: ws}
			agentsMux.Unlock()

		case "response":
			reqId, ok := data["reqId"].(string)
			if !ok {
				continue
			}
			status, _ := data["status"].(float64)

			pending.mux.Lock()
			ch, ok := pending.m[reqId]
			if ok {
				ch <- ResponseMsg{
					Type:   "response",
					ReqId:  reqId,
					Status: int(status),
					Body:   data["body"],
				}
				delete(pending.m, reqId)
			}
			pending.mux.Unlock()
		}
	}
}

func handleClientRequest(c *gin.Context) {
	agentID := c.GetHeader("X-Agent-ID")
	if agentID == "" {
		c.JSON(400, gin.H{"error": "Missing X-Agent-ID"})
		return
	}

	agentsMux.Lock()
	agent, ok := agents[agentID]
	agentsMux.Unlock()

	if !ok {
		c.JSON(502, gin.H{"error": "Agent offline"})
		return
	}

	var body interface{}
	c.ShouldBindJSON(&body) // Ignore error - it's okay if there's no body

	headers := make(map[string]string)
	for key, values := range c.Request.Header {
		if len(values) > 0 {
			headers[key] = values[0] // Take the first value if multiple
		}
	}

	reqId := nextReqID()

	msg := RequestMsg{
		Type:    "request",
		ReqId:   reqId,
		Method:  c.Request.Method,
		Path:    c.Request.URL.Path,
		Headers: headers,
		Body:    body,
	}

	data, _ := json.Marshal(msg)

	respChan := make(chan ResponseMsg, 1)
	pending.mux.Lock()
	pending.m[reqId] = respChan
	pending.mux.Unlock()

	agent.Mux.Lock()
	agent.WS.WriteMessage(websocket.TextMessage, data)
	agent.Mux.Unlock()

	select {
	case resp := <-respChan:
		c.JSON(resp.Status, resp.Body)

	case <-time.After(requestTimeout):
		pending.mux.Lock()
		delete(pending.m, reqId)
		pending.mux.Unlock()
		c.JSON(504, gin.H{"error": "Timeout"})
	}
}
