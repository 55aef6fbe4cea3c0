package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"ChatPane/middleware"
	"ChatPane/pkg/chat"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const wsReadTimeout = 60 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// CORS handled at HTTP level; allow WS here
		return true
	},
}

type wsPayload struct {
	Type           string  `json:"type"`
	Message        string  `json:"message"`
	ConversationID *string `json:"conversation_id"`
}

// ChatWS handles WebSocket chat streaming.
// Client protocol (JSON messages):
//
//	-> {type: "send", message: string, conversation_id?: string}
//	<- {type: "conversation", conversation_id: string}
//	<- {type: "delta", data: string}
//	<- {type: "done", ok: bool, state: string, content: string}
//	<- {type: "error", error: string}
//
// Sends are handled one at a time for the life of the connection.
func ChatWS(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Authenticate via ?token=JWT
		tokenStr := strings.TrimSpace(c.Query("token"))
		if tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "missing token query"})
			return
		}
		if !middleware.Authenticate(c, d.Tokens, tokenStr) {
			return
		}
		s, ok := d.session(c)
		if !ok {
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			d.Log.Warn("ws upgrade", "error", err)
			return
		}
		defer conn.Close()

		conn.SetReadLimit(1 << 20)
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		})

		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					d.Log.Debug("ws read", "error", err)
				}
				return
			}
			_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
			if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
				continue
			}
			var p wsPayload
			if err := json.Unmarshal(msg, &p); err != nil || strings.ToLower(strings.TrimSpace(p.Type)) != "send" {
				_ = conn.WriteJSON(gin.H{"type": "error", "error": "invalid payload"})
				continue
			}
			// the token may have been revoked since the upgrade
			if !d.stillSignedIn(tokenStr, s) {
				_ = conn.WriteJSON(gin.H{"type": "error", "error": "session expired, please log in again"})
				return
			}
			wsSend(conn, s, p)
		}
	}
}

// stillSignedIn reports whether tokenStr is unrevoked and s is still the
// live session of its subject.
func (d *Deps) stillSignedIn(tokenStr string, s *chat.Session) bool {
	claims, err := d.Tokens.Parse(tokenStr)
	if err != nil {
		return false
	}
	cur, ok := d.Registry.Get(claims.Subject)
	return ok && cur == s
}

func wsSend(conn *websocket.Conn, s *chat.Session, p wsPayload) {
	target := ""
	if p.ConversationID != nil {
		target = *p.ConversationID
	}
	hooks := chat.Hooks{
		Conversation: func(id string) {
			_ = conn.WriteJSON(gin.H{"type": "conversation", "conversation_id": id})
		},
		Delta: func(fragment string) {
			_ = conn.WriteJSON(gin.H{"type": "delta", "data": fragment})
		},
	}
	// a send may outlive the read deadline
	_ = conn.SetReadDeadline(time.Time{})
	res, err := s.SendTextTo(context.Background(), target, p.Message, hooks)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	if err != nil {
		_, msg := statusFor(err)
		_ = conn.WriteJSON(gin.H{"type": "error", "error": msg})
		return
	}
	_ = conn.WriteJSON(gin.H{
		"type":            "done",
		"ok":              res.Outcome.State == chat.StateComplete,
		"state":           res.Outcome.State.String(),
		"conversation_id": res.ConversationID,
		"content":         res.Outcome.Content,
	})
}
