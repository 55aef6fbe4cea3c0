package controllers

import (
	"io"
	"net/http"
	"strings"

	"ChatPane/models"
	"ChatPane/pkg/chat"

	"github.com/gin-gonic/gin"
)

const (
	maxAudioBytes    = 10 << 20
	defaultAudioMIME = "audio/webm"
)

type conversationSummary struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Messages int    `json:"message_count"`
	Active   bool   `json:"active"`
}

// ListConversations returns newest first. ?q= filters by title.
func ListConversations(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := d.session(c)
		if !ok {
			return
		}
		q := strings.ToLower(strings.TrimSpace(c.Query("q")))
		activeID := s.Store().ActiveID()

		out := []conversationSummary{}
		for _, conv := range s.Store().List() {
			if q != "" && !strings.Contains(strings.ToLower(conv.Title), q) {
				continue
			}
			out = append(out, conversationSummary{
				ID:       conv.ID,
				Title:    conv.Title,
				Messages: len(conv.Messages),
				Active:   conv.ID == activeID,
			})
		}
		c.JSON(http.StatusOK, gin.H{"conversations": out, "active_id": activeID})
	}
}

func GetConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := d.session(c)
		if !ok {
			return
		}
		conv, err := s.Store().Get(c.Param("conversation_id"))
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}

func DeleteConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := d.session(c)
		if !ok {
			return
		}
		if err := s.Store().Delete(c.Param("conversation_id")); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"msg": "conversation deleted", "active_id": s.Store().ActiveID()})
	}
}

// SetActiveConversation selects the conversation that receives sends. A null
// id clears the selection.
func SetActiveConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			ConversationID *string `json:"conversation_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid request"})
			return
		}
		s, ok := d.session(c)
		if !ok {
			return
		}
		id := ""
		if body.ConversationID != nil {
			id = *body.ConversationID
		}
		if err := s.Store().SetActive(id); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"active_id": s.Store().ActiveID()})
	}
}

// NewConversation clears the selection so the next send starts a new one.
func NewConversation(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		s, ok := d.session(c)
		if !ok {
			return
		}
		if err := s.Store().SetActive(""); err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"active_id": ""})
	}
}

// SendMessage streams the reply using SSE:
// - event: conversation (once) with conversation_id
// - event: delta (multiple) with partial text
// - event: done (once) with the final state and content
func SendMessage(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body struct {
			Message        string  `json:"message"`
			ConversationID *string `json:"conversation_id"`
		}
		if err := c.ShouldBindJSON(&body); err != nil || strings.TrimSpace(body.Message) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "message is required"})
			return
		}
		s, ok := d.session(c)
		if !ok {
			return
		}
		target := ""
		if body.ConversationID != nil {
			target = *body.ConversationID
		}

		es := &eventStream{c: c}
		res, err := s.SendTextTo(c.Request.Context(), target, body.Message, es.hooks())
		es.finish(res, err)
	}
}

// SendAudio takes a multipart "audio" file, transcribes it and streams the
// reply like SendMessage, with an extra transcript event before the deltas.
func SendAudio(d *Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		fh, err := c.FormFile("audio")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "audio file is required"})
			return
		}
		if fh.Size > maxAudioBytes {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"msg": "audio file too large"})
			return
		}
		f, err := fh.Open()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "unreadable audio file"})
			return
		}
		data, err := io.ReadAll(io.LimitReader(f, maxAudioBytes))
		f.Close()
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"msg": "unreadable audio file"})
			return
		}
		mime := strings.TrimSpace(c.PostForm("mime_type"))
		if mime == "" {
			mime = fh.Header.Get("Content-Type")
		}
		if mime == "" || mime == "application/octet-stream" {
			mime = defaultAudioMIME
		}

		s, ok := d.session(c)
		if !ok {
			return
		}
		es := &eventStream{c: c}
		res, err := s.SendAudio(c.Request.Context(), models.Audio{Data: data, MIMEType: mime}, es.hooks())
		es.finish(res, err)
	}
}

// eventStream writes SSE events, switching the response to a stream on the
// first one. Until then errors can still be answered with a status code.
type eventStream struct {
	c       *gin.Context
	started bool
}

func (e *eventStream) send(event string, data any) {
	if !e.started {
		h := e.c.Writer.Header()
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		h.Set("X-Accel-Buffering", "no") // nginx buffering off
		e.started = true
	}
	e.c.SSEvent(event, data)
	e.c.Writer.Flush()
}

func (e *eventStream) hooks() chat.Hooks {
	return chat.Hooks{
		Conversation: func(id string) { e.send("conversation", gin.H{"conversation_id": id}) },
		Transcript:   func(text string) { e.send("transcript", gin.H{"text": text}) },
		Delta:        func(fragment string) { e.send("delta", gin.H{"text": fragment}) },
	}
}

func (e *eventStream) finish(res chat.SendResult, err error) {
	if err != nil {
		if !e.started {
			abortWithError(e.c, err)
			return
		}
		_, msg := statusFor(err)
		e.send("error", gin.H{"msg": msg})
		return
	}
	if res.TranscriptionErr != nil {
		e.send("error", gin.H{"msg": chat.TranscriptionErrorMessage})
		e.send("done", gin.H{"ok": false, "conversation_id": res.ConversationID, "content": chat.TranscriptionErrorMessage})
		return
	}
	e.send("done", gin.H{
		"ok":              res.Outcome.State == chat.StateComplete,
		"state":           res.Outcome.State.String(),
		"conversation_id": res.ConversationID,
		"content":         res.Outcome.Content,
	})
}
