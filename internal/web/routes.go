package web

import (
	"errors"
	"io/fs"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/quickvocab/internal/conversation"
	"github.com/zulandar/quickvocab/internal/models"
	"github.com/zulandar/quickvocab/internal/store"
	"github.com/zulandar/quickvocab/internal/vocab"
)

// clientCookie identifies a browser client across requests.
const clientCookie = "qv_client"

// registerRoutes sets up all widget routes on the Gin router.
func registerRoutes(router *gin.Engine, opts RouterOpts) {
	staticFS, _ := fs.Sub(assetsFS, "assets")
	router.StaticFS("/static", http.FS(staticFS))

	router.GET("/", handleIndex(opts))
	router.GET("/healthz", handleHealth(opts.Hub))

	api := router.Group("/api")
	api.GET("/messages", handleGetMessages(opts.Hub))
	api.POST("/messages", handleSend(opts.Hub))
	api.POST("/sessions", handleNewSession(opts.Hub))
	api.GET("/history", handleHistoryList(opts.Hub))
	api.GET("/history/:id", handleHistoryGet(opts.History))
	api.GET("/events", handleEvents(opts.Hub))
}

// messageView is a transcript entry with its content rendered to HTML.
type messageView struct {
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	HTML         string   `json:"html"`
	Vocabularies []string `json:"vocabularies,omitempty"`
}

// messagesView is the response body of the message and session endpoints.
type messagesView struct {
	State    conversation.State `json:"state"`
	Session  string             `json:"session"`
	Messages []messageView      `json:"messages"`
	Error    string             `json:"error,omitempty"`
}

// historyView summarizes one history record for the list.
type historyView struct {
	ID        string   `json:"id"`
	Timestamp string   `json:"timestamp"`
	Preview   string   `json:"preview"`
	Messages  int      `json:"messages"`
	Terms     []string `json:"terms"`
}

func renderMessages(msgs []models.Message) []messageView {
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{
			Role:         m.Role,
			Content:      m.Content,
			HTML:         vocab.HTML(m.Content),
			Vocabularies: m.Vocabularies,
		})
	}
	return out
}

func newMessagesView(snap conversation.Snapshot) messagesView {
	return messagesView{
		State:    snap.State,
		Session:  snap.Session,
		Messages: renderMessages(snap.Messages),
	}
}

func newHistoryView(rec models.HistoryRecord) historyView {
	v := historyView{ID: rec.ID, Timestamp: rec.Timestamp, Messages: len(rec.Messages), Terms: []string{}}
	for _, m := range rec.Messages {
		if m.Role == models.RoleUser && v.Preview == "" {
			v.Preview = m.Content
		}
		if m.Role == models.RoleAssistant {
			v.Terms = append(v.Terms, m.Vocabularies...)
		}
	}
	return v
}

// knownController returns the caller's controller when its cookie names a
// client the hub issued and still tracks.
func knownController(c *gin.Context, hub *Hub) (*conversation.Controller, bool) {
	id, err := c.Cookie(clientCookie)
	if err != nil || id == "" {
		return nil, false
	}
	return hub.Lookup(id)
}

// controllerFor returns the caller's controller, issuing a new client and
// cookie when the request carries no known id.
func controllerFor(c *gin.Context, hub *Hub) (*conversation.Controller, bool) {
	if ctrl, ok := knownController(c, hub); ok {
		return ctrl, true
	}
	id, ctrl, err := hub.Create(c.Request.Context())
	if err != nil {
		log.Printf("web: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "conversation unavailable"})
		return nil, false
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(clientCookie, id, 0, "/", "", false, true)
	return ctrl, true
}

func handleIndex(opts RouterOpts) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := controllerFor(c, opts.Hub)
		if !ok {
			return
		}
		history := make([]historyView, 0)
		for _, rec := range ctrl.History() {
			history = append(history, newHistoryView(rec))
		}
		c.HTML(http.StatusOK, "index.html", gin.H{
			"thinking": opts.ThinkingText,
			"history":  history,
		})
	}
}

func handleHealth(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": hub.Len()})
	}
}

func handleGetMessages(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := knownController(c, hub)
		if !ok {
			c.JSON(http.StatusOK, messagesView{State: conversation.StateIdle, Messages: []messageView{}})
			return
		}
		c.JSON(http.StatusOK, newMessagesView(ctrl.Snapshot()))
	}
}

type sendRequest struct {
	Text string `json:"text"`
}

func handleSend(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req sendRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
		ctrl, ok := controllerFor(c, hub)
		if !ok {
			return
		}

		err := ctrl.Send(c.Request.Context(), req.Text)
		view := newMessagesView(ctrl.Snapshot())

		var modelErr *conversation.ModelCallError
		var storeErr *conversation.StoreCallError
		switch {
		case err == nil:
			c.JSON(http.StatusOK, view)
		case errors.Is(err, conversation.ErrBusy):
			view.Error = "a message is already being sent"
			c.JSON(http.StatusConflict, view)
		case errors.As(err, &modelErr):
			view.Error = "the language model could not answer"
			c.JSON(http.StatusBadGateway, view)
		case errors.As(err, &storeErr):
			view.Error = "the conversation could not be saved"
			c.JSON(http.StatusBadGateway, view)
		default:
			view.Error = err.Error()
			c.JSON(http.StatusInternalServerError, view)
		}
	}
}

func handleNewSession(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := controllerFor(c, hub)
		if !ok {
			return
		}
		ctrl.StartNewSession()
		c.JSON(http.StatusOK, newMessagesView(ctrl.Snapshot()))
	}
}

func handleHistoryList(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctrl, ok := knownController(c, hub)
		if !ok {
			c.JSON(http.StatusOK, gin.H{"history": []historyView{}})
			return
		}
		recs := ctrl.History()
		if refresh := strings.ToLower(c.Query("refresh")); refresh == "1" || refresh == "true" {
			fresh, err := ctrl.RefreshHistory(c.Request.Context())
			if err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "history unavailable"})
				return
			}
			recs = fresh
		}
		out := make([]historyView, 0, len(recs))
		for _, rec := range recs {
			out = append(out, newHistoryView(rec))
		}
		c.JSON(http.StatusOK, gin.H{"history": out})
	}
}

func handleHistoryGet(history HistoryReader) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := history.Get(c.Request.Context(), c.Param("id"))
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		if err != nil {
			log.Printf("web: history %s: %v", c.Param("id"), err)
			c.JSON(http.StatusBadGateway, gin.H{"error": "history unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"id":        rec.ID,
			"timestamp": rec.Timestamp,
			"messages":  renderMessages(rec.Messages),
		})
	}
}
