package main

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"fireshot/pkg/conversation"
	"fireshot/pkg/store"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const maxPhotoBytes = 10 << 20

// server exposes the conversation engine over HTTP. Each request is one chat
// event of the authenticated user.
type server struct {
	engine *conversation.Engine
	store  store.Store
	outbox *outbox
	secret []byte
	limits *limiters
	log    *slog.Logger
}

func newServer(engine *conversation.Engine, st store.Store, out *outbox, secret []byte, perMinute, burst int, log *slog.Logger) *server {
	return &server{
		engine: engine,
		store:  st,
		outbox: out,
		secret: secret,
		limits: newLimiters(perMinute, burst),
		log:    log,
	}
}

func (s *server) routes(r *gin.Engine) {
	r.GET("/healthz", s.healthzHandler)
	authGroup := r.Group("")
	authGroup.Use(jwtAuthMiddleware(s.secret), s.rateLimitMiddleware())
	authGroup.POST("/events", s.eventHandler)
	authGroup.POST("/events/photo", s.photoHandler)
	authGroup.GET("/events/pending", s.pendingHandler)
	authGroup.GET("/users/:id/accounts", s.accountsHandler)
}

func (s *server) healthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "open_screenshots": s.engine.OpenScreenshots()})
}

type eventRequest struct {
	Kind     string `json:"kind" binding:"required,oneof=command callback text"`
	Command  string `json:"command" binding:"required_if=Kind command"`
	Data     string `json:"data" binding:"required_if=Kind callback"`
	Text     string `json:"text"`
	UserName string `json:"user_name"`
}

func (r eventRequest) event(userID int64) conversation.Event {
	ev := conversation.Event{UserID: userID, UserName: r.UserName}
	switch r.Kind {
	case "command":
		ev.Kind = conversation.EventCommand
		ev.Command = strings.TrimPrefix(strings.TrimSpace(r.Command), "/")
	case "callback":
		ev.Kind = conversation.EventCallback
		ev.Data = r.Data
	default:
		ev.Kind = conversation.EventText
		ev.Text = r.Text
	}
	return ev
}

func (s *server) eventHandler(c *gin.Context) {
	var req eventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.handle(c, req.event(userFromContext(c)))
}

func (s *server) photoHandler(c *gin.Context) {
	fh, err := c.FormFile("photo")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "photo file is required"})
		return
	}
	if fh.Size > maxPhotoBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "photo too large"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read photo"})
		return
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, maxPhotoBytes))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read photo"})
		return
	}
	s.handle(c, conversation.Event{
		UserID:   userFromContext(c),
		UserName: c.PostForm("user_name"),
		Kind:     conversation.EventPhoto,
		Photo:    data,
	})
}

func (s *server) handle(c *gin.Context, ev conversation.Event) {
	res, err := s.engine.Handle(c.Request.Context(), ev)
	status := http.StatusOK
	if err != nil {
		s.log.Error("event failed", slog.Int64("user", ev.UserID), slog.String("error", err.Error()))
		status = http.StatusInternalServerError
	}
	wf, st := s.engine.Active(ev.UserID)
	c.JSON(status, newEventResponse(res, wf, st))
}

func (s *server) pendingHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"replies": s.outbox.drain(userFromContext(c))})
}

func (s *server) accountsHandler(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	if id != userFromContext(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	rec, err := s.store.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "user not registered"})
		return
	}
	if err != nil {
		s.log.Error("load user", slog.Int64("user", id), slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "load failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationship": rec.RelationshipSeq, "accounts": rec.AccountList()})
}

type updateResponse struct {
	AccountID int64  `json:"account_id"`
	Name      string `json:"name"`
	Balance   string `json:"balance"`
	Currency  string `json:"currency"`
	Delta     string `json:"delta"`
	Direction string `json:"direction"`
}

type eventResponse struct {
	Outcome  string               `json:"outcome"`
	Reason   string               `json:"reason,omitempty"`
	Workflow string               `json:"workflow"`
	State    string               `json:"state"`
	Session  string               `json:"session,omitempty"`
	Replies  []conversation.Reply `json:"replies"`
	Updates  []updateResponse     `json:"updates,omitempty"`
}

// newEventResponse reports res together with the workflow and state the
// user is in after the event.
func newEventResponse(res conversation.Result, wf conversation.Workflow, st conversation.State) eventResponse {
	out := eventResponse{
		Outcome:  res.Outcome.String(),
		Workflow: wf.String(),
		State:    st.String(),
		Session:  res.Session,
		Replies:  res.Replies,
	}
	if out.Replies == nil {
		out.Replies = []conversation.Reply{}
	}
	if res.Reason != conversation.RejectNone {
		out.Reason = res.Reason.String()
	}
	for _, u := range res.Updates {
		dir := "unchanged"
		switch u.Direction {
		case conversation.Up:
			dir = "up"
		case conversation.Down:
			dir = "down"
		}
		out.Updates = append(out.Updates, updateResponse{
			AccountID: u.AccountID,
			Name:      u.Name,
			Balance:   u.Balance.Amount.StringFixed(2),
			Currency:  u.Balance.Currency,
			Delta:     u.Delta.StringFixed(2),
			Direction: dir,
		})
	}
	return out
}

// outbox keeps replies produced between requests, such as timeout notices,
// until the user polls for them.
type outbox struct {
	mu      sync.Mutex
	pending map[int64][]conversation.Reply
}

func newOutbox() *outbox {
	return &outbox{pending: map[int64][]conversation.Reply{}}
}

func (o *outbox) push(e conversation.Ended) {
	if len(e.Replies) == 0 {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending[e.UserID] = append(o.pending[e.UserID], e.Replies...)
}

func (o *outbox) drain(userID int64) []conversation.Reply {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := o.pending[userID]
	delete(o.pending, userID)
	if out == nil {
		out = []conversation.Reply{}
	}
	return out
}

// limiters hands out one token bucket per user.
type limiters struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	users map[int64]*rate.Limiter
}

func newLimiters(perMinute, burst int) *limiters {
	return &limiters{
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		users: map[int64]*rate.Limiter{},
	}
}

func (l *limiters) allow(userID int64) bool {
	l.mu.Lock()
	lim, ok := l.users[userID]
	if !ok {
		lim = rate.NewLimiter(l.every, l.burst)
		l.users[userID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

func (s *server) rateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limits.allow(userFromContext(c)) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
