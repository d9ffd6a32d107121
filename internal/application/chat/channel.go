// Package chat runs the crop assistant conversation: one streamed reply at a
// time, delivery receipts for the farmer's messages, and persisted history.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jbctechsolutions/cropcare/internal/application/offline"
	"github.com/jbctechsolutions/cropcare/internal/application/ports"
	"github.com/jbctechsolutions/cropcare/internal/domain/chat"
	domainerrors "github.com/jbctechsolutions/cropcare/internal/domain/errors"
	domainoffline "github.com/jbctechsolutions/cropcare/internal/domain/offline"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/logging"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/metrics"
	"github.com/jbctechsolutions/cropcare/internal/infrastructure/tracing"
)

// Send rejections. Neither changes the transcript.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInFlight     = errors.New("a reply is still streaming")
)

// Defaults for Config fields left zero.
const (
	DefaultSentDelay      = 500 * time.Millisecond
	DefaultDeliveredDelay = 1500 * time.Millisecond
	DefaultHistoryLimit   = 50
	DefaultWelcome        = "Hello! Ask me anything about your crops, pests or treatments."
)

// Config tunes the channel.
type Config struct {
	SentDelay      time.Duration
	DeliveredDelay time.Duration
	WelcomeMessage string
	HistoryLimit   int
}

// UpdateFunc receives a copy of every transcript entry that changed.
type UpdateFunc func(msg chat.Message)

// Option configures a Channel.
type Option func(*Channel)

// WithLanguage sets how the reply language is chosen.
func WithLanguage(fn func(ctx context.Context) string) Option {
	return func(c *Channel) { c.language = fn }
}

// WithOnline sets the connectivity check used by History.
func WithOnline(fn func() bool) Option {
	return func(c *Channel) { c.online = fn }
}

// Channel is the conversational assistant channel.
type Channel struct {
	stream   ports.ChatStreamPort
	backend  ports.BackendPort
	cache    *offline.Cache
	queue    *offline.Queue
	identity ports.IdentityPort
	config   Config
	logger   *logging.Logger
	tracer   *tracing.Tracer
	language func(ctx context.Context) string
	online   func() bool

	mu         sync.Mutex
	transcript *chat.Transcript
	cancel     context.CancelFunc
	cancelled  bool
	onUpdate   UpdateFunc
}

// NewChannel creates a channel whose transcript starts with the welcome entry.
func NewChannel(
	stream ports.ChatStreamPort,
	backend ports.BackendPort,
	cache *offline.Cache,
	queue *offline.Queue,
	identity ports.IdentityPort,
	cfg Config,
	logger *logging.Logger,
	tracer *tracing.Tracer,
	opts ...Option,
) *Channel {
	if cfg.SentDelay <= 0 {
		cfg.SentDelay = DefaultSentDelay
	}
	if cfg.DeliveredDelay <= 0 {
		cfg.DeliveredDelay = DefaultDeliveredDelay
	}
	if cfg.WelcomeMessage == "" {
		cfg.WelcomeMessage = DefaultWelcome
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = DefaultHistoryLimit
	}
	if logger == nil {
		logger = logging.Default()
	}
	if tracer == nil {
		tracer = tracing.Default()
	}
	c := &Channel{
		stream:     stream,
		backend:    backend,
		cache:      cache,
		queue:      queue,
		identity:   identity,
		config:     cfg,
		logger:     logger,
		tracer:     tracer,
		language:   func(context.Context) string { return "en" },
		online:     func() bool { return true },
		transcript: chat.NewTranscript(chat.NewWelcomeMessage(cfg.WelcomeMessage)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnUpdate registers the callback for transcript changes, replacing any
// previous one. The callback runs with the channel locked and must not call
// back into it.
func (c *Channel) OnUpdate(fn UpdateFunc) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Transcript returns a snapshot of every entry.
func (c *Channel) Transcript() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Snapshot()
}

// InFlight reports whether a reply is streaming.
func (c *Channel) InFlight() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancel != nil
}

// Cancel aborts the streaming reply, if any. The partial reply stays in the
// transcript and Send returns without error.
func (c *Channel) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancelled = true
		c.cancel()
	}
}

// changed runs the update callback for the entry with id. Callers hold c.mu.
func (c *Channel) changed(id string) {
	if c.onUpdate == nil {
		return
	}
	if m := c.transcript.Find(id); m != nil {
		c.onUpdate(*m)
	}
}

func (c *Channel) advance(id string, status chat.DeliveryStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m := c.transcript.Find(id); m != nil && m.Advance(status) {
		c.changed(id)
	}
}

// Send posts text and streams the reply into the transcript. Empty text and
// sends while a reply is streaming are rejected without side effects.
// Failures mark the user entry as error and return a typed error whose
// domainerrors.UserMessage is suitable for display.
func (c *Channel) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		return err
	}
	ctx = logging.WithUserID(ctx, userID)

	c.mu.Lock()
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrInFlight
	}
	streamCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.cancelled = false

	userMsg := chat.NewUserMessage(text)
	c.transcript.Append(userMsg)
	history := c.transcript.Context()
	reply := chat.NewAssistantMessage("")
	c.transcript.Append(reply)
	c.changed(userMsg.ID)
	c.changed(reply.ID)
	c.mu.Unlock()

	sent := time.AfterFunc(c.config.SentDelay, func() { c.advance(userMsg.ID, chat.StatusSent) })
	delivered := time.AfterFunc(c.config.DeliveredDelay, func() { c.advance(userMsg.ID, chat.StatusDelivered) })

	req := ports.ChatRequest{
		Messages: make([]ports.ChatMessage, len(history)),
		UserID:   userID,
		Language: c.language(ctx),
	}
	for i, m := range history {
		req.Messages[i] = ports.ChatMessage{Role: m.Role.String(), Content: m.Content}
	}

	streamCtx, span := c.tracer.StartChatStreamSpan(streamCtx, len(history))
	full, err := c.stream.StreamChat(streamCtx, req, func(delta string) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if m := c.transcript.Find(reply.ID); m != nil {
			m.Content += delta
			c.changed(reply.ID)
		}
		return nil
	})
	span.Finish(err)

	sent.Stop()
	delivered.Stop()
	cancel()

	// A Cancel that lands after the stream already finished does not undo
	// the reply.
	c.mu.Lock()
	c.cancel = nil
	cancelled := c.cancelled && err != nil
	c.mu.Unlock()

	switch {
	case cancelled:
		c.finishCancelled(ctx, reply.ID)
		return nil
	case err != nil:
		c.finishFailed(ctx, userMsg.ID, reply.ID, err)
		return err
	}

	c.advance(userMsg.ID, chat.StatusRead)
	metrics.RecordChatStream(metrics.StreamCompleted)
	c.persist(ctx, chat.NewExchange(userID, text, full))
	return nil
}

func (c *Channel) finishCancelled(ctx context.Context, replyID string) {
	c.mu.Lock()
	received := 0
	if m := c.transcript.Find(replyID); m != nil {
		received = len(m.Content)
		if m.Content == "" {
			c.transcript.Remove(replyID)
		}
	}
	c.mu.Unlock()
	metrics.RecordChatStream(metrics.StreamCancelled)
	logging.LogStreamCancelled(ctx, c.logger, received)
}

func (c *Channel) finishFailed(ctx context.Context, userMsgID, replyID string, err error) {
	c.mu.Lock()
	if m := c.transcript.Find(replyID); m != nil && m.Content == "" {
		c.transcript.Remove(replyID)
	}
	if m := c.transcript.Find(userMsgID); m != nil && m.Advance(chat.StatusError) {
		c.changed(userMsgID)
	}
	c.mu.Unlock()
	metrics.RecordChatStream(metrics.StreamFailed)
	c.logger.WarnContext(ctx, "chat reply failed", "code", string(domainerrors.CodeOf(err)), "error", err)
}

// Retry re-sends the content of a failed user entry. The failed entry is
// replaced by the new send.
func (c *Channel) Retry(ctx context.Context, messageID string) error {
	c.mu.Lock()
	m := c.transcript.Find(messageID)
	if m == nil || m.Role != chat.RoleUser || m.Status != chat.StatusError {
		c.mu.Unlock()
		return domainerrors.Validation("message %s has not failed", messageID)
	}
	if c.cancel != nil {
		c.mu.Unlock()
		return ErrInFlight
	}
	text := m.Content
	c.transcript.Remove(messageID)
	c.mu.Unlock()
	return c.Send(ctx, text)
}

// persist stores a finished exchange. A failed write is logged and queued;
// the transcript is not touched.
func (c *Channel) persist(ctx context.Context, ex *chat.Exchange) {
	err := c.backend.Insert(ctx, ports.TableChatMessages, ex, nil)
	if err == nil {
		if rmErr := c.cache.Remove(ctx, offline.ChatKey(ex.UserID)); rmErr != nil {
			c.logger.WarnContext(ctx, "failed to drop cached chat history", "error", rmErr)
		}
		return
	}
	c.logger.WarnContext(ctx, "failed to save chat exchange, queueing", "exchange_id", ex.ID, "error", err)
	if _, qErr := c.queue.Enqueue(ctx, domainoffline.EntityChatMessage, domainoffline.ActionCreate, ex); qErr != nil {
		c.logger.ErrorContext(ctx, "failed to queue chat exchange", "exchange_id", ex.ID, "error", qErr)
	}
}

// History returns the persisted exchanges, oldest first. Online reads refresh
// the cache; offline or failed reads fall back to it.
func (c *Channel) History(ctx context.Context) ([]*chat.Exchange, error) {
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		return nil, err
	}
	if c.online() {
		list, err := c.fetch(ctx, userID)
		if err == nil {
			return list, nil
		}
		if !domainerrors.IsTransient(err) {
			return nil, err
		}
		c.logger.InfoContext(ctx, "chat history unavailable, using cache", "error", err)
	}
	var cached []*chat.Exchange
	if c.cache.Get(ctx, offline.ChatKey(userID), &cached) {
		return cached, nil
	}
	return nil, domainerrors.ErrOffline
}

// Refresh refetches the chat history into the cache.
func (c *Channel) Refresh(ctx context.Context) error {
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		return err
	}
	_, err = c.fetch(ctx, userID)
	return err
}

func (c *Channel) fetch(ctx context.Context, userID string) ([]*chat.Exchange, error) {
	var rows []*chat.Exchange
	err := c.backend.Select(ctx, ports.TableChatMessages, ports.Query{
		Filter:     ports.Filter{"user_id": userID},
		OrderBy:    "created_at",
		Descending: true,
		Limit:      c.config.HistoryLimit,
	}, &rows)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	if err := c.cache.Set(ctx, offline.ChatKey(userID), rows, 0); err != nil {
		c.logger.WarnContext(ctx, "failed to cache chat history", "error", err)
	}
	return rows, nil
}

// Resume loads the persisted history into a fresh transcript, after the
// welcome entry. It does nothing once the conversation has started.
func (c *Channel) Resume(ctx context.Context) error {
	history, err := c.History(ctx)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transcript.Len() > 1 || c.cancel != nil {
		return nil
	}
	for _, ex := range history {
		for _, m := range ex.Messages() {
			c.transcript.Append(m)
		}
	}
	return nil
}

// Forget deletes a persisted exchange, queueing the delete when offline.
func (c *Channel) Forget(ctx context.Context, exchangeID string) error {
	if exchangeID == "" {
		return domainerrors.Validation("exchange id is required")
	}
	userID, err := c.identity.UserID(ctx)
	if err != nil {
		return err
	}
	target := chat.Exchange{ID: exchangeID, UserID: userID}
	if c.online() {
		err := c.remove(ctx, &target)
		if err == nil || !domainerrors.IsTransient(err) {
			return err
		}
	}
	_, err = c.queue.Enqueue(ctx, domainoffline.EntityChatMessage, domainoffline.ActionDelete, target)
	return err
}

func (c *Channel) remove(ctx context.Context, ex *chat.Exchange) error {
	if err := c.backend.Delete(ctx, ports.TableChatMessages, ports.Filter{"id": ex.ID, "user_id": ex.UserID}); err != nil {
		return err
	}
	return c.cache.Remove(ctx, offline.ChatKey(ex.UserID))
}

// Register installs the chat_message handlers on the reconciler and the
// history refresh on the refresher.
func (c *Channel) Register(r *offline.Reconciler, refresher *offline.Refresher) {
	upsert := func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var ex chat.Exchange
		if err := op.Decode(&ex); err != nil {
			return err
		}
		return c.backend.Upsert(ctx, ports.TableChatMessages, &ex, "id")
	}
	r.Register(domainoffline.EntityChatMessage, domainoffline.ActionCreate, upsert)
	r.Register(domainoffline.EntityChatMessage, domainoffline.ActionUpdate, upsert)
	r.Register(domainoffline.EntityChatMessage, domainoffline.ActionDelete, func(ctx context.Context, op *domainoffline.PendingOperation) error {
		var ex chat.Exchange
		if err := op.Decode(&ex); err != nil {
			return err
		}
		return c.remove(ctx, &ex)
	})
	if refresher != nil {
		refresher.Register(domainoffline.EntityChatMessage, c.Refresh)
	}
}
