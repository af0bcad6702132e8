package session

import (
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"chatrelay/pkg/gateway"
	"chatrelay/pkg/logger"
	"chatrelay/pkg/models"
	"chatrelay/pkg/telemetry"
	"chatrelay/pkg/threads"
)

// Gateway is the inference-backend surface the controller needs.
// *gateway.Client implements it.
type Gateway interface {
	Send(ctx context.Context, req gateway.SendRequest) (*gateway.SendResult, error)
	Upload(ctx context.Context, threadID string, files []gateway.File) ([]byte, error)
}

// Sink receives a streamed reply as it is applied to the session, so the
// caller can relay it incrementally. Start is called once before the
// first chunk; Chunk is called per applied chunk, in arrival order.
type Sink interface {
	Start(threadID string, threadCreated bool) error
	Chunk(delta string) error
}

// Controller owns one user's active conversation: the working message
// sequence, the send/upload entry gates and the streaming decode loop.
// All state mutations happen under one mutex; suspended stream loops
// re-check the generation ownership token before every mutation so a
// loop whose session was replaced can never write into the new session.
type Controller struct {
	mu         sync.Mutex
	owner      string
	threadID   string
	messages   []models.Message
	generation uint64
	sending    bool
	uploading  bool
	// streamIdx is the index of the assistant message currently being
	// filled by a stream, -1 when idle. Mutations always target this
	// explicit index, never "the last element".
	streamIdx int

	sync  *threads.Synchronizer
	store threads.API
	gw    Gateway
}

func NewController(owner string, sync *threads.Synchronizer, store threads.API, gw Gateway) *Controller {
	return &Controller{owner: owner, sync: sync, store: store, gw: gw, streamIdx: -1}
}

// SendOutcome reports a completed send.
type SendOutcome struct {
	ThreadID      string
	ThreadCreated bool
	Reply         string
	Streamed      bool
}

// Send delivers one user message. The user message and an empty
// assistant placeholder are appended before any network call; on any
// transport or decode failure the sequence is restored to its exact
// pre-send state and the error is returned for the caller to surface.
func (c *Controller) Send(ctx context.Context, text string, flags models.FeatureFlags, sink Sink) (*SendOutcome, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, models.ErrEmptyMessage
	}

	c.mu.Lock()
	if c.sending {
		c.mu.Unlock()
		return nil, models.ErrSendInFlight
	}
	snapshot := append([]models.Message(nil), c.messages...)
	now := time.Now().UTC().UnixNano()
	c.messages = append(c.messages,
		models.Message{Role: models.RoleUser, Content: trimmed, TS: now},
		models.Message{Role: models.RoleAssistant, Content: "", TS: now},
	)
	c.streamIdx = len(c.messages) - 1
	c.sending = true
	gen := c.generation
	threadID := c.threadID
	c.mu.Unlock()

	fail := func(err error) (*SendOutcome, error) {
		c.rollback(gen, snapshot)
		telemetry.SendsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	outcome := &SendOutcome{}
	if threadID == "" {
		th, err := c.sync.Create(ctx, c.owner)
		if err != nil {
			return fail(err)
		}
		c.adoptThread(gen, th.ID)
		threadID = th.ID
		outcome.ThreadCreated = true
	}
	outcome.ThreadID = threadID

	res, err := c.gw.Send(ctx, gateway.SendRequest{ThreadID: threadID, Message: trimmed, Features: flags})
	if err != nil {
		return fail(err)
	}

	if res.Stream == nil {
		// single-shot reply: assign in one step. A missing reply field
		// was already logged by the gateway client; the placeholder just
		// stays empty.
		c.mu.Lock()
		if c.generation == gen {
			if i := c.streamIdx; res.HasReply && i >= 0 && i < len(c.messages) {
				c.messages[i].Content = res.Reply
			}
			c.sending = false
			c.streamIdx = -1
		}
		c.mu.Unlock()
		outcome.Reply = res.Reply
		telemetry.SendsTotal.WithLabelValues("ok").Inc()
		return outcome, nil
	}

	outcome.Streamed = true
	stream := res.Stream
	defer stream.Close()
	if sink != nil {
		if err := sink.Start(threadID, outcome.ThreadCreated); err != nil {
			return fail(&models.TransportError{Op: "send_stream", Err: err})
		}
	}

	var accum strings.Builder
	for {
		chunk, err := stream.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if c.staleFor(gen) {
				telemetry.StaleChunksTotal.Inc()
				return outcome, nil
			}
			return fail(&models.TransportError{Op: "send_stream", Err: err})
		}
		accum.Write(chunk)

		c.mu.Lock()
		if c.generation != gen {
			c.mu.Unlock()
			// the owning session was replaced while this loop was
			// suspended: stop consuming, apply nothing, no error
			telemetry.StaleChunksTotal.Inc()
			logger.Info("stream_loop_stale", "owner", c.owner, "thread", threadID)
			return outcome, nil
		}
		// streamIdx is the single source of truth for the placeholder
		// position: a concurrent upload refetch may move the working
		// sequence under this loop. An index that no longer points at a
		// live entry means the placeholder is gone; stop applying.
		i := c.streamIdx
		if i < 0 || i >= len(c.messages) {
			c.sending = false
			c.mu.Unlock()
			telemetry.StaleChunksTotal.Inc()
			logger.Info("stream_loop_detached", "owner", c.owner, "thread", threadID)
			return outcome, nil
		}
		// full replacement of the placeholder, never an append, so every
		// intermediate render shows the complete content received so far
		c.messages[i] = models.Message{Role: models.RoleAssistant, Content: accum.String(), TS: c.messages[i].TS}
		c.mu.Unlock()
		telemetry.StreamChunksTotal.Inc()

		if sink != nil {
			if err := sink.Chunk(string(chunk)); err != nil {
				return fail(&models.TransportError{Op: "send_stream", Err: err})
			}
		}
	}

	c.mu.Lock()
	if c.generation == gen {
		c.sending = false
		c.streamIdx = -1
	}
	c.mu.Unlock()
	outcome.Reply = accum.String()
	telemetry.SendsTotal.WithLabelValues("ok").Inc()
	return outcome, nil
}

// UploadOutcome reports a completed upload. Response carries the
// ingestion endpoint's body for pass-through.
type UploadOutcome struct {
	ThreadID      string
	ThreadCreated bool
	Response      []byte
}

// Upload transmits documents for the active thread, creating the thread
// first when none exists; upload is never attempted against a
// nonexistent thread, and thread creation is not rolled back if the
// upload then fails. On success the full message sequence is refetched
// from the store, since ingestion may append confirmation messages the
// client cannot predict.
func (c *Controller) Upload(ctx context.Context, files []gateway.File) (*UploadOutcome, error) {
	if len(files) == 0 {
		return nil, models.ErrNoFiles
	}
	c.mu.Lock()
	if c.uploading {
		c.mu.Unlock()
		return nil, models.ErrUploadInFlight
	}
	c.uploading = true
	gen := c.generation
	threadID := c.threadID
	c.mu.Unlock()

	finish := func() {
		c.mu.Lock()
		if c.generation == gen {
			c.uploading = false
		}
		c.mu.Unlock()
	}

	created := false
	if threadID == "" {
		th, err := c.sync.Create(ctx, c.owner)
		if err != nil {
			finish()
			telemetry.UploadsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		c.adoptThread(gen, th.ID)
		threadID = th.ID
		created = true
	}

	body, err := c.gw.Upload(ctx, threadID, files)
	if err != nil {
		// existing messages stay untouched; a created-but-unused thread
		// is acceptable, losing a file silently is not
		finish()
		telemetry.UploadsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	if msgs, err := c.store.Messages(ctx, threadID); err != nil {
		logger.Warn("upload_refresh_failed", "thread", threadID, "error", err)
	} else {
		c.mu.Lock()
		if c.generation == gen {
			// a send may be streaming into this session; the store's
			// view does not contain its optimistic pair yet, so carry
			// the pair over and point streamIdx at its new position
			if c.sending && c.streamIdx >= 1 && c.streamIdx < len(c.messages) {
				pair := []models.Message{c.messages[c.streamIdx-1], c.messages[c.streamIdx]}
				c.messages = append(msgs, pair...)
				c.streamIdx = len(c.messages) - 1
			} else {
				c.messages = msgs
			}
		}
		c.mu.Unlock()
	}
	finish()
	telemetry.UploadsTotal.WithLabelValues("ok").Inc()
	return &UploadOutcome{ThreadID: threadID, ThreadCreated: created, Response: body}, nil
}

// SwitchThread replaces the session wholesale with the target thread's
// state. Bumping the generation first invalidates any suspended stream
// loop belonging to the previous session.
func (c *Controller) SwitchThread(ctx context.Context, threadID string) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.threadID = threadID
	c.messages = nil
	c.sending = false
	c.uploading = false
	c.streamIdx = -1
	c.mu.Unlock()

	if threadID == "" {
		return nil
	}
	msgs, err := c.store.Messages(ctx, threadID)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.generation == gen {
		c.messages = msgs
	}
	c.mu.Unlock()
	return nil
}

// rollback restores the pre-send sequence exactly, unless the session
// was already replaced (in which case there is nothing of ours left).
func (c *Controller) rollback(gen uint64, snapshot []models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return
	}
	c.messages = snapshot
	c.sending = false
	c.streamIdx = -1
	telemetry.RollbacksTotal.Inc()
	logger.Warn("send_rollback", "owner", c.owner, "thread", c.threadID)
}

func (c *Controller) staleFor(gen uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation != gen
}

func (c *Controller) adoptThread(gen uint64, threadID string) {
	c.mu.Lock()
	if c.generation == gen {
		c.threadID = threadID
	}
	c.mu.Unlock()
}

// ActiveThread returns the adopted thread id, or "" for a fresh session.
func (c *Controller) ActiveThread() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threadID
}

// Messages returns a copy of the working sequence.
func (c *Controller) Messages() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Message(nil), c.messages...)
}

// Sending reports whether a send is in flight.
func (c *Controller) Sending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Uploading reports whether an upload is in flight.
func (c *Controller) Uploading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uploading
}
