package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vaultclip/internal/apperrors"
)

// Execution contexts that exchange messages.
const (
	ContextBackground = "background"
	ContextPage       = "page"
)

// Default reply deadlines. checkSelection loads the page in the headless
// browser, so it shares the extraction deadline.
const (
	DefaultTimeout    = 5 * time.Second
	ExtractionTimeout = 10 * time.Second
)

// TimeoutFor returns the reply deadline used for action.
func TimeoutFor(action string) time.Duration {
	switch action {
	case ActionExtractContent, ActionExtractSelection, ActionCheckSelection:
		return ExtractionTimeout
	default:
		return DefaultTimeout
	}
}

// Handler answers one action. The returned value must be JSON-encodable.
type Handler func(ctx context.Context, msg Message) (any, error)

type reply struct {
	value any
	err   error
}

type envelope struct {
	ctx   context.Context
	msg   Message
	reply chan reply
}

type receiver struct {
	handlers map[string]Handler
	inbox    chan envelope
}

// Bus routes request/response messages between execution contexts. Each
// registered context drains its own inbox; handlers never share state except
// through message payloads.
type Bus struct {
	mu        sync.RWMutex
	receivers map[string]*receiver
	log       logrus.FieldLogger
}

func NewBus(logger logrus.FieldLogger) *Bus {
	return &Bus{
		receivers: map[string]*receiver{},
		log:       logger.WithField("component", "messaging"),
	}
}

// Register starts serving handlers for contextName until ctx is cancelled.
// Registering a name twice replaces the previous receiver.
func (b *Bus) Register(ctx context.Context, contextName string, handlers map[string]Handler) {
	r := &receiver{handlers: handlers, inbox: make(chan envelope)}

	b.mu.Lock()
	b.receivers[contextName] = r
	b.mu.Unlock()

	log := b.log.WithField("context", contextName)
	log.WithField("actions", len(handlers)).Info("Receiver registered")

	go func() {
		defer func() {
			b.mu.Lock()
			if b.receivers[contextName] == r {
				delete(b.receivers, contextName)
			}
			b.mu.Unlock()
			log.Info("Receiver stopped")
		}()
		for {
			select {
			case env := <-r.inbox:
				go r.dispatch(env)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (r *receiver) dispatch(env envelope) {
	h, ok := r.handlers[env.msg.Action]
	if !ok {
		env.reply <- reply{err: apperrors.Newf(apperrors.KindInvalidInput, "Unknown action: %s", env.msg.Action)}
		return
	}
	value, err := h(env.ctx, env.msg)
	env.reply <- reply{value: value, err: err}
}

// Request sends msg to contextName and waits for the reply. A zero timeout
// selects TimeoutFor(msg.Action). It fails with KindExtractionUnsupported when
// nothing is registered under contextName and with KindMessageTimeout when no
// reply arrives in time.
func (b *Bus) Request(ctx context.Context, contextName string, msg Message, timeout time.Duration) (any, error) {
	if timeout <= 0 {
		timeout = TimeoutFor(msg.Action)
	}
	log := b.log.WithFields(logrus.Fields{"context": contextName, "action": msg.Action})

	b.mu.RLock()
	r, ok := b.receivers[contextName]
	b.mu.RUnlock()
	if !ok {
		log.Warn("No receiver registered")
		return nil, apperrors.New(apperrors.KindExtractionUnsupported, apperrors.MsgExtractionFailed)
	}

	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := envelope{ctx: reqCtx, msg: msg, reply: make(chan reply, 1)}
	select {
	case r.inbox <- env:
	case <-reqCtx.Done():
		return nil, b.timeoutErr(ctx, reqCtx, log)
	}

	select {
	case rep := <-env.reply:
		return rep.value, rep.err
	case <-reqCtx.Done():
		return nil, b.timeoutErr(ctx, reqCtx, log)
	}
}

func (b *Bus) timeoutErr(parent, reqCtx context.Context, log logrus.FieldLogger) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	log.Warn("Message timed out")
	return apperrors.Wrap(apperrors.KindMessageTimeout, apperrors.MsgMessageTimeout, reqCtx.Err())
}

// Call sends msg and decodes the reply into out by way of JSON, so receivers
// may answer with any encodable shape.
func (b *Bus) Call(ctx context.Context, contextName string, msg Message, timeout time.Duration, out any) error {
	value, err := b.Request(ctx, contextName, msg, timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if direct, ok := value.(json.RawMessage); ok {
		return json.Unmarshal(direct, out)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode reply: %w", err)
	}
	return json.Unmarshal(raw, out)
}
