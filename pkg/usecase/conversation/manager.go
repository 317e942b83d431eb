package conversation

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/tolerancia/pkg/adapter"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/utils/logging"
)

const (
	DefaultStorageKey  = "tolerancia-chat-history"
	DefaultMaxMessages = 100
	DefaultApology     = "Lo siento, no pude responder en este momento. Por favor, intentá de nuevo en unos minutos."
)

var (
	ErrBusy            = goerr.New("another request is in flight")
	ErrEmptyMessage    = goerr.New("message is empty")
	ErrComposerLocked  = goerr.New("quota is exhausted until reset")
	ErrMessageNotFound = goerr.New("message not found")
	ErrNotRegenerable  = goerr.New("message cannot be regenerated")
	ErrStaleResponse   = goerr.New("track changed while waiting for the reply")
	errEmptyResponse   = goerr.New("empty response from tutor")
)

// Dispatcher sends one conversational turn to the server
type Dispatcher interface {
	Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error)
}

// Config holds the per-instance settings of a Manager
type Config struct {
	// StorageKey is the key of the archive blob in Storage
	StorageKey string
	// MaxMessages caps each track; the oldest messages are dropped first
	MaxMessages int
	// Track is the track loaded at construction
	Track model.Track
	// Apology is the model message appended when a reply could not be obtained
	Apology string
	// Now replaces time.Now
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.StorageKey == "" {
		c.StorageKey = DefaultStorageKey
	}
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.Track.Validate() != nil {
		c.Track = model.TrackDay1
	}
	if c.Apology == "" {
		c.Apology = DefaultApology
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// NewInput contains parameters for creating a Manager
type NewInput struct {
	Dispatcher Dispatcher
	Storage    adapter.Storage
	Config     Config
}

// Outcome tells how a Send ended
type Outcome int

const (
	// OutcomeReplied: the tutor reply was appended
	OutcomeReplied Outcome = iota + 1
	// OutcomeQuotaExceeded: no reply appended; composing is locked until reset
	OutcomeQuotaExceeded
	// OutcomeFailed: an apology message was appended in place of the reply
	OutcomeFailed
	// OutcomeDiscarded: the track was switched or cleared while sending; nothing more was stored
	OutcomeDiscarded
)

// SendResult describes the messages produced by one Send
type SendResult struct {
	Outcome Outcome
	User    model.Message
	Reply   *model.Message
	Quota   *model.QuotaView
	// Err is the upstream failure behind OutcomeFailed or OutcomeQuotaExceeded
	Err error
}

// Manager owns the per-track conversation on the client. It keeps one track in
// memory, persists every mutation to Storage, and allows one send or
// regenerate in flight at a time; extra attempts are dropped with ErrBusy.
type Manager struct {
	dispatcher Dispatcher
	storage    adapter.Storage
	cfg        Config

	sending   atomic.Bool
	storageMu sync.Mutex

	mu       sync.Mutex
	track    model.Track
	messages []model.Message
	quota    *model.QuotaView
	// epoch changes whenever the in-memory sequence is replaced wholesale, so
	// replies to requests issued before a switch or clear are recognized
	epoch uint64
}

// New creates a Manager and loads the configured track
func New(ctx context.Context, input NewInput) *Manager {
	m := &Manager{
		dispatcher: input.Dispatcher,
		storage:    input.Storage,
		cfg:        input.Config.withDefaults(),
	}
	m.track = m.cfg.Track
	m.messages = m.LoadTrack(ctx, m.track)
	return m
}

// LoadTrack reads the stored sequence of track. Any read failure yields an
// empty sequence and is only logged.
func (m *Manager) LoadTrack(ctx context.Context, track model.Track) []model.Message {
	if err := track.Validate(); err != nil {
		logging.From(ctx).Warn("invalid track requested", logging.ErrAttr(err))
		return []model.Message{}
	}

	m.storageMu.Lock()
	a, err := readArchive(ctx, m.storage, m.cfg.StorageKey)
	m.storageMu.Unlock()
	if err != nil {
		logging.From(ctx).Warn("failed to load conversation, starting empty",
			logging.ErrAttr(err),
			"track", track.Key())
	}

	seq, ok := a[track.Key()]
	if !ok {
		return []model.Message{}
	}
	return truncate(seq, m.cfg.MaxMessages)
}

// Persist stores seq as the sequence of track, capped at MaxMessages. Failures
// are logged and swallowed; the in-memory session stays usable.
func (m *Manager) Persist(ctx context.Context, track model.Track, seq []model.Message) {
	m.updateArchive(ctx, "persist", track, func(a archive) bool {
		a[track.Key()] = truncate(seq, m.cfg.MaxMessages)
		return true
	})
}

// persistIfCurrent is Persist for a sequence taken at epoch. It writes nothing
// and returns false when the track was switched or cleared since then.
func (m *Manager) persistIfCurrent(ctx context.Context, track model.Track, epoch uint64, seq []model.Message) bool {
	stale := false
	m.updateArchive(ctx, "persist", track, func(a archive) bool {
		m.mu.Lock()
		stale = m.epoch != epoch
		m.mu.Unlock()
		if stale {
			return false
		}
		a[track.Key()] = truncate(seq, m.cfg.MaxMessages)
		return true
	})
	return !stale
}

// updateArchive re-reads the whole archive, applies fn and writes it back
// unless fn returns false. A malformed archive is repaired by overwriting it; a
// storage read error skips the write so the other tracks are not lost.
func (m *Manager) updateArchive(ctx context.Context, op string, track model.Track, fn func(a archive) bool) {
	m.storageMu.Lock()
	defer m.storageMu.Unlock()

	logger := logging.From(ctx).With("op", op, "track", track.Key())

	a, err := readArchive(ctx, m.storage, m.cfg.StorageKey)
	if err != nil {
		if !errors.Is(err, errMalformedArchive) {
			logger.Warn("failed to read conversation archive, skipping write", logging.ErrAttr(err))
			return
		}
		logger.Warn("repairing malformed conversation archive", logging.ErrAttr(err))
	}

	if !fn(a) {
		return
	}

	if err := writeArchive(ctx, m.storage, m.cfg.StorageKey, a); err != nil {
		logger.Warn("failed to persist conversation", logging.ErrAttr(err))
	}
}

// Send appends text as a user message and asks the tutor for a reply on the
// current track. Guard rejections (empty text, busy, locked composer) are
// returned as errors and change nothing.
func (m *Manager) Send(ctx context.Context, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if !m.sending.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.sending.Store(false)

	m.mu.Lock()
	if m.quota != nil && m.quota.Exhausted(m.cfg.Now()) {
		resetAt := m.quota.ResetAt
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrComposerLocked, "cannot send", goerr.V("reset_at", resetAt))
	}
	track, epoch := m.track, m.epoch
	history := m.messages
	userMsg := model.NewMessage(model.RoleUser, text, m.cfg.Now())
	m.messages = appendMessage(m.messages, userMsg, m.cfg.MaxMessages)
	seq := m.messages
	m.mu.Unlock()

	if !m.persistIfCurrent(ctx, track, epoch, seq) {
		logging.From(ctx).Debug("track changed before the message was stored", "track", track.Key())
		return &SendResult{Outcome: OutcomeDiscarded, User: userMsg}, nil
	}

	resp, err := m.dispatcher.Chat(ctx, &model.ChatRequest{
		Message: text,
		History: history,
		Day:     track,
	})
	if err == nil && strings.TrimSpace(resp.Response) == "" {
		err = errEmptyResponse
	}

	result := &SendResult{User: userMsg}

	var quotaErr *model.QuotaExceededError
	switch {
	case errors.As(err, &quotaErr):
		q := quotaErr.Quota
		q.Remaining = 0
		result.Outcome = OutcomeQuotaExceeded
		result.Quota = &q
		result.Err = err

	case err != nil:
		logging.From(ctx).Warn("tutor request failed", logging.ErrAttr(err), "track", track.Key())
		reply := model.NewMessage(model.RoleModel, m.cfg.Apology, m.cfg.Now())
		result.Outcome = OutcomeFailed
		result.Reply = &reply
		result.Err = err

	default:
		reply := model.NewMessage(model.RoleModel, resp.Response, m.cfg.Now())
		result.Outcome = OutcomeReplied
		result.Reply = &reply
		result.Quota = resp.RateLimit
	}

	m.mu.Lock()
	if result.Quota != nil {
		q := *result.Quota
		m.quota = &q
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		logging.From(ctx).Debug("discarding reply for a track no longer shown", "track", track.Key())
		result.Outcome = OutcomeDiscarded
		result.Reply = nil
		return result, nil
	}
	if result.Reply == nil {
		m.mu.Unlock()
		return result, nil
	}
	m.messages = appendMessage(m.messages, *result.Reply, m.cfg.MaxMessages)
	seq = m.messages
	m.mu.Unlock()

	if !m.persistIfCurrent(ctx, track, epoch, seq) {
		result.Outcome = OutcomeDiscarded
		result.Reply = nil
	}
	return result, nil
}

// Regenerate replaces the text of model message id with a fresh reply to the
// user message right before it. The request carries only the history preceding
// that user message. On failure the transcript is left unchanged.
func (m *Manager) Regenerate(ctx context.Context, id model.MessageID) (*model.Message, error) {
	if !m.sending.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer m.sending.Store(false)

	m.mu.Lock()
	idx := indexOf(m.messages, id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrMessageNotFound, "cannot regenerate", goerr.V("message_id", id))
	}
	target := m.messages[idx]
	if target.Role != model.RoleModel || idx == 0 || m.messages[idx-1].Role != model.RoleUser {
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrNotRegenerable, "target must be a model reply to a user message",
			goerr.V("message_id", id))
	}
	prompt := m.messages[idx-1].Text
	history := slices.Clip(m.messages[:idx-1])
	track, epoch := m.track, m.epoch
	m.mu.Unlock()

	resp, err := m.dispatcher.Chat(ctx, &model.ChatRequest{
		Message: prompt,
		History: history,
		Day:     track,
	})
	if err == nil && strings.TrimSpace(resp.Response) == "" {
		err = errEmptyResponse
	}
	if err != nil {
		var quotaErr *model.QuotaExceededError
		if errors.As(err, &quotaErr) {
			q := quotaErr.Quota
			q.Remaining = 0
			m.mu.Lock()
			m.quota = &q
			m.mu.Unlock()
		}
		return nil, goerr.Wrap(err, "failed to regenerate reply", goerr.V("message_id", id))
	}

	m.mu.Lock()
	if resp.RateLimit != nil {
		q := *resp.RateLimit
		m.quota = &q
	}
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrStaleResponse, "regenerated reply discarded", goerr.V("message_id", id))
	}
	idx = indexOf(m.messages, id)
	if idx < 0 {
		m.mu.Unlock()
		return nil, goerr.Wrap(ErrMessageNotFound, "message vanished during regeneration", goerr.V("message_id", id))
	}
	updated := target
	updated.Text = resp.Response
	updated.Timestamp = m.cfg.Now().UnixMilli()
	m.messages = replaceAt(m.messages, idx, updated)
	seq := m.messages
	m.mu.Unlock()

	if !m.persistIfCurrent(ctx, track, epoch, seq) {
		return nil, goerr.Wrap(ErrStaleResponse, "regenerated reply discarded", goerr.V("message_id", id))
	}
	return &updated, nil
}

// SwitchTrack replaces the in-memory conversation with the stored one of track.
// The current track needs no save: every mutation is already persisted.
func (m *Manager) SwitchTrack(ctx context.Context, track model.Track) error {
	if err := track.Validate(); err != nil {
		return err
	}

	seq := m.LoadTrack(ctx, track)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.track = track
	m.messages = seq
	m.epoch++
	return nil
}

// Clear removes the stored conversation of track. When track is the current
// one, the in-memory conversation is emptied as well.
func (m *Manager) Clear(ctx context.Context, track model.Track) error {
	if err := track.Validate(); err != nil {
		return err
	}

	// invalidate pending writes of the current track before deleting it
	m.mu.Lock()
	if m.track == track {
		m.messages = []model.Message{}
		m.epoch++
	}
	m.mu.Unlock()

	m.updateArchive(ctx, "clear", track, func(a archive) bool {
		delete(a, track.Key())
		return true
	})
	return nil
}

// Track returns the current track
func (m *Manager) Track() model.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.track
}

// Messages returns a copy of the current conversation
func (m *Manager) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.messages)
}

// Quota returns the last quota state reported by the server, if any
func (m *Manager) Quota() *model.QuotaView {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.quota == nil {
		return nil
	}
	q := *m.quota
	return &q
}

// Busy reports whether a send or regenerate is in flight
func (m *Manager) Busy() bool {
	return m.sending.Load()
}

// CanCompose reports whether a new message may be sent at now
func (m *Manager) CanCompose(now time.Time) bool {
	if m.Busy() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.quota == nil || !m.quota.Exhausted(now)
}
