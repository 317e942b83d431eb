package conversation_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/m-mizutani/tolerancia/pkg/model"
	"github.com/m-mizutani/tolerancia/pkg/usecase/conversation"
)

const testKey = "test-archive"

// Mock Storage
type mockStorage struct {
	mu       sync.Mutex
	data     map[string][]byte
	getErr   error
	putErr   error
	putCalls int
	// getHook runs at the start of every Get, outside the mock's lock
	getHook func()
}

func newMockStorage() *mockStorage {
	return &mockStorage{data: make(map[string][]byte)}
}

func (m *mockStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if m.getHook != nil {
		m.getHook()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.data[key], nil
}

func (m *mockStorage) Put(ctx context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putCalls++
	if m.putErr != nil {
		return m.putErr
	}
	m.data[key] = data
	return nil
}

func (m *mockStorage) archive(t *testing.T) map[string][]model.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string][]model.Message{}
	if raw, ok := m.data[testKey]; ok {
		gt.NoError(t, json.Unmarshal(raw, &out))
	}
	return out
}

// Mock Dispatcher
type mockDispatcher struct {
	mu       sync.Mutex
	chatFunc func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error)
	requests []*model.ChatRequest
}

func (m *mockDispatcher) Chat(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.chatFunc != nil {
		return m.chatFunc(ctx, req)
	}
	return nil, errors.New("not implemented")
}

func (m *mockDispatcher) lastRequest() *model.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return nil
	}
	return m.requests[len(m.requests)-1]
}

func replyWith(text string) func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
	return func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		return &model.ChatResponse{Response: text}, nil
	}
}

// tickingClock advances one millisecond per call so timestamps differ
type tickingClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *tickingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func (c *tickingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	storage    *mockStorage
	dispatcher *mockDispatcher
	clock      *tickingClock
}

func newFixture() *fixture {
	return &fixture{
		storage:    newMockStorage(),
		dispatcher: &mockDispatcher{},
		clock:      &tickingClock{now: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)},
	}
}

func (f *fixture) manager(ctx context.Context, track model.Track) *conversation.Manager {
	return conversation.New(ctx, conversation.NewInput{
		Dispatcher: f.dispatcher,
		Storage:    f.storage,
		Config: conversation.Config{
			StorageKey:  testKey,
			MaxMessages: conversation.DefaultMaxMessages,
			Track:       track,
			Now:         f.clock.Now,
		},
	})
}

func (f *fixture) seed(t *testing.T, archive map[string][]model.Message) {
	t.Helper()
	raw, err := json.Marshal(archive)
	gt.NoError(t, err)
	f.storage.data[testKey] = raw
}

func msg(id string, role model.Role, text string, ts int64) model.Message {
	return model.Message{ID: model.MessageID(id), Role: role, Text: text, Timestamp: ts}
}

func TestSendAppendsAndPersists(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		return &model.ChatResponse{
			Response:  "Es el rango de activación en el que podemos funcionar.",
			RateLimit: &model.QuotaView{Remaining: 49, Limit: 50, ResetAt: f.clock.now.Add(24 * time.Hour)},
		}, nil
	}
	m := f.manager(ctx, model.TrackDay1)

	result, err := m.Send(ctx, "¿Qué es la ventana de tolerancia?")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
	gt.V(t, result.Reply).NotNil()

	req := f.dispatcher.lastRequest()
	gt.Equal(t, req.Message, "¿Qué es la ventana de tolerancia?")
	gt.Equal(t, req.Day, model.TrackDay1)
	gt.A(t, req.History).Length(0)

	messages := m.Messages()
	gt.A(t, messages).Length(2)
	gt.Equal(t, messages[0].Role, model.RoleUser)
	gt.Equal(t, messages[0].Text, "¿Qué es la ventana de tolerancia?")
	gt.Equal(t, messages[1].Role, model.RoleModel)
	gt.Equal(t, messages[1].Text, "Es el rango de activación en el que podemos funcionar.")

	stored := f.storage.archive(t)
	gt.Equal(t, stored["1"], messages)

	gt.Equal(t, m.Quota().Remaining, 49)
}

func TestSendHistoryExcludesNewMessage(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = replyWith("ok")
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Send(ctx, "primero")
	gt.NoError(t, err)
	_, err = m.Send(ctx, "segundo")
	gt.NoError(t, err)

	req := f.dispatcher.lastRequest()
	gt.Equal(t, req.Message, "segundo")
	gt.A(t, req.History).Length(2)
	gt.Equal(t, req.History[0].Text, "primero")
	gt.Equal(t, req.History[1].Text, "ok")
}

func TestSendGuards(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Send(ctx, "  \n ")
	gt.True(t, errors.Is(err, conversation.ErrEmptyMessage))
	gt.A(t, m.Messages()).Length(0)
	gt.Equal(t, f.storage.putCalls, 0)
}

func TestSendFailureAppendsApology(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		return nil, goerr.New("unexpected response status", goerr.V("status", 500))
	}
	m := f.manager(ctx, model.TrackDay2)

	result, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeFailed)
	gt.Error(t, result.Err)

	messages := m.Messages()
	gt.A(t, messages).Length(2)
	gt.Equal(t, messages[1].Role, model.RoleModel)
	gt.Equal(t, messages[1].Text, conversation.DefaultApology)
	gt.A(t, f.storage.archive(t)["2"]).Length(2)

	// the conversation remains usable
	f.dispatcher.chatFunc = replyWith("ya estoy")
	result, err = m.Send(ctx, "¿estás?")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
	gt.A(t, m.Messages()).Length(4)
}

func TestSendEmptyReplyIsFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = replyWith("  ")
	m := f.manager(ctx, model.TrackDay1)

	result, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeFailed)
	gt.Equal(t, m.Messages()[1].Text, conversation.DefaultApology)
}

func TestSendQuotaExceeded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	resetAt := f.clock.now.Add(2 * time.Hour)
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		qe := &model.QuotaExceededError{
			Message: "daily limit reached",
			Quota:   model.QuotaView{Remaining: 0, Limit: 50, ResetAt: resetAt},
		}
		return nil, goerr.Wrap(qe, "quota exceeded")
	}
	m := f.manager(ctx, model.TrackDay1)

	result, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeQuotaExceeded)
	gt.Nil(t, result.Reply)
	gt.Equal(t, result.Quota.Limit, 50)

	// the user message stays, no model message is added
	messages := m.Messages()
	gt.A(t, messages).Length(1)
	gt.Equal(t, messages[0].Role, model.RoleUser)
	gt.A(t, f.storage.archive(t)["1"]).Length(1)

	gt.False(t, m.CanCompose(f.clock.now))
	_, err = m.Send(ctx, "otra vez")
	gt.True(t, errors.Is(err, conversation.ErrComposerLocked))
	gt.A(t, m.Messages()).Length(1)

	f.clock.Advance(2 * time.Hour)
	gt.True(t, m.CanCompose(f.clock.now.Add(time.Millisecond)))
	f.dispatcher.chatFunc = replyWith("hola de nuevo")
	result, err = m.Send(ctx, "otra vez")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
}

func TestSingleRequestInFlight(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, map[string][]model.Message{
		"1": {msg("u1", model.RoleUser, "X", 1), msg("m1", model.RoleModel, "Y", 2)},
	})

	started := make(chan struct{})
	release := make(chan struct{})
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		close(started)
		<-release
		return &model.ChatResponse{Response: "listo"}, nil
	}
	m := f.manager(ctx, model.TrackDay1)

	type sent struct {
		result *conversation.SendResult
		err    error
	}
	done := make(chan sent)
	go func() {
		result, err := m.Send(ctx, "primero")
		done <- sent{result, err}
	}()
	<-started

	gt.True(t, m.Busy())
	gt.False(t, m.CanCompose(time.Now()))

	_, err := m.Send(ctx, "segundo")
	gt.True(t, errors.Is(err, conversation.ErrBusy))
	_, err = m.Regenerate(ctx, "m1")
	gt.True(t, errors.Is(err, conversation.ErrBusy))

	// the optimistic user message is visible while waiting
	gt.A(t, m.Messages()).Length(3)

	close(release)
	r := <-done
	gt.NoError(t, r.err)
	gt.Equal(t, r.result.Outcome, conversation.OutcomeReplied)
	gt.A(t, m.Messages()).Length(4)
	gt.False(t, m.Busy())

	f.dispatcher.mu.Lock()
	gt.A(t, f.dispatcher.requests).Length(1)
	f.dispatcher.mu.Unlock()
}

func TestRegenerateReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, map[string][]model.Message{
		"1": {msg("u1", model.RoleUser, "X", 1), msg("m1", model.RoleModel, "Y", 2)},
	})
	f.dispatcher.chatFunc = replyWith("Z")
	m := f.manager(ctx, model.TrackDay1)

	updated, err := m.Regenerate(ctx, "m1")
	gt.NoError(t, err)
	gt.Equal(t, updated.ID, model.MessageID("m1"))
	gt.Equal(t, updated.Text, "Z")

	messages := m.Messages()
	gt.A(t, messages).Length(2)
	gt.Equal(t, messages[0], msg("u1", model.RoleUser, "X", 1))
	gt.Equal(t, messages[1].ID, model.MessageID("m1"))
	gt.Equal(t, messages[1].Text, "Z")
	gt.True(t, messages[1].Timestamp != 2)

	req := f.dispatcher.lastRequest()
	gt.Equal(t, req.Message, "X")
	gt.A(t, req.History).Length(0)

	gt.Equal(t, f.storage.archive(t)["1"], messages)
}

func TestRegenerateMiddleOfConversation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	original := []model.Message{
		msg("u1", model.RoleUser, "a", 1),
		msg("m1", model.RoleModel, "b", 2),
		msg("u2", model.RoleUser, "c", 3),
		msg("m2", model.RoleModel, "d", 4),
		msg("u3", model.RoleUser, "e", 5),
		msg("m3", model.RoleModel, "f", 6),
	}
	f.seed(t, map[string][]model.Message{"3": original})
	f.dispatcher.chatFunc = replyWith("d2")
	m := f.manager(ctx, model.TrackDay3)

	before := m.Messages()
	_, err := m.Regenerate(ctx, "m2")
	gt.NoError(t, err)

	req := f.dispatcher.lastRequest()
	gt.Equal(t, req.Message, "c")
	gt.Equal(t, req.Day, model.TrackDay3)
	gt.Equal(t, req.History, original[:2])

	after := m.Messages()
	gt.A(t, after).Length(6)
	for i := range after {
		if i == 3 {
			continue
		}
		gt.Equal(t, after[i], original[i])
	}
	gt.Equal(t, after[3].ID, model.MessageID("m2"))
	gt.Equal(t, after[3].Text, "d2")

	// earlier snapshots are not aliased
	gt.Equal(t, before[3].Text, "d")
}

func TestRegenerateFailureLeavesTranscript(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	original := []model.Message{msg("u1", model.RoleUser, "X", 1), msg("m1", model.RoleModel, "Y", 2)}
	f.seed(t, map[string][]model.Message{"1": original})
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		return nil, errors.New("upstream unavailable")
	}
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Regenerate(ctx, "m1")
	gt.Error(t, err)
	gt.Equal(t, m.Messages(), original)
	gt.Equal(t, f.storage.putCalls, 0)
}

func TestRegenerateInvalidTargets(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, map[string][]model.Message{
		"1": {
			msg("m0", model.RoleModel, "bienvenida", 1),
			msg("u1", model.RoleUser, "X", 2),
			msg("m1", model.RoleModel, "Y", 3),
			msg("m2", model.RoleModel, "Y2", 4),
		},
	})
	f.dispatcher.chatFunc = replyWith("Z")
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Regenerate(ctx, "missing")
	gt.True(t, errors.Is(err, conversation.ErrMessageNotFound))

	_, err = m.Regenerate(ctx, "u1")
	gt.True(t, errors.Is(err, conversation.ErrNotRegenerable))

	// model message without any predecessor
	_, err = m.Regenerate(ctx, "m0")
	gt.True(t, errors.Is(err, conversation.ErrNotRegenerable))

	// model message preceded by another model message
	_, err = m.Regenerate(ctx, "m2")
	gt.True(t, errors.Is(err, conversation.ErrNotRegenerable))

	f.dispatcher.mu.Lock()
	gt.A(t, f.dispatcher.requests).Length(0)
	f.dispatcher.mu.Unlock()
}

func TestSwitchTrackIsolation(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		return &model.ChatResponse{Response: fmt.Sprintf("día %d", req.Day)}, nil
	}
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Send(ctx, "hola día 1")
	gt.NoError(t, err)
	track1 := m.Messages()

	gt.NoError(t, m.SwitchTrack(ctx, model.TrackDay2))
	gt.Equal(t, m.Track(), model.TrackDay2)
	gt.A(t, m.Messages()).Length(0)

	_, err = m.Send(ctx, "hola día 2")
	gt.NoError(t, err)
	gt.Equal(t, m.Messages()[1].Text, "día 2")

	gt.NoError(t, m.SwitchTrack(ctx, model.TrackDay1))
	gt.Equal(t, m.Messages(), track1)

	gt.Error(t, m.SwitchTrack(ctx, model.Track(7)))
	gt.Equal(t, m.Track(), model.TrackDay1)
}

func TestReplyAfterSwitchIsDiscarded(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	started := make(chan struct{})
	release := make(chan struct{})
	f.dispatcher.chatFunc = func(ctx context.Context, req *model.ChatRequest) (*model.ChatResponse, error) {
		close(started)
		<-release
		return &model.ChatResponse{Response: "tarde"}, nil
	}
	m := f.manager(ctx, model.TrackDay1)

	type sent struct {
		result *conversation.SendResult
		err    error
	}
	done := make(chan sent)
	go func() {
		result, err := m.Send(ctx, "hola")
		done <- sent{result, err}
	}()
	<-started

	gt.NoError(t, m.SwitchTrack(ctx, model.TrackDay2))
	close(release)
	r := <-done
	gt.NoError(t, r.err)
	gt.Equal(t, r.result.Outcome, conversation.OutcomeDiscarded)
	gt.Nil(t, r.result.Reply)
	gt.A(t, m.Messages()).Length(0)

	stored := f.storage.archive(t)
	gt.A(t, stored["1"]).Length(1)
	gt.Equal(t, stored["1"][0].Text, "hola")
	_, ok := stored["2"]
	gt.False(t, ok)
}

func TestClearWhileMessageIsBeingStored(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.dispatcher.chatFunc = replyWith("ok")
	m := f.manager(ctx, model.TrackDay1)

	// Clear runs while Send is about to store the optimistic user message
	var once sync.Once
	cleared := make(chan error, 1)
	f.storage.getHook = func() {
		once.Do(func() {
			go func() { cleared <- m.Clear(ctx, model.TrackDay1) }()
			for len(m.Messages()) != 0 {
				time.Sleep(time.Millisecond)
			}
		})
	}

	result, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.NoError(t, <-cleared)

	gt.Equal(t, result.Outcome, conversation.OutcomeDiscarded)
	gt.Nil(t, result.Reply)
	gt.A(t, m.Messages()).Length(0)

	// the cleared track is not written back and no reply was requested
	_, ok := f.storage.archive(t)["1"]
	gt.False(t, ok)
	f.storage.mu.Lock()
	gt.Equal(t, f.storage.putCalls, 1)
	f.storage.mu.Unlock()
	f.dispatcher.mu.Lock()
	gt.A(t, f.dispatcher.requests).Length(0)
	f.dispatcher.mu.Unlock()

	// the session keeps working on the cleared track
	f.storage.getHook = nil
	result, err = m.Send(ctx, "de nuevo")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
	gt.A(t, f.storage.archive(t)["1"]).Length(2)
}

func TestPersistTruncates(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	m := f.manager(ctx, model.TrackDay1)

	var seq []model.Message
	for i := 0; i < 150; i++ {
		seq = append(seq, msg(fmt.Sprintf("id-%03d", i), model.RoleUser, fmt.Sprintf("m%d", i), int64(i)))
	}

	for _, track := range model.Tracks() {
		m.Persist(ctx, track, seq)
		loaded := m.LoadTrack(ctx, track)
		gt.A(t, loaded).Length(100)
		gt.Equal(t, loaded, seq[50:])
		gt.Equal(t, loaded[0].ID, model.MessageID("id-050"))
	}

	// the argument is not modified
	gt.A(t, seq).Length(150)
}

func TestSendKeepsCap(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	var seq []model.Message
	for i := 0; i < 100; i++ {
		seq = append(seq, msg(fmt.Sprintf("id-%03d", i), model.RoleUser, "x", int64(i)))
	}
	f.seed(t, map[string][]model.Message{"1": seq})
	f.dispatcher.chatFunc = replyWith("y")
	m := f.manager(ctx, model.TrackDay1)

	_, err := m.Send(ctx, "nuevo")
	gt.NoError(t, err)

	messages := m.Messages()
	gt.A(t, messages).Length(100)
	gt.Equal(t, messages[0].ID, model.MessageID("id-002"))
	gt.Equal(t, messages[99].Text, "y")
	gt.A(t, f.storage.archive(t)["1"]).Length(100)
}

func TestLoadTrackReadFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storage.getErr = errors.New("storage unavailable")

	m := f.manager(ctx, model.TrackDay1)
	gt.A(t, m.Messages()).Length(0)
	gt.A(t, m.LoadTrack(ctx, model.TrackDay2)).Length(0)

	// writes are skipped rather than overwriting an archive that could not be read
	f.dispatcher.chatFunc = replyWith("ok")
	result, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
	gt.A(t, m.Messages()).Length(2)
	gt.Equal(t, f.storage.putCalls, 0)
}

func TestMalformedArchiveIsRepaired(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storage.data[testKey] = []byte(`{"1": [ this is not json`)

	m := f.manager(ctx, model.TrackDay1)
	gt.A(t, m.Messages()).Length(0)

	f.dispatcher.chatFunc = replyWith("ok")
	_, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.A(t, f.storage.archive(t)["1"]).Length(2)
}

func TestInvalidEntriesAreDropped(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storage.data[testKey] = []byte(`{
		"1": [{"id":"a","role":"user","text":"hola","timestamp":1},{"id":"b","role":"robot","text":"?","timestamp":2}],
		"9": [{"id":"c","role":"user","text":"x","timestamp":3}]
	}`)

	m := f.manager(ctx, model.TrackDay1)
	messages := m.Messages()
	gt.A(t, messages).Length(1)
	gt.Equal(t, messages[0].ID, model.MessageID("a"))
}

func TestWriteFailureKeepsSessionUsable(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.storage.putErr = errors.New("quota exceeded")
	f.dispatcher.chatFunc = replyWith("ok")
	m := f.manager(ctx, model.TrackDay1)

	for i := 0; i < 3; i++ {
		result, err := m.Send(ctx, fmt.Sprintf("mensaje %d", i))
		gt.NoError(t, err)
		gt.Equal(t, result.Outcome, conversation.OutcomeReplied)
	}
	gt.A(t, m.Messages()).Length(6)
	gt.Number(t, f.storage.putCalls).GreaterOrEqual(6)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.seed(t, map[string][]model.Message{
		"1": {msg("u1", model.RoleUser, "X", 1)},
		"2": {msg("u2", model.RoleUser, "W", 2)},
	})
	m := f.manager(ctx, model.TrackDay1)
	gt.A(t, m.Messages()).Length(1)

	gt.NoError(t, m.Clear(ctx, model.TrackDay1))
	gt.A(t, m.Messages()).Length(0)

	stored := f.storage.archive(t)
	_, ok := stored["1"]
	gt.False(t, ok)
	gt.A(t, stored["2"]).Length(1)

	// clearing another track leaves the current conversation alone
	f.dispatcher.chatFunc = replyWith("ok")
	_, err := m.Send(ctx, "hola")
	gt.NoError(t, err)
	gt.NoError(t, m.Clear(ctx, model.TrackDay2))
	gt.A(t, m.Messages()).Length(2)
	_, ok = f.storage.archive(t)["2"]
	gt.False(t, ok)

	gt.Error(t, m.Clear(ctx, model.Track(0)))
}

func TestInstancesWithDifferentKeysDoNotCollide(t *testing.T) {
	ctx := context.Background()
	storage := newMockStorage()
	dispatcher := &mockDispatcher{chatFunc: replyWith("ok")}

	a := conversation.New(ctx, conversation.NewInput{
		Dispatcher: dispatcher, Storage: storage,
		Config: conversation.Config{StorageKey: "alice"},
	})
	b := conversation.New(ctx, conversation.NewInput{
		Dispatcher: dispatcher, Storage: storage,
		Config: conversation.Config{StorageKey: "bob"},
	})

	_, err := a.Send(ctx, "hola")
	gt.NoError(t, err)

	gt.A(t, a.LoadTrack(ctx, model.TrackDay1)).Length(2)
	gt.A(t, b.LoadTrack(ctx, model.TrackDay1)).Length(0)
}
