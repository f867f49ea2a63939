package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeChannel is an in-memory Channel for driving a Session in tests.
type fakeChannel struct {
	mu           sync.Mutex
	connected    bool
	connects     int
	connectErr   error
	subscribeErr error
	publishErr   error
	handler      func([]byte)
	topics       []string
	published    [][]byte
	done         chan struct{}
	err          error

	// When set, Publish signals publishStarted and then blocks until
	// publishGate is closed.
	publishStarted chan struct{}
	publishGate    chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{}
}

func (f *fakeChannel) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	f.connects++
	f.done = make(chan struct{})
	f.err = nil
	return nil
}

func (f *fakeChannel) Subscribe(destination string, fn func(payload []byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.topics = append(f.topics, destination)
	f.handler = fn
	return nil
}

func (f *fakeChannel) Publish(destination string, body []byte) error {
	f.mu.Lock()
	started := f.publishStarted
	f.publishStarted = nil
	gate := f.publishGate
	f.mu.Unlock()

	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, body)
	return nil
}

func (f *fakeChannel) Done() <-chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return f.done
}

func (f *fakeChannel) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.err
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connected {
		f.connected = false
		close(f.done)
	}
	return nil
}

// drop simulates the remote side closing the link. A nil err is a clean close.
func (f *fakeChannel) drop(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.connected {
		return
	}
	f.connected = false
	f.err = err
	close(f.done)
}

func (f *fakeChannel) deliver(t *testing.T, frag Fragment) {
	t.Helper()
	payload, err := json.Marshal(frag)
	if err != nil {
		t.Fatalf("marshal fragment: %v", err)
	}
	f.mu.Lock()
	handler := f.handler
	f.mu.Unlock()
	if handler == nil {
		t.Fatal("no subscription handler registered")
	}
	handler(payload)
}

func (f *fakeChannel) lastEnvelope(t *testing.T) Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.published) == 0 {
		t.Fatal("nothing published")
	}
	var env Envelope
	if err := json.Unmarshal(f.published[len(f.published)-1], &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	return env
}

func (f *fakeChannel) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func openSession(t *testing.T, ch *fakeChannel, cfg Config, observers ...Observer) *Session {
	t.Helper()
	s := NewSession(ch, cfg, observers...)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func TestSessionOpenSubscribesTopic(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{SessionID: "session_abc", Role: RoleProfessor})

	if got := s.State(); got != StateConnected {
		t.Fatalf("state = %q, want %q", got, StateConnected)
	}
	ch.mu.Lock()
	topics := append([]string(nil), ch.topics...)
	ch.mu.Unlock()
	if len(topics) != 1 || topics[0] != "/topic/chat/session_abc" {
		t.Fatalf("subscribed topics = %v", topics)
	}

	// Open on an already connected session is a no-op.
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("second Open: %v", err)
	}
	if got := ch.connectCount(); got != 1 {
		t.Fatalf("connect count = %d, want 1", got)
	}
}

func TestSendPublishesEnvelope(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{SessionID: "session_env", Role: RoleProfessor})

	if err := s.Send("  hola  "); err != nil {
		t.Fatalf("Send: %v", err)
	}

	env := ch.lastEnvelope(t)
	if env.Message != "hola" {
		t.Errorf("envelope message = %q, want %q", env.Message, "hola")
	}
	if env.SessionID != "session_env" {
		t.Errorf("envelope sessionId = %q", env.SessionID)
	}
	if env.UserRole != "profesor" {
		t.Errorf("envelope userRole = %q", env.UserRole)
	}
	if len(env.PreviousMessages) != 0 {
		t.Errorf("previousMessages = %v, want empty", env.PreviousMessages)
	}

	msgs := s.Messages()
	if len(msgs) != 1 {
		t.Fatalf("log length = %d, want 1", len(msgs))
	}
	if msgs[0].Status != StatusSent || msgs[0].Sender != SenderUser {
		t.Errorf("user message = %+v", msgs[0])
	}
}

func TestSendEmptyIsNoOp(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	if err := s.Send("   \t  "); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := len(s.Messages()); got != 0 {
		t.Fatalf("log length = %d, want 0", got)
	}
	ch.mu.Lock()
	published := len(ch.published)
	ch.mu.Unlock()
	if published != 0 {
		t.Fatalf("published %d envelopes, want 0", published)
	}
}

func TestAssemblyStatusThenFinal(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	if err := s.Send("pregunta"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ch.deliver(t, Fragment{Message: "Analizando la consulta...", MessageType: MessageTypeStatus})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
	if msgs[1].Status != StatusProcessing || msgs[1].Complete {
		t.Fatalf("status message = %+v", msgs[1])
	}

	ch.deliver(t, Fragment{Message: "respuesta final", MessageType: MessageTypeAssistant, Complete: true})

	msgs = s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length after final = %d, want 2", len(msgs))
	}
	got := msgs[1]
	if got.Body != "respuesta final" {
		t.Errorf("final body = %q", got.Body)
	}
	if got.Status != StatusCompleted || !got.Complete {
		t.Errorf("final message = %+v", got)
	}
}

func TestAssemblyStreamedChunks(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	if err := s.Send("pregunta"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ch.deliver(t, Fragment{Message: "uno", MessageType: MessageTypeAssistant})
	ch.deliver(t, Fragment{Message: "dos", MessageType: MessageTypeAssistant})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
	if msgs[1].Body != "uno\ndos" {
		t.Errorf("accumulated body = %q, want %q", msgs[1].Body, "uno\ndos")
	}
	if msgs[1].Status != StatusStreaming {
		t.Errorf("status = %q, want %q", msgs[1].Status, StatusStreaming)
	}

	// The final fragment replaces the accumulated body outright.
	ch.deliver(t, Fragment{Message: "uno dos tres", MessageType: MessageTypeAssistant, Complete: true})

	msgs = s.Messages()
	if msgs[1].Body != "uno dos tres" {
		t.Errorf("final body = %q, want %q", msgs[1].Body, "uno dos tres")
	}
	if !msgs[1].Complete || msgs[1].Status != StatusCompleted {
		t.Errorf("final message = %+v", msgs[1])
	}
}

func TestAtMostOneIncompleteAssistantMessage(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	frags := []Fragment{
		{Message: "Analizando...", MessageType: MessageTypeStatus},
		{Message: "a", MessageType: MessageTypeAssistant},
		{Message: "b", MessageType: MessageTypeAssistant},
		{Message: "a b c", MessageType: MessageTypeAssistant, Complete: true},
		{Message: "segunda", MessageType: MessageTypeAssistant},
		{Message: "segunda respuesta", MessageType: MessageTypeAssistant, Complete: true},
	}
	for _, frag := range frags {
		ch.deliver(t, frag)
		open := 0
		for _, m := range s.Messages() {
			if m.Sender == SenderBot && !m.Complete {
				open++
			}
		}
		if open > 1 {
			t.Fatalf("%d incomplete assistant messages after %+v", open, frag)
		}
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
}

func TestUserEchoDiscarded(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	ch.deliver(t, Fragment{Message: "hola", MessageType: MessageTypeUser, Complete: true})
	if got := len(s.Messages()); got != 0 {
		t.Fatalf("log length = %d, want 0", got)
	}
}

func TestMalformedFragmentDropped(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	ch.mu.Lock()
	handler := ch.handler
	ch.mu.Unlock()
	handler([]byte("{not json"))

	if got := len(s.Messages()); got != 0 {
		t.Fatalf("log length = %d, want 0", got)
	}
}

func TestSendFailureAppendsNotice(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})
	ch.mu.Lock()
	ch.publishErr = errors.New("broken pipe")
	ch.mu.Unlock()

	err := s.Send("hola")
	if err == nil {
		t.Fatal("Send succeeded, want error")
	}

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
	if msgs[0].Status != StatusError {
		t.Errorf("user message status = %q, want %q", msgs[0].Status, StatusError)
	}
	notice := msgs[1]
	if notice.Sender != SenderBot || !notice.Complete || notice.Body != sendFailureText {
		t.Errorf("failure notice = %+v", notice)
	}

	// The log keeps the failed message; a retry appends a fresh one.
	ch.mu.Lock()
	ch.publishErr = nil
	ch.mu.Unlock()
	if err := s.Send("hola"); err != nil {
		t.Fatalf("retry Send: %v", err)
	}
	if got := len(s.Messages()); got != 3 {
		t.Fatalf("log length after retry = %d, want 3", got)
	}
}

func TestSendNotConnected(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := NewSession(ch, Config{})
	t.Cleanup(s.Close)

	err := s.Send("hola")
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Send error = %v, want ErrNotConnected", err)
	}
	msgs := s.Messages()
	if len(msgs) != 2 || msgs[1].Body != sendFailureText {
		t.Fatalf("log = %+v", msgs)
	}
}

func TestSendInFlightRejected(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	ch.publishStarted = make(chan struct{})
	ch.publishGate = make(chan struct{})
	s := openSession(t, ch, Config{})

	first := make(chan error, 1)
	go func() { first <- s.Send("primero") }()
	<-ch.publishStarted

	if err := s.Send("segundo"); !errors.Is(err, ErrSendInFlight) {
		t.Fatalf("concurrent Send error = %v, want ErrSendInFlight", err)
	}
	// The rejected call leaves no trace in the log.
	if got := len(s.Messages()); got != 1 {
		t.Fatalf("log length during in-flight send = %d, want 1", got)
	}

	close(ch.publishGate)
	if err := <-first; err != nil {
		t.Fatalf("first Send: %v", err)
	}

	// Back-to-back sends are fine once the first completes.
	if err := s.Send("segundo"); err != nil {
		t.Fatalf("follow-up Send: %v", err)
	}
	if got := len(s.Messages()); got != 2 {
		t.Fatalf("log length = %d, want 2", got)
	}
}

func TestContextWindowCapsAtLimit(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{Role: RoleCoordinator, ContextWindow: 10})

	// Twelve qualifying exchanges plus two in-flight assistant messages that
	// must never reach the context window.
	var wantTail []string
	s.mu.Lock()
	for i := 0; i < 6; i++ {
		user := newMessage(SenderUser, "pregunta "+string(rune('a'+i)), StatusSent)
		bot := newMessage(SenderBot, "respuesta "+string(rune('a'+i)), StatusCompleted)
		bot.Complete = true
		s.log = append(s.log, user, bot)
		wantTail = append(wantTail, "Coordinador: "+user.Body, "Asistente: "+bot.Body)
	}
	s.log = append(s.log,
		newMessage(SenderBot, "parcial", StatusStreaming),
		newMessage(SenderBot, "procesando", StatusProcessing),
	)
	s.mu.Unlock()

	if err := s.Send("siguiente"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	env := ch.lastEnvelope(t)
	if len(env.PreviousMessages) != 10 {
		t.Fatalf("previousMessages length = %d, want 10", len(env.PreviousMessages))
	}
	want := wantTail[len(wantTail)-10:]
	for i, line := range env.PreviousMessages {
		if line != want[i] {
			t.Errorf("previousMessages[%d] = %q, want %q", i, line, want[i])
		}
	}
}

func TestCloseIdempotent(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{})

	s.Close()
	s.Close()

	if got := s.State(); got != StateDisconnected {
		t.Fatalf("state = %q, want %q", got, StateDisconnected)
	}
	if err := s.Open(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Open after close = %v, want ErrSessionClosed", err)
	}
	if err := s.Send("hola"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("Send after close = %v, want ErrSessionClosed", err)
	}
}

func TestCleanRemoteCloseDoesNotReconnect(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{ReconnectDelay: 20 * time.Millisecond})

	ch.drop(nil)

	waitFor(t, time.Second, func() bool { return s.State() == StateDisconnected })
	time.Sleep(60 * time.Millisecond)
	if got := ch.connectCount(); got != 1 {
		t.Fatalf("connect count = %d, want 1", got)
	}
}

func TestReconnectAfterUnexpectedClose(t *testing.T) {
	t.Parallel()

	ch := newFakeChannel()
	s := openSession(t, ch, Config{ReconnectDelay: 20 * time.Millisecond})

	ch.drop(errors.New("connection reset"))

	waitFor(t, time.Second, func() bool {
		return s.State() == StateConnected && ch.connectCount() == 2
	})
}

// recordingObserver collects notifications for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	states   []ConnectionState
	appended []Message
	updated  []Message
}

func (r *recordingObserver) ConnectionStateChanged(sessionID string, state ConnectionState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, state)
}

func (r *recordingObserver) MessageAppended(sessionID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.appended = append(r.appended, msg)
}

func (r *recordingObserver) MessageUpdated(sessionID string, msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updated = append(r.updated, msg)
}

func TestFullExchangeScenario(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	ch := newFakeChannel()
	s := openSession(t, ch, Config{Role: RoleProfessor}, obs)

	if err := s.Send("¿cómo va el equipo 3?"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	ch.deliver(t, Fragment{Message: "¿cómo va el equipo 3?", MessageType: MessageTypeUser, Complete: true})
	ch.deliver(t, Fragment{Message: "Analizando la consulta...", MessageType: MessageTypeStatus})
	ch.deliver(t, Fragment{Message: "El equipo 3", MessageType: MessageTypeAssistant})
	ch.deliver(t, Fragment{Message: "va bien", MessageType: MessageTypeAssistant})
	ch.deliver(t, Fragment{Message: "El equipo 3 va bien.", MessageType: MessageTypeAssistant, Complete: true})

	msgs := s.Messages()
	if len(msgs) != 2 {
		t.Fatalf("log length = %d, want 2", len(msgs))
	}
	if msgs[0].Sender != SenderUser || msgs[0].Status != StatusSent {
		t.Errorf("user entry = %+v", msgs[0])
	}
	if msgs[1].Sender != SenderBot || msgs[1].Body != "El equipo 3 va bien." || !msgs[1].Complete {
		t.Errorf("assistant entry = %+v", msgs[1])
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.appended) != 2 {
		t.Errorf("appended notifications = %d, want 2", len(obs.appended))
	}
	if len(obs.states) == 0 || obs.states[len(obs.states)-1] != StateConnected {
		t.Errorf("state notifications = %v", obs.states)
	}
}
