package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"interview-speech-relay/internal/events"
	"interview-speech-relay/internal/models"
	"interview-speech-relay/internal/protocol"
	"interview-speech-relay/internal/service/stt"
)

// --- fakes ---

type fakeStream struct {
	mu     sync.Mutex
	sent   [][]byte
	closed int
}

func (f *fakeStream) Send(ctx context.Context, audio []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, audio)
	return nil
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
	return nil
}

func (f *fakeStream) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeStream) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

type fakeFactory struct {
	mu      sync.Mutex
	stream  *fakeStream
	openErr error
	opens   int
	lastCfg stt.StreamConfig
	cb      stt.Callback
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{stream: &fakeStream{}}
}

func (f *fakeFactory) OpenStream(ctx context.Context, cfg stt.StreamConfig, cb stt.Callback) (stt.Stream, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.opens++
	f.lastCfg = cfg
	f.cb = cb
	return f.stream, nil
}

func (f *fakeFactory) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

type appendCall struct {
	interviewID string
	token       string
	u           models.Utterance
}

type fakeAppender struct {
	calls chan appendCall
}

func newFakeAppender() *fakeAppender {
	return &fakeAppender{calls: make(chan appendCall, 8)}
}

func (f *fakeAppender) Append(ctx context.Context, interviewID, token string, u models.Utterance) error {
	f.calls <- appendCall{interviewID: interviewID, token: token, u: u}
	return nil
}

func (f *fakeAppender) waitForCall(t *testing.T) appendCall {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for append call")
		return appendCall{}
	}
}

func (f *fakeAppender) assertNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-f.calls:
		t.Fatalf("unexpected append call: %+v", c)
	case <-time.After(100 * time.Millisecond):
	}
}

type fakeNotifier struct {
	mu          sync.Mutex
	errors      []string
	transcripts []models.Utterance
	closed      int
}

func (f *fakeNotifier) NotifyError(message string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, message)
}

func (f *fakeNotifier) NotifyTranscript(u models.Utterance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transcripts = append(f.transcripts, u)
}

func (f *fakeNotifier) CloseConnection() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed++
}

func (f *fakeNotifier) errorMessages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.errors...)
}

func (f *fakeNotifier) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func testDeps(factory *fakeFactory, appender *fakeAppender) Deps {
	return Deps{
		Factory:        factory,
		Appender:       appender,
		Publisher:      events.New(&events.Config{Enabled: false}),
		InterimResults: true,
		Logger:         zerolog.Nop(),
	}
}

func interimResult(text string) stt.Result {
	return stt.Result{Alternatives: []stt.Alternative{{Transcript: text}}}
}

func finalResult(text string) stt.Result {
	return stt.Result{
		Alternatives: []stt.Alternative{{
			Transcript: text,
			Words:      []models.SpeakerWord{{Word: text, SpeakerTag: 1}},
		}},
		IsFinal: true,
	}
}

// --- tests ---

func TestRecognitionSession_StartOpensStreamWithConfig(t *testing.T) {
	factory := newFakeFactory()
	appender := newFakeAppender()
	rec := NewRecognitionSession(testDeps(factory, appender), &fakeNotifier{})
	defer rec.Stop()

	err := rec.Start(context.Background(), RecognitionConfig{
		InterviewID: "int-1",
		Locale:      "uk-UA",
		SampleRate:  16000,
		Token:       "tok",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if rec.State() != StateStreaming {
		t.Errorf("expected STREAMING, got %v", rec.State())
	}
	if factory.lastCfg.LanguageCode != "uk-UA" {
		t.Errorf("unexpected language %q", factory.lastCfg.LanguageCode)
	}
	if factory.lastCfg.SampleRateHz != 16000 {
		t.Errorf("unexpected sample rate %d", factory.lastCfg.SampleRateHz)
	}
	if factory.lastCfg.SpeakerCount != 2 {
		t.Errorf("expected default speaker count 2, got %d", factory.lastCfg.SpeakerCount)
	}
	if !factory.lastCfg.InterimResults {
		t.Error("expected interim results enabled")
	}
}

func TestRecognitionSession_StartWhileStreaming(t *testing.T) {
	factory := newFakeFactory()
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), &fakeNotifier{})
	defer rec.Stop()

	if err := rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"}); err != ErrAlreadyStreaming {
		t.Errorf("expected ErrAlreadyStreaming, got %v", err)
	}
	if factory.openCount() != 1 {
		t.Errorf("expected exactly one open stream, got %d", factory.openCount())
	}
}

func TestRecognitionSession_StartAfterStop(t *testing.T) {
	rec := NewRecognitionSession(testDeps(newFakeFactory(), newFakeAppender()), &fakeNotifier{})

	rec.Stop()

	if err := rec.Start(context.Background(), RecognitionConfig{}); err != ErrSessionFinished {
		t.Errorf("expected ErrSessionFinished, got %v", err)
	}
}

func TestRecognitionSession_FeedBeforeStartIsNoop(t *testing.T) {
	factory := newFakeFactory()
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), &fakeNotifier{})
	defer rec.Stop()

	rec.Feed(context.Background(), []byte("audio"))

	if factory.stream.sentCount() != 0 {
		t.Error("expected no audio written before start")
	}
}

func TestRecognitionSession_FeedForwardsAudio(t *testing.T) {
	factory := newFakeFactory()
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), &fakeNotifier{})
	defer rec.Stop()

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})
	rec.Feed(context.Background(), []byte("frame-1"))
	rec.Feed(context.Background(), []byte("frame-2"))

	if factory.stream.sentCount() != 2 {
		t.Errorf("expected 2 audio frames written, got %d", factory.stream.sentCount())
	}
}

func TestRecognitionSession_StopIdempotent(t *testing.T) {
	factory := newFakeFactory()
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), &fakeNotifier{})

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})

	rec.Stop()
	rec.Stop()
	rec.Stop()

	if factory.stream.closeCount() != 1 {
		t.Errorf("expected exactly one stream close, got %d", factory.stream.closeCount())
	}
	if rec.State() != StateStopped {
		t.Errorf("expected STOPPED, got %v", rec.State())
	}
}

func TestRecognitionSession_FeedAfterStopIsNoop(t *testing.T) {
	factory := newFakeFactory()
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), &fakeNotifier{})

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})
	rec.Stop()
	rec.Feed(context.Background(), []byte("late audio"))

	if factory.stream.sentCount() != 0 {
		t.Error("expected late audio to be discarded")
	}
}

func TestRecognitionSession_FinalAppendsExactlyOnce(t *testing.T) {
	factory := newFakeFactory()
	appender := newFakeAppender()
	rec := NewRecognitionSession(testDeps(factory, appender), &fakeNotifier{})
	defer rec.Stop()

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-9", Token: "tok-1"})

	factory.cb.OnResult(interimResult("hel"))
	factory.cb.OnResult(interimResult("hello"))
	factory.cb.OnResult(finalResult("hello world"))

	call := appender.waitForCall(t)
	if call.interviewID != "int-9" {
		t.Errorf("unexpected interview id %q", call.interviewID)
	}
	if call.token != "tok-1" {
		t.Errorf("unexpected token %q", call.token)
	}
	if !call.u.IsFinal {
		t.Error("appended utterance must be final")
	}
	if call.u.Transcript != "hello world" {
		t.Errorf("unexpected transcript %q", call.u.Transcript)
	}

	// Interims never reach the record service; one final, one append.
	appender.assertNoCall(t)
}

func TestRecognitionSession_InterimNeverAppends(t *testing.T) {
	factory := newFakeFactory()
	appender := newFakeAppender()
	rec := NewRecognitionSession(testDeps(factory, appender), &fakeNotifier{})
	defer rec.Stop()

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})

	factory.cb.OnResult(interimResult("one"))
	factory.cb.OnResult(interimResult("two"))

	appender.assertNoCall(t)
}

func TestRecognitionSession_StreamErrorClosesConnection(t *testing.T) {
	factory := newFakeFactory()
	notifier := &fakeNotifier{}
	rec := NewRecognitionSession(testDeps(factory, newFakeAppender()), notifier)

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})
	factory.cb.OnError(errors.New("inactivity timeout"))

	msgs := notifier.errorMessages()
	if len(msgs) != 1 || msgs[0] != protocol.MsgSocketInactivity {
		t.Errorf("expected exactly the inactivity message, got %v", msgs)
	}
	if notifier.closeCount() != 1 {
		t.Errorf("expected connection close, got %d", notifier.closeCount())
	}
	if rec.State() != StateFailed {
		t.Errorf("expected FAILED, got %v", rec.State())
	}

	// Audio after the failure is discarded.
	rec.Feed(context.Background(), []byte("late"))
	if factory.stream.sentCount() != 0 {
		t.Error("expected no audio written after stream error")
	}
}

func TestRecognitionSession_TimeLimitTearsDownQuietly(t *testing.T) {
	factory := newFakeFactory()
	appender := newFakeAppender()
	notifier := &fakeNotifier{}
	rec := NewRecognitionSession(testDeps(factory, appender), notifier)

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})

	// An event with no alternatives is the provider's duration cap.
	factory.cb.OnResult(stt.Result{})

	if rec.State() != StateStopped {
		t.Errorf("expected STOPPED after time limit, got %v", rec.State())
	}
	if len(notifier.errorMessages()) != 0 {
		t.Errorf("time limit must not produce client errors, got %v", notifier.errorMessages())
	}
	appender.assertNoCall(t)

	rec.Feed(context.Background(), []byte("audio into dead stream"))
	if factory.stream.sentCount() != 0 {
		t.Error("expected no audio fed into a dead stream")
	}
}

func TestRecognitionSession_LateCallbacksIgnoredAfterStop(t *testing.T) {
	factory := newFakeFactory()
	appender := newFakeAppender()
	notifier := &fakeNotifier{}
	rec := NewRecognitionSession(testDeps(factory, appender), notifier)

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})
	rec.Stop()

	factory.cb.OnResult(finalResult("stale"))
	factory.cb.OnError(errors.New("stale error"))
	factory.cb.OnTimeLimit()

	appender.assertNoCall(t)
	if len(notifier.errorMessages()) != 0 {
		t.Errorf("detached handlers must not notify, got %v", notifier.errorMessages())
	}
	if notifier.closeCount() != 0 {
		t.Error("detached handlers must not close the connection")
	}
}

func TestRecognitionSession_EchoTranscripts(t *testing.T) {
	factory := newFakeFactory()
	notifier := &fakeNotifier{}
	deps := testDeps(factory, newFakeAppender())
	deps.EchoTranscripts = true
	rec := NewRecognitionSession(deps, notifier)
	defer rec.Stop()

	rec.Start(context.Background(), RecognitionConfig{InterviewID: "int-1"})
	factory.cb.OnResult(interimResult("hel"))
	factory.cb.OnResult(finalResult("hello"))

	notifier.mu.Lock()
	n := len(notifier.transcripts)
	notifier.mu.Unlock()
	if n != 2 {
		t.Errorf("expected 2 echoed transcripts, got %d", n)
	}
}
