package bot

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/internal/service/ledger"
)

type sent struct {
	Text    string
	Options []chat.Option
}

type fakeTransport struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeTransport) SendPrompt(_ context.Context, _ string, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{Text: text})
	return nil
}

func (f *fakeTransport) SendChoice(_ context.Context, _ string, text string, options []chat.Option) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{Text: text, Options: options})
	return nil
}

func (f *fakeTransport) SendArtifact(context.Context, string, string) error { return nil }

func (f *fakeTransport) messages() []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sent(nil), f.out...)
}

type fakeEngine struct {
	mu      sync.Mutex
	state   chat.State
	handled []chat.Message
	expired []string
}

func (f *fakeEngine) Handle(_ context.Context, msg chat.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handled = append(f.handled, msg)
	return nil
}

func (f *fakeEngine) Expire(_ context.Context, userID string, _ time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.expired = append(f.expired, userID)
	return true
}

func (f *fakeEngine) State(context.Context, string) chat.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

type idleList []string

func (l idleList) IdleUsers(context.Context, time.Time) []string { return l }

type countingSweeper struct{ calls int }

func (c *countingSweeper) Sweep(time.Time) (int, error) {
	c.calls++
	return 0, nil
}

type fixture struct {
	svc       *Service
	engine    *fakeEngine
	transport *fakeTransport
	ledger    ledger.Ledger
	blobs     *countingSweeper
}

func newFixture(t *testing.T, idle idleList) *fixture {
	t.Helper()
	l, err := ledger.OpenFile(filepath.Join(t.TempDir(), "thanks_list.txt"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	f := &fixture{
		engine:    &fakeEngine{state: chat.StateIdle},
		transport: &fakeTransport{},
		ledger:    l,
		blobs:     &countingSweeper{},
	}
	f.svc = NewService(Deps{
		Engine:    f.engine,
		Sessions:  idle,
		Blobs:     f.blobs,
		Ledger:    l,
		Languages: locale.NewResolver(locale.NewMemoryStore(locale.Seed()), "en"),
		Transport: f.transport,
	}, Config{SessionTTL: time.Minute, SweepInterval: time.Hour}, nil)
	return f
}

// deliver sends msgs for user u1 and waits until all were processed.
func (f *fixture) deliver(t *testing.T, msgs ...chat.Message) {
	t.Helper()
	for _, msg := range msgs {
		if msg.UserID == "" {
			msg.UserID = "u1"
		}
		require.NoError(t, f.svc.Deliver(msg))
	}
	require.NoError(t, f.svc.Close(context.Background()))
}

func command(text string) chat.Message {
	return chat.Message{Kind: chat.KindText, Text: text}
}

func choice(token string) chat.Message {
	return chat.Message{Kind: chat.KindChoice, Choice: token, Username: "alice"}
}

func TestStartOffersLanguagesAndSwitches(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)

	f.deliver(t, command("/start"), choice("lang:ru"), command("/help"))

	out := f.transport.messages()
	require.Len(t, out, 3)
	assert.Equal(t, "Choose language:", out[0].Text)
	assert.Equal(t, []chat.Option{
		{Label: "English", Token: "lang:en"},
		{Label: "Русский", Token: "lang:ru"},
	}, out[0].Options)
	assert.Contains(t, out[1].Text, "русский язык")
	assert.Contains(t, out[2].Text, "Привет")
	assert.Empty(t, f.engine.handled)
}

func TestThanksFlow(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)

	f.deliver(t,
		command("/thanks"),
		choice("thanks:yes"),
		choice("thanks:yes"),
		choice("thanks:no"),
	)

	out := f.transport.messages()
	require.Len(t, out, 4)
	assert.Equal(t, []chat.Option{
		{Label: "Yes", Token: "thanks:yes"},
		{Label: "No", Token: "thanks:no"},
	}, out[0].Options)
	assert.Equal(t, "Your 'thanks' was saved.", out[1].Text)
	assert.Equal(t, "You have said thanks already.", out[2].Text)
	assert.Equal(t, "Your 'thanks' was not saved.", out[3].Text)

	names, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, names)
}

func TestThanksWithoutUsername(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)

	f.deliver(t, chat.Message{Kind: chat.KindChoice, Choice: "thanks:yes"})

	out := f.transport.messages()
	require.Len(t, out, 1)
	assert.Equal(t, "Set a username in your profile to say 'thanks'.", out[0].Text)
	names, err := f.ledger.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestUnknownChoice(t *testing.T) {
	defer goleak.VerifyNone(t)

	t.Run("idle", func(t *testing.T) {
		f := newFixture(t, nil)
		f.deliver(t, choice("lang:de"), choice("bogus"))

		out := f.transport.messages()
		require.Len(t, out, 2)
		assert.Equal(t, "You should click on button!", out[0].Text)
		assert.Equal(t, "You should click on button!", out[1].Text)
		assert.Empty(t, f.engine.handled)
	})

	t.Run("mid edit", func(t *testing.T) {
		f := newFixture(t, nil)
		f.engine.state = chat.StateAwaitingTitle
		f.deliver(t, choice("bogus"))

		assert.Empty(t, f.transport.messages())
		require.Len(t, f.engine.handled, 1)
		assert.Equal(t, chat.KindChoice, f.engine.handled[0].Kind)
	})
}

func TestOtherMessagesReachEngineInOrder(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)

	f.deliver(t,
		chat.Message{Kind: chat.KindAudio, Audio: chat.AudioRef{FileName: "song.wav", Handle: "h"}},
		command("Ocean"),
		command("/unknown"),
	)

	require.Len(t, f.engine.handled, 3)
	assert.Equal(t, chat.KindAudio, f.engine.handled[0].Kind)
	assert.Equal(t, "Ocean", f.engine.handled[1].Text)
	assert.Equal(t, "/unknown", f.engine.handled[2].Text)
	assert.False(t, f.engine.handled[0].ReceivedAt.IsZero())
}

func TestSweepQueuesExpiryForIdleUsers(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, idleList{"a", "b"})

	f.svc.Sweep(context.Background())
	require.NoError(t, f.svc.Close(context.Background()))

	assert.ElementsMatch(t, []string{"a", "b"}, f.engine.expired)
	assert.Equal(t, 1, f.blobs.calls)
}

func TestRunStopsWithContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)
	f.svc.cfg.SweepInterval = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, f.svc.Run(ctx))
	require.NoError(t, f.svc.Close(context.Background()))

	assert.GreaterOrEqual(t, f.blobs.calls, 1)
}

func TestApplyLanguageHint(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)

	f.svc.ApplyLanguageHint("u1", "ru-RU,ru;q=0.9")
	f.deliver(t, command("/help"))

	out := f.transport.messages()
	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "Привет")
}

func TestDeliverAfterClose(t *testing.T) {
	defer goleak.VerifyNone(t)
	f := newFixture(t, nil)
	require.NoError(t, f.svc.Close(context.Background()))

	assert.ErrorIs(t, f.svc.Deliver(command("/help")), ErrDispatcherClosed)
}
