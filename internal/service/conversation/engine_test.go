package conversation

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/internal/service/media"
	"github.com/zhouzirui/tagbot/backend/internal/service/session"
)

var fakeMP3 = append([]byte{0xFF, 0xFB, 0x90, 0x64}, bytes.Repeat([]byte{0x55}, 256)...)

type delivered struct {
	FileName string
	Tags     media.Tags
}

type recordingTransport struct {
	mu        sync.Mutex
	prompts   []string
	artifacts []delivered
	failSend  error
}

func (t *recordingTransport) SendPrompt(_ context.Context, _ string, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.prompts = append(t.prompts, text)
	return nil
}

func (t *recordingTransport) SendChoice(_ context.Context, _ string, text string, _ []chat.Option) error {
	return t.SendPrompt(context.Background(), "", text)
}

func (t *recordingTransport) SendArtifact(_ context.Context, _ string, path string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failSend != nil {
		return t.failSend
	}
	tags, err := media.NewTagger().Read(path)
	if err != nil {
		return err
	}
	t.artifacts = append(t.artifacts, delivered{FileName: filepath.Base(path), Tags: tags})
	return nil
}

// dirDownloader writes fresh content for every handle it is asked for.
type dirDownloader struct {
	calls int
	err   error
}

func (d *dirDownloader) Download(_ context.Context, _ string, destDir, fileName string) (string, error) {
	d.calls++
	if d.err != nil {
		return "", d.err
	}
	if err := os.MkdirAll(destDir, 0o700); err != nil {
		return "", err
	}
	path := filepath.Join(destDir, fileName)
	return path, os.WriteFile(path, []byte("RIFF....WAVE"), 0o600)
}

// renameNormalizer swaps the source for an MP3 under the canonical extension.
type renameNormalizer struct {
	calls int
	err   error
}

func (n *renameNormalizer) Normalize(_ context.Context, path string) (string, error) {
	n.calls++
	if n.err != nil {
		return "", n.err
	}
	out := strings.TrimSuffix(path, filepath.Ext(path)) + media.CanonicalExt
	if err := os.WriteFile(out, fakeMP3, 0o600); err != nil {
		return "", err
	}
	if out != path {
		if err := os.Remove(path); err != nil {
			return "", err
		}
	}
	return out, nil
}

type brokenTagger struct{}

func (brokenTagger) Write(path string, _ media.Tags) error {
	return &media.TagWriteError{Path: path, Err: errors.New("read-only")}
}

type harness struct {
	engine     *Engine
	sessions   *session.Store
	transport  *recordingTransport
	downloader *dirDownloader
	normalizer *renameNormalizer
	workDir    string
}

func newHarness(t *testing.T, tagger media.TagCodec) *harness {
	t.Helper()
	if tagger == nil {
		tagger = media.NewTagger()
	}
	h := &harness{
		sessions:   session.NewStore(),
		transport:  &recordingTransport{},
		downloader: &dirDownloader{},
		normalizer: &renameNormalizer{},
		workDir:    t.TempDir(),
	}
	texts := locale.NewResolver(locale.NewMemoryStore(locale.Seed()), "en")
	h.engine = NewEngine(Deps{
		Sessions:   h.sessions,
		Transport:  h.transport,
		Downloader: h.downloader,
		Processor:  media.NewPipeline(h.normalizer, tagger, nil),
		Texts:      texts,
		WorkDir:    h.workDir,
	}, nil)
	return h
}

func (h *harness) send(t *testing.T, msg chat.Message) error {
	t.Helper()
	msg.UserID = "u1"
	return h.engine.Handle(context.Background(), msg)
}

func audio(name string) chat.Message {
	return chat.Message{Kind: chat.KindAudio, Audio: chat.AudioRef{FileName: name, Handle: "h-" + name}}
}

func text(s string) chat.Message {
	return chat.Message{Kind: chat.KindText, Text: s}
}

func (h *harness) assertNoFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(h.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "session files must be removed")
}

func TestFullEditDeliversTaggedMP3(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.send(t, audio("song.wav")))
	assert.Equal(t, chat.StateAwaitingTitle, h.engine.State(context.Background(), "u1"))

	require.NoError(t, h.send(t, text("Ocean")))
	assert.Equal(t, chat.StateAwaitingArtist, h.engine.State(context.Background(), "u1"))

	require.NoError(t, h.send(t, text("Jane")))

	assert.Equal(t, []string{"Enter title.", "Enter artist."}, h.transport.prompts)
	require.Len(t, h.transport.artifacts, 1)
	assert.Equal(t, "song.mp3", h.transport.artifacts[0].FileName)
	assert.Equal(t, media.Tags{Title: "Ocean", Artist: "Jane"}, h.transport.artifacts[0].Tags)

	assert.Equal(t, chat.StateIdle, h.engine.State(context.Background(), "u1"))
	assert.Equal(t, 0, h.sessions.Len())
	assert.Equal(t, 1, h.normalizer.calls)
	h.assertNoFiles(t)
}

func TestTextWhileIdleCreatesNoSession(t *testing.T) {
	h := newHarness(t, nil)

	err := h.send(t, text("what now"))
	var violation *ProtocolViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, chat.StateIdle, violation.State)

	assert.Equal(t, []string{"You should send audio!"}, h.transport.prompts)
	assert.Equal(t, 0, h.sessions.Len())
	assert.Zero(t, h.downloader.calls)
}

func TestThanksPhraseWhileIdlePointsToCommand(t *testing.T) {
	h := newHarness(t, nil)

	_ = h.send(t, text(" Thanks "))

	assert.Equal(t, []string{"You can say 'thanks' to developer with /thanks"}, h.transport.prompts)
	assert.Equal(t, 0, h.sessions.Len())
}

func TestSecondAudioKeepsCollectedTitle(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, h.send(t, audio("song.wav")))
	require.NoError(t, h.send(t, text("Ocean")))

	err := h.send(t, audio("other.flac"))
	var violation *ProtocolViolation
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, chat.StateAwaitingArtist, violation.State)
	assert.Equal(t, 1, h.downloader.calls)

	sess, ok := h.sessions.Get(context.Background(), "u1")
	require.True(t, ok)
	assert.Equal(t, chat.StateAwaitingArtist, sess.State)
	assert.Equal(t, "Ocean", sess.Title)
	assert.Equal(t, "song.wav", sess.FileName)

	require.NoError(t, h.send(t, text("Jane")))
	require.Len(t, h.transport.artifacts, 1)
	assert.Equal(t, "song.mp3", h.transport.artifacts[0].FileName)
}

func TestWrongPayloadWhileAwaitingText(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, audio("song.mp3")))

	err := h.send(t, chat.Message{Kind: chat.KindChoice, Choice: "lang:en"})
	require.Error(t, err)
	err = h.send(t, text("   "))
	require.Error(t, err)

	assert.Equal(t, []string{"Enter title.", "You should send text!", "You should send text!"}, h.transport.prompts)
	assert.Equal(t, chat.StateAwaitingTitle, h.engine.State(context.Background(), "u1"))
}

func TestPipelineFailureNotifiesAndCleansUp(t *testing.T) {
	cases := map[string]struct {
		normalizeErr error
		tagger       media.TagCodec
		want         string
	}{
		"decode": {
			normalizeErr: &media.DecodeError{Path: "x", Err: errors.New("invalid data")},
			want:         "Sorry, I could not read this audio file.",
		},
		"unsupported": {
			normalizeErr: &media.UnsupportedFormatError{Path: "x", Format: "xm", Err: errors.New("no decoder")},
			want:         "Sorry, this audio format is not supported.",
		},
		"tag write": {
			tagger: brokenTagger{},
			want:   "Sorry, I could not write tags to this file.",
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, tc.tagger)
			h.normalizer.err = tc.normalizeErr

			require.NoError(t, h.send(t, audio("song.wav")))
			require.NoError(t, h.send(t, text("Ocean")))
			require.Error(t, h.send(t, text("Jane")))

			assert.Equal(t, tc.want, h.transport.prompts[len(h.transport.prompts)-1])
			assert.Empty(t, h.transport.artifacts)
			assert.Equal(t, 0, h.sessions.Len())
			h.assertNoFiles(t)
		})
	}
}

func TestDownloadFailureLeavesNothingBehind(t *testing.T) {
	h := newHarness(t, nil)
	h.downloader.err = errors.New("blob gone")

	require.Error(t, h.send(t, audio("song.wav")))

	assert.Equal(t, []string{"Sorry, I could not retrieve your file. Please send it again."}, h.transport.prompts)
	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoFiles(t)
}

func TestDeliveryFailureStillRemovesFiles(t *testing.T) {
	h := newHarness(t, nil)
	require.NoError(t, h.send(t, audio("song.wav")))
	require.NoError(t, h.send(t, text("Ocean")))

	h.transport.failSend = errors.New("peer gone")
	require.Error(t, h.send(t, text("Jane")))

	assert.Equal(t, 0, h.sessions.Len())
	h.assertNoFiles(t)
}

func TestExpireOnlyIdleSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.send(t, audio("song.wav")))

	assert.False(t, h.engine.Expire(ctx, "u1", time.Now().Add(-time.Hour)))
	assert.Equal(t, 1, h.sessions.Len())

	assert.True(t, h.engine.Expire(ctx, "u1", time.Now().Add(time.Second)))
	assert.Equal(t, 0, h.sessions.Len())
	assert.Contains(t, h.transport.prompts[len(h.transport.prompts)-1], "idle for too long")
	h.assertNoFiles(t)

	assert.False(t, h.engine.Expire(ctx, "u1", time.Now().Add(time.Second)))
}

func TestUsersDoNotShareSessions(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.Handle(ctx, chat.Message{UserID: "a", Kind: chat.KindAudio, Audio: chat.AudioRef{FileName: "a.wav"}}))
	require.NoError(t, h.engine.Handle(ctx, chat.Message{UserID: "b", Kind: chat.KindAudio, Audio: chat.AudioRef{FileName: "b.wav"}}))
	require.NoError(t, h.engine.Handle(ctx, chat.Message{UserID: "a", Kind: chat.KindText, Text: "A"}))

	assert.Equal(t, chat.StateAwaitingArtist, h.engine.State(ctx, "a"))
	assert.Equal(t, chat.StateAwaitingTitle, h.engine.State(ctx, "b"))
}

func TestGreetingWhileIdleGetsDescription(t *testing.T) {
	h := newHarness(t, nil)

	_ = h.send(t, text("Hello!"))

	require.Len(t, h.transport.prompts, 1)
	assert.Contains(t, h.transport.prompts[0], "send any audio file to me")
	assert.Equal(t, 0, h.sessions.Len())
}
