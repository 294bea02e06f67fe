package conversation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/analysis/intent"
	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/internal/service/media"
)

// Transport delivers outbound messages to a user.
type Transport interface {
	SendPrompt(ctx context.Context, userID, text string) error
	SendChoice(ctx context.Context, userID, text string, options []chat.Option) error
	SendArtifact(ctx context.Context, userID, path string) error
}

// Downloader retrieves an uploaded file into a directory owned by the caller.
type Downloader interface {
	Download(ctx context.Context, handle, destDir, fileName string) (string, error)
}

// Processor runs the normalize-then-tag pipeline.
type Processor interface {
	Process(ctx context.Context, src string, tags media.Tags) (string, error)
}

// Texts resolves string keys for a user.
type Texts interface {
	Text(userID string, key locale.Key) string
}

// SessionStore persists sessions between messages.
type SessionStore interface {
	Get(ctx context.Context, userID string) (chat.Session, bool)
	GetOrCreate(ctx context.Context, userID string) (chat.Session, error)
	Save(ctx context.Context, session chat.Session) error
	Clear(ctx context.Context, userID string)
}

// Deps bundles the collaborators of an Engine.
type Deps struct {
	Sessions   SessionStore
	Transport  Transport
	Downloader Downloader
	Processor  Processor
	Texts      Texts
	// WorkDir is the parent of every per-session directory.
	WorkDir string
}

type transitionKey struct {
	state chat.State
	kind  chat.PayloadKind
}

type transitionFunc func(ctx context.Context, sess chat.Session, msg chat.Message) error

// Engine drives each user's session from audio receipt to delivery.
//
// Handle is not safe for concurrent calls with the same user id; callers
// serialize per user (see bot.Dispatcher). Calls for different users may
// run in parallel.
type Engine struct {
	deps        Deps
	logger      *zap.Logger
	transitions map[transitionKey]transitionFunc
}

// NewEngine wires an Engine.
func NewEngine(deps Deps, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{deps: deps, logger: logger}
	e.transitions = map[transitionKey]transitionFunc{
		{chat.StateIdle, chat.KindAudio}:          e.acceptAudio,
		{chat.StateAwaitingTitle, chat.KindText}:  e.acceptTitle,
		{chat.StateAwaitingArtist, chat.KindText}: e.acceptArtist,
	}
	return e
}

// State returns where userID currently is in the flow.
func (e *Engine) State(ctx context.Context, userID string) chat.State {
	if sess, ok := e.deps.Sessions.Get(ctx, userID); ok {
		return sess.State
	}
	return chat.StateIdle
}

// Handle processes one inbound message. Exactly one outbound message is
// sent for every call. The returned error describes what went wrong for
// logging; the user has already been notified.
func (e *Engine) Handle(ctx context.Context, msg chat.Message) error {
	sess, ok := e.deps.Sessions.Get(ctx, msg.UserID)
	if !ok {
		sess = chat.Session{UserID: msg.UserID, State: chat.StateIdle}
	}

	if transition, found := e.transitions[transitionKey{sess.State, msg.Kind}]; found {
		return transition(ctx, sess, msg)
	}
	return e.reject(ctx, sess, ok, msg)
}

// Expire tears down the session of userID when it saw no message after
// cutoff. It reports whether a session was removed.
func (e *Engine) Expire(ctx context.Context, userID string, cutoff time.Time) bool {
	sess, ok := e.deps.Sessions.Get(ctx, userID)
	if !ok || !sess.IdleSince(cutoff) {
		return false
	}

	e.teardown(ctx, sess)
	e.logger.Info("session expired", zap.String("user", userID), zap.Stringer("state", sess.State))
	_ = e.notify(ctx, userID, locale.KeySessionExpired)
	return true
}

func (e *Engine) acceptAudio(ctx context.Context, _ chat.Session, msg chat.Message) error {
	sess, err := e.deps.Sessions.GetOrCreate(ctx, msg.UserID)
	if err != nil {
		_ = e.notify(ctx, msg.UserID, locale.KeyStorageFailed)
		return fmt.Errorf("create session: %w", err)
	}
	sess.WorkDir = filepath.Join(e.deps.WorkDir, uuid.NewString())

	path, err := e.deps.Downloader.Download(ctx, msg.Audio.Handle, sess.WorkDir, msg.Audio.FileName)
	if err != nil {
		e.teardown(ctx, sess)
		_ = e.notify(ctx, msg.UserID, locale.KeyStorageFailed)
		return fmt.Errorf("download audio: %w", err)
	}

	sess.State = chat.StateAwaitingTitle
	sess.FileName = filepath.Base(path)
	sess.SourcePath = path
	if err := e.deps.Sessions.Save(ctx, sess); err != nil {
		e.teardown(ctx, sess)
		_ = e.notify(ctx, msg.UserID, locale.KeyStorageFailed)
		return fmt.Errorf("save session: %w", err)
	}

	e.logger.Debug("audio received", zap.String("user", msg.UserID), zap.String("path", path))
	return e.notify(ctx, msg.UserID, locale.KeyAskTitle)
}

func (e *Engine) acceptTitle(ctx context.Context, sess chat.Session, msg chat.Message) error {
	title := strings.TrimSpace(msg.Text)
	if title == "" {
		return e.reject(ctx, sess, true, msg)
	}

	sess.Title = title
	sess.State = chat.StateAwaitingArtist
	if err := e.deps.Sessions.Save(ctx, sess); err != nil {
		e.teardown(ctx, sess)
		_ = e.notify(ctx, msg.UserID, locale.KeyStorageFailed)
		return fmt.Errorf("save session: %w", err)
	}
	return e.notify(ctx, msg.UserID, locale.KeyAskArtist)
}

func (e *Engine) acceptArtist(ctx context.Context, sess chat.Session, msg chat.Message) error {
	artist := strings.TrimSpace(msg.Text)
	if artist == "" {
		return e.reject(ctx, sess, true, msg)
	}
	sess.Artist = artist

	out, err := e.deps.Processor.Process(ctx, sess.SourcePath, media.Tags{Title: sess.Title, Artist: sess.Artist})
	if err != nil {
		e.teardown(ctx, sess)
		e.logger.Warn("pipeline failed", zap.String("user", msg.UserID), zap.String("path", sess.SourcePath), zap.Error(err))
		_ = e.notify(ctx, msg.UserID, failureKey(err))
		return fmt.Errorf("process audio: %w", err)
	}

	sendErr := e.deps.Transport.SendArtifact(ctx, msg.UserID, out)
	// The artifact is deleted whether or not delivery worked.
	e.teardown(ctx, sess)
	if sendErr != nil {
		e.logger.Warn("artifact delivery failed", zap.String("user", msg.UserID), zap.Error(sendErr))
		return fmt.Errorf("deliver artifact: %w", sendErr)
	}

	e.logger.Info("artifact delivered", zap.String("user", msg.UserID), zap.String("file", filepath.Base(out)))
	return nil
}

func (e *Engine) reject(ctx context.Context, sess chat.Session, exists bool, msg chat.Message) error {
	violation := &ProtocolViolation{State: sess.State, Got: msg.Kind}

	if exists {
		// A rejected message still counts as activity for expiry.
		if err := e.deps.Sessions.Save(ctx, sess); err != nil {
			e.logger.Warn("failed to touch session", zap.String("user", msg.UserID), zap.Error(err))
		}
	}

	if err := e.notify(ctx, msg.UserID, rejectionKey(sess.State, msg)); err != nil {
		return errors.Join(violation, err)
	}
	return violation
}

// teardown releases every file of sess and forgets it.
func (e *Engine) teardown(ctx context.Context, sess chat.Session) {
	if sess.WorkDir != "" {
		if err := os.RemoveAll(sess.WorkDir); err != nil {
			e.logger.Error("failed to remove session files", zap.String("user", sess.UserID), zap.String("path", sess.WorkDir), zap.Error(err))
		}
	}
	e.deps.Sessions.Clear(ctx, sess.UserID)
}

func (e *Engine) notify(ctx context.Context, userID string, key locale.Key) error {
	if err := e.deps.Transport.SendPrompt(ctx, userID, e.deps.Texts.Text(userID, key)); err != nil {
		e.logger.Warn("failed to send prompt", zap.String("user", userID), zap.String("key", string(key)), zap.Error(err))
		return err
	}
	return nil
}

func rejectionKey(state chat.State, msg chat.Message) locale.Key {
	switch state {
	case chat.StateAwaitingTitle, chat.StateAwaitingArtist:
		if msg.Kind == chat.KindAudio {
			return locale.KeyFinishCurrentEdit
		}
		return locale.KeyExpectedText
	default:
		if msg.Kind != chat.KindText {
			return locale.KeyExpectedAudio
		}
		switch intent.Classify(msg.Text).Intent {
		case intent.Thanks:
			return locale.KeyHelpThanks
		case intent.Greeting:
			return locale.KeyBotDescr
		default:
			return locale.KeyExpectedAudio
		}
	}
}

func failureKey(err error) locale.Key {
	var (
		unsupported *media.UnsupportedFormatError
		tagErr      *media.TagWriteError
	)
	switch {
	case errors.As(err, &unsupported):
		return locale.KeyUnsupportedFormat
	case errors.As(err, &tagErr):
		return locale.KeyTagFailed
	default:
		return locale.KeyProcessingFailed
	}
}
