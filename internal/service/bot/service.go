// Package bot routes inbound chat messages: commands and button presses are
// answered here, everything else goes to the conversation engine. Work for
// one user always runs in arrival order on that user's queue.
package bot

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zhouzirui/tagbot/backend/internal/model/chat"
	"github.com/zhouzirui/tagbot/backend/internal/model/locale"
	"github.com/zhouzirui/tagbot/backend/internal/service/conversation"
	"github.com/zhouzirui/tagbot/backend/internal/service/ledger"
)

const (
	commandStart  = "/start"
	commandHelp   = "/help"
	commandThanks = "/thanks"

	langTokenPrefix = "lang:"
	tokenThanksYes  = "thanks:yes"
	tokenThanksNo   = "thanks:no"
)

// Engine is the part of the conversation engine the bot drives.
type Engine interface {
	Handle(ctx context.Context, msg chat.Message) error
	Expire(ctx context.Context, userID string, cutoff time.Time) bool
	State(ctx context.Context, userID string) chat.State
}

// Languages resolves texts and keeps per-user language choices.
type Languages interface {
	conversation.Texts
	Match(hint string) string
	SetLanguage(userID, lang string) bool
	Catalogs() []locale.Catalog
}

// IdleLister finds sessions that saw no message after cutoff.
type IdleLister interface {
	IdleUsers(ctx context.Context, cutoff time.Time) []string
}

// BlobSweeper removes uploads that were never claimed.
type BlobSweeper interface {
	Sweep(cutoff time.Time) (int, error)
}

// Deps bundles the collaborators of a Service.
type Deps struct {
	Engine    Engine
	Sessions  IdleLister
	Blobs     BlobSweeper
	Ledger    ledger.Ledger
	Languages Languages
	Transport conversation.Transport
}

// Config controls session expiry.
type Config struct {
	SessionTTL    time.Duration
	SweepInterval time.Duration
}

// Service is the chat front of the bot.
type Service struct {
	deps       Deps
	cfg        Config
	dispatcher *Dispatcher
	logger     *zap.Logger
	now        func() time.Time
}

// NewService wires a Service with its own dispatcher.
func NewService(deps Deps, cfg Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		deps:       deps,
		cfg:        cfg,
		dispatcher: NewDispatcher(logger.Named("dispatcher")),
		logger:     logger,
		now:        time.Now,
	}
}

// Deliver queues msg on its user's queue.
func (s *Service) Deliver(msg chat.Message) error {
	if msg.UserID == "" {
		return errors.New("message without user id")
	}
	if msg.ReceivedAt.IsZero() {
		msg.ReceivedAt = s.now()
	}
	return s.dispatcher.Submit(msg.UserID, func(ctx context.Context) {
		s.route(ctx, msg)
	})
}

// ApplyLanguageHint selects a language for userID from a client hint such
// as an Accept-Language header. Empty hints leave the choice untouched.
func (s *Service) ApplyLanguageHint(userID, hint string) {
	if strings.TrimSpace(hint) == "" {
		return
	}
	s.deps.Languages.SetLanguage(userID, s.deps.Languages.Match(hint))
}

// Run expires idle sessions and stale uploads every sweep interval until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.SweepInterval <= 0 || s.cfg.SessionTTL <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep queues an expire job for every idle session and drops stale uploads.
func (s *Service) Sweep(ctx context.Context) {
	cutoff := s.now().Add(-s.cfg.SessionTTL)

	for _, userID := range s.deps.Sessions.IdleUsers(ctx, cutoff) {
		err := s.dispatcher.Submit(userID, func(jobCtx context.Context) {
			s.deps.Engine.Expire(jobCtx, userID, cutoff)
		})
		if err != nil {
			s.logger.Warn("cannot queue expiry", zap.String("user", userID), zap.Error(err))
			return
		}
	}

	if s.deps.Blobs == nil {
		return
	}
	removed, err := s.deps.Blobs.Sweep(cutoff)
	if err != nil {
		s.logger.Warn("upload sweep failed", zap.Error(err))
		return
	}
	if removed > 0 {
		s.logger.Info("stale uploads removed", zap.Int("count", removed))
	}
}

// Close stops accepting messages and waits for queued work.
func (s *Service) Close(ctx context.Context) error {
	return s.dispatcher.Close(ctx)
}

func (s *Service) route(ctx context.Context, msg chat.Message) {
	log := s.logger.With(zap.String("user", msg.UserID), zap.Stringer("kind", msg.Kind))

	switch msg.Kind {
	case chat.KindText:
		if s.handleCommand(ctx, msg) {
			return
		}
	case chat.KindChoice:
		if s.handleChoice(ctx, msg) {
			return
		}
	}

	err := s.deps.Engine.Handle(ctx, msg)
	var violation *conversation.ProtocolViolation
	switch {
	case err == nil:
	case errors.As(err, &violation):
		log.Debug("message rejected", zap.Error(err))
	default:
		log.Warn("message failed", zap.Error(err))
	}
}

func (s *Service) handleCommand(ctx context.Context, msg chat.Message) bool {
	switch strings.ToLower(strings.TrimSpace(msg.Text)) {
	case commandStart:
		s.choose(ctx, msg.UserID, locale.KeyChooseLang, s.languageOptions())
	case commandHelp:
		s.say(ctx, msg.UserID, locale.KeyBotDescr)
	case commandThanks:
		s.choose(ctx, msg.UserID, locale.KeyThanks, []chat.Option{
			{Label: s.deps.Languages.Text(msg.UserID, locale.KeyYes), Token: tokenThanksYes},
			{Label: s.deps.Languages.Text(msg.UserID, locale.KeyNo), Token: tokenThanksNo},
		})
	default:
		return false
	}
	return true
}

// handleChoice answers button presses. Unknown tokens during an edit are
// left to the engine, which asks for text again.
func (s *Service) handleChoice(ctx context.Context, msg chat.Message) bool {
	token := strings.TrimSpace(msg.Choice)

	switch {
	case strings.HasPrefix(token, langTokenPrefix):
		if !s.deps.Languages.SetLanguage(msg.UserID, strings.TrimPrefix(token, langTokenPrefix)) {
			s.say(ctx, msg.UserID, locale.KeyWrongChoice)
			return true
		}
		s.say(ctx, msg.UserID, locale.KeyLangChosen)
	case token == tokenThanksYes:
		s.recordThanks(ctx, msg)
	case token == tokenThanksNo:
		s.say(ctx, msg.UserID, locale.KeyNotSaved)
	default:
		if s.deps.Engine.State(ctx, msg.UserID) != chat.StateIdle {
			return false
		}
		s.say(ctx, msg.UserID, locale.KeyWrongChoice)
	}
	return true
}

func (s *Service) recordThanks(ctx context.Context, msg chat.Message) {
	if strings.TrimSpace(msg.Username) == "" {
		s.say(ctx, msg.UserID, locale.KeyThanksNoUsername)
		return
	}

	added, err := s.deps.Ledger.Record(ctx, msg.Username)
	switch {
	case errors.Is(err, ledger.ErrInvalidUsername):
		s.say(ctx, msg.UserID, locale.KeyThanksNoUsername)
	case err != nil:
		s.logger.Error("failed to record thanks", zap.String("user", msg.UserID), zap.Error(err))
		s.say(ctx, msg.UserID, locale.KeyNotSaved)
	case added:
		s.say(ctx, msg.UserID, locale.KeySaved)
	default:
		s.say(ctx, msg.UserID, locale.KeyThanksAgain)
	}
}

func (s *Service) languageOptions() []chat.Option {
	catalogs := s.deps.Languages.Catalogs()
	options := make([]chat.Option, 0, len(catalogs))
	for _, c := range catalogs {
		options = append(options, chat.Option{Label: c.Name, Token: langTokenPrefix + c.Language})
	}
	return options
}

func (s *Service) say(ctx context.Context, userID string, key locale.Key) {
	if err := s.deps.Transport.SendPrompt(ctx, userID, s.deps.Languages.Text(userID, key)); err != nil {
		s.logger.Warn("failed to send prompt", zap.String("user", userID), zap.String("key", string(key)), zap.Error(err))
	}
}

func (s *Service) choose(ctx context.Context, userID string, key locale.Key, options []chat.Option) {
	if err := s.deps.Transport.SendChoice(ctx, userID, s.deps.Languages.Text(userID, key), options); err != nil {
		s.logger.Warn("failed to send choice", zap.String("user", userID), zap.String("key", string(key)), zap.Error(err))
	}
}
