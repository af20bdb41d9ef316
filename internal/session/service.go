package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/fixdesk/internal/ai"
	"github.com/fyrsmithlabs/fixdesk/internal/catalog"
	"github.com/fyrsmithlabs/fixdesk/internal/config"
	"github.com/fyrsmithlabs/fixdesk/internal/conversation"
	"github.com/fyrsmithlabs/fixdesk/internal/diagnosis"
	"github.com/fyrsmithlabs/fixdesk/internal/errs"
	"github.com/fyrsmithlabs/fixdesk/internal/escalation"
	"github.com/fyrsmithlabs/fixdesk/internal/feedback"
	"github.com/fyrsmithlabs/fixdesk/internal/logging"
	"github.com/fyrsmithlabs/fixdesk/internal/matcher"
	"github.com/fyrsmithlabs/fixdesk/internal/resolver"
	"github.com/fyrsmithlabs/fixdesk/internal/store"
	"github.com/fyrsmithlabs/fixdesk/internal/tenant"
)

const instrumentationName = "github.com/fyrsmithlabs/fixdesk/internal/session"

// maxEvents bounds the events one call may run through the machine.
const maxEvents = 64

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
	// ErrNoDiagnosis is returned by GetDiagnosisResult before any stage ran.
	ErrNoDiagnosis = errors.New("no diagnosis yet")
	// ErrBusy is returned when a call gave up waiting for the session lock.
	ErrBusy = errors.New("session busy")
	// ErrRunaway is returned when a call exceeds maxEvents.
	ErrRunaway = errors.New("too many events in one turn")
)

// Config tunes the service.
type Config struct {
	// LockTimeout bounds the wait behind an in-flight call on the same session.
	LockTimeout     time.Duration
	DefaultLanguage string
}

// ConfigFromConfig maps the session config section.
func ConfigFromConfig(cfg config.SessionConfig) Config {
	return Config{LockTimeout: cfg.LockTimeout.Duration(), DefaultLanguage: cfg.DefaultLanguage}
}

// Options are the collaborators of the service. Store, Resolver, Matcher,
// Feedback and Escalation are required.
type Options struct {
	Store      store.Store
	Resolver   *resolver.Resolver
	Matcher    *matcher.Matcher
	Feedback   feedback.Service
	Escalation *escalation.Service
	// Catalog supplies follow-up questions; nil uses the embedded default.
	Catalog *catalog.Catalog
	// Adapter rewrites descriptions; nil disables rewriting.
	Adapter ai.Adapter
	Config  Config
	Logger  *zap.Logger
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

// CreateOptions are the optional fields of a new session.
type CreateOptions struct {
	EquipmentID string
	Language    string
}

// Service is the session handler.
type Service struct {
	store      store.Store
	resolver   *resolver.Resolver
	matcher    *matcher.Matcher
	feedback   feedback.Service
	escalation *escalation.Service
	catalog    *catalog.Catalog
	adapter    ai.Adapter
	machine    *conversation.Machine
	cfg        Config
	logger     *zap.Logger
	now        func() time.Time

	locks   *keyedLocks
	tracer  trace.Tracer
	metrics *metrics
}

// NewService creates a Service.
func NewService(opts Options) (*Service, error) {
	switch {
	case opts.Store == nil:
		return nil, errors.New("session: store is required")
	case opts.Resolver == nil:
		return nil, errors.New("session: resolver is required")
	case opts.Matcher == nil:
		return nil, errors.New("session: matcher is required")
	case opts.Feedback == nil:
		return nil, errors.New("session: feedback service is required")
	case opts.Escalation == nil:
		return nil, errors.New("session: escalation service is required")
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	if opts.Adapter == nil {
		opts.Adapter = ai.Unavailable{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Config.LockTimeout <= 0 {
		opts.Config.LockTimeout = 30 * time.Second
	}
	if !conversation.SupportedLanguage(opts.Config.DefaultLanguage) {
		opts.Config.DefaultLanguage = conversation.DefaultLanguage
	}

	return &Service{
		store:      opts.Store,
		resolver:   opts.Resolver,
		matcher:    opts.Matcher,
		feedback:   opts.Feedback,
		escalation: opts.Escalation,
		catalog:    opts.Catalog,
		adapter:    opts.Adapter,
		machine:    conversation.NewMachine(),
		cfg:        opts.Config,
		logger:     opts.Logger,
		now:        opts.Now,
		locks:      newKeyedLocks(),
		tracer:     otel.Tracer(instrumentationName),
		metrics:    newMetrics(),
	}, nil
}

// CreateSession starts a conversation and returns its id.
func (s *Service) CreateSession(ctx context.Context, tenantID, userID string, opts CreateOptions) (string, error) {
	const op = "session.create"
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	if err := tenant.ValidateID(tenantID); err != nil {
		return "", errs.Validation(op, err.Error())
	}
	if strings.TrimSpace(userID) == "" {
		return "", errs.Validation(op, "user id is required")
	}
	lang := strings.ToLower(strings.TrimSpace(opts.Language))
	if lang == "" {
		lang = s.cfg.DefaultLanguage
	}
	if !conversation.SupportedLanguage(lang) {
		return "", errs.Validation(op, fmt.Sprintf("unsupported language %q", opts.Language))
	}
	if opts.EquipmentID != "" {
		if _, err := s.resolver.Get(ctx, tenantID, opts.EquipmentID); err != nil {
			if errs.Is(err, errs.KindNotFound) {
				return "", errs.Validation(op, fmt.Sprintf("unknown equipment %q", opts.EquipmentID))
			}
			return "", err
		}
	}

	sess := conversation.NewSession(uuid.NewString(), tenantID, userID, opts.EquipmentID, lang, s.now().UTC())
	rec, err := toRecord(sess)
	if err != nil {
		return "", errs.New(errs.KindInternal, op, "", err)
	}
	if err := s.store.CreateSession(ctx, rec); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", errs.Persistence(op, err)
	}

	s.metrics.created.Inc()
	span.SetAttributes(attribute.String("session_id", rec.ID))
	s.logger.Info("session created",
		zap.String("session_id", rec.ID),
		zap.String("tenant_id", tenantID),
		zap.String("language", lang))
	return rec.ID, nil
}

// Turn is what one message or feedback call committed: the step the session
// rests in and the messages appended, the user's own message first.
type Turn struct {
	Step     conversation.Step
	Messages []conversation.Message
}

// PostMessage applies a user message. A message for a completed session
// returns a notice that is not stored, together with a validation error.
func (s *Service) PostMessage(ctx context.Context, sessionID, text string) (Turn, error) {
	if strings.TrimSpace(text) == "" {
		return Turn{}, errs.Validation("session.post_message", "message text is required")
	}
	return s.run(ctx, "session.post_message", sessionID, conversation.UserMessage{Text: text})
}

// RecordSolutionFeedback reports whether a presented solution worked. An
// empty solutionText refers to the solution currently being tested.
func (s *Service) RecordSolutionFeedback(ctx context.Context, sessionID, solutionText string, worked bool) (Turn, error) {
	return s.run(ctx, "session.record_feedback", sessionID,
		conversation.SolutionFeedback{SolutionText: solutionText, Worked: worked})
}

// GetDiagnosisResult returns the result of the last stage that ran.
func (s *Service) GetDiagnosisResult(ctx context.Context, sessionID string) (diagnosis.Result, error) {
	const op = "session.get_diagnosis"
	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Context.LastResult.Result == nil {
		return nil, errs.NotFound(op, ErrNoDiagnosis)
	}
	return sess.Context.LastResult.Result, nil
}

// GetSession returns the stored session.
func (s *Service) GetSession(ctx context.Context, sessionID string) (*conversation.Session, error) {
	sess, err := s.load(ctx, "session.get", sessionID)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Messages returns the transcript in Seq order.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]conversation.Message, error) {
	const op = "session.messages"
	if _, err := s.load(ctx, op, sessionID); err != nil {
		return nil, err
	}
	recs, err := s.store.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, errs.Persistence(op, err)
	}
	out := make([]conversation.Message, 0, len(recs))
	for _, rec := range recs {
		m, err := fromMessageRecord(rec)
		if err != nil {
			return nil, errs.New(errs.KindInternal, op, "", err)
		}
		out = append(out, m)
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, op, sessionID string) (conversation.Session, error) {
	if sessionID == "" {
		return conversation.Session{}, errs.Validation(op, "session id is required")
	}
	rec, err := s.store.GetSession(ctx, sessionID)
	if errors.Is(err, store.ErrNotFound) {
		return conversation.Session{}, errs.NotFound(op, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID))
	}
	if err != nil {
		return conversation.Session{}, errs.Persistence(op, err)
	}
	sess, err := fromRecord(rec)
	if err != nil {
		return conversation.Session{}, errs.New(errs.KindInternal, op, "", err)
	}
	return sess, nil
}

// run is one serialized turn: lock, load, transition until quiet, commit.
func (s *Service) run(ctx context.Context, op, sessionID string, first conversation.Event) (out Turn, err error) {
	start := s.now()
	ctx, span := s.tracer.Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("session_id", sessionID))
	defer func() {
		result := "ok"
		if err != nil {
			result = string(errs.KindOf(err))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		s.metrics.turns.WithLabelValues(op, result).Inc()
		s.metrics.turnDuration.Observe(s.now().Sub(start).Seconds())
	}()

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.LockTimeout)
	release, err := s.locks.acquire(waitCtx, sessionID)
	cancel()
	if err != nil {
		return Turn{}, errs.New(errs.KindInternal, op, "", fmt.Errorf("%w: %v", ErrBusy, err))
	}
	defer release()
	s.metrics.lockWait.Observe(s.now().Sub(start).Seconds())

	sess, err := s.load(ctx, op, sessionID)
	if err != nil {
		return Turn{}, err
	}
	ctx = logging.WithSessionID(logging.WithTenant(ctx, sess.TenantID), sess.ID)
	span.SetAttributes(attribute.String("tenant_id", sess.TenantID), attribute.String("step.before", string(sess.Step)))

	if sess.Completed() {
		notice := conversation.Message{
			SessionID: sess.ID,
			Sender:    conversation.SenderSystem,
			Text:      conversation.CompletedNotice(sess.Language),
			CreatedAt: s.now().UTC(),
		}
		return Turn{Step: sess.Step, Messages: []conversation.Message{notice}}, errs.New(errs.KindValidationFailed, op, "", conversation.ErrSessionCompleted)
	}

	t := &turn{svc: s, sess: sess}
	msgs, err := t.drive(ctx, op, first)
	if err != nil {
		return Turn{}, err
	}

	if err := s.commit(ctx, op, &t.sess, msgs); err != nil {
		return Turn{}, err
	}
	span.SetAttributes(attribute.String("step.after", string(t.sess.Step)), attribute.Int("messages", len(msgs)))

	if t.sess.Completed() {
		outcome := "resolved"
		if t.sess.Context.Escalation.AssignmentID != "" {
			outcome = "escalated"
		}
		s.metrics.finished.WithLabelValues(outcome).Inc()
		s.logger.Info("session completed", append(logging.ContextFields(ctx), zap.String("outcome", outcome))...)
	}
	return Turn{Step: t.sess.Step, Messages: msgs}, nil
}

// commit stamps the new messages and saves them with the session row.
func (s *Service) commit(ctx context.Context, op string, sess *conversation.Session, msgs []conversation.Message) error {
	now := s.now().UTC()
	recs := make([]store.MessageRecord, len(msgs))
	for i := range msgs {
		msgs[i].ID = uuid.NewString()
		msgs[i].SessionID = sess.ID
		msgs[i].Seq = sess.MessageCount + i + 1
		msgs[i].CreatedAt = now
		rec, err := toMessageRecord(msgs[i])
		if err != nil {
			return errs.New(errs.KindInternal, op, "", err)
		}
		recs[i] = rec
	}
	sess.MessageCount += len(msgs)
	sess.UpdatedAt = now

	rec, err := toRecord(*sess)
	if err != nil {
		return errs.New(errs.KindInternal, op, "", err)
	}
	if err := s.store.SaveTurn(ctx, rec, recs); err != nil {
		s.logger.Error("session commit failed", append(logging.ContextFields(ctx), zap.Error(err))...)
		return errs.Persistence(op, err)
	}
	return nil
}
