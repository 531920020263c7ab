package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/m3rciful/intakebot/core/logger"
	"github.com/m3rciful/intakebot/core/session"
)

const logComponent = "intake"

// Destination is the operator chat that receives submissions.
type Destination struct {
	ChatID int64
}

// Deliverer relays an accepted submission to the operator.
// Implementations must give up once ctx is done.
type Deliverer interface {
	ForwardAttachment(ctx context.Context, dest Destination, ref ContentRef) error
	SendText(ctx context.Context, dest Destination, text string) error
}

// Recorder keeps an audit trail of delivery attempts. deliveryErr is nil for
// delivered submissions.
type Recorder interface {
	Record(ctx context.Context, sub Submission, deliveryErr error) error
}

// Observer receives engine events, typically for metrics.
type Observer interface {
	Transition(from, to State)
	Rejected(state State, reason string)
	Delivered(took time.Duration, err error)
	Cancelled(state State)
	Expired(n int)
}

type nopObserver struct{}

func (nopObserver) Transition(State, State) {}
func (nopObserver) Rejected(State, string) {}
func (nopObserver) Delivered(time.Duration, error) {}
func (nopObserver) Cancelled(State) {}
func (nopObserver) Expired(int) {}

// Option customises an Engine.
type Option func(*Engine)

// WithRecorder records every delivery attempt.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) { e.recorder = r }
}

// WithObserver reports engine events to o.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithIDs replaces the submission id generator.
func WithIDs(newID func() uuid.UUID) Option {
	return func(e *Engine) {
		if newID != nil {
			e.newID = newID
		}
	}
}

// Engine runs the intake dialogue for every identity.
type Engine struct {
	cfg       Config
	store     *Store
	deliverer Deliverer
	recorder  Recorder
	observer  Observer
	now       func() time.Time
	newID     func() uuid.UUID
}

// NewEngine builds an engine. cfg must already be normalized.
func NewEngine(cfg Config, store *Store, d Deliverer, opts ...Option) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("intake: nil store")
	}
	if d == nil {
		return nil, fmt.Errorf("intake: nil deliverer")
	}
	if cfg.OperatorChatID == 0 {
		return nil, fmt.Errorf("intake: operator chat id is not set")
	}
	e := &Engine{
		cfg:       cfg,
		store:     store,
		deliverer: d,
		observer:  nopObserver{},
		now:       time.Now,
		newID:     uuid.New,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cfg.DeliveryTimeout <= 0 {
		e.cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	return e, nil
}

// Config returns the configuration the engine runs with.
func (e *Engine) Config() Config { return e.cfg }

// Active returns the number of open sessions.
func (e *Engine) Active() int { return e.store.Len() }

// Snapshot returns a copy of the identity's session.
func (e *Engine) Snapshot(id Identity) (Session, bool) {
	var (
		out Session
		ok  bool
	)
	_ = e.store.Do(id, func(tx *session.Tx[Identity, *Session]) error {
		var sess *Session
		if sess, ok = tx.Get(); ok {
			out = *sess
			if sess.Record.Attachment != nil {
				att := *sess.Record.Attachment
				out.Record.Attachment = &att
			}
		}
		return nil
	})
	return out, ok
}

// Handle applies ev to the identity's session and returns the prompts to show.
// Events of one identity are applied one at a time.
func (e *Engine) Handle(ctx context.Context, ev Event) Reply {
	var reply Reply
	_ = e.store.Do(ev.Identity, func(tx *session.Tx[Identity, *Session]) error {
		reply = e.apply(ctx, tx, ev)
		return nil
	})
	return reply
}

func (e *Engine) apply(ctx context.Context, tx *session.Tx[Identity, *Session], ev Event) Reply {
	if ev.Kind == EventCommand {
		switch ev.Command {
		case CommandStart:
			return e.restart(ctx, tx)
		case CommandCancel:
			return e.cancel(ctx, tx)
		}
	}

	sess, ok := tx.Get()
	if !ok {
		return Reply{Prompts: []Prompt{text(msgIdle)}}
	}
	ctx = logger.WithState(ctx, sess.State.String())

	if ev.Kind == EventCommand {
		return e.reject(ctx, tx, sess, &ValidationError{State: sess.State, Reason: ReasonUnsupported, Err: ErrUnsupportedInput})
	}

	if sess.State == StateFile {
		if ev.Kind != EventAttachment {
			return e.reject(ctx, tx, sess, &ValidationError{State: StateFile, Reason: ReasonUnsupported, Err: ErrUnsupportedInput})
		}
		return e.acceptFile(ctx, tx, sess, ev.Attachment)
	}

	if ev.Kind != EventText {
		return e.reject(ctx, tx, sess, &ValidationError{State: sess.State, Reason: ReasonUnsupported, Err: ErrUnsupportedInput})
	}

	var (
		next   State
		prompt Prompt
	)
	switch sess.State {
	case StateName:
		name, err := ValidateName(ev.Text)
		if err != nil {
			return e.reject(ctx, tx, sess, err)
		}
		sess.Record.Name = name
		next, prompt = StateMaterialType, categoryPrompt(e.cfg.Catalog, name)
	case StateMaterialType:
		category, err := ValidateCategory(e.cfg.Catalog, ev.Text)
		if err != nil {
			return e.reject(ctx, tx, sess, err)
		}
		sess.Record.Category = category
		next, prompt = StateSubject, subjectPrompt()
	case StateSubject:
		subject, err := ValidateSubject(ev.Text)
		if err != nil {
			return e.reject(ctx, tx, sess, err)
		}
		sess.Record.Subject = subject
		next, prompt = StateSemester, semesterPrompt(e.cfg.Catalog)
	case StateSemester:
		semester, err := ValidateSemester(e.cfg.Catalog, ev.Text)
		if err != nil {
			return e.reject(ctx, tx, sess, err)
		}
		sess.Record.Semester = semester
		next, prompt = StateFile, filePrompt(e.cfg.Catalog, sess.Record.Category)
	default:
		// Unknown states are never stored; drop the session rather than guess.
		tx.Delete()
		return Reply{Prompts: []Prompt{text(msgIdle)}}
	}

	e.advance(ctx, tx, sess, next)
	return Reply{Prompts: []Prompt{prompt}, State: next}
}

func (e *Engine) restart(ctx context.Context, tx *session.Tx[Identity, *Session]) Reply {
	prev := StateNone
	if old, ok := tx.Get(); ok {
		prev = old.State
	}
	now := e.now()
	replaced := tx.Reset(&Session{
		Identity:  tx.Key(),
		State:     StateName,
		CreatedAt: now,
		UpdatedAt: now,
	})
	e.observer.Transition(prev, StateName)
	logger.Debug(ctx, logComponent, "intake.started",
		slog.String("state", prev.String()),
		slog.String("next_state", StateName.String()),
		slog.Bool("replaced", replaced),
	)
	return Reply{Prompts: []Prompt{welcomePrompt()}, State: StateName}
}

func (e *Engine) cancel(ctx context.Context, tx *session.Tx[Identity, *Session]) Reply {
	sess, ok := tx.Get()
	if !ok {
		return Reply{Prompts: []Prompt{text(msgNothingToCancel)}}
	}
	tx.Delete()
	e.observer.Cancelled(sess.State)
	logger.Info(ctx, logComponent, "intake.cancelled",
		slog.String("state", sess.State.String()),
		slog.String("outcome", "cancelled"),
	)
	return Reply{Prompts: []Prompt{text(msgCancelled)}}
}

func (e *Engine) advance(ctx context.Context, tx *session.Tx[Identity, *Session], sess *Session, next State) {
	prev := sess.State
	sess.State = next
	sess.UpdatedAt = e.now()
	tx.Put(sess)
	e.observer.Transition(prev, next)
	logger.Debug(ctx, logComponent, "intake.transition",
		slog.String("state", prev.String()),
		slog.String("next_state", next.String()),
	)
}

// reject keeps the session in its state. The event still counts as activity
// for the idle sweep.
func (e *Engine) reject(ctx context.Context, tx *session.Tx[Identity, *Session], sess *Session, err error) Reply {
	sess.UpdatedAt = e.now()
	tx.Put(sess)
	reason := Reason(err)
	e.observer.Rejected(sess.State, reason)
	logger.Debug(ctx, logComponent, "intake.rejected",
		slog.String("state", sess.State.String()),
		slog.String("reason", reason),
		slog.String("outcome", "rejected"),
	)
	return Reply{Prompts: []Prompt{retryPrompt(e.cfg.Catalog, sess)}, State: sess.State}
}

func (e *Engine) acceptFile(ctx context.Context, tx *session.Tx[Identity, *Session], sess *Session, att *Attachment) Reply {
	if err := CheckAttachment(e.cfg.Catalog, sess.Record.Category, att); err != nil {
		reply := e.reject(ctx, tx, sess, err)
		var ve *ValidationError
		if errors.As(err, &ve) && ve.Reason == ReasonExtension {
			reply.Prompts = []Prompt{wrongExtensionPrompt(sess.Record.Category, ve.Allowed)}
		}
		return reply
	}

	stored := *att
	record := sess.Record
	record.Attachment = &stored
	if !record.WellFormed(e.cfg.Catalog) {
		// Incomplete only if a state was skipped; nothing is delivered.
		tx.Delete()
		e.observer.Transition(StateFile, StateNone)
		logger.Error(ctx, logComponent, "intake.incomplete_record",
			slog.String("file_name", stored.FileName),
			slog.String("outcome", "fail"),
		)
		return Reply{Prompts: []Prompt{text(msgDeliveryFailed)}, State: StateNone}
	}
	sub := Submission{
		ID:          e.newID(),
		Identity:    sess.Identity,
		Record:      record,
		SubmittedAt: e.now(),
	}

	// The session goes away whatever happens next.
	tx.Delete()
	e.observer.Transition(StateFile, StateNone)

	var prompts []Prompt
	accepted := text(msgAccepted)
	if notify := progressFrom(ctx); notify != nil {
		notify(accepted)
	} else {
		prompts = append(prompts, accepted)
	}

	start := time.Now()
	err := e.deliver(ctx, sub)
	took := time.Since(start)
	e.observer.Delivered(took, err)

	attrs := []slog.Attr{
		slog.String("submission_id", sub.ID.String()),
		slog.String("category", record.Category),
		slog.String("semester", record.Semester),
		slog.String("file_name", stored.FileName),
		slog.Duration("duration", logger.RoundMS(took)),
	}
	if err != nil {
		attrs = append(attrs, slog.String("outcome", "fail"), slog.String("err", err.Error()))
		logger.Error(ctx, logComponent, "intake.delivery_failed", attrs...)
		prompts = append(prompts, text(msgDeliveryFailed))
	} else {
		attrs = append(attrs, slog.String("outcome", "delivered"))
		logger.Info(ctx, logComponent, "intake.delivered", attrs...)
		prompts = append(prompts, text(msgSubmitted), text(msgSubmitMore))
	}

	if e.recorder != nil {
		if rerr := e.recorder.Record(context.WithoutCancel(ctx), sub, err); rerr != nil {
			logger.Warn(ctx, logComponent, "intake.journal_failed",
				slog.String("submission_id", sub.ID.String()),
				slog.String("err", rerr.Error()),
			)
		}
	}

	return Reply{Prompts: prompts, State: StateNone, Submission: &sub, DeliveryErr: err}
}

// deliver forwards the file, then the summary. Each call gets its own
// DeliveryTimeout.
func (e *Engine) deliver(ctx context.Context, sub Submission) error {
	dest := Destination{ChatID: e.cfg.OperatorChatID}
	err := e.bounded(ctx, func(ctx context.Context) error {
		return e.deliverer.ForwardAttachment(ctx, dest, sub.Record.Attachment.Ref)
	})
	if err != nil {
		return &DeliveryError{Step: StepForward, Err: err}
	}
	err = e.bounded(ctx, func(ctx context.Context) error {
		return e.deliverer.SendText(ctx, dest, sub.Summary())
	})
	if err != nil {
		return &DeliveryError{Step: StepSummary, Err: err}
	}
	return nil
}

func (e *Engine) bounded(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.DeliveryTimeout)
	defer cancel()
	return fn(ctx)
}

// RunSweeper drops sessions idle longer than the configured TTL until ctx is
// done. notify, when set, receives the identities that were dropped.
// It returns immediately when no TTL is configured.
func (e *Engine) RunSweeper(ctx context.Context, notify func([]Identity)) {
	if e.cfg.SessionTTL <= 0 {
		return
	}
	e.store.RunSweeper(ctx, e.cfg.SessionTTL, e.cfg.SweepInterval, func(expired []Identity) {
		e.observer.Expired(len(expired))
		logger.Info(ctx, logComponent, "intake.expired",
			slog.Int("expired", len(expired)),
			slog.Int("sessions", e.store.Len()),
			slog.String("outcome", "expired"),
		)
		if notify != nil {
			notify(expired)
		}
	})
}

type progressKey struct{}

// WithProgress makes the engine hand interim prompts, such as the file accepted
// notice shown before delivery, to fn as soon as they are known instead of
// returning them in the Reply.
func WithProgress(ctx context.Context, fn func(Prompt)) context.Context {
	if fn == nil {
		return ctx
	}
	return context.WithValue(ctx, progressKey{}, fn)
}

func progressFrom(ctx context.Context) func(Prompt) {
	fn, _ := ctx.Value(progressKey{}).(func(Prompt))
	return fn
}
