// Package notify resolves recipients and fans notification events out to the
// configured sinks on health transitions.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sentinelstack/sentinel/internal/metrics"
	"github.com/sentinelstack/sentinel/internal/models"
)

// RecipientResolver maps an organization (or none) to the users who should be
// alerted for its signals.
type RecipientResolver interface {
	// Resolve returns recipients for the organization; an empty organization
	// means the signal is global.
	Resolve(ctx context.Context, organization string) ([]string, error)
}

// Sink delivers a single notification event.
type Sink interface {
	Emit(ctx context.Context, event models.NotificationEvent) error
	Close() error
}

// Dispatcher builds and emits exactly one notification event per resolved
// recipient per tolerant-health transition.
type Dispatcher struct {
	logger   *slog.Logger
	resolver RecipientResolver
	sinks    []Sink
	now      func() time.Time

	mu      sync.Mutex
	lastSeq map[string]uint64
}

// NewDispatcher constructs a dispatcher writing to the given sinks.
func NewDispatcher(logger *slog.Logger, resolver RecipientResolver, sinks ...Sink) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger:   logger,
		resolver: resolver,
		sinks:    sinks,
		now:      time.Now,
		lastSeq:  make(map[string]uint64),
	}
}

// Dispatch emits notifications for one transition of the signal. It is
// idempotent per transition: a retried dispatch carrying an already-seen
// transition sequence is dropped. Delivery failures are logged and never
// propagate; the health flags are authoritative regardless.
func (d *Dispatcher) Dispatch(ctx context.Context, signal *models.Signal, pol *models.ThresholdPolicy, transition models.Transition, seq uint64) []models.NotificationEvent {
	if transition != models.TransitionProblem && transition != models.TransitionRecovery {
		return nil
	}

	d.mu.Lock()
	if seq <= d.lastSeq[signal.Key] {
		d.mu.Unlock()
		d.logger.Debug("duplicate transition dropped",
			slog.String("signal", signal.Key), slog.Uint64("seq", seq))
		return nil
	}
	d.lastSeq[signal.Key] = seq
	d.mu.Unlock()

	recipients, err := d.resolver.Resolve(ctx, signal.Organization)
	if err != nil {
		d.logger.Error("recipient resolution failed",
			slog.String("signal", signal.Key), slog.Any("error", err))
		return nil
	}

	level, verb, subjectPrefix := transitionAttributes(pol, transition)
	message := buildMessage(signal, verb)
	subject := buildSubject(signal, subjectPrefix)
	timestamp := d.now().UTC()

	events := make([]models.NotificationEvent, 0, len(recipients))
	for _, recipient := range recipients {
		event := models.NotificationEvent{
			ID:            uuid.NewString(),
			Recipient:     recipient,
			Actor:         signal.Key,
			ActionObject:  fmt.Sprintf("alertsettings:%s", signal.Key),
			Target:        signal.Target,
			Level:         level,
			Verb:          verb,
			Message:       message,
			EmailSubject:  subject,
			Timestamp:     timestamp,
			TransitionSeq: seq,
		}
		events = append(events, event)
		d.emit(ctx, event)
	}

	d.logger.Info("notifications dispatched",
		slog.String("signal", signal.Key),
		slog.String("transition", string(transition)),
		slog.Int("recipients", len(events)))
	return events
}

func (d *Dispatcher) emit(ctx context.Context, event models.NotificationEvent) {
	for _, sink := range d.sinks {
		if err := sink.Emit(ctx, event); err != nil {
			metrics.CountNotification(string(event.Level), metrics.DeliveryFailed)
			d.logger.Error("notification delivery failed",
				slog.String("recipient", event.Recipient),
				slog.String("signal", event.Actor),
				slog.Any("error", err))
			continue
		}
		metrics.CountNotification(string(event.Level), metrics.DeliveryOK)
	}
}

func transitionAttributes(pol *models.ThresholdPolicy, transition models.Transition) (models.Level, string, string) {
	if transition == models.TransitionProblem {
		verb := models.VerbProblem
		if pol.ProblemVerb != "" {
			verb = pol.ProblemVerb
		}
		return models.LevelWarning, verb, models.SubjectPrefixProblem
	}
	return models.LevelInfo, models.VerbRecovery, models.SubjectPrefixRecovery
}

func buildMessage(signal *models.Signal, verb string) string {
	if signal.Target != nil {
		return fmt.Sprintf("%s for %s <a href=%q>%s</a> %s.",
			signal.Name, signal.Target.Kind, signal.Target.URL, signal.Target.Label, verb)
	}
	return fmt.Sprintf("%s %s.", signal.Name, verb)
}

func buildSubject(signal *models.Signal, prefix string) string {
	if signal.Target != nil {
		return fmt.Sprintf("%s: %s %s", prefix, signal.Name, signal.Target.Label)
	}
	return fmt.Sprintf("%s: %s", prefix, signal.Name)
}
