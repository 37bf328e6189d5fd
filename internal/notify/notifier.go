// Package notify forwards store events to chat channels. Delivery is filtered
// by event kind so operators only hear about the settlements they care about.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/nftstore/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

// DefaultKinds are the settlement events notified when no filter is configured.
var DefaultKinds = []string{
	string(domain.EventBuy),
	string(domain.EventAcceptOffer),
	string(domain.EventClaim),
}

// Notifier dispatches to every sender.
type Notifier struct {
	senders []Sender
	kinds   map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty kinds list selects DefaultKinds.
func NewNotifier(senders []Sender, kinds []string, logger *slog.Logger) *Notifier {
	if len(kinds) == 0 {
		kinds = DefaultKinds
	}
	allowed := make(map[string]bool, len(kinds))
	for _, k := range kinds {
		allowed[strings.TrimSpace(k)] = true
	}
	return &Notifier{
		senders: senders,
		kinds:   allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Wants reports whether events of kind are delivered.
func (n *Notifier) Wants(kind domain.EventKind) bool {
	return n.kinds[string(kind)]
}

// NotifyEvent formats evt and delivers it if its kind is selected.
func (n *Notifier) NotifyEvent(ctx context.Context, evt domain.Event) error {
	if !n.Wants(evt.Kind) {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("kind", string(evt.Kind)))
		return nil
	}
	title, message := Format(evt)
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a free-form message to every sender.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// dispatch delivers to all senders; one failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// Format renders evt as a title and a one-line body.
func Format(evt domain.Event) (string, string) {
	lot := evt.Lot().String()
	amount := evt.Amount.Dec()
	actor := evt.Actor.Hex()

	switch evt.Kind {
	case domain.EventBuy:
		return "Sale settled", fmt.Sprintf("%s bought by %s for %s", lot, actor, amount)
	case domain.EventAcceptOffer:
		return "Offer accepted", fmt.Sprintf("%s sold by %s for %s", lot, actor, amount)
	case domain.EventClaim:
		if evt.Amount.IsZero() {
			return "Auction expired", fmt.Sprintf("%s returned to %s without bids", lot, actor)
		}
		return "Auction settled", fmt.Sprintf("%s won by %s for %s", lot, actor, amount)
	default:
		return string(evt.Kind), fmt.Sprintf("%s at height %d: %s", lot, evt.Height, strings.Join(evt.Args(), ", "))
	}
}
