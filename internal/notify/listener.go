package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/settlecore/internal/domain"
)

// Listener bridges the signal bus to the notifier: it subscribes to the
// settlement event channels and forwards each event as an operator
// notification. Events the bus drops are simply never notified; the txn log
// remains the source of truth.
type Listener struct {
	bus      domain.SignalBus
	notifier *Notifier
	channels []string
	logger   *slog.Logger
}

// NewListener creates a Listener for the given bus channels.
func NewListener(bus domain.SignalBus, notifier *Notifier, channels []string, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		channels: channels,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run subscribes to every configured channel and forwards events until the
// context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, channel := range l.channels {
		msgs, err := l.bus.Subscribe(ctx, channel)
		if err != nil {
			return fmt.Errorf("notify: subscribe %s: %w", channel, err)
		}
		g.Go(func() error {
			l.forward(ctx, msgs)
			return nil
		})
	}
	return g.Wait()
}

func (l *Listener) forward(ctx context.Context, msgs <-chan []byte) {
	for payload := range msgs {
		event, title, message := render(payload)
		if err := l.notifier.Notify(ctx, event, title, message); err != nil {
			l.logger.WarnContext(ctx, "notification delivery failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}

// render turns a bus payload into a notification. Unparseable payloads are
// forwarded raw under the "unknown" event so nothing silently disappears.
func render(payload []byte) (event, title, message string) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "unknown", "Settlement event", string(payload)
	}

	event, _ = fields["event"].(string)
	market, _ := fields["market"].(string)

	switch event {
	case "bet_placed":
		title = "Bet placed"
		message = fmt.Sprintf("market %s: %v on %v (%v shares)",
			market, fields["amount"], fields["outcome"], fields["shares"])
	case "shares_sold":
		title = "Shares sold"
		message = fmt.Sprintf("market %s: %v shares of %v",
			market, fields["shares"], fields["outcome"])
	case "market_resolved":
		title = "Market resolved"
		message = fmt.Sprintf("market %s resolved %v, %v payouts",
			market, fields["outcome"], fields["payouts"])
	case "market_unresolved":
		title = "Market resolution reversed"
		message = fmt.Sprintf("market %s reopened, %v payouts undone",
			market, fields["payouts"])
	default:
		if event == "" {
			event = "unknown"
		}
		title = "Settlement event"
		message = string(payload)
	}
	return event, title, message
}
