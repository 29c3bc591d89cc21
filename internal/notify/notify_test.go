package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	events []string
	titles []string
}

func (s *recordingSender) Send(_ context.Context, event, title, _ string) error {
	s.events = append(s.events, event)
	s.titles = append(s.titles, title)
	return nil
}

func (s *recordingSender) Name() string { return s.name }

func TestNotifyFiltersByEvent(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"market_resolved"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.Notify(context.Background(), "bet_placed", "Bet placed", "m"))
	require.NoError(t, n.Notify(context.Background(), "market_resolved", "Market resolved", "m"))

	assert.Equal(t, []string{"Market resolved"}, sender.titles)
}

func TestNotifyEmptyFilterAllowsAll(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.Notify(context.Background(), "anything", "t", "m"))
	assert.Len(t, sender.titles, 1)
}

func TestNotifyAllBypassesFilterAsAlert(t *testing.T) {
	sender := &recordingSender{name: "test"}
	n := NewNotifier([]Sender{sender}, []string{"market_resolved"}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, n.NotifyAll(context.Background(), "Ledger audit discrepancy", "m"))
	assert.Equal(t, []string{EventAlert}, sender.events)
}

func TestRenderSettlementEvents(t *testing.T) {
	event, title, msg := render([]byte(`{"event":"market_resolved","market":"m1","outcome":"YES","payouts":3}`))
	assert.Equal(t, "market_resolved", event)
	assert.Equal(t, "Market resolved", title)
	assert.Contains(t, msg, "m1")
	assert.Contains(t, msg, "YES")

	event, title, msg = render([]byte(`not json`))
	assert.Equal(t, "unknown", event)
	assert.Equal(t, "Settlement event", title)
	assert.Equal(t, "not json", msg)
}
