package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscordSenderRendersEmbed(t *testing.T) {
	var got struct {
		Embeds []discordEmbed `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), "market_resolved", "Market resolved", "market m1 resolved YES, 3 payouts")
	require.NoError(t, err)

	require.Len(t, got.Embeds, 1)
	assert.Equal(t, "Market resolved", got.Embeds[0].Title)
	assert.Contains(t, got.Embeds[0].Description, "m1")
	assert.Equal(t, colorResolved, got.Embeds[0].Color)
}

func TestDiscordSenderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "no such webhook", http.StatusNotFound)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	err := sender.Send(context.Background(), EventAlert, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestEventColorClasses(t *testing.T) {
	assert.Equal(t, colorResolved, eventColor("market_resolved"))
	assert.Equal(t, colorUnresolved, eventColor("market_unresolved"))
	assert.Equal(t, colorTrade, eventColor("bet_placed"))
	assert.Equal(t, colorTrade, eventColor("shares_sold"))
	assert.Equal(t, colorAlert, eventColor(EventAlert))
	assert.Equal(t, colorDefault, eventColor("unknown"))
}

func TestTelegramSenderTagsEvents(t *testing.T) {
	var got map[string]string
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sender := NewTelegramSender("tok", "chat42")
	sender.apiBase = srv.URL

	err := sender.Send(context.Background(), "market_unresolved", "Market resolution reversed", "market m1 reopened")
	require.NoError(t, err)

	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "chat42", got["chat_id"])
	assert.Contains(t, got["text"], "*Market resolution reversed*")
	assert.Contains(t, got["text"], "#settlement")
}
