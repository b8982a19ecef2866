package notify

import (
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v4"
)

type fakeBot struct {
	telebot.API

	sentTo   telebot.Recipient
	sentText string
	err      error
}

func (f *fakeBot) Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error) {
	f.sentTo = to
	f.sentText, _ = what.(string)
	if f.err != nil {
		return nil, f.err
	}
	return &telebot.Message{}, nil
}

func TestAnnounceSolve(t *testing.T) {
	bot := &fakeBot{}
	announcer := NewAnnouncer(bot, 42)

	announcer.AnnounceSolve("Wizards", "The Gatekeeper", 100)

	require.Equal(t, telebot.ChatID(42), bot.sentTo)
	require.Contains(t, bot.sentText, "Wizards")
	require.Contains(t, bot.sentText, "The Gatekeeper")
	require.Contains(t, bot.sentText, "+100")
}

func TestNilAnnouncerIsSafe(t *testing.T) {
	var announcer *Announcer
	require.NotPanics(t, func() {
		announcer.AnnounceSolve("Wizards", "The Gatekeeper", 100)
	})
}
