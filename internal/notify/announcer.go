// Package notify posts first-solve announcements to a Telegram chat. It is
// best-effort: failures are logged and never reach the player.
package notify

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v4"
)

type Announcer struct {
	bot    telebot.API
	chatID int64
}

// NewAnnouncer wraps a bot; a nil *Announcer is valid and announces nothing.
func NewAnnouncer(bot telebot.API, chatID int64) *Announcer {
	return &Announcer{bot: bot, chatID: chatID}
}

func (a *Announcer) AnnounceSolve(teamName, simulationTitle string, points int) {
	if a == nil {
		return
	}

	text := fmt.Sprintf("🚩 %s captured %q (+%d pts)", teamName, simulationTitle, points)
	if _, err := a.bot.Send(telebot.ChatID(a.chatID), text); err != nil {
		logrus.Errorf("failed to announce solve for team %s: %v", teamName, err)
	}
}
