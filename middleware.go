package main

import tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"

type commandHandler func(msg *tgbotapi.Message)

// adminOnly wraps a command handler with an administrator check.
func (b *Bot) adminOnly(handler commandHandler) commandHandler {
	return func(msg *tgbotapi.Message) {
		if !b.cfg.IsAdmin(msg.From.ID) {
			b.sendPlain(msg.Chat.ID, msgAdminDenied)
			return
		}
		handler(msg)
	}
}
