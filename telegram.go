package main

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Command is the closed set of actions a message can request. Free-text
// button labels and slash commands are resolved to it once, here at the
// transport boundary, and dispatched by value everywhere else.
type Command int

const (
	CmdNone Command = iota
	CmdStart
	CmdID
	CmdCancel
	CmdExport
	CmdSendInvites
	CmdAnnounce
	CmdStats
	CmdVisitedStats
	CmdEditUser
	CmdScanQR
)

// Reply keyboard labels.
const (
	btnRegister     = "📝 Регистрация (/start)"
	btnMyID         = "🆔 Мой ID (/id)"
	btnSendInvites  = "📨 Рассылка приглашений"
	btnAnnounce     = "📢 Оповещение"
	btnStats        = "📊 Статистика приглашений"
	btnVisitedStats = "👥 Статистика посетивших"
	btnEditUser     = "✏️ Редактировать пользователя"
	btnScanQR       = "🔍 Сканировать QR"
	btnCancel       = "❌ Отмена"
)

var commandLookup = map[string]Command{
	"start":         CmdStart,
	"id":            CmdID,
	"cancel":        CmdCancel,
	"export":        CmdExport,
	"invite":        CmdSendInvites,
	"announce":      CmdAnnounce,
	"stats":         CmdStats,
	"visited":       CmdVisitedStats,
	"edituser":      CmdEditUser,
	"scan":          CmdScanQR,
	btnSendInvites:  CmdSendInvites,
	btnAnnounce:     CmdAnnounce,
	btnStats:        CmdStats,
	btnVisitedStats: CmdVisitedStats,
	btnEditUser:     CmdEditUser,
	btnScanQR:       CmdScanQR,
	btnCancel:       CmdCancel,
	btnRegister:     CmdStart,
	btnMyID:         CmdID,
}

// parseCommand resolves a message to a Command, CmdNone when it is neither a
// known slash command nor a known button label.
func parseCommand(msg *tgbotapi.Message) Command {
	if msg.IsCommand() {
		return commandLookup[msg.Command()]
	}
	return commandLookup[msg.Text]
}

// parseDecisionCallback resolves inline button data of the form
// "response_{yes,no}_event_{id}" into a decision and event id.
func parseDecisionCallback(data string) (Decision, int, bool) {
	parts := strings.Split(data, "_")
	if len(parts) != 4 || parts[0] != "response" || parts[2] != "event" {
		return "", 0, false
	}
	eventID, err := strconv.Atoi(parts[3])
	if err != nil {
		return "", 0, false
	}
	switch parts[1] {
	case "yes":
		return DecisionAccepted, eventID, true
	case "no":
		return DecisionDeclined, eventID, true
	}
	return "", 0, false
}

var adminKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnSendInvites),
		tgbotapi.NewKeyboardButton(btnAnnounce),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnStats),
		tgbotapi.NewKeyboardButton(btnVisitedStats),
	),
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnScanQR),
		tgbotapi.NewKeyboardButton(btnEditUser),
	),
)

var userKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(
		tgbotapi.NewKeyboardButton(btnRegister),
		tgbotapi.NewKeyboardButton(btnMyID),
	),
)

var cancelKeyboard = tgbotapi.NewReplyKeyboard(
	tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(btnCancel)),
)

// decisionKeyboard builds the accept/decline affordance for one event.
func decisionKeyboard(eventID int) tgbotapi.InlineKeyboardMarkup {
	yes := tgbotapi.NewInlineKeyboardButtonData("✅ Да, буду участвовать",
		fmt.Sprintf("response_yes_event_%d", eventID))
	no := tgbotapi.NewInlineKeyboardButtonData("❌ Нет, не смогу",
		fmt.Sprintf("response_no_event_%d", eventID))
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(yes, no))
}

// botTransport implements Transport over the Telegram Bot API.
type botTransport struct {
	bot *tgbotapi.BotAPI
}

func newBotTransport(bot *tgbotapi.BotAPI) *botTransport {
	return &botTransport{bot: bot}
}

func (t *botTransport) SendInvitation(userID int, p InvitationPayload) (int, error) {
	chatID := int64(userID)
	keyboard := decisionKeyboard(p.EventID)

	if len(p.Photo) > 0 {
		photo := tgbotapi.NewPhotoUpload(chatID, tgbotapi.FileBytes{Name: "invitation.jpg", Bytes: p.Photo})
		photo.Caption = p.Text
		photo.ParseMode = "Markdown"
		photo.ReplyMarkup = keyboard
		sent, err := t.bot.Send(photo)
		if err != nil {
			return 0, err
		}
		return sent.MessageID, nil
	}

	msg := tgbotapi.NewMessage(chatID, p.Text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = keyboard
	sent, err := t.bot.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *botTransport) EditInvitation(userID, messageID int, text string, hasPhoto bool) error {
	if hasPhoto {
		edit := tgbotapi.NewEditMessageCaption(int64(userID), messageID, text)
		edit.ParseMode = "Markdown"
		_, err := t.bot.Send(edit)
		return err
	}
	edit := tgbotapi.NewEditMessageText(int64(userID), messageID, text)
	edit.ParseMode = "Markdown"
	_, err := t.bot.Send(edit)
	return err
}

func (t *botTransport) SendMessage(userID int, text string) error {
	msg := tgbotapi.NewMessage(int64(userID), text)
	msg.ParseMode = "Markdown"
	_, err := t.bot.Send(msg)
	return err
}

func (t *botTransport) SendCredential(userID int, png []byte, caption string) error {
	photo := tgbotapi.NewPhotoUpload(int64(userID), tgbotapi.FileBytes{Name: "credential.png", Bytes: png})
	photo.Caption = caption
	_, err := t.bot.Send(photo)
	return err
}

func (t *botTransport) FetchMedia(ref string) ([]byte, error) {
	url, err := t.bot.GetFileDirectURL(ref)
	if err != nil {
		return nil, err
	}
	resp, err := http.Get(url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("media download: unexpected status %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
