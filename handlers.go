package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api"
)

// Bot routes incoming updates to the orchestrator, the verifier and the
// admin flows.
type Bot struct {
	api      *tgbotapi.BotAPI
	cfg      *Config
	repo     Repository
	dialogs  *DialogManager
	orch     *Orchestrator
	verifier *Verifier
	scanner  *QRScanner
	log      *slog.Logger
	ctx      context.Context
}

// HandleUpdate dispatches one update.
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	if update.CallbackQuery != nil {
		b.handleCallbackQuery(update.CallbackQuery)
		return
	}
	if update.Message != nil {
		b.handleMessage(update.Message)
	}
}

// handleMessage routes commands, dialog steps and stray photos.
func (b *Bot) handleMessage(msg *tgbotapi.Message) {
	cmd := parseCommand(msg)
	if cmd == CmdCancel {
		b.handleCancel(msg)
		return
	}

	if cmd == CmdNone {
		if state := b.dialogs.GetState(msg.Chat.ID); state != NoDialog {
			b.handleDialogStep(msg, state)
			return
		}
	}

	switch cmd {
	case CmdStart:
		b.handleStart(msg)
	case CmdID:
		b.handleID(msg)
	case CmdExport:
		b.adminOnly(b.handleExport)(msg)
	case CmdSendInvites:
		b.adminOnly(b.handleSendInvites)(msg)
	case CmdAnnounce:
		b.adminOnly(b.handleAnnounce)(msg)
	case CmdStats:
		b.adminOnly(b.handleStatsPrompt(WaitingForStatsEvent))(msg)
	case CmdVisitedStats:
		b.adminOnly(b.handleStatsPrompt(WaitingForVisitedEvent))(msg)
	case CmdEditUser:
		b.adminOnly(b.handleEditUser)(msg)
	case CmdScanQR:
		b.adminOnly(b.handleScanQRPrompt)(msg)
	default:
		// A photo from an administrator outside any dialog is a scan attempt.
		if hasPhoto(msg) && b.cfg.IsAdmin(msg.From.ID) {
			b.handleScanPhoto(msg)
			return
		}
		if msg.IsCommand() {
			b.sendPlain(msg.Chat.ID, msgUnknownCommand)
			return
		}
		b.sendWithKeyboard(msg.Chat.ID, "Для регистрации используйте команду /start", userKeyboard)
	}
}

// handleCancel aborts whatever multi-turn form the chat is in.
func (b *Bot) handleCancel(msg *tgbotapi.Message) {
	b.dialogs.Cancel(msg.Chat.ID)
	b.sendWithKeyboard(msg.Chat.ID, msgCanceled, b.menuFor(msg.From.ID))
}

// handleStart greets a registered user or begins the registration dialog.
func (b *Bot) handleStart(msg *tgbotapi.Message) {
	user, err := b.repo.GetUser(msg.From.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if user != nil {
		b.sendWithKeyboard(msg.Chat.ID, formatRegistered(*user), b.menuFor(msg.From.ID))
		return
	}
	b.dialogs.SetState(msg.Chat.ID, WaitingForFirstName)
	b.sendPlain(msg.Chat.ID, msgWelcome)
}

// handleID echoes the caller's telegram id.
func (b *Bot) handleID(msg *tgbotapi.Message) {
	user, err := b.repo.GetUser(msg.From.ID)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if user == nil {
		b.sendWithKeyboard(msg.Chat.ID, msgNotRegistered, userKeyboard)
		return
	}
	b.sendWithKeyboard(msg.Chat.ID, fmt.Sprintf("Ваш ID: `%d`", user.ID), b.menuFor(msg.From.ID))
}

// handleSendInvites opens the campaign creation dialog.
func (b *Bot) handleSendInvites(msg *tgbotapi.Message) {
	next, err := b.repo.NextEventID()
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.dialogs.SetState(msg.Chat.ID, WaitingForEventName)
	b.sendWithKeyboard(msg.Chat.ID,
		fmt.Sprintf("🎬 Создание мероприятия №%d\n\nВведите название мероприятия:", next),
		cancelKeyboard)
}

// handleAnnounce opens the announcement dialog.
func (b *Bot) handleAnnounce(msg *tgbotapi.Message) {
	b.dialogs.SetState(msg.Chat.ID, WaitingForAnnouncement)
	b.sendWithKeyboard(msg.Chat.ID, "📢 Введите текст оповещения для всех пользователей:", cancelKeyboard)
}

// handleStatsPrompt opens one of the stats dialogs: both ask for an event name.
func (b *Bot) handleStatsPrompt(state DialogState) commandHandler {
	return func(msg *tgbotapi.Message) {
		events, err := b.repo.ListEvents()
		if err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
		if len(events) == 0 {
			b.sendWithKeyboard(msg.Chat.ID, "❌ Нет созданных мероприятий.", adminKeyboard)
			return
		}
		b.dialogs.SetState(msg.Chat.ID, state)
		b.sendWithKeyboard(msg.Chat.ID,
			"📋 *Доступные мероприятия:*\n"+formatEventList(events)+
				"\n✍️ *Введите точное название мероприятия:*",
			cancelKeyboard)
	}
}

// handleEditUser opens the display-name edit dialog.
func (b *Bot) handleEditUser(msg *tgbotapi.Message) {
	b.dialogs.SetState(msg.Chat.ID, WaitingForUserEdit)
	b.sendWithKeyboard(msg.Chat.ID,
		"👤 *Редактирование данных пользователя*\n\n"+
			"Введите данные в формате:\n`ID_пользователя Новое_Имя Новая_Фамилия`\n\n"+
			"Пример:\n`123456789 Иван Петров`",
		cancelKeyboard)
}

// handleScanQRPrompt asks for a credential photo.
func (b *Bot) handleScanQRPrompt(msg *tgbotapi.Message) {
	b.dialogs.SetState(msg.Chat.ID, WaitingForScanPhoto)
	b.sendWithKeyboard(msg.Chat.ID, "📸 Отправьте фото QR-кода участника:", cancelKeyboard)
}

// handleDialogStep advances the chat's multi-turn form by one answer.
func (b *Bot) handleDialogStep(msg *tgbotapi.Message, state DialogState) {
	switch state {
	case WaitingForFirstName:
		if !ValidateName(msg.Text) {
			b.sendPlain(msg.Chat.ID, msgInvalidName)
			return
		}
		b.dialogs.SetField(msg.Chat.ID, "first_name", strings.TrimSpace(msg.Text))
		b.dialogs.SetState(msg.Chat.ID, WaitingForLastName)
		b.sendPlain(msg.Chat.ID, msgAskLastName)

	case WaitingForLastName:
		if !ValidateName(msg.Text) {
			b.sendPlain(msg.Chat.ID, msgInvalidName)
			return
		}
		user := User{
			ID:        msg.From.ID,
			FirstName: b.dialogs.GetField(msg.Chat.ID, "first_name"),
			LastName:  strings.TrimSpace(msg.Text),
		}
		b.dialogs.Cancel(msg.Chat.ID)
		if err := b.repo.SaveUser(user); err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
		b.log.Info("user registered", slog.Int("user_id", user.ID))
		b.sendWithKeyboard(msg.Chat.ID, formatRegistrationDone(user), b.menuFor(msg.From.ID))

	case WaitingForEventName:
		name := strings.TrimSpace(msg.Text)
		if name == "" {
			b.sendPlain(msg.Chat.ID, "❌ Название не может быть пустым. Введите название мероприятия:")
			return
		}
		b.dialogs.SetField(msg.Chat.ID, "name", name)
		b.dialogs.SetState(msg.Chat.ID, WaitingForEventPhoto)
		b.sendWithKeyboard(msg.Chat.ID,
			"📸 Отправьте фото для приглашения или напишите «нет», чтобы пропустить:",
			cancelKeyboard)

	case WaitingForEventPhoto:
		if id := largestPhotoID(msg); id != "" {
			b.dialogs.SetField(msg.Chat.ID, "photo_ref", id)
		} else if !strings.EqualFold(strings.TrimSpace(msg.Text), "нет") {
			b.sendPlain(msg.Chat.ID, "📸 Отправьте фото или напишите «нет»:")
			return
		}
		b.dialogs.SetState(msg.Chat.ID, WaitingForInvitationText)
		b.sendWithKeyboard(msg.Chat.ID, "📝 Введите текст приглашения:", cancelKeyboard)

	case WaitingForInvitationText:
		draft := EventDraft{
			Name:           b.dialogs.GetField(msg.Chat.ID, "name"),
			InvitationText: msg.Text,
			PhotoRef:       b.dialogs.GetField(msg.Chat.ID, "photo_ref"),
		}
		b.dialogs.Cancel(msg.Chat.ID)
		b.sendPlain(msg.Chat.ID, "🚀 Начинаю рассылку приглашений...")
		go b.runCampaign(msg.Chat.ID, draft)

	case WaitingForAnnouncement:
		text := msg.Text
		b.dialogs.Cancel(msg.Chat.ID)
		b.sendPlain(msg.Chat.ID, "📤 Начинаю рассылку сообщения...")
		go b.runAnnouncement(msg.Chat.ID, text)

	case WaitingForStatsEvent:
		b.dialogs.Cancel(msg.Chat.ID)
		b.replyInvitationStats(msg.Chat.ID, strings.TrimSpace(msg.Text))

	case WaitingForVisitedEvent:
		b.dialogs.Cancel(msg.Chat.ID)
		b.replyAttendanceStats(msg.Chat.ID, strings.TrimSpace(msg.Text))

	case WaitingForUserEdit:
		b.dialogs.Cancel(msg.Chat.ID)
		b.applyUserEdit(msg.Chat.ID, msg.Text)

	case WaitingForScanPhoto:
		if !hasPhoto(msg) {
			b.sendPlain(msg.Chat.ID, "📸 Отправьте фото QR-кода:")
			return
		}
		b.dialogs.Cancel(msg.Chat.ID)
		b.handleScanPhoto(msg)
	}
}

// runCampaign executes the fan-out off the update loop and reports back.
func (b *Bot) runCampaign(chatID int64, draft EventDraft) {
	ev, result, err := b.orch.StartCampaign(b.ctx, draft)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	total, err := b.repo.CountUsers()
	if err != nil {
		total = result.Sent + result.Failed
	}
	b.sendWithKeyboard(chatID, formatBroadcastReport(*ev, total, result), adminKeyboard)
}

// runAnnouncement executes an announcement fan-out and reports back.
func (b *Bot) runAnnouncement(chatID int64, text string) {
	result, total, err := b.orch.Announce(b.ctx, text)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendWithKeyboard(chatID,
		fmt.Sprintf("✅ Рассылка завершена!\n\n👥 Всего пользователей: %d\n"+
			"✅ Успешно отправлено: %d\n❌ Не удалось отправить: %d",
			total, result.Sent, result.Failed),
		adminKeyboard)
}

func (b *Bot) replyInvitationStats(chatID int64, eventName string) {
	ev, err := b.repo.GetEventByName(eventName)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if ev == nil {
		b.sendWithKeyboard(chatID, fmt.Sprintf("❌ Мероприятие «%s» не найдено!", eventName), adminKeyboard)
		return
	}
	stats, err := b.repo.InvitationStats(ev.ID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendWithKeyboard(chatID, formatInvitationStats(ev.Name, stats), adminKeyboard)
}

func (b *Bot) replyAttendanceStats(chatID int64, eventName string) {
	ev, err := b.repo.GetEventByName(eventName)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if ev == nil {
		b.sendWithKeyboard(chatID, fmt.Sprintf("❌ Мероприятие «%s» не найдено!", eventName), adminKeyboard)
		return
	}
	stats, err := b.repo.AttendanceStats(ev.ID, ev.Name)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	b.sendWithKeyboard(chatID, formatAttendanceStats(*ev, stats), adminKeyboard)
}

// applyUserEdit parses "ID Имя Фамилия" and overwrites the display name.
func (b *Bot) applyUserEdit(chatID int64, input string) {
	parts := strings.Fields(strings.TrimSpace(input))
	if len(parts) < 3 {
		b.sendWithKeyboard(chatID,
			"❌ Неверный формат!\n\nВведите в формате: `ID Имя Фамилия`\nПример: `123456789 Иван Петров`",
			adminKeyboard)
		return
	}
	userID, err := strconv.Atoi(parts[0])
	if err != nil {
		b.sendWithKeyboard(chatID, "❌ Ошибка! ID должен быть числом.", adminKeyboard)
		return
	}
	firstName := parts[1]
	lastName := strings.Join(parts[2:], " ")
	if !ValidateName(firstName) || !ValidateName(lastName) {
		b.sendWithKeyboard(chatID, msgInvalidName, adminKeyboard)
		return
	}

	old, err := b.repo.GetUser(userID)
	if err != nil {
		b.replyError(chatID, err)
		return
	}
	if old == nil {
		b.sendWithKeyboard(chatID,
			fmt.Sprintf("❌ Пользователь с ID %d не найден!\n\n"+
				"Пользователь должен быть сначала зарегистрирован через /start.", userID),
			adminKeyboard)
		return
	}
	if err := b.repo.UpdateUserName(userID, firstName, lastName); err != nil {
		b.replyError(chatID, err)
		return
	}
	updated := User{ID: userID, FirstName: firstName, LastName: lastName}
	b.log.Info("user renamed", slog.Int("user_id", userID))
	b.sendWithKeyboard(chatID, formatUserEdited(*old, updated), adminKeyboard)
}

// handleScanPhoto downloads the photo, runs the QR pipeline and verifies the
// decoded credential.
func (b *Bot) handleScanPhoto(msg *tgbotapi.Message) {
	b.sendPlain(msg.Chat.ID, "🔍 Сканирую QR-код...")

	data, err := b.orch.transport.FetchMedia(largestPhotoID(msg))
	if err != nil {
		b.sendWithKeyboard(msg.Chat.ID, "❌ Не удалось загрузить фото. Попробуйте еще раз.", adminKeyboard)
		b.log.Warn("scan: photo download failed", errAttr(err))
		return
	}

	token := b.scanner.Decode(data)
	if token == "" {
		b.sendWithKeyboard(msg.Chat.ID, msgDecodeFailure, adminKeyboard)
		return
	}

	result, err := b.verifier.Verify(token)
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	b.sendWithKeyboard(msg.Chat.ID, formatVerifyResult(result), adminKeyboard)
}

// handleCallbackQuery processes an accept/decline button press.
func (b *Bot) handleCallbackQuery(cq *tgbotapi.CallbackQuery) {
	decision, eventID, ok := parseDecisionCallback(cq.Data)
	if !ok {
		b.answerCallback(cq.ID, "❌ Ошибка обработки ответа")
		return
	}

	outcome, err := b.orch.HandleDecision(cq.From.ID, eventID, decision)
	switch {
	case errors.Is(err, ErrUserNotRegistered):
		b.answerCallback(cq.ID, "❌ Сначала зарегистрируйтесь через /start")
		b.sendWithKeyboard(int64(cq.From.ID), msgNotRegistered, userKeyboard)
		return
	case errors.Is(err, ErrEventNotFound):
		b.answerCallback(cq.ID, "❌ Мероприятие не найдено")
		return
	case err != nil:
		b.log.Error("decision handling failed",
			slog.Int("user_id", cq.From.ID), slog.Int("event_id", eventID), errAttr(err))
		b.answerCallback(cq.ID, "❌ Ошибка сохранения ответа")
		return
	}

	if outcome.AlreadyAnswered {
		answer := "✅ Да"
		if outcome.Decision != DecisionAccepted {
			answer = "❌ Нет"
		}
		b.answerCallback(cq.ID, "Вы уже ответили: "+answer)
		return
	}

	if outcome.Decision == DecisionAccepted {
		b.answerCallback(cq.ID, "✅ Спасибо за ответ! QR-код отправлен")
		return
	}
	b.sendPlain(int64(cq.From.ID), formatDeclined(outcome.Event))
	b.answerCallback(cq.ID, "❌ Ваш отказ сохранен")
}

// handleExport builds a CSV of all responses and uploads it as a document.
func (b *Bot) handleExport(msg *tgbotapi.Message) {
	rows, err := b.repo.ListExportRows()
	if err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}
	if len(rows) == 0 {
		b.sendWithKeyboard(msg.Chat.ID, "Ответы отсутствуют", adminKeyboard)
		return
	}

	var buf bytes.Buffer
	// UTF-8 BOM for Excel compatibility
	buf.WriteString("\xEF\xBB\xBF")
	writer := csv.NewWriter(&buf)

	header := []string{"ID Telegram", "Имя", "Фамилия", "Событие", "Ответ", "QR отправлен", "Посетил", "Время сканирования"}
	if err := writer.Write(header); err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	for _, row := range rows {
		qrSent := "Нет"
		if row.Response.CredentialIssued {
			qrSent = "Да"
		}
		visited := "Нет"
		scannedAt := ""
		if row.Scanned {
			visited = "Да"
			scannedAt = row.ScannedAt.Format("02.01.2006 15:04")
		}
		record := []string{
			strconv.Itoa(row.User.ID),
			row.User.FirstName,
			row.User.LastName,
			row.Event.Name,
			string(row.Response.Decision),
			qrSent,
			visited,
			scannedAt,
		}
		if err := writer.Write(record); err != nil {
			b.replyError(msg.Chat.ID, err)
			return
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		b.replyError(msg.Chat.ID, err)
		return
	}

	doc := tgbotapi.NewDocumentUpload(msg.Chat.ID, tgbotapi.FileBytes{
		Name:  "responses_export.csv",
		Bytes: buf.Bytes(),
	})
	doc.Caption = fmt.Sprintf("Экспорт ответов (%d записей)", len(rows))
	if _, err := b.api.Send(doc); err != nil {
		b.log.Warn("export: document upload failed", errAttr(err))
	}
}

// menuFor returns the reply keyboard matching the caller's role.
func (b *Bot) menuFor(userID int) tgbotapi.ReplyKeyboardMarkup {
	if b.cfg.IsAdmin(userID) {
		return adminKeyboard
	}
	return userKeyboard
}

func (b *Bot) sendPlain(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send failed", slog.Int64("chat_id", chatID), errAttr(err))
	}
}

func (b *Bot) sendWithKeyboard(chatID int64, text string, keyboard tgbotapi.ReplyKeyboardMarkup) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	msg.ReplyMarkup = keyboard
	if _, err := b.api.Send(msg); err != nil {
		b.log.Warn("send failed", slog.Int64("chat_id", chatID), errAttr(err))
	}
}

func (b *Bot) answerCallback(id, text string) {
	if _, err := b.api.AnswerCallbackQuery(tgbotapi.NewCallback(id, text)); err != nil {
		b.log.Warn("callback answer failed", errAttr(err))
	}
}

func (b *Bot) replyError(chatID int64, err error) {
	b.log.Error("request failed", slog.Int64("chat_id", chatID), errAttr(err))
	b.sendPlain(chatID, "❌ Произошла ошибка. Попробуйте еще раз.")
}

func hasPhoto(msg *tgbotapi.Message) bool {
	return msg.Photo != nil && len(*msg.Photo) > 0
}

func largestPhotoID(msg *tgbotapi.Message) string {
	if !hasPhoto(msg) {
		return ""
	}
	photos := *msg.Photo
	return photos[len(photos)-1].FileID
}
