package main

import (
	"fmt"
	"strings"
)

// User-facing texts. The transport renders them with Markdown parse mode.

const (
	msgWelcome = "👋 *Приветствую!*\n\n" +
		"Этот бот служит для приглашения на мероприятия.\n\n" +
		"📝 *Сначала пройдите регистрацию:*\n\nВведите ваше имя:"

	msgAskFirstName = "Введите ваше имя:"
	msgAskLastName  = "Теперь введите вашу фамилию:"

	msgInvalidName = "⚠️ *Некорректное имя!*\n\n" +
		"Имя и фамилия должны:\n" +
		"• Быть длиннее 1 символа\n" +
		"• Содержать только буквы\n" +
		"• Не быть командой (не начинаться с /)\n" +
		"• Не содержать спецсимволы\n\n" +
		"Попробуйте еще раз:"

	msgNotRegistered = "❌ Сначала зарегистрируйтесь через /start"

	msgDecodeFailure = "❌ *QR-код не найден на фото!*\n\n" +
		"*Советы для лучшего сканирования:*\n" +
		"1. 📸 Сфотографируйте QR-код при хорошем освещении\n" +
		"2. 🔍 Убедитесь, что весь QR-код в кадре\n" +
		"3. 📱 Держите камеру прямо напротив QR-кода\n" +
		"4. 💡 Избегайте бликов и теней\n" +
		"5. 🎯 QR-код должен занимать большую часть кадра"

	msgAdminDenied = "❌ У вас нет прав администратора!"

	msgCanceled = "❌ Операция отменена"

	msgUnknownCommand = "❌ Неизвестная команда\n\n" +
		"Доступные команды:\n/start - Регистрация\n/id - Узнать свой ID"
)

// formatRegistered is shown when a registered user runs /start again.
func formatRegistered(u User) string {
	return fmt.Sprintf("👋 *Вы уже зарегистрированы!*\n\n"+
		"👤 *Имя:* %s\n👥 *Фамилия:* %s\n\n"+
		"✅ Вы будете получать приглашения на мероприятия.", u.FirstName, u.LastName)
}

// formatRegistrationDone confirms a completed registration.
func formatRegistrationDone(u User) string {
	return fmt.Sprintf("✅ *Регистрация завершена!*\n\n"+
		"👤 *Имя:* %s\n👥 *Фамилия:* %s\n\n"+
		"🎯 Теперь вы будете получать приглашения на мероприятия.", u.FirstName, u.LastName)
}

// formatInvitation builds the invitation body delivered to one recipient.
func formatInvitation(u User, ev Event) string {
	return fmt.Sprintf("🎫 *Приглашение на мероприятие*\n\n"+
		"Здравствуйте, *%s*!\n\n"+
		"Вы приглашены на мероприятие:\n*%s* (№%d)\n\n"+
		"📝 *Описание:*\n%s\n\n"+
		"❓ *Вы желаете поучаствовать?*\n\n"+
		"_Нажмите одну из кнопок ниже для ответа:_",
		u.FullName(), ev.Name, ev.ID, ev.InvitationText)
}

// formatInvitationAnswered rewrites the invitation after a decision was recorded.
func formatInvitationAnswered(u User, ev Event, decision Decision, qrSent bool) string {
	answer := "❌ Нет, не смогу"
	status := "_Спасибо за ваш ответ!_"
	if decision == DecisionAccepted {
		answer = "✅ Да, буду участвовать"
		status = "_Статус: ⏳ Ожидание QR-кода_"
		if qrSent {
			status = "_Статус: ✅ QR-код отправлен_"
		}
	}
	return fmt.Sprintf("🎫 *Приглашение на мероприятие*\n\n"+
		"Здравствуйте, *%s*!\n\n"+
		"Вы приглашены на мероприятие:\n*%s* (№%d)\n\n"+
		"📝 *Описание:*\n%s\n\n"+
		"*Ваш ответ:* %s\n\n%s",
		u.FullName(), ev.Name, ev.ID, ev.InvitationText, answer, status)
}

// formatCredentialCaption captions the QR photo message.
func formatCredentialCaption(ev Event, token string) string {
	return fmt.Sprintf("QR-код для мероприятия: %s\nКод: %s\n\n"+
		"Покажите его на входе. 💡 Сохраните QR-код в галерее телефона.", ev.Name, token)
}

// formatDeclined confirms a declined invitation.
func formatDeclined(ev Event) string {
	return fmt.Sprintf("📭 *Ваш ответ сохранен*\n\n"+
		"Вы отказались от участия в мероприятии:\n*%s*\n\nСпасибо за ваш ответ!", ev.Name)
}

// formatAnnouncement wraps an operator announcement.
func formatAnnouncement(text string) string {
	return "📢 *Оповещение от администратора*\n\n" + text
}

// formatBroadcastReport summarizes a finished fan-out for the operator.
func formatBroadcastReport(ev Event, total int, res BroadcastResult) string {
	return fmt.Sprintf("✅ Рассылка завершена!\n\n"+
		"🎫 Мероприятие: №%d - %s\n"+
		"👥 Всего пользователей: %d\n"+
		"✅ Успешно отправлено: %d\n"+
		"❌ Не удалось отправить: %d\n\n"+
		"📊 QR-коды будут отправлены пользователям, которые ответят «Да»",
		ev.ID, ev.Name, total, res.Sent, res.Failed)
}

// formatVerifyResult builds the operator-facing scan report.
func formatVerifyResult(r VerifyResult) string {
	switch r.Status {
	case VerifyOK:
		return fmt.Sprintf("✅ *QR-код успешно отсканирован!*\n\n"+
			"🎫 *Мероприятие:* %s (№%d)\n"+
			"👤 *Участник:* %s\n"+
			"🆔 *ID:* %d\n\n"+
			"✅ *Посещение отмечено!*",
			r.Event.Name, r.Event.ID, r.User.FullName(), r.User.ID)
	case VerifyAlreadyScanned:
		return fmt.Sprintf("⚠️ *Этот QR-код уже был отсканирован!*\n\n"+
			"🎫 *Мероприятие:* %s (№%d)\n"+
			"👤 *Участник:* %s\n"+
			"🆔 *ID:* %d\n\n"+
			"❌ Этот участник уже был зарегистрирован.",
			r.Event.Name, r.Event.ID, r.User.FullName(), r.User.ID)
	case VerifyUnknownUser:
		return fmt.Sprintf("❌ *Пользователь не найден!*\n\n"+
			"Возможно, пользователь не зарегистрирован в системе.\n"+
			"Код: `%s`", r.Token)
	case VerifyUnknownEvent:
		return fmt.Sprintf("❌ *Мероприятие не найдено!*\n\n"+
			"Мероприятие с таким номером не существует.\n"+
			"Код: `%s`", r.Token)
	default:
		return fmt.Sprintf("❌ *Неверный формат QR-кода!*\n\n"+
			"Получено: `%s`\n\n"+
			"Ожидался формат: `числоUчисло`, например `1U123456789`.\n"+
			"Проверьте правильность QR-кода.", r.Token)
	}
}

// formatInvitationStats renders campaign delivery statistics.
func formatInvitationStats(eventName string, stats InvitationStats) string {
	return fmt.Sprintf("📊 *Статистика по мероприятию:* %s\n\n"+
		"👥 *Всего пользователей в системе:* %d\n"+
		"📨 *Получили приглашение:* %d\n"+
		"✅ *Согласились прийти:* %d\n"+
		"❌ *Отказались или еще не ответили:* %d\n"+
		"⚠️ *Ошибок отправки:* %d\n\n"+
		"📈 *Процент согласий:* %.1f%%",
		eventName, stats.TotalUsers, stats.Delivered, stats.Accepted,
		stats.NotAccepted, stats.FailedSend, stats.AcceptPercent)
}

// formatAttendanceStats renders redemption statistics.
func formatAttendanceStats(ev Event, stats AttendanceStats) string {
	return fmt.Sprintf("👥 *Статистика посетивших*\n\n"+
		"🎫 *Мероприятие:* %s (№%d)\n\n"+
		"✅ *Согласились прийти:* %d чел.\n"+
		"🎯 *Фактически посетили:* %d чел.\n"+
		"❌ *Согласились, но не пришли:* %d чел.\n\n"+
		"📊 *Статистика основана на отсканированных QR-кодах*",
		ev.Name, ev.ID, stats.Accepted, stats.Visited, stats.NotVisited)
}

// formatEventList renders the pickable event names for admin dialogs.
func formatEventList(events []Event) string {
	var b strings.Builder
	for _, ev := range events {
		b.WriteString("• ")
		b.WriteString(ev.Name)
		b.WriteString("\n")
	}
	return b.String()
}

// formatUserEdited confirms an operator rename.
func formatUserEdited(old, updated User) string {
	return fmt.Sprintf("✅ *Данные пользователя обновлены!*\n\n"+
		"👤 *ID пользователя:* %d\n\n"+
		"📝 *Было:* %s\n"+
		"📝 *Стало:* %s",
		updated.ID, old.FullName(), updated.FullName())
}
