package orchestrator

import (
	"fmt"
	"time"

	"github.com/aiox-platform/mila/internal/transport"
)

// Action identifiers carried by inline buttons.
const (
	ActionOpenChat      = "open_chat"
	ActionShowPaidOffer = "show_paid_offer"
	ActionConfirmPaid   = "confirm_paid"
	ActionClearHistory  = "clear_history"
	ActionShowProfile   = "show_profile"
	ActionGift          = "gift"
)

// Texts are the user-facing strings of the bot.
type Texts struct {
	Greeting        string
	Help            string
	OpenChat        string
	OpenChatToast   string
	PaidOffer       string
	PaidGranted     string // %d days
	PaidGrantedTo   string // %d user, %s date
	PaidToast       string // %d days
	QuotaExhausted  string
	QuotaReset      string
	QuotaResetFor   string // %d user
	HistoryCleared  string
	HistoryToast    string
	GiftToast       string
	Busy            string
	SlowDown        string
	AdminOnly       string
	BadUserID       string
	ProfileTemplate string // id, status, used, limit, left, window, stored
	PaidActiveUntil string // %s date
	PaidInactive    string
}

func DefaultTexts() Texts {
	return Texts{
		Greeting: "Привет 🌸 Я Мила, твоя виртуальная подруга 💕\n" +
			"Люблю кино, музыку и уютные разговоры.\n" +
			"Расскажешь что-то о себе? 😉",
		Help: "Я здесь, чтобы болтать, поддерживать и радовать ✨\n" +
			"Пиши мне — и начнём 💬",
		OpenChat:      "Мне приятно с тобой общаться 💕 О чём поговорим? 🎬🎶",
		OpenChatToast: "Пишу первой 😉",
		PaidOffer: "💕 VIP доступ: безлимитный чат, приоритетные ответы, сюрпризы от Милы.\n" +
			"Стоимость — на экране оплаты. Нажми «Оплатить VIP».",
		PaidGranted:   "Готово! VIP активирован на %d дней ✨ Пиши мне что угодно 💬",
		PaidGrantedTo: "VIP для %d активен до %s ✨",
		PaidToast:     "VIP активирован на %d дней 💕",
		QuotaExhausted: "Мне так нравится с тобой общаться 💕 Но бесплатные сообщения закончились.\n" +
			"Чтобы продолжить без ограничений — активируй VIP ✨",
		QuotaReset:      "Лимит бесплатных сообщений сброшен 🔄",
		QuotaResetFor:   "Лимит бесплатных сообщений для %d сброшен 🔄",
		HistoryCleared:  "Готово! Я очистила нашу историю. Можем начать заново 🌸",
		HistoryToast:    "История очищена 🧹",
		GiftToast:       "Лови маленький сюрприз 🎁",
		Busy:            "Секундочку, я ещё думаю над прошлым сообщением 💭 Отвечу и на это.",
		SlowDown:        "Ты пишешь очень быстро 🙈 Дай мне минутку, хорошо?",
		AdminOnly:       "Эта команда доступна только администратору 🔒",
		BadUserID:       "Не понимаю этот ID 🤔 Укажи числовой идентификатор пользователя.",
		ProfileTemplate: "🧾 Профиль\nID: %d\nСтатус VIP: %s\nБесплатные сообщения: %d/%d (осталось %d)\nИстория: храню последние %d сообщений (сейчас %d).",
		PaidActiveUntil: "активен до %s",
		PaidInactive:    "не активен",
	}
}

// MainMenu is the menu of the greeting, also attached to reminders.
func MainMenu() *transport.Menu {
	return &transport.Menu{Rows: [][]transport.Button{
		{{Label: "💬 Чат", Action: ActionOpenChat}},
		{{Label: "💕 VIP доступ", Action: ActionShowPaidOffer}},
		{{Label: "🧹 Очистить историю", Action: ActionClearHistory}},
		{{Label: "🎁 Сюрприз от Милы", Action: ActionGift}},
		{{Label: "🧾 Профиль", Action: ActionShowProfile}},
	}}
}

func paidMenu(paymentLink string) *transport.Menu {
	return &transport.Menu{Rows: [][]transport.Button{
		{{Label: "Оплатить VIP", URL: paymentLink}},
		{{Label: "Я оплатил(а) ✅", Action: ActionConfirmPaid}},
	}}
}

func days(d time.Duration) int {
	return int(d / (24 * time.Hour))
}

func formatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func (t Texts) profile(userID int64, paidUntil *time.Time, used, limit, left, window, stored int) string {
	status := t.PaidInactive
	if paidUntil != nil {
		status = fmt.Sprintf(t.PaidActiveUntil, formatDate(*paidUntil))
	}
	return fmt.Sprintf(t.ProfileTemplate, userID, status, used, limit, left, window, stored)
}
