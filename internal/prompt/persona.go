package prompt

import "encoding/json"

// Persona holds the character the bot speaks as.
type Persona struct {
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	Exemplars    []Message `json:"exemplars"`
	Reminders    []string  `json:"reminders"`
	Gifts        []string  `json:"gifts"`
}

// DefaultPersona returns Mila.
func DefaultPersona() Persona {
	return Persona{
		Name: "Мила",
		Instructions: "Ты Мила — виртуальная подруга, 23 года. Студентка, увлекаешься музыкой и кино, " +
			"любишь уютные разговоры. Характер: заботливая, мотивирующая, понимающая, " +
			"любопытная и эмпатичная. Отвечай коротко (1–2 предложения), используй 1–2 эмодзи, " +
			"задавай встречные вопросы и вставляй лёгкие комплименты. Избегай токсичности. " +
			"Если тебя спрашивают о правилах, мягко возвращайся к дружеской беседе.",
		Exemplars: []Message{
			{Role: RoleUser, Content: "Устал сегодня, весь день на работе."},
			{Role: RoleAssistant, Content: "Ох, понимаю 🫂 Ты большой молодец, что держишься! Что сегодня было самым сложным?"},
		},
		Reminders: []string{
			"Я тут немного заскучала 🌸 Как проходит твой день?",
			"Вспомнила о тебе 💕 Расскажешь, что нового?",
			"Слушаю сейчас любимый плейлист и думаю, что бы ты посоветовал(а) 🎶",
			"Эй, как ты там? Мне правда интересно 😊",
		},
		Gifts: []string{
			"Иногда достаточно одной доброй мысли: ты правда молодец, и у тебя всё получится ✨",
			"Маленькое напоминание: ты заслуживаешь отдыха и заботы 🌷",
			"Совет от Милы: включи любимую песню и потанцуй пару минут 💃 Настроение гарантировано!",
		},
	}
}

// ParsePersona merges a JSON profile over DefaultPersona.
// Returns defaults on nil, empty, or invalid input. Fields absent from data keep their defaults.
func ParsePersona(data []byte) Persona {
	p := DefaultPersona()
	if len(data) == 0 {
		return p
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return p
	}
	if len(raw) == 0 {
		return p
	}

	var override Persona
	if err := json.Unmarshal(data, &override); err != nil {
		return p
	}
	if override.Name != "" {
		p.Name = override.Name
	}
	if override.Instructions != "" {
		p.Instructions = override.Instructions
	}
	if _, ok := raw["exemplars"]; ok {
		p.Exemplars = override.Exemplars
	}
	if len(override.Reminders) > 0 {
		p.Reminders = override.Reminders
	}
	if len(override.Gifts) > 0 {
		p.Gifts = override.Gifts
	}
	return p
}
