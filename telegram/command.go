package telegram

import (
	"strings"
)

// Command is an extracted bot command: its lower-cased name (without the
// leading "/" or any "@botname" suffix) and the remaining text.
type Command struct {
	Name string
	Args string
}

// ExtractCommand implements spec.md §3's bot-command extraction: prefer a
// BotCommand entity (addressed by UTF-16 code-unit offsets, not bytes or
// runes), else fall back to a leading "/" whose first whitespace is at
// position > 1 or absent. The command name is lower-cased with the
// invariant locale (no per-user locale is ever consulted).
func ExtractCommand(msg *Message) (Command, bool) {
	if msg == nil {
		return Command{}, false
	}

	text := msg.Text

	if entity := findBotCommandEntity(msg); entity != nil {
		endByte := utf16OffsetToByteIndex(text, entity.Offset+entity.Length)
		token := text[utf16OffsetToByteIndex(text, entity.Offset):endByte]
		return buildCommand(token, strings.TrimSpace(text[endByte:]))
	}

	if !strings.HasPrefix(text, "/") {
		return Command{}, false
	}

	ws := strings.IndexFunc(text, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' })
	if ws == 1 {
		// whitespace immediately after "/": no command name at all.
		return Command{}, false
	}

	if ws < 0 {
		return buildCommand(text, "")
	}
	return buildCommand(text[:ws], strings.TrimSpace(text[ws:]))
}

func findBotCommandEntity(msg *Message) *entityRef {
	for i := range msg.Entities {
		if msg.Entities[i].Type == "bot_command" {
			return &entityRef{Offset: msg.Entities[i].Offset, Length: msg.Entities[i].Length}
		}
	}
	return nil
}

type entityRef struct {
	Offset int
	Length int
}

// utf16OffsetToByteIndex converts a UTF-16 code-unit offset (as used by
// MessageEntity, per spec.md §3) into the corresponding byte index in a
// UTF-8 Go string.
func utf16OffsetToByteIndex(s string, utf16Offset int) int {
	if utf16Offset <= 0 {
		return 0
	}
	units := 0
	for i, r := range s {
		if units >= utf16Offset {
			return i
		}
		if r > 0xFFFF {
			units += 2
		} else {
			units++
		}
	}
	return len(s)
}

func buildCommand(token, args string) (Command, bool) {
	name := strings.TrimPrefix(token, "/")
	if name == "" {
		return Command{}, false
	}
	name = strings.ToLower(name)
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	if name == "" {
		return Command{}, false
	}
	return Command{Name: name, Args: args}, true
}
