package ui

import (
	"chat-room/domain/chat"
	"chat-room/errors"
	"fmt"
	"strings"
)

// Parse turns one input line into a command. Lines not starting with "/" are messages;
// "//text" sends "/text" literally.
func Parse(line string) (chat.Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}
	if !strings.HasPrefix(line, "/") {
		return chat.SendCommand{Text: line}, nil
	}
	if strings.HasPrefix(line, "//") {
		return chat.SendCommand{Text: line[1:]}, nil
	}

	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: /", errors.ErrUnknownCommand)
	}
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "export", "save":
		format := "txt"
		if len(args) > 0 {
			format = strings.ToLower(args[0])
		}
		return chat.ExportCommand{Format: format}, nil
	case "signin", "login":
		provider := ""
		if len(args) > 0 {
			provider = args[0]
		}
		return chat.SignInCommand{Provider: provider}, nil
	case "signout", "logout":
		return chat.SignOutCommand{}, nil
	case "who", "online":
		return chat.WhoCommand{}, nil
	case "help", "?":
		return chat.HelpCommand{}, nil
	case "quit", "exit":
		return chat.QuitCommand{}, nil
	default:
		return nil, fmt.Errorf("%w: /%s", errors.ErrUnknownCommand, name)
	}
}
