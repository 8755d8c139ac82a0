package ui

import (
	"chat-room/domain/chat"
	"chat-room/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		line string
		want chat.Command
	}{
		{"Blank line", "   ", nil},
		{"Plain message", "hello there", chat.SendCommand{Text: "hello there"}},
		{"Message keeps inner spaces", "  spaced  ", chat.SendCommand{Text: "  spaced  "}},
		{"Escaped slash", "//shrug", chat.SendCommand{Text: "/shrug"}},
		{"Export default format", "/export", chat.ExportCommand{Format: "txt"}},
		{"Export csv", "/export CSV", chat.ExportCommand{Format: "csv"}},
		{"Save alias", "/save txt", chat.ExportCommand{Format: "txt"}},
		{"Sign in with provider", "/signin github", chat.SignInCommand{Provider: "github"}},
		{"Sign in default provider", "/login", chat.SignInCommand{}},
		{"Sign out", "/signout", chat.SignOutCommand{}},
		{"Who", "/who", chat.WhoCommand{}},
		{"Help", "/help", chat.HelpCommand{}},
		{"Quit", "/QUIT", chat.QuitCommand{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := require.New(t)
			got, err := Parse(tt.line)
			req.NoError(err)
			req.Equal(tt.want, got)
		})
	}
}

func TestParse_Unknown_Command(t *testing.T) {
	req := require.New(t)

	_, err := Parse("/dance")
	req.ErrorIs(err, errors.ErrUnknownCommand)

	_, err = Parse("/ ")
	req.ErrorIs(err, errors.ErrUnknownCommand)
}
