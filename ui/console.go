package ui

import (
	"bufio"
	"chat-room/domain/chat"
	"chat-room/errors"
	"chat-room/export"
	"context"
	goerrors "errors"
	"io"
	"log/slog"
)

// Controller is the part of the session controller the input line drives.
type Controller interface {
	SendMessage(ctx context.Context, text string) error
	SaveConversation(ctx context.Context, format export.Format) (string, error)
	SignIn(ctx context.Context, provider string) (string, error)
	SignOut(ctx context.Context) error
	SetInput(text string)
}

// Console reads commands line by line and applies them to the controller.
type Console struct {
	log             *slog.Logger
	controller      Controller
	renderer        *Renderer
	defaultProvider string
}

func NewConsole(log *slog.Logger, controller Controller, renderer *Renderer, defaultProvider string) *Console {
	return &Console{log: log, controller: controller, renderer: renderer, defaultProvider: defaultProvider}
}

// Run returns when the input ends, /quit is typed or ctx is done.
func (c *Console) Run(ctx context.Context, in io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	lines := make(chan string)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle applies one input line and reports whether the user asked to quit.
func (c *Console) Handle(ctx context.Context, line string) bool {
	c.controller.SetInput(line)
	cmd, err := Parse(line)
	if err != nil {
		c.renderer.Warn("%v, type /help", err)
		c.controller.SetInput("")
		return false
	}
	if cmd == nil {
		return false
	}
	if _, isSend := cmd.(chat.SendCommand); !isSend {
		c.controller.SetInput("")
	}

	switch command := cmd.(type) {
	case chat.SendCommand:
		// A drop is rendered from the MessageDropped event.
		if err := c.controller.SendMessage(ctx, command.Text); err != nil {
			c.log.Debug("Message not sent", "error", err)
		}
	case chat.ExportCommand:
		c.export(ctx, command.Format)
	case chat.SignInCommand:
		provider := command.Provider
		if provider == "" {
			provider = c.defaultProvider
		}
		authURL, err := c.controller.SignIn(ctx, provider)
		if err != nil {
			c.renderer.Warn("Sign-in failed: %v", err)
			return false
		}
		if authURL != "" {
			c.renderer.Notice("Open this URL to sign in: %s", authURL)
		}
	case chat.SignOutCommand:
		if err := c.controller.SignOut(ctx); err != nil {
			c.renderer.Warn("Sign-out failed: %v", err)
		}
	case chat.WhoCommand:
		if err := c.renderer.PrintWho(); err != nil {
			c.log.Debug("Could not print presence", "error", err)
		}
	case chat.HelpCommand:
		if err := c.renderer.PrintHelp(); err != nil {
			c.log.Debug("Could not print help", "error", err)
		}
	case chat.QuitCommand:
		return true
	}
	return false
}

func (c *Console) export(ctx context.Context, rawFormat string) {
	format, err := export.ParseFormat(rawFormat)
	if err != nil {
		c.renderer.Warn("%v (use txt or csv)", err)
		return
	}
	path, err := c.controller.SaveConversation(ctx, format)
	switch {
	case goerrors.Is(err, errors.ErrEmptyExport):
		c.renderer.Warn("Nothing to export yet")
	case err != nil:
		c.renderer.Warn("Export failed: %v", err)
	default:
		c.renderer.Notice("Conversation saved to %s", path)
	}
}
