// Package ui renders the chat session in a terminal and reads commands from the input line.
package ui

import (
	"chat-room/contract"
	"chat-room/domain/chat"
	"chat-room/domain/event"
	"chat-room/export"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

var (
	styleUser   = color.New(color.FgCyan, color.OpBold)
	styleTime   = color.New(color.FgGray)
	styleInfo   = color.New(color.FgGreen)
	styleWarn   = color.New(color.FgYellow)
	styleHeader = color.New(color.BgBlack, color.FgGreen)
)

// Renderer writes controller events as terminal lines.
type Renderer struct {
	out      io.Writer
	locale   export.Locale
	location *time.Location
	now      func() time.Time
	styled   bool

	mu     sync.Mutex
	online chat.PresenceSet
}

var _ contract.EventSink = (*Renderer)(nil)

func NewRenderer(out io.Writer, locale export.Locale, location *time.Location, styled bool) *Renderer {
	if location == nil {
		location = time.Local
	}
	return &Renderer{
		out:      out,
		locale:   locale,
		location: location,
		now:      time.Now,
		styled:   styled,
		online:   chat.PresenceSet{},
	}
}

func (r *Renderer) paint(style color.Style, s string) string {
	if !r.styled {
		return s
	}
	return style.Render(s)
}

func (r *Renderer) Consume(_ context.Context, e event.DomainEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch evt := e.(type) {
	case event.SessionChanged:
		if evt.Session == nil {
			return r.printf("%s\n", r.paint(styleInfo, "Signed out. Type /signin to join the room."))
		}
		return r.printf("%s\n", r.paint(styleInfo, "Signed in as "+evt.Session.DisplayName()))
	case event.ChannelStatusChanged:
		if evt.Status == chat.StatusSubscribed {
			return r.printf("%s\n", r.paint(styleInfo, "Joined #"+evt.Channel))
		}
		if evt.Err != nil {
			return r.printf("%s\n", r.paint(styleWarn, fmt.Sprintf("#%s %s: %v", evt.Channel, evt.Status, evt.Err)))
		}
		return r.printf("%s\n", r.paint(styleWarn, fmt.Sprintf("#%s %s", evt.Channel, evt.Status)))
	case event.MessageReceived:
		return r.printMessage(evt.Message)
	case event.MessageDropped:
		return r.printf("%s\n", r.paint(styleWarn, fmt.Sprintf("Not sent (%v): %s", evt.Err, evt.Message.Message)))
	case event.PresenceSynced:
		r.online = evt.Online.Clone()
		return r.printf("%s\n", r.paint(styleTime, fmt.Sprintf("%d online", evt.Online.Len())))
	case event.ConversationCleared:
		r.online = chat.PresenceSet{}
	}
	return nil
}

func (r *Renderer) printMessage(m chat.ChatMessage) error {
	at := m.Time(r.now()).In(r.location)
	return r.printf("%s %s %s\n",
		r.paint(styleTime, "["+r.locale.Time(at)+"]"),
		r.paint(styleUser, m.UserName+":"),
		m.Message)
}

// PrintWho lists the presence keys from the last sync.
func (r *Renderer) PrintWho() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.online.Len() == 0 {
		return r.printf("Nobody online.\n")
	}
	table := tablewriter.NewWriter(r.out)
	table.SetHeader([]string{"#", "Online"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	for i, key := range r.online.Keys() {
		table.Append([]string{fmt.Sprint(i + 1), key})
	}
	table.Render()
	return nil
}

func (r *Renderer) PrintHelp() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.printf("%s\n%s", r.paint(styleHeader, " Commands "), helpText)
}

// Notice prints a one-line message from the input loop.
func (r *Renderer) Notice(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.printf("%s\n", r.paint(styleInfo, fmt.Sprintf(format, args...)))
}

func (r *Renderer) Warn(format string, args ...any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_ = r.printf("%s\n", r.paint(styleWarn, fmt.Sprintf(format, args...)))
}

func (r *Renderer) printf(format string, args ...any) error {
	_, err := fmt.Fprintf(r.out, format, args...)
	return err
}

const helpText = `  <text>             send a message
  //<text>           send a message starting with "/"
  /export [txt|csv]  save the conversation
  /signin [provider] sign in
  /signout           sign out
  /who               list who is online
  /help              show this help
  /quit              leave
`
