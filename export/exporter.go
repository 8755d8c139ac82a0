// Package export turns the visible conversation into a downloadable text or CSV file.
// Formatting is pure: the same messages, locale and clock always give the same bytes.
package export

import (
	"chat-room/domain/chat"
	"chat-room/errors"
	"fmt"
	"strings"
	"time"
)

type Format string

const (
	TXT Format = "txt"
	CSV Format = "csv"
)

const csvHeader = "Fecha,Hora,Usuario,Mensaje"

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case TXT, CSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", errors.ErrUnsupportedFormat, s)
	}
}

func (f Format) MIMEType() string {
	if f == CSV {
		return "text/csv;charset=utf-8"
	}
	return "text/plain;charset=utf-8"
}

// Blob is a ready-to-download export.
type Blob struct {
	Data     []byte
	MIMEType string
	Filename string
}

type Exporter struct {
	locale   Locale
	location *time.Location
	now      func() time.Time
}

// NewExporter renders times in location using locale. A nil location means time.Local.
func NewExporter(locale Locale, location *time.Location, now func() time.Time) Exporter {
	if location == nil {
		location = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return Exporter{locale: locale, location: location, now: now}
}

// Export formats messages in arrival order. An empty conversation yields ErrEmptyExport.
func (e Exporter) Export(messages []chat.ChatMessage, format Format) (Blob, error) {
	if len(messages) == 0 {
		return Blob{}, errors.ErrEmptyExport
	}
	now := e.now()
	var content string
	switch format {
	case TXT:
		content = e.text(messages, now)
	case CSV:
		content = e.csv(messages, now)
	default:
		return Blob{}, fmt.Errorf("%w: %q", errors.ErrUnsupportedFormat, format)
	}
	return Blob{
		Data:     []byte(content),
		MIMEType: format.MIMEType(),
		Filename: Filename(now, format),
	}, nil
}

// Filename is stamped with the UTC date of the export, not of the messages.
func Filename(now time.Time, format Format) string {
	return fmt.Sprintf("chat_export_%s.%s", now.UTC().Format(time.DateOnly), format)
}

func (e Exporter) text(messages []chat.ChatMessage, now time.Time) string {
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		at := msg.Time(now).In(e.location)
		lines = append(lines, fmt.Sprintf("[%s] %s: %s", e.locale.Time(at), msg.UserName, msg.Message))
	}
	return strings.Join(lines, "\n")
}

// Every field is quoted; only quotes inside the message are doubled.
func (e Exporter) csv(messages []chat.ChatMessage, now time.Time) string {
	rows := make([]string, 0, len(messages))
	for _, msg := range messages {
		at := msg.Time(now).In(e.location)
		rows = append(rows, fmt.Sprintf(`"%s","%s","%s","%s"`,
			e.locale.Date(at),
			e.locale.Time(at),
			msg.UserName,
			strings.ReplaceAll(msg.Message, `"`, `""`),
		))
	}
	return csvHeader + "\n" + strings.Join(rows, "\n")
}
