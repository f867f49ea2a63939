// Package export writes chat transcripts to interchange formats.
package export

import (
	"encoding/csv"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"time"

	"github.com/gestproy/console/internal/chat"
	"github.com/gestproy/console/internal/markdown"
)

// WriteCSV writes the message log as CSV with a header row.
func WriteCSV(w io.Writer, msgs []chat.Message) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"id", "sender", "status", "complete", "timestamp", "message"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, m := range msgs {
		record := []string{
			m.ID,
			string(m.Sender),
			string(m.Status),
			strconv.FormatBool(m.Complete),
			m.Timestamp.Format(time.RFC3339),
			m.Body,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

var htmlTmpl = template.Must(template.New("transcript").Parse(`<!DOCTYPE html>
<html lang="es">
<head>
<meta charset="utf-8">
<title>Conversación {{.SessionID}}</title>
</head>
<body>
<h1>Conversación {{.SessionID}}</h1>
{{range .Messages}}<div class="message {{.Sender}}">
<p class="meta">{{.Sender}} · {{.Status}} · {{.Time}}</p>
{{.HTML}}
</div>
{{end}}</body>
</html>
`))

type htmlMessage struct {
	Sender string
	Status string
	Time   string
	HTML   template.HTML
}

type htmlTranscript struct {
	SessionID string
	Messages  []htmlMessage
}

// WriteHTML writes the message log as a standalone HTML page, with message
// bodies rendered through the markdown collaborator.
func WriteHTML(w io.Writer, sessionID string, msgs []chat.Message) error {
	doc := htmlTranscript{SessionID: sessionID}
	for _, m := range msgs {
		body, err := markdown.Render(m.Body)
		if err != nil {
			return fmt.Errorf("render message %s: %w", m.ID, err)
		}
		doc.Messages = append(doc.Messages, htmlMessage{
			Sender: string(m.Sender),
			Status: string(m.Status),
			Time:   m.Timestamp.Format("15:04"),
			HTML:   template.HTML(body), //nolint:gosec // goldmark output over our own text
		})
	}
	if err := htmlTmpl.Execute(w, doc); err != nil {
		return fmt.Errorf("execute transcript template: %w", err)
	}
	return nil
}
