package relay

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gestproy/console/internal/chat"
)

// Responder produces the assistant's fragments for one inbound envelope.
// Implementations emit zero or more incomplete fragments followed by
// exactly one complete fragment carrying the full answer text.
type Responder interface {
	Respond(ctx context.Context, env chat.Envelope, emit func(chat.Fragment))
}

// ScriptedResponder is the development stand-in for the platform's
// assistant backend. It emits a status ping, streams the answer in chunks,
// and finishes with an authoritative complete fragment, exercising every
// path of the client's assembly rules.
type ScriptedResponder struct {
	// ChunkDelay spaces the streamed fragments out; 0 emits them back to back.
	ChunkDelay time.Duration
	// ChunkWords is how many words go into each streamed fragment.
	ChunkWords int
}

var _ Responder = (*ScriptedResponder)(nil)

// Respond implements Responder.
func (r *ScriptedResponder) Respond(ctx context.Context, env chat.Envelope, emit func(chat.Fragment)) {
	emit(chat.Fragment{
		Message:     "Analizando la consulta...",
		Status:      string(chat.StatusProcessing),
		MessageType: chat.MessageTypeStatus,
	})

	answer := r.answer(env)
	for _, chunk := range r.chunks(answer) {
		if !r.pause(ctx) {
			return
		}
		emit(chat.Fragment{
			Message:     chunk,
			Status:      string(chat.StatusStreaming),
			MessageType: chat.MessageTypeAssistant,
		})
	}

	if !r.pause(ctx) {
		return
	}
	emit(chat.Fragment{
		Message:     answer,
		Status:      string(chat.StatusCompleted),
		MessageType: chat.MessageTypeAssistant,
		Complete:    true,
		Timestamp:   time.Now().UnixMilli(),
	})
}

func (r *ScriptedResponder) answer(env chat.Envelope) string {
	role := chat.Role(env.UserRole).Label()
	return fmt.Sprintf(
		"Hola %s. Soy el asistente de desarrollo y no puedo resolver consultas reales. Recibí tu mensaje %q con %d mensajes de contexto.",
		role, env.Message, len(env.PreviousMessages))
}

func (r *ScriptedResponder) chunks(answer string) []string {
	perChunk := r.ChunkWords
	if perChunk <= 0 {
		perChunk = 6
	}
	words := strings.Fields(answer)
	var out []string
	for len(words) > 0 {
		n := perChunk
		if n > len(words) {
			n = len(words)
		}
		out = append(out, strings.Join(words[:n], " "))
		words = words[n:]
	}
	return out
}

func (r *ScriptedResponder) pause(ctx context.Context) bool {
	if r.ChunkDelay <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(r.ChunkDelay):
		return true
	}
}
