package relay

import (
	"context"
	"strings"
	"testing"

	"github.com/gestproy/console/internal/chat"
)

func collectFragments(t *testing.T, ctx context.Context, r *ScriptedResponder, env chat.Envelope) []chat.Fragment {
	t.Helper()
	var out []chat.Fragment
	r.Respond(ctx, env, func(frag chat.Fragment) {
		out = append(out, frag)
	})
	return out
}

func TestScriptedResponderFragmentOrder(t *testing.T) {
	t.Parallel()

	r := &ScriptedResponder{}
	env := chat.Envelope{
		Message:          "¿estado del equipo?",
		SessionID:        "session_x",
		UserRole:         "profesor",
		PreviousMessages: []string{"Profesor: hola", "Asistente: hola"},
	}
	frags := collectFragments(t, context.Background(), r, env)

	if len(frags) < 3 {
		t.Fatalf("got %d fragments, want at least status + chunk + final", len(frags))
	}

	first := frags[0]
	if first.MessageType != chat.MessageTypeStatus || first.Complete {
		t.Errorf("first fragment = %+v, want incomplete status", first)
	}

	final := frags[len(frags)-1]
	if !final.Complete || final.MessageType != chat.MessageTypeAssistant {
		t.Errorf("final fragment = %+v", final)
	}
	if final.Timestamp == 0 {
		t.Error("final fragment has no timestamp")
	}
	if !strings.Contains(final.Message, "¿estado del equipo?") {
		t.Errorf("final answer %q does not echo the question", final.Message)
	}
	if !strings.Contains(final.Message, "2 mensajes de contexto") {
		t.Errorf("final answer %q does not report the context size", final.Message)
	}

	// Streamed chunks must reassemble into the final answer.
	var chunks []string
	for _, f := range frags[1 : len(frags)-1] {
		if f.Complete || f.MessageType != chat.MessageTypeAssistant {
			t.Errorf("intermediate fragment = %+v", f)
		}
		chunks = append(chunks, f.Message)
	}
	if got := strings.Join(chunks, " "); got != final.Message {
		t.Errorf("joined chunks = %q, want %q", got, final.Message)
	}
}

func TestScriptedResponderChunkSize(t *testing.T) {
	t.Parallel()

	r := &ScriptedResponder{ChunkWords: 3}
	frags := collectFragments(t, context.Background(), r, chat.Envelope{
		Message:   "hola",
		SessionID: "session_x",
		UserRole:  "coordinador",
	})

	for _, f := range frags[1 : len(frags)-1] {
		if n := len(strings.Fields(f.Message)); n > 3 {
			t.Errorf("chunk %q has %d words, want <= 3", f.Message, n)
		}
	}
}

func TestScriptedResponderStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := &ScriptedResponder{}
	frags := collectFragments(t, ctx, r, chat.Envelope{Message: "hola", SessionID: "session_x"})

	if len(frags) != 1 {
		t.Fatalf("got %d fragments on cancelled context, want only the status ping", len(frags))
	}
	if frags[0].MessageType != chat.MessageTypeStatus {
		t.Errorf("fragment = %+v", frags[0])
	}
}
