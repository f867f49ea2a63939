package chat

import (
	"strings"
	"testing"
)

func TestRoleLabel(t *testing.T) {
	t.Parallel()

	cases := []struct {
		role  Role
		valid bool
		label string
	}{
		{RoleCoordinator, true, "Coordinador"},
		{RoleProfessor, true, "Profesor"},
		{Role("alumno"), false, "Usuario"},
	}
	for _, tc := range cases {
		if got := tc.role.Valid(); got != tc.valid {
			t.Errorf("Role(%q).Valid() = %v, want %v", tc.role, got, tc.valid)
		}
		if got := tc.role.Label(); got != tc.label {
			t.Errorf("Role(%q).Label() = %q, want %q", tc.role, got, tc.label)
		}
	}
}

func TestIdentifiers(t *testing.T) {
	t.Parallel()

	sid := NewSessionID()
	if !strings.HasPrefix(sid, "session_") {
		t.Errorf("session id = %q", sid)
	}
	if sid == NewSessionID() {
		t.Error("session ids collide")
	}
	if mid := NewMessageID(); !strings.HasPrefix(mid, "msg_") {
		t.Errorf("message id = %q", mid)
	}
	if got := TopicDestination("session_x"); got != "/topic/chat/session_x" {
		t.Errorf("TopicDestination = %q", got)
	}
}

func TestContextWindowFiltering(t *testing.T) {
	t.Parallel()

	sent := func(body string) *Message { return newMessage(SenderUser, body, StatusSent) }
	completed := func(body string) *Message {
		m := newMessage(SenderBot, body, StatusCompleted)
		m.Complete = true
		return m
	}

	prior := []*Message{
		sent("primera"),
		completed("respuesta"),
		newMessage(SenderBot, "a medias", StatusStreaming),
		newMessage(SenderUser, "fallida", StatusError),
		newMessage(SenderBot, "procesando", StatusProcessing),
		sent("segunda"),
	}

	got := contextWindow(prior, 10, RoleProfessor)
	want := []string{
		"Profesor: primera",
		"Asistente: respuesta",
		"Profesor: segunda",
	}
	if len(got) != len(want) {
		t.Fatalf("context = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("context[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestContextWindowKeepsNewest(t *testing.T) {
	t.Parallel()

	var prior []*Message
	for i := 0; i < 5; i++ {
		prior = append(prior, newMessage(SenderUser, strings.Repeat("x", i+1), StatusSent))
	}

	got := contextWindow(prior, 2, RoleCoordinator)
	want := []string{"Coordinador: xxxx", "Coordinador: xxxxx"}
	if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("context = %v, want %v", got, want)
	}

	if got := contextWindow(prior, 0, RoleCoordinator); got != nil {
		t.Fatalf("zero limit context = %v, want nil", got)
	}
}
