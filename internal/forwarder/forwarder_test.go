package forwarder

import (
	"context"
	"testing"

	"github.com/vibetunnel/vibetunnel-go/internal/titlefilter"
)

func TestRunRejectsEmptyCommand(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Options{ControlDir: dir, TitleMode: titlefilter.ModeNone})
	if err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRunRejectsInvalidSessionID(t *testing.T) {
	dir := t.TempDir()
	_, err := Run(context.Background(), Options{
		ControlDir: dir,
		SessionID:  "not a valid id!",
		Command:    []string{"/bin/true"},
		TitleMode:  titlefilter.ModeNone,
	})
	if err == nil {
		t.Fatal("expected error for invalid session id")
	}
}

func TestJoinCommand(t *testing.T) {
	if got := joinCommand([]string{"echo", "a", "b"}); got != "echo a b" {
		t.Fatalf("got %q", got)
	}
	if got := joinCommand(nil); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestRunRefusesNestedInvocation(t *testing.T) {
	t.Setenv("VIBETUNNEL_SESSION_ID", "outer-session")
	dir := t.TempDir()
	_, err := Run(context.Background(), Options{
		ControlDir:   dir,
		Command:      []string{"/bin/true"},
		TitleMode:    titlefilter.ModeNone,
		RefuseNested: true,
	})
	if err == nil {
		t.Fatal("expected refusal for nested invocation")
	}
}
