package permission

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// countingPrompter records how often it was asked.
type countingPrompter struct {
	answer bool
	err    error
	calls  int
}

func (p *countingPrompter) Prompt(ctx context.Context) (bool, error) {
	p.calls++
	return p.answer, p.err
}

func TestHasNeverPrompts(t *testing.T) {
	p := &countingPrompter{answer: true}
	m := NewManager(NewMemoryStore(Undetermined), p, nil)

	if m.Has() {
		t.Error("Has() = true for undetermined status")
	}
	if p.calls != 0 {
		t.Errorf("Has() prompted %d times, want 0", p.calls)
	}
}

func TestRequestPromptsAndRecords(t *testing.T) {
	tests := []struct {
		name   string
		answer bool
		want   Status
	}{
		{"granted", true, Granted},
		{"denied", false, Denied},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &countingPrompter{answer: tt.answer}
			store := NewMemoryStore(Undetermined)
			m := NewManager(store, p, nil)

			ok, err := m.Request(context.Background())
			if err != nil {
				t.Fatalf("Request() error = %v", err)
			}
			if ok != tt.answer {
				t.Errorf("Request() = %v, want %v", ok, tt.answer)
			}
			if got, _ := store.Load(); got != tt.want {
				t.Errorf("stored status = %q, want %q", got, tt.want)
			}
			if p.calls != 1 {
				t.Errorf("prompted %d times, want 1", p.calls)
			}
		})
	}
}

func TestRequestSkipsPromptWhenGranted(t *testing.T) {
	p := &countingPrompter{answer: false}
	m := NewManager(NewMemoryStore(Granted), p, nil)

	ok, err := m.Request(context.Background())
	if err != nil {
		t.Fatalf("Request() error = %v", err)
	}
	if !ok {
		t.Error("Request() = false with granted status")
	}
	if p.calls != 0 {
		t.Errorf("prompted %d times, want 0", p.calls)
	}
}

func TestRequestPromptsAgainAfterDenial(t *testing.T) {
	p := &countingPrompter{answer: true}
	m := NewManager(NewMemoryStore(Denied), p, nil)

	ok, _ := m.Request(context.Background())
	if !ok || p.calls != 1 {
		t.Errorf("Request() = %v after %d prompts, want true after 1", ok, p.calls)
	}
}

func TestRequestPromptError(t *testing.T) {
	p := &countingPrompter{err: errors.New("tty gone")}
	store := NewMemoryStore(Undetermined)
	m := NewManager(store, p, nil)

	if _, err := m.Request(context.Background()); err == nil {
		t.Fatal("Request() expected error")
	}
	if got, _ := store.Load(); got != Undetermined {
		t.Errorf("status after failed prompt = %q, want undetermined", got)
	}
}

func TestNilPrompterDenies(t *testing.T) {
	m := NewManager(NewMemoryStore(Undetermined), nil, nil)
	if ok, _ := m.Request(context.Background()); ok {
		t.Error("Request() with nil prompter = true, want false")
	}
}

func TestListenNotifiesOnChange(t *testing.T) {
	m := NewManager(NewMemoryStore(Granted), nil, nil)

	var got []Status
	unsubscribe := m.Listen(func(s Status) { got = append(got, s) })

	if err := m.Grant(); err != nil { // unchanged, no notification
		t.Fatalf("Grant() error = %v", err)
	}
	if err := m.Revoke(); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	unsubscribe()
	unsubscribe()
	if err := m.Grant(); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	if len(got) != 1 || got[0] != Denied {
		t.Errorf("listener saw %v, want [denied]", got)
	}
}

func TestWatchSeesRevokeFromAnotherManager(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	cli := NewManager(NewFileStore(path), nil, nil)
	if err := cli.Grant(); err != nil {
		t.Fatalf("Grant() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	server := NewManager(NewFileStore(path), nil, nil)
	changes := make(chan Status, 4)
	server.Listen(func(s Status) { changes <- s })
	if err := server.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := cli.Revoke(); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	select {
	case s := <-changes:
		if s != Denied {
			t.Errorf("listener saw %s, want denied", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watching manager was not notified of the revoke")
	}
	if server.Has() {
		t.Error("Has() = true after external revoke")
	}
}

func TestWatchDoesNotRepeatLocalChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permissions.yaml")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewManager(NewFileStore(path), nil, nil)
	changes := make(chan Status, 8)
	m.Listen(func(s Status) { changes <- s })
	if err := m.Watch(ctx); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	if err := m.Revoke(); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	if s := <-changes; s != Denied {
		t.Fatalf("listener saw %s, want denied", s)
	}
	select {
	case s := <-changes:
		t.Errorf("unexpected second notification %s", s)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatchIgnoresMemoryStore(t *testing.T) {
	m := NewManager(NewMemoryStore(Granted), nil, nil)
	if err := m.Watch(context.Background()); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestListenerMayCallManager(t *testing.T) {
	m := NewManager(NewMemoryStore(Granted), nil, nil)
	var has bool
	m.Listen(func(Status) { has = m.Has() })

	if err := m.Revoke(); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}
	if has {
		t.Error("listener observed Has() = true after revocation")
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "permission.yaml")
	s := NewFileStore(path)

	got, err := s.Load()
	if err != nil {
		t.Fatalf("Load() missing file error = %v", err)
	}
	if got != Undetermined {
		t.Errorf("Load() missing file = %q, want undetermined", got)
	}

	if err := s.Save(Granted); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	got, err = NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != Granted {
		t.Errorf("Load() = %q, want granted", got)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("file mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestFileStoreUnknownValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permission.yaml")
	if err := os.WriteFile(path, []byte("microphone: maybe\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	got, err := NewFileStore(path).Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got != Undetermined {
		t.Errorf("Load() = %q, want undetermined", got)
	}
}

func TestFileStoreInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "permission.yaml")
	if err := os.WriteFile(path, []byte("microphone: [\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileStore(path).Load(); err == nil {
		t.Error("Load() expected error for invalid YAML")
	}

	m := NewManager(NewFileStore(path), nil, nil)
	if m.Has() {
		t.Error("Has() = true for unreadable store")
	}
}

func TestTerminalPrompter(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"y", true},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.input), func(t *testing.T) {
			var out bytes.Buffer
			p := &TerminalPrompter{In: strings.NewReader(tt.input), Out: &out}
			got, err := p.Prompt(context.Background())
			if err != nil {
				t.Fatalf("Prompt() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Prompt(%q) = %v, want %v", tt.input, got, tt.want)
			}
			if !strings.Contains(out.String(), "Allow?") {
				t.Errorf("prompt text = %q", out.String())
			}
		})
	}
}

func TestTerminalPrompterCancel(t *testing.T) {
	r, w := io.Pipe()
	defer func() { _ = w.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	p := &TerminalPrompter{In: r, Out: io.Discard}
	if _, err := p.Prompt(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Prompt() error = %v, want deadline exceeded", err)
	}
}

func TestNewPrompter(t *testing.T) {
	ctx := context.Background()

	p, err := NewPrompter("grant", nil, nil)
	if err != nil {
		t.Fatalf("NewPrompter(grant) error = %v", err)
	}
	if ok, _ := p.Prompt(ctx); !ok {
		t.Error("grant prompter refused")
	}

	p, _ = NewPrompter("deny", nil, nil)
	if ok, _ := p.Prompt(ctx); ok {
		t.Error("deny prompter granted")
	}

	if p, _ := NewPrompter("terminal", nil, nil); p == nil {
		t.Error("terminal prompter is nil")
	}
	if _, err := NewPrompter("bogus", nil, nil); err == nil {
		t.Error("NewPrompter(bogus) expected error")
	}
}
