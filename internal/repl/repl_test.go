package repl

import (
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// commandWriter turns stdin writes into whole commands on a channel.
type commandWriter struct {
	cmds chan<- string
	quit <-chan struct{}
}

func (w *commandWriter) Write(b []byte) (int, error) {
	select {
	case w.cmds <- strings.TrimSuffix(string(b), "\n"):
		return len(b), nil
	case <-w.quit:
		return 0, io.ErrClosedPipe
	}
}

func (w *commandWriter) Close() error { return nil }

type fakeOptions struct {
	banner  []string
	respond func(cmd string) []string
	// omitPrompt suppresses the prompt after responses so collection
	// must fall back to the timeout.
	omitPrompt bool
}

// fakeLaunch builds a launchFunc that emulates an interactive sail
// process entirely in memory. Sending the command ":die" makes the fake
// exit like a crashed process would.
func fakeLaunch(opts fakeOptions, spawns *atomic.Int32) launchFunc {
	return func(sailPath, entryFile string) (*process, error) {
		if spawns != nil {
			spawns.Add(1)
		}
		cmds := make(chan string, 16)
		p := &process{
			out:  make(chan string, outputBacklog),
			quit: make(chan struct{}),
			done: make(chan struct{}),
		}
		p.stdin = &commandWriter{cmds: cmds, quit: p.quit}
		go func() {
			defer close(p.done)
			for _, line := range opts.banner {
				if !p.emit(line) {
					return
				}
			}
			if !p.emit(promptSuffix) {
				return
			}
			for {
				select {
				case <-p.quit:
					return
				case cmd := <-cmds:
					if cmd == ":die" {
						return
					}
					var lines []string
					if opts.respond != nil {
						lines = opts.respond(cmd)
					}
					for _, line := range lines {
						if !p.emit(line) {
							return
						}
					}
					if opts.omitPrompt {
						continue
					}
					if !p.emit(promptSuffix) {
						return
					}
				}
			}
		}()
		return p, nil
	}
}

func newFakeSession(t *testing.T, opts fakeOptions, spawns *atomic.Int32) *Session {
	t.Helper()
	s := NewSession(Options{CommandTimeout: 200 * time.Millisecond})
	s.launch = fakeLaunch(opts, spawns)
	t.Cleanup(s.Close)
	return s
}

func TestSpawnCollectsBanner(t *testing.T) {
	banner := []string{
		"Sail 0.17 interactive\n",
		StderrPrefix + "warning: deprecated flag",
	}
	s := newFakeSession(t, fakeOptions{banner: banner}, nil)

	lines, err := s.Spawn("/proj/main.sail")
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	if len(lines) != 2 || lines[0] != banner[0] || lines[1] != banner[1] {
		t.Errorf("got %q", lines)
	}
	if !s.Alive() {
		t.Error("session should be alive after spawn")
	}
}

func TestExecuteFramesUntilPrompt(t *testing.T) {
	s := newFakeSession(t, fakeOptions{
		respond: func(cmd string) []string {
			if cmd != ":t foo" {
				t.Errorf("unexpected command %q", cmd)
			}
			return []string{"foo : int\n"}
		},
	}, nil)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	lines := s.Execute(":t foo")
	if len(lines) != 1 || lines[0] != "foo : int\n" {
		t.Errorf("got %q", lines)
	}
}

func TestExecuteTimeoutReturnsPartial(t *testing.T) {
	s := newFakeSession(t, fakeOptions{
		respond:    func(string) []string { return []string{"partial line\n"} },
		omitPrompt: true,
	}, nil)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	start := time.Now()
	lines := s.Execute(":t foo")
	if time.Since(start) < 150*time.Millisecond {
		t.Error("returned before the command timeout")
	}
	if len(lines) != 1 || lines[0] != "partial line\n" {
		t.Errorf("got %q", lines)
	}
}

func TestExecuteWithoutProcess(t *testing.T) {
	s := newFakeSession(t, fakeOptions{}, nil)
	if lines := s.Execute(":t foo"); lines != nil {
		t.Errorf("got %q, want nil", lines)
	}
	if s.Alive() {
		t.Error("no process should be alive")
	}
}

func TestReanalyzeReloadsHealthyProcess(t *testing.T) {
	var spawns atomic.Int32
	var got []string
	var mu sync.Mutex
	s := newFakeSession(t, fakeOptions{
		respond: func(cmd string) []string {
			mu.Lock()
			got = append(got, cmd)
			mu.Unlock()
			return []string{"ok\n"}
		},
	}, &spawns)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	lines := s.Reanalyze(false, "/proj/main.sail")
	if len(lines) != 1 || lines[0] != "ok\n" {
		t.Errorf("got %q", lines)
	}
	mu.Lock()
	cmds := append([]string(nil), got...)
	mu.Unlock()
	if len(cmds) != 1 || cmds[0] != ":reload" {
		t.Errorf("commands: %q", cmds)
	}
	if n := spawns.Load(); n != 1 {
		t.Errorf("spawn count: %d", n)
	}
}

func TestReanalyzeForcedRestarts(t *testing.T) {
	var spawns atomic.Int32
	s := newFakeSession(t, fakeOptions{banner: []string{"loaded\n"}}, &spawns)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	lines := s.Reanalyze(true, "/proj/main.sail")
	if len(lines) != 1 || lines[0] != "loaded\n" {
		t.Errorf("got %q", lines)
	}
	if n := spawns.Load(); n != 2 {
		t.Errorf("spawn count: %d, want 2", n)
	}
}

func TestReanalyzeRestartsDeadProcess(t *testing.T) {
	var spawns atomic.Int32
	s := newFakeSession(t, fakeOptions{banner: []string{"loaded\n"}}, &spawns)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	s.Execute(":die")
	if s.Alive() {
		t.Fatal("process should be dead")
	}

	lines := s.Reanalyze(false, "/proj/main.sail")
	if len(lines) != 1 || lines[0] != "loaded\n" {
		t.Errorf("got %q", lines)
	}
	if n := spawns.Load(); n != 2 {
		t.Errorf("spawn count: %d, want 2", n)
	}
}

func TestCommandsAreSerialized(t *testing.T) {
	var inFlight atomic.Int32
	s := newFakeSession(t, fakeOptions{
		respond: func(cmd string) []string {
			if inFlight.Add(1) > 1 {
				t.Error("second command arrived before the previous prompt")
			}
			time.Sleep(2 * time.Millisecond)
			inFlight.Add(-1)
			return []string{"answer\n"}
		},
	}, nil)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			lines := s.Execute(":t foo")
			if len(lines) != 1 {
				t.Errorf("got %q", lines)
			}
		}()
	}
	wg.Wait()
}

func TestCloseKillsProcess(t *testing.T) {
	s := newFakeSession(t, fakeOptions{}, nil)
	if _, err := s.Spawn("/proj/main.sail"); err != nil {
		t.Fatalf("spawn: %v", err)
	}
	s.Close()
	if s.Alive() {
		t.Error("still alive after Close")
	}
	if lines := s.Execute(":t foo"); lines != nil {
		t.Errorf("got %q after Close", lines)
	}
}

func TestSpawnReplacesPreviousProcess(t *testing.T) {
	var spawns atomic.Int32
	s := newFakeSession(t, fakeOptions{banner: []string{"one\n"}}, &spawns)
	if _, err := s.Spawn("/proj/a.sail"); err != nil {
		t.Fatalf("first spawn: %v", err)
	}
	first := s.proc
	if _, err := s.Spawn("/proj/b.sail"); err != nil {
		t.Fatalf("second spawn: %v", err)
	}
	if !first.exited() {
		t.Error("first process was not reaped")
	}
	if !s.Alive() {
		t.Error("replacement process should be alive")
	}
	if n := spawns.Load(); n != 2 {
		t.Errorf("spawn count: %d", n)
	}
}
