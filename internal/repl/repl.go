package repl

import (
	"bufio"
	"bytes"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"
)

const (
	// promptSuffix is the exact byte sequence sail emits when it is ready
	// for the next command. The stdout framer matches it as a buffer
	// suffix because the prompt carries no trailing newline.
	promptSuffix = "Sail REPL> "
	// promptText terminates output collection for one command.
	promptText = "Sail REPL>"

	// StderrPrefix tags lines that originated on the process's stderr so
	// the diagnostic parser can tell the two streams apart inside the
	// interleaved output channel.
	StderrPrefix = "STDERR:"

	// DefaultSpawnTimeout bounds the wait for the startup prompt.
	DefaultSpawnTimeout = 30 * time.Second
	// DefaultCommandTimeout bounds the wait for a command's prompt.
	DefaultCommandTimeout = 5 * time.Second

	outputBacklog = 4096
)

// process is one live sail instance with its framed output channel.
type process struct {
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan string
	// quit unblocks the framing readers when the process is replaced
	// while buffered output is still unread.
	quit chan struct{}
	// done is closed once both readers finished and the process was
	// reaped. Alive checks select on it.
	done     chan struct{}
	quitOnce sync.Once
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

type launchFunc func(sailPath, entryFile string) (*process, error)

// Options configures a Session.
type Options struct {
	// SailPath is the sail executable to run. Defaults to "sail".
	SailPath string
	// SpawnTimeout bounds Spawn's wait for the startup prompt.
	SpawnTimeout time.Duration
	// CommandTimeout bounds Execute's wait for the command prompt.
	CommandTimeout time.Duration
}

// Session owns at most one interactive sail process. A single mutex
// serializes Spawn, Execute and Reanalyze for their whole round trip, so at
// most one command is ever in flight and the next prompt occurrence
// unambiguously terminates that command's output.
//
// Every failure mode is soft: a missing process, a failed write or a timeout
// all surface as empty (or partial) output, never as an error the caller
// must handle. A dead process is only replaced by an explicit Spawn.
type Session struct {
	mu sync.Mutex

	sailPath       string
	spawnTimeout   time.Duration
	commandTimeout time.Duration
	launch         launchFunc

	proc *process
}

// NewSession constructs a Session without starting a process.
func NewSession(opts Options) *Session {
	sailPath := opts.SailPath
	if sailPath == "" {
		sailPath = "sail"
	}
	spawnTimeout := opts.SpawnTimeout
	if spawnTimeout <= 0 {
		spawnTimeout = DefaultSpawnTimeout
	}
	commandTimeout := opts.CommandTimeout
	if commandTimeout <= 0 {
		commandTimeout = DefaultCommandTimeout
	}
	return &Session{
		sailPath:       sailPath,
		spawnTimeout:   spawnTimeout,
		commandTimeout: commandTimeout,
		launch:         launchSail,
	}
}

// Spawn kills any previous process, launches `sail -i --no-color entryFile`
// and blocks until the startup prompt is observed or the spawn timeout
// elapses. It returns whatever lines arrived before the prompt: the startup
// banner plus any early diagnostics carried on stderr.
func (s *Session) Spawn(entryFile string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spawnLocked(entryFile)
}

// Execute writes one command line to the process and collects framed output
// until the prompt or the command timeout. The prompt line itself is
// excluded. Without a usable stdin the result is nil immediately.
func (s *Session) Execute(command string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executeLocked(command)
}

// Reanalyze runs one re-analysis as a single critical section: an
// incremental ":reload" when the process is healthy and no restart was
// forced, a fresh Spawn of entryFile otherwise.
func (s *Session) Reanalyze(force bool, entryFile string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !force && s.aliveLocked() {
		return s.executeLocked(":reload")
	}
	lines, err := s.spawnLocked(entryFile)
	if err != nil {
		return nil
	}
	return lines
}

// Alive reports whether a process exists and has not exited yet.
func (s *Session) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.aliveLocked()
}

// Close kills and reaps the current process, if any.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.killLocked()
}

func (s *Session) aliveLocked() bool {
	return s.proc != nil && !s.proc.exited()
}

func (s *Session) spawnLocked(entryFile string) ([]string, error) {
	s.killLocked()
	p, err := s.launch(s.sailPath, entryFile)
	if err != nil {
		return nil, err
	}
	s.proc = p
	return s.collectLocked(s.spawnTimeout), nil
}

func (s *Session) executeLocked(command string) []string {
	if s.proc == nil || s.proc.stdin == nil {
		return nil
	}
	if _, err := io.WriteString(s.proc.stdin, command+"\n"); err != nil {
		return nil
	}
	return s.collectLocked(s.commandTimeout)
}

// collectLocked accumulates framed lines until the prompt shows up, the
// timeout expires or the process is known dead with nothing buffered.
// Partial output is returned as-is.
func (s *Session) collectLocked(timeout time.Duration) []string {
	p := s.proc
	if p == nil {
		return nil
	}
	var lines []string
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case line := <-p.out:
			if strings.Contains(line, promptText) {
				return lines
			}
			lines = append(lines, line)
		case <-p.done:
			// Drain what the readers buffered before they exited.
			for {
				select {
				case line := <-p.out:
					if strings.Contains(line, promptText) {
						return lines
					}
					lines = append(lines, line)
				default:
					return lines
				}
			}
		case <-timer.C:
			return lines
		}
	}
}

func (s *Session) killLocked() {
	p := s.proc
	if p == nil {
		return
	}
	s.proc = nil
	p.quitOnce.Do(func() { close(p.quit) })
	if p.cmd != nil && p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	<-p.done
}

// launchSail starts the real interactive process and its two framing
// readers.
func launchSail(sailPath, entryFile string) (*process, error) {
	cmd := exec.Command(sailPath, "-i", "--no-color", entryFile)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &process{
		cmd:   cmd,
		stdin: stdin,
		out:   make(chan string, outputBacklog),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	var readers sync.WaitGroup
	readers.Add(2)
	go func() {
		defer readers.Done()
		frameStdout(stdout, p)
	}()
	go func() {
		defer readers.Done()
		frameStderr(stderr, p)
	}()
	go func() {
		readers.Wait()
		_ = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

// frameStdout accumulates raw bytes and emits one chunk per newline or per
// prompt occurrence. The prompt check is a suffix match because sail prints
// it without a trailing newline.
func frameStdout(r io.Reader, p *process) {
	reader := bufio.NewReader(r)
	var buf []byte
	for {
		b, err := reader.ReadByte()
		if err != nil {
			return
		}
		buf = append(buf, b)
		if b == '\n' || bytes.HasSuffix(buf, []byte(promptSuffix)) {
			if !p.emit(string(buf)) {
				return
			}
			buf = buf[:0]
		}
	}
}

// frameStderr emits one tagged line per line of error output.
func frameStderr(r io.Reader, p *process) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if !p.emit(StderrPrefix + scanner.Text()) {
			return
		}
	}
}

// emit delivers one framed line, giving up when the process was replaced
// while the channel backlog is full.
func (p *process) emit(line string) bool {
	select {
	case p.out <- line:
		return true
	case <-p.quit:
		return false
	}
}
