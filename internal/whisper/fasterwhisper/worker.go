package fasterwhisper

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
)

const (
	stderrTailSize = 4096
	closeTimeout   = 5 * time.Second
)

type workerJob struct {
	Audio          string         `json:"audio"`
	BeamSize       int            `json:"beam_size"`
	VADFilter      bool           `json:"vad_filter"`
	BatchSize      int            `json:"batch_size,omitempty"`
	Task           string         `json:"task,omitempty"`
	Language       string         `json:"language,omitempty"`
	WordTimestamps bool           `json:"word_timestamps,omitempty"`
	InitialPrompt  string         `json:"initial_prompt,omitempty"`
	Extra          map[string]any `json:"extra,omitempty"`
}

type workerEvent struct {
	Event               string         `json:"event"`
	EngineVersion       string         `json:"engine_version"`
	Kind                string         `json:"kind"`
	Error               string         `json:"error"`
	Language            string         `json:"language"`
	LanguageProbability float64        `json:"language_probability"`
	Duration            float64        `json:"duration"`
	Text                string         `json:"text"`
	Start               float64        `json:"start"`
	End                 float64        `json:"end"`
	AvgLogprob          float64        `json:"avg_logprob"`
	Words               []whisper.Word `json:"words"`
}

type wire struct {
	event workerEvent
	err   error
}

// workerModel owns one resident worker process. Closing it ends the process
// and releases whatever memory the loaded model held.
type workerModel struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr *tailBuffer
	script string
	logger *zap.Logger
	events chan wire
	quit   chan struct{}

	mu      sync.Mutex
	busy    bool
	closed  bool
	pending bool // an abandoned job's replies have not been read yet
}

func newWorkerModel(cmd *exec.Cmd, stdin io.WriteCloser, stdout io.Reader, stderr *tailBuffer, script string, logger *zap.Logger) *workerModel {
	m := &workerModel{
		cmd:    cmd,
		stdin:  stdin,
		stderr: stderr,
		script: script,
		logger: logger,
		events: make(chan wire),
		quit:   make(chan struct{}),
	}
	go m.readLoop(bufio.NewReader(stdout))
	return m
}

func (m *workerModel) readLoop(r *bufio.Reader) {
	defer close(m.events)
	for {
		line, err := r.ReadBytes('\n')
		if trimmed := bytes.TrimSpace(line); len(trimmed) > 0 {
			var ev workerEvent
			if jsonErr := json.Unmarshal(trimmed, &ev); jsonErr != nil {
				m.send(wire{err: fmt.Errorf("malformed worker event: %w", jsonErr)})
				return
			}
			if !m.send(wire{event: ev}) {
				return
			}
		}
		if err != nil {
			m.send(wire{err: m.exitError(err)})
			return
		}
	}
}

func (m *workerModel) send(w wire) bool {
	select {
	case m.events <- w:
		return true
	case <-m.quit:
		return false
	}
}

func (m *workerModel) exitError(cause error) error {
	if tail := m.stderrTail(); tail != "" {
		return fmt.Errorf("worker exited: %v (%s)", cause, tail)
	}
	return fmt.Errorf("worker exited: %v", cause)
}

func (m *workerModel) stderrTail() string {
	return strings.TrimSpace(m.stderr.String())
}

func (m *workerModel) nextEvent(ctx context.Context) (workerEvent, error) {
	select {
	case w, ok := <-m.events:
		if !ok {
			return workerEvent{}, errors.New("worker stream closed")
		}
		if w.err != nil {
			return workerEvent{}, w.err
		}
		return w.event, nil
	case <-ctx.Done():
		return workerEvent{}, ctx.Err()
	}
}

func (m *workerModel) Transcribe(ctx context.Context, path string, args whisper.DecodeArgs) (whisper.SegmentSource, whisper.Info, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, whisper.Info{}, errors.New("model is closed")
	}
	if m.busy {
		m.mu.Unlock()
		return nil, whisper.Info{}, errors.New("previous transcription is still streaming")
	}
	m.busy = true
	pending := m.pending
	m.mu.Unlock()

	if pending {
		if err := m.drainAbandoned(ctx); err != nil {
			m.setIdle()
			return nil, whisper.Info{}, err
		}
	}

	job := workerJob{
		Audio:          path,
		BeamSize:       args.BeamSize,
		VADFilter:      args.VADFilter,
		BatchSize:      args.BatchSize,
		Task:           args.Options.Task,
		Language:       args.Options.Language,
		WordTimestamps: args.Options.WordTimestamps,
		InitialPrompt:  args.Options.InitialPrompt,
		Extra:          args.Options.Extra,
	}
	payload, err := json.Marshal(job)
	if err != nil {
		m.setIdle()
		return nil, whisper.Info{}, fmt.Errorf("encode job: %w", err)
	}
	if _, err := m.stdin.Write(append(payload, '\n')); err != nil {
		m.setIdle()
		return nil, whisper.Info{}, fmt.Errorf("send job: %w", err)
	}

	ev, err := m.nextEvent(ctx)
	if err != nil {
		if ctx.Err() != nil {
			m.abandonJob()
		} else {
			m.setIdle()
		}
		return nil, whisper.Info{}, err
	}

	switch ev.Event {
	case "info":
		info := whisper.Info{
			Language:            ev.Language,
			LanguageProbability: ev.LanguageProbability,
			Duration:            ev.Duration,
		}
		return &segmentSource{model: m}, info, nil
	case "error":
		m.setIdle()
		return nil, whisper.Info{}, errors.New(ev.Error)
	default:
		m.setIdle()
		return nil, whisper.Info{}, fmt.Errorf("unexpected worker event %q", ev.Event)
	}
}

func (m *workerModel) setIdle() {
	m.mu.Lock()
	m.busy = false
	m.mu.Unlock()
}

func (m *workerModel) abandonJob() {
	m.mu.Lock()
	m.pending = true
	m.busy = false
	m.mu.Unlock()
}

// drainAbandoned reads through the terminal event of a job whose caller gave
// up waiting, so the next reply on the stream belongs to the next submission.
func (m *workerModel) drainAbandoned(ctx context.Context) error {
	for {
		ev, err := m.nextEvent(ctx)
		if err != nil {
			return err
		}
		if ev.Event == "done" || ev.Event == "error" {
			m.mu.Lock()
			m.pending = false
			m.mu.Unlock()
			return nil
		}
	}
}

func (m *workerModel) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.script != "" {
		defer os.Remove(m.script)
	}
	close(m.quit)
	_ = m.stdin.Close()

	waited := make(chan error, 1)
	go func() { waited <- m.cmd.Wait() }()

	select {
	case err := <-waited:
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return fmt.Errorf("wait for worker: %w", err)
		}
		return nil
	case <-time.After(closeTimeout):
		m.logger.Warn("worker did not exit after stdin close, killing",
			zap.Int("pid", m.cmd.Process.Pid))
		if err := m.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("kill worker: %w", err)
		}
		<-waited
		return nil
	}
}

// segmentSource consumes one job's segment events. Close drains remaining
// events so the worker stays usable for the next job.
type segmentSource struct {
	model *workerModel

	mu   sync.Mutex
	done bool
}

func (s *segmentSource) Next() (whisper.RawSegment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done {
		return whisper.RawSegment{}, io.EOF
	}

	ev, err := s.model.nextEvent(context.Background())
	if err != nil {
		s.finishLocked()
		return whisper.RawSegment{}, err
	}

	switch ev.Event {
	case "segment":
		return whisper.RawSegment{
			Text:       ev.Text,
			Start:      ev.Start,
			End:        ev.End,
			AvgLogprob: ev.AvgLogprob,
			Words:      ev.Words,
		}, nil
	case "done":
		s.finishLocked()
		return whisper.RawSegment{}, io.EOF
	case "error":
		s.finishLocked()
		return whisper.RawSegment{}, errors.New(ev.Error)
	default:
		s.finishLocked()
		return whisper.RawSegment{}, fmt.Errorf("unexpected worker event %q", ev.Event)
	}
}

func (s *segmentSource) finishLocked() {
	s.done = true
	s.model.setIdle()
}

func (s *segmentSource) Close() error {
	for {
		_, err := s.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if b.max > 0 && len(b.buf) > b.max {
		b.buf = b.buf[len(b.buf)-b.max:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
