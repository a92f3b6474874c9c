package fasterwhisper

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
)

const (
	EngineName = "faster-whisper"

	defaultPython = "python3"
	pythonEnv     = "DORSAL_WHISPER_PYTHON"

	probeSnippet = "import faster_whisper; print(getattr(faster_whisper, '__version__', 'unknown'))"
)

//go:embed assets/worker.py
var workerScript []byte

// Loader starts one resident worker process per loaded model. The worker
// keeps the model in memory between transcriptions; closing the returned
// model ends the process.
type Loader struct {
	python string
	logger *zap.Logger

	probeOnce sync.Once
	probeErr  error
	version   string
}

func NewLoader(python string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(python) == "" {
		python = strings.TrimSpace(os.Getenv(pythonEnv))
	}
	if python == "" {
		python = defaultPython
	}
	return &Loader{python: python, logger: logger}
}

func (l *Loader) Available() error {
	l.probeOnce.Do(l.probe)
	return l.probeErr
}

func (l *Loader) Version() string {
	l.probeOnce.Do(l.probe)
	return l.version
}

func (l *Loader) probe() {
	if _, err := exec.LookPath(l.python); err != nil {
		l.probeErr = fmt.Errorf("missing dependency: python interpreter %s not on PATH", l.python)
		return
	}

	out, err := exec.Command(l.python, "-c", probeSnippet).Output()
	if err != nil {
		detail := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		if detail != "" {
			l.probeErr = fmt.Errorf("missing dependency: faster-whisper (pip install faster-whisper): %s", detail)
		} else {
			l.probeErr = fmt.Errorf("missing dependency: faster-whisper (pip install faster-whisper)")
		}
		return
	}

	l.version = strings.TrimSpace(string(out))
	l.logger.Debug("faster-whisper available",
		zap.String("python", l.python), zap.String("version", l.version))
}

func (l *Loader) Load(ctx context.Context, spec whisper.LoadSpec) (whisper.Model, error) {
	script, err := materializeWorkerScript()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(l.python, script,
		"--model", spec.ModelSize,
		"--device", spec.Device,
		"--compute-type", spec.ComputeType)

	stderr := &tailBuffer{max: stderrTailSize}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("worker stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("worker stdout: %w", err)
	}

	l.logger.Debug("starting worker",
		zap.String("python", l.python),
		zap.String("model", spec.ModelSize),
		zap.String("device", spec.Device),
		zap.String("compute_type", spec.ComputeType))

	if err := cmd.Start(); err != nil {
		os.Remove(script)
		return nil, fmt.Errorf("start worker: %w", err)
	}

	model := newWorkerModel(cmd, stdin, stdout, stderr, script, l.logger)

	ev, err := model.nextEvent(ctx)
	if err != nil {
		// Close waits for the process, so the stderr tail is complete after it.
		model.Close()
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for worker: %w", ctx.Err())
		}
		if tail := model.stderrTail(); tail != "" && !strings.Contains(err.Error(), tail) {
			return nil, fmt.Errorf("%v (%s)", err, tail)
		}
		return nil, err
	}

	switch ev.Event {
	case "ready":
		l.logger.Info("worker ready",
			zap.String("model", spec.ModelSize),
			zap.String("engine_version", ev.EngineVersion))
		return model, nil
	case "fatal":
		model.Close()
		if ev.Kind == "unsupported_device" {
			return nil, fmt.Errorf("%w: %s", whisper.ErrUnsupportedDevice, ev.Error)
		}
		return nil, errors.New(ev.Error)
	default:
		model.Close()
		return nil, fmt.Errorf("unexpected worker event %q during startup", ev.Event)
	}
}

func materializeWorkerScript() (string, error) {
	f, err := os.CreateTemp("", "dorsal-whisper-worker-*.py")
	if err != nil {
		return "", fmt.Errorf("create worker script: %w", err)
	}
	if _, err := f.Write(workerScript); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write worker script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write worker script: %w", err)
	}
	return f.Name(), nil
}
