package cli

import (
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
	"github.com/schollz/progressbar/v3"
)

type stopFunc func()

func startSpinner(enabled bool, description string, out io.Writer) stopFunc {
	if !enabled {
		return func() {}
	}

	bar := progressbar.NewOptions(
		-1,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(out),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionThrottle(80*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)

	stopCh := make(chan struct{})
	doneCh := make(chan struct{})

	go func() {
		defer close(doneCh)
		ticker := time.NewTicker(120 * time.Millisecond)
		defer ticker.Stop()

		for {
			select {
			case <-stopCh:
				_ = bar.Finish()
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stopCh)
			<-doneCh
		})
	}
}

// decodeProgress shows a spinner while the model loads, then switches to a
// determinate bar once the first segment reports how far decoding has come.
// Progress units are centiseconds so short clips still render smoothly.
func (a *appState) decodeProgress() (whisper.ProgressFunc, stopFunc) {
	if !a.progressEnabled() {
		return nil, func() {}
	}

	out := a.progressWriter()
	stopSpinner := startSpinner(true, "Loading model", out)

	var mu sync.Mutex
	var bar *progressbar.ProgressBar

	progress := func(current, total float64) {
		mu.Lock()
		defer mu.Unlock()

		if bar == nil {
			stopSpinner()
			units := int64(math.Round(total * 100))
			if units <= 0 {
				units = 1
			}
			bar = progressbar.NewOptions64(
				units,
				progressbar.OptionSetDescription("Transcribing"),
				progressbar.OptionSetWriter(out),
				progressbar.OptionSetWidth(20),
				progressbar.OptionThrottle(65*time.Millisecond),
				progressbar.OptionClearOnFinish(),
			)
		}

		_ = bar.Set64(int64(math.Round(current * 100)))
	}

	var once sync.Once
	stop := func() {
		once.Do(func() {
			stopSpinner()
			mu.Lock()
			defer mu.Unlock()
			if bar != nil {
				_ = bar.Finish()
			}
		})
	}

	return progress, stop
}

func (a *appState) progressWriter() io.Writer {
	if a.progressOut != nil {
		return a.progressOut
	}
	return os.Stderr
}
