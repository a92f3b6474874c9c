package cli

import (
	"fmt"

	"github.com/dorsalhub/dorsal-whisper/internal/platform"
	"github.com/dorsalhub/dorsal-whisper/internal/version"
	"github.com/dorsalhub/dorsal-whisper/internal/whisper"
	"github.com/spf13/cobra"
)

func newCheckCmd(app *appState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify the transcription engine is usable",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.checkCommand(cmd)
		},
	}

	bindLoggingFlags(cmd, app)
	bindConfigFlag(cmd, app)
	cmd.Flags().StringVar(&app.python, "python", app.python, "Python interpreter hosting faster-whisper")
	return cmd
}

func (a *appState) checkCommand(cmd *cobra.Command) error {
	availableFn := a.availableFn
	if availableFn == nil {
		availableFn = a.engineAvailable
	}

	out := cmd.OutOrStdout()
	rt := platform.CurrentRuntime()
	fmt.Fprintf(out, "dorsal-whisper v%s (%s/%s)\n", version.Resolve(), rt.OS, rt.Arch)

	engineVersion, err := availableFn()
	if err != nil {
		return fmt.Errorf("%w: %v", whisper.ErrEngineUnavailable, err)
	}

	fmt.Fprintf(out, "engine: faster-whisper %s\n", engineVersion)
	return nil
}
