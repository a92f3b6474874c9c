package main

import (
	"errors"
	"testing"

	"github.com/dorsalhub/dorsal-whisper/internal/cli"
	"github.com/stretchr/testify/require"
)

func TestShouldPrintUsageHint(t *testing.T) {
	t.Parallel()

	require.True(t, shouldPrintUsageHint(errors.New("unknown command \"bad\" for \"dorsal-whisper\"")))
	require.True(t, shouldPrintUsageHint(errors.New("unknown flag: --oops")))
	require.True(t, shouldPrintUsageHint(errors.New("accepts 1 arg(s), received 0")))
	require.False(t, shouldPrintUsageHint(errors.New("load model base-default: worker exited")))
	require.False(t, shouldPrintUsageHint(nil))
}

func TestHelpHintTarget(t *testing.T) {
	t.Parallel()

	root := cli.NewRootCmd()
	require.Equal(t, "dorsal-whisper", helpHintTarget(root, []string{"--badflag"}))
	require.Equal(t, "dorsal-whisper", helpHintTarget(root, []string{"badcmd"}))
	require.Equal(t, "dorsal-whisper transcribe", helpHintTarget(root, []string{"transcribe"}))
	require.Equal(t, "dorsal-whisper transcribe", helpHintTarget(root, []string{"transcribe", "--force"}))
}
