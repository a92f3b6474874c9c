package cli

import "strings"

func isBlankTranscript(text string) bool {
	return strings.TrimSpace(text) == ""
}

func noSpeechHint() string {
	return "No speech detected. The audio may be silent or contain only filtered noise."
}
