package whisper

import "golang.org/x/text/language"

const undeterminedLanguage = "und"

// NormalizeLanguage maps an engine-reported language code to its ISO 639-3
// form, e.g. "en" to "eng". Unknown or empty input yields "und".
func NormalizeLanguage(code string) string {
	tag, err := language.Parse(code)
	if err != nil {
		return undeterminedLanguage
	}
	base, _ := tag.Base()
	return base.ISO3()
}
