package whisper

const (
	DefaultModelSize   = "base"
	DefaultBeamSize    = 5
	DefaultComputeType = "default"
)

// MaxTextLength caps Record.Text at the downstream schema's character limit,
// counted in runes.
const MaxTextLength = 524288

type ProgressFunc func(current, total float64)

type Request struct {
	FilePath    string
	ModelSize   string
	ComputeType string
	BeamSize    int
	VADFilter   bool
	BatchSize   int
	Force       bool
	Decode      DecodeOptions
	Progress    ProgressFunc
}

type DecodeOptions struct {
	Task           string
	Language       string
	WordTimestamps bool
	InitialPrompt  string
	Extra          map[string]any
}

type Word struct {
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	Word        string  `json:"word"`
	Probability float64 `json:"probability"`
}

type RawSegment struct {
	Text       string
	Start      float64
	End        float64
	AvgLogprob float64
	Words      []Word
}

type Info struct {
	Language            string
	LanguageProbability float64
	Duration            float64
}

type OutputSegment struct {
	Text      string  `json:"text"`
	StartTime float64 `json:"start_time"`
	EndTime   float64 `json:"end_time"`
	Score     float64 `json:"score"`
}

type Attributes struct {
	LanguageProbability float64 `json:"language_probability"`
}

type Record struct {
	Producer         string          `json:"producer"`
	Text             string          `json:"text"`
	Language         string          `json:"language"`
	Duration         float64         `json:"duration"`
	ScoreExplanation string          `json:"score_explanation"`
	Segments         []OutputSegment `json:"segments"`
	Attributes       Attributes      `json:"attributes"`
}
