package constants

// Stage is the state of a single document run through the pipeline.
type Stage string

// Stable values; they appear in logs and in ExtractionError.Stage.
const (
	StageReceived         Stage = "RECEIVED"
	StageClassified       Stage = "CLASSIFIED"
	StageTextAcquired     Stage = "TEXT_ACQUIRED"
	StagePatternExtracted Stage = "PATTERN_EXTRACTED"
	StageAIAugmented      Stage = "AI_AUGMENTED" // optional
	StageNormalized       Stage = "NORMALIZED"
	StageAssembled        Stage = "ASSEMBLED" // terminal
	StageFailed           Stage = "FAILED"    // terminal
)

// IsTerminal reports whether no further transition is allowed from s.
func (s Stage) IsTerminal() bool {
	return s == StageAssembled || s == StageFailed
}
