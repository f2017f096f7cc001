package vad

// VADEvent represents a voice activity detection result for a single audio frame.
type VADEvent struct {
	// Type is the detection result.
	Type VADEventType

	// Probability is the speech probability score (0.0–1.0).
	Probability float64
}

// IsSpeech reports whether the frame belongs to a speech segment.
func (e VADEvent) IsSpeech() bool {
	return e.Type == VADSpeechStart || e.Type == VADSpeechContinue
}

// VADEventType enumerates VAD detection states.
type VADEventType int

const (
	// VADSpeechStart indicates speech has just begun.
	VADSpeechStart VADEventType = iota

	// VADSpeechContinue indicates ongoing speech.
	VADSpeechContinue

	// VADSpeechEnd indicates speech has just ended.
	VADSpeechEnd

	// VADSilence indicates no speech detected.
	VADSilence
)

// String returns a short lowercase name for the event type.
func (t VADEventType) String() string {
	switch t {
	case VADSpeechStart:
		return "speech_start"
	case VADSpeechContinue:
		return "speech_continue"
	case VADSpeechEnd:
		return "speech_end"
	case VADSilence:
		return "silence"
	default:
		return "unknown"
	}
}

// Tracker turns per-frame voiced/unvoiced decisions into [VADEvent]s with
// start and end hysteresis. Engines embed one per session.
type Tracker struct {
	speechFrames  int
	silenceFrames int

	inSpeech bool
	voiced   int
	unvoiced int
}

// NewTracker returns a Tracker using cfg's hysteresis counts.
func NewTracker(cfg Config) *Tracker {
	t := &Tracker{speechFrames: cfg.SpeechFrames, silenceFrames: cfg.SilenceFrames}
	if t.speechFrames <= 0 {
		t.speechFrames = 1
	}
	if t.silenceFrames <= 0 {
		t.silenceFrames = 1
	}
	return t
}

// Observe records one frame decision and returns the resulting event.
func (t *Tracker) Observe(voiced bool, prob float64) VADEvent {
	if voiced {
		t.voiced++
		t.unvoiced = 0
	} else {
		t.unvoiced++
		t.voiced = 0
	}

	switch {
	case !t.inSpeech && t.voiced >= t.speechFrames:
		t.inSpeech = true
		return VADEvent{Type: VADSpeechStart, Probability: prob}
	case t.inSpeech && t.unvoiced >= t.silenceFrames:
		t.inSpeech = false
		return VADEvent{Type: VADSpeechEnd, Probability: prob}
	case t.inSpeech:
		return VADEvent{Type: VADSpeechContinue, Probability: prob}
	default:
		return VADEvent{Type: VADSilence, Probability: prob}
	}
}

// Reset clears the hysteresis state.
func (t *Tracker) Reset() {
	t.inSpeech = false
	t.voiced = 0
	t.unvoiced = 0
}
