package session

import (
	"time"

	"slidecast/internal/manifest"
	"slidecast/internal/media"
)

// Slot names one URL the listener captures from network traffic.
type Slot string

const (
	SlotEventLog     Slot = "event_log"
	SlotManifest     Slot = "manifest"
	SlotAudioInit    Slot = "audio_init"
	SlotVideoInit    Slot = "video_init"
	SlotAudioSegment Slot = "audio_segment"
	SlotVideoSegment Slot = "video_segment"
)

// Phase is the step the orchestrator is currently in.
type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhasePrepare  Phase = "prepare"
	PhaseNavigate Phase = "navigate"
	PhaseLogin    Phase = "login"
	PhaseTimeline Phase = "timeline"
	PhaseSlides   Phase = "slides"
	PhaseMedia    Phase = "media"
	PhaseFinalize Phase = "finalize"
	PhaseDone     Phase = "done"
	PhaseFailed   Phase = "failed"
)

// MediaOutcome is the latched result of the background media fetch.
type MediaOutcome struct {
	Result media.Result
	Err    error
}

// Outputs are the files promoted to the output directory.
type Outputs struct {
	Video  string `json:"video"`
	Slides string `json:"slides,omitempty"`
}

// Snapshot is the externally visible state of a session.
type Snapshot struct {
	ID             string          `json:"id"`
	Phase          Phase           `json:"phase"`
	Title          string          `json:"title,omitempty"`
	StartedAt      time.Time       `json:"started_at"`
	Captured       map[Slot]string `json:"captured"`
	TimelineSlides int             `json:"timeline_slides"`
	MediaKind      manifest.Kind   `json:"media_kind,omitempty"`
	MediaError     string          `json:"media_error,omitempty"`
	Outputs        *Outputs        `json:"outputs,omitempty"`
}
