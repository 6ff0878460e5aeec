package orchestrator

import (
	"fmt"
	"strings"
)

// Mode is the orchestrator's answer to "what should happen with this
// request". Talk modes carry guidance only, Busy reports progress, and
// Act is the single mode that proceeds to retrieval and planning.
type Mode int

const (
	ModeTalkConfirm Mode = iota
	ModeTalkImport
	ModeTalkAnalyze
	ModeTalkClarify
	ModeBusy
	ModeAct
)

func (m Mode) String() string {
	switch m {
	case ModeTalkConfirm:
		return "TalkConfirm"
	case ModeTalkImport:
		return "TalkImport"
	case ModeTalkAnalyze:
		return "TalkAnalyze"
	case ModeTalkClarify:
		return "TalkClarify"
	case ModeBusy:
		return "Busy"
	case ModeAct:
		return "Act"
	}
	return "Unknown"
}

// Surface maps a mode to its wire value in the response envelope.
func (m Mode) Surface() string {
	switch m {
	case ModeBusy:
		return "busy"
	case ModeAct:
		return "act"
	}
	return "talk"
}

// coverageThreshold is the minimum text-embedding coverage before the
// orchestrator considers a project ready to edit. Exactly 0.8 passes.
const coverageThreshold = 0.8

// ambiguousPhrases trip the clarify mode: requests that name no
// concrete outcome get a question back instead of a guess.
var ambiguousPhrases = []string{
	"make this good",
	"do your thing",
	"edit my vlog",
	"fix this",
	"improve this",
}

// Decide picks the mode for one request. The rules overlap, so they
// are evaluated in a fixed order and the first match wins: confirm
// beats import beats analyze beats busy beats clarify.
func Decide(intent string, state *ProjectState, destructive, confirmed bool) Mode {
	if destructive && !confirmed {
		return ModeTalkConfirm
	}
	if state.MediaAssets == 0 {
		return ModeTalkImport
	}
	if state.Segments == 0 {
		return ModeTalkAnalyze
	}
	if state.JobsRunning > 0 || state.Coverage < coverageThreshold {
		return ModeBusy
	}
	if ambiguousIntent(intent) {
		return ModeTalkClarify
	}
	return ModeAct
}

func ambiguousIntent(intent string) bool {
	lower := strings.ToLower(intent)
	for _, phrase := range ambiguousPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// Response is the uniform envelope every orchestrator endpoint
// returns. Suggestions and Questions are always present, possibly
// empty, so clients can render buttons without nil checks.
type Response struct {
	Mode        string   `json:"mode"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
	Questions   []string `json:"questions"`
	Data        any      `json:"data,omitempty"`
}

// replyFor renders the canned copy for a mode. The strings are fixed
// product copy; only the Busy and Act variants interpolate counts.
// state may be nil for modes that do not report progress.
func replyFor(mode Mode, state *ProjectState, candidateCount int) (message string, suggestions, questions []string) {
	suggestions = []string{}
	questions = []string{}

	switch mode {
	case ModeTalkImport:
		message = "Hey! Your library is empty right now. Click Import Video Clips to add footage — then I'll scan it and suggest a first cut."
		suggestions = []string{"Import clips"}

	case ModeTalkAnalyze:
		message = "Nice — I see your clips. Next step is analyzing them into moments I can edit with. Want me to start the scan?"
		suggestions = []string{"Analyze clips"}

	case ModeBusy:
		var jobsMsg string
		if state != nil && state.JobsRunning > 0 {
			jobsMsg = fmt.Sprintf("I'm scanning your footage now (%d jobs running).", state.JobsRunning)
		} else {
			var pct int
			if state != nil {
				pct = int(state.Coverage * 100)
			}
			jobsMsg = fmt.Sprintf("I'm still analyzing your footage (%d%% complete).", pct)
		}
		message = fmt.Sprintf("%s You can keep browsing — I'll tell you when I'm ready to propose an edit.", jobsMsg)
		suggestions = []string{"Show progress"}

	case ModeTalkClarify:
		message = "Got it — before I start, what kind of vibe are you going for? Casual vlog, cinematic montage, or something fast-paced?"
		questions = []string{
			"What's the main story you want to tell?",
			"How long should the final video be?",
		}

	case ModeTalkConfirm:
		message = "This will replace your current timeline. Do you want to overwrite it, or create a new version?"
		suggestions = []string{"Overwrite timeline", "Create new version", "Cancel"}

	case ModeAct:
		if candidateCount == 0 {
			message = "I couldn't find moments that match that request yet. Want me to broaden the search, or are you aiming for a specific vibe (funny / cinematic / cozy)?"
			suggestions = []string{"Broaden search", "Show all moments"}
			questions = []string{"What kind of moments are you looking for?"}
		} else {
			message = fmt.Sprintf("I found %d good moments based on speech and visual interest. I'll start with a short hook, then build the main section around these scenes.", candidateCount)
			suggestions = []string{"Generate Plan"}
		}
	}
	return message, suggestions, questions
}

// buildResponse assembles the envelope for a mode with no override.
func buildResponse(mode Mode, state *ProjectState, candidateCount int, data any) *Response {
	message, suggestions, questions := replyFor(mode, state, candidateCount)
	return &Response{
		Mode:        mode.Surface(),
		Message:     message,
		Suggestions: suggestions,
		Questions:   questions,
		Data:        data,
	}
}
