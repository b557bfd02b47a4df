// Package harvest distills finished sessions into structured learnings.
//
// A learning is an LLM-written digest of one conversation: the topics it
// covered, decisions made, facts worth keeping, and open action items.
// Learnings are stored once per session and re-harvested only on request.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/hurttlocker/recall/internal/llm"
	"github.com/hurttlocker/recall/internal/session"
	"github.com/hurttlocker/recall/internal/store"
)

const (
	// harvestTimeout is the max time for a single session digest call.
	harvestTimeout = 60 * time.Second

	// minMessages is the smallest transcript worth digesting. Below this a
	// session is noise (a greeting, an aborted start).
	minMessages = 4

	// maxTranscriptChars caps the transcript sent to the LLM.
	maxTranscriptChars = 50000
)

const harvestSystemPrompt = `You are a conversation archivist. You receive the transcript of one user/assistant session and distill what is worth remembering from it.

Return ONLY a JSON object:
{
  "topics": ["short topic phrases"],
  "decisions": ["decisions that were made, with their outcome"],
  "facts_learned": ["concrete facts established during the conversation"],
  "action_items": ["things left to do, if any"],
  "summary": "2-3 sentence summary of the session"
}

Rules:
- Be specific: names, versions, numbers, file paths
- Omit pleasantries and process chatter
- Empty arrays are fine when a category has nothing
- The summary must stand alone without the transcript`

// Learning is the structured digest of one session.
type Learning struct {
	SessionID    string   `json:"session_id"`
	Topics       []string `json:"topics"`
	Decisions    []string `json:"decisions"`
	FactsLearned []string `json:"facts_learned"`
	ActionItems  []string `json:"action_items"`
	Summary      string   `json:"summary"`
	HarvestedAt  string   `json:"harvested_at,omitempty"`
}

// Options configures a harvest run.
type Options struct {
	Force      bool // re-harvest sessions that already have a learning
	ProgressFn func(done, total int, sessionID string)
}

// SessionError records a non-fatal per-session failure.
type SessionError struct {
	SessionID string
	Message   string
}

// Result summarizes a harvest run.
type Result struct {
	SessionsScanned   int
	SessionsHarvested int
	SessionsSkipped   int // already harvested or too short
	Errors            []SessionError
}

// Harvester drives the transcript-to-learning pipeline.
type Harvester struct {
	store    store.Store
	provider llm.Provider
}

func NewHarvester(s store.Store, p llm.Provider) *Harvester {
	return &Harvester{store: s, provider: p}
}

// HarvestDir digests every unharvested session under dir, oldest first.
// A failure in one session is recorded and the run moves on.
func (h *Harvester) HarvestDir(ctx context.Context, dir string, opts Options) (*Result, error) {
	files, err := session.Discover(dir)
	if err != nil {
		return nil, fmt.Errorf("discovering sessions: %w", err)
	}

	result := &Result{}
	for i, f := range files {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		result.SessionsScanned++

		if !opts.Force {
			done, err := h.store.HasLearning(ctx, f.ID)
			if err != nil {
				return result, fmt.Errorf("checking learning for %s: %w", f.ID, err)
			}
			if done {
				result.SessionsSkipped++
				continue
			}
		}

		learning, err := h.HarvestFile(ctx, f)
		if err != nil {
			result.Errors = append(result.Errors, SessionError{SessionID: f.ID, Message: err.Error()})
			continue
		}
		if learning == nil {
			result.SessionsSkipped++
			continue
		}
		result.SessionsHarvested++

		if opts.ProgressFn != nil {
			opts.ProgressFn(i+1, len(files), f.ID)
		}
	}
	return result, nil
}

// HarvestFile digests one transcript and stores the learning. Returns
// (nil, nil) for sessions too short to be worth digesting.
func (h *Harvester) HarvestFile(ctx context.Context, f session.File) (*Learning, error) {
	messages, err := session.ParseFile(f.Path)
	if err != nil {
		return nil, err
	}
	if len(messages) < minMessages {
		return nil, nil
	}

	turns := session.BuildTurns(messages)
	transcript := renderTranscript(turns)
	if strings.TrimSpace(transcript) == "" {
		return nil, nil
	}
	if len(transcript) > maxTranscriptChars {
		transcript = transcript[:maxTranscriptChars]
	}

	callCtx, cancel := context.WithTimeout(ctx, harvestTimeout)
	defer cancel()

	resp, err := h.provider.Complete(callCtx, transcript, llm.CompletionOpts{
		System:      harvestSystemPrompt,
		MaxTokens:   2048,
		Temperature: 0.2,
		Format:      "json",
	})
	if err != nil {
		return nil, fmt.Errorf("digest call for %s: %w", f.ID, err)
	}

	learning, err := parseLearning(resp)
	if err != nil {
		return nil, fmt.Errorf("parsing digest for %s: %w", f.ID, err)
	}
	learning.SessionID = f.ID

	payload, err := json.Marshal(learning)
	if err != nil {
		return nil, fmt.Errorf("encoding learning for %s: %w", f.ID, err)
	}
	if err := h.store.AddLearning(ctx, &store.Learning{SessionID: f.ID, Payload: string(payload)}); err != nil {
		return nil, err
	}
	return learning, nil
}

func renderTranscript(turns []session.Turn) string {
	parts := make([]string, 0, len(turns))
	for _, t := range turns {
		parts = append(parts, t.Render())
	}
	return strings.Join(parts, "\n\n---\n\n")
}

// parseLearning parses the LLM's JSON, tolerating markdown code fences.
func parseLearning(raw string) (*Learning, error) {
	cleaned := strings.TrimSpace(raw)

	if strings.HasPrefix(cleaned, "```") {
		lines := strings.Split(cleaned, "\n")
		start, end := 0, len(lines)
		for i, line := range lines {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				if start == 0 {
					start = i + 1
				} else {
					end = i
					break
				}
			}
		}
		if start > 0 && end > start {
			cleaned = strings.Join(lines[start:end], "\n")
		}
	}
	cleaned = strings.TrimSpace(cleaned)

	var l Learning
	if err := json.Unmarshal([]byte(cleaned), &l); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if strings.TrimSpace(l.Summary) == "" && len(l.Topics) == 0 && len(l.FactsLearned) == 0 {
		return nil, fmt.Errorf("digest carries no content")
	}
	return &l, nil
}

// Decode rebuilds a Learning from its stored payload.
func Decode(l *store.Learning) (*Learning, error) {
	var out Learning
	if err := json.Unmarshal([]byte(l.Payload), &out); err != nil {
		return nil, fmt.Errorf("decoding learning for %s: %w", l.SessionID, err)
	}
	if out.SessionID == "" {
		out.SessionID = l.SessionID
	}
	out.HarvestedAt = l.CreatedAt
	return &out, nil
}
