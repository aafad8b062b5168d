// Package voicecmd implements spoken shortcuts for the visualiser. It
// checks final transcripts from the operator against a set of regex
// patterns and runs the matching [Actions] call.
//
// Only the operator's audio stream (identified by platform user ID) is
// considered; everyone else may say "bars stop" without effect.
package voicecmd

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/MrWong99/voxbars/internal/config"
)

// Actions is the subset of the session manager that voice commands drive.
type Actions interface {
	// Stop detaches the visualiser and leaves the voice channel.
	Stop(ctx context.Context) error

	// SetMode switches between volume and spectrum rendering.
	SetMode(ctx context.Context, mode config.Mode) error

	// FollowParticipant moves the visualiser to another participant in the
	// current channel.
	FollowParticipant(ctx context.Context, userID string) error
}

// Pattern pairs a compiled regex with the action to execute when it matches.
type Pattern struct {
	// Regex is matched against the trimmed transcript. Groups are passed to
	// Action as matches[1], matches[2], etc.
	Regex *regexp.Regexp

	// Name is a human-readable label for logging.
	Name string

	// Action executes the command. speaker is the operator's user ID.
	Action func(ctx context.Context, act Actions, speaker string, matches []string) (string, error)
}

// Filter checks STT finals against a set of patterns and executes matching
// voice commands. It is safe for concurrent use.
type Filter struct {
	patterns []Pattern

	mu         sync.RWMutex
	operatorID string
}

// New creates a Filter that only processes transcripts from operatorID.
// If operatorID is empty, the filter matches no one.
func New(operatorID string) *Filter {
	return &Filter{
		patterns:   defaultPatterns(),
		operatorID: operatorID,
	}
}

// Check tests whether text from userID matches a voice command pattern.
// If a match is found, the corresponding action is executed on act and
// Check returns (true, nil). If no pattern matches, it returns (false, nil).
// Errors from action execution are returned as (true, err).
func (f *Filter) Check(ctx context.Context, userID, text string, act Actions) (bool, error) {
	operator := f.Operator()
	if operator == "" || userID != operator {
		return false, nil
	}

	// STT finals usually carry sentence punctuation.
	trimmed := strings.TrimRight(strings.TrimSpace(text), ".!?")
	if trimmed == "" {
		return false, nil
	}

	for _, p := range f.patterns {
		matches := p.Regex.FindStringSubmatch(trimmed)
		if matches == nil {
			continue
		}

		result, err := p.Action(ctx, act, userID, matches)
		if err != nil {
			slog.Warn("voicecmd: command failed",
				"pattern", p.Name,
				"text", trimmed,
				"error", err,
			)
			return true, fmt.Errorf("voicecmd: %s: %w", p.Name, err)
		}

		slog.Info("voicecmd: command executed",
			"pattern", p.Name,
			"text", trimmed,
			"result", result,
		)
		return true, nil
	}

	return false, nil
}

// Operator returns the user whose speech is checked for commands.
func (f *Filter) Operator() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.operatorID
}

// SetOperator updates the operator. Used when a new session is started by
// a different user.
func (f *Filter) SetOperator(userID string) {
	f.mu.Lock()
	f.operatorID = userID
	f.mu.Unlock()
}

// wake matches the address that prefixes every command.
const wake = `(?i)^(?:hey\s+)?(?:bars|visuali[sz]er),?\s+`

// defaultPatterns returns the built-in set of voice command patterns.
func defaultPatterns() []Pattern {
	return []Pattern{
		{
			Name:  "stop",
			Regex: regexp.MustCompile(wake + `(?:stop|leave)$`),
			Action: func(ctx context.Context, act Actions, _ string, _ []string) (string, error) {
				if err := act.Stop(ctx); err != nil {
					return "", err
				}
				return "stopped", nil
			},
		},
		{
			Name:  "set-mode",
			Regex: regexp.MustCompile(wake + `(?:switch\s+to\s+|show\s+)?(volume|spectrum)(?:\s+mode)?$`),
			Action: func(ctx context.Context, act Actions, _ string, matches []string) (string, error) {
				mode := config.Mode(strings.ToLower(matches[1]))
				if err := act.SetMode(ctx, mode); err != nil {
					return "", err
				}
				return "mode " + string(mode), nil
			},
		},
		{
			Name:  "follow-me",
			Regex: regexp.MustCompile(wake + `follow\s+me$`),
			Action: func(ctx context.Context, act Actions, speaker string, _ []string) (string, error) {
				if err := act.FollowParticipant(ctx, speaker); err != nil {
					return "", err
				}
				return "following " + speaker, nil
			},
		},
	}
}
