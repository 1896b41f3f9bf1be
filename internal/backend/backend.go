// Package backend defines the text-generation contract used by the script
// composer and picks which configured backend serves it.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Backend generates text for a prompt. maxTokens is a length hint.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Kind classifies generation failures.
type Kind string

const (
	Unavailable     Kind = "unavailable"
	Quota           Kind = "quota"
	InvalidResponse Kind = "invalid_response"
)

// GenerationError is what backends return when no usable text came back.
type GenerationError struct {
	Kind    Kind
	Backend string
	Err     error
}

func (e *GenerationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Backend, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Backend, e.Kind, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Errorf builds a GenerationError.
func Errorf(kind Kind, backend string, format string, args ...any) error {
	return &GenerationError{Kind: kind, Backend: backend, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the GenerationError kind in err's chain. Any other error
// counts as Unavailable.
func KindOf(err error) Kind {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return Unavailable
}

// Modes accepted by Select.
const (
	ModeAuto         = "auto"
	ModeTemplate     = "template"
	ModeGemini       = "gemini"
	ModeConversation = "conversation"
)

// Select picks the backend for mode from a capability-ranked list. Nil entries
// are backends that are not configured. "auto" takes the first configured one;
// a named mode must match a configured backend. A nil result means the
// composer always uses the template.
func Select(mode string, ranked ...Backend) (Backend, error) {
	mode = strings.ToLower(strings.TrimSpace(mode))
	switch mode {
	case "", ModeAuto:
		for _, b := range ranked {
			if b != nil {
				return b, nil
			}
		}
		return nil, nil
	case ModeTemplate:
		return nil, nil
	}
	for _, b := range ranked {
		if b != nil && b.Name() == mode {
			return b, nil
		}
	}
	return nil, fmt.Errorf("ai mode %q: backend not configured", mode)
}
