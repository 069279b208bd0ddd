package session

import (
	"errors"
	"fmt"

	"document-chat/internal/models"
)

var ErrInvalidRole = errors.New("history only holds user and assistant turns")

// History is the ordered list of turns of one chat session. It is a value:
// Append returns a new History and leaves the receiver untouched.
type History struct {
	turns []models.Turn
}

func (h History) Append(role models.Role, content string) (History, error) {
	if role != models.RoleUser && role != models.RoleAssistant {
		return h, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	turns := make([]models.Turn, len(h.turns), len(h.turns)+1)
	copy(turns, h.turns)
	turns = append(turns, models.Turn{Role: role, Content: content})
	return History{turns: turns}, nil
}

// Exchange appends a question and its answer in one step
func (h History) Exchange(question, answer string) History {
	turns := make([]models.Turn, len(h.turns), len(h.turns)+2)
	copy(turns, h.turns)
	turns = append(turns,
		models.Turn{Role: models.RoleUser, Content: question},
		models.Turn{Role: models.RoleAssistant, Content: answer},
	)
	return History{turns: turns}
}

// Messages returns a copy of the turns in append order
func (h History) Messages() []models.Turn {
	out := make([]models.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

func (h History) Len() int {
	return len(h.turns)
}
