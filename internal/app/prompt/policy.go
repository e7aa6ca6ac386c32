package prompt

import (
	"strings"

	"github.com/PabloGalante/kbrelay/internal/domain"
)

const (
	detailedInstructions = " 請根據論文內容，以繁體中文提供給醫師專業的詳細解答，並附上關鍵數據。"
	conciseInstructions  = " 請根據論文內容，以繁體中文簡潔回應重點摘要。"
)

// DefaultTriggers are the words that switch a query to detailed mode.
var DefaultTriggers = []string{"詳細", "detail"}

// Policy turns raw user text into an upstream prompt.
type Policy struct {
	triggers []string
}

// NewPolicy lower-cases the triggers once. Empty triggers are ignored and an
// empty list falls back to DefaultTriggers.
func NewPolicy(triggers []string) Policy {
	var lowered []string
	for _, t := range triggers {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			lowered = append(lowered, t)
		}
	}
	if len(lowered) == 0 {
		return NewPolicy(DefaultTriggers)
	}
	return Policy{triggers: lowered}
}

// Mode reports which verbosity the raw text asks for.
func (p Policy) Mode(raw string) domain.Mode {
	lower := strings.ToLower(raw)
	for _, t := range p.triggers {
		if strings.Contains(lower, t) {
			return domain.ModeDetailed
		}
	}
	return domain.ModeConcise
}

// Build never fails and does no I/O.
func (p Policy) Build(raw string) domain.Query {
	mode := p.Mode(raw)

	instructions := conciseInstructions
	if mode == domain.ModeDetailed {
		instructions = detailedInstructions
	}

	return domain.Query{
		Raw:    raw,
		Prompt: raw + instructions,
		Mode:   mode,
	}
}
