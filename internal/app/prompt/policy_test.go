package prompt_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/PabloGalante/kbrelay/internal/app/prompt"
	"github.com/PabloGalante/kbrelay/internal/domain"
)

func TestBuildSelectsMode(t *testing.T) {
	p := prompt.NewPolicy(nil)

	cases := []struct {
		raw  string
		want domain.Mode
	}{
		{"What is the treatment dosage?", domain.ModeConcise},
		{"請詳細說明劑量", domain.ModeDetailed},
		{"give me the DETAILS please", domain.ModeDetailed},
		{"Detail the adverse events", domain.ModeDetailed},
		{"劑量是多少", domain.ModeConcise},
		{"", domain.ModeConcise},
	}

	for _, tc := range cases {
		t.Run(tc.raw, func(t *testing.T) {
			q := p.Build(tc.raw)
			assert.Equal(t, tc.want, q.Mode)
			assert.Equal(t, tc.raw, q.Raw)
			assert.True(t, strings.HasPrefix(q.Prompt, tc.raw))
		})
	}
}

func TestBuildDetailedPrompt(t *testing.T) {
	q := prompt.NewPolicy(nil).Build("請詳細說明劑量")

	assert.Equal(t, domain.ModeDetailed, q.Mode)
	assert.Contains(t, q.Prompt, "詳細解答")
	assert.Contains(t, q.Prompt, "關鍵數據")
	assert.Contains(t, q.Prompt, "繁體中文")
}

func TestBuildConcisePrompt(t *testing.T) {
	q := prompt.NewPolicy(nil).Build("What is the treatment dosage?")

	assert.Equal(t, domain.ModeConcise, q.Mode)
	assert.Contains(t, q.Prompt, "簡潔回應重點摘要")
	assert.NotContains(t, q.Prompt, "關鍵數據")
}

func TestCustomTriggers(t *testing.T) {
	p := prompt.NewPolicy([]string{"  ", "Deep"})

	assert.Equal(t, domain.ModeDetailed, p.Mode("go deep on this"))
	assert.Equal(t, domain.ModeConcise, p.Mode("give me the detail"))

	fallback := prompt.NewPolicy([]string{""})
	assert.Equal(t, domain.ModeDetailed, fallback.Mode("more detail"))
}
