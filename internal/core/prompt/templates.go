package prompt

import _ "embed"

// BaseCoderPrompt seeds any slot that has no agent yet.
//
//go:embed templates/coder.tmpl
var BaseCoderPrompt string

// JudgePrompt asks the judge for improvement suggestions on one task.
//
//go:embed templates/judge.tmpl
var JudgePrompt string

// EvolverPrompt asks the judge for one new coder prompt per slot.
//
//go:embed templates/evolver.tmpl
var EvolverPrompt string

// Set is the trio of templates used by one run. Zero fields fall back to
// the built-ins.
type Set struct {
	Coder   string
	Judge   string
	Evolver string
}

// WithDefaults fills empty templates with the built-in ones.
func (s Set) WithDefaults() Set {
	if s.Coder == "" {
		s.Coder = BaseCoderPrompt
	}
	if s.Judge == "" {
		s.Judge = JudgePrompt
	}
	if s.Evolver == "" {
		s.Evolver = EvolverPrompt
	}
	return s
}
