package config

import (
	"fmt"

	"github.com/charmbracelet/huh"
)

const (
	mappingQuestion     = "Map firewall rules to outbound, inbound and site-to-site rule sets by zone?"
	defaultDenyQuestion = "Create default deny rules between local VLAN zones?"
)

// Prompter asks a yes/no question.
type Prompter interface {
	Confirm(title string, def bool) (bool, error)
}

// TerminalPrompter asks on the terminal.
type TerminalPrompter struct{}

func (TerminalPrompter) Confirm(title string, def bool) (bool, error) {
	answer := def
	err := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&answer).
		Run()
	return answer, err
}

// Features settles both feature flags. Flags set in the configuration win;
// the rest are asked through p, or default to false when p is nil.
func (c *Config) Features(p Prompter) (mapping, defaultDeny bool, err error) {
	if mapping, err = resolve(c.IntelligentMapping, mappingQuestion, p); err != nil {
		return false, false, err
	}
	if defaultDeny, err = resolve(c.DefaultInterZoneDeny, defaultDenyQuestion, p); err != nil {
		return false, false, err
	}
	return mapping, defaultDeny, nil
}

func resolve(flag *bool, question string, p Prompter) (bool, error) {
	if flag != nil {
		return *flag, nil
	}
	if p == nil {
		return false, nil
	}
	v, err := p.Confirm(question, false)
	if err != nil {
		return false, fmt.Errorf("prompt: %w", err)
	}
	return v, nil
}
