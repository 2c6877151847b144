package cmd

import (
	"os"

	"github.com/charmbracelet/huh"
)

// filterThreshold enables type-to-filter on lists longer than this.
const filterThreshold = 5

// SelectOption is one choice in a select prompt.
type SelectOption[T any] struct {
	Label string
	Value T
}

// runForm shows fields as one group with the key help visible. Without a
// terminal on stdin (piped answers, CI) huh falls back to accessible mode,
// which reads plain lines.
func runForm(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).
		WithShowHelp(true).
		WithAccessible(!stdinIsTerminal()).
		Run()
}

func stdinIsTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// promptString asks for a line of text. Enter on an empty field returns defaultVal.
func promptString(title, description, defaultVal string) (string, error) {
	return promptInput(title, description, defaultVal, nil)
}

// promptInput is promptString with a validator run on every edit.
func promptInput(title, description, defaultVal string, validate func(string) error) (string, error) {
	var value string
	in := huh.NewInput().Title(title).Description(description).Value(&value)
	if defaultVal != "" {
		in = in.Placeholder(defaultVal)
	}
	if validate != nil {
		in = in.Validate(func(s string) error {
			if s == "" && defaultVal != "" {
				return nil
			}
			return validate(s)
		})
	}
	if err := runForm(in); err != nil {
		return "", err
	}
	if value == "" {
		return defaultVal, nil
	}
	return value, nil
}

// promptPassword asks for a secret without echoing it.
func promptPassword(title, description string) (string, error) {
	var value string
	in := huh.NewInput().
		Title(title).
		Description(description).
		EchoMode(huh.EchoModePassword).
		Value(&value)
	if err := runForm(in); err != nil {
		return "", err
	}
	return value, nil
}

// promptSelect picks one option; defaultIdx is preselected when in range.
func promptSelect[T comparable](title string, options []SelectOption[T], defaultIdx int) (T, error) {
	var value T
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(i == defaultIdx)
	}
	sel := huh.NewSelect[T]().
		Title(title).
		Options(opts...).
		Filtering(len(options) > filterThreshold).
		Value(&value)
	if err := runForm(sel); err != nil {
		var zero T
		return zero, err
	}
	return value, nil
}

// promptMultiSelect picks any number of options, starting from preselected.
func promptMultiSelect[T comparable](title, description string, options []SelectOption[T], preselected []T) ([]T, error) {
	on := make(map[T]bool, len(preselected))
	for _, v := range preselected {
		on[v] = true
	}
	opts := make([]huh.Option[T], len(options))
	for i, o := range options {
		opts[i] = huh.NewOption(o.Label, o.Value).Selected(on[o.Value])
	}

	var values []T
	ms := huh.NewMultiSelect[T]().
		Title(title).
		Description(description).
		Options(opts...).
		Filtering(len(options) > filterThreshold).
		Value(&values)
	if err := runForm(ms); err != nil {
		return nil, err
	}
	return values, nil
}

// promptConfirm asks a yes/no question.
func promptConfirm(title string, defaultYes bool) (bool, error) {
	value := defaultYes
	c := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)
	if err := runForm(c); err != nil {
		return false, err
	}
	return value, nil
}
