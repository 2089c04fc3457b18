package tui

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"
)

// ConfirmDangerous shows a confirmation prompt for destructive actions.
func ConfirmDangerous(message string) (bool, error) {
	var result bool
	err := huh.NewConfirm().
		Title(message).
		Description("This action cannot be undone.").
		Affirmative("Yes, I'm sure").
		Negative("Cancel").
		Value(&result).
		Run()
	if err != nil {
		return false, err
	}
	return result, nil
}

// InputRequired shows a text input prompt that rejects blank answers.
func InputRequired(title, placeholder string) (string, error) {
	var result string
	err := huh.NewInput().
		Title(title).
		Placeholder(placeholder).
		Value(&result).
		Validate(required).
		Run()
	return strings.TrimSpace(result), err
}

// Password shows a masked input prompt.
func Password(title string) (string, error) {
	var result string
	err := huh.NewInput().
		Title(title).
		EchoMode(huh.EchoModePassword).
		Value(&result).
		Validate(required).
		Run()
	return result, err
}

// SelectOption represents an option in a select prompt.
type SelectOption struct {
	Value string
	Label string
}

// Select shows a single-select prompt.
func Select(title string, options []SelectOption) (string, error) {
	huhOptions := make([]huh.Option[string], len(options))
	for i, opt := range options {
		huhOptions[i] = huh.NewOption(opt.Label, opt.Value)
	}

	var result string
	err := huh.NewSelect[string]().
		Title(title).
		Options(huhOptions...).
		Value(&result).
		Run()
	return result, err
}

// FormField represents a field in a form.
type FormField struct {
	Key         string
	Title       string
	Placeholder string
	Required    bool
	Secret      bool
	Default     string
}

// Form shows a multi-field form and returns a map of key -> value.
func Form(title string, fields []FormField) (map[string]string, error) {
	values := make([]*string, len(fields))
	huhFields := make([]huh.Field, len(fields))

	for i, f := range fields {
		value := f.Default
		values[i] = &value

		input := huh.NewInput().
			Title(f.Title).
			Placeholder(f.Placeholder).
			Value(values[i])
		if f.Secret {
			input = input.EchoMode(huh.EchoModePassword)
		}
		if f.Required {
			input = input.Validate(required)
		}
		huhFields[i] = input
	}

	form := huh.NewForm(
		huh.NewGroup(huhFields...).Title(title),
	)
	if err := form.Run(); err != nil {
		return nil, err
	}

	results := make(map[string]string, len(fields))
	for i, f := range fields {
		v := *values[i]
		if !f.Secret {
			v = strings.TrimSpace(v)
		}
		results[f.Key] = v
	}
	return results, nil
}

// IsAborted reports whether err is the user dismissing a prompt.
func IsAborted(err error) bool {
	return errors.Is(err, huh.ErrUserAborted)
}

func required(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("this field is required")
	}
	return nil
}
