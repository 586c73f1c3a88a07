package ui

import (
	"fmt"
	"strings"

	"medallion/internal/warehouse"
	"medallion/pkg/errors"

	"github.com/AlecAivazis/survey/v2"
)

// SelectSnapshot asks the user to pick a snapshot and returns its id
func SelectSnapshot(message string, infos []warehouse.SnapshotInfo) (string, error) {
	if len(infos) == 0 {
		return "", errors.New(errors.ErrCodeNoSnapshot, "no snapshots available")
	}

	options := make([]string, len(infos))
	ids := make(map[string]string, len(infos))
	for i, info := range infos {
		option := fmt.Sprintf("%s  (as of %s, %d rows)", info.ID, info.AsOf.Format("2006-01-02"), info.Rows)
		if info.Current {
			option += " [current]"
		}
		options[i] = option
		ids[option] = info.ID
	}

	var selected string
	prompt := &survey.Select{
		Message:  message,
		Options:  options,
		PageSize: 10,
		Filter: func(filter, value string, index int) bool {
			return strings.Contains(strings.ToLower(value), strings.ToLower(filter))
		},
	}
	if err := survey.AskOne(prompt, &selected); err != nil {
		return "", err
	}
	return ids[selected], nil
}

// Confirm asks a yes/no question
func Confirm(message string, defaultValue bool) (bool, error) {
	ok := defaultValue
	prompt := &survey.Confirm{
		Message: message,
		Default: defaultValue,
	}
	err := survey.AskOne(prompt, &ok)
	return ok, err
}

// Password reads a secret without echoing it
func Password(message, help string) (string, error) {
	var result string
	prompt := &survey.Password{
		Message: message,
		Help:    help,
	}
	err := survey.AskOne(prompt, &result, survey.WithValidator(survey.Required))
	return result, err
}
