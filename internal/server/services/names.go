package services

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/mycloud/internal/common"
)

const (
	maxNameLength     = 255
	minPasswordLength = 8
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,20}$`)

// validateName trims surrounding whitespace and checks the result holds
// 1 to 255 characters. The trimmed name is what gets stored.
func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if n := utf8.RuneCountInString(name); n == 0 || n > maxNameLength {
		return "", common.ErrInvalidName
	}
	return name, nil
}

func validateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return common.ErrInvalidUsername
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLength {
		return common.ErrShortPassword
	}
	return nil
}
