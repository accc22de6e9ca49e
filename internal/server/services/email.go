package services

import (
	"net/mail"
	"strings"

	"github.com/dmitrijs2005/mycloud/internal/common"
)

// normalizeEmail lowercases email and accepts only a bare addr-spec
// ("a@b.c"), not a display-name form.
func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || !strings.Contains(email[strings.LastIndexByte(email, '@')+1:], ".") {
		return "", common.ErrInvalidEmail
	}
	return email, nil
}
