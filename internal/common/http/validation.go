package http

import (
	"errors"

	"github.com/google/uuid"
)

var errEmptyUUID = errors.New("empty uuid")

func ValidateUUID(s string) error {
	if s == "" {
		return errEmptyUUID
	}
	_, err := uuid.Parse(s)
	return err
}
