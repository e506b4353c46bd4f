// Package repository holds the persistence adapters for accounts and refresh
// tokens. Callers match failures with errors.Is against the sentinels below;
// driver errors are wrapped and never surface as-is.
package repository

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrNotFound       = errors.New("record not found")
	ErrDuplicate      = errors.New("duplicate record")
	ErrAlreadyRevoked = errors.New("refresh token already revoked")
)

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
