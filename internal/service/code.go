package service

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const roomCodeBytes = 4

// NewRoomCode — 8 символов [0-9A-F] из криптостойких случайных байт.
func NewRoomCode() (string, error) {
	b := make([]byte, roomCodeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return strings.ToUpper(hex.EncodeToString(b)), nil
}
