package service

import (
	"crypto/rand"

	"github.com/jamnotes/jam-service/internal/domain"
)

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeByte is the largest multiple of len(codeAlphabet) below 256. Bytes at
// or above it are rejected so every alphabet character is equally likely.
const maxCodeByte = 256 - 256%len(codeAlphabet)

// newRoomCode draws a random join code of domain.CodeLength characters.
// Uniqueness is the caller's problem; CreateRoom redraws on collision.
func newRoomCode() string {
	out := make([]byte, 0, domain.CodeLength)
	buf := make([]byte, domain.CodeLength)
	for len(out) < domain.CodeLength {
		if _, err := rand.Read(buf); err != nil {
			panic("roomcode: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= maxCodeByte {
				continue
			}
			out = append(out, codeAlphabet[int(b)%len(codeAlphabet)])
			if len(out) == domain.CodeLength {
				break
			}
		}
	}
	return string(out)
}
