package domain

import "errors"

var (
	ErrRoomNotFound  = errors.New("room not found")
	ErrCodeNotFound  = errors.New("room code not found")
	ErrTrackNotFound = errors.New("track not found")
	ErrNotInRoom     = errors.New("user not in the room")
	ErrInvalidInput  = errors.New("invalid input")
)
