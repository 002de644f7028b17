package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// TypeRoomSweep is the periodic maintenance task: deactivate participants
// whose heartbeat went quiet and delete rooms that have sat empty.
const TypeRoomSweep = "rooms:sweep"

type RoomSweepPayload struct {
	StaleAfter     time.Duration `json:"stale_after"`
	EmptyRoomAfter time.Duration `json:"empty_room_after"`
}

func NewRoomSweepTask(staleAfter, emptyRoomAfter time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(RoomSweepPayload{
		StaleAfter:     staleAfter,
		EmptyRoomAfter: emptyRoomAfter,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRoomSweep, payload), nil
}
