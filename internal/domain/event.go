package domain

const (
	EventNameGamePaired   = "game.paired"
	EventNameGameFinished = "game.finished"
)

// EventGamePaired is published when a waiting player gets an opponent and
// the game becomes Active.
type EventGamePaired struct {
	Game Game
}

func (EventGamePaired) Name() string { return EventNameGamePaired }

// EventGameFinished carries the final snapshot of a finished game.
// Delivery to subscribers is at-least-once; consumers must tolerate
// duplicates.
type EventGameFinished struct {
	Game Game
}

func (EventGameFinished) Name() string { return EventNameGameFinished }
