package room

// Sentinel errors surfaced by the store. Callers classify with errors.Is and
// translate into transport-level responses; none of these abort the other
// participant's session.
var (
	ErrRoomNotFound            = errf("room not found or expired")
	ErrRoomFull                = errf("room already has two players")
	ErrNotEnoughPlayers        = errf("need exactly two players to start")
	ErrAlreadyStarted          = errf("game already started")
	ErrCellAlreadySolved       = errf("cell already solved")
	ErrCellOutOfRange          = errf("cell index out of range")
	ErrGameNotStarted          = errf("game not started")
	ErrGameFinished            = errf("game already finished")
	ErrCodeGenerationExhausted = errf("could not allocate a unique room code")
)

type staticErr string

func (e staticErr) Error() string { return string(e) }

func errf(s string) error { return staticErr(s) }
