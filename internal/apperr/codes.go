package apperr

// Code is a machine-readable error code.
type Code string

const (
	CodeInternal Code = "INTERNAL"

	// Lookup
	CodeRoomNotFound   Code = "ROOM_NOT_FOUND"
	CodePlayerNotFound Code = "PLAYER_NOT_FOUND"

	// Room lifecycle
	CodeRoomFull              Code = "ROOM_FULL"
	CodeAlreadyStarted        Code = "ALREADY_STARTED"
	CodeAlreadyAnswered       Code = "ALREADY_ANSWERED"
	CodeNotEnoughPlayers      Code = "NOT_ENOUGH_PLAYERS"
	CodeScheduledStartPending Code = "SCHEDULED_START_PENDING"

	// Input validation
	CodeInvalidGameType Code = "INVALID_GAME_TYPE"
	CodeInvalidSchedule Code = "INVALID_SCHEDULE"
	CodeInvalidPayload  Code = "INVALID_PAYLOAD"
	CodeInvalidColor    Code = "INVALID_COLOR"
	CodeInvalidAnswer   Code = "INVALID_ANSWER"
	CodeRateLimited     Code = "RATE_LIMITED"

	// Rules
	CodeBadPassword          Code = "BAD_PASSWORD"
	CodeNotHost              Code = "NOT_HOST"
	CodeNotYourTurn          Code = "NOT_YOUR_TURN"
	CodeGameNotActive        Code = "GAME_NOT_ACTIVE"
	CodeDieAlreadyRolled     Code = "DIE_ALREADY_ROLLED"
	CodeDieNotRolled         Code = "DIE_NOT_ROLLED"
	CodeIllegalDestination   Code = "ILLEGAL_DESTINATION"
	CodeCardNotInHand        Code = "CARD_NOT_IN_HAND"
	CodeIllegalCardPlay      Code = "ILLEGAL_CARD_PLAY"
	CodeColorChoicePending   Code = "COLOR_CHOICE_PENDING"
	CodeNoColorChoicePending Code = "NO_COLOR_CHOICE_PENDING"
	CodeIllegalMove          Code = "ILLEGAL_MOVE"
	CodeWrongGame            Code = "WRONG_GAME"

	// Storage
	CodePersistenceUnavailable Code = "PERSISTENCE_UNAVAILABLE"
)

// Kind maps a code to its failure class.
func (c Code) Kind() Kind {
	switch c {
	case CodeRoomNotFound, CodePlayerNotFound:
		return KindNotFound
	case CodeRoomFull, CodeAlreadyStarted, CodeAlreadyAnswered, CodeNotEnoughPlayers, CodeScheduledStartPending:
		return KindConflict
	case CodeInvalidGameType, CodeInvalidSchedule, CodeInvalidPayload, CodeInvalidColor, CodeInvalidAnswer, CodeRateLimited:
		return KindInvalidInput
	case CodeBadPassword, CodeNotHost, CodeNotYourTurn, CodeGameNotActive,
		CodeDieAlreadyRolled, CodeDieNotRolled, CodeIllegalDestination,
		CodeCardNotInHand, CodeIllegalCardPlay, CodeColorChoicePending, CodeNoColorChoicePending,
		CodeIllegalMove, CodeWrongGame:
		return KindIllegalAction
	case CodePersistenceUnavailable:
		return KindPersistenceUnavailable
	default:
		return KindInternal
	}
}

var (
	ErrRoomNotFound       = New(CodeRoomNotFound, "room not found")
	ErrPlayerNotFound     = New(CodePlayerNotFound, "player not in room")
	ErrRoomFull           = New(CodeRoomFull, "room is full")
	ErrAlreadyStarted     = New(CodeAlreadyStarted, "game already started")
	ErrAlreadyAnswered    = New(CodeAlreadyAnswered, "answer already submitted")
	ErrNotEnoughPlayers   = New(CodeNotEnoughPlayers, "not enough players")
	ErrInvalidGameType    = New(CodeInvalidGameType, "unknown game type")
	ErrInvalidSchedule    = New(CodeInvalidSchedule, "invalid scheduled start")
	ErrBadPassword        = New(CodeBadPassword, "wrong room password")
	ErrNotHost            = New(CodeNotHost, "only the host can do that")
	ErrNotYourTurn        = New(CodeNotYourTurn, "not your turn")
	ErrGameNotActive      = New(CodeGameNotActive, "game not active")
	ErrDieAlreadyRolled   = New(CodeDieAlreadyRolled, "die already rolled")
	ErrDieNotRolled       = New(CodeDieNotRolled, "roll the die first")
	ErrIllegalDestination = New(CodeIllegalDestination, "token cannot move there")
	ErrCardNotInHand      = New(CodeCardNotInHand, "card not in hand")
	ErrIllegalCardPlay    = New(CodeIllegalCardPlay, "card does not match")
	ErrColorChoicePending = New(CodeColorChoicePending, "choose a color first")
	ErrIllegalMove        = New(CodeIllegalMove, "illegal move")
	ErrPersistence        = New(CodePersistenceUnavailable, "storage unavailable")
)
