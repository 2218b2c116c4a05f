// Package protocol defines the wire format shared with the web client:
// a single envelope type in each direction, tagged by the Event field.
package protocol

// Client -> server event tags.
const (
	EventCreateGame    = "create_game"
	EventJoinGame      = "join_game"
	EventPlayCard      = "play_card"
	EventEndRound      = "end_round"
	EventChooseWinner  = "choose_winner"
	EventSetPlayerName = "set_player_name"
	EventStartVote     = "start_vote"
	EventVote          = "vote"
)

// Server -> client event tags.
const (
	EventGameCreated = "game_created"
	EventInvalidGame = "invalid_game"
	EventGameUpdate  = "game_update"
	EventDrawCard    = "draw_card"
	EventVoteStart   = "vote_start"
	EventVoteUpdate  = "vote_update"
	EventVotePassed  = "vote_passed"
	EventVoteFailed  = "vote_failed"
)

// Vote action types carried in VoteArgs.Type.
const (
	VoteKickPlayer = "kick-player"
	VoteSkipCard   = "skip-card"
)

type ClientMessage struct {
	Event  string    `json:"event"`
	Player string    `json:"player,omitempty"`
	Game   string    `json:"game,omitempty"`
	Text   string    `json:"text,omitempty"`
	Cards  []string  `json:"cards,omitempty"`
	Winner string    `json:"winner,omitempty"`
	Decks  []string  `json:"decks,omitempty"`
	Args   *VoteArgs `json:"args,omitempty"`
}

// VoteArgs parameterizes a start_vote request and is echoed back inside
// vote_start/vote_update so clients can render the pending action.
type VoteArgs struct {
	Type    string `json:"type"`
	Timeout int    `json:"timeout,omitempty"`
	Player  string `json:"player,omitempty"`
}

// ServerMessage is the outbound envelope. Game carries a plain id string
// for game_created and a *GameSnapshot for game_update; the client treats
// the field as untyped, so it stays `any` here.
type ServerMessage struct {
	Event string     `json:"event"`
	Game  any        `json:"game,omitempty"`
	Card  string     `json:"card,omitempty"`
	Text  string     `json:"text,omitempty"`
	Args  *VoteState `json:"args,omitempty"`
}

// VoteState is the full public state of a pending vote.
type VoteState struct {
	Title    string            `json:"title"`
	Timeout  int               `json:"timeout"`
	Required int               `json:"required"`
	Votes    map[string]string `json:"votes"`
	Args     VoteArgs          `json:"args"`
}
