package protocol

// GameSnapshot is the game_update payload broadcast after every mutation.
// Every player's full hand is included for every recipient; the client
// relies on this shape, so it is preserved as-is.
type GameSnapshot struct {
	ID        string           `json:"id"`
	Owner     string           `json:"owner"`
	BlackCard string           `json:"blackCard"`
	Czar      string           `json:"czar"`
	State     string           `json:"state"`
	Players   []PlayerSnapshot `json:"players"`
}

type PlayerSnapshot struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Away        bool     `json:"away"`
	Score       int      `json:"score"`
	Czar        bool     `json:"czar"`
	Cards       []string `json:"cards"`
	PlayedCards []string `json:"playedCards"`
}
