package events

// DefaultCardID identifies the zero-cost action used to pad an incomplete selection
const DefaultCardID = "default-action"

// MaxSelection is the number of actions every active player submits per turn
const MaxSelection = 3

// Card is a reference to an action the player can select for a turn
type Card struct {
	ID             string `json:"id"`
	Name           string `json:"name,omitempty"`
	Cost           int    `json:"cost"`
	SystemSelected bool   `json:"systemSelected,omitempty"`
}

// DefaultCard returns the designated zero-cost fallback action
func DefaultCard() Card {
	return Card{
		ID:   DefaultCardID,
		Name: "Guard",
		Cost: 0,
	}
}
