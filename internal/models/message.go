package models

// InboundMessage is a chat message delivered by the front door.
// IsEcho marks messages the operator sent from the bot's own account.
type InboundMessage struct {
	UserID string `json:"userId"`
	IsEcho bool   `json:"isEcho"`
	Text   string `json:"text"`
}
