package model

type action int

const (
	DefaultAction action = iota
	ExpectingPortfolioName
)

// Session is the per-chat state of the telegram surface.
type Session struct {
	Action      action
	PortfolioID string
}
