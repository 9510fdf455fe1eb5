package guide

import (
	"encoding/json"

	"github.com/danghamo/tourguide/internal/domain/route"
)

// CardMode says how the attraction card came to be shown
type CardMode string

const (
	CardClosed CardMode = "closed"
	// CardAuto is a card opened by proximity
	CardAuto CardMode = "auto"
	// CardManual is a card opened by the listener; location never closes it
	CardManual CardMode = "manual"
)

// Card is the attraction currently presented. The zero value is closed.
// Fields are unexported so an open card always carries an attraction.
type Card struct {
	mode       CardMode
	attraction route.Attraction
}

// ClosedCard returns a closed card
func ClosedCard() Card {
	return Card{mode: CardClosed}
}

// AutoCard returns a card opened by proximity
func AutoCard(a route.Attraction) Card {
	return Card{mode: CardAuto, attraction: a}
}

// ManualCard returns a card opened by explicit selection
func ManualCard(a route.Attraction) Card {
	return Card{mode: CardManual, attraction: a}
}

// Mode returns the card mode
func (c Card) Mode() CardMode {
	if c.mode == "" {
		return CardClosed
	}
	return c.mode
}

// IsOpen reports whether an attraction is shown
func (c Card) IsOpen() bool {
	return c.Mode() != CardClosed
}

// IsManuallyOpened reports whether the listener opened the card
func (c Card) IsManuallyOpened() bool {
	return c.mode == CardManual
}

// Attraction returns the shown attraction
func (c Card) Attraction() (route.Attraction, bool) {
	if !c.IsOpen() {
		return route.Attraction{}, false
	}
	return c.attraction, true
}

// AttractionID returns the shown attraction's id, "" when closed
func (c Card) AttractionID() string {
	if !c.IsOpen() {
		return ""
	}
	return c.attraction.ID
}

type cardJSON struct {
	Mode             CardMode          `json:"mode"`
	IsManuallyOpened bool              `json:"is_manually_opened"`
	Attraction       *route.Attraction `json:"attraction,omitempty"`
}

// MarshalJSON renders the card for clients
func (c Card) MarshalJSON() ([]byte, error) {
	out := cardJSON{Mode: c.Mode(), IsManuallyOpened: c.IsManuallyOpened()}
	if a, ok := c.Attraction(); ok {
		out.Attraction = &a
	}
	return json.Marshal(out)
}
