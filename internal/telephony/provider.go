// Package telephony defines the port to the remote call placement service.
package telephony

import "context"

// CallRequest describes one outbound call to place.
type CallRequest struct {
	To        string
	From      string
	StatusURL string
	AnswerURL string
}

// Client abstracts the voice provider.
type Client interface {
	// PlaceCall starts a call and returns the provider call id.
	PlaceCall(ctx context.Context, req CallRequest) (string, error)
	// Hangup terminates a live call.
	Hangup(ctx context.Context, callID string) error
	// PlayAndHangup speaks text into a live call and terminates it afterwards.
	PlayAndHangup(ctx context.Context, callID, text string) error
}
