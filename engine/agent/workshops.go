package agent

import (
	"context"

	"github.com/WessleyAI/wessley-mechanic/engine/domain"
	"github.com/WessleyAI/wessley-mechanic/pkg/resilience"
)

// Explanations used on the workshop path.
const (
	LocationNeeded    = "Share your location so I can find repair workshops near you."
	WorkshopsNotFound = "I couldn't find any repair workshops near you right now. Please try again shortly."
)

// FindWorkshops looks up repair workshops near (lat, lng).
func (e *Engine) FindWorkshops(ctx context.Context, lat, lng float64) ([]string, error) {
	if err := domain.ValidateCoordinates(lat, lng); err != nil {
		return nil, err
	}
	if e.workshops == nil {
		return nil, ErrNoWorkshopFinder
	}
	return resilience.Do(ctx, e.workshopGuard, func(ctx context.Context) ([]string, error) {
		return e.workshops.FindWorkshops(ctx, lat, lng)
	}).Unwrap()
}

// workshopResults fills the short-circuit response with nearby workshops.
// Without a location the response keeps its action and asks for one.
func (e *Engine) workshopResults(ctx context.Context, in TurnInput, resp domain.DiagnosticResponse) domain.DiagnosticResponse {
	if in.Lat == nil || in.Lng == nil {
		resp.Explanation = LocationNeeded
		return resp
	}
	urls, err := e.FindWorkshops(ctx, *in.Lat, *in.Lng)
	if err != nil {
		e.log.Warn("workshop lookup failed", "chat_id", in.ChatID, "err", err)
	}
	if len(urls) == 0 {
		resp.Explanation = WorkshopsNotFound
		return resp
	}
	resp.WorkshopURLs = urls
	return resp
}

// History lists the user's chats, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]domain.ChatOverview, error) {
	if userID == "" {
		return nil, domain.NewValidationError("user_id", "", domain.ErrMissingUserID)
	}
	return e.memory.Store().ListChats(ctx, userID)
}

// Transcript returns every turn of a chat owned by userID.
func (e *Engine) Transcript(ctx context.Context, chatID, userID string) ([]domain.ConversationTurn, error) {
	switch {
	case chatID == "":
		return nil, domain.NewValidationError("chat_id", "", domain.ErrMissingChatID)
	case userID == "":
		return nil, domain.NewValidationError("user_id", "", domain.ErrMissingUserID)
	}
	return e.memory.Store().LoadTranscript(ctx, chatID, userID)
}
