package report

import (
	"context"
	"fmt"
	"log"
	"strings"

	"tradedesk/internal/model"
	"tradedesk/internal/notification"
)

// TicketCategories are the accepted support ticket categories.
var TicketCategories = []string{"general", "account", "trading", "market_data", "billing", "bug"}

const (
	maxSubjectLen = 200
	maxMessageLen = 5000
)

// TicketInput is a new support request.
type TicketInput struct {
	Subject  string `json:"subject"`
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Support stores tickets and forwards them to the notifier chain.
type Support struct {
	store    model.SettingsStore
	notifier notification.Notifier
}

// NewSupport wires ticket handling. notifier may be nil.
func NewSupport(store model.SettingsStore, notifier notification.Notifier) *Support {
	return &Support{store: store, notifier: notifier}
}

func validCategory(c string) bool {
	for _, v := range TicketCategories {
		if v == c {
			return true
		}
	}
	return false
}

// Submit validates and stores a ticket. Notification failures are logged;
// the ticket is kept either way.
func (s *Support) Submit(ctx context.Context, user *model.User, in TicketInput) (*model.SupportTicket, error) {
	in.Subject = strings.TrimSpace(in.Subject)
	in.Message = strings.TrimSpace(in.Message)
	in.Category = strings.ToLower(strings.TrimSpace(in.Category))
	if in.Category == "" {
		in.Category = "general"
	}

	var errs []string
	switch {
	case in.Subject == "":
		errs = append(errs, "Subject is required")
	case len(in.Subject) > maxSubjectLen:
		errs = append(errs, fmt.Sprintf("Subject must be at most %d characters", maxSubjectLen))
	}
	switch {
	case in.Message == "":
		errs = append(errs, "Message is required")
	case len(in.Message) > maxMessageLen:
		errs = append(errs, fmt.Sprintf("Message must be at most %d characters", maxMessageLen))
	}
	if !validCategory(in.Category) {
		errs = append(errs, fmt.Sprintf("Category must be one of: %s", strings.Join(TicketCategories, ", ")))
	}
	if len(errs) > 0 {
		return nil, model.Invalid(errs...)
	}

	t := &model.SupportTicket{UserID: user.ID, Subject: in.Subject, Category: in.Category, Message: in.Message}
	if err := s.store.CreateTicket(ctx, t); err != nil {
		return nil, err
	}

	if s.notifier != nil {
		msg := notification.Message{
			Level:  notification.LevelInfo,
			Title:  fmt.Sprintf("Support ticket #%d: %s", t.ID, t.Subject),
			Body:   t.Message,
			UserID: user.ID,
			Fields: map[string]any{"category": t.Category, "email": user.Email},
		}
		if err := s.notifier.Send(ctx, msg); err != nil {
			log.Printf("[support] ticket %d notification failed: %v", t.ID, err)
		}
	}
	return t, nil
}

// List returns the user's tickets, newest first.
func (s *Support) List(ctx context.Context, userID int64) ([]model.SupportTicket, error) {
	ts, err := s.store.ListTickets(ctx, userID)
	if ts == nil && err == nil {
		ts = []model.SupportTicket{}
	}
	return ts, err
}
