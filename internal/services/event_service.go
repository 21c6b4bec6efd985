package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bsudfrance/bsf-server/internal/models"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
	"github.com/bsudfrance/bsf-server/pkg/logger"
	"github.com/bsudfrance/bsf-server/pkg/mail"
	"github.com/bsudfrance/bsf-server/pkg/metrics"
)

// Audit actions recorded by the event service.
const (
	auditEventCreated  = "EVENT_CREATED"
	auditEventUpdated  = "EVENT_UPDATED"
	auditEventCanceled = "EVENT_CANCELED"
)

// EventOption customises EventService behaviour.
type EventOption func(*EventService)

// WithEventClock injects a custom clock primarily for testing.
func WithEventClock(clock func() time.Time) EventOption {
	return func(s *EventService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithEventMailer wires best-effort cancellation notices to attendees.
func WithEventMailer(mailer mail.Mailer) EventOption {
	return func(s *EventService) {
		s.mailer = mailer
	}
}

// WithSelfInviteOnCreate controls whether the creator's own member profile is
// added to the invite list of a SELECTED event automatically.
func WithSelfInviteOnCreate(enabled bool) EventOption {
	return func(s *EventService) {
		s.selfInvite = enabled
	}
}

// EventService manages events, their audience lists and attendance.
type EventService struct {
	db         *gorm.DB
	audit      *AuditService
	mailer     mail.Mailer
	selfInvite bool
	now        func() time.Time
}

// NewEventService constructs an EventService. Self-invite on create defaults
// to enabled.
func NewEventService(db *gorm.DB, audit *AuditService, opts ...EventOption) (*EventService, error) {
	if db == nil {
		return nil, errors.New("event service: db is required")
	}

	service := &EventService{
		db:         db,
		audit:      audit,
		selfInvite: true,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// EventInput carries the writable fields of an event.
type EventInput struct {
	Title           string    `json:"title" validate:"required"`
	Type            *string   `json:"type" validate:"omitempty,max=120"`
	StartAt         time.Time `json:"start_at" validate:"required"`
	Location        string    `json:"location" validate:"required"`
	Description     string    `json:"description" validate:"required"`
	Capacity        *int      `json:"capacity" validate:"omitempty,min=1"`
	Audience        string    `json:"audience" validate:"omitempty,oneof=PUBLIC SELECTED"`
	InviteMemberIDs []string  `json:"invite_member_ids" validate:"omitempty,dive,uuid"`
}

// Create publishes a new event. A SELECTED audience must come with at least
// one invited member; the creator's own profile is appended when self-invite
// is enabled.
func (s *EventService) Create(ctx context.Context, actor *models.User, input EventInput) (*models.Event, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	audience := input.Audience
	if audience == "" {
		audience = models.AudiencePublic
	}

	inviteIDs := normaliseIDs(input.InviteMemberIDs)
	if audience == models.AudienceSelected {
		if s.selfInvite && actor.MemberID != nil {
			inviteIDs = appendUniqueID(inviteIDs, *actor.MemberID)
		}
		if len(inviteIDs) == 0 {
			return nil, appErrors.ErrInvitesRequired
		}
	} else {
		inviteIDs = nil
	}

	event := &models.Event{
		CreatedByUserID: actor.ID,
		Title:           input.Title,
		Type:            input.Type,
		StartAt:         input.StartAt,
		Location:        input.Location,
		Description:     input.Description,
		Capacity:        input.Capacity,
		Status:          models.EventPublished,
		Audience:        audience,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(event).Error; err != nil {
			return fmt.Errorf("create event: %w", err)
		}
		if err := s.replaceInvites(tx, event.ID, actor.ID, inviteIDs); err != nil {
			return err
		}
		// A self-invited creator is attending by default.
		if audience == models.AudienceSelected && s.selfInvite && actor.MemberID != nil {
			rsvp := &models.EventRSVP{EventID: event.ID, UserID: actor.ID, Status: models.RSVPGoing, RSVPAt: s.now()}
			if err := tx.Create(rsvp).Error; err != nil {
				return fmt.Errorf("create creator rsvp: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("event service: create: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditEventCreated,
			Metadata:    map[string]any{"event_id": event.ID, "title": event.Title, "audience": audience},
		})
	}

	return s.Get(ctx, actor, event.ID)
}

// Update rewrites an event's fields and, for SELECTED events, replaces the
// invite list wholesale. Only admins and the creator may write; canceled
// events are immutable.
func (s *EventService) Update(ctx context.Context, actor *models.User, eventID string, input EventInput) (*models.Event, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	event, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && event.CreatedByUserID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if event.Canceled() {
		return nil, appErrors.ErrEventCanceled
	}

	audience := input.Audience
	if audience == "" {
		audience = event.Audience
	}

	inviteIDs := normaliseIDs(input.InviteMemberIDs)
	if audience == models.AudienceSelected {
		if len(inviteIDs) == 0 {
			return nil, appErrors.ErrInvitesRequired
		}
	} else {
		inviteIDs = nil
	}

	updates := map[string]any{
		"title":       input.Title,
		"type":        input.Type,
		"start_at":    input.StartAt,
		"location":    input.Location,
		"description": input.Description,
		"capacity":    input.Capacity,
		"audience":    audience,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Event{}).Where("id = ?", event.ID).Updates(updates).Error; err != nil {
			return fmt.Errorf("update event: %w", err)
		}
		if err := tx.Where("event_id = ?", event.ID).Delete(&models.EventInvite{}).Error; err != nil {
			return fmt.Errorf("clear invites: %w", err)
		}
		return s.replaceInvites(tx, event.ID, actor.ID, inviteIDs)
	})
	if err != nil {
		return nil, fmt.Errorf("event service: update: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditEventUpdated,
			Metadata:    map[string]any{"event_id": event.ID},
		})
	}

	return s.Get(ctx, actor, event.ID)
}

// Cancel moves an event to its terminal state and notifies attending users
// best-effort. Only admins and the creator may cancel.
func (s *EventService) Cancel(ctx context.Context, actor *models.User, eventID string) (*models.Event, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	event, err := s.find(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && event.CreatedByUserID != actor.ID {
		return nil, appErrors.ErrForbidden
	}
	if event.Canceled() {
		return nil, appErrors.ErrAlreadyCanceled
	}

	now := s.now()
	if err := s.db.WithContext(ctx).Model(&models.Event{}).Where("id = ?", event.ID).Updates(map[string]any{
		"status":      models.EventCanceled,
		"canceled_at": now,
	}).Error; err != nil {
		return nil, fmt.Errorf("event service: cancel: %w", err)
	}
	event.Status = models.EventCanceled
	event.CanceledAt = &now

	s.notifyCancellation(ctx, event)

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditEventCanceled,
			Metadata:    map[string]any{"event_id": event.ID, "title": event.Title},
		})
	}

	return event, nil
}

// RSVP records or replaces the caller's attendance decision. Capacity is
// enforced inside the transaction so two concurrent GOING answers cannot both
// claim the last seat.
func (s *EventService) RSVP(ctx context.Context, user *models.User, eventID, status string) (*models.EventRSVP, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if status != models.RSVPGoing && status != models.RSVPNotGoing {
		return nil, appErrors.NewBadRequest("unknown rsvp status")
	}

	now := s.now()
	var rsvp models.EventRSVP

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		// Postgres and MySQL take a row lock; sqlite serialises the whole
		// write transaction and rejects FOR UPDATE.
		if tx.Dialector.Name() != "sqlite" {
			query = tx.Clauses(clause.Locking{Strength: "UPDATE"})
		}

		var event models.Event
		err := query.Take(&event, "id = ?", eventID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("find event: %w", err)
		}

		if event.Canceled() {
			return appErrors.ErrEventCanceled
		}
		if err := s.checkInvited(tx, &event, user); err != nil {
			return err
		}

		err = tx.Where("event_id = ? AND user_id = ?", event.ID, user.ID).Take(&rsvp).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find rsvp: %w", err)
		}
		hasRow := err == nil

		// A caller already counted as GOING keeps their seat, even when the
		// capacity has since been lowered below the current headcount.
		if status == models.RSVPGoing && event.Capacity != nil && !(hasRow && rsvp.Status == models.RSVPGoing) {
			var going int64
			if err := tx.Model(&models.EventRSVP{}).
				Where("event_id = ? AND status = ? AND user_id <> ?", event.ID, models.RSVPGoing, user.ID).
				Count(&going).Error; err != nil {
				return fmt.Errorf("count attendance: %w", err)
			}
			if going >= int64(*event.Capacity) {
				return appErrors.ErrEventFull
			}
		}

		if !hasRow {
			rsvp = models.EventRSVP{EventID: event.ID, UserID: user.ID, Status: status, RSVPAt: now}
			if err := tx.Create(&rsvp).Error; err != nil {
				return fmt.Errorf("create rsvp: %w", err)
			}
			return nil
		}
		if err := tx.Model(&rsvp).Updates(map[string]any{
			"status":  status,
			"rsvp_at": now,
		}).Error; err != nil {
			return fmt.Errorf("update rsvp: %w", err)
		}
		rsvp.Status = status
		rsvp.RSVPAt = now
		return nil
	})
	if err != nil {
		if appErr := (*appErrors.AppError)(nil); errors.As(err, &appErr) {
			return nil, err
		}
		return nil, fmt.Errorf("event service: rsvp: %w", err)
	}

	outcome := "going"
	if status == models.RSVPNotGoing {
		outcome = "not_going"
	}
	metrics.RSVPDecisions.WithLabelValues(outcome).Inc()

	return &rsvp, nil
}

// Get returns an event with its RSVP list. The invite list is attached for
// PUBLIC events, invited members, admins and the creator; a non-invited reader
// still gets the event, just without the list.
func (s *EventService) Get(ctx context.Context, user *models.User, eventID string) (*models.Event, error) {
	ctx = ensureContext(ctx)

	var event models.Event
	err := s.db.WithContext(ctx).
		Preload("RSVPs").
		Preload("RSVPs.User").
		Take(&event, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event service: find event: %w", err)
	}

	if user != nil {
		canSeeInvites := event.Audience != models.AudienceSelected
		if !canSeeInvites {
			switch err := s.checkInvited(s.db.WithContext(ctx), &event, user); {
			case err == nil:
				canSeeInvites = true
			case !errors.Is(err, appErrors.ErrNotInvited):
				return nil, err
			}
		}
		if canSeeInvites {
			if err := s.db.WithContext(ctx).
				Preload("Member").
				Where("event_id = ?", event.ID).
				Find(&event.Invites).Error; err != nil {
				return nil, fmt.Errorf("event service: load invites: %w", err)
			}
		}
	}

	return &event, nil
}

// EventFilters narrow List results by time window.
type EventFilters struct {
	Upcoming bool
	Past     bool
}

// List returns the events visible to the user: every PUBLIC event plus the
// SELECTED events whose invite list includes their member profile. Admins see
// everything.
func (s *EventService) List(ctx context.Context, user *models.User, filters EventFilters) ([]models.Event, error) {
	ctx = ensureContext(ctx)
	if user == nil {
		return nil, appErrors.ErrUnauthorized
	}

	query := s.db.WithContext(ctx).Model(&models.Event{})
	if !user.IsAdmin() {
		memberID := ""
		if user.MemberID != nil {
			memberID = *user.MemberID
		}
		query = query.Where(
			"audience = ? OR id IN (?)",
			models.AudiencePublic,
			s.db.Model(&models.EventInvite{}).Select("event_id").Where("member_id = ?", memberID),
		)
	}

	now := s.now()
	if filters.Upcoming {
		query = query.Where("start_at >= ?", now)
	}
	if filters.Past {
		query = query.Where("start_at < ?", now)
	}

	var events []models.Event
	if err := query.Order("start_at ASC").Find(&events).Error; err != nil {
		return nil, fmt.Errorf("event service: list events: %w", err)
	}
	return events, nil
}

func (s *EventService) find(ctx context.Context, eventID string) (*models.Event, error) {
	var event models.Event
	err := s.db.WithContext(ctx).Take(&event, "id = ?", eventID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("event service: find event: %w", err)
	}
	return &event, nil
}

// checkInvited enforces the SELECTED audience gate. Admins and the creator
// pass unconditionally.
func (s *EventService) checkInvited(tx *gorm.DB, event *models.Event, user *models.User) error {
	if event.Audience != models.AudienceSelected {
		return nil
	}
	if user.IsAdmin() || user.ID == event.CreatedByUserID {
		return nil
	}
	if user.MemberID == nil {
		return appErrors.ErrNotInvited
	}

	var invited int64
	if err := tx.Model(&models.EventInvite{}).
		Where("event_id = ? AND member_id = ?", event.ID, *user.MemberID).
		Count(&invited).Error; err != nil {
		return fmt.Errorf("check invite: %w", err)
	}
	if invited == 0 {
		return appErrors.ErrNotInvited
	}
	return nil
}

func (s *EventService) replaceInvites(tx *gorm.DB, eventID, invitedByUserID string, memberIDs []string) error {
	for _, memberID := range memberIDs {
		var member models.Member
		if err := tx.Take(&member, "id = ?", memberID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return appErrors.NewBadRequest(fmt.Sprintf("unknown member %s", memberID))
			}
			return fmt.Errorf("find member: %w", err)
		}
		invite := models.EventInvite{
			EventID:         eventID,
			MemberID:        memberID,
			InvitedByUserID: invitedByUserID,
		}
		if err := tx.Create(&invite).Error; err != nil {
			return fmt.Errorf("create invite: %w", err)
		}
	}
	return nil
}

// notifyCancellation emails everyone who answered the RSVP plus, for SELECTED
// events, every invited member with an email. A failed send is logged, never
// surfaced.
func (s *EventService) notifyCancellation(ctx context.Context, event *models.Event) {
	if s.mailer == nil {
		return
	}

	recipients := make(map[string]struct{})

	var rsvps []models.EventRSVP
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("event_id = ?", event.ID).
		Find(&rsvps).Error; err != nil {
		logger.WithModule("events").Warn("load attendees for cancellation notice", zap.Error(err))
		return
	}
	for _, rsvp := range rsvps {
		if rsvp.User != nil && rsvp.User.AuthEmail != "" {
			recipients[rsvp.User.AuthEmail] = struct{}{}
		}
	}

	var invites []models.EventInvite
	if err := s.db.WithContext(ctx).
		Preload("Member").
		Where("event_id = ?", event.ID).
		Find(&invites).Error; err != nil {
		logger.WithModule("events").Warn("load invitees for cancellation notice", zap.Error(err))
		return
	}
	for _, invite := range invites {
		if invite.Member != nil && invite.Member.Email != nil && *invite.Member.Email != "" {
			recipients[*invite.Member.Email] = struct{}{}
		}
	}

	for email := range recipients {
		msg := mail.Message{
			To:      []string{email},
			Subject: fmt.Sprintf("Événement annulé : %s", event.Title),
			Text: fmt.Sprintf(
				"Bonjour,\n\nL'événement « %s » prévu le %s a été annulé.\n\nBusiness Sud de France",
				event.Title, event.StartAt.Format("02/01/2006 15:04"),
			),
		}
		err := s.mailer.Send(ctx, msg)
		switch {
		case errors.Is(err, mail.ErrSMTPDisabled):
			return
		case err != nil:
			metrics.EmailsSent.WithLabelValues("failure").Inc()
			logger.WithModule("events").Warn("send cancellation notice",
				zap.String("email", email), zap.Error(err))
		default:
			metrics.EmailsSent.WithLabelValues("success").Inc()
		}
	}
}

func appendUniqueID(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
