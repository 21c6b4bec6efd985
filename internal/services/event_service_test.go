package services

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/database/testutil"
	"github.com/bsudfrance/bsf-server/internal/models"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
)

type eventFixture struct {
	db     *gorm.DB
	svc    *EventService
	mailer *recordingMailer
	clock  *time.Time
	admin  *models.User
}

func newEventFixture(t *testing.T, opts ...EventOption) *eventFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	mailer := &recordingMailer{}

	f := &eventFixture{db: db, mailer: mailer, clock: &now}

	allOpts := append([]EventOption{
		WithEventClock(func() time.Time { return *f.clock }),
		WithEventMailer(mailer),
	}, opts...)

	svc, err := NewEventService(db, NewAuditService(db), allOpts...)
	require.NoError(t, err)
	f.svc = svc

	f.admin = f.seedUser(t, "admin@example.com", models.RoleAdmin, nil)
	return f
}

func (f *eventFixture) seedUser(t *testing.T, email, role string, memberID *string) *models.User {
	t.Helper()

	user := &models.User{AuthEmail: email, Role: role, IsActive: true, MemberID: memberID}
	require.NoError(t, f.db.Create(user).Error)
	return user
}

func (f *eventFixture) seedMember(t *testing.T, firstname, lastname string) *models.Member {
	t.Helper()

	member := &models.Member{Firstname: firstname, Lastname: lastname}
	require.NoError(t, f.db.Create(member).Error)
	return member
}

func (f *eventFixture) publicEvent(t *testing.T, capacity *int) *models.Event {
	t.Helper()

	event, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:       "Afterwork réseau",
		StartAt:     f.clock.Add(48 * time.Hour),
		Location:    "Montpellier",
		Description: "Rencontre mensuelle",
		Capacity:    capacity,
	})
	require.NoError(t, err)
	return event
}

func TestCreatePublicEvent(t *testing.T) {
	f := newEventFixture(t)

	event := f.publicEvent(t, nil)
	require.Equal(t, models.EventPublished, event.Status)
	require.Equal(t, models.AudiencePublic, event.Audience)
	require.Empty(t, event.Invites)
}

func TestCreateSelectedEventRequiresInvites(t *testing.T) {
	f := newEventFixture(t)

	_, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:       "Comité restreint",
		StartAt:     f.clock.Add(time.Hour),
		Location:    "Nîmes",
		Description: "Réunion",
		Audience:    models.AudienceSelected,
	})
	require.ErrorIs(t, err, appErrors.ErrInvitesRequired)
}

func TestCreateSelectedEventSelfInvite(t *testing.T) {
	f := newEventFixture(t)

	member := f.seedMember(t, "Anne", "Creator")
	creator := f.seedUser(t, "anne@example.com", models.RoleAdmin, &member.ID)
	other := f.seedMember(t, "Paul", "Guest")

	event, err := f.svc.Create(context.Background(), creator, EventInput{
		Title:           "Comité restreint",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{other.ID},
	})
	require.NoError(t, err)
	require.Len(t, event.Invites, 2)

	ids := []string{event.Invites[0].MemberID, event.Invites[1].MemberID}
	require.ElementsMatch(t, []string{member.ID, other.ID}, ids)

	// The self-invited creator attends by default.
	var rsvp models.EventRSVP
	require.NoError(t, f.db.First(&rsvp, "event_id = ? AND user_id = ?", event.ID, creator.ID).Error)
	require.Equal(t, models.RSVPGoing, rsvp.Status)
}

func TestCreateSelectedEventSelfInviteDisabled(t *testing.T) {
	f := newEventFixture(t, WithSelfInviteOnCreate(false))

	member := f.seedMember(t, "Anne", "Creator")
	creator := f.seedUser(t, "anne@example.com", models.RoleAdmin, &member.ID)

	_, err := f.svc.Create(context.Background(), creator, EventInput{
		Title:       "Comité restreint",
		StartAt:     f.clock.Add(time.Hour),
		Location:    "Nîmes",
		Description: "Réunion",
		Audience:    models.AudienceSelected,
	})
	require.ErrorIs(t, err, appErrors.ErrInvitesRequired)
}

func TestUpdateCanceledEvent(t *testing.T) {
	f := newEventFixture(t)
	event := f.publicEvent(t, nil)

	_, err := f.svc.Cancel(context.Background(), f.admin, event.ID)
	require.NoError(t, err)

	_, err = f.svc.Update(context.Background(), f.admin, event.ID, EventInput{
		Title:       "Nouveau titre",
		StartAt:     event.StartAt,
		Location:    event.Location,
		Description: event.Description,
	})
	require.ErrorIs(t, err, appErrors.ErrEventCanceled)
}

func TestUpdateReplacesInviteList(t *testing.T) {
	f := newEventFixture(t)

	first := f.seedMember(t, "Anne", "First")
	second := f.seedMember(t, "Paul", "Second")

	event, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:           "Comité",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{first.ID},
	})
	require.NoError(t, err)

	updated, err := f.svc.Update(context.Background(), f.admin, event.ID, EventInput{
		Title:           event.Title,
		StartAt:         event.StartAt,
		Location:        event.Location,
		Description:     event.Description,
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{second.ID},
	})
	require.NoError(t, err)
	require.Len(t, updated.Invites, 1)
	require.Equal(t, second.ID, updated.Invites[0].MemberID)
}

func TestWritesRequireCreatorOrAdmin(t *testing.T) {
	f := newEventFixture(t)

	creator := f.seedUser(t, "creator@example.com", models.RoleUser, nil)
	other := f.seedUser(t, "other@example.com", models.RoleUser, nil)

	// Any member may publish an event.
	event, err := f.svc.Create(context.Background(), creator, EventInput{
		Title:       "Petit-déjeuner réseau",
		StartAt:     f.clock.Add(24 * time.Hour),
		Location:    "Béziers",
		Description: "Rencontre informelle",
	})
	require.NoError(t, err)

	input := EventInput{
		Title:       "Nouveau titre",
		StartAt:     event.StartAt,
		Location:    event.Location,
		Description: event.Description,
	}

	_, err = f.svc.Update(context.Background(), other, event.ID, input)
	require.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = f.svc.Cancel(context.Background(), other, event.ID)
	require.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = f.svc.Update(context.Background(), creator, event.ID, input)
	require.NoError(t, err)
	_, err = f.svc.Cancel(context.Background(), creator, event.ID)
	require.NoError(t, err)
}

func TestCancelIsTerminal(t *testing.T) {
	f := newEventFixture(t)
	event := f.publicEvent(t, nil)

	canceled, err := f.svc.Cancel(context.Background(), f.admin, event.ID)
	require.NoError(t, err)
	require.Equal(t, models.EventCanceled, canceled.Status)
	require.NotNil(t, canceled.CanceledAt)

	_, err = f.svc.Cancel(context.Background(), f.admin, event.ID)
	require.ErrorIs(t, err, appErrors.ErrAlreadyCanceled)
}

func TestCancelNotifiesAttendeesAndInvitees(t *testing.T) {
	f := newEventFixture(t)

	inviteEmail := "invitee@example.com"
	invited := &models.Member{Firstname: "Claire", Lastname: "Invitee", Email: &inviteEmail}
	require.NoError(t, f.db.Create(invited).Error)

	event, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:           "Comité",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{invited.ID},
	})
	require.NoError(t, err)

	going := f.seedUser(t, "going@example.com", models.RoleAdmin, nil)
	_, err = f.svc.RSVP(context.Background(), going, event.ID, models.RSVPGoing)
	require.NoError(t, err)

	_, err = f.svc.Cancel(context.Background(), f.admin, event.ID)
	require.NoError(t, err)

	var recipients []string
	for _, msg := range f.mailer.messages {
		recipients = append(recipients, msg.To...)
	}
	require.ElementsMatch(t, []string{"going@example.com", inviteEmail}, recipients)
}

func TestRSVPCapacity(t *testing.T) {
	f := newEventFixture(t)
	capacity := 1
	event := f.publicEvent(t, &capacity)

	first := f.seedUser(t, "first@example.com", models.RoleUser, nil)
	second := f.seedUser(t, "second@example.com", models.RoleUser, nil)

	_, err := f.svc.RSVP(context.Background(), first, event.ID, models.RSVPGoing)
	require.NoError(t, err)

	_, err = f.svc.RSVP(context.Background(), second, event.ID, models.RSVPGoing)
	require.ErrorIs(t, err, appErrors.ErrEventFull)

	// NOT_GOING is always accepted, and frees the seat for the other user.
	_, err = f.svc.RSVP(context.Background(), second, event.ID, models.RSVPNotGoing)
	require.NoError(t, err)

	_, err = f.svc.RSVP(context.Background(), first, event.ID, models.RSVPNotGoing)
	require.NoError(t, err)
	_, err = f.svc.RSVP(context.Background(), second, event.ID, models.RSVPGoing)
	require.NoError(t, err)
}

func TestRSVPDoesNotDoubleCountOwnSeat(t *testing.T) {
	f := newEventFixture(t)
	capacity := 1
	event := f.publicEvent(t, &capacity)

	user := f.seedUser(t, "solo@example.com", models.RoleUser, nil)

	_, err := f.svc.RSVP(context.Background(), user, event.ID, models.RSVPGoing)
	require.NoError(t, err)

	// Re-answering GOING keeps the same seat instead of hitting EVENT_FULL.
	rsvp, err := f.svc.RSVP(context.Background(), user, event.ID, models.RSVPGoing)
	require.NoError(t, err)
	require.Equal(t, models.RSVPGoing, rsvp.Status)

	var count int64
	require.NoError(t, f.db.Model(&models.EventRSVP{}).Where("event_id = ?", event.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRSVPKeepsSeatAfterCapacityShrinks(t *testing.T) {
	f := newEventFixture(t)
	capacity := 2
	event := f.publicEvent(t, &capacity)

	first := f.seedUser(t, "first@example.com", models.RoleUser, nil)
	second := f.seedUser(t, "second@example.com", models.RoleUser, nil)
	_, err := f.svc.RSVP(context.Background(), first, event.ID, models.RSVPGoing)
	require.NoError(t, err)
	_, err = f.svc.RSVP(context.Background(), second, event.ID, models.RSVPGoing)
	require.NoError(t, err)

	// Lower capacity below the current headcount; the check only applies
	// to callers without a GOING record, so both keep their seats.
	smaller := 1
	_, err = f.svc.Update(context.Background(), f.admin, event.ID, EventInput{
		Title:       event.Title,
		StartAt:     event.StartAt,
		Location:    event.Location,
		Description: event.Description,
		Capacity:    &smaller,
	})
	require.NoError(t, err)

	rsvp, err := f.svc.RSVP(context.Background(), second, event.ID, models.RSVPGoing)
	require.NoError(t, err)
	require.Equal(t, models.RSVPGoing, rsvp.Status)

	// A newcomer is still turned away.
	third := f.seedUser(t, "third@example.com", models.RoleUser, nil)
	_, err = f.svc.RSVP(context.Background(), third, event.ID, models.RSVPGoing)
	require.ErrorIs(t, err, appErrors.ErrEventFull)
}

func TestRSVPCapacityUnderConcurrency(t *testing.T) {
	db := testutil.MustOpenFileTestDB(t)
	svc, err := NewEventService(db, NewAuditService(db))
	require.NoError(t, err)

	admin := &models.User{AuthEmail: "admin@example.com", Role: models.RoleAdmin, IsActive: true}
	require.NoError(t, db.Create(admin).Error)

	capacity := 3
	event, err := svc.Create(context.Background(), admin, EventInput{
		Title:       "Soirée de gala",
		StartAt:     time.Now().Add(48 * time.Hour),
		Location:    "Montpellier",
		Description: "Places limitées",
		Capacity:    &capacity,
	})
	require.NoError(t, err)

	const contenders = 8
	users := make([]*models.User, contenders)
	for i := range users {
		user := &models.User{AuthEmail: fmt.Sprintf("guest%d@example.com", i), Role: models.RoleUser, IsActive: true}
		require.NoError(t, db.Create(user).Error)
		users[i] = user
	}

	errs := make([]error, contenders)
	var wg sync.WaitGroup
	for i, user := range users {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = svc.RSVP(context.Background(), user, event.ID, models.RSVPGoing)
		}()
	}
	wg.Wait()

	seated := 0
	for _, err := range errs {
		if err == nil {
			seated++
			continue
		}
		require.ErrorIs(t, err, appErrors.ErrEventFull)
	}
	require.Equal(t, capacity, seated)

	var going int64
	require.NoError(t, db.Model(&models.EventRSVP{}).
		Where("event_id = ? AND status = ?", event.ID, models.RSVPGoing).
		Count(&going).Error)
	require.EqualValues(t, capacity, going)
}

func TestRSVPCanceledEvent(t *testing.T) {
	f := newEventFixture(t)
	event := f.publicEvent(t, nil)

	_, err := f.svc.Cancel(context.Background(), f.admin, event.ID)
	require.NoError(t, err)

	user := f.seedUser(t, "late@example.com", models.RoleUser, nil)
	_, err = f.svc.RSVP(context.Background(), user, event.ID, models.RSVPGoing)
	require.ErrorIs(t, err, appErrors.ErrEventCanceled)
}

func TestRSVPSelectedAudienceGate(t *testing.T) {
	f := newEventFixture(t)

	invitedMember := f.seedMember(t, "Anne", "Invited")
	invitedUser := f.seedUser(t, "invited@example.com", models.RoleUser, &invitedMember.ID)
	outsider := f.seedUser(t, "outsider@example.com", models.RoleUser, nil)

	event, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:           "Comité",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{invitedMember.ID},
	})
	require.NoError(t, err)

	_, err = f.svc.RSVP(context.Background(), outsider, event.ID, models.RSVPGoing)
	require.ErrorIs(t, err, appErrors.ErrNotInvited)

	_, err = f.svc.RSVP(context.Background(), invitedUser, event.ID, models.RSVPGoing)
	require.NoError(t, err)
}

func TestGetInviteListVisibility(t *testing.T) {
	f := newEventFixture(t)

	invitedMember := f.seedMember(t, "Anne", "Invited")
	invitedUser := f.seedUser(t, "invited@example.com", models.RoleUser, &invitedMember.ID)
	outsider := f.seedUser(t, "outsider@example.com", models.RoleUser, nil)

	event, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:           "Comité",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{invitedMember.ID},
	})
	require.NoError(t, err)

	asAdmin, err := f.svc.Get(context.Background(), f.admin, event.ID)
	require.NoError(t, err)
	require.Len(t, asAdmin.Invites, 1)

	// Invited members see who else is on the list.
	asInvited, err := f.svc.Get(context.Background(), invitedUser, event.ID)
	require.NoError(t, err)
	require.Len(t, asInvited.Invites, 1)
	require.Equal(t, invitedMember.ID, asInvited.Invites[0].MemberID)

	// Everyone else still reads the event, just without the list.
	asOutsider, err := f.svc.Get(context.Background(), outsider, event.ID)
	require.NoError(t, err)
	require.Equal(t, event.ID, asOutsider.ID)
	require.Empty(t, asOutsider.Invites)
}

func TestListVisibility(t *testing.T) {
	f := newEventFixture(t)

	f.publicEvent(t, nil)

	invitedMember := f.seedMember(t, "Anne", "Invited")
	invitedUser := f.seedUser(t, "invited@example.com", models.RoleUser, &invitedMember.ID)
	outsider := f.seedUser(t, "outsider@example.com", models.RoleUser, nil)

	_, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:           "Comité",
		StartAt:         f.clock.Add(time.Hour),
		Location:        "Nîmes",
		Description:     "Réunion",
		Audience:        models.AudienceSelected,
		InviteMemberIDs: []string{invitedMember.ID},
	})
	require.NoError(t, err)

	asAdmin, err := f.svc.List(context.Background(), f.admin, EventFilters{})
	require.NoError(t, err)
	require.Len(t, asAdmin, 2)

	asInvited, err := f.svc.List(context.Background(), invitedUser, EventFilters{})
	require.NoError(t, err)
	require.Len(t, asInvited, 2)

	asOutsider, err := f.svc.List(context.Background(), outsider, EventFilters{})
	require.NoError(t, err)
	require.Len(t, asOutsider, 1)
	require.Equal(t, models.AudiencePublic, asOutsider[0].Audience)
}

func TestListTimeWindows(t *testing.T) {
	f := newEventFixture(t)

	f.publicEvent(t, nil)

	past, err := f.svc.Create(context.Background(), f.admin, EventInput{
		Title:       "Rétrospective",
		StartAt:     f.clock.Add(-24 * time.Hour),
		Location:    "Montpellier",
		Description: "Bilan annuel",
	})
	require.NoError(t, err)

	upcoming, err := f.svc.List(context.Background(), f.admin, EventFilters{Upcoming: true})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	require.NotEqual(t, past.ID, upcoming[0].ID)

	previous, err := f.svc.List(context.Background(), f.admin, EventFilters{Past: true})
	require.NoError(t, err)
	require.Len(t, previous, 1)
	require.Equal(t, past.ID, previous[0].ID)
}
