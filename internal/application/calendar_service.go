package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"
)

const (
	// DefaultCalendarName is the name of the calendar bootstrapped for new users.
	DefaultCalendarName = "My Calendar"
	// DefaultCalendarColor is used when a calendar is created without a color.
	DefaultCalendarColor = "#4285F4"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// CalendarRepository captures the persistence operations needed for calendars.
type CalendarRepository interface {
	CreateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	// CreateCalendarIfNoneOwned inserts calendar only when its owner is not a
	// member of any calendar yet. The boolean reports whether it was inserted.
	CreateCalendarIfNoneOwned(ctx context.Context, calendar Calendar) (Calendar, bool, error)
	UpdateCalendar(ctx context.Context, calendar Calendar) (Calendar, error)
	GetCalendar(ctx context.Context, id string) (Calendar, error)
	DeleteCalendar(ctx context.Context, id string) error
	ListCalendarsByMember(ctx context.Context, userID string) ([]Calendar, error)
	ListCalendarsBySharedEmail(ctx context.Context, email string) ([]Calendar, error)
	WatchCalendarsByMember(ctx context.Context, userID string, fn func(CalendarSnapshot)) (cancel func())
}

// ShareInvitation describes an outgoing "calendar shared" e-mail.
type ShareInvitation struct {
	CalendarID     string
	CalendarName   string
	SharerName     string
	SharerEmail    string
	RecipientEmail string
}

// Inviter delivers share invitations outside the application, e.g. by e-mail.
type Inviter interface {
	SendShareInvitation(ctx context.Context, invitation ShareInvitation) error
}

// CalendarService orchestrates validation, authorization and persistence for
// calendars and their sharing lists.
type CalendarService struct {
	calendars   CalendarRepository
	notifier    Notifier
	inviter     Inviter
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewCalendarService wires dependencies for the calendar service. notifier
// and inviter are optional.
func NewCalendarService(calendars CalendarRepository, notifier Notifier, inviter Inviter, idGenerator func() string, now func() time.Time) *CalendarService {
	return NewCalendarServiceWithLogger(calendars, notifier, inviter, idGenerator, now, nil)
}

// NewCalendarServiceWithLogger wires dependencies with a specific logger.
func NewCalendarServiceWithLogger(calendars CalendarRepository, notifier Notifier, inviter Inviter, idGenerator func() string, now func() time.Time, logger *slog.Logger) *CalendarService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &CalendarService{
		calendars:   calendars,
		notifier:    notifier,
		inviter:     inviter,
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *CalendarService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "CalendarService", operation, attrs...)
}

// CreateCalendar validates input and stores a new calendar owned by the caller.
func (s *CalendarService) CreateCalendar(ctx context.Context, params CreateCalendarParams) (created Calendar, err error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	logger := s.loggerWith(ctx, "CreateCalendar", "user_id", params.Identity.UID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create calendar", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "calendar created", "calendar_id", created.ID)
	}()

	if params.Identity.UID == "" {
		return Calendar{}, ErrUnauthorized
	}
	input := normalizeCalendarInput(params.Input)
	if vErr := validateCalendarInput(input); vErr.HasErrors() {
		return Calendar{}, vErr
	}

	calendar := newOwnedCalendar(s.idGenerator(), params.Identity, input)
	calendar.CreatedAt = s.now()
	calendar.UpdatedAt = calendar.CreatedAt

	created, err = s.calendars.CreateCalendar(ctx, calendar)
	if err != nil {
		return Calendar{}, err
	}
	if created.IsDefault {
		if err = s.clearOtherDefaults(ctx, params.Identity.UID, created.ID); err != nil {
			return Calendar{}, err
		}
	}
	return created, nil
}

// UpdateCalendar changes the name, color or default flag of a calendar the caller owns.
func (s *CalendarService) UpdateCalendar(ctx context.Context, params UpdateCalendarParams) (updated Calendar, err error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	logger := s.loggerWith(ctx, "UpdateCalendar", "user_id", params.Identity.UID, "calendar_id", params.CalendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update calendar", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "calendar updated")
	}()

	existing, err := s.ownedCalendar(ctx, params.Identity, params.CalendarID)
	if err != nil {
		return Calendar{}, err
	}
	input := normalizeCalendarInput(params.Input)
	if vErr := validateCalendarInput(input); vErr.HasErrors() {
		return Calendar{}, vErr
	}

	existing.Name = input.Name
	existing.Color = input.Color
	existing.IsDefault = input.IsDefault
	existing.UpdatedAt = s.now()

	updated, err = s.calendars.UpdateCalendar(ctx, existing)
	if err != nil {
		return Calendar{}, err
	}
	if updated.IsDefault {
		if err = s.clearOtherDefaults(ctx, params.Identity.UID, updated.ID); err != nil {
			return Calendar{}, err
		}
	}
	return updated, nil
}

// DeleteCalendar removes a calendar the caller owns together with its events.
// Default calendars and the caller's only calendar are kept.
func (s *CalendarService) DeleteCalendar(ctx context.Context, identity Identity, calendarID string) (err error) {
	if s == nil || s.calendars == nil {
		return fmt.Errorf("calendar repository not configured")
	}
	logger := s.loggerWith(ctx, "DeleteCalendar", "user_id", identity.UID, "calendar_id", calendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete calendar", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "calendar deleted")
	}()

	calendar, err := s.ownedCalendar(ctx, identity, calendarID)
	if err != nil {
		return err
	}
	if calendar.IsDefault {
		return ErrDefaultCalendar
	}
	owned, err := s.calendars.ListCalendarsByMember(ctx, identity.UID)
	if err != nil {
		return err
	}
	if countOwned(owned, identity.UID) <= 1 {
		return ErrLastCalendar
	}
	return s.calendars.DeleteCalendar(ctx, calendarID)
}

// GetCalendar returns a calendar the caller owns or that was shared with them.
func (s *CalendarService) GetCalendar(ctx context.Context, identity Identity, calendarID string) (Calendar, error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	calendar, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		return Calendar{}, err
	}
	if !CanAccess(calendar, identity) {
		return Calendar{}, ErrNotFound
	}
	return calendar, nil
}

// ShareCalendar adds every email in params to both the shared list and the
// members of the calendar, then notifies and invites the recipients. Either
// all emails are accepted or none are written.
func (s *CalendarService) ShareCalendar(ctx context.Context, params ShareCalendarParams) (updated Calendar, err error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	logger := s.loggerWith(ctx, "ShareCalendar", "user_id", params.Identity.UID, "calendar_id", params.CalendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to share calendar", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "calendar shared", "recipients", len(params.Emails))
	}()

	calendar, err := s.ownedCalendar(ctx, params.Identity, params.CalendarID)
	if err != nil {
		return Calendar{}, err
	}

	emails, vErr := validateShareEmails(calendar, params.Identity, params.Emails)
	if vErr.HasErrors() {
		return Calendar{}, vErr
	}

	for _, email := range emails {
		calendar.SharedEmails = append(calendar.SharedEmails, email)
		if !containsString(calendar.Members, email) {
			calendar.Members = append(calendar.Members, email)
		}
	}
	calendar.OwnerEmail = firstNonEmpty(calendar.OwnerEmail, params.Identity.Email)
	calendar.OwnerName = firstNonEmpty(calendar.OwnerName, ownerDisplayName(params.Identity))
	calendar.UpdatedAt = s.now()

	updated, err = s.calendars.UpdateCalendar(ctx, calendar)
	if err != nil {
		return Calendar{}, err
	}

	for _, email := range emails {
		s.announceShare(ctx, logger, params.Identity, updated, email)
	}
	return updated, nil
}

// announceShare notifies and invites one recipient. Failures are logged only;
// the share itself already succeeded.
func (s *CalendarService) announceShare(ctx context.Context, logger *slog.Logger, sharer Identity, calendar Calendar, email string) {
	if s.notifier != nil {
		if _, err := s.notifier.NotifyCalendarShared(ctx, sharer, email, calendar.Name); err != nil {
			logger.WarnContext(ctx, "failed to notify share recipient", "recipient", email, "error", err, errorKindAttr(err))
		}
	}
	if s.inviter != nil {
		invitation := ShareInvitation{
			CalendarID:     calendar.ID,
			CalendarName:   calendar.Name,
			SharerName:     sharerLabel(sharer),
			SharerEmail:    sharer.Email,
			RecipientEmail: email,
		}
		if err := s.inviter.SendShareInvitation(ctx, invitation); err != nil {
			logger.WarnContext(ctx, "failed to send share invitation", "recipient", email, "error", err, errorKindAttr(err))
		}
	}
}

// UnshareCalendar removes an email from both the shared list and the members
// of a calendar the caller owns.
func (s *CalendarService) UnshareCalendar(ctx context.Context, params UnshareCalendarParams) (updated Calendar, err error) {
	if s == nil || s.calendars == nil {
		return Calendar{}, fmt.Errorf("calendar repository not configured")
	}
	email := normalizeEmail(params.Email)
	logger := s.loggerWith(ctx, "UnshareCalendar", "user_id", params.Identity.UID, "calendar_id", params.CalendarID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to unshare calendar", "error", err, errorKindAttr(err))
			return
		}
		logger.InfoContext(ctx, "calendar unshared")
	}()

	calendar, err := s.ownedCalendar(ctx, params.Identity, params.CalendarID)
	if err != nil {
		return Calendar{}, err
	}
	if !containsFold(calendar.SharedEmails, email) {
		return Calendar{}, newFieldError("email", "Calendar is not shared with this email")
	}

	calendar.SharedEmails = removeFold(calendar.SharedEmails, email)
	calendar.Members = removeFold(calendar.Members, email)
	calendar.UpdatedAt = s.now()
	return s.calendars.UpdateCalendar(ctx, calendar)
}

func (s *CalendarService) ownedCalendar(ctx context.Context, identity Identity, calendarID string) (Calendar, error) {
	if identity.UID == "" {
		return Calendar{}, ErrUnauthorized
	}
	calendar, err := s.calendars.GetCalendar(ctx, calendarID)
	if err != nil {
		return Calendar{}, err
	}
	if !calendar.OwnedBy(identity.UID) {
		if CanAccess(calendar, identity) {
			return Calendar{}, ErrUnauthorized
		}
		return Calendar{}, ErrNotFound
	}
	return calendar, nil
}

// clearOtherDefaults keeps at most one default calendar per owner.
func (s *CalendarService) clearOtherDefaults(ctx context.Context, ownerID, keepID string) error {
	owned, err := s.calendars.ListCalendarsByMember(ctx, ownerID)
	if err != nil {
		return err
	}
	for _, calendar := range owned {
		if calendar.ID == keepID || !calendar.IsDefault || !calendar.OwnedBy(ownerID) {
			continue
		}
		calendar.IsDefault = false
		calendar.UpdatedAt = s.now()
		if _, err := s.calendars.UpdateCalendar(ctx, calendar); err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return nil
}

// CanAccess reports whether identity may read the calendar: it owns it, is a
// member by uid, or the calendar was shared with its email.
func CanAccess(calendar Calendar, identity Identity) bool {
	if identity.UID == "" {
		return false
	}
	if calendar.OwnedBy(identity.UID) || containsString(calendar.Members, identity.UID) {
		return true
	}
	email := normalizeEmail(identity.Email)
	return email != "" && containsFold(calendar.SharedEmails, email)
}

func newOwnedCalendar(id string, owner Identity, input CalendarInput) Calendar {
	return Calendar{
		ID:           id,
		Name:         input.Name,
		Color:        input.Color,
		OwnerID:      owner.UID,
		OwnerEmail:   owner.Email,
		OwnerName:    ownerDisplayName(owner),
		IsDefault:    input.IsDefault,
		Members:      []string{owner.UID},
		SharedEmails: []string{},
	}
}

func normalizeCalendarInput(input CalendarInput) CalendarInput {
	input.Name = strings.TrimSpace(input.Name)
	input.Color = strings.TrimSpace(input.Color)
	if input.Color == "" {
		input.Color = DefaultCalendarColor
	}
	return input
}

func validateCalendarInput(input CalendarInput) *ValidationError {
	vErr := &ValidationError{}
	if input.Name == "" {
		vErr.add("name", "Please enter a calendar name")
	}
	return vErr
}

func validateShareEmails(calendar Calendar, sharer Identity, raw []string) ([]string, *ValidationError) {
	vErr := &ValidationError{}
	if len(raw) == 0 {
		vErr.add("email", "Please enter an email address")
		return nil, vErr
	}
	var emails []string
	for _, candidate := range raw {
		email := normalizeEmail(candidate)
		switch {
		case email == "":
			vErr.add("email", "Please enter an email address")
		case !emailPattern.MatchString(email):
			vErr.add("email", "Please enter a valid email address")
		case containsFold(calendar.SharedEmails, email), containsString(emails, email):
			vErr.add("email", "Calendar already shared with this email")
		case email == normalizeEmail(sharer.Email):
			vErr.add("email", "You already own this calendar")
		default:
			emails = append(emails, email)
		}
	}
	return emails, vErr
}

func countOwned(calendars []Calendar, uid string) int {
	n := 0
	for _, c := range calendars {
		if c.OwnedBy(uid) {
			n++
		}
	}
	return n
}

func ownerDisplayName(identity Identity) string {
	if name := strings.TrimSpace(identity.DisplayName); name != "" {
		return name
	}
	if local, _, ok := strings.Cut(identity.Email, "@"); ok {
		return local
	}
	return identity.Email
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func containsString(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}

func containsFold(values []string, target string) bool {
	for _, v := range values {
		if strings.EqualFold(v, target) {
			return true
		}
	}
	return false
}

func removeFold(values []string, target string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !strings.EqualFold(v, target) {
			out = append(out, v)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
