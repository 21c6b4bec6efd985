package services

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"gorm.io/gorm"

	"github.com/bsudfrance/bsf-server/internal/models"
	appErrors "github.com/bsudfrance/bsf-server/pkg/errors"
)

// Audit actions recorded by the member service.
const (
	auditMemberCreated  = "MEMBER_CREATED"
	auditMemberUpdated  = "MEMBER_UPDATED"
	auditMembersImports = "MEMBERS_IMPORTED"
)

// MemberService manages the directory of member profiles, including bulk
// import from CSV exports of the previous tool.
type MemberService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewMemberService constructs a MemberService.
func NewMemberService(db *gorm.DB, audit *AuditService) (*MemberService, error) {
	if db == nil {
		return nil, errors.New("member service: db is required")
	}
	return &MemberService{db: db, audit: audit}, nil
}

// MemberInput carries the writable fields of a directory profile.
type MemberInput struct {
	Firstname           string  `json:"firstname" validate:"required"`
	Lastname            string  `json:"lastname" validate:"required"`
	Company             string  `json:"company" validate:"omitempty,max=200"`
	Email               *string `json:"email" validate:"omitempty,email"`
	Phone               string  `json:"phone" validate:"omitempty,max=40"`
	ConsentShareContact *bool   `json:"consent_share_contact"`
	ConsentShareHobbies *bool   `json:"consent_share_hobbies"`
}

// Create adds a profile to the directory. Email, when present, must be unique.
func (s *MemberService) Create(ctx context.Context, actor *models.User, input MemberInput) (*models.Member, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	member := &models.Member{
		Firstname:           strings.TrimSpace(input.Firstname),
		Lastname:            strings.TrimSpace(input.Lastname),
		Company:             strings.TrimSpace(input.Company),
		Email:               normaliseOptionalEmail(input.Email),
		Phone:               strings.TrimSpace(input.Phone),
		ConsentShareContact: true,
		ConsentShareHobbies: true,
	}
	if input.ConsentShareContact != nil {
		member.ConsentShareContact = *input.ConsentShareContact
	}
	if input.ConsentShareHobbies != nil {
		member.ConsentShareHobbies = *input.ConsentShareHobbies
	}

	if err := s.db.WithContext(ctx).Create(member).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, appErrors.ErrEmailInUse
		}
		return nil, fmt.Errorf("member service: create member: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditMemberCreated,
			Metadata:    map[string]any{"member_id": member.ID, "name": member.FullName()},
		})
	}
	return member, nil
}

// Update rewrites a profile's fields.
func (s *MemberService) Update(ctx context.Context, actor *models.User, memberID string, input MemberInput) (*models.Member, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	var member models.Member
	err := s.db.WithContext(ctx).Take(&member, "id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member service: find member: %w", err)
	}

	updates := map[string]any{
		"firstname": strings.TrimSpace(input.Firstname),
		"lastname":  strings.TrimSpace(input.Lastname),
		"company":   strings.TrimSpace(input.Company),
		"email":     normaliseOptionalEmail(input.Email),
		"phone":     strings.TrimSpace(input.Phone),
	}
	if input.ConsentShareContact != nil {
		updates["consent_share_contact"] = *input.ConsentShareContact
	}
	if input.ConsentShareHobbies != nil {
		updates["consent_share_hobbies"] = *input.ConsentShareHobbies
	}

	if err := s.db.WithContext(ctx).Model(&member).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, appErrors.ErrEmailInUse
		}
		return nil, fmt.Errorf("member service: update member: %w", err)
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditMemberUpdated,
			Metadata:    map[string]any{"member_id": member.ID},
		})
	}

	var updated models.Member
	if err := s.db.WithContext(ctx).Take(&updated, "id = ?", member.ID).Error; err != nil {
		return nil, fmt.Errorf("member service: reload member: %w", err)
	}
	return &updated, nil
}

// MemberFilters narrow List results.
type MemberFilters struct {
	Search string
}

// List returns directory profiles alphabetically, optionally filtered by a
// case-insensitive match on name or company.
func (s *MemberService) List(ctx context.Context, filters MemberFilters) ([]models.Member, error) {
	ctx = ensureContext(ctx)

	query := s.db.WithContext(ctx).Model(&models.Member{})
	if search := strings.TrimSpace(filters.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		query = query.Where(
			"LOWER(firstname) LIKE ? OR LOWER(lastname) LIKE ? OR LOWER(company) LIKE ?",
			pattern, pattern, pattern,
		)
	}

	var members []models.Member
	if err := query.Order("lastname ASC, firstname ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("member service: list members: %w", err)
	}
	return members, nil
}

// Get returns a single profile.
func (s *MemberService) Get(ctx context.Context, memberID string) (*models.Member, error) {
	ctx = ensureContext(ctx)

	var member models.Member
	err := s.db.WithContext(ctx).Take(&member, "id = ?", memberID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("member service: find member: %w", err)
	}
	return &member, nil
}

// ImportReport summarises a bulk import run.
type ImportReport struct {
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// Header synonyms accepted by Import. The export tool changed column names
// over the years; all known variants map onto the same fields.
var importHeaderAliases = map[string]string{
	"firstname": "firstname",
	"prenom":    "firstname",
	"prénom":    "firstname",
	"lastname":  "lastname",
	"nom":       "lastname",
	"company":   "company",
	"societe":   "company",
	"société":   "company",
	"entreprise": "company",
	"email":     "email",
	"e-mail":    "email",
	"mail":      "email",
	"phone":     "phone",
	"telephone": "phone",
	"téléphone": "phone",
	"tel":       "phone",
}

// Import reads a CSV stream and upserts directory profiles. Rows are matched
// to existing members by email when present, falling back to the
// (firstname, lastname, company) triple; a match only fills fields that are
// still blank, never overwriting curated data.
func (s *MemberService) Import(ctx context.Context, actor *models.User, r io.Reader) (*ImportReport, error) {
	ctx = ensureContext(ctx)
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, appErrors.NewBadRequest("empty import file")
	}
	if err != nil {
		return nil, appErrors.NewBadRequest("unreadable import file")
	}

	columns := make(map[int]string, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if field, ok := importHeaderAliases[key]; ok {
			columns[i] = field
		}
	}
	if !hasColumn(columns, "firstname") || !hasColumn(columns, "lastname") {
		return nil, appErrors.NewBadRequest("import file must have firstname and lastname columns")
	}

	report := &ImportReport{}
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: malformed row", line))
			report.Skipped++
			continue
		}

		row := map[string]string{}
		for i, value := range record {
			if field, ok := columns[i]; ok {
				row[field] = strings.TrimSpace(value)
			}
		}

		if row["firstname"] == "" || row["lastname"] == "" {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: missing name", line))
			report.Skipped++
			continue
		}

		if err := s.upsertImported(ctx, row, report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("line %d: %v", line, err))
			report.Skipped++
		}
	}

	if s.audit != nil {
		_ = s.audit.Log(ctx, AuditEntry{
			ActorUserID: &actor.ID,
			Action:      auditMembersImports,
			Metadata: map[string]any{
				"created": report.Created,
				"updated": report.Updated,
				"skipped": report.Skipped,
			},
		})
	}

	return report, nil
}

func (s *MemberService) upsertImported(ctx context.Context, row map[string]string, report *ImportReport) error {
	email := normaliseEmail(row["email"])

	var existing models.Member
	var err error
	if email != "" {
		err = s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	} else {
		err = s.db.WithContext(ctx).
			Where("LOWER(firstname) = ? AND LOWER(lastname) = ? AND LOWER(company) = ?",
				strings.ToLower(row["firstname"]),
				strings.ToLower(row["lastname"]),
				strings.ToLower(row["company"])).
			Take(&existing).Error
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		member := models.Member{
			Firstname:           row["firstname"],
			Lastname:            row["lastname"],
			Company:             row["company"],
			Phone:               row["phone"],
			ConsentShareContact: true,
			ConsentShareHobbies: true,
		}
		if email != "" {
			member.Email = &email
		}
		if err := s.db.WithContext(ctx).Create(&member).Error; err != nil {
			return fmt.Errorf("create member: %w", err)
		}
		report.Created++
		return nil
	case err != nil:
		return fmt.Errorf("find member: %w", err)
	}

	// Merge: imported data only fills blanks on the existing profile.
	updates := map[string]any{}
	if existing.Company == "" && row["company"] != "" {
		updates["company"] = row["company"]
	}
	if existing.Phone == "" && row["phone"] != "" {
		updates["phone"] = row["phone"]
	}
	if existing.Email == nil && email != "" {
		updates["email"] = email
	}
	if len(updates) == 0 {
		report.Skipped++
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&existing).Updates(updates).Error; err != nil {
		if isUniqueConstraintError(err) {
			return errors.New("email already in use")
		}
		return fmt.Errorf("update member: %w", err)
	}
	report.Updated++
	return nil
}

func hasColumn(columns map[int]string, field string) bool {
	for _, f := range columns {
		if f == field {
			return true
		}
	}
	return false
}

func normaliseOptionalEmail(email *string) *string {
	if email == nil {
		return nil
	}
	normalised := normaliseEmail(*email)
	if normalised == "" {
		return nil
	}
	return &normalised
}
