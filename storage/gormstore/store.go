package gormstore

import (
	"context"
	"errors"
	"fmt"

	goIdentity "github.com/MrEthical07/goIdentity"
	"github.com/MrEthical07/goIdentity/validation"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements goIdentity.UserStore on Postgres.
type Store struct {
	db *gorm.DB
}

// New wraps db. The schema must have been applied with [Migrate].
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// withGraph eager-loads the user's roles, groups and types.
func (s *Store) withGraph(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Preload("Roles").
		Preload("Groups.Roles").
		Preload("Types.Groups.Roles")
}

func (s *Store) takeUser(q *gorm.DB) (*goIdentity.User, error) {
	var row userModel
	if err := q.Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goIdentity.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	u := toUser(row)
	return &u, nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*goIdentity.User, error) {
	n, ok := parseID(id)
	if !ok {
		return nil, goIdentity.ErrNotFound
	}
	return s.takeUser(s.withGraph(ctx).Where("id = ?", n))
}

// FindUserByLogin matches email case-insensitively, or username exactly.
func (s *Store) FindUserByLogin(ctx context.Context, emailOrUsername string) (*goIdentity.User, error) {
	return s.takeUser(s.withGraph(ctx).
		Where("LOWER(email) = LOWER(?) OR username = ?", emailOrUsername, emailOrUsername))
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*goIdentity.User, error) {
	return s.takeUser(s.db.WithContext(ctx).Where("LOWER(email) = LOWER(?)", email))
}

// SaveUser inserts or updates the account columns of user. Conflicting
// emails or usernames are reported as a *validation.Error.
func (s *Store) SaveUser(ctx context.Context, user *goIdentity.User) error {
	row := fromUser(user)

	var msgs validation.Messages
	if row.Email == "" {
		msgs.Append("email", validation.TypePresenceOf, "email is required")
		return &validation.Error{Messages: msgs}
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := checkUnique(tx, row, &msgs); err != nil {
			return err
		}
		if msgs.Len() > 0 {
			return &validation.Error{Messages: msgs}
		}

		if row.ID == 0 {
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				return saveError(err)
			}
			user.ID = formatID(row.ID)
			return nil
		}

		res := tx.Model(&userModel{ID: row.ID}).
			Select("email", "username", "first_name", "last_name", "password_hash", "reset_token_hash", "deleted", "updated_at").
			Updates(&row)
		if res.Error != nil {
			return saveError(res.Error)
		}
		if res.RowsAffected == 0 {
			return goIdentity.ErrNotFound
		}
		return nil
	})
}

func checkUnique(tx *gorm.DB, row userModel, msgs *validation.Messages) error {
	var count int64
	q := tx.Model(&userModel{}).Where("LOWER(email) = LOWER(?)", row.Email)
	if row.ID != 0 {
		q = q.Where("id <> ?", row.ID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		msgs.Append("email", validation.TypeUniqueness, "email already exists")
	}

	if row.Username == nil {
		return nil
	}
	q = tx.Model(&userModel{}).Where("username = ?", *row.Username)
	if row.ID != 0 {
		q = q.Where("id <> ?", row.ID)
	}
	if err := q.Count(&count).Error; err != nil {
		return fmt.Errorf("check username: %w", err)
	}
	if count > 0 {
		msgs.Append("username", validation.TypeUniqueness, "username already exists")
	}
	return nil
}

// saveError maps a duplicate key that slipped past checkUnique onto the
// email field.
func saveError(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return validation.NewError(validation.New("email", validation.TypeUniqueness, "email already exists"))
	}
	return fmt.Errorf("save user: %w", err)
}

// FindRolesByIndex returns the stored roles among indices.
func (s *Store) FindRolesByIndex(ctx context.Context, indices []string) ([]goIdentity.Role, error) {
	if len(indices) == 0 {
		return nil, nil
	}
	var rows []roleModel
	if err := s.db.WithContext(ctx).Where("idx IN ?", indices).Order("idx").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find roles: %w", err)
	}
	return toRoles(rows), nil
}

func (s *Store) FindOAuth2Link(ctx context.Context, provider, providerID string) (*goIdentity.OAuth2Link, error) {
	var row oauth2LinkModel
	err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_id = ?", provider, providerID).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, goIdentity.ErrNotFound
		}
		return nil, fmt.Errorf("find oauth2 link: %w", err)
	}
	link, err := toLink(row)
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// SaveOAuth2Link upserts link on (provider, provider_id).
func (s *Store) SaveOAuth2Link(ctx context.Context, link *goIdentity.OAuth2Link) error {
	var msgs validation.Messages
	validation.Presence(&msgs, map[string]string{
		"provider":   link.Provider,
		"providerId": link.ProviderID,
	}, "provider", "providerId")
	if msgs.Len() > 0 {
		return &validation.Error{Messages: msgs}
	}

	row, err := fromLink(link)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"user_id", "access_token", "meta", "name", "first_name", "last_name", "email", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save oauth2 link: %w", err)
	}
	return nil
}

// PutRole creates or relabels a role, for seeding.
func (s *Store) PutRole(ctx context.Context, role goIdentity.Role) error {
	row := roleModel{Index: role.Index, Label: role.Label}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "idx"}},
		DoUpdates: clause.AssignmentColumns([]string{"label"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("put role: %w", err)
	}
	return nil
}

// GrantRole attaches the role with index to the user.
func (s *Store) GrantRole(ctx context.Context, userID, index string) error {
	uid, ok := parseID(userID)
	if !ok {
		return goIdentity.ErrNotFound
	}
	var role roleModel
	if err := s.db.WithContext(ctx).Where("idx = ?", index).Take(&role).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return goIdentity.ErrNotFound
		}
		return fmt.Errorf("find role: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&userModel{ID: uid}).Association("Roles").Append(&role); err != nil {
		return fmt.Errorf("grant role: %w", err)
	}
	return nil
}
