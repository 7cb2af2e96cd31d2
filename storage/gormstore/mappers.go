package gormstore

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	goIdentity "github.com/MrEthical07/goIdentity"
)

func formatID(id uint64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatUint(id, 10)
}

// parseID reports false for ids that cannot name a row.
func parseID(id string) (uint64, bool) {
	n, err := strconv.ParseUint(strings.TrimSpace(id), 10, 64)
	if err != nil || n == 0 {
		return 0, false
	}
	return n, true
}

func toRole(row roleModel) goIdentity.Role {
	return goIdentity.Role{ID: formatID(row.ID), Index: row.Index, Label: row.Label}
}

func toRoles(rows []roleModel) []goIdentity.Role {
	if len(rows) == 0 {
		return nil
	}
	out := make([]goIdentity.Role, len(rows))
	for i, r := range rows {
		out[i] = toRole(r)
	}
	return out
}

func toGroups(rows []groupModel) []goIdentity.Group {
	if len(rows) == 0 {
		return nil
	}
	out := make([]goIdentity.Group, len(rows))
	for i, g := range rows {
		out[i] = goIdentity.Group{ID: formatID(g.ID), Index: g.Index, Label: g.Label, Roles: toRoles(g.Roles)}
	}
	return out
}

func toUser(row userModel) goIdentity.User {
	u := goIdentity.User{
		ID:             formatID(row.ID),
		Email:          row.Email,
		FirstName:      row.FirstName,
		LastName:       row.LastName,
		PasswordHash:   row.PasswordHash,
		ResetTokenHash: row.ResetTokenHash,
		Deleted:        row.Deleted,
		Roles:          toRoles(row.Roles),
		Groups:         toGroups(row.Groups),
	}
	if row.Username != nil {
		u.Username = *row.Username
	}
	if len(row.Types) > 0 {
		u.Types = make([]goIdentity.Type, len(row.Types))
		for i, t := range row.Types {
			u.Types[i] = goIdentity.Type{ID: formatID(t.ID), Index: t.Index, Label: t.Label, Groups: toGroups(t.Groups)}
		}
	}
	return u
}

// fromUser maps the account columns only; the role graph is managed
// outside SaveUser.
func fromUser(u *goIdentity.User) userModel {
	row := userModel{
		Email:          strings.TrimSpace(u.Email),
		Username:       nullableString(u.Username),
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		PasswordHash:   u.PasswordHash,
		ResetTokenHash: u.ResetTokenHash,
		Deleted:        u.Deleted,
	}
	row.ID, _ = parseID(u.ID)
	return row
}

func toLink(row oauth2LinkModel) (goIdentity.OAuth2Link, error) {
	link := goIdentity.OAuth2Link{
		Provider:    row.Provider,
		ProviderID:  row.ProviderID,
		AccessToken: row.AccessToken,
		Name:        row.Name,
		FirstName:   row.FirstName,
		LastName:    row.LastName,
		Email:       row.Email,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}
	if row.UserID != nil {
		link.UserID = formatID(*row.UserID)
	}
	if row.Meta != "" && row.Meta != "{}" {
		if err := json.Unmarshal([]byte(row.Meta), &link.Meta); err != nil {
			return goIdentity.OAuth2Link{}, fmt.Errorf("decode oauth2 meta: %w", err)
		}
	}
	return link, nil
}

func fromLink(link *goIdentity.OAuth2Link) (oauth2LinkModel, error) {
	meta := "{}"
	if len(link.Meta) > 0 {
		raw, err := json.Marshal(link.Meta)
		if err != nil {
			return oauth2LinkModel{}, fmt.Errorf("encode oauth2 meta: %w", err)
		}
		meta = string(raw)
	}
	row := oauth2LinkModel{
		Provider:    link.Provider,
		ProviderID:  link.ProviderID,
		AccessToken: link.AccessToken,
		Meta:        meta,
		Name:        link.Name,
		FirstName:   link.FirstName,
		LastName:    link.LastName,
		Email:       link.Email,
		CreatedAt:   link.CreatedAt,
		UpdatedAt:   link.UpdatedAt,
	}
	if id, ok := parseID(link.UserID); ok {
		row.UserID = &id
	}
	return row, nil
}

func nullableString(v string) *string {
	trimmed := strings.TrimSpace(v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
