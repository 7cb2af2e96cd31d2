package goIdentity

import (
	"context"
	"sort"

	"github.com/MrEthical07/goIdentity/permission"
)

// walkGraph collects the roles, groups and types reachable from u through the
// fixed Type -> Group -> Role fan-out. Entries are keyed by index.
func walkGraph(u *User) (map[string]Role, map[string]Group, map[string]Type) {
	roles := make(map[string]Role)
	groups := make(map[string]Group)
	types := make(map[string]Type)
	if u == nil {
		return roles, groups, types
	}

	addGroup := func(g Group) {
		if g.Index != "" {
			groups[g.Index] = g
		}
		for _, r := range g.Roles {
			if r.Index != "" {
				roles[r.Index] = r
			}
		}
	}

	for _, r := range u.Roles {
		if r.Index != "" {
			roles[r.Index] = r
		}
	}
	for _, g := range u.Groups {
		addGroup(g)
	}
	for _, t := range u.Types {
		if t.Index != "" {
			types[t.Index] = t
		}
		for _, g := range t.Groups {
			addGroup(g)
		}
	}

	return roles, groups, types
}

// Snapshot computes the identity of the current session. With inherit set,
// roles implied through the inheritance table are fetched from the user store
// in one batch per expansion step and merged in.
func (i *Identity) Snapshot(ctx context.Context, inherit bool) (*Snapshot, error) {
	if snap, ok := i.snapshots[inherit]; ok {
		return snap, nil
	}

	user, err := i.User(ctx, false, false)
	if err != nil {
		return nil, err
	}
	as, err := i.User(ctx, true, false)
	if err != nil {
		return nil, err
	}

	roles, groups, types := walkGraph(user)

	if inherit && len(roles) > 0 {
		start := make([]string, 0, len(roles))
		for index := range roles {
			start = append(start, index)
		}
		sort.Strings(start)

		_, err := i.engine.inheritance.Expand(start, func(discovered []string) error {
			found, err := i.engine.users.FindRolesByIndex(ctx, discovered)
			if err != nil {
				return err
			}
			for _, r := range found {
				if _, ok := roles[r.Index]; !ok && r.Index != "" {
					roles[r.Index] = r
				}
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	snap := &Snapshot{
		LoggedIn:   user != nil,
		LoggedInAs: as != nil,
		User:       user,
		UserAs:     as,
		Roles:      roles,
		Groups:     groups,
		Types:      types,
	}
	i.snapshots[inherit] = snap
	return snap, nil
}

// RoleIndices returns the role index set of the current identity.
func (i *Identity) RoleIndices(ctx context.Context, inherit bool) (permission.Set, error) {
	snap, err := i.Snapshot(ctx, inherit)
	if err != nil {
		return nil, err
	}
	set := make(permission.Set, len(snap.Roles))
	for index := range snap.Roles {
		set.Add(index)
	}
	return set, nil
}

// HasRole evaluates needles against the current identity's roles.
func (i *Identity) HasRole(ctx context.Context, needles []permission.Needle, or, inherit bool) (bool, error) {
	haystack, err := i.RoleIndices(ctx, inherit)
	if err != nil {
		return false, err
	}
	return permission.Has(needles, haystack, or), nil
}

// EveryoneRole is implied for every caller, logged in or not.
const EveryoneRole = "everyone"

// ACLRoles returns EveryoneRole followed by the sorted role indices of the
// current identity.
func (i *Identity) ACLRoles(ctx context.Context, inherit bool) ([]string, error) {
	set, err := i.RoleIndices(ctx, inherit)
	if err != nil {
		return nil, err
	}
	out := []string{EveryoneRole}
	for _, index := range set.Sorted() {
		if index != EveryoneRole {
			out = append(out, index)
		}
	}
	return out, nil
}
