// Package gormstore is the Postgres user gateway. Users carry their roles,
// groups (with roles) and types (with groups and roles) through join tables,
// loaded eagerly on FindUserByID and FindUserByLogin.
//
// The schema ships as embedded SQL migrations applied by [Migrate].
package gormstore
