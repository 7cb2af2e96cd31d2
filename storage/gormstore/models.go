package gormstore

import "time"

type roleModel struct {
	ID    uint64 `gorm:"column:id;primaryKey"`
	Index string `gorm:"column:idx"`
	Label string `gorm:"column:label"`
}

func (roleModel) TableName() string { return "roles" }

type groupModel struct {
	ID    uint64      `gorm:"column:id;primaryKey"`
	Index string      `gorm:"column:idx"`
	Label string      `gorm:"column:label"`
	Roles []roleModel `gorm:"many2many:group_roles;joinForeignKey:GroupID;joinReferences:RoleID"`
}

func (groupModel) TableName() string { return "groups" }

type typeModel struct {
	ID     uint64       `gorm:"column:id;primaryKey"`
	Index  string       `gorm:"column:idx"`
	Label  string       `gorm:"column:label"`
	Groups []groupModel `gorm:"many2many:type_groups;joinForeignKey:TypeID;joinReferences:GroupID"`
}

func (typeModel) TableName() string { return "types" }

type userModel struct {
	ID             uint64       `gorm:"column:id;primaryKey"`
	Email          string       `gorm:"column:email"`
	Username       *string      `gorm:"column:username"`
	FirstName      string       `gorm:"column:first_name"`
	LastName       string       `gorm:"column:last_name"`
	PasswordHash   string       `gorm:"column:password_hash"`
	ResetTokenHash string       `gorm:"column:reset_token_hash"`
	Deleted        bool         `gorm:"column:deleted"`
	CreatedAt      time.Time    `gorm:"column:created_at"`
	UpdatedAt      time.Time    `gorm:"column:updated_at"`
	Roles          []roleModel  `gorm:"many2many:user_roles;joinForeignKey:UserID;joinReferences:RoleID"`
	Groups         []groupModel `gorm:"many2many:user_groups;joinForeignKey:UserID;joinReferences:GroupID"`
	Types          []typeModel  `gorm:"many2many:user_types;joinForeignKey:UserID;joinReferences:TypeID"`
}

func (userModel) TableName() string { return "users" }

type oauth2LinkModel struct {
	Provider    string    `gorm:"column:provider;primaryKey"`
	ProviderID  string    `gorm:"column:provider_id;primaryKey"`
	UserID      *uint64   `gorm:"column:user_id"`
	AccessToken string    `gorm:"column:access_token"`
	Meta        string    `gorm:"column:meta;type:jsonb"`
	Name        string    `gorm:"column:name"`
	FirstName   string    `gorm:"column:first_name"`
	LastName    string    `gorm:"column:last_name"`
	Email       string    `gorm:"column:email"`
	CreatedAt   time.Time `gorm:"column:created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at"`
}

func (oauth2LinkModel) TableName() string { return "oauth2_links" }
