package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID        int64 `gorm:"primaryKey;autoIncrement:false"`
	FirstName string
	LastName  string
	Username  string    `gorm:"index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type UploadModel struct {
	ID           int64      `gorm:"primaryKey"`
	UserID       int64      `gorm:"not null;index"`
	User         *UserModel `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	FileID       string     `gorm:"not null"`
	FileUniqueID string     `gorm:"index"`
	StorageKey   string
	FirstName    string
	LastName     string
	Username     string
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (UploadModel) TableName() string { return "uploads" }

type ReadingModel struct {
	ID            int64        `gorm:"primaryKey"`
	UserID        int64        `gorm:"not null;index"`
	User          *UserModel   `gorm:"foreignKey:UserID;constraint:OnDelete:RESTRICT"`
	UploadID      int64        `gorm:"not null;uniqueIndex"`
	Upload        *UploadModel `gorm:"foreignKey:UploadID;constraint:OnDelete:RESTRICT"`
	Prompt        string       `gorm:"type:text;not null"`
	Response      string       `gorm:"type:text;not null"`
	Outcome       string       `gorm:"not null"`
	RefusalReason string
	Generation    datatypes.JSON
	FirstName     string
	LastName      string
	Username      string
	CreatedAt     time.Time `gorm:"not null;index"`
}

func (ReadingModel) TableName() string { return "readings" }
