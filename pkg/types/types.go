package types

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// ModuleVersion is one published (package id, version) pair in the catalog.
// It encodes as {"id":"bshook","version":"1.2.0"}.
type ModuleVersion struct {
	ID      string          `json:"id"`
	Version *semver.Version `json:"version"`
}

// String renders the pair as id@major.minor.patch
func (m ModuleVersion) String() string {
	return fmt.Sprintf("%s@%s", m.ID, m.Version)
}

// Mod is the catalog row. The composite primary key enforces uniqueness of
// (id, major, minor, patch).
type Mod struct {
	ID    string `gorm:"column:id;primaryKey"`
	Major int64  `gorm:"column:major;primaryKey;autoIncrement:false"`
	Minor int64  `gorm:"column:minor;primaryKey;autoIncrement:false"`
	Patch int64  `gorm:"column:patch;primaryKey;autoIncrement:false"`
}

// TableName pins the table name used by the migrations
func (Mod) TableName() string {
	return "mods"
}

// NewMod builds the catalog row for id at v; pre-release and build metadata
// are not stored.
func NewMod(id string, v *semver.Version) Mod {
	return Mod{
		ID:    id,
		Major: int64(v.Major()),
		Minor: int64(v.Minor()),
		Patch: int64(v.Patch()),
	}
}

// ModuleVersion converts the row into its API form
func (m Mod) ModuleVersion() ModuleVersion {
	return ModuleVersion{
		ID:      m.ID,
		Version: semver.New(uint64(m.Major), uint64(m.Minor), uint64(m.Patch), "", ""),
	}
}

// PublishKey is the credential row. Only the digest of the token is stored.
type PublishKey struct {
	KeyHash  string `gorm:"column:key_hash;primaryKey"`
	UserName string `gorm:"column:user_name;not null;index"`
}

// TableName pins the table name used by the migrations
func (PublishKey) TableName() string {
	return "publish_keys"
}

// Credential is a resolved publisher credential
type Credential struct {
	User    string `json:"user"`
	KeyHash string `json:"-"`
}

// PublishKeyRequest is the body of POST /publish_key. Pw may be omitted, in
// which case a token is generated and returned.
type PublishKeyRequest struct {
	User string `json:"user"`
	Pw   string `json:"pw"`
}

// DeleteKeyRequest is the body of POST /delete_key; pw wins over user
type DeleteKeyRequest struct {
	Pw   *string `json:"pw"`
	User *string `json:"user"`
}

// ReconcileReport lists the catalog rows removed by a reconciliation sweep
type ReconcileReport struct {
	Checked int             `json:"checked"`
	Removed []ModuleVersion `json:"removed"`
}

// ErrorResponse is the JSON body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
