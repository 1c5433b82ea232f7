// Package domain defines the persistence models for credentials, the remote
// organization/field hierarchy, field operations, and per-field sync state.
// These types are mapped with GORM and form the core data layer of the sync
// service.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// OperationType is the canonical operation category used for analytics.
type OperationType string

const (
	OperationPlanting   OperationType = "PLANTING"
	OperationHarvest    OperationType = "HARVEST"
	OperationTillage    OperationType = "TILLAGE"
	OperationFertilizer OperationType = "FERTILIZER"
	OperationOther      OperationType = "OTHER"
)

// Valid reports whether t is one of the canonical operation types.
func (t OperationType) Valid() bool {
	switch t {
	case OperationPlanting, OperationHarvest, OperationTillage, OperationFertilizer, OperationOther:
		return true
	}
	return false
}

// SyncMode selects how a field's date window is resolved.
type SyncMode string

const (
	ModeFullHistory SyncMode = "full_history"
	ModeIncremental SyncMode = "incremental"
)

// Valid reports whether m is a known sync mode.
func (m SyncMode) Valid() bool {
	return m == ModeFullHistory || m == ModeIncremental
}

// Credential is the OAuth2 token set stored for a single user. There is at
// most one row per user; every refresh overwrites it.
//
// Fields:
//   - UserID: farmer identifier, primary key.
//   - AccessToken / RefreshToken: never serialized to API responses.
//   - ExpiresAt: absolute expiry, always set on write.
type Credential struct {
	UserID       string    `json:"user_id"    gorm:"type:varchar(128);primaryKey"`
	AccessToken  string    `json:"-"          gorm:"type:text;not null"`
	RefreshToken string    `json:"-"          gorm:"type:text"`
	TokenType    string    `json:"token_type" gorm:"type:varchar(32)"`
	Scopes       string    `json:"scopes"     gorm:"type:text"`
	ExpiresAt    time.Time `json:"expires_at" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName returns the database table name for Credential.
func (Credential) TableName() string { return "credentials" }

// Organization is a remote grouping of fields (a grower account). Rows are
// upserted whenever the organization list is fetched and never deleted.
type Organization struct {
	OrgID          string         `json:"org_id"                    gorm:"type:varchar(64);primaryKey"`
	FarmerID       string         `json:"farmer_id"                 gorm:"type:varchar(128);not null;index:idx_org_farmer"`
	Name           string         `json:"name"                      gorm:"type:varchar(255)"`
	Type           string         `json:"type"                      gorm:"type:varchar(64)"`
	Country        string         `json:"country,omitempty"         gorm:"type:varchar(64)"`
	TimeZone       string         `json:"time_zone,omitempty"       gorm:"type:varchar(64)"`
	IsEnabled      bool           `json:"is_enabled"`
	ConnectionsURI string         `json:"connections_uri,omitempty" gorm:"type:text"`
	Links          datatypes.JSON `json:"links,omitempty"           swaggertype:"object"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`

	// Fields cascade with their organization.
	Fields []Field `json:"-" gorm:"foreignKey:OrgID;references:OrgID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Organization.
func (Organization) TableName() string { return "organizations" }

// Field is a managed parcel of land inside an organization.
//
// Geometry holds a GeoJSON Polygon derived from the first boundary when the
// remote returned boundaries; Boundaries keeps the remote boundary list as-is.
type Field struct {
	FieldID    string         `json:"field_id"              gorm:"type:varchar(64);primaryKey"`
	OrgID      string         `json:"org_id"                gorm:"type:varchar(64);not null;index:idx_field_org"`
	Name       string         `json:"name"                  gorm:"type:varchar(255)"`
	ExternalID string         `json:"external_id,omitempty" gorm:"type:varchar(128)"`
	Area       *float64       `json:"area,omitempty"`
	AreaUnit   string         `json:"area_unit,omitempty"   gorm:"type:varchar(32)"`
	Geometry   datatypes.JSON `json:"geometry,omitempty"    swaggertype:"object"`
	Boundaries datatypes.JSON `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName returns the database table name for Field.
func (Field) TableName() string { return "fields" }

// RawOperation is the vendor payload for one field operation, stored
// verbatim. Replays of the same operation_id update the row in place.
type RawOperation struct {
	OperationID   string         `json:"operation_id"          gorm:"type:varchar(160);primaryKey"`
	FieldID       string         `json:"field_id"              gorm:"type:varchar(64);not null;index:idx_raw_field"`
	OrgID         string         `json:"org_id"                gorm:"type:varchar(64);not null;index"`
	FarmerID      string         `json:"farmer_id"             gorm:"type:varchar(128);index"`
	OperationType string         `json:"operation_type"        gorm:"type:varchar(64)"`
	RawPayload    datatypes.JSON `json:"raw_payload"           gorm:"not null" swaggertype:"object"`
	EventStart    *time.Time     `json:"event_start,omitempty"`
	EventEnd      *time.Time     `json:"event_end,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	Normalized []NormalizedOperation `json:"-" gorm:"foreignKey:OperationID;references:OperationID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for RawOperation.
func (RawOperation) TableName() string { return "operations_raw" }

// NormalizedOperation is the analytics-ready view of one RawOperation. A new
// row is appended on every sync; existing rows are never updated.
//
// OperationID always references an existing RawOperation.
type NormalizedOperation struct {
	ID              string        `json:"id"                          gorm:"type:char(36);primaryKey"`
	OperationID     string        `json:"operation_id"                gorm:"type:varchar(160);not null;index:idx_norm_op"`
	FieldID         string        `json:"field_id"                    gorm:"type:varchar(64);not null;index:idx_norm_field,priority:1"`
	FieldName       string        `json:"field_name"                  gorm:"type:varchar(255)"`
	OrgID           string        `json:"org_id"                      gorm:"type:varchar(64);not null;index"`
	OrgName         string        `json:"org_name"                    gorm:"type:varchar(255)"`
	OperationType   OperationType `json:"operation_type"              gorm:"type:varchar(16);not null;check:operation_type IN ('PLANTING','HARVEST','TILLAGE','FERTILIZER','OTHER')"`
	OperationDate   time.Time     `json:"operation_date"              gorm:"not null;index:idx_norm_field,priority:2"`
	CropName        *string       `json:"crop_name,omitempty"`
	ProductName     *string       `json:"product_name,omitempty"`
	ProductCategory *string       `json:"product_category,omitempty"`
	RateValue       *float64      `json:"rate_value,omitempty"`
	RateUnit        *string       `json:"rate_unit,omitempty"`
	TotalAmount     *float64      `json:"total_amount,omitempty"`
	TotalAmountUnit *string       `json:"total_amount_unit,omitempty"`
	Area            *float64      `json:"area,omitempty"`
	AreaUnit        *string       `json:"area_unit,omitempty"`
	EquipmentName   *string       `json:"equipment_name,omitempty"`
	Notes           *string       `json:"notes,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
}

// TableName returns the database table name for NormalizedOperation.
func (NormalizedOperation) TableName() string { return "operations_normalized" }

// SyncState records the last successful sync window of one field for one
// farmer. LastSyncEndDate is the watermark for the next incremental run.
type SyncState struct {
	ID                uint       `json:"-"                              gorm:"primaryKey;autoIncrement"`
	FarmerID          string     `json:"farmer_id"                      gorm:"type:varchar(128);not null;uniqueIndex:ux_sync_farmer_org_field,priority:1"`
	OrgID             string     `json:"org_id"                         gorm:"type:varchar(64);not null;uniqueIndex:ux_sync_farmer_org_field,priority:2"`
	FieldID           string     `json:"field_id"                       gorm:"type:varchar(64);not null;uniqueIndex:ux_sync_farmer_org_field,priority:3"`
	FieldName         string     `json:"field_name,omitempty"           gorm:"type:varchar(255)"`
	LastSyncedAt      *time.Time `json:"last_synced_at,omitempty"`
	LastSyncMode      SyncMode   `json:"last_sync_mode"                 gorm:"type:varchar(16)"`
	LastSyncStartDate *time.Time `json:"last_sync_start_date,omitempty"`
	LastSyncEndDate   *time.Time `json:"last_sync_end_date,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// TableName returns the database table name for SyncState.
func (SyncState) TableName() string { return "field_sync_state" }
