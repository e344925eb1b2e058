package domain

// EntityType tags a synchronizable business record class.
type EntityType string

const (
	EntityTypeCategory      EntityType = "CATEGORY"
	EntityTypeProduct       EntityType = "PRODUCT"
	EntityTypeReceipt       EntityType = "RECEIPT"
	EntityTypeCustomer      EntityType = "CUSTOMER"
	EntityTypeEmployee      EntityType = "EMPLOYEE"
	EntityTypeInventoryItem EntityType = "INVENTORY_ITEM"
	EntityTypeKitchenRoute  EntityType = "KITCHEN_ROUTE"
)

// EntityTypes lists every synchronizable entity type.
var EntityTypes = []EntityType{
	EntityTypeCategory,
	EntityTypeProduct,
	EntityTypeReceipt,
	EntityTypeCustomer,
	EntityTypeEmployee,
	EntityTypeInventoryItem,
	EntityTypeKitchenRoute,
}

// Valid reports whether t is a known entity type.
func (t EntityType) Valid() bool {
	for _, known := range EntityTypes {
		if t == known {
			return true
		}
	}
	return false
}

// SyncOperation is the desired action for a record.
type SyncOperation string

const (
	SyncOperationCreate SyncOperation = "CREATE"
	SyncOperationUpdate SyncOperation = "UPDATE"
	SyncOperationDelete SyncOperation = "DELETE"
)

// SyncPriority orders queue items; higher values drain first.
type SyncPriority int

const (
	SyncPriorityLow      SyncPriority = 0
	SyncPriorityNormal   SyncPriority = 10
	SyncPriorityHigh     SyncPriority = 20
	SyncPriorityCritical SyncPriority = 30
)

// SyncStatus is shared by queue items and batches.
type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "PENDING"
	SyncStatusInProgress SyncStatus = "IN_PROGRESS"
	SyncStatusCompleted  SyncStatus = "COMPLETED"
	SyncStatusFailed     SyncStatus = "FAILED"
	SyncStatusCancelled  SyncStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s SyncStatus) Terminal() bool {
	return s == SyncStatusCompleted || s == SyncStatusCancelled
}

// SyncDirection controls which way records flow for an entity type.
type SyncDirection string

const (
	SyncDirectionUpload        SyncDirection = "UPLOAD"
	SyncDirectionDownload      SyncDirection = "DOWNLOAD"
	SyncDirectionBidirectional SyncDirection = "BIDIRECTIONAL"
)

// AllowsUpload reports whether store-to-HQ flow is permitted.
func (d SyncDirection) AllowsUpload() bool {
	return d == SyncDirectionUpload || d == SyncDirectionBidirectional
}

// AllowsDownload reports whether HQ-to-store flow is permitted.
func (d SyncDirection) AllowsDownload() bool {
	return d == SyncDirectionDownload || d == SyncDirectionBidirectional
}

// ConflictResolution is the recorded outcome of a conflict.
type ConflictResolution string

const (
	ConflictResolutionUnresolved       ConflictResolution = "UNRESOLVED"
	ConflictResolutionLocalWins        ConflictResolution = "LOCAL_WINS"
	ConflictResolutionRemoteWins       ConflictResolution = "REMOTE_WINS"
	ConflictResolutionMerged           ConflictResolution = "MERGED"
	ConflictResolutionManuallyResolved ConflictResolution = "MANUALLY_RESOLVED"
)

// ConflictPolicy selects automatic or manual conflict handling for a rule.
type ConflictPolicy string

const (
	// ConflictPolicyLastWriteWins resolves automatically by the most recent
	// lastModified timestamp without recording a pending conflict.
	ConflictPolicyLastWriteWins ConflictPolicy = "LAST_WRITE_WINS"
	// ConflictPolicyManual always records a SyncConflict and blocks until an
	// operator resolves it.
	ConflictPolicyManual ConflictPolicy = "MANUAL"
)
