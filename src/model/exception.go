package model

import "time"

// Exception represents a system-level error that must be persisted
// for auditing, debugging, and monitoring purposes.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "settlement"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "poller"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "settleOne"

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	Level string `gorm:"size:20;index" json:"level"` // debug | info | warn | error | fatal

	// Transaction id the error relates to, when there is one.
	TransactionID *string `gorm:"size:36;index" json:"transaction_id,omitempty"`

	// Extra context stored as JSON (optional)
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
