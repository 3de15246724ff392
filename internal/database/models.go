package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/eval-consensus/internal/types"
)

// ImportBatch records one ingestion of evaluations into the store
type ImportBatch struct {
	ID        string    `json:"id" db:"id"`
	Source    string    `json:"source" db:"source"`
	Count     int       `json:"count" db:"count"`
	Inserted  int       `json:"inserted" db:"-"`
	Updated   int       `json:"updated" db:"-"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// StoredEvaluation is one evaluation row. Payload holds the canonical JSON record.
type StoredEvaluation struct {
	ID         string    `json:"id" db:"id"`
	Token      string    `json:"token" db:"token"`
	BatchID    string    `json:"batch_id" db:"batch_id"`
	Payload    string    `json:"-" db:"payload"`
	ImportedAt time.Time `json:"imported_at" db:"imported_at"`
}

// Evaluation decodes the stored payload
func (s *StoredEvaluation) Evaluation() (types.Evaluation, error) {
	var data types.Value
	if err := data.UnmarshalJSON([]byte(s.Payload)); err != nil {
		return types.Evaluation{}, err
	}
	return types.NewEvaluation(s.Token, data), nil
}

// NewImportBatch creates a new batch with generated ID
func NewImportBatch(source string, count int) *ImportBatch {
	return &ImportBatch{
		ID:        uuid.New().String(),
		Source:    source,
		Count:     count,
		CreatedAt: time.Now().UTC(),
	}
}
