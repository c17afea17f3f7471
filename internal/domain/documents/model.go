// Package documents manages clinical documents and their content
// fingerprints. A fingerprint is the canonical hash of a document's semantic
// payload; it changes exactly when the logical content changes and backs the
// public verification URL printed on generated PDFs.
package documents

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/careview/careview/internal/canonical"
)

var ErrNotFound = errors.New("document not found")

// Document maps to the document table.
type Document struct {
	ID          uuid.UUID              `db:"id" json:"id"`
	PatientID   uuid.UUID              `db:"patient_id" json:"patient_id"`
	TemplateID  string                 `db:"template_id" json:"template_id"`
	Title       string                 `db:"title" json:"title"`
	Fields      map[string]interface{} `db:"fields" json:"fields"`
	Fingerprint string                 `db:"fingerprint" json:"fingerprint"`
	Status      string                 `db:"status" json:"status"`
	CreatedBy   string                 `db:"created_by" json:"created_by"`
	CreatedAt   time.Time              `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time              `db:"updated_at" json:"updated_at"`
}

// ContentFingerprint hashes the document's semantic payload: template
// identifier, field values and the patient identity it belongs to. Field
// ordering and absent-vs-null optional fields do not affect the result.
func (d *Document) ContentFingerprint() string {
	return canonical.Fingerprint(map[string]interface{}{
		"templateId": d.TemplateID,
		"fields":     d.Fields,
		"patientId":  d.PatientID.String(),
	})
}

// VerificationResult is what the public verify endpoint discloses: enough to
// confirm a printed document is authentic and current, never the content.
type VerificationResult struct {
	Fingerprint string    `json:"fingerprint"`
	DocumentID  uuid.UUID `json:"document_id"`
	Status      string    `json:"status"`
	IssuedAt    time.Time `json:"issued_at"`
	Current     bool      `json:"current"`
}
