package documents

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

var validStatuses = map[string]bool{
	"draft": true, "final": true, "amended": true, "entered-in-error": true,
}

type Service struct {
	repo    Repository
	baseURL string
}

func NewService(repo Repository, baseURL string) *Service {
	return &Service{repo: repo, baseURL: strings.TrimRight(baseURL, "/")}
}

// Create fingerprints the payload and persists the document. The fingerprint
// is derived, never supplied by the caller.
func (s *Service) Create(ctx context.Context, d *Document) error {
	if d.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if d.TemplateID == "" {
		return fmt.Errorf("template_id is required")
	}
	if d.Status == "" {
		d.Status = "draft"
	}
	if !validStatuses[d.Status] {
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	d.Fingerprint = d.ContentFingerprint()
	return s.repo.Create(ctx, d)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	return s.repo.GetByID(ctx, id)
}

// Update recomputes the fingerprint unconditionally; a content change
// produces a new fingerprint and callers treat it as a new logical version.
func (s *Service) Update(ctx context.Context, d *Document) error {
	if d.Status != "" && !validStatuses[d.Status] {
		return fmt.Errorf("invalid status: %s", d.Status)
	}
	d.Fingerprint = d.ContentFingerprint()
	return s.repo.Update(ctx, d)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	return s.repo.ListByPatient(ctx, patientID, limit, offset)
}

// Verify answers the public QR-code lookup: does a document with this
// fingerprint exist, and is that fingerprint still its current content?
func (s *Service) Verify(ctx context.Context, fingerprint string) (*VerificationResult, error) {
	d, err := s.repo.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return &VerificationResult{
		Fingerprint: fingerprint,
		DocumentID:  d.ID,
		Status:      d.Status,
		IssuedAt:    d.UpdatedAt,
		Current:     d.Fingerprint == fingerprint,
	}, nil
}

// VerificationURL builds the QR-code target for a fingerprint.
func (s *Service) VerificationURL(fingerprint string) string {
	return s.baseURL + "/verify/" + fingerprint
}

// SharedView returns the representation disclosed through share links:
// content and metadata, without audit fields.
func (s *Service) SharedView(ctx context.Context, id uuid.UUID) (interface{}, error) {
	d, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"id":          d.ID,
		"template_id": d.TemplateID,
		"title":       d.Title,
		"fields":      d.Fields,
		"fingerprint": d.Fingerprint,
		"status":      d.Status,
	}, nil
}
