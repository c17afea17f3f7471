package documents

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	items map[uuid.UUID]*Document
}

func newMockRepo() *mockRepo {
	return &mockRepo{items: make(map[uuid.UUID]*Document)}
}

func (m *mockRepo) Create(_ context.Context, d *Document) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockRepo) GetByID(_ context.Context, id uuid.UUID) (*Document, error) {
	d, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) GetByFingerprint(_ context.Context, fingerprint string) (*Document, error) {
	for _, d := range m.items {
		if d.Fingerprint == fingerprint {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(_ context.Context, d *Document) error {
	if _, ok := m.items[d.ID]; !ok {
		return ErrNotFound
	}
	d.UpdatedAt = time.Now()
	cp := *d
	m.items[d.ID] = &cp
	return nil
}

func (m *mockRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.items[id]; !ok {
		return ErrNotFound
	}
	delete(m.items, id)
	return nil
}

func (m *mockRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Document, int, error) {
	var out []*Document
	for _, d := range m.items {
		if d.PatientID == patientID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, len(out), nil
}

func newTestService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, "https://records.example.org"), repo
}

func TestCreateComputesFingerprint(t *testing.T) {
	svc, _ := newTestService()
	d := &Document{
		PatientID:  uuid.New(),
		TemplateID: "tpl_1",
		Fields:     map[string]interface{}{"name": "A"},
	}
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if len(d.Fingerprint) != 64 {
		t.Errorf("expected 64-char fingerprint, got %q", d.Fingerprint)
	}
	if d.Status != "draft" {
		t.Errorf("status defaulted to %q, want draft", d.Status)
	}
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newTestService()
	if err := svc.Create(context.Background(), &Document{TemplateID: "tpl_1"}); err == nil {
		t.Error("missing patient_id must be rejected")
	}
	if err := svc.Create(context.Background(), &Document{PatientID: uuid.New()}); err == nil {
		t.Error("missing template_id must be rejected")
	}
	if err := svc.Create(context.Background(), &Document{
		PatientID: uuid.New(), TemplateID: "tpl_1", Status: "bogus",
	}); err == nil {
		t.Error("invalid status must be rejected")
	}
}

func TestFingerprintIgnoresFieldOrderAndNulls(t *testing.T) {
	patient := uuid.New()
	a := &Document{PatientID: patient, TemplateID: "tpl_1",
		Fields: map[string]interface{}{"name": "A", "note": nil}}
	b := &Document{PatientID: patient, TemplateID: "tpl_1",
		Fields: map[string]interface{}{"name": "A"}}
	if a.ContentFingerprint() != b.ContentFingerprint() {
		t.Error("null and absent fields must fingerprint identically")
	}

	c := &Document{PatientID: patient, TemplateID: "tpl_2",
		Fields: map[string]interface{}{"name": "A"}}
	if b.ContentFingerprint() == c.ContentFingerprint() {
		t.Error("template change must change the fingerprint")
	}
}

func TestUpdateRecomputesFingerprint(t *testing.T) {
	svc, _ := newTestService()
	d := &Document{
		PatientID:  uuid.New(),
		TemplateID: "tpl_1",
		Fields:     map[string]interface{}{"name": "A"},
	}
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("Create: %v", err)
	}
	original := d.Fingerprint

	d.Fields = map[string]interface{}{"name": "B"}
	if err := svc.Update(context.Background(), d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.Fingerprint == original {
		t.Error("content change must produce a new fingerprint")
	}

	// No content change, same fingerprint.
	if err := svc.Update(context.Background(), d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	changed := d.Fingerprint
	d.Fields = map[string]interface{}{"name": "B"}
	if err := svc.Update(context.Background(), d); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if d.Fingerprint != changed {
		t.Error("identical content must keep the fingerprint stable")
	}
}

func TestVerify(t *testing.T) {
	svc, _ := newTestService()
	d := &Document{
		PatientID:  uuid.New(),
		TemplateID: "tpl_1",
		Fields:     map[string]interface{}{"name": "A"},
	}
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	result, err := svc.Verify(context.Background(), d.Fingerprint)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if result.DocumentID != d.ID || !result.Current {
		t.Errorf("unexpected verification result: %+v", result)
	}

	if _, err := svc.Verify(context.Background(), "0000"); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown fingerprint: expected ErrNotFound, got %v", err)
	}
}

func TestVerificationURL(t *testing.T) {
	svc, _ := newTestService()
	url := svc.VerificationURL("abc123")
	if url != "https://records.example.org/verify/abc123" {
		t.Errorf("unexpected verification URL: %s", url)
	}
}

func TestSharedViewOmitsAuditFields(t *testing.T) {
	svc, _ := newTestService()
	d := &Document{
		PatientID:  uuid.New(),
		TemplateID: "tpl_1",
		Fields:     map[string]interface{}{"name": "A"},
		CreatedBy:  "dr-jones",
	}
	if err := svc.Create(context.Background(), d); err != nil {
		t.Fatalf("Create: %v", err)
	}

	view, err := svc.SharedView(context.Background(), d.ID)
	if err != nil {
		t.Fatalf("SharedView: %v", err)
	}
	m, ok := view.(map[string]interface{})
	if !ok {
		t.Fatalf("unexpected shared view type %T", view)
	}
	if _, present := m["created_by"]; present {
		t.Error("shared view must not expose audit fields")
	}
	if m["fingerprint"] != d.Fingerprint {
		t.Error("shared view must carry the fingerprint")
	}
}
