package patient

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ins/ins/internal/capture"
	"github.com/ins/ins/internal/domain/documents"
	"github.com/ins/ins/internal/platform/blobstore"
)

// BlobURLPrefix is where stored uploads are served from.
const BlobURLPrefix = "/admin/blobs/"

// CreatePatient is the creation form: demographics plus the optional
// captured photo, documents and signature. It carries no id and no last
// visit.
type CreatePatient struct {
	Fields
	Photo     *capture.File
	Documents []*capture.File
	Signature string
}

type Service struct {
	repo   Repository
	blobs  blobstore.Store
	logger zerolog.Logger
	now    func() time.Time

	// writes serializes read-modify-write cycles on records.
	writes sync.Mutex
}

func NewService(repo Repository, blobs blobstore.Store, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With().Str("component", "patients").Logger(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// List returns the records matching q and the size of the whole registry.
func (s *Service) List(ctx context.Context, q string) ([]*Patient, int, error) {
	all, err := s.repo.List(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := make([]*Patient, 0, len(all))
	for _, p := range all {
		if p.Matches(q) {
			matched = append(matched, p)
		}
	}
	return matched, len(all), nil
}

func (s *Service) Get(ctx context.Context, id string) (*Patient, error) {
	return s.repo.Get(ctx, id)
}

// Seed stores a fully formed record as-is.
func (s *Service) Seed(ctx context.Context, p *Patient) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = s.now()
		p.UpdatedAt = p.CreatedAt
	}
	return s.repo.Create(ctx, p)
}

// Create validates the form and stores a new record. Name, status and
// supervisor are required.
func (s *Service) Create(ctx context.Context, in CreatePatient, createdBy string) (*Patient, error) {
	p := &Patient{}
	if err := applyFields(p, in.Fields, true); err != nil {
		return nil, err
	}
	if in.Signature != "" && !strings.HasPrefix(in.Signature, "data:image/png;base64,") {
		return nil, &ValidationError{Invalid: []string{"signature must be a PNG data URL"}}
	}
	p.Signature = in.Signature
	p.CreatedBy = createdBy
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt

	s.writes.Lock()
	defer s.writes.Unlock()

	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create patient: %w", err)
	}

	if in.Photo != nil || len(in.Documents) > 0 {
		if err := s.attachUploads(ctx, p, in, createdBy); err != nil {
			s.rollback(ctx, p.ID)
			return nil, err
		}
	}

	s.logger.Info().Str("patient_id", p.ID).Str("created_by", createdBy).Msg("patient created")
	return p, nil
}

func (s *Service) attachUploads(ctx context.Context, p *Patient, in CreatePatient, by string) error {
	if in.Photo != nil {
		ph, err := s.storePhoto(ctx, p.ID, in.Photo, by)
		if err != nil {
			return err
		}
		p.Photo = ph
	}
	for _, f := range in.Documents {
		d, err := s.storeDocument(ctx, p.ID, f, by)
		if err != nil {
			return err
		}
		p.Documents = append(p.Documents, *d)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return fmt.Errorf("attach uploads to %s: %w", p.ID, err)
	}
	return nil
}

// rollback removes a half-created record.
func (s *Service) rollback(ctx context.Context, id string) {
	if err := s.repo.Delete(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("patient_id", id).Msg("rollback: failed to remove record")
	}
	if _, err := s.blobs.DeleteByPatient(ctx, id); err != nil {
		s.logger.Error().Err(err).Str("patient_id", id).Msg("rollback: failed to remove uploads")
	}
}

// Update applies the update form to an existing record. Required fields are
// only enforced at creation; a blank status keeps the current one.
func (s *Service) Update(ctx context.Context, id string, in UpdatePatient) (*Patient, error) {
	return s.modify(ctx, id, func(p *Patient) error {
		if err := applyFields(p, in.Fields, false); err != nil {
			return err
		}
		if !validDate(in.LastVisit) {
			return &ValidationError{Invalid: []string{"last visit must be a date (YYYY-MM-DD)"}}
		}
		p.LastVisit = strings.TrimSpace(in.LastVisit)
		return nil
	})
}

// Delete removes the record and every upload it owns.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.writes.Lock()
	defer s.writes.Unlock()

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	n, err := s.blobs.DeleteByPatient(ctx, id)
	if err != nil {
		s.logger.Error().Err(err).Str("patient_id", id).Msg("failed to remove patient uploads")
	}
	s.logger.Info().Str("patient_id", id).Int("blobs_removed", n).Msg("patient deleted")
	return nil
}

// AddTreatment appends a treatment. Medication, frequency and indication
// are required; status defaults to Active.
func (s *Service) AddTreatment(ctx context.Context, id string, in TreatmentInput) (*Treatment, error) {
	t, err := buildTreatment(in)
	if err != nil {
		return nil, err
	}
	t.ID = uuid.NewString()[:8]
	_, err = s.modify(ctx, id, func(p *Patient) error {
		p.Treatments = append(p.Treatments, *t)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTreatment replaces the fields of one treatment.
func (s *Service) UpdateTreatment(ctx context.Context, id, treatmentID string, in TreatmentInput) (*Treatment, error) {
	t, err := buildTreatment(in)
	if err != nil {
		return nil, err
	}
	t.ID = treatmentID
	_, err = s.modify(ctx, id, func(p *Patient) error {
		cur := p.Treatment(treatmentID)
		if cur == nil {
			return ErrTreatmentNotFound
		}
		*cur = *t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) RemoveTreatment(ctx context.Context, id, treatmentID string) error {
	_, err := s.modify(ctx, id, func(p *Patient) error {
		for i := range p.Treatments {
			if p.Treatments[i].ID == treatmentID {
				p.Treatments = append(p.Treatments[:i], p.Treatments[i+1:]...)
				return nil
			}
		}
		return ErrTreatmentNotFound
	})
	return err
}

// SetPhoto stores f as the record's photo, discarding the previous upload.
func (s *Service) SetPhoto(ctx context.Context, id string, f *capture.File, by string) (*Patient, error) {
	var previous, stored string
	p, err := s.modify(ctx, id, func(p *Patient) error {
		ph, err := s.storePhoto(ctx, p.ID, f, by)
		if err != nil {
			return err
		}
		stored = ph.BlobID
		if p.Photo != nil {
			previous = p.Photo.BlobID
		}
		p.Photo = ph
		return nil
	})
	if err != nil {
		s.discard(ctx, stored)
		return nil, err
	}
	s.discard(ctx, previous)
	return p, nil
}

// AddDocument stores f and appends a reference to it.
func (s *Service) AddDocument(ctx context.Context, id string, f *capture.File, by string) (*documents.Document, error) {
	var added documents.Document
	_, err := s.modify(ctx, id, func(p *Patient) error {
		d, err := s.storeDocument(ctx, p.ID, f, by)
		if err != nil {
			return err
		}
		added = *d
		p.Documents = append(p.Documents, *d)
		return nil
	})
	if err != nil {
		s.discard(ctx, added.ID)
		return nil, err
	}
	return &added, nil
}

// RemovePhoto drops the record's photo and its upload.
func (s *Service) RemovePhoto(ctx context.Context, id string) (*Patient, error) {
	var previous string
	p, err := s.modify(ctx, id, func(p *Patient) error {
		if p.Photo != nil {
			previous = p.Photo.BlobID
		}
		p.Photo = nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.discard(ctx, previous)
	return p, nil
}

// discard removes an upload that no record references.
func (s *Service) discard(ctx context.Context, blobID string) {
	if blobID == "" {
		return
	}
	if err := s.blobs.Delete(ctx, blobID); err != nil {
		s.logger.Warn().Err(err).Str("blob_id", blobID).Msg("failed to remove unreferenced upload")
	}
}

// SetSignature stores a captured signature; "" clears it.
func (s *Service) SetSignature(ctx context.Context, id, dataURL string) (*Patient, error) {
	if dataURL != "" && !strings.HasPrefix(dataURL, "data:image/png;base64,") {
		return nil, &ValidationError{Invalid: []string{"signature must be a PNG data URL"}}
	}
	return s.modify(ctx, id, func(p *Patient) error {
		p.Signature = dataURL
		return nil
	})
}

func (s *Service) modify(ctx context.Context, id string, fn func(p *Patient) error) (*Patient, error) {
	s.writes.Lock()
	defer s.writes.Unlock()

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("update patient %s: %w", id, err)
	}
	return p, nil
}

func (s *Service) storePhoto(ctx context.Context, patientID string, f *capture.File, by string) (*Photo, error) {
	meta, err := s.blobs.Put(ctx, blobstore.Metadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		PatientID:   patientID,
		Category:    blobstore.CategoryPhoto,
		CreatedBy:   by,
	}, bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	return &Photo{URL: BlobURLPrefix + meta.ID, Name: f.Name, BlobID: meta.ID}, nil
}

func (s *Service) storeDocument(ctx context.Context, patientID string, f *capture.File, by string) (*documents.Document, error) {
	meta, err := s.blobs.Put(ctx, blobstore.Metadata{
		FileName:    f.Name,
		ContentType: f.ContentType,
		PatientID:   patientID,
		Category:    blobstore.CategoryDocument,
		CreatedBy:   by,
	}, bytes.NewReader(f.Data))
	if err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}
	return &documents.Document{
		ID:           meta.ID,
		Name:         f.Name,
		Type:         f.ContentType,
		Size:         documents.SizeLabel(meta.Size),
		DateModified: meta.CreatedAt.Format(DateLayout),
		URL:          BlobURLPrefix + meta.ID,
		PatientID:    patientID,
	}, nil
}

// applyFields validates f and copies it onto p. With required set, name,
// status and supervisor must be present.
func applyFields(p *Patient, f Fields, required bool) error {
	verr := &ValidationError{}
	name := strings.TrimSpace(f.Name)
	supervisor := strings.TrimSpace(f.Supervisor)
	if required && name == "" {
		verr.Missing = append(verr.Missing, "Name")
	}
	status := p.Status
	if strings.TrimSpace(f.Status) == "" {
		if required {
			verr.Missing = append(verr.Missing, "Status")
		}
	} else if st, err := ParseStatus(f.Status); err != nil {
		verr.Invalid = append(verr.Invalid, err.Error())
	} else {
		status = st
	}
	if required && supervisor == "" {
		verr.Missing = append(verr.Missing, "Supervisor")
	}

	gender, err := ParseGender(f.Gender)
	if err != nil {
		verr.Invalid = append(verr.Invalid, err.Error())
	}
	age := 0
	if a := strings.TrimSpace(f.Age); a != "" {
		n, err := strconv.Atoi(a)
		if err != nil || n < 0 || n > 150 {
			verr.Invalid = append(verr.Invalid, "age must be a whole number between 0 and 150")
		} else {
			age = n
		}
	}
	if !validDate(strings.TrimSpace(f.Birthday)) {
		verr.Invalid = append(verr.Invalid, "birthday must be a date (YYYY-MM-DD)")
	}
	if !verr.empty() {
		return verr
	}

	p.Name = name
	p.Status = status
	p.Supervisor = supervisor
	p.Gender = gender
	p.Age = age
	p.Birthday = strings.TrimSpace(f.Birthday)
	p.Address = strings.TrimSpace(f.Address)
	p.Phone = strings.TrimSpace(f.Phone)
	p.Email = strings.TrimSpace(f.Email)
	p.EmergencyContact = strings.TrimSpace(f.EmergencyContact)
	p.Notes = f.Notes
	return nil
}

func buildTreatment(in TreatmentInput) (*Treatment, error) {
	verr := &ValidationError{}
	t := &Treatment{
		Medication: strings.TrimSpace(in.Medication),
		Frequency:  strings.TrimSpace(in.Frequency),
		Indication: strings.TrimSpace(in.Indication),
		StartDate:  strings.TrimSpace(in.StartDate),
		EndDate:    strings.TrimSpace(in.EndDate),
	}
	if t.Medication == "" {
		verr.Missing = append(verr.Missing, "Medication")
	}
	if t.Frequency == "" {
		verr.Missing = append(verr.Missing, "Frequency")
	}
	if t.Indication == "" {
		verr.Missing = append(verr.Missing, "Indication")
	}
	st, err := ParseTreatmentStatus(in.Status)
	if err != nil {
		verr.Invalid = append(verr.Invalid, err.Error())
	}
	t.Status = st
	if !validDate(t.StartDate) || !validDate(t.EndDate) {
		verr.Invalid = append(verr.Invalid, "treatment dates must be dates (YYYY-MM-DD)")
	} else if t.StartDate != "" && t.EndDate != "" && t.EndDate < t.StartDate {
		verr.Invalid = append(verr.Invalid, "end date must not be before start date")
	}
	if !verr.empty() {
		return nil, verr
	}
	return t, nil
}
