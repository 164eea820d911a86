package patients

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kairos-clinic/scheduling/internal/ids"
	"github.com/kairos-clinic/scheduling/internal/rowstore"
	"github.com/kairos-clinic/scheduling/pkg/logging"
)

// ErrPhoneRequired rejects upserts without a phone. Phone is the lookup
// key; a record without one can never be found again.
var ErrPhoneRequired = errors.New("patients: phone is required")

// ErrPatientNotFound reports a lookup miss.
var ErrPatientNotFound = errors.New("patients: patient not found")

// Directory finds and upserts patient records.
type Directory struct {
	store    rowstore.Store
	table    string
	minter   ids.Minter
	idPrefix string
	logger   *logging.Logger
	now      func() time.Time
}

// NewDirectory builds a directory over the patients table.
func NewDirectory(store rowstore.Store, table string, minter ids.Minter, idPrefix string, logger *logging.Logger) *Directory {
	if store == nil {
		panic("patients: row store required")
	}
	if minter == nil {
		panic("patients: id minter required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Directory{
		store:    store,
		table:    table,
		minter:   minter,
		idPrefix: idPrefix,
		logger:   logger,
		now:      time.Now,
	}
}

// Upsert finds the patient by phone and merges the incoming fields, or
// creates a new record when no phone match exists. Returns the patient id
// either way, so repeated upserts for the same phone are idempotent.
func (d *Directory) Upsert(ctx context.Context, incoming Patient) (string, error) {
	if NormalizePhone(incoming.Phone) == "" {
		return "", ErrPhoneRequired
	}

	existing, err := d.FindByPhone(ctx, incoming.Phone)
	switch {
	case err == nil:
		updated := merge(*existing, incoming)
		if incoming.PatientType == "" {
			updated.PatientType = existing.PatientType
			if updated.PatientType == "" {
				updated.PatientType = TypeExisting
			}
		}
		updated.PatientID = existing.PatientID
		updated.Phone = CanonicalPhone(updated.Phone)
		updated.CreatedAt = existing.CreatedAt
		updated.UpdatedAt = d.timestamp()
		if err := d.store.Update(ctx, d.table, existing.PatientID, updated.ToRow()); err != nil {
			return "", fmt.Errorf("patients: update %s: %w", existing.PatientID, err)
		}
		d.logger.Info("patient updated", "patient_id", existing.PatientID)
		return existing.PatientID, nil

	case errors.Is(err, ErrPatientNotFound):
		id, err := d.minter.Next(ctx, d.idPrefix)
		if err != nil {
			return "", fmt.Errorf("patients: mint patient id: %w", err)
		}
		created := incoming
		created.PatientID = id
		created.Phone = CanonicalPhone(created.Phone)
		if created.PatientType == "" {
			created.PatientType = TypeNew
		}
		if created.ConsentToText == "" {
			created.ConsentToText = "N"
		}
		created.CreatedAt = d.timestamp()
		created.UpdatedAt = created.CreatedAt
		if err := d.store.Append(ctx, d.table, created.ToRow()); err != nil {
			return "", fmt.Errorf("patients: create %s: %w", id, err)
		}
		d.logger.Info("patient created", "patient_id", id)
		return id, nil

	default:
		return "", err
	}
}

// FindByPhone scans the directory comparing E.164 keys, so any rendering of
// the same number finds the same record.
func (d *Directory) FindByPhone(ctx context.Context, phone string) (*Patient, error) {
	want := CanonicalPhone(phone)
	if want == "" {
		return nil, ErrPatientNotFound
	}

	rows, err := d.store.ScanAll(ctx, d.table)
	if err != nil {
		return nil, fmt.Errorf("patients: scan by phone: %w", err)
	}
	for _, row := range rows {
		p := FromRow(row)
		if CanonicalPhone(p.Phone) == want {
			return &p, nil
		}
	}
	return nil, ErrPatientNotFound
}

// FindByID fetches a patient by its id.
func (d *Directory) FindByID(ctx context.Context, patientID string) (*Patient, error) {
	row, err := d.store.FindByKey(ctx, d.table, "patient_id", patientID)
	if errors.Is(err, rowstore.ErrRowNotFound) {
		return nil, ErrPatientNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("patients: find %s: %w", patientID, err)
	}
	p := FromRow(row)
	return &p, nil
}

func (d *Directory) timestamp() string {
	return d.now().UTC().Format(time.RFC3339)
}
