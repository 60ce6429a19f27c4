package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/availity-rpa/internal/workflow"
)

// ErrNotFound is returned when no run input matches an auth id.
var ErrNotFound = errors.New("no matching record")

// Validation and auth status values written back after a run.
const (
	InsurancePass    = "PASS"
	AuthInProgress   = "In Progress"
	AuthNotSubmitted = "Not Submitted"
)

// DBPool is an interface that abstracts the pgxpool.Pool to allow for mocking in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store reads run inputs from and writes run outcomes to PostgreSQL.
type Store struct {
	pool DBPool
	log  *zap.Logger
}

// New creates a new store instance and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{
		pool: pool,
		log:  logger.Named("store"),
	}, nil
}

const sqlEligibilityInput = `
        SELECT o.auth_id::text, COALESCE(o.procedure_code, ''), COALESCE(o.icd_code, ''),
            COALESCE(o.from_date_of_service::text, ''), p.patient_id::text,
            COALESCE(p.primary_policy_number, ''), COALESCE(p.first_name, ''), COALESCE(p.last_name, ''),
            COALESCE(p.gender, ''), COALESCE(p.date_of_birth::text, ''), COALESCE(p.primary_insurance, ''),
            COALESCE(pr.provider_name, ''), COALESCE(pr.npi_number, '')
        FROM orders o
        JOIN patient_details p ON o.patient_id = p.patient_id
        JOIN provider_details pr ON p.provider_id = pr.provider_id
        WHERE o.auth_id = $1 AND p.primary_insurance ILIKE '%aetna%'
        LIMIT 1;
    `

// EligibilityInput loads the record an eligibility run needs.
func (s *Store) EligibilityInput(ctx context.Context, authID string) (workflow.PatientRecord, error) {
	var r workflow.PatientRecord
	err := s.pool.QueryRow(ctx, sqlEligibilityInput, authID).Scan(
		&r.AuthID, &r.ProcedureCode, &r.DiagnosisCode,
		&r.FromDate, &r.PatientID,
		&r.MemberID, &r.FirstName, &r.LastName,
		&r.Gender, &r.PatientDOB, &r.Payer,
		&r.ProviderName, &r.ProviderNPIID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.PatientRecord{}, fmt.Errorf("eligibility input for auth_id %s: %w", authID, ErrNotFound)
	}
	if err != nil {
		return workflow.PatientRecord{}, fmt.Errorf("failed to query eligibility input: %w", err)
	}
	return r, nil
}

const sqlPriorAuthInput = `
        SELECT ps.auth_id::text, p.patient_id::text, COALESCE(p.primary_policy_number, ''),
            COALESCE(p.full_name, ''), COALESCE(p.date_of_birth::text, ''), COALESCE(p.gender, ''),
            COALESCE(p.primary_insurance, ''), COALESCE(pr.provider_name, ''), COALESCE(pr.npi_number, ''),
            COALESCE(o.procedure_code, o.cpt_code, ''), COALESCE(o.icd_code, ''),
            COALESCE(o.from_date_of_service::text, ''), COALESCE(o.to_date_of_service::text, '')
        FROM prescrubbing ps
        JOIN patient_details p ON ps.patient_id = p.patient_id
        JOIN orders o ON ps.auth_id = o.auth_id
        JOIN provider_details pr ON p.provider_id = pr.provider_id
        WHERE ps.auth_id = $1 AND p.primary_insurance ILIKE '%aetna%'
        LIMIT 1;
    `

// PriorAuthInput loads the record a prior-authorization run needs.
func (s *Store) PriorAuthInput(ctx context.Context, authID string) (workflow.PatientRecord, error) {
	var r workflow.PatientRecord
	err := s.pool.QueryRow(ctx, sqlPriorAuthInput, authID).Scan(
		&r.AuthID, &r.PatientID, &r.MemberID,
		&r.PatientName, &r.DateOfBirth, &r.Gender,
		&r.PrimaryInsurance, &r.ProviderName, &r.NPINumber,
		&r.ProcedureCode, &r.DiagnosisCode,
		&r.FromDate, &r.ToDate,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return workflow.PatientRecord{}, fmt.Errorf("prior-auth input for auth_id %s: %w", authID, ErrNotFound)
	}
	if err != nil {
		return workflow.PatientRecord{}, fmt.Errorf("failed to query prior-auth input: %w", err)
	}
	r.Payer = r.PrimaryInsurance
	r.ProviderNPIID = r.NPINumber
	return r, nil
}

const sqlSetInsuranceStatus = `
        UPDATE prescrubbing SET insurance_validation_status = $1
        WHERE auth_id = $2;
    `

// SetInsuranceValidation records an eligibility flag: PASS for active
// coverage, NULL for anything else.
func (s *Store) SetInsuranceValidation(ctx context.Context, authID string, flag int) error {
	var status *string
	if flag == 1 {
		pass := InsurancePass
		status = &pass
	}
	tag, err := s.pool.Exec(ctx, sqlSetInsuranceStatus, status, authID)
	if err != nil {
		return fmt.Errorf("failed to update insurance validation status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("No prescrubbing row for auth_id", zap.String("auth_id", authID))
	}
	return nil
}

const sqlSetAuthStatus = `
        UPDATE prescrubbing SET auth_status = $1
        WHERE auth_id = $2;
    `

// SetAuthStatus records the prior-authorization state of authID.
func (s *Store) SetAuthStatus(ctx context.Context, authID, status string) error {
	tag, err := s.pool.Exec(ctx, sqlSetAuthStatus, status, authID)
	if err != nil {
		return fmt.Errorf("failed to update auth status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("No prescrubbing row for auth_id", zap.String("auth_id", authID))
	}
	return nil
}

const sqlAuthStatus = `SELECT auth_status FROM prescrubbing WHERE auth_id = $1;`

// AuthStatus returns the recorded auth status, or AuthNotSubmitted.
func (s *Store) AuthStatus(ctx context.Context, authID string) (string, error) {
	var status *string
	err := s.pool.QueryRow(ctx, sqlAuthStatus, authID).Scan(&status)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("failed to query auth status: %w", err)
	}
	if status == nil || *status == "" {
		return AuthNotSubmitted, nil
	}
	return *status, nil
}

const (
	sqlFindProvider = `
        SELECT provider_id FROM provider_details
        WHERE first_name = $1 AND last_name = $2;
    `
	sqlUpdateProvider = `
        UPDATE provider_details
        SET npi_number = $1, provider_name = COALESCE(NULLIF($2, ''), provider_name)
        WHERE provider_id = $3;
    `
	sqlInsertProvider = `
        INSERT INTO provider_details (first_name, last_name, npi_number, provider_name)
        VALUES ($1, $2, $3, NULLIF($4, ''))
        RETURNING provider_id;
    `
)

// UpsertProvider stores a registry hit against the provider of that name and
// returns its id. An empty name leaves the stored one alone.
func (s *Store) UpsertProvider(ctx context.Context, first, last, npi, name string) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	var id int64
	err = tx.QueryRow(ctx, sqlFindProvider, first, last).Scan(&id)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if err := tx.QueryRow(ctx, sqlInsertProvider, first, last, npi, name).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert provider: %w", err)
		}
		s.log.Info("Inserted provider", zap.Int64("provider_id", id))
	case err != nil:
		return 0, fmt.Errorf("failed to query provider: %w", err)
	default:
		if _, err := tx.Exec(ctx, sqlUpdateProvider, npi, name, id); err != nil {
			return 0, fmt.Errorf("failed to update provider: %w", err)
		}
		s.log.Info("Updated provider", zap.Int64("provider_id", id))
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

const (
	sqlSetNPIStatus = `
        UPDATE prescrubbing SET npi_validation_status = $1
        WHERE auth_id = $2;
    `
	sqlSetNPIStatusByProvider = `
        UPDATE prescrubbing SET npi_validation_status = $1
        WHERE patient_id IN (
            SELECT pd.patient_id FROM patient_details pd WHERE pd.provider_id = $2
        );
    `
)

// SetNPIValidationStatus marks authID and, when providerID is non-zero, every
// record of that provider's patients.
func (s *Store) SetNPIValidationStatus(ctx context.Context, authID string, providerID int64, status string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	batch := &pgx.Batch{}
	batch.Queue(sqlSetNPIStatus, status, authID)
	if providerID != 0 {
		batch.Queue(sqlSetNPIStatusByProvider, status, providerID)
	}

	br := tx.SendBatch(ctx, batch)
	if br == nil {
		return fmt.Errorf("failed to send batch: batch results is nil")
	}
	for i := 0; i < batch.Len(); i++ {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to update npi validation status (statement %d): %w", i, err)
		}
		if i == 0 && tag.RowsAffected() == 0 {
			s.log.Warn("No prescrubbing row for auth_id", zap.String("auth_id", authID))
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
