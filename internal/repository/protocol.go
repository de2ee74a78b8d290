package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/neerajk1208/ivfb/internal/timeutil"
	"github.com/neerajk1208/ivfb/pkg/model"
	"go.uber.org/zap"
)

// ProtocolRepository manages protocol plans and their medications,
// appointments and milestones. A cycle owns at most one plan.
type ProtocolRepository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

// NewProtocolRepository creates a new ProtocolRepository
func NewProtocolRepository(db *pgxpool.Pool, logger *zap.Logger) *ProtocolRepository {
	return &ProtocolRepository{
		db:     db,
		logger: logger,
	}
}

// ReplaceForCycle deletes the cycle's existing plan with all children and
// stores p in its place, in one transaction.
func (r *ProtocolRepository) ReplaceForCycle(ctx context.Context, p *model.Protocol) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM protocol_plans WHERE cycle_id = $1`, p.CycleID); err != nil {
			return fmt.Errorf("failed to delete existing plan: %w", err)
		}

		insertPlan := `
			INSERT INTO protocol_plans (id, cycle_id, status, source, cycle_start_date, notes, document_path, missing_fields, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		`
		missing := p.MissingFields
		if missing == nil {
			missing = []string{}
		}
		if _, err := tx.Exec(ctx, insertPlan,
			p.ID,
			p.CycleID,
			p.Status,
			p.Source,
			dateParam(p.CycleStartDate),
			nullIfEmpty(p.Notes),
			p.DocumentPath,
			missing,
		); err != nil {
			return fmt.Errorf("failed to insert plan: %w", err)
		}

		batch := &pgx.Batch{}
		for _, m := range p.Medications {
			var tod *string
			if m.TimeOfDay != nil {
				s := string(*m.TimeOfDay)
				tod = &s
			}
			batch.Queue(`
				INSERT INTO protocol_medications (id, protocol_plan_id, name, dosage_amount, dosage_unit, dosage,
					frequency, route, start_day_offset, duration_days, time_of_day, exact_time, instructions)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
				m.ID, p.ID, m.Name, m.DosageAmount, nullIfEmpty(m.DosageUnit), nullIfEmpty(m.Dosage),
				nullIfEmpty(m.Frequency), nullIfEmpty(m.Route), m.StartDayOffset, m.DurationDays,
				tod, clockParam(m.ExactTime), nullIfEmpty(m.Instructions),
			)
		}
		for _, a := range p.Appointments {
			batch.Queue(`
				INSERT INTO protocol_appointments (id, protocol_plan_id, type, day_offset, exact_time, notes, fasting, critical)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				a.ID, p.ID, a.Type, a.DayOffset, clockParam(a.ExactTime), nullIfEmpty(a.Notes), a.Fasting, a.Critical,
			)
		}
		for _, ms := range p.Milestones {
			batch.Queue(`
				INSERT INTO protocol_milestones (id, protocol_plan_id, type, day_offset, label, details)
				VALUES ($1, $2, $3, $4, $5, $6)`,
				ms.ID, p.ID, ms.Type, ms.DayOffset, ms.Label, nullIfEmpty(ms.Details),
			)
		}
		if batch.Len() > 0 {
			if err := tx.SendBatch(ctx, batch).Close(); err != nil {
				return fmt.Errorf("failed to insert plan children: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to replace protocol plan",
			zap.Error(err),
			zap.String("cycle_id", p.CycleID),
			zap.String("protocol_plan_id", p.ID),
		)
		return err
	}

	return nil
}

// GetByID retrieves a plan with its children
func (r *ProtocolRepository) GetByID(ctx context.Context, planID string) (*model.Protocol, error) {
	return r.getOne(ctx, `WHERE id = $1`, planID)
}

// GetByCycle retrieves the plan of a cycle with its children
func (r *ProtocolRepository) GetByCycle(ctx context.Context, cycleID string) (*model.Protocol, error) {
	return r.getOne(ctx, `WHERE cycle_id = $1`, cycleID)
}

func (r *ProtocolRepository) getOne(ctx context.Context, where string, arg string) (*model.Protocol, error) {
	query := `
		SELECT id, cycle_id, status, source, cycle_start_date, notes, document_path, missing_fields, created_at, updated_at
		FROM protocol_plans ` + where

	var p model.Protocol
	var start time.Time
	var notes *string
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&p.ID,
		&p.CycleID,
		&p.Status,
		&p.Source,
		&start,
		&notes,
		&p.DocumentPath,
		&p.MissingFields,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("protocol plan %s: %w", arg, ErrNotFound)
		}
		r.logger.Error("failed to get protocol plan", zap.Error(err), zap.String("key", arg))
		return nil, fmt.Errorf("failed to get protocol plan: %w", err)
	}
	p.CycleStartDate = dateFromDB(start)
	p.Notes = deref(notes)

	if p.Medications, err = r.medications(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Appointments, err = r.appointments(ctx, p.ID); err != nil {
		return nil, err
	}
	if p.Milestones, err = r.milestones(ctx, p.ID); err != nil {
		return nil, err
	}

	return &p, nil
}

func (r *ProtocolRepository) medications(ctx context.Context, planID string) ([]model.Medication, error) {
	query := `
		SELECT id, protocol_plan_id, name, dosage_amount, dosage_unit, dosage, frequency, route,
			start_day_offset, duration_days, time_of_day, exact_time, instructions
		FROM protocol_medications
		WHERE protocol_plan_id = $1
		ORDER BY start_day_offset, name
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		r.logger.Error("failed to get medications", zap.Error(err), zap.String("protocol_plan_id", planID))
		return nil, fmt.Errorf("failed to get medications: %w", err)
	}
	defer rows.Close()

	meds := []model.Medication{}
	for rows.Next() {
		var m model.Medication
		var unit, dosage, freq, route, tod, exact, instr *string
		if err := rows.Scan(
			&m.ID, &m.ProtocolID, &m.Name, &m.DosageAmount, &unit, &dosage, &freq, &route,
			&m.StartDayOffset, &m.DurationDays, &tod, &exact, &instr,
		); err != nil {
			r.logger.Error("failed to scan medication", zap.Error(err))
			return nil, fmt.Errorf("failed to scan medication: %w", err)
		}
		m.DosageUnit, m.Dosage, m.Frequency, m.Route, m.Instructions = deref(unit), deref(dosage), deref(freq), deref(route), deref(instr)
		if tod != nil {
			t := timeutil.TimeOfDay(*tod)
			m.TimeOfDay = &t
		}
		if m.ExactTime, err = clockFromDB(exact); err != nil {
			return nil, fmt.Errorf("medication %s: %w", m.ID, err)
		}
		meds = append(meds, m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating medications", zap.Error(err))
		return nil, fmt.Errorf("error iterating medications: %w", err)
	}

	return meds, nil
}

func (r *ProtocolRepository) appointments(ctx context.Context, planID string) ([]model.Appointment, error) {
	query := `
		SELECT id, protocol_plan_id, type, day_offset, exact_time, notes, fasting, critical
		FROM protocol_appointments
		WHERE protocol_plan_id = $1
		ORDER BY day_offset
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		r.logger.Error("failed to get appointments", zap.Error(err), zap.String("protocol_plan_id", planID))
		return nil, fmt.Errorf("failed to get appointments: %w", err)
	}
	defer rows.Close()

	appts := []model.Appointment{}
	for rows.Next() {
		var a model.Appointment
		var exact, notes *string
		if err := rows.Scan(&a.ID, &a.ProtocolID, &a.Type, &a.DayOffset, &exact, &notes, &a.Fasting, &a.Critical); err != nil {
			r.logger.Error("failed to scan appointment", zap.Error(err))
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		a.Notes = deref(notes)
		if a.ExactTime, err = clockFromDB(exact); err != nil {
			return nil, fmt.Errorf("appointment %s: %w", a.ID, err)
		}
		appts = append(appts, a)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating appointments", zap.Error(err))
		return nil, fmt.Errorf("error iterating appointments: %w", err)
	}

	return appts, nil
}

func (r *ProtocolRepository) milestones(ctx context.Context, planID string) ([]model.Milestone, error) {
	query := `
		SELECT id, protocol_plan_id, type, day_offset, label, details
		FROM protocol_milestones
		WHERE protocol_plan_id = $1
		ORDER BY day_offset
	`

	rows, err := r.db.Query(ctx, query, planID)
	if err != nil {
		r.logger.Error("failed to get milestones", zap.Error(err), zap.String("protocol_plan_id", planID))
		return nil, fmt.Errorf("failed to get milestones: %w", err)
	}
	defer rows.Close()

	out := []model.Milestone{}
	for rows.Next() {
		var m model.Milestone
		var details *string
		if err := rows.Scan(&m.ID, &m.ProtocolID, &m.Type, &m.DayOffset, &m.Label, &details); err != nil {
			r.logger.Error("failed to scan milestone", zap.Error(err))
			return nil, fmt.Errorf("failed to scan milestone: %w", err)
		}
		m.Details = deref(details)
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		r.logger.Error("error iterating milestones", zap.Error(err))
		return nil, fmt.Errorf("error iterating milestones: %w", err)
	}

	return out, nil
}

// Deactivate returns an ACTIVE plan to DRAFT. The cycle keeps its start date.
func (r *ProtocolRepository) Deactivate(ctx context.Context, planID string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE protocol_plans SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		model.ProtocolStatusDraft, planID, model.ProtocolStatusActive,
	)
	if err != nil {
		r.logger.Error("failed to deactivate protocol plan", zap.Error(err), zap.String("protocol_plan_id", planID))
		return fmt.Errorf("failed to deactivate plan: %w", err)
	}
	return nil
}

// Activate moves a plan to ACTIVE and copies its start date onto the cycle
func (r *ProtocolRepository) Activate(ctx context.Context, planID string) error {
	err := pgx.BeginFunc(ctx, r.db, func(tx pgx.Tx) error {
		var cycleID string
		var start time.Time
		err := tx.QueryRow(ctx, `
			UPDATE protocol_plans SET status = $1, updated_at = NOW()
			WHERE id = $2
			RETURNING cycle_id, cycle_start_date`,
			model.ProtocolStatusActive, planID,
		).Scan(&cycleID, &start)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("protocol plan %s: %w", planID, ErrNotFound)
			}
			return fmt.Errorf("failed to activate plan: %w", err)
		}

		if _, err := tx.Exec(ctx, `UPDATE cycles SET start_date = $1, updated_at = NOW() WHERE id = $2`, start, cycleID); err != nil {
			return fmt.Errorf("failed to set cycle start date: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			r.logger.Error("failed to activate protocol plan", zap.Error(err), zap.String("protocol_plan_id", planID))
		}
		return err
	}

	return nil
}

// SetDocumentPath records where the source document of a plan is archived
func (r *ProtocolRepository) SetDocumentPath(ctx context.Context, planID, path string) error {
	result, err := r.db.Exec(ctx, `UPDATE protocol_plans SET document_path = $1, updated_at = NOW() WHERE id = $2`, path, planID)
	if err != nil {
		r.logger.Error("failed to set document path", zap.Error(err), zap.String("protocol_plan_id", planID))
		return fmt.Errorf("failed to set document path: %w", err)
	}
	if result.RowsAffected() == 0 {
		return fmt.Errorf("protocol plan %s: %w", planID, ErrNotFound)
	}
	return nil
}

// ActivePlan identifies an ACTIVE plan with the owner settings needed to
// regenerate it
type ActivePlan struct {
	CycleID         string
	ProtocolPlanID  string
	UserID          string
	Timezone        string
	QuietHoursStart *string
	QuietHoursEnd   *string
}

// ListActive returns every ACTIVE plan of an ACTIVE cycle
func (r *ProtocolRepository) ListActive(ctx context.Context) ([]ActivePlan, error) {
	query := `
		SELECT p.cycle_id, p.id, u.id, u.timezone, u.quiet_hours_start, u.quiet_hours_end
		FROM protocol_plans p
		JOIN cycles c ON c.id = p.cycle_id
		JOIN users u ON u.id = c.user_id
		WHERE p.status = $1 AND c.status = $2
		ORDER BY p.cycle_id
	`

	rows, err := r.db.Query(ctx, query, model.ProtocolStatusActive, model.CycleStatusActive)
	if err != nil {
		r.logger.Error("failed to list active plans", zap.Error(err))
		return nil, fmt.Errorf("failed to list active plans: %w", err)
	}

	plans, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (ActivePlan, error) {
		var p ActivePlan
		err := row.Scan(&p.CycleID, &p.ProtocolPlanID, &p.UserID, &p.Timezone, &p.QuietHoursStart, &p.QuietHoursEnd)
		return p, err
	})
	if err != nil {
		r.logger.Error("failed to scan active plans", zap.Error(err))
		return nil, fmt.Errorf("failed to scan active plans: %w", err)
	}

	return plans, nil
}
