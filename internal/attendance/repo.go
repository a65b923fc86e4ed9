package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Repository persists rosters and the engine's event journal in Postgres.
// It also serves as a RosterStore for deployments that keep reference data
// in the database.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Section loads a section with its enrolled student ids.
func (r *Repository) Section(ctx context.Context, sectionID string) (CourseSection, error) {
	var sec CourseSection
	err := r.db.QueryRowContext(ctx, `
		SELECT id, course_id, name, faculty_id
		FROM course_sections WHERE id = $1
	`, sectionID).Scan(&sec.ID, &sec.CourseID, &sec.Name, &sec.FacultyID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CourseSection{}, fmt.Errorf("%w: %s", ErrSectionNotFound, sectionID)
		}
		return CourseSection{}, err
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id FROM enrollments WHERE section_id = $1 ORDER BY student_id
	`, sectionID)
	if err != nil {
		return CourseSection{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return CourseSection{}, err
		}
		sec.StudentIDs = append(sec.StudentIDs, id)
	}
	return sec, rows.Err()
}

// Student loads one student.
func (r *Repository) Student(ctx context.Context, studentID string) (Student, error) {
	var st Student
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, number FROM students WHERE id = $1
	`, studentID).Scan(&st.ID, &st.Name, &st.Number)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Student{}, fmt.Errorf("%w: %s", ErrUnknownStudent, studentID)
		}
		return Student{}, err
	}
	return st, nil
}

// PutStudent creates or updates a student.
func (r *Repository) PutStudent(ctx context.Context, st Student) error {
	if st.ID == "" {
		return fmt.Errorf("%w: student id required", ErrInvalidRoster)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, name, number)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, number = EXCLUDED.number
	`, st.ID, st.Name, st.Number)
	return err
}

// PutSection creates or replaces a section and its enrollment list.
func (r *Repository) PutSection(ctx context.Context, sec CourseSection) error {
	if sec.ID == "" {
		return fmt.Errorf("%w: section id required", ErrInvalidRoster)
	}
	ids := uniqueIDs(sec.StudentIDs)
	sort.Strings(ids)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO course_sections (id, course_id, name, faculty_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			course_id = EXCLUDED.course_id,
			name = EXCLUDED.name,
			faculty_id = EXCLUDED.faculty_id
	`, sec.ID, sec.CourseID, sec.Name, sec.FacultyID); err != nil {
		return fmt.Errorf("upsert section: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM enrollments WHERE section_id = $1`, sec.ID); err != nil {
		return fmt.Errorf("clear enrollments: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO enrollments (section_id, student_id) VALUES ($1, $2)
		`, sec.ID, id); err != nil {
			return fmt.Errorf("enroll %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// ApplyEvent writes one journal event. Events are applied in Seq order by
// the worker; re-delivered events are ignored by their id.
func (r *Repository) ApplyEvent(ctx context.Context, ev Event) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var res sql.Result
	res, err = tx.ExecContext(ctx, `
		INSERT INTO journal_events (id, seq, kind, applied_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, ev.ID, int64(ev.Seq), string(ev.Kind), ev.At)
	if err != nil {
		return fmt.Errorf("record event %s: %w", ev.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}

	switch ev.Kind {
	case EventSessionCreated, EventTokenIssued, EventSessionCompleted:
		if ev.Session == nil {
			return fmt.Errorf("event %s: missing session", ev.ID)
		}
		err = upsertSession(ctx, tx, *ev.Session)
	case EventSessionStarted:
		if ev.Session == nil {
			return fmt.Errorf("event %s: missing session", ev.ID)
		}
		if err = upsertSession(ctx, tx, *ev.Session); err == nil {
			for _, rec := range ev.Records {
				if err = upsertRecord(ctx, tx, rec); err != nil {
					break
				}
			}
		}
	case EventCheckedIn, EventOverridden:
		if ev.Record == nil || ev.Change == nil {
			return fmt.Errorf("event %s: missing record", ev.ID)
		}
		err = upsertRecord(ctx, tx, *ev.Record)
		if err == nil {
			err = insertChange(ctx, tx, ev.ID, ev.Seq, *ev.Change)
		}
		if err == nil && ev.Audit != nil {
			err = insertAudit(ctx, tx, *ev.Audit)
		}
	default:
		return fmt.Errorf("event %s: unknown kind %q", ev.ID, ev.Kind)
	}
	if err != nil {
		return fmt.Errorf("apply %s %s: %w", ev.Kind, ev.ID, err)
	}
	return tx.Commit()
}

// ListAuditEntries returns persisted audit entries for a session, newest first.
func (r *Repository) ListAuditEntries(ctx context.Context, sessionID string, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, ts, actor_id, actor_role, student_id, session_id, course_id, section_id,
		       previous_status, new_status, reason, action
		FROM audit_entries
		WHERE session_id = $1
		ORDER BY ts DESC, id
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var a AuditEntry
		var reason sql.NullString
		if err := rows.Scan(&a.ID, &a.Timestamp, &a.ActorID, &a.ActorRole, &a.StudentID, &a.SessionID,
			&a.CourseID, &a.SectionID, &a.PreviousStatus, &a.NewStatus, &reason, &a.Action); err != nil {
			return nil, err
		}
		if reason.Valid {
			s := reason.String
			a.Reason = &s
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func upsertSession(ctx context.Context, tx *sql.Tx, s Session) error {
	var issuedAt, expiresAt any
	if s.Token != nil {
		issuedAt, expiresAt = s.Token.IssuedAt, s.Token.ExpiresAt
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, section_id, course_id, starts_at, ends_at, location, mode, state,
		                      token_issued_at, token_expires_at, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			token_issued_at = EXCLUDED.token_issued_at,
			token_expires_at = EXCLUDED.token_expires_at,
			started_at = COALESCE(EXCLUDED.started_at, sessions.started_at),
			completed_at = COALESCE(EXCLUDED.completed_at, sessions.completed_at),
			updated_at = NOW()
	`, s.ID, s.SectionID, s.CourseID, nullTime(s.StartsAt), nullTime(s.EndsAt), s.Location, string(s.Mode),
		string(s.State), issuedAt, expiresAt, s.StartedAt, s.CompletedAt)
	return err
}

func upsertRecord(ctx context.Context, tx *sql.Tx, rec Record) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_records (session_id, student_id, status, is_manual_override, override_reason, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (session_id, student_id) DO UPDATE SET
			status = EXCLUDED.status,
			is_manual_override = EXCLUDED.is_manual_override,
			override_reason = EXCLUDED.override_reason,
			updated_at = EXCLUDED.updated_at
	`, rec.SessionID, rec.StudentID, string(rec.Status), rec.IsManualOverride, rec.OverrideReason, rec.UpdatedAt)
	return err
}

func insertChange(ctx context.Context, tx *sql.Tx, eventID string, seq uint64, ch Change) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_changes (event_id, seq, session_id, student_id, from_status, to_status, source, applied_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, eventID, int64(seq), ch.SessionID, ch.StudentID, string(ch.From), string(ch.To), string(ch.Source), ch.At)
	return err
}

func insertAudit(ctx context.Context, tx *sql.Tx, a AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_entries (id, ts, actor_id, actor_role, student_id, session_id, course_id, section_id,
		                           previous_status, new_status, reason, action)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		ON CONFLICT (id) DO NOTHING
	`, a.ID, a.Timestamp, a.ActorID, string(a.ActorRole), a.StudentID, a.SessionID, a.CourseID, a.SectionID,
		string(a.PreviousStatus), string(a.NewStatus), a.Reason, string(a.Action))
	return err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
