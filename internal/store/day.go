package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/dukerupert/daybook/internal/model"
)

var (
	ErrInvalidPath  = errors.New("invalid path")
	ErrInvalidValue = errors.New("invalid value")
	ErrConflict     = errors.New("day changed concurrently")
)

// ConflictError reports that a day's version moved between read and write.
type ConflictError struct {
	Day      model.DayKey
	Expected int64
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("day %s changed concurrently (expected version %d)", e.Day, e.Expected)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// Notifier is told which months changed after every committed write.
type Notifier interface {
	Notify(ctx context.Context, months ...model.MonthKey)
}

// Updates maps absolute paths (calendarByDate/YYYY/MM/DD/...) to values.
// A nil value deletes the path.
type Updates map[string]any

// UpdateFunc computes day-relative updates from the current record.
type UpdateFunc func(current model.DayRecord) (map[string]any, error)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// DayStore keeps day records in SQLite behind a path-addressed API.
type DayStore struct {
	db       *sql.DB
	notifier Notifier
	now      func() time.Time
	backoff  func() retry.Backoff
}

func NewDayStore(db *sql.DB, notifier Notifier) *DayStore {
	return &DayStore{
		db:       db,
		notifier: notifier,
		now:      time.Now,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(4, retry.NewExponential(10*time.Millisecond))
		},
	}
}

// GetDay reads one day. found is false when the day was never written.
func (s *DayStore) GetDay(ctx context.Context, key model.DayKey) (rec model.DayRecord, found bool, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		rec, found, err = getDay(ctx, tx, key)
		return err
	})
	return rec, found, err
}

// GetDayOrDefault reads one day, treating absence as available with no
// activities.
func (s *DayStore) GetDayOrDefault(ctx context.Context, key model.DayKey) (model.DayRecord, error) {
	rec, _, err := s.GetDay(ctx, key)
	return rec, err
}

// GetMonth returns every stored day of a month.
func (s *DayStore) GetMonth(ctx context.Context, mk model.MonthKey) (month model.Month, err error) {
	err = s.read(ctx, func(tx *sql.Tx) error {
		month, err = getMonth(ctx, tx, mk)
		return err
	})
	return month, err
}

// read runs fn in a read-only transaction so the days and activities
// queries see one snapshot.
func (s *DayStore) read(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("begin read: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func getMonth(ctx context.Context, q querier, mk model.MonthKey) (model.Month, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT day, status, reason FROM days WHERE year = ? AND month = ? ORDER BY day`,
		mk.Year, int(mk.Month),
	)
	if err != nil {
		return nil, fmt.Errorf("query month: %w", err)
	}
	defer rows.Close()

	month := make(model.Month)
	for rows.Next() {
		var d int
		var rec model.DayRecord
		var reason sql.NullString
		if err := rows.Scan(&d, &rec.Status, &reason); err != nil {
			return nil, fmt.Errorf("scan day: %w", err)
		}
		if reason.Valid {
			rec.Reason = &reason.String
		}
		month[mk.Day(d).Segment()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate days: %w", err)
	}
	rows.Close()

	actRows, err := q.QueryContext(ctx,
		`SELECT day, `+activityCols+` FROM activities WHERE year = ? AND month = ?`,
		mk.Year, int(mk.Month),
	)
	if err != nil {
		return nil, fmt.Errorf("query month activities: %w", err)
	}
	defer actRows.Close()

	for actRows.Next() {
		var d int
		a, err := scanActivity(actRows, &d)
		if err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		seg := mk.Day(d).Segment()
		rec, ok := month[seg]
		if !ok {
			continue
		}
		if rec.Activities == nil {
			rec.Activities = make(map[string]model.Activity)
		}
		rec.Activities[a.ID] = a
		month[seg] = rec
	}
	if err := actRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activities: %w", err)
	}
	return month, nil
}

// WriteMonth replaces a whole month. Days not present in month are lost.
func (s *DayStore) WriteMonth(ctx context.Context, mk model.MonthKey, month model.Month) error {
	type entry struct {
		key model.DayKey
		rec model.DayRecord
	}
	entries := make([]entry, 0, len(month))
	for seg, rec := range month {
		d, err := strconv.Atoi(seg)
		if err != nil || len(seg) != 2 {
			return fmt.Errorf("%w: day segment %q", ErrInvalidPath, seg)
		}
		key, err := model.NewDayKey(mk.Year, mk.Month, d)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		if !rec.Status.Valid() {
			return fmt.Errorf("%w: status %q for %s", ErrInvalidValue, rec.Status, key)
		}
		entries = append(entries, entry{key, rec})
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ?`, mk.Year, int(mk.Month)); err != nil {
		return fmt.Errorf("clear month activities: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE year = ? AND month = ?`, mk.Year, int(mk.Month)); err != nil {
		return fmt.Errorf("clear month: %w", err)
	}
	for _, e := range entries {
		if err := s.putDay(ctx, tx, e.key, e.rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit month: %w", err)
	}
	s.notify(ctx, mk)
	return nil
}

// WriteMultiPath applies every update in one transaction. Ancestors are
// written before descendants, so deleting an activity and the activities
// node in the same call is valid.
func (s *DayStore) WriteMultiPath(ctx context.Context, updates Updates) error {
	ops := make([]op, 0, len(updates))
	for path, value := range updates {
		key, rest, err := model.ParseDayPath(path)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPath, err)
		}
		o, err := parseOp(key, rest, value)
		if err != nil {
			return err
		}
		ops = append(ops, o)
	}
	sortOps(ops)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	touched := make(map[model.DayKey]struct{})
	for _, o := range ops {
		if err := s.apply(ctx, tx, o); err != nil {
			return err
		}
		touched[o.key] = struct{}{}
	}
	months := make(map[model.MonthKey]struct{})
	for key := range touched {
		if _, err := tx.ExecContext(ctx,
			`UPDATE days SET version = version + 1, updated_at = ? WHERE year = ? AND month = ? AND day = ?`,
			s.now().UTC(), key.Year, int(key.Month), key.Day,
		); err != nil {
			return fmt.Errorf("bump version: %w", err)
		}
		months[key.MonthKey()] = struct{}{}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit updates: %w", err)
	}
	for mk := range months {
		s.notify(ctx, mk)
	}
	return nil
}

// Update runs a read-modify-write of one day as a single transaction. fn
// receives the current record (the default when absent) and returns
// day-relative updates. If the day changes underneath, fn is run again
// against the fresh record. Errors returned by fn abort the update and are
// returned unchanged.
func (s *DayStore) Update(ctx context.Context, key model.DayKey, fn UpdateFunc) (model.DayRecord, error) {
	var out model.DayRecord
	err := retry.Do(ctx, s.backoff(), func(ctx context.Context) error {
		rec, err := s.updateOnce(ctx, key, fn)
		if err != nil {
			if errors.Is(err, ErrConflict) || isBusy(err) {
				return retry.RetryableError(err)
			}
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return model.DayRecord{}, err
	}
	return out, nil
}

func (s *DayStore) updateOnce(ctx context.Context, key model.DayKey, fn UpdateFunc) (model.DayRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.DayRecord{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var version int64
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM days WHERE year = ? AND month = ? AND day = ?`,
		key.Year, int(key.Month), key.Day,
	).Scan(&version)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return model.DayRecord{}, fmt.Errorf("read version: %w", err)
	}

	current, _, err := getDay(ctx, tx, key)
	if err != nil {
		return model.DayRecord{}, err
	}

	rel, err := fn(current.Clone())
	if err != nil {
		return model.DayRecord{}, err
	}

	ops := make([]op, 0, len(rel))
	for path, value := range rel {
		o, err := parseOp(key, path, value)
		if err != nil {
			return model.DayRecord{}, err
		}
		ops = append(ops, o)
	}
	sortOps(ops)

	for _, o := range ops {
		if err := s.apply(ctx, tx, o); err != nil {
			return model.DayRecord{}, err
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE days SET version = ?, updated_at = ? WHERE year = ? AND month = ? AND day = ? AND version = ?`,
		version+1, s.now().UTC(), key.Year, int(key.Month), key.Day, version,
	)
	if err != nil {
		return model.DayRecord{}, fmt.Errorf("bump version: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// The day was deleted by fn or moved under us.
		if _, found, err := getDay(ctx, tx, key); err != nil {
			return model.DayRecord{}, err
		} else if found {
			return model.DayRecord{}, &ConflictError{Day: key, Expected: version}
		}
	}

	next, _, err := getDay(ctx, tx, key)
	if err != nil {
		return model.DayRecord{}, err
	}

	if err := tx.Commit(); err != nil {
		return model.DayRecord{}, fmt.Errorf("commit day: %w", err)
	}
	s.notify(ctx, key.MonthKey())
	return next, nil
}

func (s *DayStore) notify(ctx context.Context, mk model.MonthKey) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, mk)
	}
}

func isBusy(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	code := se.Code() & 0xff
	return code == sqlite3.SQLITE_BUSY || code == sqlite3.SQLITE_LOCKED
}

func getDay(ctx context.Context, q querier, key model.DayKey) (model.DayRecord, bool, error) {
	var rec model.DayRecord
	var reason sql.NullString
	err := q.QueryRowContext(ctx,
		`SELECT status, reason FROM days WHERE year = ? AND month = ? AND day = ?`,
		key.Year, int(key.Month), key.Day,
	).Scan(&rec.Status, &reason)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultDay(), false, nil
	}
	if err != nil {
		return model.DayRecord{}, false, fmt.Errorf("query day %s: %w", key, err)
	}
	if reason.Valid {
		rec.Reason = &reason.String
	}

	rows, err := q.QueryContext(ctx,
		`SELECT day, `+activityCols+` FROM activities WHERE year = ? AND month = ? AND day = ?`,
		key.Year, int(key.Month), key.Day,
	)
	if err != nil {
		return model.DayRecord{}, false, fmt.Errorf("query activities %s: %w", key, err)
	}
	defer rows.Close()

	for rows.Next() {
		var d int
		a, err := scanActivity(rows, &d)
		if err != nil {
			return model.DayRecord{}, false, fmt.Errorf("scan activity: %w", err)
		}
		if rec.Activities == nil {
			rec.Activities = make(map[string]model.Activity)
		}
		rec.Activities[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return model.DayRecord{}, false, fmt.Errorf("iterate activities: %w", err)
	}
	return rec, true, nil
}

const activityCols = `id, title, start_time, end_time, activity_type, notes, booked_by_name, booked_by_email, approved, submitted_at`

func scanActivity(scanner interface{ Scan(...any) error }, day *int) (model.Activity, error) {
	var a model.Activity
	var notes, name, email sql.NullString
	var approved int
	err := scanner.Scan(day, &a.ID, &a.Title, &a.StartTime, &a.EndTime, &a.ActivityType, &notes, &name, &email, &approved, &a.SubmittedAt)
	if err != nil {
		return model.Activity{}, err
	}
	if notes.Valid {
		a.Notes = &notes.String
	}
	if name.Valid || email.Valid {
		a.BookedBy = &model.BookedBy{Name: name.String, Email: email.String}
	}
	a.Approved = approved != 0
	a.SubmittedAt = a.SubmittedAt.UTC()
	return a, nil
}

type opKind int

const (
	opDeleteDay opKind = iota
	opPutDay
	opStatus
	opReason
	opDeleteActivities
	opPutActivities
	opDeleteActivity
	opPutActivity
	opApproved
)

type op struct {
	key   model.DayKey
	depth int
	path  string
	kind  opKind

	day        model.DayRecord
	status     model.Status
	reason     *string
	activityID string
	activity   model.Activity
	activities map[string]model.Activity
	approved   bool
}

func parseOp(key model.DayKey, rel string, value any) (op, error) {
	rel = strings.Trim(rel, "/")
	o := op{key: key, path: rel}
	if rel != "" {
		o.depth = strings.Count(rel, "/") + 1
	}
	parts := strings.Split(rel, "/")

	bad := func() (op, error) {
		return op{}, fmt.Errorf("%w: %T at %s/%s", ErrInvalidValue, value, key.Path(), rel)
	}

	switch {
	case rel == "":
		switch v := value.(type) {
		case nil:
			o.kind = opDeleteDay
		case model.DayRecord:
			o.kind, o.day = opPutDay, v
			if !v.Status.Valid() {
				return bad()
			}
		default:
			return bad()
		}
	case rel == "status":
		o.kind = opStatus
		switch v := value.(type) {
		case model.Status:
			o.status = v
		case string:
			o.status = model.Status(v)
		default:
			return bad()
		}
		if !o.status.Valid() {
			return bad()
		}
	case rel == "reason":
		o.kind = opReason
		switch v := value.(type) {
		case nil:
		case string:
			o.reason = &v
		case *string:
			o.reason = v
		default:
			return bad()
		}
	case rel == "activities":
		switch v := value.(type) {
		case nil:
			o.kind = opDeleteActivities
		case map[string]model.Activity:
			o.kind, o.activities = opPutActivities, v
		default:
			return bad()
		}
	case len(parts) == 2 && parts[0] == "activities" && parts[1] != "":
		o.activityID = parts[1]
		switch v := value.(type) {
		case nil:
			o.kind = opDeleteActivity
		case model.Activity:
			o.kind, o.activity = opPutActivity, v
		default:
			return bad()
		}
	case len(parts) == 3 && parts[0] == "activities" && parts[1] != "" && parts[2] == "approved":
		o.kind, o.activityID = opApproved, parts[1]
		v, ok := value.(bool)
		if !ok {
			return bad()
		}
		o.approved = v
	default:
		return op{}, fmt.Errorf("%w: %s/%s", ErrInvalidPath, key.Path(), rel)
	}
	return o, nil
}

func sortOps(ops []op) {
	sort.SliceStable(ops, func(i, j int) bool {
		if ops[i].depth != ops[j].depth {
			return ops[i].depth < ops[j].depth
		}
		if ops[i].key != ops[j].key {
			return ops[i].key.String() < ops[j].key.String()
		}
		return ops[i].path < ops[j].path
	})
}

func (s *DayStore) apply(ctx context.Context, tx *sql.Tx, o op) error {
	k := o.key
	switch o.kind {
	case opDeleteDay:
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("delete day activities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("delete day: %w", err)
		}
		return nil
	case opPutDay:
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("clear day activities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM days WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("clear day: %w", err)
		}
		return s.putDay(ctx, tx, k, o.day)
	}

	if err := ensureDay(ctx, tx, k); err != nil {
		return err
	}

	switch o.kind {
	case opStatus:
		if _, err := tx.ExecContext(ctx, `UPDATE days SET status = ? WHERE year = ? AND month = ? AND day = ?`, string(o.status), k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("set status: %w", err)
		}
	case opReason:
		var reason sql.NullString
		if o.reason != nil {
			reason = sql.NullString{String: *o.reason, Valid: true}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE days SET reason = ? WHERE year = ? AND month = ? AND day = ?`, reason, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("set reason: %w", err)
		}
	case opDeleteActivities:
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("delete activities: %w", err)
		}
	case opPutActivities:
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ? AND day = ?`, k.Year, int(k.Month), k.Day); err != nil {
			return fmt.Errorf("replace activities: %w", err)
		}
		for id, a := range o.activities {
			if err := s.putActivity(ctx, tx, k, id, a); err != nil {
				return err
			}
		}
	case opDeleteActivity:
		if _, err := tx.ExecContext(ctx, `DELETE FROM activities WHERE year = ? AND month = ? AND day = ? AND id = ?`, k.Year, int(k.Month), k.Day, o.activityID); err != nil {
			return fmt.Errorf("delete activity: %w", err)
		}
	case opPutActivity:
		return s.putActivity(ctx, tx, k, o.activityID, o.activity)
	case opApproved:
		res, err := tx.ExecContext(ctx,
			`UPDATE activities SET approved = ? WHERE year = ? AND month = ? AND day = ? AND id = ?`,
			boolInt(o.approved), k.Year, int(k.Month), k.Day, o.activityID,
		)
		if err != nil {
			return fmt.Errorf("set approved: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: no activity %s on %s", ErrInvalidPath, o.activityID, k)
		}
	}
	return nil
}

func ensureDay(ctx context.Context, tx *sql.Tx, k model.DayKey) error {
	_, err := tx.ExecContext(ctx,
		`INSERT OR IGNORE INTO days (year, month, day, status) VALUES (?, ?, ?, ?)`,
		k.Year, int(k.Month), k.Day, string(model.StatusAvailable),
	)
	if err != nil {
		return fmt.Errorf("create day %s: %w", k, err)
	}
	return nil
}

func (s *DayStore) putDay(ctx context.Context, tx *sql.Tx, k model.DayKey, rec model.DayRecord) error {
	var reason sql.NullString
	if rec.Reason != nil {
		reason = sql.NullString{String: *rec.Reason, Valid: true}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO days (year, month, day, status, reason, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		k.Year, int(k.Month), k.Day, string(rec.Status), reason, s.now().UTC(),
	); err != nil {
		return fmt.Errorf("insert day %s: %w", k, err)
	}
	for id, a := range rec.Activities {
		if err := s.putActivity(ctx, tx, k, id, a); err != nil {
			return err
		}
	}
	return nil
}

func (s *DayStore) putActivity(ctx context.Context, tx *sql.Tx, k model.DayKey, id string, a model.Activity) error {
	if id == "" || strings.Contains(id, "/") {
		return fmt.Errorf("%w: activity id %q", ErrInvalidPath, id)
	}
	submitted := a.SubmittedAt
	if submitted.IsZero() {
		submitted = s.now()
	}

	var notes, name, email sql.NullString
	if a.Notes != nil {
		notes = sql.NullString{String: *a.Notes, Valid: true}
	}
	if a.BookedBy != nil {
		name = sql.NullString{String: a.BookedBy.Name, Valid: true}
		email = sql.NullString{String: a.BookedBy.Email, Valid: true}
	}

	_, err := tx.ExecContext(ctx,
		`INSERT INTO activities (year, month, day, id, title, start_time, end_time, activity_type, notes, booked_by_name, booked_by_email, approved, submitted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (year, month, day, id) DO UPDATE SET
		   title = excluded.title, start_time = excluded.start_time, end_time = excluded.end_time,
		   activity_type = excluded.activity_type, notes = excluded.notes,
		   booked_by_name = excluded.booked_by_name, booked_by_email = excluded.booked_by_email,
		   approved = excluded.approved, submitted_at = excluded.submitted_at`,
		k.Year, int(k.Month), k.Day, id, a.Title, a.StartTime, a.EndTime, a.ActivityType,
		notes, name, email, boolInt(a.Approved), submitted.UTC(),
	)
	if err != nil {
		return fmt.Errorf("put activity %s: %w", id, err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
