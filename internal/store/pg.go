package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes driving the classification.
const (
	codeUndefinedColumn  = "42703"
	codeNotNullViolation = "23502"
	codeUniqueViolation  = "23505"
	codeFKViolation      = "23503"
)

// PG implements Client against a Postgres store opened through the pgx
// stdlib driver.
type PG struct {
	db *sql.DB
}

func NewPG(db *sql.DB) *PG {
	return &PG{db: db}
}

var identPattern = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

func checkIdent(name string) error {
	if !identPattern.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	return nil
}

// sortedKeys keeps generated SQL deterministic for a given payload.
func sortedKeys(r Row) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *PG) Select(ctx context.Context, table string, where Row, orderBy string, limit int) ([]Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("SELECT * FROM ")
	sb.WriteString(table)

	args := make([]any, 0, len(where))
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		for i, k := range sortedKeys(where) {
			if err := checkIdent(k); err != nil {
				return nil, err
			}
			if i > 0 {
				sb.WriteString(" AND ")
			}
			args = append(args, where[k])
			fmt.Fprintf(&sb, "%s = $%d", k, len(args))
		}
	}
	if orderBy != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", limit)
	}

	rows, err := p.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	return scanRows(rows)
}

func (p *PG) Insert(ctx context.Context, table string, payload Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	keys := sortedKeys(payload)
	if len(keys) == 0 {
		return nil, fmt.Errorf("insert into %s: empty payload", table)
	}
	for _, k := range keys {
		if err := checkIdent(k); err != nil {
			return nil, err
		}
	}

	args := make([]any, 0, len(keys))
	placeholders := make([]string, 0, len(keys))
	for _, k := range keys {
		args = append(args, payload[k])
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		table, strings.Join(keys, ", "), strings.Join(placeholders, ", "))

	return p.queryOne(ctx, query, args)
}

func (p *PG) Update(ctx context.Context, table string, id any, payload Row) (Row, error) {
	if err := checkIdent(table); err != nil {
		return nil, err
	}
	keys := sortedKeys(payload)
	if len(keys) == 0 {
		return nil, fmt.Errorf("update %s: empty payload", table)
	}

	args := make([]any, 0, len(keys)+1)
	sets := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := checkIdent(k); err != nil {
			return nil, err
		}
		args = append(args, payload[k])
		sets = append(sets, fmt.Sprintf("%s = $%d", k, len(args)))
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = $%d RETURNING *",
		table, strings.Join(sets, ", "), len(args))

	return p.queryOne(ctx, query, args)
}

func (p *PG) Delete(ctx context.Context, table string, id any) error {
	if err := checkIdent(table); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return classify(err)
	}
	return nil
}

var ErrNoRows = errors.New("store: no rows")

func (p *PG) queryOne(ctx context.Context, query string, args []any) (Row, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		return nil, err
	}
	if len(result) == 0 {
		return nil, ErrNoRows
	}
	return result[0], nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			if b, ok := values[i].([]byte); ok {
				row[c] = string(b)
			} else {
				row[c] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

var (
	unknownColumnPattern = regexp.MustCompile(`column "([^"]+)"`)
	fkDetailPattern      = regexp.MustCompile(`Key \(([^)]+)\)=\((.*)\) is not present in table "([^"]+)"`)
)

// classify maps a pgx error onto the closed ErrorClass enum. The class
// itself comes from the SQLSTATE code; message fields are only consulted
// to recover column and table names Postgres does not expose structurally.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}

	serr := &Error{Err: err}
	switch pgErr.Code {
	case codeUndefinedColumn:
		serr.Class = ClassUnknownColumn
		if m := unknownColumnPattern.FindStringSubmatch(pgErr.Message); m != nil {
			serr.Column = m[1]
		}
	case codeNotNullViolation:
		serr.Class = ClassNotNull
		serr.Column = pgErr.ColumnName
	case codeUniqueViolation:
		serr.Class = ClassUnique
		serr.Constraint = pgErr.ConstraintName
	case codeFKViolation:
		serr.Class = ClassForeignKey
		serr.Constraint = pgErr.ConstraintName
		if m := fkDetailPattern.FindStringSubmatch(pgErr.Detail); m != nil {
			serr.Column = m[1]
			serr.RefValue = m[2]
			serr.RefTable = m[3]
		}
	default:
		return err
	}
	return serr
}
