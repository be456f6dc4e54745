package service

import (
	"context"
	"fmt"
	"reflect"

	"orderbridge/internal/store"
)

// memStore is a minimal in-memory store.Client used across the service
// tests. insertHook lets a test script classified errors for specific
// inserts before the row lands.
type memStore struct {
	tables     map[string][]store.Row
	insertHook func(table string, payload store.Row) error
	nextID     int
	updates    []string
}

func newMemStore() *memStore {
	return &memStore{tables: map[string][]store.Row{}}
}

func (m *memStore) Select(ctx context.Context, table string, where store.Row, orderBy string, limit int) ([]store.Row, error) {
	var out []store.Row
	for _, row := range m.tables[table] {
		match := true
		for k, v := range where {
			if !reflect.DeepEqual(row[k], v) {
				match = false
				break
			}
		}
		if match {
			out = append(out, row)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Insert(ctx context.Context, table string, payload store.Row) (store.Row, error) {
	if m.insertHook != nil {
		if err := m.insertHook(table, payload); err != nil {
			return nil, err
		}
	}
	row := make(store.Row, len(payload)+1)
	for k, v := range payload {
		row[k] = v
	}
	if _, ok := row["id"]; !ok {
		m.nextID++
		row["id"] = fmt.Sprintf("%s-%d", table, m.nextID)
	}
	m.tables[table] = append(m.tables[table], row)
	return row, nil
}

func (m *memStore) Update(ctx context.Context, table string, id any, payload store.Row) (store.Row, error) {
	for _, row := range m.tables[table] {
		if row["id"] == id {
			for k, v := range payload {
				row[k] = v
			}
			m.updates = append(m.updates, fmt.Sprintf("%s/%v", table, id))
			return row, nil
		}
	}
	return nil, fmt.Errorf("no row %v in %s", id, table)
}

func (m *memStore) Delete(ctx context.Context, table string, id any) error {
	rows := m.tables[table]
	for i, row := range rows {
		if row["id"] == id {
			m.tables[table] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}
