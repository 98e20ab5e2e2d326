package schema

import (
	"context"
	"fmt"
	"strings"

	"graphorm/internal/batch"
	"graphorm/internal/catalog"
	"graphorm/internal/dialect"
)

type Action string

const (
	CreateTable   Action = "create_table"
	AddColumn     Action = "add_column"
	AddForeignKey Action = "add_foreign_key"
)

// Statement is one DDL step of a plan.
type Statement struct {
	Action Action
	Table  string
	Column string
	SQL    string
}

func (s Statement) String() string { return s.SQL }

// Live is the introspected layout: table name to its column names.
type Live map[string]map[string]bool

func (l Live) HasTable(name string) bool { return l[strings.ToLower(name)] != nil }

func (l Live) HasColumn(table, column string) bool {
	return l[strings.ToLower(table)][strings.ToLower(column)]
}

// Introspect reads the tables and columns of database.
func Introspect(ctx context.Context, exec batch.Executor, database string, d dialect.Dialect) (Live, error) {
	rs, err := exec.NewBatch(database).Add(batch.Query, d.Introspect()).Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("introspect %s: %w", database, err)
	}
	live := Live{}
	if len(rs) == 0 {
		return live, nil
	}
	for _, row := range rs[0].Rows {
		if len(row) < 2 {
			continue
		}
		table, err := text(row[0])
		if err != nil {
			return nil, err
		}
		column, err := text(row[1])
		if err != nil {
			return nil, err
		}
		table, column = strings.ToLower(table), strings.ToLower(column)
		if live[table] == nil {
			live[table] = map[string]bool{}
		}
		live[table][column] = true
	}
	return live, nil
}

func text(v any) (string, error) {
	c, err := catalog.For[string]()
	if err != nil {
		return "", err
	}
	return c.Decode(v)
}

// Plan lists the statements that bring live up to desired. Deferred
// foreign keys are only added to tables the plan itself creates, so a
// second plan over the result is empty.
func Plan(desired *Schema, live Live, d dialect.Dialect) []Statement {
	var out []Statement
	created := map[string]bool{}
	for _, t := range desired.Tables {
		if !live.HasTable(t.Name) {
			created[t.Name] = true
			out = append(out, Statement{Action: CreateTable, Table: t.Name, SQL: t.CreateSQL(d)})
			continue
		}
		for _, c := range t.Columns {
			if live.HasColumn(t.Name, c.Name) {
				continue
			}
			out = append(out, Statement{
				Action: AddColumn,
				Table:  t.Name,
				Column: c.Name,
				SQL:    "ALTER TABLE " + d.Quote(t.Name) + " ADD COLUMN " + c.SQL,
			})
		}
	}
	for _, fk := range desired.Deferred {
		if !created[fk.Table] {
			continue
		}
		out = append(out, Statement{
			Action: AddForeignKey,
			Table:  fk.Table,
			Column: fk.Column,
			SQL: "ALTER TABLE " + d.Quote(fk.Table) + " ADD CONSTRAINT " + d.Quote(fk.Table+"_"+fk.Column+"_fkey") +
				" FOREIGN KEY (" + d.Quote(fk.Column) + ")" + references(d, fk),
		})
	}
	return out
}
