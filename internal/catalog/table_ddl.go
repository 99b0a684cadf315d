package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rowjay/mssql-admin-utility/internal/export"
)

type tableColumn struct {
	name      string
	typeName  string
	maxLength int
	precision int
	scale     int
	nullable  bool
	identity  bool
	seed      int64
	increment int64
}

type keyConstraint struct {
	name      string
	primary   bool
	clustered bool
	columns   []string
}

type foreignKey struct {
	name       string
	columns    []string
	refSchema  string
	refTable   string
	refColumns []string
}

type checkConstraint struct {
	name       string
	definition string
}

type defaultConstraint struct {
	name       string
	column     string
	definition string
}

type tableIndex struct {
	name      string
	unique    bool
	clustered bool
	columns   []string
}

// tableDDL synthesizes CREATE TABLE plus key constraints, referential
// integrity and secondary indexes for one user table.
func (s *Scripter) tableDDL(ctx context.Context, r ref, opts export.ScriptOptions) (string, error) {
	columns, err := s.tableColumns(ctx, r)
	if err != nil {
		return "", err
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("table %s.%s has no columns visible in the catalog", r.schema, r.name)
	}

	var b strings.Builder
	qualified := bracket(r.schema) + "." + bracket(r.name)
	fmt.Fprintf(&b, "CREATE TABLE %s (\n", qualified)

	lines := make([]string, 0, len(columns)+2)
	for _, col := range columns {
		line := "    " + bracket(col.name) + " " + formatDataType(col)
		if col.identity {
			line += fmt.Sprintf(" IDENTITY(%d,%d)", col.seed, col.increment)
		}
		if col.nullable {
			line += " NULL"
		} else {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}

	keys, err := s.keyConstraints(ctx, r)
	if err != nil {
		return "", err
	}
	if opts.DriAll {
		for _, key := range keys {
			kind := "UNIQUE"
			if key.primary {
				kind = "PRIMARY KEY"
			}
			placement := "NONCLUSTERED"
			if key.clustered {
				if !opts.ClusteredIndexes && !key.primary {
					continue
				}
				placement = "CLUSTERED"
			}
			lines = append(lines, fmt.Sprintf("    CONSTRAINT %s %s %s (%s)",
				bracket(key.name), kind, placement, bracketList(key.columns)))
		}
	}
	b.WriteString(strings.Join(lines, ",\n"))
	b.WriteString("\n);\nGO\n")

	if opts.DriAll {
		defaults, err := s.defaultConstraints(ctx, r)
		if err != nil {
			return "", err
		}
		for _, def := range defaults {
			fmt.Fprintf(&b, "ALTER TABLE %s ADD CONSTRAINT %s DEFAULT %s FOR %s;\n",
				qualified, bracket(def.name), def.definition, bracket(def.column))
		}

		checks, err := s.checkConstraints(ctx, r)
		if err != nil {
			return "", err
		}
		for _, check := range checks {
			fmt.Fprintf(&b, "ALTER TABLE %s WITH CHECK ADD CONSTRAINT %s CHECK %s;\n",
				qualified, bracket(check.name), check.definition)
		}

		fks, err := s.foreignKeys(ctx, r)
		if err != nil {
			return "", err
		}
		for _, fk := range fks {
			fmt.Fprintf(&b, "ALTER TABLE %s WITH CHECK ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s.%s (%s);\n",
				qualified, bracket(fk.name), bracketList(fk.columns),
				bracket(fk.refSchema), bracket(fk.refTable), bracketList(fk.refColumns))
		}
	}

	indexes, err := s.tableIndexes(ctx, r)
	if err != nil {
		return "", err
	}
	for _, idx := range indexes {
		if idx.clustered && !opts.ClusteredIndexes {
			continue
		}
		if !idx.clustered && !opts.NonClusteredIndexes {
			continue
		}
		kind := "NONCLUSTERED"
		if idx.clustered {
			kind = "CLUSTERED"
		}
		unique := ""
		if idx.unique {
			unique = "UNIQUE "
		}
		fmt.Fprintf(&b, "CREATE %s%s INDEX %s ON %s (%s);\n",
			unique, kind, bracket(idx.name), qualified, bracketList(idx.columns))
	}

	return b.String(), nil
}

func (s *Scripter) tableColumns(ctx context.Context, r ref) ([]tableColumn, error) {
	query := fmt.Sprintf(`SELECT c.name, t.name, c.max_length, c.precision, c.scale,
			c.is_nullable, c.is_identity,
			ISNULL(ic.seed_value, 1), ISNULL(ic.increment_value, 1)
		FROM %s.sys.columns c
		JOIN %s.sys.types t ON t.user_type_id = c.user_type_id
		LEFT JOIN %s.sys.identity_columns ic
			ON ic.object_id = c.object_id AND ic.column_id = c.column_id
		WHERE c.object_id = @p1
		ORDER BY c.column_id`,
		bracket(r.database), bracket(r.database), bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch columns of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var columns []tableColumn
	for rows.Next() {
		var col tableColumn
		var seed, increment any
		if err := rows.Scan(&col.name, &col.typeName, &col.maxLength, &col.precision, &col.scale,
			&col.nullable, &col.identity, &seed, &increment); err != nil {
			return nil, err
		}
		col.seed = toInt64(seed)
		col.increment = toInt64(increment)
		columns = append(columns, col)
	}
	return columns, rows.Err()
}

func (s *Scripter) keyConstraints(ctx context.Context, r ref) ([]keyConstraint, error) {
	query := fmt.Sprintf(`SELECT kc.name, kc.type, i.type, col.name
		FROM %s.sys.key_constraints kc
		JOIN %s.sys.indexes i
			ON i.object_id = kc.parent_object_id AND i.index_id = kc.unique_index_id
		JOIN %s.sys.index_columns ic
			ON ic.object_id = i.object_id AND ic.index_id = i.index_id
		JOIN %s.sys.columns col
			ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE kc.parent_object_id = @p1
		ORDER BY kc.name, ic.key_ordinal`,
		bracket(r.database), bracket(r.database), bracket(r.database), bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch key constraints of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var keys []keyConstraint
	for rows.Next() {
		var name, constraintType string
		var indexType int
		var column string
		if err := rows.Scan(&name, &constraintType, &indexType, &column); err != nil {
			return nil, err
		}
		if len(keys) == 0 || keys[len(keys)-1].name != name {
			keys = append(keys, keyConstraint{
				name:      name,
				primary:   strings.TrimSpace(constraintType) == "PK",
				clustered: indexType == 1,
			})
		}
		keys[len(keys)-1].columns = append(keys[len(keys)-1].columns, column)
	}
	return keys, rows.Err()
}

func (s *Scripter) defaultConstraints(ctx context.Context, r ref) ([]defaultConstraint, error) {
	query := fmt.Sprintf(`SELECT dc.name, col.name, dc.definition
		FROM %s.sys.default_constraints dc
		JOIN %s.sys.columns col
			ON col.object_id = dc.parent_object_id AND col.column_id = dc.parent_column_id
		WHERE dc.parent_object_id = @p1
		ORDER BY dc.name`,
		bracket(r.database), bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch defaults of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var defaults []defaultConstraint
	for rows.Next() {
		var def defaultConstraint
		if err := rows.Scan(&def.name, &def.column, &def.definition); err != nil {
			return nil, err
		}
		defaults = append(defaults, def)
	}
	return defaults, rows.Err()
}

func (s *Scripter) checkConstraints(ctx context.Context, r ref) ([]checkConstraint, error) {
	query := fmt.Sprintf(`SELECT name, definition
		FROM %s.sys.check_constraints
		WHERE parent_object_id = @p1
		ORDER BY name`, bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch checks of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var checks []checkConstraint
	for rows.Next() {
		var check checkConstraint
		if err := rows.Scan(&check.name, &check.definition); err != nil {
			return nil, err
		}
		checks = append(checks, check)
	}
	return checks, rows.Err()
}

func (s *Scripter) foreignKeys(ctx context.Context, r ref) ([]foreignKey, error) {
	query := fmt.Sprintf(`SELECT fk.name, pc.name, rs.name, rt.name, rc.name
		FROM %s.sys.foreign_keys fk
		JOIN %s.sys.foreign_key_columns fkc ON fkc.constraint_object_id = fk.object_id
		JOIN %s.sys.columns pc
			ON pc.object_id = fkc.parent_object_id AND pc.column_id = fkc.parent_column_id
		JOIN %s.sys.tables rt ON rt.object_id = fk.referenced_object_id
		JOIN %s.sys.schemas rs ON rs.schema_id = rt.schema_id
		JOIN %s.sys.columns rc
			ON rc.object_id = fkc.referenced_object_id AND rc.column_id = fkc.referenced_column_id
		WHERE fk.parent_object_id = @p1
		ORDER BY fk.name, fkc.constraint_column_id`,
		bracket(r.database), bracket(r.database), bracket(r.database),
		bracket(r.database), bracket(r.database), bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch foreign keys of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var fks []foreignKey
	for rows.Next() {
		var name, column, refSchema, refTable, refColumn string
		if err := rows.Scan(&name, &column, &refSchema, &refTable, &refColumn); err != nil {
			return nil, err
		}
		if len(fks) == 0 || fks[len(fks)-1].name != name {
			fks = append(fks, foreignKey{name: name, refSchema: refSchema, refTable: refTable})
		}
		last := &fks[len(fks)-1]
		last.columns = append(last.columns, column)
		last.refColumns = append(last.refColumns, refColumn)
	}
	return fks, rows.Err()
}

// tableIndexes lists plain indexes: key and unique constraints are scripted
// with the table, so they are excluded here.
func (s *Scripter) tableIndexes(ctx context.Context, r ref) ([]tableIndex, error) {
	query := fmt.Sprintf(`SELECT i.name, i.is_unique, i.type, col.name
		FROM %s.sys.indexes i
		JOIN %s.sys.index_columns ic
			ON ic.object_id = i.object_id AND ic.index_id = i.index_id AND ic.is_included_column = 0
		JOIN %s.sys.columns col
			ON col.object_id = ic.object_id AND col.column_id = ic.column_id
		WHERE i.object_id = @p1
		AND i.type IN (1, 2)
		AND i.is_primary_key = 0 AND i.is_unique_constraint = 0
		ORDER BY i.name, ic.key_ordinal`,
		bracket(r.database), bracket(r.database), bracket(r.database))
	rows, err := s.c.db.QueryContext(ctx, query, r.objectID)
	if err != nil {
		return nil, fmt.Errorf("fetch indexes of %s.%s: %w", r.schema, r.name, err)
	}
	defer rows.Close()

	var indexes []tableIndex
	for rows.Next() {
		var name, column string
		var unique bool
		var indexType int
		if err := rows.Scan(&name, &unique, &indexType, &column); err != nil {
			return nil, err
		}
		if len(indexes) == 0 || indexes[len(indexes)-1].name != name {
			indexes = append(indexes, tableIndex{name: name, unique: unique, clustered: indexType == 1})
		}
		indexes[len(indexes)-1].columns = append(indexes[len(indexes)-1].columns, column)
	}
	return indexes, rows.Err()
}

// formatDataType renders the column type with length, precision or scale where
// the type carries one.
func formatDataType(col tableColumn) string {
	typ := strings.ToLower(col.typeName)
	switch typ {
	case "varchar", "char", "varbinary", "binary":
		if col.maxLength == -1 {
			return bracket(typ) + "(MAX)"
		}
		return fmt.Sprintf("%s(%d)", bracket(typ), col.maxLength)
	case "nvarchar", "nchar":
		if col.maxLength == -1 {
			return bracket(typ) + "(MAX)"
		}
		return fmt.Sprintf("%s(%d)", bracket(typ), col.maxLength/2)
	case "decimal", "numeric":
		return fmt.Sprintf("%s(%d,%d)", bracket(typ), col.precision, col.scale)
	case "datetime2", "datetimeoffset", "time":
		return fmt.Sprintf("%s(%d)", bracket(typ), col.scale)
	default:
		return bracket(typ)
	}
}

func bracketList(names []string) string {
	quoted := make([]string, len(names))
	for i, name := range names {
		quoted[i] = bracket(name)
	}
	return strings.Join(quoted, ", ")
}

// toInt64 folds the driver's numeric variants for identity seed/increment.
func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case []byte:
		var out int64
		fmt.Sscanf(string(n), "%d", &out)
		return out
	case sql.NullInt64:
		return n.Int64
	default:
		return 1
	}
}
