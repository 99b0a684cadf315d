package export

import "path/filepath"

// ScriptExtension is the fixed extension for exported object scripts.
const ScriptExtension = ".sql"

// Plan is the resolved destination for one object. Computed fresh per object;
// directory identity depends on database name and type tag, which vary per
// object.
type Plan struct {
	Dir      string
	FileName string
	FullPath string
}

// PlanObject resolves the directory tree and file path for one object.
//
// Server-scoped layout:   root/instance/[timestamp/]tag/name.sql
// Database-scoped layout: root/instance/database/[timestamp/]tag/name.sql
//
// The database-scoped export nests the timestamp inside the per-database
// directory because each database is exported as an independent unit; the two
// layouts are intentionally distinct.
func PlanObject(root, instance, timestamp, database string, tag TypeTag, sanitizedName string) Plan {
	parts := []string{root, Sanitize(instance)}
	if database != "" {
		parts = append(parts, Sanitize(database))
	}
	if timestamp != "" {
		parts = append(parts, timestamp)
	}
	parts = append(parts, string(tag))

	dir := filepath.Join(parts...)
	file := sanitizedName + ScriptExtension
	return Plan{Dir: dir, FileName: file, FullPath: filepath.Join(dir, file)}
}
