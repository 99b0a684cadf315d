// Package report holds the informational inventory helpers: each function is
// a plain fetch/reshape projection over the server's dynamic management views,
// with no pipeline logic of its own.
package report

import (
	"context"
	"database/sql"
	"time"
)

// Service runs the inventory queries over an established catalog connection.
type Service struct {
	db  *sql.DB
	now func() time.Time
}

func New(db *sql.DB) *Service {
	return &Service{db: db, now: time.Now}
}

// DiskVolume is one mounted volume hosting database files.
type DiskVolume struct {
	MountPoint     string `json:"mount_point"`
	Label          string `json:"label"`
	FileSystem     string `json:"file_system"`
	TotalBytes     int64  `json:"total_bytes"`
	AvailableBytes int64  `json:"available_bytes"`
}

func (s *Service) Disks(ctx context.Context) ([]DiskVolume, error) {
	query := `SELECT DISTINCT vs.volume_mount_point,
			ISNULL(vs.logical_volume_name, ''),
			vs.file_system_type, vs.total_bytes, vs.available_bytes
		FROM sys.master_files mf
		CROSS APPLY sys.dm_os_volume_stats(mf.database_id, mf.file_id) vs
		ORDER BY vs.volume_mount_point`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var volumes []DiskVolume
	for rows.Next() {
		var v DiskVolume
		if err := rows.Scan(&v.MountPoint, &v.Label, &v.FileSystem, &v.TotalBytes, &v.AvailableBytes); err != nil {
			return nil, err
		}
		volumes = append(volumes, v)
	}
	return volumes, rows.Err()
}

// HostFacts are the basic hardware and OS facts of the database host.
type HostFacts struct {
	Platform       string `json:"platform"`
	Distribution   string `json:"distribution"`
	Release        string `json:"release"`
	CPUCount       int    `json:"cpu_count"`
	PhysicalMemMB  int64  `json:"physical_memory_mb"`
	VirtualMachine bool   `json:"virtual_machine"`
}

func (s *Service) Host(ctx context.Context) (*HostFacts, error) {
	var facts HostFacts
	var vmType string
	query := `SELECT hi.host_platform, ISNULL(hi.host_distribution, ''), ISNULL(hi.host_release, ''),
			si.cpu_count, si.physical_memory_kb / 1024, si.virtual_machine_type_desc
		FROM sys.dm_os_host_info hi CROSS JOIN sys.dm_os_sys_info si`
	if err := s.db.QueryRowContext(ctx, query).Scan(
		&facts.Platform, &facts.Distribution, &facts.Release,
		&facts.CPUCount, &facts.PhysicalMemMB, &vmType); err != nil {
		return nil, err
	}
	facts.VirtualMachine = vmType != "NONE"
	return &facts, nil
}

// ServiceStatus is one SQL Server related host service.
type ServiceStatus struct {
	Name        string `json:"name"`
	StartupType string `json:"startup_type"`
	Status      string `json:"status"`
	Account     string `json:"account"`
}

func (s *Service) Services(ctx context.Context) ([]ServiceStatus, error) {
	query := `SELECT servicename, startup_type_desc, status_desc, service_account
		FROM sys.dm_server_services ORDER BY servicename`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var services []ServiceStatus
	for rows.Next() {
		var svc ServiceStatus
		if err := rows.Scan(&svc.Name, &svc.StartupType, &svc.Status, &svc.Account); err != nil {
			return nil, err
		}
		services = append(services, svc)
	}
	return services, rows.Err()
}

// ConfigOption is one instance configuration value.
type ConfigOption struct {
	Name       string `json:"name"`
	Value      int64  `json:"value"`
	ValueInUse int64  `json:"value_in_use"`
}

func (s *Service) Configuration(ctx context.Context) ([]ConfigOption, error) {
	query := `SELECT name, CAST(value AS bigint), CAST(value_in_use AS bigint)
		FROM sys.configurations ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []ConfigOption
	for rows.Next() {
		var opt ConfigOption
		if err := rows.Scan(&opt.Name, &opt.Value, &opt.ValueInUse); err != nil {
			return nil, err
		}
		options = append(options, opt)
	}
	return options, rows.Err()
}

// DatabaseProperties are the headline properties of one database.
type DatabaseProperties struct {
	Name               string    `json:"name"`
	State              string    `json:"state"`
	RecoveryModel      string    `json:"recovery_model"`
	CompatibilityLevel int       `json:"compatibility_level"`
	Collation          string    `json:"collation"`
	Created            time.Time `json:"created"`
}

func (s *Service) Databases(ctx context.Context) ([]DatabaseProperties, error) {
	query := `SELECT name, state_desc, recovery_model_desc, compatibility_level,
			ISNULL(collation_name, ''), create_date
		FROM sys.databases ORDER BY name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dbs []DatabaseProperties
	for rows.Next() {
		var db DatabaseProperties
		if err := rows.Scan(&db.Name, &db.State, &db.RecoveryModel, &db.CompatibilityLevel, &db.Collation, &db.Created); err != nil {
			return nil, err
		}
		dbs = append(dbs, db)
	}
	return dbs, rows.Err()
}

// BackupRecord is one row of backup history.
type BackupRecord struct {
	Database  string    `json:"database"`
	Type      string    `json:"type"`
	Started   time.Time `json:"started"`
	Finished  time.Time `json:"finished"`
	SizeBytes int64     `json:"size_bytes"`
	Device    string    `json:"device"`
}

// BackupHistory returns the most recent backups, newest first.
func (s *Service) BackupHistory(ctx context.Context, limit int) ([]BackupRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT TOP (@p1) bs.database_name, bs.type,
			bs.backup_start_date, bs.backup_finish_date,
			CAST(bs.backup_size AS bigint), ISNULL(bmf.physical_device_name, '')
		FROM msdb.dbo.backupset bs
		LEFT JOIN msdb.dbo.backupmediafamily bmf ON bmf.media_set_id = bs.media_set_id
		ORDER BY bs.backup_finish_date DESC`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BackupRecord
	for rows.Next() {
		var rec BackupRecord
		var typ string
		if err := rows.Scan(&rec.Database, &typ, &rec.Started, &rec.Finished, &rec.SizeBytes, &rec.Device); err != nil {
			return nil, err
		}
		rec.Type = backupTypeName(typ)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Uptime reports when the instance started and how long it has been up.
type Uptime struct {
	StartedAt time.Time `json:"started_at"`
	Uptime    string    `json:"uptime"`
}

func (s *Service) Uptime(ctx context.Context) (*Uptime, error) {
	var started time.Time
	if err := s.db.QueryRowContext(ctx,
		`SELECT sqlserver_start_time FROM sys.dm_os_sys_info`).Scan(&started); err != nil {
		return nil, err
	}
	return &Uptime{StartedAt: started, Uptime: s.now().Sub(started).Round(time.Second).String()}, nil
}

// Permission is one granted or denied server-level permission.
type Permission struct {
	Grantee    string `json:"grantee"`
	Permission string `json:"permission"`
	State      string `json:"state"`
}

func (s *Service) Permissions(ctx context.Context) ([]Permission, error) {
	query := `SELECT pr.name, pe.permission_name, pe.state_desc
		FROM sys.server_permissions pe
		JOIN sys.server_principals pr ON pr.principal_id = pe.grantee_principal_id
		WHERE pr.name NOT LIKE '##%'
		ORDER BY pr.name, pe.permission_name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.Grantee, &p.Permission, &p.State); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// RoleMembership is one (role, member) pair; rows are sorted by role then
// member name.
type RoleMembership struct {
	Role   string `json:"role"`
	Member string `json:"member"`
}

func (s *Service) RoleMemberships(ctx context.Context) ([]RoleMembership, error) {
	query := `SELECT r.name, m.name
		FROM sys.server_role_members rm
		JOIN sys.server_principals r ON r.principal_id = rm.role_principal_id
		JOIN sys.server_principals m ON m.principal_id = rm.member_principal_id
		ORDER BY r.name, m.name`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var members []RoleMembership
	for rows.Next() {
		var m RoleMembership
		if err := rows.Scan(&m.Role, &m.Member); err != nil {
			return nil, err
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// backupTypeName expands the single-letter backup type codes of msdb.
func backupTypeName(code string) string {
	switch code {
	case "D":
		return "Full"
	case "I":
		return "Differential"
	case "L":
		return "Log"
	case "F":
		return "File"
	case "G":
		return "FileDifferential"
	case "P":
		return "Partial"
	case "Q":
		return "PartialDifferential"
	default:
		return code
	}
}
