package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
	"github.com/lib/pq"
)

// PostgresStore implements ReferenceStore and UploadJobStore on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// ConnectPostgres opens the pool, verifies connectivity and ensures the
// schema exists.
func ConnectPostgres(connectionString string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping PostgreSQL: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	p := &PostgresStore{db: db}
	if err := p.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %v", err)
	}

	log.Println("Connected to PostgreSQL successfully")
	return p, nil
}

func (p *PostgresStore) createTables() error {
	query := `
    CREATE TABLE IF NOT EXISTS file_references (
        id CHAR(32) PRIMARY KEY,
        owner_id VARCHAR(255) NOT NULL,
        role VARCHAR(20) NOT NULL,
        object_name VARCHAR(500) NOT NULL,
        size BIGINT NOT NULL,
        mime_type VARCHAR(100) NOT NULL,
        file_name VARCHAR(255) NOT NULL,
        intended_platform VARCHAR(50),
        detected_platforms TEXT[] NOT NULL DEFAULT '{}',
        status VARCHAR(20) NOT NULL DEFAULT 'pending',
        scan_status VARCHAR(20) NOT NULL DEFAULT 'pending',
        scanned_at TIMESTAMPTZ,
        created_at TIMESTAMPTZ NOT NULL,
        expires_at TIMESTAMPTZ NOT NULL
    );

    CREATE TABLE IF NOT EXISTS upload_jobs (
        id UUID PRIMARY KEY,
        owner_id VARCHAR(255) NOT NULL,
        platform VARCHAR(50) NOT NULL,
        platform_account_id VARCHAR(255),
        video_reference_id CHAR(32),
        thumbnail_reference_id CHAR(32),
        title VARCHAR(500),
        description TEXT,
        tags TEXT[] NOT NULL DEFAULT '{}',
        privacy VARCHAR(20),
        platform_metadata TEXT NOT NULL DEFAULT '{}',
        status VARCHAR(20) NOT NULL DEFAULT 'pending',
        bytes_uploaded BIGINT NOT NULL DEFAULT 0,
        total_bytes BIGINT NOT NULL DEFAULT 0,
        platform_post_id VARCHAR(255),
        platform_url VARCHAR(500),
        error_message TEXT,
        created_at TIMESTAMPTZ NOT NULL,
        started_at TIMESTAMPTZ,
        completed_at TIMESTAMPTZ
    );
    `
	if _, err := p.db.Exec(query); err != nil {
		return err
	}

	indexQuery := `
    CREATE INDEX IF NOT EXISTS idx_refs_expires_at ON file_references(expires_at);
    CREATE INDEX IF NOT EXISTS idx_refs_owner_role ON file_references(owner_id, role, status, created_at DESC);
    CREATE INDEX IF NOT EXISTS idx_jobs_owner_status ON upload_jobs(owner_id, status);
    CREATE INDEX IF NOT EXISTS idx_jobs_status_started ON upload_jobs(status, started_at);
    `
	_, err := p.db.Exec(indexQuery)
	return err
}

// --- ReferenceStore ---

func (p *PostgresStore) CreateReference(ref *models.FileReference) error {
	query := `
    INSERT INTO file_references
        (id, owner_id, role, object_name, size, mime_type, file_name,
         intended_platform, detected_platforms, status, scan_status, created_at, expires_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `
	_, err := p.db.Exec(query,
		ref.ID,
		ref.OwnerID,
		string(ref.Role),
		ref.ObjectName,
		ref.Size,
		ref.MimeType,
		ref.FileName,
		ref.IntendedPlatform,
		pq.Array(ref.DetectedPlatforms),
		string(ref.Status),
		ref.ScanStatus,
		ref.CreatedAt,
		ref.ExpiresAt,
	)
	if err != nil {
		// Unique violation means an id collision; surface it, never upsert.
		return fmt.Errorf("failed to insert reference %s: %w", ref.ID, err)
	}
	return nil
}

const referenceColumns = `
    id, owner_id, role, object_name, size, mime_type, file_name,
    COALESCE(intended_platform, ''), detected_platforms, status,
    scan_status, scanned_at, created_at, expires_at`

func (p *PostgresStore) scanReference(row interface{ Scan(...interface{}) error }) (models.FileReference, error) {
	var ref models.FileReference
	var role, status string
	var scannedAt sql.NullTime
	err := row.Scan(
		&ref.ID,
		&ref.OwnerID,
		&role,
		&ref.ObjectName,
		&ref.Size,
		&ref.MimeType,
		&ref.FileName,
		&ref.IntendedPlatform,
		pq.Array(&ref.DetectedPlatforms),
		&status,
		&ref.ScanStatus,
		&scannedAt,
		&ref.CreatedAt,
		&ref.ExpiresAt,
	)
	if err != nil {
		return models.FileReference{}, err
	}
	ref.Role = models.FileRole(role)
	ref.Status = models.ReferenceStatus(status)
	if scannedAt.Valid {
		t := scannedAt.Time
		ref.ScannedAt = &t
	}
	return ref, nil
}

func (p *PostgresStore) GetReference(id, ownerID string) (models.FileReference, error) {
	query := `
    SELECT ` + referenceColumns + `
    FROM file_references
    WHERE id = $1 AND owner_id = $2 AND status = 'pending' AND expires_at > NOW()
    `
	ref, err := p.scanReference(p.db.QueryRow(query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileReference{}, models.ErrNotFound
		}
		log.Printf("[DB] error getting reference %s: %v", id, err)
		return models.FileReference{}, err
	}
	return ref, nil
}

func (p *PostgresStore) MarkUsed(id, ownerID string) error {
	// CAS from pending to used; losing a race is a Conflict, a missing or
	// expired row is NotFound.
	result, err := p.db.Exec(`
        UPDATE file_references SET status = 'used'
        WHERE id = $1 AND owner_id = $2 AND status = 'pending' AND expires_at > NOW()
    `, id, ownerID)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	err = p.db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM file_references
            WHERE id = $1 AND owner_id = $2 AND expires_at > NOW()
        )
    `, id, ownerID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists {
		return models.ErrConflict
	}
	return models.ErrNotFound
}

func (p *PostgresStore) LatestPending(ownerID string, role models.FileRole) (models.FileReference, error) {
	query := `
    SELECT ` + referenceColumns + `
    FROM file_references
    WHERE owner_id = $1 AND role = $2 AND status = 'pending' AND expires_at > NOW()
    ORDER BY created_at DESC
    LIMIT 1
    `
	ref, err := p.scanReference(p.db.QueryRow(query, ownerID, string(role)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileReference{}, models.ErrNotFound
		}
		return models.FileReference{}, err
	}
	return ref, nil
}

func (p *PostgresStore) UpdateScanStatus(id, status string, scannedAt time.Time) error {
	result, err := p.db.Exec(`
        UPDATE file_references SET scan_status = $1, scanned_at = $2 WHERE id = $3
    `, status, scannedAt, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ExpireReference(id string, expiresAt time.Time) error {
	result, err := p.db.Exec(`
        UPDATE file_references SET expires_at = $1 WHERE id = $2
    `, expiresAt, id)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *PostgresStore) ReferenceStats(ownerID string) (models.ReferenceStats, error) {
	rows, err := p.db.Query(`
        SELECT status, COUNT(*), COALESCE(SUM(size), 0)
        FROM file_references
        WHERE owner_id = $1 AND expires_at > NOW()
        GROUP BY status
    `, ownerID)
	if err != nil {
		return models.ReferenceStats{}, err
	}
	defer rows.Close()

	var stats models.ReferenceStats
	for rows.Next() {
		var status string
		var count int
		var bytes int64
		if err := rows.Scan(&status, &count, &bytes); err != nil {
			return models.ReferenceStats{}, err
		}
		switch models.ReferenceStatus(status) {
		case models.ReferencePending:
			stats.Pending = count
		case models.ReferenceUsed:
			stats.Used = count
		}
		stats.TotalBytes += bytes
	}
	return stats, rows.Err()
}

func (p *PostgresStore) DeleteReference(id, ownerID string) (models.FileReference, error) {
	query := `
    DELETE FROM file_references WHERE id = $1 AND owner_id = $2
    RETURNING ` + referenceColumns
	ref, err := p.scanReference(p.db.QueryRow(query, id, ownerID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.FileReference{}, models.ErrNotFound
		}
		return models.FileReference{}, err
	}
	return ref, nil
}

func (p *PostgresStore) DeleteExpired(now time.Time) ([]models.FileReference, error) {
	return p.deleteReferences(`
        DELETE FROM file_references WHERE expires_at < $1
        RETURNING `+referenceColumns, now)
}

func (p *PostgresStore) DeleteUsedBefore(cutoff time.Time) ([]models.FileReference, error) {
	return p.deleteReferences(`
        DELETE FROM file_references WHERE status = 'used' AND created_at < $1
        RETURNING `+referenceColumns, cutoff)
}

func (p *PostgresStore) DeleteAllForOwner(ownerID string) ([]models.FileReference, error) {
	return p.deleteReferences(`
        DELETE FROM file_references WHERE owner_id = $1
        RETURNING `+referenceColumns, ownerID)
}

func (p *PostgresStore) deleteReferences(query string, arg interface{}) ([]models.FileReference, error) {
	rows, err := p.db.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			log.Printf("[DB] error closing rows: %v", cerr)
		}
	}()

	var removed []models.FileReference
	for rows.Next() {
		ref, err := p.scanReference(rows)
		if err != nil {
			log.Printf("[DB] error scanning deleted reference: %v", err)
			continue
		}
		removed = append(removed, ref)
	}
	return removed, rows.Err()
}

// --- UploadJobStore ---

func (p *PostgresStore) CreateJob(job *models.UploadJob) error {
	meta, err := json.Marshal(job.PlatformMetadata)
	if err != nil {
		return fmt.Errorf("failed to marshal platform metadata: %w", err)
	}

	query := `
    INSERT INTO upload_jobs
        (id, owner_id, platform, platform_account_id, video_reference_id,
         thumbnail_reference_id, title, description, tags, privacy,
         platform_metadata, status, bytes_uploaded, total_bytes, created_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `
	_, err = p.db.Exec(query,
		job.ID,
		job.OwnerID,
		job.Platform,
		job.PlatformAccountID,
		nullIfEmpty(job.VideoReferenceID),
		nullIfEmpty(job.ThumbReferenceID),
		job.Title,
		job.Description,
		pq.Array(job.Tags),
		job.Privacy,
		string(meta),
		string(job.Status),
		job.BytesUploaded,
		job.TotalBytes,
		job.CreatedAt,
	)
	return err
}

func (p *PostgresStore) GetJob(id string) (models.UploadJob, error) {
	query := `
    SELECT id, owner_id, platform, COALESCE(platform_account_id, ''),
           COALESCE(video_reference_id, ''), COALESCE(thumbnail_reference_id, ''),
           COALESCE(title, ''), COALESCE(description, ''), tags,
           COALESCE(privacy, ''), platform_metadata, status, bytes_uploaded,
           total_bytes, COALESCE(platform_post_id, ''), COALESCE(platform_url, ''),
           COALESCE(error_message, ''), created_at, started_at, completed_at
    FROM upload_jobs WHERE id = $1
    `
	var job models.UploadJob
	var status, meta string
	var startedAt, completedAt sql.NullTime
	err := p.db.QueryRow(query, id).Scan(
		&job.ID,
		&job.OwnerID,
		&job.Platform,
		&job.PlatformAccountID,
		&job.VideoReferenceID,
		&job.ThumbReferenceID,
		&job.Title,
		&job.Description,
		pq.Array(&job.Tags),
		&job.Privacy,
		&meta,
		&status,
		&job.BytesUploaded,
		&job.TotalBytes,
		&job.PlatformPostID,
		&job.PlatformURL,
		&job.ErrorMessage,
		&job.CreatedAt,
		&startedAt,
		&completedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.UploadJob{}, models.ErrNotFound
		}
		return models.UploadJob{}, err
	}
	job.Status = models.UploadStatus(status)
	if meta != "" {
		if err := json.Unmarshal([]byte(meta), &job.PlatformMetadata); err != nil {
			log.Printf("[DB] invalid platform metadata on job %s: %v", id, err)
		}
	}
	if startedAt.Valid {
		t := startedAt.Time
		job.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		job.CompletedAt = &t
	}
	return job, nil
}

func (p *PostgresStore) MarkUploading(id string, totalBytes int64, startedAt time.Time) error {
	return p.casJob(id, `
        UPDATE upload_jobs SET status = 'uploading', total_bytes = $2, started_at = $3
        WHERE id = $1 AND status = 'pending'
    `, id, totalBytes, startedAt)
}

func (p *PostgresStore) MarkProcessing(id string) error {
	return p.casJob(id, `
        UPDATE upload_jobs SET status = 'processing'
        WHERE id = $1 AND status = 'uploading'
    `, id)
}

func (p *PostgresStore) MarkCompleted(id, postID, url string, completedAt time.Time) error {
	return p.casJob(id, `
        UPDATE upload_jobs
        SET status = 'completed', platform_post_id = $2, platform_url = $3, completed_at = $4
        WHERE id = $1 AND status = 'processing'
    `, id, postID, url, completedAt)
}

func (p *PostgresStore) MarkFailed(id, errorMessage string, completedAt time.Time) error {
	return p.casJob(id, `
        UPDATE upload_jobs SET status = 'failed', error_message = $2, completed_at = $3
        WHERE id = $1 AND status NOT IN ('completed', 'failed')
    `, id, errorMessage, completedAt)
}

func (p *PostgresStore) UpdateProgress(id string, bytesUploaded int64) error {
	// Monotonic by construction: GREATEST keeps concurrent pollers from ever
	// observing a decrease, LEAST caps at total_bytes.
	result, err := p.db.Exec(`
        UPDATE upload_jobs
        SET bytes_uploaded = LEAST(total_bytes, GREATEST(bytes_uploaded, $2))
        WHERE id = $1 AND status = 'uploading'
    `, id, bytesUploaded)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrConflict
	}
	return nil
}

func (p *PostgresStore) ListStuck(cutoff time.Time) ([]models.UploadJob, error) {
	rows, err := p.db.Query(`
        SELECT id FROM upload_jobs
        WHERE status IN ('uploading', 'processing') AND started_at < $1
    `, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stuck []models.UploadJob
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		job, err := p.GetJob(id)
		if err != nil {
			log.Printf("[DB] error loading stuck job %s: %v", id, err)
			continue
		}
		stuck = append(stuck, job)
	}
	return stuck, rows.Err()
}

func (p *PostgresStore) JobStats(ownerID string) (map[models.UploadStatus]int, error) {
	rows, err := p.db.Query(`
        SELECT status, COUNT(*) FROM upload_jobs WHERE owner_id = $1 GROUP BY status
    `, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := make(map[models.UploadStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[models.UploadStatus(status)] = count
	}
	return stats, rows.Err()
}

func (p *PostgresStore) casJob(id, query string, args ...interface{}) error {
	result, err := p.db.Exec(query, args...)
	if err != nil {
		return err
	}
	if n, _ := result.RowsAffected(); n > 0 {
		return nil
	}

	var exists bool
	if err := p.db.QueryRow(
		`SELECT EXISTS (SELECT 1 FROM upload_jobs WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return models.ErrConflict
	}
	return models.ErrNotFound
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
