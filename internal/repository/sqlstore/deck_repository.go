package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"slidedrop/internal/repository"
)

// NewDeckRepository 返回基于 *sql.DB 的 deck 仓储实现，SQL 同时兼容 Postgres 与 SQLite。
func NewDeckRepository(db *sql.DB, dialect Dialect) *DeckRepository {
	return &DeckRepository{db: db, dialect: dialect}
}

// DeckRepository 实现 repository.DeckRepository。
type DeckRepository struct {
	db      *sql.DB
	dialect Dialect
}

var deckSelectColumns = []string{
	"id",
	"owner_id",
	"slug",
	"title",
	"description",
	"file_url",
	"file_path",
	"pages",
	"status",
	"file_type",
	"display_mode",
	"file_size",
	"access",
	"expires_at",
	"created_at",
	"updated_at",
}

var deckInsertColumns = []string{
	"id",
	"owner_id",
	"slug",
	"title",
	"description",
	"file_url",
	"file_path",
	"pages",
	"status",
	"file_type",
	"display_mode",
	"file_size",
	"access",
	"expires_at",
	"created_at",
	"updated_at",
}

// Create 插入 deck 记录；同一 owner 下 slug 重复时返回 repository.ErrConflict。
func (r *DeckRepository) Create(ctx context.Context, record *repository.DeckRecord) (*repository.DeckRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("deck record is nil")
	}

	pagesBytes, err := encodePages(record.Pages)
	if err != nil {
		return nil, err
	}
	accessBytes, err := encodeAccess(record.Access)
	if err != nil {
		return nil, err
	}

	placeholders := make([]string, len(deckInsertColumns))
	for i := range deckInsertColumns {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	query := fmt.Sprintf(`INSERT INTO decks (%s)
	VALUES (%s)
	RETURNING %s`,
		strings.Join(deckInsertColumns, ","),
		strings.Join(placeholders, ","),
		strings.Join(deckSelectColumns, ","),
	)

	var expires sql.NullTime
	if record.ExpiresAt != nil {
		expires = sql.NullTime{Time: record.ExpiresAt.UTC(), Valid: true}
	}

	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	row := r.db.QueryRowContext(
		ctx,
		query,
		record.ID,
		record.OwnerID,
		record.Slug,
		record.Title,
		record.Description,
		record.FileURL,
		record.FilePath,
		pagesBytes,
		record.Status,
		record.FileType,
		record.DisplayMode,
		record.FileSize,
		accessBytes,
		expires,
		createdAt,
		updatedAt,
	)

	created, err := scanDeckRecord(row)
	if err != nil {
		if r.dialect.isUniqueViolation(err) {
			return nil, repository.ErrConflict
		}
		return nil, err
	}
	return created, nil
}

// GetByID 通过主键查询 deck。
func (r *DeckRepository) GetByID(ctx context.Context, id string) (*repository.DeckRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM decks WHERE id = $1`, strings.Join(deckSelectColumns, ","))
	return r.getOne(ctx, query, id)
}

// GetBySlug 通过 owner 与 slug 查询 deck。
func (r *DeckRepository) GetBySlug(ctx context.Context, ownerID, slug string) (*repository.DeckRecord, error) {
	query := fmt.Sprintf(`SELECT %s FROM decks WHERE owner_id = $1 AND slug = $2`, strings.Join(deckSelectColumns, ","))
	return r.getOne(ctx, query, ownerID, slug)
}

func (r *DeckRepository) getOne(ctx context.Context, query string, args ...any) (*repository.DeckRecord, error) {
	row := r.db.QueryRowContext(ctx, query, args...)
	deck, err := scanDeckRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return deck, nil
}

// ListByOwner 支持按状态过滤并分页，按创建时间倒序，id 保证同一时刻创建的记录顺序稳定。
func (r *DeckRepository) ListByOwner(ctx context.Context, ownerID string, params repository.ListDecksParams) ([]repository.DeckRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}

	args := make([]any, 0, len(params.Statuses)+3)
	args = append(args, ownerID)
	whereClause := "WHERE owner_id = $1"
	if len(params.Statuses) > 0 {
		placeholders := make([]string, len(params.Statuses))
		for i, status := range params.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		whereClause += " AND status IN (" + strings.Join(placeholders, ",") + ")"
	}

	args = append(args, limit)
	tail := fmt.Sprintf("ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))

	if params.Offset > 0 {
		args = append(args, params.Offset)
		tail += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	query := fmt.Sprintf(`SELECT %s FROM decks %s %s`, strings.Join(deckSelectColumns, ","), whereClause, tail)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.DeckRecord
	for rows.Next() {
		rec, err := scanDeckRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// ListOwnerIDs 返回拥有至少一个 deck 的 owner，供对账任务遍历。
func (r *DeckRepository) ListOwnerIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM decks ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

// Update 只写入 update 中设置的字段，并刷新 updated_at。
func (r *DeckRepository) Update(ctx context.Context, id string, update repository.DeckUpdate) error {
	if update.Empty() {
		return nil
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", column, len(args)))
	}

	if update.Title != nil {
		set("title", *update.Title)
	}
	if update.Description != nil {
		set("description", *update.Description)
	}
	if update.FileURL != nil {
		set("file_url", *update.FileURL)
	}
	if update.FilePath != nil {
		set("file_path", *update.FilePath)
	}
	if update.Pages != nil {
		pagesBytes, err := encodePages(*update.Pages)
		if err != nil {
			return err
		}
		set("pages", pagesBytes)
	}
	if update.Status != nil {
		set("status", *update.Status)
	}
	if update.FileType != nil {
		set("file_type", *update.FileType)
	}
	if update.DisplayMode != nil {
		set("display_mode", *update.DisplayMode)
	}
	if update.FileSize != nil {
		set("file_size", *update.FileSize)
	}
	if update.Access != nil {
		accessBytes, err := encodeAccess(update.Access)
		if err != nil {
			return err
		}
		set("access", accessBytes)
	}
	if update.ExpiresAt != nil {
		set("expires_at", update.ExpiresAt.UTC())
	}
	set("updated_at", time.Now().UTC())

	args = append(args, id)
	query := fmt.Sprintf(`UPDATE decks SET %s WHERE id = $%d`, strings.Join(sets, ", "), len(args))

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDeckRecord(rs rowScanner) (*repository.DeckRecord, error) {
	var (
		rec       repository.DeckRecord
		pages     []byte
		access    []byte
		expiresAt sql.NullTime
	)

	if err := rs.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.Slug,
		&rec.Title,
		&rec.Description,
		&rec.FileURL,
		&rec.FilePath,
		&pages,
		&rec.Status,
		&rec.FileType,
		&rec.DisplayMode,
		&rec.FileSize,
		&access,
		&expiresAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if expiresAt.Valid {
		rec.ExpiresAt = &expiresAt.Time
	}
	if len(pages) > 0 {
		if err := json.Unmarshal(pages, &rec.Pages); err != nil {
			return nil, fmt.Errorf("decode pages: %w", err)
		}
	}
	if rec.Pages == nil {
		rec.Pages = []repository.SlidePage{}
	}
	if len(access) > 0 {
		if err := json.Unmarshal(access, &rec.Access); err != nil {
			return nil, fmt.Errorf("decode access: %w", err)
		}
	}
	if rec.Access == nil {
		rec.Access = map[string]any{}
	}

	return &rec, nil
}

func encodePages(pages []repository.SlidePage) ([]byte, error) {
	if pages == nil {
		pages = []repository.SlidePage{}
	}
	return json.Marshal(pages)
}

func encodeAccess(access map[string]any) ([]byte, error) {
	if access == nil {
		access = map[string]any{}
	}
	return json.Marshal(access)
}
