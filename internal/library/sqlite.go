package library

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shoko/internal/models"
)

// SQLiteLibrary reads a Zotero-compatible SQLite database. The file is opened
// in read-only mode so an open library application is never blocked or
// corrupted by the indexer.
type SQLiteLibrary struct {
	db         *sql.DB
	storageDir string
}

// NewSQLiteLibrary opens the database at dbPath read-only. storageDir is the
// attachment storage root used to resolve document paths.
func NewSQLiteLibrary(dbPath, storageDir string) (*SQLiteLibrary, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to open library database: %w", err)
	}
	return &SQLiteLibrary{db: db, storageDir: storageDir}, nil
}

const itemsWithDocumentsQuery = `
SELECT
	i.itemID,
	i.key,
	v_title.value AS title,
	COALESCE(v_date.value, '') AS date,
	COALESCE(GROUP_CONCAT(DISTINCT cr.lastName), '') AS authors,
	COALESCE(GROUP_CONCAT(DISTINCT t.name), '') AS tags,
	COALESCE(GROUP_CONCAT(DISTINCT c.collectionName), '') AS collections,
	COALESCE(att.key, '') AS attachment_key,
	COALESCE(att_path.path, '') AS attachment_path
FROM items i
JOIN itemCreators ic ON i.itemID = ic.itemID
JOIN creators cr ON ic.creatorID = cr.creatorID
JOIN itemData d_title ON i.itemID = d_title.itemID AND d_title.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'title')
JOIN itemDataValues v_title ON d_title.valueID = v_title.valueID
LEFT JOIN itemData d_date ON i.itemID = d_date.itemID AND d_date.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'date')
LEFT JOIN itemDataValues v_date ON d_date.valueID = v_date.valueID
LEFT JOIN itemTags it ON i.itemID = it.itemID
LEFT JOIN tags t ON it.tagID = t.tagID
LEFT JOIN collectionItems ci ON i.itemID = ci.itemID
LEFT JOIN collections c ON ci.collectionID = c.collectionID
LEFT JOIN itemAttachments ia ON i.itemID = ia.parentItemID
LEFT JOIN items att ON ia.itemID = att.itemID
LEFT JOIN itemData att_data ON att.itemID = att_data.itemID AND att_data.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'mimeType')
LEFT JOIN itemDataValues att_mime ON att_data.valueID = att_mime.valueID
LEFT JOIN itemAttachments att_path ON att.itemID = att_path.itemID
WHERE (att_mime.value = 'application/pdf' OR att_path.path LIKE '%.pdf')
GROUP BY i.itemID
`

// ItemsWithDocuments returns all parent items with a PDF attachment.
func (l *SQLiteLibrary) ItemsWithDocuments(ctx context.Context) ([]models.Item, error) {
	rows, err := l.db.QueryContext(ctx, itemsWithDocumentsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			itemID int64
			item   models.Item
		)
		if err := rows.Scan(&itemID, &item.Key, &item.Title, &item.Date,
			&item.Authors, &item.Tags, &item.Collections,
			&item.AttachmentKey, &item.AttachmentPath); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.ID = strconv.FormatInt(itemID, 10)
		item.DocumentPath = l.resolveDocumentPath(item.AttachmentKey, item.AttachmentPath)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read item rows: %w", err)
	}
	return items, nil
}

// SearchItems returns parent items matching the filter, with document paths
// resolved for those that have a PDF attachment.
func (l *SQLiteLibrary) SearchItems(ctx context.Context, filter models.ItemFilter) ([]models.Item, error) {
	var (
		conditions []string
		params     []interface{}
	)
	appendLike := func(column string, values []string) {
		if len(values) == 0 {
			return
		}
		clauses := make([]string, len(values))
		for i, v := range values {
			clauses[i] = column + " LIKE ?"
			params = append(params, "%"+v+"%")
		}
		conditions = append(conditions, "("+strings.Join(clauses, " OR ")+")")
	}
	appendLike("cr.lastName", filter.Authors)
	appendLike("v_title.value", filter.Titles)
	appendLike("v_date.value", filter.Dates)

	where := "1"
	if len(conditions) > 0 {
		where = strings.Join(conditions, " AND ")
	}

	query := `
SELECT
	i.itemID,
	i.key,
	v_title.value AS title,
	COALESCE(v_date.value, '') AS date,
	COALESCE(GROUP_CONCAT(DISTINCT cr.lastName), '') AS authors,
	COALESCE(GROUP_CONCAT(DISTINCT t.name), '') AS tags,
	COALESCE(GROUP_CONCAT(DISTINCT c.collectionName), '') AS collections,
	COALESCE(att.key, '') AS attachment_key,
	COALESCE(att_path.path, '') AS attachment_path
FROM items i
JOIN itemCreators ic ON i.itemID = ic.itemID
JOIN creators cr ON ic.creatorID = cr.creatorID
JOIN itemData d_title ON i.itemID = d_title.itemID AND d_title.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'title')
JOIN itemDataValues v_title ON d_title.valueID = v_title.valueID
LEFT JOIN itemData d_date ON i.itemID = d_date.itemID AND d_date.fieldID = (SELECT fieldID FROM fields WHERE fieldName = 'date')
LEFT JOIN itemDataValues v_date ON d_date.valueID = v_date.valueID
LEFT JOIN itemTags it ON i.itemID = it.itemID
LEFT JOIN tags t ON it.tagID = t.tagID
LEFT JOIN collectionItems ci ON i.itemID = ci.itemID
LEFT JOIN collections c ON ci.collectionID = c.collectionID
LEFT JOIN itemAttachments ia ON i.itemID = ia.parentItemID
LEFT JOIN items att ON ia.itemID = att.itemID
LEFT JOIN itemAttachments att_path ON att.itemID = att_path.itemID
WHERE ` + where + `
GROUP BY i.itemID
`
	rows, err := l.db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, fmt.Errorf("failed to search items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var (
			itemID int64
			item   models.Item
		)
		if err := rows.Scan(&itemID, &item.Key, &item.Title, &item.Date,
			&item.Authors, &item.Tags, &item.Collections,
			&item.AttachmentKey, &item.AttachmentPath); err != nil {
			return nil, fmt.Errorf("failed to scan item row: %w", err)
		}
		item.ID = strconv.FormatInt(itemID, 10)
		item.DocumentPath = l.resolveDocumentPath(item.AttachmentKey, item.AttachmentPath)
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read item rows: %w", err)
	}
	return items, nil
}

// resolveDocumentPath turns a raw attachment path into an absolute file path
// under the storage directory. Library attachment paths carry a "storage:"
// prefix and may include directory components; only the base filename is kept.
func (l *SQLiteLibrary) resolveDocumentPath(attachmentKey, attachmentPath string) string {
	if attachmentKey == "" || attachmentPath == "" {
		return ""
	}
	filename := attachmentPath
	if idx := strings.LastIndex(filename, ":"); idx >= 0 {
		filename = filename[idx+1:]
	}
	filename = filepath.Base(filename)
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return ""
	}
	return filepath.Join(l.storageDir, attachmentKey, filename)
}

// Close closes the underlying database handle.
func (l *SQLiteLibrary) Close() error {
	return l.db.Close()
}
