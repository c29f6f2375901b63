package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Document is one row of the shared document table. The version column backs
// optimistic concurrency: a transactional write only lands when the version
// it read is still current.
type Document struct {
	Path      string `gorm:"primaryKey;size:512"`
	Body      datatypes.JSON
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostgresStore persists documents in postgres through gorm. Change fan-out
// goes to in-process subscribers on every successful write; every viewer of
// a game attaches through the same process, as in the websocket hub.
type PostgresStore struct {
	db       *gorm.DB
	notifier *notifier
}

func NewPostgresStore(db *gorm.DB) (*PostgresStore, error) {
	if err := db.AutoMigrate(&Document{}); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db, notifier: newNotifier()}, nil
}

func (p *PostgresStore) Get(ctx context.Context, path string) (json.RawMessage, error) {
	var doc Document
	err := p.db.WithContext(ctx).First(&doc, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return json.RawMessage(doc.Body), nil
}

func (p *PostgresStore) Set(ctx context.Context, path string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res := p.db.WithContext(ctx).Model(&Document{}).
		Where("path = ?", path).
		Updates(map[string]any{
			"body":    datatypes.JSON(body),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		create := Document{Path: path, Body: datatypes.JSON(body), Version: 1}
		if err := p.db.WithContext(ctx).Create(&create).Error; err != nil {
			return err
		}
	}

	p.notifier.notify(path, body)
	return nil
}

func (p *PostgresStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return p.Transaction(ctx, path, func(current json.RawMessage) (any, error) {
		if current == nil {
			return nil, ErrNotFound
		}
		return mergeFields(current, fields)
	})
}

// Transaction reads the row, applies fn, and commits with a guarded UPDATE on
// the version it read. Zero affected rows means another writer won the race.
func (p *PostgresStore) Transaction(ctx context.Context, path string, fn MutateFn) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var current json.RawMessage
	var readVersion int64
	var doc Document
	err := p.db.WithContext(ctx).First(&doc, "path = ?", path).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// document may be created by fn
	case err != nil:
		return err
	default:
		current = json.RawMessage(doc.Body)
		readVersion = doc.Version
	}

	next, err := fn(current)
	if err != nil {
		return err
	}
	body, err := json.Marshal(next)
	if err != nil {
		return err
	}

	if readVersion == 0 {
		create := Document{Path: path, Body: datatypes.JSON(body), Version: 1}
		if err := p.db.WithContext(ctx).Create(&create).Error; err != nil {
			// duplicate key: someone created the document first
			return ErrConflict
		}
	} else {
		res := p.db.WithContext(ctx).Model(&Document{}).
			Where("path = ? AND version = ?", path, readVersion).
			Updates(map[string]any{
				"body":    datatypes.JSON(body),
				"version": readVersion + 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrConflict
		}
	}

	p.notifier.notify(path, body)
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, path string) error {
	res := p.db.WithContext(ctx).Delete(&Document{}, "path = ?", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		p.notifier.notify(path, nil)
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	var paths []string
	err := p.db.WithContext(ctx).Model(&Document{}).
		Where("path LIKE ?", prefix+"%").
		Order("path").
		Pluck("path", &paths).Error
	return paths, err
}

func (p *PostgresStore) Subscribe(path string, onChange func(json.RawMessage)) func() {
	unsubscribe := p.notifier.subscribe(path, onChange)
	if doc, err := p.Get(context.Background(), path); err == nil {
		onChange(doc)
	}
	return unsubscribe
}
