package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// artifactRow is the table shape; the autoincrement primary key is the
// artifact id.
type artifactRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Name         string `gorm:"index;size:255"`
	RunID        string `gorm:"index;size:64"`
	Slug         string
	Timestamp    time.Time
	Status       string `gorm:"size:16"`
	Error        string
	RawOutputs   string
	Package      string
	PantryBasket string
}

func (artifactRow) TableName() string { return "artifacts" }

type SQLStore struct {
	db   *gorm.DB
	user string
	now  func() time.Time
}

// OpenSQLite opens (and migrates) the sqlite database at path.
func OpenSQLite(path, user string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create sqlite dir: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return NewSQLStore(db, user)
}

func NewSQLStore(db *gorm.DB, user string) (*SQLStore, error) {
	if err := db.AutoMigrate(&artifactRow{}); err != nil {
		return nil, fmt.Errorf("migrate artifacts: %w", err)
	}
	return &SQLStore{db: db, user: user, now: time.Now}, nil
}

func (s *SQLStore) Save(ctx context.Context, rec Record) (Record, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := artifactRow{Name: "pending"}
		// 先插入占位行拿到自增 id，再回填名称与内容。
		if err := tx.Create(&row).Error; err != nil {
			return err
		}
		rec = prepare(rec, row.ID, s.user, s.now())
		raws, err := json.Marshal(rec.RawOutputs)
		if err != nil {
			return err
		}
		return tx.Model(&row).Updates(map[string]any{
			"name":          rec.Name,
			"run_id":        rec.RunID,
			"slug":          rec.Slug,
			"timestamp":     rec.Timestamp,
			"status":        string(rec.Status),
			"error":         rec.Error,
			"raw_outputs":   string(raws),
			"package":       string(rec.Package),
			"pantry_basket": rec.PantryBasket,
		}).Error
	})
	if err != nil {
		return Record{}, fmt.Errorf("save artifact: %w", err)
	}
	return rec, nil
}

func (s *SQLStore) List(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.WithContext(ctx).Model(&artifactRow{}).Order("id").Pluck("name", &names).Error; err != nil {
		return nil, fmt.Errorf("list artifacts: %w", err)
	}
	return names, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (Record, error) {
	var row artifactRow
	q := s.db.WithContext(ctx)
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		q = q.Where("id = ?", n)
	} else {
		q = q.Where("name = ?", id)
	}
	if err := q.First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Record{}, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return Record{}, fmt.Errorf("read artifact %s: %w", id, err)
	}
	rec := Record{
		ID:           row.ID,
		Name:         row.Name,
		RunID:        row.RunID,
		Slug:         row.Slug,
		Timestamp:    row.Timestamp,
		Status:       Status(row.Status),
		Error:        row.Error,
		PantryBasket: row.PantryBasket,
	}
	if row.RawOutputs != "" {
		if err := json.Unmarshal([]byte(row.RawOutputs), &rec.RawOutputs); err != nil {
			return Record{}, fmt.Errorf("decode raw outputs of %s: %w", row.Name, err)
		}
	}
	if row.Package != "" {
		rec.Package = json.RawMessage(row.Package)
	}
	return rec, nil
}
