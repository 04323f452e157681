package decisionlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"proppilot/internal/types"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

// Record is one audited decision: the engine output plus the component
// scores and sizing multipliers that produced it, and the raw snapshot
// the engine saw.
type Record struct {
	TraceID     string             `json:"trace_id"`
	At          time.Time          `json:"at"`
	Symbol      string             `json:"symbol"`
	Decision    types.Decision     `json:"decision"`
	Components  map[string]float64 `json:"components,omitempty"`
	Multipliers []Multiplier       `json:"multipliers,omitempty"`
	Snapshot    json.RawMessage    `json:"snapshot,omitempty"`
}

// Multiplier mirrors one applied sizing factor for the audit trail.
type Multiplier struct {
	Name    string  `json:"name"`
	Value   float64 `json:"value"`
	Trigger string  `json:"trigger,omitempty"`
}

type decisionModel struct {
	ID            int64          `gorm:"column:id;primaryKey"`
	TraceID       string         `gorm:"column:trace_id;uniqueIndex"`
	Symbol        string         `gorm:"column:symbol;index"`
	Action        string         `gorm:"column:action"`
	Side          string         `gorm:"column:side"`
	Rule          string         `gorm:"column:rule"`
	Reason        string         `gorm:"column:reason"`
	Severity      string         `gorm:"column:severity"`
	Confidence    float64        `gorm:"column:confidence"`
	Lots          float64        `gorm:"column:lots"`
	StopPrice     float64        `gorm:"column:stop_price"`
	TargetPrice   float64        `gorm:"column:target_price"`
	CloseFraction float64        `gorm:"column:close_fraction"`
	Components    datatypes.JSON `gorm:"column:components_json;type:TEXT"`
	Multipliers   datatypes.JSON `gorm:"column:multipliers_json;type:TEXT"`
	Snapshot      datatypes.JSON `gorm:"column:snapshot_json;type:TEXT"`
	CreatedAtUnix int64          `gorm:"column:created_at;index"`
}

func (decisionModel) TableName() string { return "decisions" }

// Store persists the decision audit log in SQLite via gorm.
type Store struct {
	db *gorm.DB
}

// NewStore opens (and migrates) the decision log at path.
func NewStore(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("decision log path cannot be empty")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// The DSN uses modernc-style _pragma options; CGO_ENABLED=0 builds
	// need the pure-Go driver registered as "sqlite" rather than the
	// dialector's cgo default "sqlite3".
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&decisionModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: a small pool keeps HTTP reads concurrent with the
	// runner's writes without piling up lock contention.
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Append writes one record, assigning a trace ID when the caller did
// not supply one. The assigned ID is written back into rec.
func (s *Store) Append(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("decision log record cannot be nil")
	}
	if strings.TrimSpace(rec.TraceID) == "" {
		rec.TraceID = uuid.NewString()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	model, err := toModel(*rec)
	if err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

// Recent returns the latest records, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Record, error) {
	return s.query(ctx, limit, func(tx *gorm.DB) *gorm.DB { return tx })
}

// BySymbol returns the latest records for one symbol, newest first.
func (s *Store) BySymbol(ctx context.Context, symbol string, limit int) ([]Record, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	return s.query(ctx, limit, func(tx *gorm.DB) *gorm.DB {
		return tx.Where("symbol = ?", symbol)
	})
}

// ByTraceID fetches a single record; the bool reports existence.
func (s *Store) ByTraceID(ctx context.Context, traceID string) (Record, bool, error) {
	var model decisionModel
	err := s.db.WithContext(ctx).Where("trace_id = ?", strings.TrimSpace(traceID)).First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	rec, err := fromModel(model)
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *Store) query(ctx context.Context, limit int, scope func(*gorm.DB) *gorm.DB) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []decisionModel
	tx := scope(s.db.WithContext(ctx)).Order("created_at DESC, id DESC").Limit(limit)
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	records := make([]Record, 0, len(models))
	for _, m := range models {
		rec, err := fromModel(m)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

func toModel(rec Record) (decisionModel, error) {
	components, err := marshalJSONColumn(rec.Components)
	if err != nil {
		return decisionModel{}, err
	}
	multipliers, err := marshalJSONColumn(rec.Multipliers)
	if err != nil {
		return decisionModel{}, err
	}
	return decisionModel{
		TraceID:       rec.TraceID,
		Symbol:        strings.ToUpper(strings.TrimSpace(rec.Symbol)),
		Action:        string(rec.Decision.Action),
		Side:          string(rec.Decision.Side),
		Rule:          rec.Decision.Rule,
		Reason:        rec.Decision.Reason,
		Severity:      string(rec.Decision.Severity),
		Confidence:    rec.Decision.Confidence,
		Lots:          rec.Decision.Lots,
		StopPrice:     rec.Decision.StopPrice,
		TargetPrice:   rec.Decision.TargetPrice,
		CloseFraction: rec.Decision.CloseFraction,
		Components:    components,
		Multipliers:   multipliers,
		Snapshot:      datatypes.JSON(rec.Snapshot),
		CreatedAtUnix: rec.At.Unix(),
	}, nil
}

func fromModel(m decisionModel) (Record, error) {
	rec := Record{
		TraceID: m.TraceID,
		At:      time.Unix(m.CreatedAtUnix, 0),
		Symbol:  m.Symbol,
		Decision: types.Decision{
			Symbol:        m.Symbol,
			Action:        types.Action(m.Action),
			Side:          types.Side(m.Side),
			Rule:          m.Rule,
			Reason:        m.Reason,
			Severity:      types.Severity(m.Severity),
			Confidence:    m.Confidence,
			Lots:          m.Lots,
			StopPrice:     m.StopPrice,
			TargetPrice:   m.TargetPrice,
			CloseFraction: m.CloseFraction,
			TraceID:       m.TraceID,
		},
		Snapshot: json.RawMessage(m.Snapshot),
	}
	if len(m.Components) > 0 {
		if err := json.Unmarshal(m.Components, &rec.Components); err != nil {
			return Record{}, fmt.Errorf("decoding components for %s failed: %w", m.TraceID, err)
		}
	}
	if len(m.Multipliers) > 0 {
		if err := json.Unmarshal(m.Multipliers, &rec.Multipliers); err != nil {
			return Record{}, fmt.Errorf("decoding multipliers for %s failed: %w", m.TraceID, err)
		}
	}
	return rec, nil
}

func marshalJSONColumn(v any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
