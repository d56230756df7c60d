package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/MRAlirad/ccip-rebase-token/core/events"
)

const (
	defaultLimit = 100
	maxLimit     = 1000
)

// Record is one committed ledger event.
type Record struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	EventID    uuid.UUID `gorm:"type:uuid;uniqueIndex"`
	Type       string    `gorm:"size:64;index"`
	Attributes string    `gorm:"type:text"`
	Timestamp  uint64    `gorm:"index"`
	CreatedAt  time.Time
	Parties    []Party `gorm:"foreignKey:RecordSeq;references:Seq"`
}

// Party links a record to every account it mentions.
type Party struct {
	ID        uint   `gorm:"primaryKey"`
	RecordSeq uint64 `gorm:"index"`
	Account   string `gorm:"size:64;index"`
}

// Entry is the read model of a journal record.
type Entry struct {
	Seq        uint64            `json:"seq"`
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  uint64            `json:"timestamp"`
}

// Query filters journal reads.
type Query struct {
	// Account restricts results to events naming this bech32 address.
	Account string
	Type    string
	// AfterSeq returns only records with a larger sequence number.
	AfterSeq uint64
	Limit    int
}

// Open connects to the journal database. Driver is "sqlite" (pure Go, the
// default) or "postgres".
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "sqlite":
		if strings.TrimSpace(dsn) == "" {
			dsn = "file:journal.db"
		}
		return gorm.Open(sqlite.Open(dsn), cfg)
	case "postgres", "postgresql":
		if strings.TrimSpace(dsn) == "" {
			return nil, fmt.Errorf("journal: postgres dsn required")
		}
		return gorm.Open(postgres.Open(dsn), cfg)
	default:
		return nil, fmt.Errorf("journal: unknown driver %q", driver)
	}
}

// AutoMigrate performs all schema migrations for the journal.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Record{}, &Party{})
}

// Journal persists committed ledger events for later queries.
type Journal struct {
	db     *gorm.DB
	logger *slog.Logger
}

// New migrates the schema and returns a journal over db.
func New(db *gorm.DB, logger *slog.Logger) (*Journal, error) {
	if db == nil {
		return nil, fmt.Errorf("journal: database required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db, logger: logger.With(slog.String("component", "journal"))}, nil
}

func recordFrom(ev events.Event) (*Record, error) {
	payload := ev.Event()
	if payload == nil {
		return nil, fmt.Errorf("journal: empty event %s", ev.EventType())
	}
	attrs, err := json.Marshal(payload.Attributes)
	if err != nil {
		return nil, err
	}
	record := &Record{
		EventID:    uuid.New(),
		Type:       payload.Type,
		Attributes: string(attrs),
		Timestamp:  payload.Timestamp,
	}
	for _, account := range payload.Parties() {
		record.Parties = append(record.Parties, Party{Account: account})
	}
	sort.Slice(record.Parties, func(i, j int) bool { return record.Parties[i].Account < record.Parties[j].Account })
	return record, nil
}

// Append stores evs in one transaction, preserving their order.
func (j *Journal) Append(ctx context.Context, evs ...events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	records := make([]*Record, 0, len(evs))
	for _, ev := range evs {
		if ev == nil {
			continue
		}
		record, err := recordFrom(ev)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	return j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, record := range records {
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Emit implements events.Emitter. Write failures are logged; the ledger
// state is already committed at this point.
func (j *Journal) Emit(ev events.Event) {
	if j == nil || ev == nil {
		return
	}
	if err := j.Append(context.Background(), ev); err != nil {
		j.logger.Error("journal append failed",
			slog.String("reason", ev.EventType()),
			slog.String("error", err.Error()))
	}
}

// EmitBatch implements events.BatchEmitter so the events of one ledger
// operation land in a single journal transaction.
func (j *Journal) EmitBatch(evs []events.Event) {
	if j == nil || len(evs) == 0 {
		return
	}
	if err := j.Append(context.Background(), evs...); err != nil {
		j.logger.Error("journal append failed",
			slog.String("reason", evs[0].EventType()),
			slog.Int("events", len(evs)),
			slog.String("error", err.Error()))
	}
}

// List returns records matching q in sequence order.
func (j *Journal) List(ctx context.Context, q Query) ([]Entry, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	tx := j.db.WithContext(ctx).Model(&Record{})
	if q.AfterSeq > 0 {
		tx = tx.Where("seq > ?", q.AfterSeq)
	}
	if t := strings.TrimSpace(q.Type); t != "" {
		tx = tx.Where("type = ?", t)
	}
	if account := strings.TrimSpace(q.Account); account != "" {
		sub := j.db.Model(&Party{}).Select("record_seq").Where("account = ?", account)
		tx = tx.Where("seq IN (?)", sub)
	}
	var records []Record
	if err := tx.Order("seq ASC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("journal: list: %w", err)
	}
	out := make([]Entry, 0, len(records))
	for _, record := range records {
		attrs := map[string]string{}
		if record.Attributes != "" {
			if err := json.Unmarshal([]byte(record.Attributes), &attrs); err != nil {
				return nil, fmt.Errorf("journal: decode record %d: %w", record.Seq, err)
			}
		}
		out = append(out, Entry{
			Seq:        record.Seq,
			ID:         record.EventID.String(),
			Type:       record.Type,
			Attributes: attrs,
			Timestamp:  record.Timestamp,
		})
	}
	return out, nil
}
