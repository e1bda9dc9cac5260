// Package archive persists every game event in a SQL table whose rows form a
// blake3 hash chain, so operators can audit the full history after the
// in-memory buffer has rolled over.
package archive

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"savingsgame/core/events"
	"savingsgame/core/types"
)

var (
	// ErrDSNRequired is returned when Open is called without a data source.
	ErrDSNRequired = errors.New("archive: dsn required")
	// ErrChainBroken is returned by Verify when a stored digest does not match
	// the recomputed chain.
	ErrChainBroken = errors.New("archive: digest chain broken")
)

// Record is one archived event.
type Record struct {
	ID         uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Type       string    `gorm:"size:64;index" json:"type"`
	Player     string    `gorm:"size:96;index" json:"player,omitempty"`
	Attributes string    `gorm:"type:text" json:"-"`
	Digest     string    `gorm:"size:64" json:"digest"`
	RecordedAt time.Time `json:"recorded_at"`
}

// TableName pins the table name independent of the struct name.
func (Record) TableName() string { return "game_events" }

// Event decodes the stored attributes back into the generic event form.
func (r Record) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs}, nil
}

// Filter narrows Query results.
type Filter struct {
	Type    string
	Player  string
	AfterID uint64
	Limit   int
}

// Archive appends events and serves history queries. It implements
// events.Emitter.
type Archive struct {
	db     *gorm.DB
	logger *slog.Logger
	nowFn  func() time.Time

	mu   sync.Mutex
	head [32]byte
}

// Open connects to dsn. postgres:// and postgresql:// DSNs use the Postgres
// driver; anything else is treated as a SQLite path or URI.
func Open(dsn string, log *slog.Logger) (*Archive, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, ErrDSNRequired
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("archive: open: %w", err)
	}
	return New(db, log)
}

// New wraps an existing gorm handle and migrates the schema.
func New(db *gorm.DB, log *slog.Logger) (*Archive, error) {
	if db == nil {
		return nil, ErrDSNRequired
	}
	if log == nil {
		log = slog.Default()
	}
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("archive: migrate: %w", err)
	}
	a := &Archive{db: db, logger: log.With("component", "archive"), nowFn: time.Now}
	var last Record
	err := db.Order("id desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("archive: load head: %w", err)
	}
	if last.ID != 0 {
		head, err := decodeDigest(last.Digest)
		if err != nil {
			return nil, err
		}
		a.head = head
	}
	return a, nil
}

// Close releases the underlying connection pool.
func (a *Archive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Emit implements events.Emitter. Storage failures are logged and dropped;
// the ledger has already committed.
func (a *Archive) Emit(evt events.Event) {
	if a == nil || evt == nil {
		return
	}
	if _, err := a.Append(context.Background(), events.Flatten(evt)); err != nil {
		a.logger.Error("archive append failed",
			slog.String("type", evt.EventType()),
			slog.String("error", err.Error()))
	}
}

// Append stores evt and extends the digest chain.
func (a *Archive) Append(ctx context.Context, evt *types.Event) (*Record, error) {
	encoded, err := json.Marshal(evt.Attributes)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	digest := chainDigest(a.head, evt)
	rec := &Record{
		Type:       evt.Type,
		Player:     evt.Player(),
		Attributes: string(encoded),
		Digest:     hex.EncodeToString(digest[:]),
		RecordedAt: a.nowFn().UTC(),
	}
	if err := a.db.WithContext(ctx).Create(rec).Error; err != nil {
		return nil, fmt.Errorf("archive: insert: %w", err)
	}
	a.head = digest
	return rec, nil
}

// Query returns archived records in insertion order.
func (a *Archive) Query(ctx context.Context, f Filter) ([]Record, error) {
	q := a.db.WithContext(ctx).Model(&Record{}).Order("id asc")
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Player != "" {
		q = q.Where("player = ?", f.Player)
	}
	if f.AfterID > 0 {
		q = q.Where("id > ?", f.AfterID)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	var out []Record
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("archive: query: %w", err)
	}
	return out, nil
}

// Verify recomputes the digest chain over every record and returns how many
// were checked.
func (a *Archive) Verify(ctx context.Context) (int, error) {
	var (
		prev    [32]byte
		checked int
	)
	var batch []Record
	err := a.db.WithContext(ctx).Model(&Record{}).Order("id asc").FindInBatches(&batch, 500, func(tx *gorm.DB, _ int) error {
		for _, rec := range batch {
			evt, err := rec.Event()
			if err != nil {
				return fmt.Errorf("record %d: %w", rec.ID, err)
			}
			want := chainDigest(prev, evt)
			if hex.EncodeToString(want[:]) != rec.Digest {
				return fmt.Errorf("%w at record %d", ErrChainBroken, rec.ID)
			}
			prev = want
			checked++
		}
		return nil
	}).Error
	if err != nil {
		return checked, err
	}
	return checked, nil
}

// chainDigest hashes the previous digest with the event's canonical form.
func chainDigest(prev [32]byte, evt *types.Event) [32]byte {
	return blake3.Sum256(append(prev[:], evt.Canonical()...))
}

func decodeDigest(raw string) ([32]byte, error) {
	var out [32]byte
	decoded, err := hex.DecodeString(raw)
	if err != nil || len(decoded) != len(out) {
		return out, fmt.Errorf("archive: malformed digest %q", raw)
	}
	copy(out[:], decoded)
	return out, nil
}
