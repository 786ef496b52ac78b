package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"go.uber.org/zap"

	portal_errors "medportal/pkg/errors"
	"medportal/pkg/logger"
)

var ErrCorrupt = errors.New("ledger corrupt")

const keyHeight = "height_latest"

func blockKey(index int) []byte { return []byte(fmt.Sprintf("block_%d", index)) }
func txKey(hash string) []byte { return []byte("tx_" + hash) }
func recordKey(id string) []byte { return []byte("record_" + id) }

// Ledger is an append-only hash chain of artifact registrations kept in
// LevelDB.
type Ledger struct {
	db  *leveldb.DB
	mu  sync.Mutex
	now func() time.Time
	log *logger.Logger
}

// Open opens or creates the ledger at path.
func Open(path string, log *logger.Logger) (*Ledger, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	l := newLedger(db, log)
	l.log.Info("ledger opened", zap.String("path", path))
	return l, nil
}

// OpenMemory returns a ledger that lives only in memory.
func OpenMemory(log *logger.Logger) (*Ledger, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return newLedger(db, log), nil
}

func newLedger(db *leveldb.DB, log *logger.Logger) *Ledger {
	return &Ledger{
		db:  db,
		now: time.Now,
		log: logger.OrNop(log).Named("ledger"),
	}
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// Register appends entry and returns its transaction id. Registering the same
// record id again returns the original transaction id.
func (l *Ledger) Register(ctx context.Context, entry Entry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if entry.RecordID == "" {
		return "", portal_errors.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if existing, err := l.db.Get(recordKey(entry.RecordID), nil); err == nil {
		return string(existing), nil
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return "", fmt.Errorf("%w: %v", portal_errors.ErrLedgerUnavailable, err)
	}

	height, err := l.height()
	if err != nil {
		return "", err
	}
	prevHash := ""
	if height > 0 {
		prev, err := l.blockAt(height - 1)
		if err != nil {
			return "", err
		}
		prevHash = prev.Hash
	}

	block := Block{
		Index:     height,
		PrevHash:  prevHash,
		Timestamp: l.now().UnixMilli(),
		Entry:     entry,
	}
	if block.Hash, err = block.ComputeHash(); err != nil {
		return "", fmt.Errorf("hash block: %w", err)
	}
	data, err := json.Marshal(block)
	if err != nil {
		return "", fmt.Errorf("marshal block: %w", err)
	}

	batch := new(leveldb.Batch)
	batch.Put(blockKey(block.Index), data)
	batch.Put(txKey(block.Hash), []byte(strconv.Itoa(block.Index)))
	batch.Put(recordKey(entry.RecordID), []byte(block.Hash))
	batch.Put([]byte(keyHeight), []byte(strconv.Itoa(block.Index)))
	if err := l.db.Write(batch, nil); err != nil {
		return "", fmt.Errorf("%w: %v", portal_errors.ErrLedgerUnavailable, err)
	}

	l.log.With(ctx).Info("artifact registered",
		zap.Int("index", block.Index),
		zap.String("tx", block.Hash),
		zap.String("record_id", entry.RecordID),
	)
	return block.Hash, nil
}

// Lookup returns the block registered under txID.
func (l *Ledger) Lookup(txID string) (Block, error) {
	raw, err := l.db.Get(txKey(txID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Block{}, portal_errors.ErrNotFound
	}
	if err != nil {
		return Block{}, err
	}
	index, err := strconv.Atoi(string(raw))
	if err != nil {
		return Block{}, fmt.Errorf("%w: bad index for tx %s", ErrCorrupt, txID)
	}
	return l.blockAt(index)
}

// Height returns the number of blocks in the chain.
func (l *Ledger) Height() (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.height()
}

// Verify walks the chain and checks every link and hash.
func (l *Ledger) Verify(ctx context.Context) error {
	height, err := l.Height()
	if err != nil {
		return err
	}
	prevHash := ""
	for i := 0; i < height; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		block, err := l.blockAt(i)
		if err != nil {
			return err
		}
		if block.Index != i {
			return fmt.Errorf("%w: block %d has index %d", ErrCorrupt, i, block.Index)
		}
		if block.PrevHash != prevHash {
			return fmt.Errorf("%w: block %d does not link to its predecessor", ErrCorrupt, i)
		}
		want, err := block.ComputeHash()
		if err != nil {
			return err
		}
		if want != block.Hash {
			return fmt.Errorf("%w: block %d hash mismatch", ErrCorrupt, i)
		}
		prevHash = block.Hash
	}
	return nil
}

func (l *Ledger) height() (int, error) {
	raw, err := l.db.Get([]byte(keyHeight), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", portal_errors.ErrLedgerUnavailable, err)
	}
	latest, err := strconv.Atoi(string(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: bad height %q", ErrCorrupt, raw)
	}
	return latest + 1, nil
}

func (l *Ledger) blockAt(index int) (Block, error) {
	raw, err := l.db.Get(blockKey(index), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return Block{}, fmt.Errorf("%w: block %d missing", ErrCorrupt, index)
	}
	if err != nil {
		return Block{}, err
	}
	var block Block
	if err := json.Unmarshal(raw, &block); err != nil {
		return Block{}, fmt.Errorf("%w: block %d: %v", ErrCorrupt, index, err)
	}
	return block, nil
}
