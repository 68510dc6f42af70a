// Package audit persists every resolved price component so historical
// derivations can be replayed and disputed values traced back to the
// observation that produced them. The log is append-only: rows are never
// updated or deleted.
package audit

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	bolt "go.etcd.io/bbolt"

	"github.com/aknirmal90/liquidations-v2-sub000/oracle"
)

var bucketComponents = []byte("components")

// Log is a BoltDB-backed append-only component history.
type Log struct {
	db *bolt.DB
}

// Entry is the stored payload. Big integers are serialized as decimal
// strings so the on-disk format stays stable across word sizes.
type Entry struct {
	Asset     string    `json:"asset"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Component string    `json:"component"`
	Value     string    `json:"value"`
	Timestamp time.Time `json:"timestamp"`
	Origin    string    `json:"origin"`
}

// BigValue parses the decimal string value back into an integer.
func (e Entry) BigValue() (*big.Int, error) {
	v, ok := new(big.Int).SetString(e.Value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored value %q", e.Value)
	}
	return v, nil
}

// NewLog opens (and migrates) the audit database at path.
func NewLog(path string, options *bolt.Options) (*Log, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketComponents)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Log{db: db}, nil
}

// Close releases the underlying database handle.
func (l *Log) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Append writes one batch of component rows in a single transaction.
func (l *Log) Append(records []oracle.ComponentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return l.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketComponents)
		for _, rec := range records {
			payload, err := json.Marshal(Entry{
				Asset:     rec.Asset.Hex(),
				Source:    rec.Source.Hex(),
				Kind:      rec.Kind.String(),
				Component: rec.Component.String(),
				Value:     rec.Value.String(),
				Timestamp: rec.Timestamp,
				Origin:    rec.Origin.String(),
			})
			if err != nil {
				return fmt.Errorf("marshal component row: %w", err)
			}
			// A sequence suffix keeps rows with identical source,
			// component, and timestamp from overwriting each other.
			seq, err := bucket.NextSequence()
			if err != nil {
				return err
			}
			if err := bucket.Put(key(rec, seq), payload); err != nil {
				return err
			}
		}
		return nil
	})
}

// History returns all rows recorded for a source, oldest first.
func (l *Log) History(source common.Address) ([]Entry, error) {
	var out []Entry
	err := l.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(bucketComponents).Cursor()
		prefix := source.Bytes()
		for k, v := cursor.Seek(prefix); k != nil && len(k) >= len(prefix) && common.BytesToAddress(k[:20]) == source; k, v = cursor.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("unmarshal component row: %w", err)
			}
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

// Len reports the total number of stored rows.
func (l *Log) Len() (int, error) {
	var n int
	err := l.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketComponents).Stats().KeyN
		return nil
	})
	return n, err
}

// key orders rows by source, then component, then time, then insertion
// sequence, so a prefix scan over a source yields its full history.
func key(rec oracle.ComponentRecord, seq uint64) []byte {
	k := make([]byte, 0, 20+1+8+8)
	k = append(k, rec.Source.Bytes()...)
	k = append(k, byte(rec.Component))
	k = binary.BigEndian.AppendUint64(k, uint64(rec.Timestamp.UnixMicro()))
	k = binary.BigEndian.AppendUint64(k, seq)
	return k
}
