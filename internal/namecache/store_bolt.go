package namecache

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketSceneNames = []byte("scene_names")

// BoltStore keeps entries in a bbolt file. Keys are name, a NUL byte and
// the big-endian identifier; values are the big-endian bucket sequence of
// the latest write, so All can tell which identifier a name was last put under.
type BoltStore struct {
	db *bolt.DB
}

// OpenBoltStore opens or creates the store at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create name cache directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSceneNames)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) Insert(_ context.Context, name string, showID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSceneNames)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		return b.Put(boltKey(name, showID), binary.BigEndian.AppendUint64(nil, seq))
	})
}

func (s *BoltStore) Delete(_ context.Context, showID int64, name string) error {
	if showID == 0 && name == "" {
		return nil
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSceneNames)

		var doomed [][]byte
		err := b.ForEach(func(k, _ []byte) error {
			n, id, ok := splitBoltKey(k)
			if !ok {
				return nil
			}
			if (showID != 0 && id == showID) || (name != "" && n == name) {
				doomed = append(doomed, bytes.Clone(k))
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range doomed {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) All(_ context.Context) (map[string]int64, error) {
	names := make(map[string]int64)
	latest := make(map[string]uint64)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSceneNames).ForEach(func(k, v []byte) error {
			name, id, ok := splitBoltKey(k)
			if !ok {
				return nil
			}
			var seq uint64
			if len(v) == 8 {
				seq = binary.BigEndian.Uint64(v)
			}
			if prev, seen := latest[name]; !seen || seq >= prev {
				names[name] = id
				latest[name] = seq
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load scene names: %w", err)
	}
	return names, nil
}

func boltKey(name string, showID int64) []byte {
	key := make([]byte, 0, len(name)+9)
	key = append(key, name...)
	key = append(key, 0)
	return binary.BigEndian.AppendUint64(key, uint64(showID))
}

func splitBoltKey(k []byte) (string, int64, bool) {
	if len(k) < 9 || k[len(k)-9] != 0 {
		return "", 0, false
	}
	return string(k[:len(k)-9]), int64(binary.BigEndian.Uint64(k[len(k)-8:])), true
}
