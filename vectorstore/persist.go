package vectorstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.etcd.io/bbolt"
)

// IndexFileName is the bbolt file written inside the index directory.
const IndexFileName = "index.db"

const formatVersion = "minirag-local/1"

var (
	bucketMeta    = []byte("meta")
	bucketEntries = []byte("entries")

	keyFormat    = []byte("format")
	keyDimension = []byte("dimension")
	keyEmbedder  = []byte("embedder")
	keyCount     = []byte("count")
	keyCreatedAt = []byte("created_at")
)

// writeIndexFile writes entries to a temporary file and renames it over
// dir/index.db so readers never observe a half-written index.
func writeIndexFile(dir, embedder string, dim int, entries []Entry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("could not create index directory %s: %w", dir, err)
	}
	final := filepath.Join(dir, IndexFileName)
	tmp := final + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("could not remove stale temp file: %w", err)
	}

	db, err := bbolt.Open(tmp, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("could not open %s: %w", tmp, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		meta, err := tx.CreateBucket(bucketMeta)
		if err != nil {
			return err
		}
		for k, v := range map[string]string{
			string(keyFormat):    formatVersion,
			string(keyDimension): strconv.Itoa(dim),
			string(keyEmbedder):  embedder,
			string(keyCount):     strconv.Itoa(len(entries)),
			string(keyCreatedAt): time.Now().UTC().Format(time.RFC3339),
		} {
			if err := meta.Put([]byte(k), []byte(v)); err != nil {
				return err
			}
		}

		b, err := tx.CreateBucket(bucketEntries)
		if err != nil {
			return err
		}
		for i, e := range entries {
			data, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(uint64(i)), data); err != nil {
				return err
			}
		}
		return nil
	})
	if cerr := db.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(tmp)
		return fmt.Errorf("could not write index: %w", err)
	}

	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("could not move index into place: %w", err)
	}
	return nil
}

// readIndexFile loads and validates an index written by writeIndexFile.
func readIndexFile(path string, wantDim int) ([]Entry, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("could not read index %s: %w", path, err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second, ReadOnly: true})
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("could not open index %s: %w", path, err)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIndex, path, err)
	}
	defer db.Close()

	var (
		entries []Entry
		count   int
	)
	err = db.View(func(tx *bbolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		b := tx.Bucket(bucketEntries)
		if meta == nil || b == nil {
			return fmt.Errorf("%w: missing buckets", ErrInvalidIndex)
		}
		if got := string(meta.Get(keyFormat)); got != formatVersion {
			return fmt.Errorf("%w: unknown format %q", ErrInvalidIndex, got)
		}
		dim, err := strconv.Atoi(string(meta.Get(keyDimension)))
		if err != nil {
			return fmt.Errorf("%w: bad dimension", ErrInvalidIndex)
		}
		if dim != wantDim {
			return fmt.Errorf("%w: stored dimension %d, configured %d", ErrInvalidIndex, dim, wantDim)
		}
		count, err = strconv.Atoi(string(meta.Get(keyCount)))
		if err != nil || count < 0 {
			return fmt.Errorf("%w: bad count", ErrInvalidIndex)
		}

		entries = make([]Entry, 0, count)
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("%w: entry %x: %v", ErrInvalidIndex, k, err)
			}
			if len(e.Vector) != dim {
				return fmt.Errorf("%w: entry %x has %d dimensions", ErrInvalidIndex, k, len(e.Vector))
			}
			if e.Chunk.Text == "" {
				return fmt.Errorf("%w: entry %x has no text", ErrInvalidIndex, k)
			}
			entries = append(entries, e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 || len(entries) != count {
		return nil, fmt.Errorf("%w: expected %d entries, found %d", ErrInvalidIndex, count, len(entries))
	}
	return entries, nil
}

// seqKey encodes i big-endian so ForEach returns entries in build order.
func seqKey(i uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, i)
	return b
}
