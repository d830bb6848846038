package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

const (
	metaSuffix = ".json"
	bodySuffix = ".body"

	// maxNameLen keeps escaped names well under common filename limits once
	// suffixes and temp-file markers are added.
	maxNameLen = 200
)

// DiskConfig configures the disk tier.
type DiskConfig struct {
	// Dir holds the cache artifacts. It must exist before NewDisk is called.
	Dir string

	// TTL is added to the write time to compute ExpiresAt.
	TTL time.Duration

	// Now overrides the clock (default: time.Now).
	Now Clock

	// Logger receives debug output about swallowed I/O errors.
	Logger zerolog.Logger
}

// Disk is the durable cache tier. Every key is stored as two artifacts in
// Dir: a JSON metadata record (expiry and headers) and the raw body.
//
// Read never fails: missing, corrupt or expired artifacts are reported as a
// miss, and expired artifacts are removed. Write replaces both artifacts via
// rename, so concurrent writers for one key are last-write-wins and readers
// never observe a partial file.
type Disk struct {
	dir    string
	ttl    time.Duration
	now    Clock
	logger zerolog.Logger
}

// NewDisk creates a disk tier rooted at cfg.Dir.
func NewDisk(cfg DiskConfig) (*Disk, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("cache dir is required")
	}

	info, err := os.Stat(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("stat cache dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("cache dir %s is not a directory", cfg.Dir)
	}

	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Disk{
		dir:    cfg.Dir,
		ttl:    cfg.TTL,
		now:    cfg.Now,
		logger: cfg.Logger,
	}, nil
}

// Dir returns the directory holding the artifacts.
func (d *Disk) Dir() string {
	return d.dir
}

// Read loads the entry stored under key.
func (d *Disk) Read(key string) (*Entry, bool) {
	name := StorageName(key)

	meta, err := os.ReadFile(d.metaPath(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.readFailed(key, err)
		}
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal(meta, &entry); err != nil {
		d.readFailed(key, fmt.Errorf("decode metadata: %w", err))
		return nil, false
	}

	if !entry.ValidAt(d.now()) {
		d.remove(name)
		return nil, false
	}

	body, err := os.ReadFile(d.bodyPath(name))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.readFailed(key, err)
		}
		return nil, false
	}

	if entry.Headers == nil {
		entry.Headers = map[string]string{}
	}
	entry.Body = body

	return &entry, true
}

// Write persists headers and body under key with ExpiresAt = now + TTL.
func (d *Disk) Write(key string, headers map[string]string, body []byte) error {
	name := StorageName(key)
	entry := newEntry(headers, body, d.now().Add(d.ttl))

	meta, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("encode metadata: %w", err)
	}

	// Body first: a reader that sees the new metadata also finds a body.
	if err := d.writeAtomic(name+bodySuffix, body); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("write body: %w", err)
	}
	if err := d.writeAtomic(name+metaSuffix, meta); err != nil {
		CacheErrors.WithLabelValues("write").Inc()
		return fmt.Errorf("write metadata: %w", err)
	}

	return nil
}

// Delete removes both artifacts for key. Missing artifacts are not an error.
func (d *Disk) Delete(key string) error {
	name := StorageName(key)

	var errs []error
	for _, p := range []string{d.metaPath(name), d.bodyPath(name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// StorageName maps a cache key to a file name safe for use in one directory.
// Keys whose escaped form is too long are replaced by their SHA-256 digest.
func StorageName(key string) string {
	name := url.PathEscape(key)
	if len(name) > maxNameLen || name == "" || name == "." || name == ".." {
		sum := sha256.Sum256([]byte(key))
		return hex.EncodeToString(sum[:])
	}
	return name
}

func (d *Disk) metaPath(name string) string {
	return filepath.Join(d.dir, name+metaSuffix)
}

func (d *Disk) bodyPath(name string) string {
	return filepath.Join(d.dir, name+bodySuffix)
}

// remove deletes both artifacts of an expired entry. Failures are logged only.
func (d *Disk) remove(name string) {
	for _, p := range []string{d.metaPath(name), d.bodyPath(name)} {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			CacheErrors.WithLabelValues("delete").Inc()
			d.logger.Debug().Err(err).Str("path", p).Msg("Failed to remove expired cache artifact")
		}
	}
}

func (d *Disk) readFailed(key string, err error) {
	CacheErrors.WithLabelValues("read").Inc()
	d.logger.Debug().Err(err).Str("key", key).Msg("Disk cache read failed, treating as miss")
}

// writeAtomic writes data to a temp file next to the target and renames it
// into place.
func (d *Disk) writeAtomic(file string, data []byte) error {
	tmp, err := os.CreateTemp(d.dir, file+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, filepath.Join(d.dir, file)); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
