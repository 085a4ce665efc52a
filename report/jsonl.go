package report

import (
	"encoding/json"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/gomlx/go-tagging-eval/internal/files"
	"github.com/gomlx/go-tagging-eval/tagging"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// DefaultDirCreationPerm is used when creating the directory of a results log.
var DefaultDirCreationPerm = os.FileMode(0755)

// Record is one line of a JSONL results log.
type Record struct {
	RunID   string           `json:"run_id"`
	Time    time.Time        `json:"time"`
	Scorer  string           `json:"scorer"`
	Source  string           `json:"source,omitempty"`
	Metrics []tagging.Metric `json:"metrics"`
}

// NewRecord creates a record of a finished evaluation run with a fresh run id.
func NewRecord(scorer, source string, r tagging.Report) Record {
	return Record{
		RunID:   uuid.NewString(),
		Time:    time.Now().UTC(),
		Scorer:  scorer,
		Source:  source,
		Metrics: r,
	}
}

// AppendJSONL appends rec as one JSON line to the file at path, creating it
// (and its directory) if needed. A "~" prefix is expanded to the home directory.
//
// Writers are serialized with a path+".lock" file, so several evaluation
// processes can share the same log.
func AppendJSONL(path string, rec Record) error {
	path, err := files.ReplaceTildeInDir(path)
	if err != nil {
		return err
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "failed to encode record")
	}
	line = append(line, '\n')

	if err := os.MkdirAll(filepath.Dir(path), DefaultDirCreationPerm); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	lockPath := path + ".lock"
	var mainErr error
	errLock := execOnFileLock(lockPath, func() {
		if !files.Exists(path) {
			klog.V(1).Infof("creating results log %s", path)
		}
		f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			mainErr = errors.Wrapf(err, "failed to open %q", path)
			return
		}
		if _, err := f.Write(line); err != nil {
			_ = f.Close()
			mainErr = errors.Wrapf(err, "failed to append to %q", path)
			return
		}
		if err := f.Close(); err != nil {
			mainErr = errors.Wrapf(err, "failed to close %q", path)
		}
	})
	if mainErr != nil {
		return mainErr
	}
	if errLock != nil {
		return errors.WithMessagef(errLock, "while locking %q to append to %q", lockPath, path)
	}
	return nil
}

// ReadJSONL reads all records of a results log.
func ReadJSONL(path string) ([]Record, error) {
	path, err := files.ReplaceTildeInDir(path)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %q", path)
	}
	defer f.Close()
	var records []Record
	dec := json.NewDecoder(f)
	for dec.More() {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			return nil, errors.Wrapf(err, "failed to decode record %d of %q", len(records), path)
		}
		records = append(records, rec)
	}
	return records, nil
}

// execOnFileLock opens the lockPath file (or creates if it doesn't yet exist), locks it, and executes the function.
// If the lockPath is already locked, it polls with a 100 to 200 milliseconds period (randomly), until it acquires the lock.
//
// The lockPath is not removed.
func execOnFileLock(lockPath string, fn func()) (err error) {
	fileLock := flock.New(lockPath)
	for {
		locked, err := fileLock.TryLock()
		if err != nil {
			return errors.Wrapf(err, "while trying to lock %q", lockPath)
		}
		if locked {
			break
		}
		time.Sleep(time.Millisecond * time.Duration(100+rand.Intn(100)))
	}

	// Setup clean up in a deferred function, so it happens even if `fn()` panics.
	defer func() {
		unlockErr := fileLock.Unlock()
		if unlockErr != nil && err == nil {
			err = errors.Wrapf(unlockErr, "unlocking file %q", lockPath)
		}
	}()

	fn()
	return
}
