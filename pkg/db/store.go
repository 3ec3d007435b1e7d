package db

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	perr "github.com/peroxs/cryptsetup/pkg/errors"
	"github.com/peroxs/cryptsetup/pkg/securerandom"
)

// DefaultLocation returns peroxs-db.json in the current working
// directory.
func DefaultLocation() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", &perr.DatabaseIo{Path: "<cwd>", Err: err}
	}
	return filepath.Join(wd, DefaultName), nil
}

// Open reads and parses a database from an arbitrary reader, rejecting
// any file whose declared version is newer than this build supports.
func Open(r io.Reader) (*Database, error) {
	var d Database
	dec := json.NewDecoder(r)
	if err := dec.Decode(&d); err != nil {
		return nil, &perr.DatabaseSerialization{Err: err}
	}
	if d.Version > Version {
		return nil, &perr.DatabaseVersion{Found: d.Version, Supported: Version}
	}
	return &d, nil
}

// OpenAt reads and parses the database at the given path.
func OpenAt(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &perr.DatabaseNotFound{Path: path}
		}
		return nil, &perr.DatabaseIo{Path: path, Err: err}
	}
	defer f.Close()

	return Open(f)
}

// Save writes the database as JSON to an arbitrary writer.
func (d *Database) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	if err := enc.Encode(d); err != nil {
		return &perr.DatabaseSerialization{Err: err}
	}
	return nil
}

// SaveTo writes the database to path, all-or-nothing: it is encoded to
// a temp file in the same directory and renamed into place, so a crash
// mid-write never leaves a truncated or corrupt peroxs-db.json behind.
func (d *Database) SaveTo(path string) error {
	dir := filepath.Dir(path)
	suffix, err := securerandom.ID(8)
	if err != nil {
		return &perr.DatabaseIo{Path: path, Err: err}
	}
	tmpPath := filepath.Join(dir, "."+filepath.Base(path)+"."+suffix+".tmp")

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return &perr.DatabaseIo{Path: path, Err: err}
	}

	if err := d.Save(f); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return &perr.DatabaseIo{Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return &perr.DatabaseIo{Path: path, Err: err}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &perr.DatabaseIo{Path: path, Err: err}
	}
	return nil
}
