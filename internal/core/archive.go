package core

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// DirArchiver moves consumed files into a single archive folder.
//
// The file is copied and then removed from the inbox, so an archive folder on
// another filesystem works too. If a file with the same name is already
// archived, the new copy gets a millisecond timestamp before its extension.
type DirArchiver struct {
	Dir string
	now func() time.Time
}

// NewDirArchiver returns an archiver writing into dir.
func NewDirArchiver(dir string) *DirArchiver {
	return &DirArchiver{Dir: dir, now: time.Now}
}

// Archive copies path into the archive folder and removes the original.
// Failures are wrapped with ErrArchiveFailed.
func (a *DirArchiver) Archive(path string) (string, error) {
	dest := a.destination(filepath.Base(path))

	if err := copyFile(path, dest); err != nil {
		return "", errors.Wrapf(ErrArchiveFailed, "copy %s: %v", filepath.Base(path), err)
	}
	if err := os.Remove(path); err != nil {
		return dest, errors.Wrapf(ErrArchiveFailed, "remove %s from inbox: %v", filepath.Base(path), err)
	}
	return dest, nil
}

func (a *DirArchiver) destination(base string) string {
	dest := filepath.Join(a.Dir, base)
	if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
		return dest
	}

	now := time.Now
	if a.now != nil {
		now = a.now
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	return filepath.Join(a.Dir, stem+"."+strconv.FormatInt(now().UnixMilli(), 10)+ext)
}

func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// CheckWritable verifies that dir exists, is a directory and accepts new files.
func CheckWritable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrapf(err, "stat %s", dir)
	}
	if !info.IsDir() {
		return errors.Newf("%s is not a directory", dir)
	}

	f, err := os.CreateTemp(dir, ".wqingest-probe-*")
	if err != nil {
		return errors.Wrapf(err, "%s is not writable", dir)
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
