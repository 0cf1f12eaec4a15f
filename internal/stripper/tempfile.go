package stripper

import (
	"io"
	"os"
	"path/filepath"
	"strings"
)

// commitViaTemp lets fill produce a file next to dst and moves it onto dst only if
// fill succeeds. The temporary keeps dst's extension because both backends pick the
// output format from it. On failure the temporary is removed and dst is not touched.
func commitViaTemp(dst string, perm os.FileMode, fill func(tmpPath string) error) (err error) {
	dir := filepath.Dir(dst)
	ext := filepath.Ext(dst)
	stem := strings.TrimSuffix(filepath.Base(dst), ext)

	tmp, err := os.CreateTemp(dir, "."+stem+".tmp-*"+ext)
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if err = fill(tmpName); err != nil {
		return err
	}
	if err = os.Chmod(tmpName, perm); err != nil {
		return err
	}
	return os.Rename(tmpName, dst)
}

// copyInto copies src's bytes into the already existing file at dst.
func copyInto(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_TRUNC, 0)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// fileMode returns path's permission bits, or 0644 if it cannot be read.
func fileMode(path string) os.FileMode {
	info, err := os.Stat(path)
	if err != nil {
		return 0644
	}
	return info.Mode().Perm()
}
