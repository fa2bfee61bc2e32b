package imagecache

import (
	"errors"
	"io/fs"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

const tempFilePrefix = ".cache-"

// diskTier 负责磁盘层的读写：写入通过临时文件 + rename 保证原子替换，
// 同一路径的并发写入由 entryLock 串行化。
type diskTier struct {
	fs afero.Fs

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

func newDiskTier(fs afero.Fs) *diskTier {
	return &diskTier{
		fs:    fs,
		locks: make(map[string]*entryLock),
	}
}

// exists 区分“文件不存在”（返回 false）与其它 stat 失败（返回错误）；目录视为不存在。
func (d *diskTier) exists(path string) (bool, error) {
	info, err := d.fs.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return !info.IsDir(), nil
}

func (d *diskTier) read(path string) ([]byte, error) {
	return afero.ReadFile(d.fs, path)
}

func (d *diskTier) write(path string, data []byte) error {
	unlock := d.lockEntry(path)
	defer unlock()

	tempFile, err := afero.TempFile(d.fs, filepath.Dir(path), tempFilePrefix+"*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = d.fs.Remove(tempName)
		return err
	}

	if err := d.fs.Rename(tempName, path); err != nil {
		_ = d.fs.Remove(tempName)
		return err
	}
	return nil
}

func (d *diskTier) lockEntry(path string) func() {
	d.mu.Lock()
	lock := d.locks[path]
	if lock == nil {
		lock = &entryLock{}
		d.locks[path] = lock
	}
	lock.refs++
	d.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		d.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(d.locks, path)
		}
		d.mu.Unlock()
	}
}
