package imagecache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// appDirName 是系统缓存根目录下本应用的目录名。
const appDirName = "imagehub"

// userCacheDir 可在测试中替换，模拟平台无法提供缓存目录。
var userCacheDir = os.UserCacheDir

// ResolveRoot 返回缓存根目录：显式配置优先，否则使用 os.UserCacheDir()/imagehub。
func ResolveRoot(root string) (string, error) {
	if root != "" {
		return root, nil
	}
	base, err := userCacheDir()
	if err == nil && base == "" {
		err = errors.New("empty cache directory")
	}
	if err != nil {
		return "", &Error{Kind: KindNoDirectoryAvailable, Err: err}
	}
	return filepath.Join(base, appDirName), nil
}

// Directory 是单个缓存实例独占的扁平目录，生命周期与实例一致。
type Directory struct {
	fs   afero.Fs
	path string
}

func newDirectory(fs afero.Fs, root, component string) (*Directory, error) {
	if component == "" || component == "." || component == ".." ||
		strings.ContainsAny(component, `/\`) {
		return nil, fmt.Errorf("invalid cache path component %q", component)
	}
	return &Directory{fs: fs, path: filepath.Join(root, component)}, nil
}

// Path 返回目录的绝对路径。
func (d *Directory) Path() string {
	return d.path
}

// Ensure 幂等地确保目录存在；目录已存在时即使文件系统只读也不会报错。
func (d *Directory) Ensure() error {
	if info, err := d.fs.Stat(d.path); err == nil {
		if info.IsDir() {
			return nil
		}
		return &Error{Kind: KindDirectoryCreationFailed, Path: d.path, Err: errors.New("path exists and is not a directory")}
	}
	if err := d.fs.MkdirAll(d.path, 0o755); err != nil {
		return &Error{Kind: KindDirectoryCreationFailed, Path: d.path, Err: err}
	}
	return nil
}

// Remove 递归删除整个目录，目录不存在时不报错。
func (d *Directory) Remove() error {
	return d.fs.RemoveAll(d.path)
}

// FilePath 返回目录下指定文件名的完整路径。
func (d *Directory) FilePath(name string) string {
	return filepath.Join(d.path, name)
}

// Usage 统计目录内缓存文件的数量与总字节数，忽略写入中的临时文件。
func (d *Directory) Usage() (int, int64, error) {
	entries, err := afero.ReadDir(d.fs, d.path)
	if err != nil {
		return 0, 0, err
	}
	var (
		files int
		total int64
	)
	for _, entry := range entries {
		if entry.IsDir() || strings.HasPrefix(entry.Name(), tempFilePrefix) {
			continue
		}
		files++
		total += entry.Size()
	}
	return files, total, nil
}
