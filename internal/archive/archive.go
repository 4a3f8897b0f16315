package archive

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/wfunc/autopbw/internal/errors"
)

// Codec 回合文件归档编解码
type Codec interface {
	// Extract 解压到目录，返回解出的文件名（相对路径）
	Extract(archivePath, dir string) ([]string, error)
	// Compress 将文件打包为归档，归档内只保留文件名
	Compress(files []string, archivePath string) error
	// Ext 归档文件扩展名
	Ext() string
}

// Format 归档格式
type Format string

const (
	FormatSevenZip Format = "7z"
	FormatZip      Format = "zip"
	FormatUnknown  Format = ""
)

var (
	sevenZipMagic = []byte{'7', 'z', 0xBC, 0xAF, 0x27, 0x1C}
	zipMagic      = []byte{'P', 'K', 0x03, 0x04}
	zipEmptyMagic = []byte{'P', 'K', 0x05, 0x06}
)

// New 按配置创建编解码器，tool为7z可执行文件，为空时在PATH中查找
func New(format, tool string) (Codec, error) {
	switch Format(strings.ToLower(format)) {
	case FormatSevenZip, FormatUnknown:
		return NewSevenZip(tool), nil
	case FormatZip:
		return NewZip(), nil
	default:
		return nil, errors.Newf(errors.ErrConfigValidate, "unsupported archive format %q", format)
	}
}

// DetectFormat 按文件头识别归档格式
func DetectFormat(path string) (Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return FormatUnknown, err
	}
	defer f.Close()

	head := make([]byte, len(sevenZipMagic))
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return FormatUnknown, err
	}
	head = head[:n]
	switch {
	case bytes.HasPrefix(head, sevenZipMagic):
		return FormatSevenZip, nil
	case bytes.HasPrefix(head, zipMagic), bytes.HasPrefix(head, zipEmptyMagic):
		return FormatZip, nil
	}
	return FormatUnknown, nil
}

// writeEntry 把一个归档条目写到目标路径，已存在的文件被覆盖
func writeEntry(open func() (io.ReadCloser, error), name, target string, modified time.Time) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "create %s", filepath.Dir(target))
	}
	src, err := open()
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "read %s", name)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "write %s", target)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return errors.Wrapf(err, errors.ErrArchive, "write %s", target)
	}
	if err := dst.Close(); err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "write %s", target)
	}
	if !modified.IsZero() {
		_ = os.Chtimes(target, modified, modified)
	}
	return nil
}

// safeJoin 拒绝跳出目标目录的条目，条目名兼容两种分隔符
func safeJoin(dir, name string) (string, error) {
	name = strings.ReplaceAll(name, `\`, "/")
	target := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrArchive, "illegal entry %q in archive", name)
	}
	return target, nil
}

// TempFile 在临时目录下生成唯一的归档路径（不创建文件）
func TempFile(dir, ext string) (string, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	return filepath.Join(dir, uuid.NewString()+"."+strings.TrimPrefix(ext, ".")), nil
}

// MatchFiles 按逗号分隔的通配符列表在目录中查找文件，按首次出现顺序去重
//
// 通配符只作用于文件名，目录路径中的[*?按字面处理。目录不存在时返回空列表。
func MatchFiles(dir, filter string) ([]string, error) {
	patterns := splitFilter(filter)
	if len(patterns) == 0 {
		return nil, nil
	}
	for _, pattern := range patterns {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return nil, fmt.Errorf("bad filter %q: %w", pattern, err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	seen := make(map[string]struct{})
	var files []string
	for _, pattern := range patterns {
		for _, entry := range entries {
			if ok, _ := filepath.Match(pattern, entry.Name()); !ok {
				continue
			}
			path := filepath.Join(dir, entry.Name())
			if _, ok := seen[path]; ok {
				continue
			}
			// 符号链接按指向的目标判断
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}
			seen[path] = struct{}{}
			files = append(files, path)
		}
	}
	return files, nil
}

// MatchesFilter 判断文件名是否匹配过滤器中的任一通配符
func MatchesFilter(name, filter string) bool {
	name = filepath.Base(name)
	for _, pattern := range splitFilter(filter) {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

func splitFilter(filter string) []string {
	var patterns []string
	for _, pattern := range strings.Split(filter, ",") {
		if pattern = strings.TrimSpace(pattern); pattern != "" {
			patterns = append(patterns, pattern)
		}
	}
	return patterns
}
