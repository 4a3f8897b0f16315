package archive

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/bodgit/sevenzip"
	"github.com/wfunc/autopbw/internal/errors"
	"github.com/wfunc/autopbw/internal/logger"
	"go.uber.org/zap"
)

// 打包超时
const compressTimeout = 5 * time.Minute

// 未配置时依次在PATH中查找
var sevenZipTools = []string{"7z", "7za", "7zr"}

// SevenZip PBW使用的7z归档
//
// 解压按文件头选择格式，zip包也能读取；打包调用外部7z程序。
type SevenZip struct {
	tool string
	log  *zap.Logger
}

// NewSevenZip 创建7z编解码器
func NewSevenZip(tool string) *SevenZip {
	return &SevenZip{
		tool: strings.TrimSpace(tool),
		log:  logger.WithModule("archive"),
	}
}

// Ext 归档扩展名
func (s *SevenZip) Ext() string {
	return string(FormatSevenZip)
}

// Extract 解压归档，已存在的同名文件会被覆盖
func (s *SevenZip) Extract(archivePath, dir string) ([]string, error) {
	format, err := DetectFormat(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchive, "open archive %s", archivePath)
	}
	switch format {
	case FormatSevenZip:
		return s.extract(archivePath, dir)
	case FormatZip:
		s.log.Debug("归档为zip格式", zap.String("archive", archivePath))
		return Zip{}.Extract(archivePath, dir)
	default:
		return nil, errors.Newf(errors.ErrArchive, "unrecognized archive format: %s", archivePath)
	}
}

func (s *SevenZip) extract(archivePath, dir string) ([]string, error) {
	r, err := sevenzip.OpenReader(archivePath)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchive, "open archive %s", archivePath)
	}
	defer r.Close()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, errors.ErrArchive, "create %s", dir)
	}

	names := make([]string, 0, len(r.File))
	for _, f := range r.File {
		target, err := safeJoin(dir, f.Name)
		if err != nil {
			return names, err
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return names, errors.Wrapf(err, errors.ErrArchive, "create %s", target)
			}
			continue
		}
		f := f
		open := func() (io.ReadCloser, error) { return f.Open() }
		if err := writeEntry(open, f.Name, target, f.Modified); err != nil {
			return names, err
		}
		names = append(names, f.Name)
	}
	return names, nil
}

// Compress 调用7z程序打包，归档内只保留文件名
func (s *SevenZip) Compress(files []string, archivePath string) error {
	tool, err := s.resolveTool()
	if err != nil {
		return err
	}

	args := append([]string{"a", "-t7z", "-y", "-bd", archivePath}, files...)
	ctx, cancel := context.WithTimeout(context.Background(), compressTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, tool, args...)
	cmd.Stdout = &out
	cmd.Stderr = &out

	start := time.Now()
	if err := cmd.Run(); err != nil {
		os.Remove(archivePath)
		s.log.Error("7z打包失败",
			zap.String("tool", tool),
			zap.Strings("files", files),
			zap.String("output", strings.TrimSpace(out.String())),
			zap.Error(err))
		return errors.Wrapf(err, errors.ErrArchive, "%s failed: %s", tool, lastLine(out.String()))
	}
	if _, err := os.Stat(archivePath); err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "%s produced no archive", tool)
	}
	s.log.Debug("7z打包完成",
		zap.String("archive", archivePath),
		zap.Int("files", len(files)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// resolveTool 配置的程序优先，否则在PATH中查找
func (s *SevenZip) resolveTool() (string, error) {
	candidates := sevenZipTools
	if s.tool != "" {
		candidates = []string{s.tool}
	}
	for _, name := range candidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.Newf(errors.ErrArchive,
		"7z executable not found (tried %s); set archive.seven_zip", strings.Join(candidates, ", "))
}

// Available 是否能找到7z程序
func (s *SevenZip) Available() bool {
	_, err := s.resolveTool()
	return err == nil
}

func lastLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
