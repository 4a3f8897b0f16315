package archive

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"

	"github.com/wfunc/autopbw/internal/errors"
)

// Zip 基于zip格式的编解码器
type Zip struct{}

// NewZip 创建zip编解码器
func NewZip() *Zip {
	return &Zip{}
}

// Ext 归档扩展名
func (Zip) Ext() string {
	return string(FormatZip)
}

// Extract 解压归档，已存在的同名文件会被覆盖
func (Zip) Extract(archivePath, dir string) ([]string, error) {
	r, err := zip.OpenReader(archivePath)
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
		open := func() (io.ReadCloser, error) { return f.Open() }
		if err := writeEntry(open, f.Name, target, f.Modified); err != nil {
			return names, err
		}
		names = append(names, f.Name)
	}
	return names, nil
}

// Compress 打包文件，条目名为文件的基本名
func (Zip) Compress(files []string, archivePath string) error {
	out, err := os.Create(archivePath)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "create archive %s", archivePath)
	}

	w := zip.NewWriter(out)
	for _, file := range files {
		if err := addFile(w, file); err != nil {
			w.Close()
			out.Close()
			os.Remove(archivePath)
			return err
		}
	}
	if err := w.Close(); err != nil {
		out.Close()
		os.Remove(archivePath)
		return errors.Wrapf(err, errors.ErrArchive, "finish archive %s", archivePath)
	}
	return out.Close()
}

func addFile(w *zip.Writer, file string) error {
	src, err := os.Open(file)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "open %s", file)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "stat %s", file)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "header %s", file)
	}
	header.Name = filepath.Base(file)
	header.Method = zip.Deflate

	dst, err := w.CreateHeader(header)
	if err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "add %s", file)
	}
	if _, err := io.Copy(dst, src); err != nil {
		return errors.Wrapf(err, errors.ErrArchive, "add %s", file)
	}
	return nil
}
