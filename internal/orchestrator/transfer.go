package orchestrator

import (
	"context"
	"os"

	"github.com/wfunc/autopbw/internal/archive"
	"github.com/wfunc/autopbw/internal/errors"
	"go.uber.org/zap"
)

// downloadAndExtract 下载压缩包到临时文件，解压到dir后删除
func (o *Orchestrator) downloadAndExtract(ctx context.Context, url, dir string) error {
	tmp, err := archive.TempFile(o.opts.TempDir, o.codec.Ext())
	if err != nil {
		return errors.Wrap(err, errors.ErrArchive)
	}
	defer o.removeTemp(tmp)

	if err := o.svc.Download(ctx, url, tmp); err != nil {
		o.transferFailed(ctx, err)
		return err
	}
	names, err := o.codec.Extract(tmp, dir)
	if err != nil {
		return err
	}
	o.log.Info("已解压", zap.String("dir", dir), zap.Strings("files", names))
	return nil
}

// archiveAndUpload 打包文件到临时压缩包，上传后删除
func (o *Orchestrator) archiveAndUpload(ctx context.Context, files []string, url, field string, expectedStatus int) error {
	tmp, err := archive.TempFile(o.opts.TempDir, o.codec.Ext())
	if err != nil {
		return errors.Wrap(err, errors.ErrArchive)
	}
	defer o.removeTemp(tmp)

	if err := o.codec.Compress(files, tmp); err != nil {
		return err
	}
	if err := o.svc.Upload(ctx, tmp, url, field, expectedStatus); err != nil {
		o.transferFailed(ctx, err)
		return err
	}
	return nil
}

func (o *Orchestrator) removeTemp(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		o.log.Warn("删除临时文件失败", zap.String("path", path), zap.Error(err))
	}
}
