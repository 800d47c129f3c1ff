/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package s3

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/logger"
)

// Compressor bundles the report of a run with its manifest and ships the
// archive to a bucket.
type Compressor struct {
	Client manager.UploadAPIClient
	Bucket string
	Log    *zap.SugaredLogger
}

// Compress builds a tar.gz holding the report file, meta.json and README.md.
func Compress(fs afero.Fs, reportPath string, meta *ExportMeta, modTime time.Time) (*bytes.Buffer, error) {
	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	tarWriter := tar.NewWriter(gzipWriter)

	metaJSON, err := BuildMeta(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to build meta.json: %w", err)
	}
	readme, err := BuildReadme(meta)
	if err != nil {
		return nil, fmt.Errorf("failed to build README.md: %w", err)
	}

	f, err := fs.Open(reportPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open report: %w", err)
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to get file info: %w", err)
	}
	header, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return nil, fmt.Errorf("failed to create file header: %w", err)
	}
	header.Name = filepath.Base(reportPath)
	if err = tarWriter.WriteHeader(header); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if _, err := io.Copy(tarWriter, f); err != nil {
		return nil, fmt.Errorf("failed to copy report into tar file: %w", err)
	}

	entries := []struct {
		name string
		data []byte
	}{
		{"meta.json", metaJSON},
		{"README.md", []byte(readme)},
	}
	for _, entry := range entries {
		name, data := entry.name, entry.data
		header := &tar.Header{
			Name:    name,
			Mode:    0o644,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err := tarWriter.WriteHeader(header); err != nil {
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
		if _, err := tarWriter.Write(data); err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", name, err)
		}
	}

	// produce tar
	if err := tarWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close tar writer: %w", err)
	}
	// produce gzip
	if err := gzipWriter.Close(); err != nil {
		return nil, fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return &buf, nil
}

// Archive compresses the run report and uploads it. It returns the object key.
func (c *Compressor) Archive(ctx context.Context, fs afero.Fs, reportPath string, meta *ExportMeta) (string, error) {
	c.Log.Infof("starting report compression for run %s", meta.RunID)

	t := time.Now()
	buf, err := Compress(fs, reportPath, meta, t)
	if err != nil {
		return "", err
	}
	size := buf.Len()

	filename := fmt.Sprintf("%s_%s-%s.tar.gz", meta.ContainerType, meta.ContainerID, t.UTC().Format(time.RFC3339))
	key := fmt.Sprintf("%s/%s", meta.RunID, filename)

	c.Log.Infof("shipping %s to s3", filename)
	totalUploads.Inc()
	if _, err := c.Upload(ctx, buf, &c.Bucket, &key); err != nil {
		failUploads.Inc()
		c.Log.Errorw("failed to upload archive to s3", "error", err, logger.FilenameField(filename))
		return "", err
	}
	uploadSizes.With(prometheus.Labels{"container_type": meta.ContainerType}).Observe(float64(size))

	c.Log.Infof("done uploading %s", filename)
	return key, nil
}

func (c *Compressor) Upload(ctx context.Context, body io.Reader, bucket, key *string) (*manager.UploadOutput, error) {
	uploader := manager.NewUploader(c.Client, func(u *manager.Uploader) {
		u.PartSize = 100 * 1024 * 1024 // 100 MiB
	})

	input := &s3.PutObjectInput{
		Bucket: bucket,
		Key:    key,
		Body:   body,
	}
	return uploader.Upload(ctx, input)
}
