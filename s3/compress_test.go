package s3_test

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	awss3 "github.com/aws/aws-sdk-go-v2/service/s3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/s3"
)

// fakeUploader only serves single part uploads.
type fakeUploader struct {
	manager.UploadAPIClient
	bucket string
	key    string
	body   []byte
	err    error
}

func (f *fakeUploader) PutObject(ctx context.Context, params *awss3.PutObjectInput, optFns ...func(*awss3.Options)) (*awss3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *params.Bucket
	f.key = *params.Key
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = data
	return &awss3.PutObjectOutput{}, nil
}

func untar(data []byte) map[string]string {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	Expect(err).To(BeNil())
	tr := tar.NewReader(gz)
	files := map[string]string{}
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		Expect(err).To(BeNil())
		content, err := io.ReadAll(tr)
		Expect(err).To(BeNil())
		files[header.Name] = string(content)
	}
	return files
}

var _ = Describe("Compressor", func() {
	var (
		fs   afero.Fs
		meta *s3.ExportMeta
	)
	now := time.Date(2022, 1, 2, 3, 4, 5, 0, time.UTC)

	BeforeEach(func() {
		fs = afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, "/out/session_ses1_export.csv", []byte("origin_filename\nscan.dcm\n"), 0o644)).To(Succeed())
		meta = s3.NewExportMeta(runID, "session", "ses1", "P1", "deid.yaml", "session_ses1_export.csv", reportRows, now)
	})

	It("bundles the report with its manifest", func() {
		buf, err := s3.Compress(fs, "/out/session_ses1_export.csv", meta, now)
		Expect(err).To(BeNil())

		files := untar(buf.Bytes())
		Expect(files).To(HaveLen(3))
		Expect(files["session_ses1_export.csv"]).To(Equal("origin_filename\nscan.dcm\n"))
		Expect(files["meta.json"]).To(ContainSubstring(`"run_id":"` + runID.String() + `"`))
		Expect(files["README.md"]).To(ContainSubstring("# Export Manifest"))
	})

	It("fails when the report is missing", func() {
		_, err := s3.Compress(fs, "/out/missing.csv", meta, now)
		Expect(err).To(HaveOccurred())
	})

	It("uploads the archive under the run id", func() {
		up := &fakeUploader{}
		c := &s3.Compressor{Client: up, Bucket: "exports", Log: zap.NewNop().Sugar()}

		key, err := c.Archive(context.Background(), fs, "/out/session_ses1_export.csv", meta)
		Expect(err).To(BeNil())
		Expect(key).To(HavePrefix(runID.String() + "/session_ses1-"))
		Expect(key).To(HaveSuffix(".tar.gz"))
		Expect(up.bucket).To(Equal("exports"))
		Expect(up.key).To(Equal(key))
		Expect(untar(up.body)).To(HaveKey("README.md"))
	})

	It("returns upload failures", func() {
		up := &fakeUploader{err: errors.New("denied")}
		c := &s3.Compressor{Client: up, Bucket: "exports", Log: zap.NewNop().Sugar()}

		_, err := c.Archive(context.Background(), fs, "/out/session_ses1_export.csv", meta)
		Expect(err).To(HaveOccurred())
		Expect(strings.Contains(err.Error(), "denied")).To(BeTrue())
	})
})
