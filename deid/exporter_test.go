package deid_test

import (
	"bytes"
	"context"
	"fmt"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/redhatinsights/deid-export-go/deid"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// upperDeidentifier upper-cases the input so tests can tell exported
// content from the origin.
type upperDeidentifier struct {
	err   error
	calls int
}

func (u *upperDeidentifier) Deidentify(ctx context.Context, fs afero.Fs, profilePath, inputPath, outputPath string) error {
	u.calls++
	if u.err != nil {
		return u.err
	}
	data, err := afero.ReadFile(fs, inputPath)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, outputPath, bytes.ToUpper(data), 0o644)
}

var _ = Describe("FileExporter", func() {
	var (
		ctx     = context.Background()
		log     = zap.NewNop().Sugar()
		fs      afero.Fs
		mem     *store.MemoryStore
		origin  string
		dest    string
		deider  *upperDeidentifier
		job     models.FileExportJob
		profile = "/templates/basic.yaml"
	)

	BeforeEach(func() {
		var err error
		fs = afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, profile, []byte("dicom: {}\n"), 0o644)).To(Succeed())
		mem, err = store.NewMemoryStore()
		Expect(err).To(BeNil())
		origin, err = mem.AddProject("group", "origin")
		Expect(err).To(BeNil())
		dest, err = mem.AddProject("group", "dest")
		Expect(err).To(BeNil())
		Expect(mem.AddFile(origin, models.File{Name: "scan.dcm", Type: "dicom"}, []byte("patient"))).To(Succeed())
		deider = &upperDeidentifier{}
		job = models.FileExportJob{
			OriginParent:     origin,
			OriginParentType: models.Project,
			OriginFilename:   "scan.dcm",
			ExportParent:     dest,
			ExportFilename:   "scan.dcm",
			State:            models.JobPending,
		}
	})

	It("exports a de-identified copy", func() {
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		Expect(e.State()).To(Equal(models.JobPending))
		Expect(e.LocalDeidExport(ctx, profile)).To(Succeed())

		status := e.Status(ctx)
		Expect(status.State).To(Equal(models.JobSuccess))
		Expect(status.Errors).To(BeEmpty())
		Expect(status.ExportFileID).NotTo(BeEmpty())
		Expect(status.OriginParentType).To(Equal("project"))

		data, err := mem.FileData(dest, "scan.dcm")
		Expect(err).To(BeNil())
		Expect(string(data)).To(Equal("PATIENT"))
	})

	It("keeps an existing file without overwrite", func() {
		Expect(mem.AddFile(dest, models.File{ID: "kept", Name: "scan.dcm"}, []byte("old"))).To(Succeed())
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		Expect(e.State()).To(Equal(models.JobPending))
		Expect(e.LocalDeidExport(ctx, profile)).To(Succeed())
		Expect(deider.calls).To(Equal(0))

		status := e.Status(ctx)
		Expect(status.State).To(Equal(models.JobSuccess))
		Expect(status.Errors).To(ContainSubstring("already exists"))
		Expect(status.ExportFileID).To(Equal("kept"))

		data, err := mem.FileData(dest, "scan.dcm")
		Expect(err).To(BeNil())
		Expect(string(data)).To(Equal("old"))
	})

	It("replaces an existing file with overwrite", func() {
		Expect(mem.AddFile(dest, models.File{Name: "scan.dcm"}, []byte("old"))).To(Succeed())
		job.Overwrite = true
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		Expect(e.LocalDeidExport(ctx, profile)).To(Succeed())
		Expect(e.Status(ctx).State).To(Equal(models.JobSuccess))

		data, err := mem.FileData(dest, "scan.dcm")
		Expect(err).To(BeNil())
		Expect(string(data)).To(Equal("PATIENT"))
	})

	It("records a missing origin file", func() {
		job.OriginFilename = "gone.dcm"
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		status := e.Status(ctx)
		Expect(status.State).To(Equal(models.JobError))
		Expect(status.Errors).To(ContainSubstring("does not exist"))
	})

	It("records a missing profile", func() {
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		Expect(e.LocalDeidExport(ctx, "/templates/missing.yaml")).To(Succeed())
		status := e.Status(ctx)
		Expect(status.State).To(Equal(models.JobError))
		Expect(status.Errors).To(ContainSubstring("missing.yaml"))
	})

	It("returns de-identification failures for retry", func() {
		deider.err = fmt.Errorf("bad pixel data")
		e := deid.NewFileExporter(ctx, mem, job, deider, fs, log)
		err := e.LocalDeidExport(ctx, profile)
		Expect(err).To(MatchError(ContainSubstring("bad pixel data")))
		Expect(e.State()).To(Equal(models.JobPending))

		file, err := mem.GetFile(ctx, dest, "scan.dcm")
		Expect(err).To(BeNil())
		Expect(file).To(BeNil())
	})

	It("keeps jobs that were already in error", func() {
		failed := job.Failed("template derivation failed")
		e := deid.NewFileExporter(ctx, mem, failed, deider, fs, log)
		Expect(e.LocalDeidExport(ctx, profile)).To(Succeed())
		status := e.Status(ctx)
		Expect(status.State).To(Equal(models.JobError))
		Expect(status.Errors).To(Equal("template derivation failed"))
	})
})
