package exports_test

import (
	"context"
	"os"
	"strings"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/afero"

	"github.com/redhatinsights/deid-export-go/errors"
	"github.com/redhatinsights/deid-export-go/exports"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

const basicTemplate = `
dicom:
  date-increment: -17
  fields:
    - name: PatientID
      replace-with: REDACTED
export:
  subject:
    whitelist:
      metadata: [sex]
  session:
    whitelist:
      metadata: all
`

type collectingSink struct {
	runs map[uuid.UUID][]models.ExportStatus
}

func (c *collectingSink) RecordStatuses(ctx context.Context, runID uuid.UUID, statuses []models.ExportStatus) error {
	c.runs[runID] = append(c.runs[runID], statuses...)
	return nil
}

// blankIDClient hides the id of one container, as a store returning an
// incomplete record would.
type blankIDClient struct {
	*store.MemoryStore
	blank string
}

func (c *blankIDClient) Get(ctx context.Context, id string) (*models.Container, error) {
	got, err := c.MemoryStore.Get(ctx, id)
	if err != nil || id != c.blank {
		return got, err
	}
	cp := *got
	cp.ID = ""
	return &cp, nil
}

var _ = Describe("ContainerExporter", func() {
	var (
		ctx      = context.Background()
		fs       afero.Fs
		mem      *store.MemoryStore
		tree     originTree
		deider   *upperDeidentifier
		sink     *collectingSink
		exporter *exports.ContainerExporter
	)

	BeforeEach(func() {
		var err error
		fs = afero.NewMemMapFs()
		Expect(afero.WriteFile(fs, "/basic.yaml", []byte(basicTemplate), 0o644)).To(Succeed())
		mem, err = store.NewMemoryStore()
		Expect(err).To(BeNil())
		tree = seedOrigin(ctx, mem)
		deider = &upperDeidentifier{fail: map[string]bool{}}
		sink = &collectingSink{runs: map[uuid.UUID][]models.ExportStatus{}}
		exporter = &exports.ContainerExporter{
			Client:        mem,
			Executor:      newTestExecutor(mem, fs, deider),
			FS:            fs,
			TemplatePath:  "/basic.yaml",
			DestProjectID: tree.destProject,
			CSVOutputPath: "/session_export.csv",
			FileTypes:     []string{"dicom"},
			CodeColumn:    "subject.code",
			NewCodeColumn: "export.subject.code",
			Sinks:         []exports.StatusSink{sink},
			RunID:         uuid.New(),
			Log:           testLog,
		}
	})

	destTree := func() (subjects, sessions, acquisitions []models.Container) {
		var err error
		subjects, err = mem.ListChildren(ctx, tree.destProject, models.Subject)
		Expect(err).To(BeNil())
		for _, subject := range subjects {
			s, err := mem.ListChildren(ctx, subject.ID, models.Session)
			Expect(err).To(BeNil())
			sessions = append(sessions, s...)
		}
		for _, session := range sessions {
			a, err := mem.ListChildren(ctx, session.ID, models.Acquisition)
			Expect(err).To(BeNil())
			acquisitions = append(acquisitions, a...)
		}
		return
	}

	It("exports a single session into an empty project", func() {
		errorCount, err := exporter.Export(ctx, tree.session)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(0))

		subjects, sessions, acquisitions := destTree()
		Expect(subjects).To(HaveLen(1))
		Expect(subjects[0].Code).To(Equal("S1"))
		Expect(subjects[0].Fields).To(Equal(map[string]interface{}{"sex": "F"}))
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].Label).To(Equal("ses1"))
		Expect(sessions[0].OriginIDHash()).To(Equal(models.HashOriginID(tree.session)))
		Expect(sessions[0].Fields).To(HaveKeyWithValue("operator", "dr who"))
		Expect(acquisitions).To(HaveLen(1))

		rows := exporter.Report().Rows()
		Expect(rows).To(HaveLen(1))
		Expect(rows[0].State).To(Equal(models.JobSuccess))
		Expect(rows[0].ExportParent).To(Equal(acquisitions[0].ID))

		data, err := mem.FileData(acquisitions[0].ID, "scan.dcm")
		Expect(err).To(BeNil())
		Expect(string(data)).To(Equal("PATIENT"))

		Expect(sink.runs[exporter.RunID]).To(Equal(rows))
		csv, err := afero.ReadFile(fs, "/session_export.csv")
		Expect(err).To(BeNil())
		Expect(strings.Count(string(csv), "\n")).To(Equal(2))
	})

	It("converges on re-runs", func() {
		_, err := exporter.Export(ctx, tree.session)
		Expect(err).To(BeNil())

		errorCount, err := exporter.Export(ctx, tree.session)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(0))
		rerun := exporter.Report().Rows()
		Expect(rerun).To(HaveLen(1))
		Expect(rerun[0].State).To(Equal(models.JobSuccess))
		Expect(rerun[0].ExportFileID).NotTo(BeEmpty())
		Expect(rerun[0].Errors).To(ContainSubstring("already exists"))

		exporter.Overwrite = true
		errorCount, err = exporter.Export(ctx, tree.session)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(0))

		subjects, sessions, acquisitions := destTree()
		Expect(subjects).To(HaveLen(1))
		Expect(sessions).To(HaveLen(1))
		Expect(acquisitions).To(HaveLen(1))

		csv, err := afero.ReadFile(fs, "/session_export.csv")
		Expect(err).To(BeNil())
		Expect(strings.Count(string(csv), "origin_filename")).To(Equal(1))
		Expect(strings.Count(string(csv), "\n")).To(Equal(4))
	})

	It("sends project and subject files with the first session only", func() {
		Expect(mem.AddFile(tree.project, models.File{Name: "protocol.dcm", Type: "dicom"}, []byte("protocol"))).To(Succeed())
		Expect(mem.AddFile(tree.subject, models.File{Name: "consent.dcm", Type: "dicom"}, []byte("consent"))).To(Succeed())
		second, err := mem.AddChild(ctx, tree.subject, models.Session, map[string]interface{}{"label": "ses2"})
		Expect(err).To(BeNil())
		Expect(mem.AddFile(second, models.File{Name: "followup.dcm", Type: "dicom"}, []byte("followup"))).To(Succeed())
		other, err := mem.AddChild(ctx, tree.project, models.Subject, map[string]interface{}{"code": "S2"})
		Expect(err).To(BeNil())
		otherSession, err := mem.AddChild(ctx, other, models.Session, map[string]interface{}{"label": "ses1"})
		Expect(err).To(BeNil())
		Expect(mem.AddFile(otherSession, models.File{Name: "other.dcm", Type: "dicom"}, []byte("other"))).To(Succeed())

		errorCount, err := exporter.Export(ctx, tree.project)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(0))

		names := []string{}
		for _, row := range exporter.Report().Rows() {
			names = append(names, row.OriginFilename)
		}
		Expect(names).To(Equal([]string{"protocol.dcm", "consent.dcm", "scan.dcm", "followup.dcm", "other.dcm"}))

		project, err := mem.GetProject(ctx, tree.destProject)
		Expect(err).To(BeNil())
		Expect(project.Files).To(HaveLen(1))

		subjects, sessions, _ := destTree()
		Expect(subjects).To(HaveLen(2))
		Expect(sessions).To(HaveLen(3))
	})

	It("attaches subject files when exporting a subject", func() {
		Expect(mem.AddFile(tree.project, models.File{Name: "protocol.dcm", Type: "dicom"}, []byte("protocol"))).To(Succeed())
		Expect(mem.AddFile(tree.subject, models.File{Name: "consent.dcm", Type: "dicom"}, []byte("consent"))).To(Succeed())

		_, err := exporter.Export(ctx, tree.subject)
		Expect(err).To(BeNil())
		names := []string{}
		for _, row := range exporter.Report().Rows() {
			names = append(names, row.OriginFilename)
		}
		Expect(names).To(Equal([]string{"consent.dcm", "scan.dcm"}))
	})

	It("isolates subjects whose template cannot be derived", func() {
		other, err := mem.AddChild(ctx, tree.project, models.Subject, map[string]interface{}{"code": "S2"})
		Expect(err).To(BeNil())
		otherSession, err := mem.AddChild(ctx, other, models.Session, map[string]interface{}{"label": "ses1"})
		Expect(err).To(BeNil())
		Expect(mem.AddFile(otherSession, models.File{Name: "other.dcm", Type: "dicom"}, []byte("other"))).To(Succeed())

		Expect(afero.WriteFile(fs, "/subjects.csv", []byte("subject.code,export.subject.code,dicom.date-increment\nS1,ANON-1,-30\n"), 0o644)).To(Succeed())
		exporter.SubjectCSVPath = "/subjects.csv"

		errorCount, err := exporter.Export(ctx, tree.project)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(1))

		rows := exporter.Report().Rows()
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].State).To(Equal(models.JobSuccess))
		Expect(rows[1].OriginFilename).To(Equal("other.dcm"))
		Expect(rows[1].State).To(Equal(models.JobError))
		Expect(rows[1].Errors).To(ContainSubstring("S2"))

		subjects, _, _ := destTree()
		Expect(subjects).To(HaveLen(1))
		Expect(subjects[0].Code).To(Equal("ANON-1"))

		leftovers := []string{}
		Expect(afero.Walk(fs, "/", func(path string, info os.FileInfo, err error) error {
			if err == nil && strings.HasPrefix(info.Name(), "deid_") {
				leftovers = append(leftovers, path)
			}
			return nil
		})).To(Succeed())
		Expect(leftovers).To(BeEmpty())
	})

	It("turns a session without an origin id into error rows and continues", func() {
		other, err := mem.AddChild(ctx, tree.project, models.Subject, map[string]interface{}{"code": "S2"})
		Expect(err).To(BeNil())
		otherSession, err := mem.AddChild(ctx, other, models.Session, map[string]interface{}{"label": "ses2"})
		Expect(err).To(BeNil())
		Expect(mem.AddFile(otherSession, models.File{Name: "other.dcm", Type: "dicom"}, []byte("other"))).To(Succeed())
		exporter.Client = &blankIDClient{MemoryStore: mem, blank: otherSession}

		errorCount, err := exporter.Export(ctx, tree.project)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(1))

		byName := map[string]models.ExportStatus{}
		for _, row := range exporter.Report().Rows() {
			byName[row.OriginFilename] = row
		}
		Expect(byName).To(HaveLen(2))
		Expect(byName["scan.dcm"].State).To(Equal(models.JobSuccess))
		Expect(byName["other.dcm"].State).To(Equal(models.JobError))
		Expect(byName["other.dcm"].Errors).To(ContainSubstring("has no id"))

		_, sessions, _ := destTree()
		Expect(sessions).To(HaveLen(1))
		Expect(sessions[0].Label).To(Equal("ses1"))
	})

	It("aborts on an invalid subject mapping", func() {
		Expect(afero.WriteFile(fs, "/subjects.csv", []byte("subject.code\nS1\nS1\n"), 0o644)).To(Succeed())
		exporter.SubjectCSVPath = "/subjects.csv"
		_, err := exporter.Export(ctx, tree.session)
		Expect(errors.IsKind(err, errors.TemplateLoadError)).To(BeTrue())
	})

	It("records failed transfers without stopping the run", func() {
		Expect(mem.AddFile(tree.acquisition, models.File{Name: "broken.dcm", Type: "dicom"}, []byte("broken"))).To(Succeed())
		Expect(mem.AddFile(tree.acquisition, models.File{Name: "notes.txt", Type: "text"}, []byte("notes"))).To(Succeed())
		deider.fail["broken"] = true

		errorCount, err := exporter.Export(ctx, tree.session)
		Expect(err).To(BeNil())
		Expect(errorCount).To(Equal(1))
		rows := exporter.Report().Rows()
		Expect(rows).To(HaveLen(2))
		Expect(rows[0].State).To(Equal(models.JobSuccess))
		Expect(rows[1].State).To(Equal(models.JobError))
		Expect(rows[1].Errors).To(ContainSubstring("transfer refused"))
	})

	It("rejects acquisitions", func() {
		_, err := exporter.Export(ctx, tree.acquisition)
		Expect(errors.IsKind(err, errors.UnsupportedContainerType)).To(BeTrue())
	})

	It("rejects acquisitions before loading the template", func() {
		exporter.TemplatePath = "/missing.yaml"
		_, err := exporter.Export(ctx, tree.acquisition)
		Expect(errors.IsKind(err, errors.UnsupportedContainerType)).To(BeTrue())
	})

	It("aborts when the template cannot be loaded", func() {
		exporter.TemplatePath = "/missing.yaml"
		_, err := exporter.Export(ctx, tree.session)
		Expect(errors.IsKind(err, errors.TemplateLoadError)).To(BeTrue())
		_, sessions, _ := destTree()
		Expect(sessions).To(BeEmpty())
	})
})
