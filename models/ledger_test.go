//go:build sql
// +build sql

package models_test

import (
	"context"
	"fmt"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	m "github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/utils"
)

var (
	testDB     *embeddedpostgres.EmbeddedPostgres
	testGormDB *gorm.DB
	exportDB   *m.ExportDB
)

var _ = BeforeSuite(func() {
	var err error
	testDB, testGormDB, err = utils.CreateTestDB()
	Expect(err).To(BeNil())
	exportDB = &m.ExportDB{DB: testGormDB}
})

var _ = AfterSuite(func() {
	err := testDB.Stop()
	Expect(err).To(BeNil())
	fmt.Println("TEST DB STOPPED")
})

func setupTest(testGormDB *gorm.DB) {
	fmt.Println("...CLEANING DB...")
	testGormDB.Exec("DELETE FROM file_statuses")
	testGormDB.Exec("DELETE FROM export_runs")
}

var _ = Describe("Ledger", func() {
	var run *m.ExportRun

	BeforeEach(func() {
		setupTest(testGormDB)
		run = &m.ExportRun{
			OriginContainer:    "origin-session",
			OriginType:         m.Session,
			DestinationProject: "dest-project",
			Template:           "basic.yaml",
		}
		Expect(run.SetExportConfig(&m.ExportConfig{FileTypes: []string{"dicom"}})).To(Succeed())
	})

	It("creates a running export run", func() {
		created, err := exportDB.CreateRun(run)
		Expect(err).To(BeNil())
		Expect(created.ID).NotTo(Equal(uuid.Nil))
		Expect(created.Status).To(Equal(m.Running))

		fetched, err := exportDB.GetRun(created.ID)
		Expect(err).To(BeNil())
		cfg, err := fetched.GetExportConfig()
		Expect(err).To(BeNil())
		Expect(cfg.FileTypes).To(Equal([]string{"dicom"}))
	})

	It("records statuses and finishes the run", func() {
		created, err := exportDB.CreateRun(run)
		Expect(err).To(BeNil())

		statuses := []m.ExportStatus{
			{OriginFilename: "a.dcm", OriginParent: "s1", OriginParentType: "session", State: m.JobSuccess},
			{OriginFilename: "b.dcm", OriginParent: "s1", OriginParentType: "session", State: m.JobError, Errors: "boom"},
		}
		Expect(exportDB.RecordStatuses(context.Background(), created.ID, statuses)).To(Succeed())
		Expect(exportDB.FinishRun(created.ID, 1)).To(Succeed())

		rows, err := exportDB.ListStatuses(created.ID)
		Expect(err).To(BeNil())
		Expect(rows).To(HaveLen(2))
		Expect(rows[1].Errors).To(Equal("boom"))

		fetched, err := exportDB.GetRun(created.ID)
		Expect(err).To(BeNil())
		Expect(fetched.Status).To(Equal(m.Partial))
		Expect(fetched.ErrorCount).To(Equal(1))
		Expect(fetched.CompletedAt).NotTo(BeNil())
	})

	It("returns not found for unknown runs", func() {
		_, err := exportDB.GetRun(uuid.New())
		Expect(err).To(Equal(m.ErrRecordNotFound))
		Expect(exportDB.FinishRun(uuid.New(), 0)).To(Equal(m.ErrRecordNotFound))
	})
})
