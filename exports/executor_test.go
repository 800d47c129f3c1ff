package exports_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/redhatinsights/deid-export-go/exports"
	"github.com/redhatinsights/deid-export-go/models"
	"github.com/redhatinsights/deid-export-go/store"
)

// scriptedExporter fails the first failures transfers of its file.
type scriptedExporter struct {
	job      models.FileExportJob
	state    models.JobState
	errors   []string
	failures int
	panics   bool
	attempts *int
}

func (s *scriptedExporter) State() models.JobState { return s.state }

func (s *scriptedExporter) LocalDeidExport(ctx context.Context, templatePath string) error {
	*s.attempts++
	if s.panics {
		panic("corrupt file")
	}
	if *s.attempts <= s.failures {
		return fmt.Errorf("upload of %s timed out", s.job.OriginFilename)
	}
	return nil
}

func (s *scriptedExporter) Fail(msg string) {
	s.state = models.JobError
	s.errors = append(s.errors, msg)
}

func (s *scriptedExporter) Status(ctx context.Context) models.ExportStatus {
	if s.state != models.JobError {
		s.state = models.JobSuccess
	}
	job := s.job
	job.State = s.state
	job.Errors = s.errors
	return job.Status()
}

var _ = Describe("Executor", func() {
	var (
		ctx      = context.Background()
		mu       sync.Mutex
		attempts map[string]*int
		failures map[string]int
		panics   map[string]bool
		clients  int
		executor *exports.Executor
	)

	BeforeEach(func() {
		attempts = map[string]*int{}
		failures = map[string]int{}
		panics = map[string]bool{}
		clients = 0
		mem, err := store.NewMemoryStore()
		Expect(err).To(BeNil())
		executor = &exports.Executor{
			Credential: "local:key",
			Clients: func(credential string) (store.Client, error) {
				mu.Lock()
				defer mu.Unlock()
				clients++
				return mem, nil
			},
			Exporters: func(ctx context.Context, client store.Client, job models.FileExportJob) exports.FileExporter {
				mu.Lock()
				defer mu.Unlock()
				n := 0
				attempts[job.OriginFilename] = &n
				return &scriptedExporter{
					job:      job,
					state:    job.State,
					errors:   job.Errors,
					failures: failures[job.OriginFilename],
					panics:   panics[job.OriginFilename],
					attempts: &n,
				}
			},
			Workers: 3,
			Retry:   fastRetry(),
			Log:     testLog,
		}
	})

	jobs := func(names ...string) []models.FileExportJob {
		var out []models.FileExportJob
		for _, name := range names {
			out = append(out, models.FileExportJob{OriginFilename: name, ExportFilename: name, State: models.JobPending})
		}
		return out
	}

	It("isolates a failing transfer", func() {
		failures["b.dcm"] = 10
		statuses := executor.Run(ctx, jobs("a.dcm", "b.dcm", "c.dcm", "d.dcm"), "/t.yaml")
		Expect(statuses).To(HaveLen(4))
		report := exports.NewReport(statuses...)
		Expect(report.ErrorCount()).To(Equal(1))
		Expect(statuses[1].State).To(Equal(models.JobError))
		Expect(statuses[1].Errors).To(ContainSubstring("timed out"))
		for _, i := range []int{0, 2, 3} {
			Expect(statuses[i].State).To(Equal(models.JobSuccess))
		}
		Expect(*attempts["b.dcm"]).To(Equal(3))
		Expect(clients).To(Equal(4))
	})

	It("retries only until the transfer succeeds", func() {
		failures["a.dcm"] = 2
		statuses := executor.Run(ctx, jobs("a.dcm"), "/t.yaml")
		Expect(statuses[0].State).To(Equal(models.JobSuccess))
		Expect(*attempts["a.dcm"]).To(Equal(3))
	})

	It("returns statuses in submission order", func() {
		names := []string{}
		for i := 0; i < 20; i++ {
			names = append(names, fmt.Sprintf("%02d.dcm", i))
		}
		statuses := executor.Run(ctx, jobs(names...), "/t.yaml")
		for i, status := range statuses {
			Expect(status.OriginFilename).To(Equal(names[i]))
		}
	})

	It("captures a panicking worker in its own row", func() {
		panics["bad.dcm"] = true
		statuses := executor.Run(ctx, jobs("ok.dcm", "bad.dcm"), "/t.yaml")
		Expect(statuses[0].State).To(Equal(models.JobSuccess))
		Expect(statuses[1].State).To(Equal(models.JobError))
		Expect(statuses[1].Errors).To(ContainSubstring("corrupt file"))
	})

	It("passes jobs already in error straight through", func() {
		failed := jobs("x.dcm")[0].Failed("no template")
		statuses := executor.Run(ctx, []models.FileExportJob{failed}, "/t.yaml")
		Expect(statuses[0].State).To(Equal(models.JobError))
		Expect(statuses[0].Errors).To(Equal("no template"))
		Expect(clients).To(Equal(0))
	})

	It("records a client that cannot be built", func() {
		executor.Clients = func(string) (store.Client, error) {
			return nil, fmt.Errorf("bad credential")
		}
		statuses := executor.Run(ctx, jobs("a.dcm"), "/t.yaml")
		Expect(statuses[0].State).To(Equal(models.JobError))
		Expect(statuses[0].Errors).To(ContainSubstring("bad credential"))
	})

	It("waits the settle delay before reading back", func() {
		executor.SettleDelay = 20 * time.Millisecond
		start := time.Now()
		executor.Run(ctx, jobs("a.dcm"), "/t.yaml")
		Expect(time.Since(start)).To(BeNumerically(">=", 20*time.Millisecond))
	})
})
