package kafka_test

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	ekafka "github.com/redhatinsights/deid-export-go/kafka"
	"github.com/redhatinsights/deid-export-go/models"
)

var _ = Describe("StatusMessage", func() {
	runID := uuid.MustParse("8a8d2bd8-1bcb-4b62-9fce-1f3fd4e4f41a")
	now := time.Date(2022, 3, 4, 5, 6, 7, 0, time.UTC)
	status := models.ExportStatus{
		OriginFilename:   "scan.dcm",
		OriginParent:     "acq1",
		OriginParentType: "acquisition",
		ExportFilename:   "scan.dcm",
		ExportFileID:     "f1",
		ExportParent:     "acq2",
		State:            models.JobSuccess,
	}

	It("converts to a keyed kafka message", func() {
		msg, err := ekafka.NewStatusMessage(runID, status, now).ToMessage("platform.deid-export.status")
		Expect(err).To(BeNil())
		Expect(*msg.TopicPartition.Topic).To(Equal("platform.deid-export.status"))
		Expect(string(msg.Key)).To(Equal(runID.String()))
		Expect(msg.Headers).To(HaveLen(2))
		Expect(msg.Headers[0].Key).To(Equal("run_id"))
		Expect(string(msg.Headers[1].Value)).To(Equal("deid-export"))

		var decoded map[string]interface{}
		Expect(json.Unmarshal(msg.Value, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKeyWithValue("state", "success"))
		Expect(decoded).To(HaveKeyWithValue("export_file_id", "f1"))
		Expect(decoded).To(HaveKeyWithValue("timestamp", "2022-03-04T05:06:07Z"))
		Expect(decoded).NotTo(HaveKey("errors"))
	})
})
