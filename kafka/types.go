/*
Copyright 2022 Red Hat Inc.
SPDX-License-Identifier: Apache-2.0
*/
package kafka

import (
	"encoding/json"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"github.com/google/uuid"

	"github.com/redhatinsights/deid-export-go/models"
)

const source = "deid-export"

type KafkaHeader struct {
	RunID  string `json:"run_id"`
	Source string `json:"source"`
}

// ToHeader converts the KafkaHeader into a confluent kafka
// header
func (kh KafkaHeader) ToHeader() []kafka.Header {
	result := []kafka.Header{}
	result = append(result, kafka.Header{
		Key:   "run_id",
		Value: []byte(kh.RunID),
	})
	result = append(result, kafka.Header{
		Key:   "source",
		Value: []byte(kh.Source),
	})
	return result
}

// StatusMessage announces the final state of one file export.
type StatusMessage struct {
	RunID            uuid.UUID       `json:"run_id"`
	OriginFilename   string          `json:"origin_filename"`
	OriginParent     string          `json:"origin_parent"`
	OriginParentType string          `json:"origin_parent_type"`
	ExportFilename   string          `json:"export_filename"`
	ExportFileID     string          `json:"export_file_id"`
	ExportParent     string          `json:"export_parent"`
	State            models.JobState `json:"state"`
	Errors           string          `json:"errors,omitempty"`
	Timestamp        time.Time       `json:"timestamp"`
}

func NewStatusMessage(runID uuid.UUID, status models.ExportStatus, now time.Time) StatusMessage {
	return StatusMessage{
		RunID:            runID,
		OriginFilename:   status.OriginFilename,
		OriginParent:     status.OriginParent,
		OriginParentType: status.OriginParentType,
		ExportFilename:   status.ExportFilename,
		ExportFileID:     status.ExportFileID,
		ExportParent:     status.ExportParent,
		State:            status.State,
		Errors:           status.Errors,
		Timestamp:        now.UTC(),
	}
}

// ToMessage converts the StatusMessage struct to a confluent kafka.Message
// ready to be sent through the kafka producer. Messages of a run share a key
// so they stay ordered on one partition.
func (sm StatusMessage) ToMessage(topic string) (*kafka.Message, error) {
	val, err := json.Marshal(sm)
	if err != nil {
		return nil, err
	}
	header := KafkaHeader{RunID: sm.RunID.String(), Source: source}
	return &kafka.Message{
		Headers: header.ToHeader(),
		Key:     []byte(sm.RunID.String()),
		TopicPartition: kafka.TopicPartition{
			Topic:     &topic,
			Partition: kafka.PartitionAny,
		},
		Value: val,
	}, nil
}
