package model

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle status of an uploaded batch.
type RequestStatus string

const (
	RequestPending    RequestStatus = "pending"
	RequestProcessing RequestStatus = "processing"
	RequestCompleted  RequestStatus = "completed"
	RequestFailed     RequestStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s RequestStatus) IsTerminal() bool {
	return s == RequestCompleted || s == RequestFailed
}

// Sources returns the statuses a request may move to s from.
//
// pending -> processing -> completed, and pending|processing -> failed.
// Nothing moves back to pending and nothing leaves a terminal status.
func (s RequestStatus) Sources() []RequestStatus {
	switch s {
	case RequestProcessing:
		return []RequestStatus{RequestPending}
	case RequestCompleted:
		return []RequestStatus{RequestProcessing}
	case RequestFailed:
		return []RequestStatus{RequestPending, RequestProcessing}
	default:
		return nil
	}
}

// CanTransition reports whether a request in status from may move to to.
func (s RequestStatus) CanTransition(to RequestStatus) bool {
	for _, src := range to.Sources() {
		if src == s {
			return true
		}
	}
	return false
}

// ImageStatus is the status of a single input URL.
type ImageStatus string

const (
	ImagePending   ImageStatus = "pending"
	ImageCompleted ImageStatus = "completed"
	ImageFailed    ImageStatus = "failed"
)

// Request is one uploaded table processed as a unit.
type Request struct {
	ID        uuid.UUID     `json:"id"`
	Status    RequestStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// Product is one row of the uploaded table.
type Product struct {
	ID           uuid.UUID `json:"id"`
	RequestID    uuid.UUID `json:"request_id"`
	SerialNumber string    `json:"serial_number"`
	Name         string    `json:"name"`
	InputURLs    []string  `json:"input_urls"`
}

// Image tracks the compression of one input URL of a product.
type Image struct {
	ID        uuid.UUID   `json:"id"`
	ProductID uuid.UUID   `json:"product_id"`
	RequestID uuid.UUID   `json:"request_id"`
	InputURL  string      `json:"input_url"`
	OutputURL string      `json:"output_url,omitempty"`
	Status    ImageStatus `json:"status"` // pending / completed / failed
}

// StatusView is the read-only answer to a status lookup.
type StatusView struct {
	RequestID uuid.UUID     `json:"requestId"`
	Status    RequestStatus `json:"status"`
}
