package model

import "github.com/google/uuid"

// Column names of the input and output tables.
const (
	ColumnSerialNumber = "S. No."
	ColumnProductName  = "Product Name"
	ColumnInputURLs    = "Input Image Urls"
	ColumnOutputURLs   = "Output Image Urls"
)

// Row is a validated input row with its URL list split and trimmed.
type Row struct {
	SerialNumber string   `json:"serial_number"`
	Name         string   `json:"name"`
	InputURLs    []string `json:"input_urls"`
}

// ResultRow is one line of the output report.
type ResultRow struct {
	SerialNumber string
	Name         string
	InputURLs    []string
	OutputURLs   []string
}

// Task is the message handed from ingestion to background processing.
type Task struct {
	RequestID uuid.UUID `json:"request_id"`
	Rows      []Row     `json:"rows"`
}
