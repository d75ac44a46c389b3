// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// DocumentTask represents the data structure for a document processing job.
type DocumentTask struct {
	FileMD5  string `json:"file_md5"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}
