package models

import "time"

// Kind identifies which engine a job targets.
type Kind string

const (
	KindOCR       Kind = "ocr"
	KindFormParse Kind = "form_parse"
)

// Lane identifies which queue lane a job was submitted on.
type Lane string

const (
	LaneNormal   Lane = "normal"
	LanePriority Lane = "priority"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// BoundingBox mirrors the four-corner pixel box reported for a detected region.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// TextDetection is one recognized text region within an OCR job's source image.
type TextDetection struct {
	BBox   BoundingBox `json:"bbox"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
	Text   string      `json:"text"`
}

// OCRResult is the terminal result payload for a completed OCR job.
type OCRResult struct {
	Filename              string            `json:"filename"`
	Metadata              map[string]any    `json:"metadata"`
	TextDetectionDuration float64           `json:"text_detection_duration"`
	OverallProcessingTime float64           `json:"overall_processing_time"`
	Detections            []TextDetection   `json:"detections"`
	TotalDetections       int               `json:"total_detections"`
}

// FormParseResult is the terminal result payload for a completed form-parse job.
type FormParseResult struct {
	Filename      string         `json:"filename"`
	Metadata      map[string]any `json:"metadata"`
	ExecutionTime float64        `json:"execution_time"`
	Data          any            `json:"data"`
}

// JobRecord is the durable, store-resident representation of a job (§4.A).
// It is the unit persisted by the state store — JobDescriptor below is the
// lighter value actually moved through the in-process queue.
type JobRecord struct {
	ID          string    `json:"id"`
	Kind        Kind      `json:"kind"`
	Lane        Lane      `json:"lane"`
	Status      Status    `json:"status"`
	Progress    int       `json:"progress"`
	Filename    string    `json:"filename"`
	Prompt      string    `json:"prompt,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Message     string    `json:"message,omitempty"`
	Error       string    `json:"error,omitempty"`
	OCRResult   *OCRResult       `json:"ocr_result,omitempty"`
	FormResult  *FormParseResult `json:"form_result,omitempty"`
}

// JobDescriptor is the value enqueued and carried through the priority queue
// and worker pool — it holds only what a worker needs to run the job, not the
// durable record shape.
type JobDescriptor struct {
	ID       string
	Kind     Kind
	Lane     Lane
	Filename string
	Payload  []byte
	Prompt   string
}

// Event is broadcast over the optional WebSocket stream when a job's state
// changes (job_queued, job_started, job_completed, job_failed).
type Event struct {
	Type      string    `json:"type"`
	JobID     string    `json:"job_id"`
	Kind      Kind      `json:"kind"`
	Status    Status    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	QueueSize int       `json:"queue_size"`
}

// QueueStatus reports the introspection shape of §6's /{kind}/queue/status.
type QueueStatus struct {
	ActiveJobs        int `json:"active_jobs"`
	MaxWorkers        int `json:"max_workers"`
	QueueSize         int `json:"queue_size"`
	PriorityQueueSize int `json:"priority_queue_size"`
}

// GPUMemoryInfo reports the (possibly unavailable) memory stats of the GPU
// admission controller's backing device.
type GPUMemoryInfo struct {
	TotalGiB float64 `json:"total_gib"`
	UsedGiB  float64 `json:"used_gib"`
	FreeGiB  float64 `json:"free_gib"`
}

// GPUStatus is the response shape for GET /gpu/status.
type GPUStatus struct {
	MaxConcurrent int              `json:"max_concurrent"`
	CurrentUsers  []string         `json:"current_users"`
	Available     bool             `json:"available"`
	MemoryInfo    *GPUMemoryInfo   `json:"gpu_memory"`
}
