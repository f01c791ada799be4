package pipeline

import "fmt"

// Stage is a point in a study's lifecycle:
//
//	Ready → Uploading → Uploaded → WaitingToPoll → Polling → Predicted → Downloading → Done
//
// Failed is terminal and may follow any stage before Done.
type Stage int

const (
	StageReady Stage = iota
	StageUploading
	StageUploaded
	StageWaitingToPoll
	StagePolling
	StagePredicted
	StageDownloading
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageReady:         "ready",
	StageUploading:     "uploading",
	StageUploaded:      "uploaded",
	StageWaitingToPoll: "waiting_to_poll",
	StagePolling:       "polling",
	StagePredicted:     "predicted",
	StageDownloading:   "downloading",
	StageDone:          "done",
	StageFailed:        "failed",
}

func (s Stage) String() string {
	if s >= 0 && int(s) < len(stageNames) {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}
