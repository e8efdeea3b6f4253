package platforms

import (
	"fmt"
	"math"

	"github.com/CrossPost-MediaBridg/Publish-Service/internal/models"
)

// FileMeta is the validator's view of a staged file. Duration and dimensions
// are zero when unknown (e.g. not probed); unknown values are not checked.
type FileMeta struct {
	Role            models.FileRole
	MimeType        string
	Size            int64
	DurationSeconds int
	Width           int
	Height          int
}

// Result is the per-platform outcome: empty Reason means the file passes.
type Result struct {
	Platform string `json:"platform"`
	Reason   string `json:"reason,omitempty"`
}

func (r Result) Pass() bool { return r.Reason == "" }

const aspectTolerance = 0.05

// Validate checks the file against every requirement. Pure and
// deterministic: no network, no side effects, same table in, same answer out.
func Validate(meta FileMeta, reqs []Requirement) []Result {
	results := make([]Result, 0, len(reqs))
	for _, req := range reqs {
		results = append(results, Result{
			Platform: req.Platform,
			Reason:   checkOne(meta, req),
		})
	}
	return results
}

// DetectedPlatforms returns the platforms the file passes for, preserving
// the requirement table order.
func DetectedPlatforms(meta FileMeta, reqs []Requirement) []string {
	var out []string
	for _, res := range Validate(meta, reqs) {
		if res.Pass() {
			out = append(out, res.Platform)
		}
	}
	return out
}

// ExceedsAllSizeLimits reports whether the file is too large for every
// platform that has a size ceiling for its role. This is the only hard
// rejection at staging time; ordinary incompatibility is advisory.
func ExceedsAllSizeLimits(meta FileMeta, reqs []Requirement) bool {
	sawLimit := false
	for _, req := range reqs {
		limit, ok := req.MaxSizeBytes[meta.Role]
		if !ok || limit <= 0 {
			continue
		}
		sawLimit = true
		if meta.Size <= limit {
			return false
		}
	}
	return sawLimit
}

func checkOne(meta FileMeta, req Requirement) string {
	if !mimeSupported(meta.MimeType, req.SupportedMimeTypes) {
		return fmt.Sprintf("mime type %s not supported", meta.MimeType)
	}

	if limit, ok := req.MaxSizeBytes[meta.Role]; ok && limit > 0 && meta.Size > limit {
		return fmt.Sprintf("size %d exceeds limit %d", meta.Size, limit)
	}

	if meta.Role == models.RoleVideo && req.MaxDurationSeconds > 0 &&
		meta.DurationSeconds > req.MaxDurationSeconds {
		return fmt.Sprintf("duration %ds exceeds limit %ds",
			meta.DurationSeconds, req.MaxDurationSeconds)
	}

	if len(req.AllowedAspectRatios) > 0 && meta.Width > 0 && meta.Height > 0 {
		ratio := float64(meta.Width) / float64(meta.Height)
		if !aspectAllowed(ratio, req.AllowedAspectRatios) {
			return fmt.Sprintf("aspect ratio %.2f not allowed", ratio)
		}
	}

	return ""
}

func mimeSupported(mimeType string, supported []string) bool {
	if len(supported) == 0 {
		return true
	}
	for _, mt := range supported {
		if mt == mimeType {
			return true
		}
	}
	return false
}

func aspectAllowed(ratio float64, allowed []float64) bool {
	for _, a := range allowed {
		if math.Abs(ratio-a) <= aspectTolerance {
			return true
		}
	}
	return false
}
