package platforms

import "github.com/CrossPost-MediaBridg/Publish-Service/internal/models"

// Requirement is the read-only reference data the validator checks files
// against. Zero values mean "no limit" for that dimension.
type Requirement struct {
	Platform           string
	MaxSizeBytes       map[models.FileRole]int64
	SupportedMimeTypes []string
	MaxDurationSeconds int
	// AllowedAspectRatios lists accepted width/height ratios; empty means
	// any ratio is fine. Matching uses a small tolerance.
	AllowedAspectRatios []float64
}

const (
	mb = int64(1) << 20
	gb = int64(1) << 30
)

// DefaultRequirements is the shipped platform table. Order matters: the
// validator reports detected platforms in table order.
var DefaultRequirements = []Requirement{
	{
		Platform: "youtube",
		MaxSizeBytes: map[models.FileRole]int64{
			models.RoleVideo:     128 * gb,
			models.RoleThumbnail: 2 * mb,
			models.RoleImage:     2 * mb,
		},
		SupportedMimeTypes: []string{
			"video/mp4", "video/quicktime", "video/x-msvideo", "video/webm",
			"image/jpeg", "image/png",
		},
		MaxDurationSeconds: 12 * 60 * 60,
	},
	{
		Platform: "pinterest",
		MaxSizeBytes: map[models.FileRole]int64{
			models.RoleVideo:     2 * gb,
			models.RoleThumbnail: 20 * mb,
			models.RoleImage:     20 * mb,
		},
		SupportedMimeTypes: []string{
			"video/mp4", "video/quicktime",
			"image/jpeg", "image/png", "image/gif",
		},
		MaxDurationSeconds: 15 * 60,
	},
	{
		Platform: "twitter",
		MaxSizeBytes: map[models.FileRole]int64{
			models.RoleVideo:     512 * mb,
			models.RoleThumbnail: 5 * mb,
			models.RoleImage:     5 * mb,
		},
		SupportedMimeTypes: []string{
			"video/mp4",
			"image/jpeg", "image/png", "image/gif", "image/webp",
		},
		MaxDurationSeconds: 140,
	},
	{
		Platform: "instagram",
		MaxSizeBytes: map[models.FileRole]int64{
			models.RoleVideo:     100 * mb,
			models.RoleThumbnail: 8 * mb,
			models.RoleImage:     8 * mb,
		},
		SupportedMimeTypes: []string{
			"video/mp4", "video/quicktime",
			"image/jpeg", "image/png",
		},
		MaxDurationSeconds: 15 * 60,
		AllowedAspectRatios: []float64{
			1.0, 0.8, 1.91, // square, portrait 4:5, landscape 1.91:1
		},
	},
}
