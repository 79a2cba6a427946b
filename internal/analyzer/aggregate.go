package analyzer

import "github.com/framelens/framelens/internal/models"

// Aggregate merges per-frame class counts into a single summary. The
// count for any class equals the sum of that class's count across all
// frame results; video URL and target item are echoed unchanged.
func Aggregate(results []models.FrameResult, videoURL, targetItem string) *models.Summary {
	counts := make(map[string]int)
	for _, r := range results {
		for class, n := range r.Outcome.ClassCounts {
			counts[class] += n
		}
	}

	return &models.Summary{
		VideoURL:    videoURL,
		TargetItem:  targetItem,
		ClassCounts: counts,
	}
}
