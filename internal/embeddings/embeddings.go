// Package embeddings turns per-class detection counts into fixed-size
// vectors, so analyses with a similar object mix can be found through
// vector search in the history store.
package embeddings

import "strings"

// vocabulary is the COCO class list shared by both detector families.
// The embedding dimension is fixed by its length.
var vocabulary = []string{
	"person", "bicycle", "car", "motorcycle", "airplane", "bus", "train",
	"truck", "boat", "traffic light", "fire hydrant", "stop sign",
	"parking meter", "bench", "bird", "cat", "dog", "horse", "sheep",
	"cow", "elephant", "bear", "zebra", "giraffe", "backpack", "umbrella",
	"handbag", "tie", "suitcase", "frisbee", "skis", "snowboard",
	"sports ball", "kite", "baseball bat", "baseball glove", "skateboard",
	"surfboard", "tennis racket", "bottle", "wine glass", "cup", "fork",
	"knife", "spoon", "bowl", "banana", "apple", "sandwich", "orange",
	"broccoli", "carrot", "hot dog", "pizza", "donut", "cake", "chair",
	"couch", "potted plant", "bed", "dining table", "toilet", "tv",
	"laptop", "mouse", "remote", "keyboard", "cell phone", "microwave",
	"oven", "toaster", "sink", "refrigerator", "book", "clock", "vase",
	"scissors", "teddy bear", "hair drier", "toothbrush",
}

var vocabularyIndex = func() map[string]int {
	idx := make(map[string]int, len(vocabulary))
	for i, name := range vocabulary {
		idx[name] = i
	}
	return idx
}()

// Dimension of the produced vectors.
func Dimension() int {
	return len(vocabulary)
}

// Embed maps class counts onto the vocabulary as an L1-normalized
// histogram. Classes outside the vocabulary are ignored; a zero-count
// input produces the zero vector.
func Embed(classCounts map[string]int) []float32 {
	vec := make([]float32, len(vocabulary))

	total := 0
	for class, n := range classCounts {
		if _, ok := vocabularyIndex[strings.ToLower(class)]; ok {
			total += n
		}
	}
	if total == 0 {
		return vec
	}

	for class, n := range classCounts {
		if i, ok := vocabularyIndex[strings.ToLower(class)]; ok {
			vec[i] = float32(n) / float32(total)
		}
	}
	return vec
}
