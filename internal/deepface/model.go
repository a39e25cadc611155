package deepface

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/dj-oyu/attention-monitor/vision-server/internal/emotion"
	"github.com/dj-oyu/attention-monitor/vision-server/pkg/types"
)

// Model implements emotion.Model using the DeepFace API
type Model struct {
	client *Client
}

// NewModel creates a new DeepFace-backed emotion model
func NewModel(config Config) *Model {
	return &Model{client: NewClient(config)}
}

// Infer returns the dominant emotion of the first face in frame.
func (m *Model) Infer(ctx context.Context, frame types.Frame) emotion.Result {
	if frame.Empty() {
		return emotion.Failure(fmt.Errorf("infer: empty frame #%d", frame.Seq))
	}

	uri := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(frame.Data)

	resp, err := m.client.AnalyzeEmotion(ctx, uri)
	if err != nil {
		return emotion.Failure(fmt.Errorf("infer: %w", err))
	}
	if len(resp.Results) == 0 {
		return emotion.Failure(ErrNoFaceInResponse)
	}

	first := resp.Results[0]
	label := first.DominantEmotion
	if label == "" {
		label = dominant(first.Emotion)
	}
	if label == "" {
		return emotion.Failure(ErrNoFaceInResponse)
	}

	return emotion.Success(label, first.Emotion)
}

// dominant picks the highest score; ties go to the alphabetically first label.
func dominant(scores map[string]float64) string {
	best, bestScore := "", -1.0
	for label, score := range scores {
		if score > bestScore || (score == bestScore && label < best) {
			best, bestScore = label, score
		}
	}
	return best
}
