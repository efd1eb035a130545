package export

import (
	"context"
	"fmt"

	"github.com/keagan/highlightreel/internal/ffmpeg"
)

// Concater joins clips into one file
type Concater interface {
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
}

// WriteReel concatenates the successful clips, in segment order, into output
func WriteReel(ctx context.Context, concater Concater, outcomes []Outcome, output string, reEncode bool) error {
	var inputs []string
	for _, o := range outcomes {
		if o.OK() && o.Path != "" {
			inputs = append(inputs, o.Path)
		}
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no exported clips to join")
	}
	return concater.Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:   inputs,
		Output:   output,
		ReEncode: reEncode,
	})
}
