package export

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/grafov/m3u8"
	"github.com/keagan/highlightreel/pkg/util"
)

// WritePlaylist writes a closed VOD playlist listing the successful clips in
// segment order. URIs are relative to the playlist location.
func WritePlaylist(path string, outcomes []Outcome) error {
	var ok []Outcome
	for _, o := range outcomes {
		if o.OK() && o.Path != "" {
			ok = append(ok, o)
		}
	}
	if len(ok) == 0 {
		return fmt.Errorf("no exported clips to list")
	}

	playlist, err := m3u8.NewMediaPlaylist(0, uint(len(ok)))
	if err != nil {
		return fmt.Errorf("failed to create playlist: %w", err)
	}
	playlist.MediaType = m3u8.VOD

	dir := filepath.Dir(path)
	for i, o := range ok {
		uri, err := filepath.Rel(dir, o.Path)
		if err != nil {
			uri = o.Path
		}
		title := fmt.Sprintf("highlight %d score=%.3f", o.Index+1, o.Segment.Score)
		if err := playlist.Append(filepath.ToSlash(uri), o.Segment.Duration(), title); err != nil {
			return fmt.Errorf("failed to add clip %d: %w", o.Index, err)
		}
		// every clip restarts its timestamps
		if i > 0 {
			if err := playlist.SetDiscontinuity(); err != nil {
				return err
			}
		}
	}
	playlist.Close()

	if err := util.EnsureDir(dir); err != nil {
		return err
	}
	return os.WriteFile(path, playlist.Encode().Bytes(), 0644)
}
