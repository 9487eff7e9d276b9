package chunk

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// LoadSceneChanges reads a scene-change file: one frame index per line,
// ascending, optionally with blank lines and '#' comments. The list must be
// bounded by sourceLength - 1.
func LoadSceneChanges(path string, sourceLength int) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open scene change file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var scenes []int
	prev := -1
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		frame, err := strconv.Atoi(text)
		if err != nil {
			return nil, fmt.Errorf("scene change file line %d: %w", line, err)
		}
		if frame < 0 || frame >= sourceLength {
			return nil, fmt.Errorf("scene change file line %d: frame %d outside source (0-%d)", line, frame, sourceLength-1)
		}
		if frame <= prev {
			return nil, fmt.Errorf("scene change file line %d: frame %d not ascending", line, frame)
		}
		scenes = append(scenes, frame)
		prev = frame
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scene change file: %w", err)
	}
	return scenes, nil
}
