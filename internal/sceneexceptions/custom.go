package sceneexceptions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// customFile is the on-disk layout of user exceptions:
//
//	shows:
//	  - id: 100
//	    names:
//	      - name: Foo Bar
//	      - name: Foo Season Two
//	        season: 2
type customFile struct {
	Shows []struct {
		ID    int64 `yaml:"id"`
		Names []struct {
			Name   string `yaml:"name"`
			Season *int   `yaml:"season"`
		} `yaml:"names"`
	} `yaml:"shows"`
}

// LoadCustomFile stores every exception listed in a YAML file as custom.
// A missing file is not an error. It returns the number of exceptions stored.
func (s *Service) LoadCustomFile(ctx context.Context, path string) (int, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read custom exceptions: %w", err)
	}

	var f customFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return 0, fmt.Errorf("failed to parse custom exceptions %s: %w", path, err)
	}

	count := 0
	for _, show := range f.Shows {
		if show.ID <= 0 {
			s.logger.Warn().Int64("showId", show.ID).Msg("Skipping custom exceptions with invalid show id")
			continue
		}
		for _, n := range show.Names {
			name := strings.TrimSpace(n.Name)
			if name == "" {
				continue
			}
			season := -1
			if n.Season != nil {
				season = *n.Season
			}
			if err := s.AddCustom(ctx, show.ID, name, season); err != nil {
				return count, err
			}
			count++
		}
	}

	s.logger.Info().Int("count", count).Str("path", path).Msg("Loaded custom scene exceptions")
	return count, nil
}
