package scanner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"anythingllm-sync/internal/api"
	"anythingllm-sync/pkg/models"
)

// Scanner discovers the local files that should exist in the
// workspace this run.
type Scanner struct {
	roots        []string
	dirExcludes  []string
	fileExcludes []string
	logger       *zap.SugaredLogger
}

// New creates a scanner over the given roots. Directory excludes are
// substring matches against the full path; file excludes are
// substring matches against the bare file name.
func New(roots, dirExcludes, fileExcludes []string, logger *zap.SugaredLogger) *Scanner {
	return &Scanner{
		roots:        roots,
		dirExcludes:  dirExcludes,
		fileExcludes: fileExcludes,
		logger:       logger,
	}
}

// Scan walks every root and returns the desired set: regular files of
// a supported type that no exclude rule matches. Paths are absolute.
// The include/skip trace is diagnostics only.
func (s *Scanner) Scan() ([]models.DesiredFile, error) {
	var files []models.DesiredFile
	skipped := 0

	for _, root := range s.roots {
		abs, err := filepath.Abs(root)
		if err != nil {
			return nil, fmt.Errorf("cannot resolve root %s: %w", root, err)
		}

		err = filepath.Walk(abs, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				if s.pathExcluded(path) {
					s.logger.Debugw("skipped (directory exclude)", "path", path)
					return filepath.SkipDir
				}
				return nil
			}
			if !info.Mode().IsRegular() {
				return nil
			}
			switch {
			case s.pathExcluded(path):
				s.logger.Debugw("skipped (directory exclude)", "path", path)
				skipped++
			case s.nameExcluded(info.Name()):
				s.logger.Debugw("skipped (file exclude)", "path", path)
				skipped++
			case !api.SupportedFileType(path):
				s.logger.Debugw("skipped (unsupported type)", "path", path)
				skipped++
			default:
				s.logger.Debugw("included", "path", path)
				files = append(files, models.DesiredFile{
					Path:    path,
					ModTime: info.ModTime(),
					Size:    info.Size(),
				})
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", abs, err)
		}
	}

	s.logger.Infow("local scan finished", "included", len(files), "skipped", skipped)
	return files, nil
}

func (s *Scanner) pathExcluded(path string) bool {
	for _, excl := range s.dirExcludes {
		if excl != "" && strings.Contains(path, excl) {
			return true
		}
	}
	return false
}

func (s *Scanner) nameExcluded(name string) bool {
	for _, excl := range s.fileExcludes {
		if excl != "" && strings.Contains(name, excl) {
			return true
		}
	}
	return false
}
