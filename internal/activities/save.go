package activities

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SaveArticleInput persists the finished article to disk.
type SaveArticleInput struct {
	Topic   string `json:"topic"`
	Article string `json:"article"`
}

type SaveArticleResult struct {
	Path string `json:"path"`
}

// SaveArticle writes the article as a timestamp-named UTF-8 markdown file in
// the configured output directory. The filename carries only the timestamp so
// arbitrary topics never produce unsafe paths.
func (a *Activities) SaveArticle(ctx context.Context, in SaveArticleInput) (SaveArticleResult, error) {
	dir := a.cfg.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SaveArticleResult{}, fmt.Errorf("create output dir: %w", err)
	}

	name := fmt.Sprintf("storm_article_%s.md", time.Now().Format("20060102_150405"))
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(in.Article), 0o644); err != nil {
		return SaveArticleResult{}, fmt.Errorf("write article: %w", err)
	}

	a.logger.Info("article saved",
		zap.String("topic", in.Topic),
		zap.String("path", path),
		zap.Int("words", len(strings.Fields(in.Article))))
	return SaveArticleResult{Path: path}, nil
}
