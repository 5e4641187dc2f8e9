// Package preview は短縮URLのリンク先タイトルを取得するバックグラウンドジョブを提供する。
package preview

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hitoshi/linknote/internal/model"
)

// defaultBatchSize は1サイクルで処理する短縮URLの最大件数。
const defaultBatchSize = 100

// TitleStore はタイトル未取得の短縮URLの取得と結果の保存を行う。
// repository.ShortURLRepositoryが実装する。
type TitleStore interface {
	ListPendingTitles(ctx context.Context, limit int) ([]*model.ShortURL, error)
	UpdateTitle(ctx context.Context, key string, title *string, fetchedAt time.Time) error
}

// TitleFetcherService はリンク先のタイトルを取得する。
type TitleFetcherService interface {
	FetchTitle(ctx context.Context, rawURL string) (*string, error)
}

// Recorder は取得結果を記録する。metrics.Collectorが実装する。
type Recorder interface {
	RecordTitleFetch(success bool, duration time.Duration)
}

// Worker はタイトル未取得の短縮URLを定期的に処理する。
// 取得に失敗した短縮URLもtitle_fetched_atを記録し、再試行しない。
type Worker struct {
	store          TitleStore
	fetcher        TitleFetcherService
	recorder       Recorder
	logger         *slog.Logger
	maxConcurrency int
	BatchSize      int
}

// NewWorker はWorkerを生成する。
// maxConcurrencyが0以下の場合は5を使用する。recorderはnilでもよい。
func NewWorker(store TitleStore, fetcher TitleFetcherService, recorder Recorder, logger *slog.Logger, maxConcurrency int) *Worker {
	if maxConcurrency <= 0 {
		maxConcurrency = 5
	}
	return &Worker{
		store:          store,
		fetcher:        fetcher,
		recorder:       recorder,
		logger:         logger,
		maxConcurrency: maxConcurrency,
		BatchSize:      defaultBatchSize,
	}
}

// Start はinterval間隔でRunOnceを実行する。ctxがキャンセルされるまで戻らない。
func (w *Worker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	w.logger.Info("タイトル取得ジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", w.maxConcurrency),
	)

	if err := w.RunOnce(ctx); err != nil {
		w.logger.Error("タイトル取得サイクルの実行に失敗しました", slog.String("error", err.Error()))
	}

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("タイトル取得ジョブを停止しました")
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("タイトル取得サイクルの実行に失敗しました", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce はタイトル未取得の短縮URLを取得し、並列でタイトルを取得する。
// semaphoreパターンで最大並列数を制御する。
func (w *Worker) RunOnce(ctx context.Context) error {
	start := time.Now()

	urls, err := w.store.ListPendingTitles(ctx, w.BatchSize)
	if err != nil {
		return err
	}
	if len(urls) == 0 {
		return nil
	}

	w.logger.Info("タイトル取得サイクルを開始します", slog.Int("url_count", len(urls)))

	sem := make(chan struct{}, w.maxConcurrency)
	var wg sync.WaitGroup

	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(u *model.ShortURL) {
			defer wg.Done()
			defer func() { <-sem }()
			w.process(ctx, u)
		}(u)
	}

	wg.Wait()

	w.logger.Info("タイトル取得サイクルが完了しました",
		slog.Int("url_count", len(urls)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

func (w *Worker) process(ctx context.Context, u *model.ShortURL) {
	start := time.Now()
	title, err := w.fetcher.FetchTitle(ctx, u.Destination)
	if w.recorder != nil {
		w.recorder.RecordTitleFetch(err == nil, time.Since(start))
	}
	if err != nil {
		w.logger.Warn("タイトルの取得に失敗しました",
			slog.String("alias", u.Key),
			slog.String("url", u.Destination),
			slog.String("error", err.Error()),
		)
		title = nil
	}
	// 停止中に取得を中断した場合は次回に持ち越す
	if ctx.Err() != nil {
		return
	}

	if err := w.store.UpdateTitle(ctx, u.Key, title, time.Now()); err != nil {
		w.logger.Error("タイトルの保存に失敗しました",
			slog.String("alias", u.Key),
			slog.String("error", err.Error()),
		)
	}
}
