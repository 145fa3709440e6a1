package service

import (
	"context"
	"errors"
	"fmt"

	"slidedrop/internal/repository"
	"slidedrop/internal/retry"
	"slidedrop/internal/storage"
	"slidedrop/internal/upload"

	"go.uber.org/zap"
)

const reconcilePageSize = 200

// errUnmappedReference 表示 deck 引用了无法还原为对象 key 的 URL，此时无法判断哪些对象仍在使用。
var errUnmappedReference = errors.New("reference outside storage public url")

// ReconcileReport 汇总一次孤儿对象清理。
type ReconcileReport struct {
	Owners  int `json:"owners"`
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

func (r *ReconcileReport) add(other ReconcileReport) {
	r.Owners += other.Owners
	r.Scanned += other.Scanned
	r.Deleted += other.Deleted
	r.Failed += other.Failed
}

// Reconcile 删除 owner 命名空间下没有任何 deck 引用、且早于宽限期的对象。
func (s *DeckService) Reconcile(ctx context.Context, ownerID string) (*ReconcileReport, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("%w: missing owner", ErrForbidden)
	}

	referenced, err := s.referencedKeys(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-s.opts.ReconcileGrace)
	report := &ReconcileReport{Owners: 1}

	for _, prefix := range []string{upload.SourcePrefix(ownerID), upload.ImagesPrefix(ownerID)} {
		objects, err := retry.Do(ctx, s.retryPolicy("list objects"), func(ctx context.Context) ([]storage.ObjectInfo, error) {
			return s.store.List(ctx, prefix)
		})
		if err != nil {
			return report, fmt.Errorf("list %s: %w", prefix, err)
		}

		for _, obj := range objects {
			report.Scanned++
			if referenced[obj.Key] || obj.LastModified.After(cutoff) {
				continue
			}
			err := retry.Run(ctx, s.retryPolicy("delete orphan"), func(ctx context.Context) error {
				return s.store.Delete(ctx, obj.Key)
			})
			if err != nil {
				report.Failed++
				s.log.Warn("orphan delete failed", zap.String("key", obj.Key), zap.Error(err))
				continue
			}
			report.Deleted++
			orphansDeleted.Inc()
		}
	}

	s.log.Info("reconcile finished",
		zap.String("ownerId", ownerID),
		zap.Int("scanned", report.Scanned),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", report.Failed))
	return report, nil
}

// ReconcileAll 依次处理所有拥有 deck 的 owner，单个 owner 失败不影响其他 owner。
func (s *DeckService) ReconcileAll(ctx context.Context) (*ReconcileReport, error) {
	owners, err := retry.Do(ctx, s.retryPolicy("list owners"), func(ctx context.Context) ([]string, error) {
		return s.decks.ListOwnerIDs(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("list owners: %w", err)
	}

	total := &ReconcileReport{}
	for _, owner := range owners {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		report, err := s.Reconcile(ctx, owner)
		if report != nil {
			total.add(*report)
		}
		if err != nil {
			s.log.Error("reconcile owner failed", zap.String("ownerId", owner), zap.Error(err))
		}
	}
	return total, nil
}

// referencedKeys 收集 owner 全部 deck 引用的源文件与页面对象。
func (s *DeckService) referencedKeys(ctx context.Context, ownerID string) (map[string]bool, error) {
	keys := make(map[string]bool)
	for offset := 0; ; offset += reconcilePageSize {
		params := repository.ListDecksParams{Limit: reconcilePageSize, Offset: offset}
		decks, err := retry.Do(ctx, s.retryPolicy("list decks"), func(ctx context.Context) ([]repository.DeckRecord, error) {
			return s.decks.ListByOwner(ctx, ownerID, params)
		})
		if err != nil {
			return nil, fmt.Errorf("list decks: %w", err)
		}

		for _, d := range decks {
			if d.FilePath != "" {
				keys[d.FilePath] = true
			}
			if d.FileURL != "" {
				key, ok := s.store.KeyForURL(d.FileURL)
				switch {
				case ok:
					keys[key] = true
				case d.FilePath == "":
					return nil, fmt.Errorf("%w: deck %s source %s", errUnmappedReference, d.ID, d.FileURL)
				}
			}
			for _, p := range d.Pages {
				key, ok := s.store.KeyForURL(p.ImageURL)
				if !ok {
					return nil, fmt.Errorf("%w: deck %s page %d %s", errUnmappedReference, d.ID, p.PageNumber, p.ImageURL)
				}
				keys[key] = true
			}
		}
		if len(decks) < reconcilePageSize {
			return keys, nil
		}
	}
}
