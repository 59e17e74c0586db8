package recovery

import (
	"fmt"

	"github.com/sushant-115/gojodb/core/dblwr"
	flushmanager "github.com/sushant-115/gojodb/core/write_engine/flush_manager"
	"go.uber.org/zap"
)

// Repair walks the staged pages in loader order and rewrites any target
// that is torn or zero-filled from its staged twin. Both target and staged
// copy corrupt is unrecoverable: Repair logs guidance to restart under
// force_recovery, the same escape hatch the original documents for this
// exact case, and returns a flushmanager.FatalErr for the caller to
// terminate on.
func Repair(staged []PageFrame, io dblwr.FileIO, tablespaces dblwr.Tablespaces, oracle dblwr.PageOracle, metrics *dblwr.Metrics, log *zap.Logger) error {
	log = log.Named("dblwr.recovery")
	recovered := 0

	for _, p := range staged {
		if !tablespaces.Exists(p.Space) {
			log.Debug("doublewrite: staged page belongs to unmounted tablespace, skipping", zap.Uint32("space", uint32(p.Space)))
			continue
		}
		if !tablespaces.InBounds(p.Space, p.Page) {
			log.Warn("doublewrite: staged page lies outside tablespace bounds, skipping",
				zap.Uint32("space", uint32(p.Space)), zap.Uint32("page", uint32(p.Page)),
				zap.Error(flushmanager.ErrRecoveryOutOfBounds))
			continue
		}

		zipSize := tablespaces.ZipSize(p.Space)
		pageSize := len(p.Data)
		if zipSize > 0 {
			pageSize = zipSize
		}
		// Staged slots are always stored at the full staging width,
		// zero-padded when the tablespace is compressed; the home
		// tablespace file, however, strides by zipSize, so both the
		// offset and the staged copy itself must be narrowed to it.
		stagedData := p.Data[:pageSize]
		target := make([]byte, pageSize)
		offset := int64(p.Page) * int64(pageSize)
		if err := io.ReadAt(p.Space, target, offset); err != nil {
			return fmt.Errorf("read target page (%d,%d): %w", p.Space, p.Page, err)
		}

		targetCorrupt := oracle.IsCorrupted(target, zipSize)
		stagedCorrupt := oracle.IsCorrupted(stagedData, zipSize)

		switch {
		case targetCorrupt && stagedCorrupt:
			dblwr.DumpPage(log, "doublewrite: target and staged copy both corrupted, restart with innodb_force_recovery=6", p.Space, p.Page, target)
			dblwr.DumpPage(log, "doublewrite: staged copy", p.Space, p.Page, stagedData)
			return flushmanager.Fatal(fmt.Errorf("%w: space=%d page=%d", flushmanager.ErrStagedAndTargetCorrupt, p.Space, p.Page))

		case targetCorrupt && !stagedCorrupt:
			if err := io.WriteAt(p.Space, stagedData, offset); err != nil {
				return fmt.Errorf("rewrite corrupted target (%d,%d): %w", p.Space, p.Page, err)
			}
			log.Info("doublewrite: recovered corrupted page from staged copy", zap.Uint32("space", uint32(p.Space)), zap.Uint32("page", uint32(p.Page)))
			metrics.PageRecovered("corrupted")
			recovered++

		case oracle.IsZeroes(target, zipSize) && !oracle.IsZeroes(stagedData, zipSize) && !stagedCorrupt:
			if err := io.WriteAt(p.Space, stagedData, offset); err != nil {
				return fmt.Errorf("rewrite zero-filled target (%d,%d): %w", p.Space, p.Page, err)
			}
			log.Info("doublewrite: recovered zero-filled page from staged copy", zap.Uint32("space", uint32(p.Space)), zap.Uint32("page", uint32(p.Page)))
			metrics.PageRecovered("zero_filled")
			recovered++

		default:
			// Target is fine; the staged copy was simply never overtaken by
			// its own completion handler before the crash.
		}
	}

	if err := tablespaces.FlushAll(dblwr.FlushRecovery); err != nil {
		return err
	}
	log.Info("doublewrite: recovery complete", zap.Int("recovered", recovered), zap.Int("staged", len(staged)))
	return nil
}
