package dblwr

import "go.uber.org/zap"

// Writer is the entry point a page flusher calls; it hides whether
// doublewrite staging is actually turned on. With cfg.Enabled false, every
// write skips staging entirely and goes straight to the target with a
// plain fsync, the same shortcut the original took when
// srv_use_doublewrite_buf was off.
type Writer struct {
	cfg  Config
	core *Core
	io   FileIO
	log  *zap.Logger
}

// NewWriter wraps core behind cfg's enabled/disabled switch. core may be
// nil when cfg.Enabled is false and the caller never intends to flip it at
// runtime, but io must always be supplied since direct-write mode needs it
// regardless.
func NewWriter(cfg Config, core *Core, io FileIO, log *zap.Logger) *Writer {
	return &Writer{cfg: cfg, core: core, io: io, log: log.Named("dblwr.writer")}
}

// PostBatch stages h for the next drain, or is a no-op when doublewrite is
// disabled — direct-write mode has nothing to stage ahead of time.
func (w *Writer) PostBatch(h PageHandle) {
	if !w.cfg.Enabled {
		return
	}
	w.core.PostBatch(h)
}

// FlushBuffered drains the batch region, or is a no-op when disabled.
func (w *Writer) FlushBuffered() error {
	if !w.cfg.Enabled {
		return nil
	}
	return w.core.FlushBuffered()
}

// WriteSingle stages and targets h through the doublewrite path, or, when
// disabled, writes directly to the target with a plain fsync.
func (w *Writer) WriteSingle(h PageHandle, sync bool) error {
	if !w.cfg.Enabled {
		return w.writeDirect(h, sync)
	}
	return w.core.WriteSingle(h, sync)
}

func (w *Writer) writeDirect(h PageHandle, sync bool) error {
	space, pageNo := h.GetSpaceID(), h.GetPageID()
	data := h.GetData()
	if h.IsCompressed() {
		data = h.ZipData()
	}
	if !sync {
		return w.io.AIOWrite(space, pageNo, data, func(err error) {
			if err == nil {
				err = w.io.Flush(space)
			}
			if err != nil {
				w.log.Error("doublewrite: direct write failed", zap.Uint32("space", uint32(space)), zap.Uint32("page", uint32(pageNo)), zap.Error(err))
			}
		})
	}
	done := make(chan error, 1)
	if err := w.io.AIOWrite(space, pageNo, data, func(err error) { done <- err }); err != nil {
		return err
	}
	w.io.PumpAIO()
	if err := <-done; err != nil {
		return err
	}
	return w.io.Flush(space)
}
