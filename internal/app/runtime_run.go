package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

func (r *Runtime) Run(ctx context.Context) error {
	r.logger.Info("router-runtime starting", "addr", r.cfg.HTTPAddr, "environment", r.cfg.Environment)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return r.lexiconWatcher.Start(groupCtx)
	})
	group.Go(func() error {
		return r.sweeper.Start(groupCtx)
	})
	group.Go(func() error {
		err := r.httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return r.httpServer.Shutdown(shutdownCtx)
	})

	return group.Wait()
}
