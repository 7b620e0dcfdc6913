// Command worldd runs one agent-world instance: kernel + rule pipeline +
// module runtime + persistence + distributed head validation + PoS gating +
// lease coordination, serving the line-delimited JSON viewer protocol over a
// websocket listener.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eng-cc/agent-world-sub009/internal/bridge"
	"github.com/eng-cc/agent-world-sub009/internal/viewer"
	"github.com/eng-cc/agent-world-sub009/simkernel/log"
	"github.com/eng-cc/agent-world-sub009/simkernel/pos"
	"github.com/eng-cc/agent-world-sub009/simkernel/runtime"
)

func main() {
	logger := log.Default("worldd")
	cfg := bridge.LoadConfig()

	validators := pos.ValidatorSet{Stakes: map[string]uint64{"validator-1": 1}}

	inst, err := bridge.New(cfg, runtime.NullSandbox{}, validators)
	if err != nil {
		logger.Fatal("failed to assemble world instance", log.Err(err))
	}

	view := viewer.NewServer(cfg.WorldID)
	mux := http.NewServeMux()
	mux.HandleFunc("/viewer", view.HandleWebsocket)
	srv := &http.Server{Addr: cfg.ViewerListenAddr, Handler: mux}

	go func() {
		logger.Info("viewer listening", log.String("addr", cfg.ViewerListenAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("viewer server stopped", log.Err(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var slot uint64
	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
			return
		case <-ticker.C:
			mode, _, _ := view.Control().Snapshot()
			if mode == viewer.ControlPause {
				continue
			}
			ev, ok := inst.Kernel.Step(ctx)
			if ok {
				view.BroadcastEvent(ev)
			}
			slot++
			if int64(inst.Kernel.Time())%cfg.SnapshotInterval == 0 {
				block, err := inst.Snapshot(ctx, time.Now().UnixMilli(), "validator-1", slot)
				if err != nil {
					logger.Warn("snapshot/head update failed", log.Err(err))
					continue
				}
				view.BroadcastMetrics(inst.Kernel.Time(), map[string]float64{
					"height": float64(block.Height),
				})
			}
		}
	}
}
