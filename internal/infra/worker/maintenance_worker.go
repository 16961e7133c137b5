package worker

import (
	"context"
	"log"
	"time"

	"github.com/credinor/crm-backend/internal/usecase"
)

// MaintenanceWorker corre las tareas de fondo del sync: purga diaria de logs
// exitosos viejos y reporte horario de intentos que quedaron en pending.
type MaintenanceWorker struct {
	sync          *usecase.SyncService
	logs          usecase.SyncLogRepository
	retentionDays int
	cleanupEvery  time.Duration
	orphanEvery   time.Duration
}

func NewMaintenanceWorker(sync *usecase.SyncService, logs usecase.SyncLogRepository) *MaintenanceWorker {
	return &MaintenanceWorker{
		sync:          sync,
		logs:          logs,
		retentionDays: 30,
		cleanupEvery:  24 * time.Hour,
		orphanEvery:   1 * time.Hour,
	}
}

func (w *MaintenanceWorker) Start(ctx context.Context) {
	log.Printf("🕒 Maintenance worker iniciado (retención %d días)", w.retentionDays)

	cleanup := time.NewTicker(w.cleanupEvery)
	orphans := time.NewTicker(w.orphanEvery)
	defer cleanup.Stop()
	defer orphans.Stop()

	w.cleanupLogs(ctx)
	w.reportOrphans(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Println("⚠️ Maintenance worker detenido")
			return
		case <-cleanup.C:
			w.cleanupLogs(ctx)
		case <-orphans.C:
			w.reportOrphans(ctx)
		}
	}
}

func (w *MaintenanceWorker) cleanupLogs(ctx context.Context) {
	deleted, err := w.sync.CleanupOldSyncLogs(ctx, w.retentionDays)
	if err != nil {
		log.Printf("❌ Error al purgar sync_logs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("🧹 %d sync_logs exitosos purgados", deleted)
	}
}

// reportOrphans cuenta intentos que nunca se cerraron; normalmente significa
// que el proceso se cayó entre el create del log y el update del lead
func (w *MaintenanceWorker) reportOrphans(ctx context.Context) {
	cutoff := time.Now().Add(-1 * time.Hour)
	count, err := w.logs.CountPendingBefore(ctx, cutoff)
	if err != nil {
		log.Printf("❌ Error al contar syncs huérfanos: %v", err)
		return
	}
	if count > 0 {
		log.Printf("⚠️ %d intentos de sync siguen en pending hace más de una hora", count)
	}
}
