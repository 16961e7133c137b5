package usecase

import (
	"context"
	"time"

	"github.com/credinor/crm-backend/internal/entity"
	"github.com/credinor/crm-backend/internal/infra/integration/manychat"
)

// LeadStore es lo que el sync necesita del backend de leads (Supabase)
type LeadStore interface {
	GetLeadByID(ctx context.Context, id string) (*entity.Lead, error)
	FindLeadByPhone(ctx context.Context, phone string) (*entity.Lead, error)
	FindLeadByManychatID(ctx context.Context, manychatID int64) (*entity.Lead, error)
	CreateLead(ctx context.Context, lead *entity.Lead) (*entity.Lead, error)
	UpdateLead(ctx context.Context, id string, changes map[string]interface{}) (*entity.Lead, error)
}

// SyncLogRepository persiste los intentos de sincronización
type SyncLogRepository interface {
	Create(ctx context.Context, e *entity.SyncLogEntry) error
	MarkSuccess(ctx context.Context, id string, snapshot []byte) error
	// MarkFailed deja la entrada en failed, guarda el error y suma un reintento
	MarkFailed(ctx context.Context, id string, errMsg string) error
	SetLeadID(ctx context.Context, id, leadID string) error
	IncrementRetry(ctx context.Context, id string) error
	ListFailed(ctx context.Context, maxRetries, limit int) ([]entity.SyncLogEntry, error)
	List(ctx context.Context, leadID string, limit int) ([]entity.SyncLogEntry, error)
	DeleteSuccessfulBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountPendingBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// MessagingClient es el contrato contra Manychat
type MessagingClient interface {
	GetSubscriberByID(ctx context.Context, id int64) (*entity.Subscriber, error)
	GetSubscriberByPhone(ctx context.Context, phone string) (*entity.Subscriber, error)
	CreateOrUpdateSubscriber(ctx context.Context, in manychat.UpsertInput) (*entity.Subscriber, error)
	AddTagToSubscriber(ctx context.Context, id int64, tag string) (bool, error)
	RemoveTagFromSubscriber(ctx context.Context, id int64, tag string) (bool, error)
	SetCustomField(ctx context.Context, id int64, name string, value interface{}) (bool, error)
	SendTextMessage(ctx context.Context, id int64, text string) (bool, error)
}

// AlertSender avisa a operaciones cuando un lead agota sus reintentos
type AlertSender interface {
	SendSyncFailureAlert(leadID, errMsg string, retries int) error
}
