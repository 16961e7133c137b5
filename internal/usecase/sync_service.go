package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/credinor/crm-backend/internal/entity"
	"github.com/credinor/crm-backend/internal/infra/integration/manychat"
)

const (
	retryBatchSize    = 10
	defaultMaxRetries = 3

	welcomeMessage = "¡Hola! Gracias por contactarte con Credinor 👋 Un asesor te va a escribir en breve."
)

// FullSyncResult desglosa el resultado de una sincronización completa. Ok es
// el veredicto global; los pasos de tags y custom fields son best-effort y su
// fallo no voltea un paso anterior exitoso.
type FullSyncResult struct {
	Ok           bool `json:"ok"`
	Data         bool `json:"data"`
	Tags         bool `json:"tags"`
	CustomFields bool `json:"custom_fields"`
}

// SyncService reconcilia leads del CRM con subscribers de Manychat en las dos
// direcciones. Cada intento queda registrado como SyncLogEntry con transición
// única pending -> success|failed. Ningún error interno cruza este borde:
// los métodos públicos devuelven bool/nil y dejan el detalle en el log.
type SyncService struct {
	Leads    LeadStore
	Logs     SyncLogRepository
	Manychat MessagingClient
	Alerts   AlertSender // opcional

	// OnAttempt, si está seteado, registra métricas por intento terminado
	OnAttempt func(direction string, ok bool)
}

func NewSyncService(leads LeadStore, logs SyncLogRepository, mc MessagingClient, alerts AlertSender) *SyncService {
	return &SyncService{
		Leads:    leads,
		Logs:     logs,
		Manychat: mc,
		Alerts:   alerts,
	}
}

// SyncLeadToManychat empuja el estado del lead hacia Manychat. Si el lead no
// existe es un error del caller y no se crea entrada de log.
func (s *SyncService) SyncLeadToManychat(ctx context.Context, leadID string) bool {
	lead, err := s.Leads.GetLeadByID(ctx, leadID)
	if err != nil || lead == nil {
		log.Printf("❌ Sync: lead %s no encontrado, se aborta sin log: %v", leadID, err)
		return false
	}

	entry := s.newEntry(&leadID, entity.SyncTypeLead, entity.SyncDirectionToManychat, lead)
	if err := s.Logs.Create(ctx, entry); err != nil {
		log.Printf("❌ Sync: no se pudo crear la entrada de log para lead %s: %v", leadID, err)
		return false
	}

	first, last := splitName(lead.Name)
	input := manychat.UpsertInput{
		Phone:        lead.Phone,
		FirstName:    first,
		LastName:     last,
		Email:        lead.Email,
		CustomFields: leadCustomFields(lead),
	}

	sub, err := s.Manychat.CreateOrUpdateSubscriber(ctx, input)
	if err != nil {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("upsert de subscriber falló: %v", err))
	}

	if _, err := s.Leads.UpdateLead(ctx, lead.ID, map[string]interface{}{"manychat_id": sub.ID}); err != nil {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("no se pudo guardar manychat_id: %v", err))
	}

	snapshot, _ := json.Marshal(sub)
	if err := s.Logs.MarkSuccess(ctx, entry.ID, snapshot); err != nil {
		log.Printf("⚠️ Sync: intento exitoso pero no se pudo cerrar el log %s: %v", entry.ID, err)
	}

	s.attempt(entity.SyncDirectionToManychat, true)
	log.Printf("✅ Sync: lead %s sincronizado como subscriber %d", lead.ID, sub.ID)
	return true
}

// SyncManychatToLead materializa un subscriber como lead: actualiza el que
// matchee por manychat_id o teléfono, o crea uno nuevo. Devuelve nil si el
// intento falló (el detalle queda en el log).
func (s *SyncService) SyncManychatToLead(ctx context.Context, sub *entity.Subscriber) *entity.Lead {
	if sub == nil {
		return nil
	}

	// el lead real todavía no se conoce: la entrada nace sin lead_id
	entry := s.newEntry(nil, entity.SyncTypeLead, entity.SyncDirectionFromManychat, sub)
	if err := s.Logs.Create(ctx, entry); err != nil {
		log.Printf("❌ Sync: no se pudo crear la entrada de log inbound: %v", err)
		return nil
	}

	existing, err := s.resolveLead(ctx, sub)
	if err != nil {
		s.fail(ctx, entry, entity.SyncDirectionFromManychat, fmt.Sprintf("resolución de lead falló: %v", err))
		return nil
	}

	changes := subscriberToChanges(sub)
	changes["manychat_id"] = sub.ID

	var lead *entity.Lead
	created := false
	if existing != nil {
		lead, err = s.Leads.UpdateLead(ctx, existing.ID, changes)
	} else {
		lead, err = s.Leads.CreateLead(ctx, inboundLead(sub, changes))
		created = true
	}
	if err != nil {
		s.fail(ctx, entry, entity.SyncDirectionFromManychat, fmt.Sprintf("upsert de lead falló: %v", err))
		return nil
	}

	if err := s.Logs.SetLeadID(ctx, entry.ID, lead.ID); err != nil {
		log.Printf("⚠️ Sync: no se pudo asociar el log %s al lead %s: %v", entry.ID, lead.ID, err)
	}

	snapshot, _ := json.Marshal(lead)
	if err := s.Logs.MarkSuccess(ctx, entry.ID, snapshot); err != nil {
		log.Printf("⚠️ Sync: intento exitoso pero no se pudo cerrar el log %s: %v", entry.ID, err)
	}

	s.attempt(entity.SyncDirectionFromManychat, true)
	log.Printf("✅ Sync: subscriber %d aplicado sobre lead %s", sub.ID, lead.ID)

	if created {
		// bienvenida best-effort al primer contacto; no afecta el resultado
		if ok, err := s.Manychat.SendTextMessage(ctx, sub.ID, welcomeMessage); err != nil || !ok {
			log.Printf("⚠️ Sync: no se pudo enviar bienvenida al subscriber %d: %v", sub.ID, err)
		}
	}

	return lead
}

// SyncTagsToManychat reconcilia los tags del subscriber con el set deseado:
// agrega los que faltan, saca los que sobran y persiste el set deseado en el
// lead pase lo que pase con los adds/removes individuales. Requiere que el
// lead ya tenga manychat_id.
func (s *SyncService) SyncTagsToManychat(ctx context.Context, leadID string, desired []string) bool {
	lead, err := s.Leads.GetLeadByID(ctx, leadID)
	if err != nil || lead == nil {
		log.Printf("❌ Sync tags: lead %s no encontrado: %v", leadID, err)
		return false
	}
	if lead.ManychatID == nil {
		log.Printf("⚠️ Sync tags: lead %s sin manychat_id, nada que reconciliar", leadID)
		return false
	}

	entry := s.newEntry(&leadID, entity.SyncTypeTags, entity.SyncDirectionToManychat, desired)
	if err := s.Logs.Create(ctx, entry); err != nil {
		log.Printf("❌ Sync tags: no se pudo crear la entrada de log: %v", err)
		return false
	}

	// estado actual fresco en cada llamada
	sub, err := s.Manychat.GetSubscriberByID(ctx, *lead.ManychatID)
	if err != nil {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("lectura de subscriber falló: %v", err))
	}
	if sub == nil {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("subscriber %d inexistente en manychat", *lead.ManychatID))
	}

	current := map[string]bool{}
	for _, t := range sub.Tags {
		current[t] = true
	}
	want := map[string]bool{}
	for _, t := range desired {
		want[t] = true
	}

	failures := 0
	for _, t := range desired {
		if !current[t] {
			if ok, addErr := s.Manychat.AddTagToSubscriber(ctx, sub.ID, t); addErr != nil || !ok {
				failures++
			}
		}
	}
	for _, t := range sub.Tags {
		if !want[t] {
			if ok, rmErr := s.Manychat.RemoveTagFromSubscriber(ctx, sub.ID, t); rmErr != nil || !ok {
				failures++
			}
		}
	}

	// el set deseado queda en el lead aunque algún add/remove haya fallado
	if _, err := s.Leads.UpdateLead(ctx, lead.ID, map[string]interface{}{"etiquetas": desired}); err != nil {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("no se pudieron persistir etiquetas: %v", err))
	}

	snapshot, _ := json.Marshal(desired)
	if err := s.Logs.MarkSuccess(ctx, entry.ID, snapshot); err != nil {
		log.Printf("⚠️ Sync tags: no se pudo cerrar el log %s: %v", entry.ID, err)
	}
	if failures > 0 {
		log.Printf("⚠️ Sync tags: %d operaciones de tag fallaron para lead %s (quedan aplicadas las demás)", failures, lead.ID)
	}

	s.attempt(entity.SyncDirectionToManychat, true)
	return true
}

// SyncCustomFieldsToManychat empuja los campos de negocio del lead como custom
// fields, uno por llamada.
func (s *SyncService) SyncCustomFieldsToManychat(ctx context.Context, leadID string) bool {
	lead, err := s.Leads.GetLeadByID(ctx, leadID)
	if err != nil || lead == nil {
		log.Printf("❌ Sync campos: lead %s no encontrado: %v", leadID, err)
		return false
	}
	if lead.ManychatID == nil {
		return false
	}

	entry := s.newEntry(&leadID, entity.SyncTypeCustomFields, entity.SyncDirectionToManychat, lead)
	if err := s.Logs.Create(ctx, entry); err != nil {
		log.Printf("❌ Sync campos: no se pudo crear la entrada de log: %v", err)
		return false
	}

	fields := leadCustomFields(lead)
	failures := 0
	for name, value := range fields {
		if ok, setErr := s.Manychat.SetCustomField(ctx, *lead.ManychatID, name, value); setErr != nil || !ok {
			failures++
		}
	}

	if failures == len(fields) && len(fields) > 0 {
		return s.fail(ctx, entry, entity.SyncDirectionToManychat, fmt.Sprintf("los %d custom fields fallaron", failures))
	}

	snapshot, _ := json.Marshal(fields)
	if err := s.Logs.MarkSuccess(ctx, entry.ID, snapshot); err != nil {
		log.Printf("⚠️ Sync campos: no se pudo cerrar el log %s: %v", entry.ID, err)
	}
	if failures > 0 {
		log.Printf("⚠️ Sync campos: %d de %d custom fields fallaron para lead %s", failures, len(fields), lead.ID)
	}

	s.attempt(entity.SyncDirectionToManychat, true)
	return true
}

// FullSyncLeadToManychat compone datos -> tags -> custom fields. Si el paso de
// datos falla, corta ahí. Tags y custom fields se intentan de forma
// independiente: el fallo de uno no voltea al otro.
func (s *SyncService) FullSyncLeadToManychat(ctx context.Context, leadID string) FullSyncResult {
	res := FullSyncResult{}

	res.Data = s.SyncLeadToManychat(ctx, leadID)
	if !res.Data {
		return res
	}

	lead, err := s.Leads.GetLeadByID(ctx, leadID)
	if err != nil || lead == nil {
		return res
	}

	res.Tags = true
	if len(lead.Tags) > 0 {
		res.Tags = s.SyncTagsToManychat(ctx, leadID, lead.Tags)
	}

	res.CustomFields = s.SyncCustomFieldsToManychat(ctx, leadID)

	res.Ok = true
	return res
}

// RetryFailedSyncs toma hasta 10 entradas failed con menos de maxRetries
// reintentos y reejecuta el sync saliente de cada lead. Devuelve cuántos
// reintentos terminaron en éxito. Es un pase explícito, no hay scheduler.
func (s *SyncService) RetryFailedSyncs(ctx context.Context, maxRetries int) int {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}

	entries, err := s.Logs.ListFailed(ctx, maxRetries, retryBatchSize)
	if err != nil {
		log.Printf("❌ Retry: no se pudieron listar los syncs fallidos: %v", err)
		return 0
	}

	recovered := 0
	for _, entry := range entries {
		// solo la dirección saliente se reintenta; lo inbound vuelve por la cola
		if entry.Direction != entity.SyncDirectionToManychat || entry.LeadID == nil {
			continue
		}

		if err := s.Logs.IncrementRetry(ctx, entry.ID); err != nil {
			log.Printf("⚠️ Retry: no se pudo incrementar reintentos de %s: %v", entry.ID, err)
			continue
		}

		if s.SyncLeadToManychat(ctx, *entry.LeadID) {
			recovered++
			continue
		}

		if entry.RetryCount+1 >= maxRetries && s.Alerts != nil {
			if alertErr := s.Alerts.SendSyncFailureAlert(*entry.LeadID, entry.Error, entry.RetryCount+1); alertErr != nil {
				log.Printf("⚠️ Retry: no se pudo enviar la alerta por lead %s: %v", *entry.LeadID, alertErr)
			}
		}
	}

	if len(entries) > 0 {
		log.Printf("🔁 Retry: %d/%d syncs recuperados", recovered, len(entries))
	}
	return recovered
}

func (s *SyncService) GetSyncLogs(ctx context.Context, leadID string, limit int) ([]entity.SyncLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if leadID != "" {
		if _, err := uuid.Parse(leadID); err != nil {
			return nil, &DomainError{Code: "LEAD_ID_INVALID", Message: "lead_id no es un UUID válido"}
		}
	}
	entries, err := s.Logs.List(ctx, leadID, limit)
	if err != nil {
		return nil, &TechnicalError{Code: "SYNC_LOGS_READ", Message: err.Error()}
	}
	return entries, nil
}

// CleanupOldSyncLogs purga entradas exitosas más viejas que la ventana de
// retención. Las fallidas se conservan indefinidamente para auditoría.
func (s *SyncService) CleanupOldSyncLogs(ctx context.Context, daysToKeep int) (int64, error) {
	if daysToKeep <= 0 {
		daysToKeep = 30
	}
	cutoff := time.Now().AddDate(0, 0, -daysToKeep)
	deleted, err := s.Logs.DeleteSuccessfulBefore(ctx, cutoff)
	if err != nil {
		return 0, &TechnicalError{Code: "SYNC_LOGS_CLEANUP", Message: err.Error()}
	}
	return deleted, nil
}

// --- helpers ---

// resolveLead busca el lead que corresponde a un subscriber: primero por
// manychat_id, después por teléfono. nil/nil significa lead nuevo.
func (s *SyncService) resolveLead(ctx context.Context, sub *entity.Subscriber) (*entity.Lead, error) {
	lead, err := s.Leads.FindLeadByManychatID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	if lead != nil {
		return lead, nil
	}
	if sub.Phone == "" {
		return nil, nil
	}
	return s.Leads.FindLeadByPhone(ctx, sub.Phone)
}

func (s *SyncService) newEntry(leadID *string, syncType, direction string, snapshot interface{}) *entity.SyncLogEntry {
	raw, _ := json.Marshal(snapshot)
	return &entity.SyncLogEntry{
		ID:        uuid.New().String(),
		LeadID:    leadID,
		Type:      syncType,
		Direction: direction,
		Status:    entity.SyncStatusPending,
		Snapshot:  raw,
		CreatedAt: time.Now().UTC(),
	}
}

func (s *SyncService) fail(ctx context.Context, entry *entity.SyncLogEntry, direction, msg string) bool {
	if err := s.Logs.MarkFailed(ctx, entry.ID, msg); err != nil {
		log.Printf("❌ Sync: además falló el cierre del log %s: %v", entry.ID, err)
	}
	s.attempt(direction, false)
	log.Printf("❌ Sync: intento %s fallido: %s", entry.ID, msg)
	return false
}

func (s *SyncService) attempt(direction string, ok bool) {
	if s.OnAttempt != nil {
		s.OnAttempt(direction, ok)
	}
}

// inboundLead arma un lead nuevo desde un subscriber, con los defaults del
// canal: origen whatsapp y estado NEW salvo que los custom fields digan otra cosa
func inboundLead(sub *entity.Subscriber, changes map[string]interface{}) *entity.Lead {
	lead := &entity.Lead{
		Name:       sub.FullName(),
		Phone:      sub.Phone,
		Email:      sub.Email,
		Source:     "whatsapp",
		State:      entity.StateNew,
		Tags:       sub.Tags,
		ManychatID: &sub.ID,
	}

	if v, ok := changes["origen"].(string); ok && v != "" {
		lead.Source = v
	}
	if v, ok := changes["estado"].(string); ok && v != "" {
		lead.State = v
	}
	if v, ok := changes["dni"].(string); ok {
		lead.DNI = v
	}
	if v, ok := changes["zona"].(string); ok {
		lead.Zone = v
	}
	if v, ok := changes["producto"].(string); ok {
		lead.Product = v
	}
	if v, ok := changes["agencia"].(string); ok {
		lead.Agency = v
	}
	if v, ok := changes["notas"].(string); ok {
		lead.Notes = v
	}
	if v, ok := changes["ingresos"].(float64); ok {
		lead.Income = v
	}
	if v, ok := changes["monto"].(float64); ok {
		lead.Amount = v
	}

	return lead
}
