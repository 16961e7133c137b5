package mail

import (
	"fmt"

	"gopkg.in/gomail.v2"
)

// AlertSender manda avisos por correo al equipo de operaciones cuando un lead
// agota sus reintentos de sincronización.
type AlertSender struct {
	Host     string
	Port     int
	User     string
	Password string
	To       string
}

func NewAlertSender(host string, port int, user, password, to string) *AlertSender {
	return &AlertSender{
		Host:     host,
		Port:     port,
		User:     user,
		Password: password,
		To:       to,
	}
}

func (s *AlertSender) SendSyncFailureAlert(leadID, errMsg string, retries int) error {
	m := gomail.NewMessage()
	m.SetHeader("From", "no-responder@credinor.com.ar")
	m.SetHeader("To", s.To)
	m.SetHeader("Subject", fmt.Sprintf("⚠️ Sync agotado para lead %s", leadID))
	m.SetBody("text/plain", fmt.Sprintf(
		"El lead %s agotó sus reintentos de sincronización con Manychat.\n\n"+
			"Reintentos: %d\nÚltimo error: %s\n\n"+
			"Revisar los sync_logs y reintentar manualmente desde el panel.",
		leadID, retries, errMsg,
	))

	d := gomail.NewDialer(s.Host, s.Port, s.User, s.Password)

	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("error al enviar alerta SMTP: %w", err)
	}

	return nil
}
