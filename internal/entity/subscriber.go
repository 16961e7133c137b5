package entity

// Subscriber es el contacto del lado de Manychat que espeja un Lead.
// Puede existir antes que el lead (primer contacto por WhatsApp) o después.
type Subscriber struct {
	ID           int64                  `json:"id"`
	Phone        string                 `json:"phone"`
	FirstName    string                 `json:"first_name"`
	LastName     string                 `json:"last_name"`
	Email        string                 `json:"email,omitempty"`
	CustomFields map[string]interface{} `json:"custom_fields,omitempty"`
	Tags         []string               `json:"tags,omitempty"`
}

func (s *Subscriber) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

func (s *Subscriber) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if t == tag {
			return true
		}
	}
	return false
}
