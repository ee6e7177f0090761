package models

// AlertFrequency controls how often a user wants to hear from us
type AlertFrequency string

const (
	FrequencyImmediate AlertFrequency = "immediate"
	FrequencyDaily     AlertFrequency = "daily"
	FrequencyWeekly    AlertFrequency = "weekly"
)

// UserPreference is the notification configuration for one user. Rows are
// owned by the user service; this engine only reads them.
type UserPreference struct {
	UserID            string         `json:"user_id"`
	Platforms         []Platform     `json:"platforms"`
	NotifyBeforeHours int            `json:"notify_before_hours"`
	EmailEnabled      bool           `json:"email_enabled"`
	WhatsAppEnabled   bool           `json:"whatsapp_enabled"`
	PushEnabled       bool           `json:"push_enabled"`
	AlertFrequency    AlertFrequency `json:"alert_frequency"`
	IsActive          bool           `json:"is_active"`

	// Delivery destinations, maintained alongside the user profile
	Email          string `json:"email,omitempty"`
	WhatsAppNumber string `json:"whatsapp_number,omitempty"`
	PushToken      string `json:"push_token,omitempty"`
}

// SubscribedTo reports whether the user follows the given platform
func (p *UserPreference) SubscribedTo(platform Platform) bool {
	for _, sub := range p.Platforms {
		if sub == platform {
			return true
		}
	}
	return false
}

// ChannelEnabled reports whether the user opted into the given channel
func (p *UserPreference) ChannelEnabled(ch Channel) bool {
	switch ch {
	case ChannelEmail:
		return p.EmailEnabled
	case ChannelWhatsApp:
		return p.WhatsAppEnabled
	case ChannelPush:
		return p.PushEnabled
	}
	return false
}

// EnabledChannels returns the channels the user opted into, in stable order
func (p *UserPreference) EnabledChannels() []Channel {
	var out []Channel
	for _, ch := range AllChannels() {
		if p.ChannelEnabled(ch) {
			out = append(out, ch)
		}
	}
	return out
}

// Destination returns the user's address for a channel ("" when missing)
func (p *UserPreference) Destination(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return p.Email
	case ChannelWhatsApp:
		return p.WhatsAppNumber
	case ChannelPush:
		return p.PushToken
	}
	return ""
}
