package validator

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"shiftoffer_backend/internal/models"
)

// registerCustomRules регистрирует доменные теги валидации
func registerCustomRules(v *validator.Validate) error {
	rules := map[string]validator.Func{
		// 'notification-channel': in_app, push, email, sms
		"notification-channel": validateChannel,
		// 'queue-response': ответить можно только accepted или declined
		"queue-response": validateQueueResponse,
		"presence-status": validatePresenceStatus,
	}

	for tag, fn := range rules {
		if err := v.RegisterValidation(tag, fn); err != nil {
			return fmt.Errorf("register validation tag '%s': %w", tag, err)
		}
	}
	return nil
}

func validateChannel(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true // пустые значения ловит 'required'
	}
	return models.NotificationChannel(value).IsValid()
}

func validateQueueResponse(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	switch models.QueueResponseStatus(value) {
	case models.QueueStatusAccepted, models.QueueStatusDeclined:
		return true
	default:
		return false
	}
}

func validatePresenceStatus(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	switch models.PresenceStatus(value) {
	case models.PresenceOnline, models.PresenceOffline:
		return true
	default:
		return false
	}
}
