package v1

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shenikar/rescue_dispatch_system/internal/config"
	"github.com/sirupsen/logrus"
)

// APIKeyAuthMiddleware - middleware для аутентификации по API-ключу
func APIKeyAuthMiddleware(cfg *config.Config, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey == "" {
			// Проверяем также заголовок Authorization: Bearer
			authHeader := c.GetHeader("Authorization")
			if authHeader != "" && strings.HasPrefix(authHeader, "Bearer ") {
				apiKey = strings.TrimPrefix(authHeader, "Bearer ")
			}
		}

		if apiKey == "" {
			log.Warn("API key missing from request")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "API key required"})
			return
		}

		isValid := false
		for _, key := range cfg.APIKeys {
			if key == apiKey {
				isValid = true
				break
			}
		}

		if !isValid {
			log.Warnf("Invalid API key provided: %s", apiKey)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid API key"})
			return
		}

		c.Next()
	}
}

// OperatorPolicy - проверка права вызывающего действовать от имени
// спасательной организации. Инжектируется снаружи, чтобы логика
// арбитра не знала ничего о конкретном деплойменте.
type OperatorPolicy interface {
	IsOperator(email string) bool
}

// EmailAllowListPolicy - реализация OperatorPolicy на статичном
// allow-list адресов из конфигурации
type EmailAllowListPolicy struct {
	emails map[string]struct{}
}

// NewEmailAllowListPolicy создает политику из списка адресов
func NewEmailAllowListPolicy(emails []string) *EmailAllowListPolicy {
	set := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		set[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
	}
	return &EmailAllowListPolicy{emails: set}
}

// IsOperator проверяет адрес по allow-list
func (p *EmailAllowListPolicy) IsOperator(email string) bool {
	if email == "" {
		return false
	}
	_, ok := p.emails[strings.ToLower(email)]
	return ok
}

// OperatorOnlyMiddleware пропускает только операторов организаций.
// Идентичность уже установлена внешним провайдером, сюда приходит
// только аутентифицированный адрес в заголовке.
func OperatorOnlyMiddleware(policy OperatorPolicy, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		email := c.GetHeader("X-Operator-Email")
		if !policy.IsOperator(email) {
			log.WithField("email", email).Warn("Rejected non-operator request to operator endpoint")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "operators only"})
			return
		}
		c.Next()
	}
}
