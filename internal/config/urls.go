package config

// ServiceURLs contains URLs for downstream services based on environment.
// URLs are automatically configured based on the current environment setting.
type ServiceURLs struct {
	// AuditServiceBaseURL is the base URL for the audit-log service API.
	AuditServiceBaseURL string
	// AuditTokenURL is the token endpoint used to obtain forwarding credentials.
	AuditTokenURL string
}

// GetServiceURLs returns environment-appropriate URLs for downstream services.
// Explicit AUDIT_SERVICE_URL and AUDIT_TOKEN_URL settings take precedence.
//
// Example usage:
//
//	cfg, _ := config.Load()
//	urls := cfg.GetServiceURLs()
//	auditURL := urls.AuditServiceBaseURL
func (c *Config) GetServiceURLs() ServiceURLs {
	var urls ServiceURLs

	switch c.Environment.Environment {
	case NonProd:
		fallthrough
	case Prod:
		urls = ServiceURLs{
			AuditServiceBaseURL: "http://audit-service.audit.svc.cluster.local:8000/api/v1/audit",
			AuditTokenURL:       "http://audit-service.audit.svc.cluster.local:8000/oauth/token",
		}
	case Local:
		fallthrough
	default:
		urls = ServiceURLs{
			AuditServiceBaseURL: "http://localhost:8000/api/v1/audit",
			AuditTokenURL:       "http://localhost:8000/oauth/token",
		}
	}

	if c.Audit.ServiceURL != "" {
		urls.AuditServiceBaseURL = c.Audit.ServiceURL
	}
	if c.Audit.TokenURL != "" {
		urls.AuditTokenURL = c.Audit.TokenURL
	}

	return urls
}
