package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityMember                      // Any caller bound to an organization
	SecurityAdmin                       // Organization admin
	SecuritySystem                      // Internal callers (signup hook, payment processor)
)

// Route names used by the HTTP router. Kept here so the security table and the
// router cannot drift apart.
const (
	RouteHealth             = "health"
	RouteMetrics            = "metrics"
	RouteGetBalance         = "balance.get"
	RouteConsume            = "credits.consume"
	RouteGrant              = "credits.grant"
	RoutePurchase           = "credits.purchase"
	RouteRefund             = "credits.refund"
	RouteAdjust             = "credits.adjust"
	RouteHistory            = "credits.history"
	RouteUsage              = "credits.usage"
	RouteCreateOrganization = "organizations.create"
	RouteGetOrganization    = "organizations.get"
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	RouteHealth:  SecurityPublic,
	RouteMetrics: SecurityPublic,

	RouteGetBalance:      SecurityMember,
	RouteConsume:         SecurityMember,
	RouteHistory:         SecurityMember,
	RouteUsage:           SecurityMember,
	RouteGetOrganization: SecurityMember,

	RouteGrant:  SecurityAdmin,
	RouteRefund: SecurityAdmin,
	RouteAdjust: SecurityAdmin,

	RoutePurchase:           SecuritySystem,
	RouteCreateOrganization: SecuritySystem,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecuritySystem
}
