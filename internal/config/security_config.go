package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// EndpointSecurityConfig maps methods to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	// Health and reflection - Public
	"/grpc.health.v1.Health/Check":                                   SecurityPublic,
	"/grpc.health.v1.Health/Watch":                                   SecurityPublic,
	"/grpc.reflection.v1.ServerReflection/ServerReflectionInfo":      SecurityPublic,
	"/grpc.reflection.v1alpha.ServerReflection/ServerReflectionInfo": SecurityPublic,

	// OrderService - Access Protected
	"/rentloop.v1.OrderService/CreateOrder":         SecurityAccess,
	"/rentloop.v1.OrderService/ExecuteAction":       SecurityAccess,
	"/rentloop.v1.OrderService/GetOrder":            SecurityAccess,
	"/rentloop.v1.OrderService/ListActivityLog":     SecurityAccess,
	"/rentloop.v1.OrderService/GetAvailableActions": SecurityAccess,
	"/rentloop.v1.OrderService/ListMilestones":      SecurityAccess,
	"/rentloop.v1.OrderService/PayMilestone":        SecurityAccess,
}

// GetSecurityLevel returns the security level for a given method
func GetSecurityLevel(method string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[method]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
