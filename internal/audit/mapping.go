package audit

import "strings"

// ActionResource holds action and resource derived from a gRPC full method name.
type ActionResource struct {
	Action   string
	Resource string
}

// unaudited lists methods that carry no security meaning.
var unaudited = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
	"/grpc.health.v1.Health/List":  true,
}

// ShouldAudit reports whether calls to fullMethod are written to the audit log.
func ShouldAudit(fullMethod string) bool {
	return !unaudited[fullMethod] && !strings.HasPrefix(fullMethod, "/grpc.reflection.")
}

// ParseFullMethod maps a gRPC full method (e.g. /tenantiam.session.v1.SessionService/RevokeSession)
// to an action verb and a resource derived from the service name.
func ParseFullMethod(fullMethod string) ActionResource {
	slash := strings.LastIndex(fullMethod, "/")
	if slash < 0 {
		return ActionResource{Action: "unknown", Resource: "unknown"}
	}
	method := fullMethod[slash+1:]
	beforeSlash := fullMethod[:slash]
	dot := strings.LastIndex(beforeSlash, ".")
	if dot < 0 {
		return ActionResource{Action: strings.ToLower(method), Resource: "unknown"}
	}
	return ActionResource{Action: methodToAction(method), Resource: serviceToResource(beforeSlash[dot+1:])}
}

func serviceToResource(serviceName string) string {
	s := strings.TrimSuffix(serviceName, "Service")
	if s == "" {
		return "unknown"
	}
	return strings.ToLower(s[0:1]) + s[1:]
}

var actionPrefixes = []struct{ prefix, action string }{
	{"Get", "get"},
	{"List", "list"},
	{"Create", "create"},
	{"Update", "update"},
	{"Delete", "delete"},
	{"Register", "register"},
	{"Login", "login"},
	{"Logout", "logout"},
	{"Refresh", "refresh"},
	{"Revoke", "revoke"},
	{"Suspend", "suspend"},
	{"Activate", "activate"},
	{"Reset", "reset"},
	{"Request", "request"},
	{"Enable", "enable"},
	{"Setup", "setup"},
	{"Verify", "verify"},
	{"Disable", "disable"},
}

func methodToAction(method string) string {
	for _, p := range actionPrefixes {
		if strings.HasPrefix(method, p.prefix) && method != p.prefix {
			return p.action
		}
	}
	return strings.ToLower(method)
}
