package utils

import "strings"

// ServiceInstanceName joins a raw instance label and a service type into the
// full DNS-SD instance name, e.g. ("HP LaserJet", "_ipp._tcp.local") ->
// "HP LaserJet._ipp._tcp.local".
func ServiceInstanceName(instance, service string) string {
	return EscapeLabel(instance) + "." + TrimDot(service)
}

// InstanceLabel extracts the raw instance label from a full instance name that
// lives directly under service. The comparison is case-insensitive; the returned
// label keeps its original case.
func InstanceLabel(fullName, service string) (string, bool) {
	fullName = TrimDot(fullName)
	suffix := "." + CanonicalDNSName(service)
	if len(fullName) <= len(suffix) || !strings.HasSuffix(strings.ToLower(fullName), suffix) {
		return "", false
	}
	prefix := fullName[:len(fullName)-len(suffix)]
	labels := SplitLabels(prefix)
	if len(labels) != 1 {
		return "", false
	}
	return labels[0], true
}

// IsServiceType reports whether name has the DNS-SD service type shape
// "_service._tcp.<domain>" or "_service._udp.<domain>".
func IsServiceType(name string) bool {
	labels := SplitLabels(CanonicalDNSName(name))
	if len(labels) < 3 {
		return false
	}
	svc, proto := labels[0], labels[1]
	if len(svc) < 2 || svc[0] != '_' || len(svc) > 16 {
		return false
	}
	return proto == "_tcp" || proto == "_udp"
}
