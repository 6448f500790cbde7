package discovery

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/haukened/rr-mdns/internal/mdns/common/utils"
)

// Well-known printer service types (Bonjour Printing 1.2).
const (
	ServiceLPD  = "_printer._tcp.local"
	ServiceIPP  = "_ipp._tcp.local"
	ServiceIPPS = "_ipps._tcp.local"
	ServiceRaw  = "_pdl-datastream._tcp.local"
)

// PrinterInfo is the printer description carried in a Bonjour printer's TXT
// record. Missing keys leave fields at their zero value.
type PrinterInfo struct {
	Name     string // instance label
	Host     string
	Port     uint16
	TXTVers  int
	Queue    string   // rp
	Model    string   // ty
	Product  string   // product, without the surrounding parentheses
	PDL      []string // pdl, MIME types
	Note     string   // note, usually the location
	AdminURL string
	Priority int
	UUID     uuid.UUID
	Color    bool
	Duplex   bool
	TLS      string // TLS version offered, e.g. "1.2"
}

// ParsePrinterInfo decodes the printer TXT keys of h. Keys are matched
// case-insensitively; malformed numeric or UUID values are skipped.
func ParsePrinterInfo(h ServiceHandle) PrinterInfo {
	txt := h.TXT
	p := PrinterInfo{
		Name:     h.Instance,
		Host:     h.Host,
		Port:     h.Port,
		Queue:    txt["rp"],
		Model:    txt["ty"],
		Product:  strings.TrimSuffix(strings.TrimPrefix(txt["product"], "("), ")"),
		Note:     txt["note"],
		AdminURL: txt["adminurl"],
		TLS:      txt["tls"],
		Priority: 50,
	}
	if v, err := strconv.Atoi(txt["txtvers"]); err == nil {
		p.TXTVers = v
	}
	if v, err := strconv.Atoi(txt["priority"]); err == nil {
		p.Priority = v
	}
	if raw := txt["uuid"]; raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			p.UUID = id
		}
	}
	if raw := txt["pdl"]; raw != "" {
		for _, mt := range strings.Split(raw, ",") {
			if mt = strings.TrimSpace(mt); mt != "" {
				p.PDL = append(p.PDL, mt)
			}
		}
	}
	p.Color = txtBool(txt["color"])
	p.Duplex = txtBool(txt["duplex"])
	return p
}

func txtBool(v string) bool {
	return strings.EqualFold(v, "T") || strings.EqualFold(v, "true")
}

// Supports reports whether the printer lists mimeType in its pdl key.
func (p PrinterInfo) Supports(mimeType string) bool {
	for _, mt := range p.PDL {
		if strings.EqualFold(mt, mimeType) {
			return true
		}
	}
	return false
}

// PrinterURI returns the printer URI for a resolved handle, in the form
// CUPS uses: "ipp://hp.local:631/ipp/print", "lpd://hp.local:515/queue" or
// "socket://hp.local:9100". Unknown service types and unresolved handles
// give "".
func PrinterURI(h ServiceHandle) string {
	if !h.Resolved || h.Host == "" {
		return ""
	}
	var scheme string
	switch utils.CanonicalDNSName(h.Service) {
	case ServiceIPP:
		scheme = "ipp"
	case ServiceIPPS:
		scheme = "ipps"
	case ServiceLPD:
		scheme = "lpd"
	case ServiceRaw:
		// raw queues have no queue name
		return (&url.URL{Scheme: "socket", Host: h.Address()}).String()
	default:
		return ""
	}
	queue := strings.TrimPrefix(h.TXT["rp"], "/")
	u := url.URL{Scheme: scheme, Host: h.Address(), Path: "/" + queue}
	return u.String()
}
