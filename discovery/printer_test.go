package discovery

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestParsePrinterInfo(t *testing.T) {
	h := ServiceHandle{
		Instance: "HP_LaserJet",
		Service:  ServiceIPP,
		Name:     "hp_laserjet._ipp._tcp.local",
		Host:     "hp.local",
		Port:     631,
		Resolved: true,
		TXT: map[string]string{
			"txtvers":  "1",
			"rp":       "ipp/print",
			"ty":       "HP LaserJet Pro M404",
			"product":  "(HP LaserJet Pro M404)",
			"pdl":      "application/pdf, image/urf,application/postscript",
			"note":     "2nd floor",
			"adminurl": "http://hp.local/",
			"priority": "25",
			"uuid":     "564e4333-4230-3838-3335-a0481c4d6f2e",
			"color":    "F",
			"duplex":   "T",
			"tls":      "1.2",
		},
	}

	p := ParsePrinterInfo(h)
	assert.Equal(t, "HP_LaserJet", p.Name)
	assert.Equal(t, 1, p.TXTVers)
	assert.Equal(t, "ipp/print", p.Queue)
	assert.Equal(t, "HP LaserJet Pro M404", p.Model)
	assert.Equal(t, "HP LaserJet Pro M404", p.Product)
	assert.Equal(t, []string{"application/pdf", "image/urf", "application/postscript"}, p.PDL)
	assert.Equal(t, "2nd floor", p.Note)
	assert.Equal(t, 25, p.Priority)
	assert.Equal(t, uuid.MustParse("564e4333-4230-3838-3335-a0481c4d6f2e"), p.UUID)
	assert.False(t, p.Color)
	assert.True(t, p.Duplex)
	assert.Equal(t, "1.2", p.TLS)
	assert.True(t, p.Supports("IMAGE/URF"))
	assert.False(t, p.Supports("application/vnd.hp-pcl"))

	assert.Equal(t, "ipp://hp.local:631/ipp/print", PrinterURI(h))
}

func TestParsePrinterInfo_Defaults(t *testing.T) {
	p := ParsePrinterInfo(ServiceHandle{TXT: map[string]string{"uuid": "not-a-uuid", "priority": "high"}})
	assert.Equal(t, uuid.Nil, p.UUID)
	assert.Equal(t, 50, p.Priority)
	assert.Empty(t, p.PDL)
}

func TestPrinterURI(t *testing.T) {
	tests := []struct {
		name string
		h    ServiceHandle
		want string
	}{
		{"ipps", ServiceHandle{Service: ServiceIPPS, Host: "hp.local", Port: 443, Resolved: true, TXT: map[string]string{"rp": "/ipp/print"}}, "ipps://hp.local:443/ipp/print"},
		{"lpd", ServiceHandle{Service: ServiceLPD, Host: "hp.local", Port: 515, Resolved: true, TXT: map[string]string{"rp": "auto"}}, "lpd://hp.local:515/auto"},
		{"lpd default queue", ServiceHandle{Service: ServiceLPD, Host: "hp.local", Port: 515, Resolved: true}, "lpd://hp.local:515/"},
		{"raw socket", ServiceHandle{Service: ServiceRaw, Host: "hp.local", Port: 9100, Resolved: true}, "socket://hp.local:9100"},
		{"unknown service", ServiceHandle{Service: "_scanner._tcp.local", Host: "hp.local", Port: 80, Resolved: true}, ""},
		{"unresolved", ServiceHandle{Service: ServiceIPP}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PrinterURI(tt.h))
		})
	}
}
