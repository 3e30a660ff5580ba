package printer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nixxel-company-limited/escpos-print-bridge/escpos"
	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
	"github.com/nixxel-company-limited/escpos-print-bridge/profile"
	"github.com/nixxel-company-limited/escpos-print-bridge/transport"
)

func newProfile(kind transport.Kind, addr string, endpoints map[transport.Kind]string) *profile.Profile {
	return &profile.Profile{
		Printer: profile.PrinterInfo{
			ID:      "front-desk",
			Name:    "Front Desk",
			Address: addr,
			Type:    kind,
		},
		PaperWidth: escpos.Width58mm,
		Endpoints:  endpoints,
	}
}

func TestResolve(t *testing.T) {
	testCases := []struct {
		name       string
		profile    *profile.Profile
		discovered []profile.PrinterInfo
		preferred  transport.Kind
		want       []Candidate
	}{
		{
			name:    "LANOnly",
			profile: newProfile(transport.LAN, "192.168.1.50:9100", nil),
			want:    []Candidate{{transport.LAN, "192.168.1.50:9100"}},
		},
		{
			name: "USBPreferenceIgnored",
			profile: newProfile(transport.Bluetooth, "DD:0D:30:02:63:42", map[transport.Kind]string{
				transport.LAN: "192.168.1.50:9100",
			}),
			preferred: transport.USB,
			want: []Candidate{
				{transport.Bluetooth, "DD:0D:30:02:63:42"},
				{transport.LAN, "192.168.1.50:9100"},
			},
		},
		{
			name: "PreferredFirst",
			profile: newProfile(transport.Bluetooth, "DD:0D:30:02:63:42", map[transport.Kind]string{
				transport.USB: "04b8:0202",
				transport.LAN: "192.168.1.50",
			}),
			preferred: transport.LAN,
			want: []Candidate{
				{transport.LAN, "192.168.1.50"},
				{transport.Bluetooth, "DD:0D:30:02:63:42"},
				{transport.USB, "04b8:0202"},
			},
		},
		{
			name:    "FixedOrder",
			profile: newProfile(transport.LAN, "10.0.0.7", map[transport.Kind]string{transport.USB: "auto"}),
			want: []Candidate{
				{transport.USB, "auto"},
				{transport.LAN, "10.0.0.7"},
			},
		},
		{
			name:    "Discovered",
			profile: newProfile(transport.LAN, "10.0.0.7", nil),
			discovered: []profile.PrinterInfo{
				{ID: "front-desk", Address: "04b8:0202", Type: transport.USB},
				{ID: "other", Name: "Bar", Address: "AA:BB:CC:DD:EE:FF", Type: transport.Bluetooth},
				{Name: "front desk", Address: "10.0.0.99", Type: transport.LAN},
			},
			want: []Candidate{
				{transport.USB, "04b8:0202"},
				{transport.LAN, "10.0.0.7"},
			},
		},
		{
			name: "ProfileEndpointBeatsDiscovery",
			profile: newProfile(transport.LAN, "10.0.0.7", map[transport.Kind]string{
				transport.USB: "0519:0001",
			}),
			discovered: []profile.PrinterInfo{{ID: "front-desk", Address: "04b8:0202", Type: transport.USB}},
			want: []Candidate{
				{transport.USB, "0519:0001"},
				{transport.LAN, "10.0.0.7"},
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Resolve(tc.profile, tc.discovered, tc.preferred)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestResolveNoCandidates(t *testing.T) {
	_, err := Resolve(nil, nil, "")
	assert.True(t, printerr.IsConfig(err, printerr.NoPrinterConfigured))

	_, err = Resolve(newProfile(transport.LAN, "  ", nil), nil, transport.LAN)
	assert.True(t, printerr.IsConfig(err, printerr.NoPrinterConfigured))
}
