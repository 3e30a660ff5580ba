package transport

import (
	"testing"
	"time"

	"github.com/google/gousb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nixxel-company-limited/escpos-print-bridge/printerr"
)

func TestParseUSBAddress(t *testing.T) {
	testCases := []struct {
		in      string
		want    USBAddress
		wantErr bool
	}{
		{"auto", USBAddress{Auto: true}, false},
		{"", USBAddress{Auto: true}, false},
		{"04b8:0202", USBAddress{Vendor: 0x04b8, Product: 0x0202}, false},
		{"0x0519:0x0001", USBAddress{Vendor: 0x0519, Product: 0x0001}, false},
		{"04b8:0202/J7NF012345", USBAddress{Vendor: 0x04b8, Product: 0x0202, Serial: "J7NF012345"}, false},
		{"04b8", USBAddress{}, true},
		{"zzzz:0202", USBAddress{}, true},
		{"04b8:10000", USBAddress{}, true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseUSBAddress(tc.in)
			if tc.wantErr {
				var connErr *printerr.ConnectionError
				require.ErrorAs(t, err, &connErr)
				assert.Equal(t, printerr.InvalidAddress, connErr.Kind)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestUSBAddressString(t *testing.T) {
	assert.Equal(t, "auto", USBAddress{Auto: true}.String())
	assert.Equal(t, "04b8:0202", USBAddress{Vendor: 0x04b8, Product: 0x0202}.String())
	assert.Equal(t, "04b8:0202/SN1", USBAddress{Vendor: 0x04b8, Product: 0x0202, Serial: "SN1"}.String())
}

func TestIsPrinterNil(t *testing.T) {
	assert.False(t, IsPrinter(nil))
}

func TestPrinterInterfaceIn(t *testing.T) {
	iface := func(num int, classes ...gousb.Class) gousb.InterfaceDesc {
		d := gousb.InterfaceDesc{Number: num}
		for i, c := range classes {
			d.AltSettings = append(d.AltSettings, gousb.InterfaceSetting{Number: num, Alternate: i, Class: c})
		}
		return d
	}

	testCases := []struct {
		name    string
		cfg     gousb.ConfigDesc
		wantNum int
		wantOK  bool
	}{
		{"printer only", gousb.ConfigDesc{Interfaces: []gousb.InterfaceDesc{iface(0, gousb.ClassPrinter)}}, 0, true},
		{"printer after hid", gousb.ConfigDesc{Interfaces: []gousb.InterfaceDesc{iface(0, gousb.ClassHID), iface(1, gousb.ClassPrinter)}}, 1, true},
		{"printer alt setting", gousb.ConfigDesc{Interfaces: []gousb.InterfaceDesc{iface(2, gousb.ClassVendorSpec, gousb.ClassPrinter)}}, 2, true},
		{"audio and hub", gousb.ConfigDesc{Interfaces: []gousb.InterfaceDesc{iface(0, gousb.ClassAudio), iface(1, gousb.ClassHub)}}, 0, false},
		{"no interfaces", gousb.ConfigDesc{}, 0, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			num, ok := printerInterfaceIn(tc.cfg)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.wantNum, num)
		})
	}
}

func TestFindPrinters(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	printers := FindPrinters(ctx)
	if len(printers) == 0 {
		t.Skip("No USB printers found")
	}

	t.Logf("Found %d printer(s)", len(printers))
	for _, printer := range printers {
		assert.True(t, IsPrinter(printer))
		printer.Close()
	}
}

func TestGetDeviceByVIDPID(t *testing.T) {
	ctx := gousb.NewContext()
	defer ctx.Close()

	_, err := GetDeviceByVIDPID(ctx, 0xFFFF, 0xFFFF)
	assert.Error(t, err)
}

func TestUSBOpenUnknownDevice(t *testing.T) {
	usb := NewUSBTransport(zap.NewNop(), time.Second)

	_, err := usb.Open("ffff:ffff", 5*time.Second)

	var connErr *printerr.ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, "usb", connErr.Transport)
}

func TestUSBOpenWriteClose(t *testing.T) {
	ctx := gousb.NewContext()
	printers := FindPrinters(ctx)
	for _, p := range printers {
		p.Close()
	}
	ctx.Close()
	if len(printers) == 0 {
		t.Skip("No USB printer found, skipping test")
	}

	usb := NewUSBTransport(zap.NewNop(), 5*time.Second)
	conn, err := usb.Open("auto", 5*time.Second)
	require.NoError(t, err)

	// ESC @ (Initialize printer)
	n, err := conn.Write([]byte{0x1B, 0x40})
	assert.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, conn.Close())
}
