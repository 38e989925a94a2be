package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptionsNormaliseDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalise()
	if err != nil {
		t.Fatalf("Normalise returned error: %v", err)
	}
	if opts.BaudRate != DefaultBaudRate || opts.DataBits != 8 || opts.StopBits != 1 || opts.Parity != "N" {
		t.Fatalf("unexpected defaults: %+v", opts)
	}
	if got := opts.String(); got != "9600 8N1" {
		t.Errorf("String() = %q, want %q", got, "9600 8N1")
	}
}

func TestPortOptionsNormaliseParityAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"none", "N"},
		{" even ", "E"},
		{"o", "O"},
	}
	for _, tt := range tests {
		opts, err := PortOptions{Parity: tt.in}.Normalise()
		if err != nil {
			t.Fatalf("Normalise(%q) returned error: %v", tt.in, err)
		}
		if opts.Parity != tt.want {
			t.Errorf("Normalise(%q).Parity = %q, want %q", tt.in, opts.Parity, tt.want)
		}
	}
}

func TestPortOptionsNormaliseRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tt.opts.Normalise(); err == nil {
				t.Errorf("expected error for %+v", tt.opts)
			}
			if _, err := tt.opts.SerialMode(); err == nil {
				t.Errorf("expected SerialMode error for %+v", tt.opts)
			}
		})
	}
}

func TestPortOptionsSerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "E", DataBits: 7}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode returned error: %v", err)
	}
	if mode.BaudRate != 115200 || mode.DataBits != 7 {
		t.Errorf("unexpected mode %+v", mode)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want TwoStopBits", mode.StopBits)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}
}
