package serialmux

import (
	"testing"

	"go.bug.st/serial"
)

func TestPortOptions_Normalize_Defaults(t *testing.T) {
	got, err := PortOptions{}.Normalize()
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	want := PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}
	if got != want {
		t.Errorf("Normalize() = %+v, want %+v", got, want)
	}
}

func TestPortOptions_Normalize_Values(t *testing.T) {
	tests := []struct {
		name    string
		in      PortOptions
		want    PortOptions
		wantErr bool
	}{
		{"explicit", PortOptions{BaudRate: 9600, DataBits: 7, StopBits: 2, Parity: "even"}, PortOptions{9600, 7, 2, "E"}, false},
		{"negative baud", PortOptions{BaudRate: -5}, PortOptions{DefaultBaudRate, 8, 1, "N"}, false},
		{"odd parity lowercase", PortOptions{Parity: " o "}, PortOptions{DefaultBaudRate, 8, 1, "O"}, false},
		{"data bits", PortOptions{DataBits: 9}, PortOptions{}, true},
		{"stop bits", PortOptions{StopBits: 3}, PortOptions{}, true},
		{"parity", PortOptions{Parity: "mark"}, PortOptions{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.in.Normalize()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%+v) expected error", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Normalize() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPortOptions_Equal(t *testing.T) {
	if !(PortOptions{}).Equal(PortOptions{BaudRate: DefaultBaudRate, Parity: "none"}) {
		t.Error("defaults should equal their explicit form")
	}
	if (PortOptions{BaudRate: 9600}).Equal(PortOptions{}) {
		t.Error("different baud rates should not be equal")
	}
	if (PortOptions{DataBits: 9}).Equal(PortOptions{DataBits: 9}) {
		t.Error("invalid options are never equal")
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{Parity: "E", StopBits: 2}.SerialMode()
	if err != nil {
		t.Fatalf("SerialMode() error = %v", err)
	}
	if mode.BaudRate != DefaultBaudRate || mode.DataBits != 8 {
		t.Errorf("unexpected mode %+v", mode)
	}
	if mode.Parity != serial.EvenParity {
		t.Errorf("Parity = %v, want EvenParity", mode.Parity)
	}
	if mode.StopBits != serial.TwoStopBits {
		t.Errorf("StopBits = %v, want 2", mode.StopBits)
	}

	if _, err := (PortOptions{DataBits: 4}).SerialMode(); err == nil {
		t.Error("expected error for invalid data bits")
	}
}
