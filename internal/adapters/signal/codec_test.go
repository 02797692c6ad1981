package signal

import (
	"errors"
	"strings"
	"testing"

	"github.com/dkeye/termrelay/internal/domain"
)

func TestDecode(t *testing.T) {
	long := strings.Repeat("x", domain.MaxDeviceIDLen+1)
	tests := []struct {
		name    string
		in      string
		want    domain.Event
		wantErr error
	}{
		{"join device", `{"event":"join","device_id":"d1","type":"device"}`, domain.Join{Device: "d1", Role: domain.RoleDevice}, nil},
		{"join browser", `{"event":"join","device_id":"d1","type":"browser"}`, domain.Join{Device: "d1", Role: domain.RoleBrowser}, nil},
		{"join legacy", `{"event":"join","device_id":"d1"}`, domain.Join{Device: "d1"}, nil},
		{"join odd type", `{"event":"join","device_id":"d1","type":"toaster"}`, domain.Join{Device: "d1"}, nil},
		{"join numeric type", `{"event":"join","device_id":"d1","type":3}`, domain.Join{Device: "d1"}, nil},
		{"leave", `{"event":"leave","device_id":"d1"}`, domain.Leave{Device: "d1"}, nil},
		{"input", `{"event":"input","device_id":"d1","data":"ls\n"}`, domain.Input{Device: "d1", Data: "ls\n"}, nil},
		{"input empty data", `{"event":"input","device_id":"d1"}`, domain.Input{Device: "d1"}, nil},
		{"output", `{"event":"output","device_id":"d1","data":"$ "}`, domain.Output{Device: "d1", Data: "$ "}, nil},
		{"resize", `{"event":"resize","device_id":"d1","cols":80,"rows":24}`, domain.Resize{Device: "d1", Cols: 80, Rows: 24}, nil},

		{"not json", `hello`, nil, ErrMalformedEvent},
		{"unknown event", `{"event":"reboot","device_id":"d1"}`, nil, ErrUnknownEvent},
		{"no event", `{"device_id":"d1"}`, nil, ErrUnknownEvent},
		{"no device", `{"event":"input","data":"x"}`, nil, ErrMalformedEvent},
		{"device too long", `{"event":"join","device_id":"` + long + `"}`, nil, ErrMalformedEvent},
		{"device not string", `{"event":"join","device_id":5}`, nil, ErrMalformedEvent},
		{"resize missing rows", `{"event":"resize","device_id":"d1","cols":80}`, nil, ErrMalformedEvent},
		{"resize zero", `{"event":"resize","device_id":"d1","cols":0,"rows":24}`, nil, ErrMalformedEvent},
		{"resize negative", `{"event":"resize","device_id":"d1","cols":80,"rows":-1}`, nil, ErrMalformedEvent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.in))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %#v, want %#v", got, tt.want)
			}
		})
	}
}
