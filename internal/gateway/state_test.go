package gateway

import "testing"

func TestStateGuards(t *testing.T) {
	tests := []struct {
		state       State
		handshaking bool
		readable    bool
		writable    bool
		established bool
	}{
		{StateClosed, false, false, false, false},
		{StateListening, false, false, false, false},
		{StateControl, false, false, false, false},
		{StateAccepted, false, false, false, false},
		{StateConnecting, true, false, false, false},
		{StateGreetingSent, true, false, false, false},
		{StateAuthSent, true, false, false, false},
		{StateConnectSent, true, false, false, false},
		{StateRelaying, false, true, true, true},
		{StateReadOnly, false, true, false, true},
		{StateWriteOnly, false, false, true, true},
		{StateDraining, false, false, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.state.String(), func(t *testing.T) {
			if got := tt.state.handshaking(); got != tt.handshaking {
				t.Errorf("handshaking() = %v, want %v", got, tt.handshaking)
			}
			if got := tt.state.readable(); got != tt.readable {
				t.Errorf("readable() = %v, want %v", got, tt.readable)
			}
			if got := tt.state.writable(); got != tt.writable {
				t.Errorf("writable() = %v, want %v", got, tt.writable)
			}
			if got := tt.state.established(); got != tt.established {
				t.Errorf("established() = %v, want %v", got, tt.established)
			}
		})
	}
}
