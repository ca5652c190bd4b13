package main

import "testing"

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr     string
		fallback int
		want     int
	}{
		{"127.0.0.1:32184", 1, 32184},
		{"0.0.0.0:8080", 32184, 8080},
		{"[::1]:9000", 32184, 9000},
		{"no-port-here", 32184, 32184},
		{"localhost:notaport", 32184, 32184},
		{"localhost:0", 32184, 32184},
	}

	for _, tt := range tests {
		if got := listenPort(tt.addr, tt.fallback); got != tt.want {
			t.Errorf("listenPort(%q, %d) = %d, want %d", tt.addr, tt.fallback, got, tt.want)
		}
	}
}
