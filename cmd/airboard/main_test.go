package main

import "testing"

func TestListenPort(t *testing.T) {
	tests := []struct {
		addr    string
		want    int
		wantErr bool
	}{
		{":8080", 8080, false},
		{"127.0.0.1:9000", 9000, false},
		{"8080", 0, true},
		{":http", 0, true},
	}
	for _, tt := range tests {
		got, err := listenPort(tt.addr)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("listenPort(%q) = %d, %v", tt.addr, got, err)
		}
	}
}

func TestBoardURL(t *testing.T) {
	tests := map[string]string{
		":8080":          "http://localhost:8080",
		"0.0.0.0:9000":   "http://localhost:9000",
		"10.0.0.2:8081":  "http://10.0.0.2:8081",
		"not-an-address": "http://localhost:8080",
	}
	for addr, want := range tests {
		if got := boardURL(addr); got != want {
			t.Errorf("boardURL(%q) = %q, want %q", addr, got, want)
		}
	}
}
