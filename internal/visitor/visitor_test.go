package visitor

import (
	"errors"
	"net/http/httptest"
	"os"
	"testing"
)

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		header map[string]string
		remote string
		want   string
	}{
		{"forwarded-for first hop", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.2:1234", "203.0.113.7"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.4"}, "10.0.0.2:1234", "198.51.100.4"},
		{"forwarded rfc7239", map[string]string{"Forwarded": `for="[2001:db8::1]";proto=https`}, "10.0.0.2:1234", "2001:db8::1"},
		{"remote addr", nil, "192.0.2.10:5555", "192.0.2.10"},
		{"remote ipv6", nil, "[2001:db8::2]:443", "2001:db8::2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/locate", nil)
			r.RemoteAddr = tc.remote
			for k, v := range tc.header {
				r.Header.Set(k, v)
			}
			if got := ClientIP(r); got != tc.want {
				t.Errorf("ClientIP = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestOpenDisabled(t *testing.T) {
	l, err := Open("")
	if l != nil || err != nil {
		t.Errorf("Open(\"\") = %v, %v", l, err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil Close: %v", err)
	}
	if _, err := Open("/nonexistent/GeoLite2-City.mmdb"); err == nil {
		t.Errorf("expected error for missing file")
	}
}

// 需要 GeoLite2-City 库：设置 GEOIP_TEST_DB 后运行
func TestLocate(t *testing.T) {
	path := os.Getenv("GEOIP_TEST_DB")
	if path == "" {
		t.Skip("GEOIP_TEST_DB not set")
	}
	l, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := l.Locate("127.0.0.1"); !errors.Is(err, ErrNoLocation) {
		t.Errorf("loopback err = %v", err)
	}
	if _, err := l.Locate("not-an-ip"); err == nil {
		t.Errorf("expected parse error")
	}
	if h, err := l.Locate("8.8.8.8"); err != nil || (h.Lat == 0 && h.Lon == 0) {
		t.Errorf("Locate(8.8.8.8) = %+v, %v", h, err)
	}
}
