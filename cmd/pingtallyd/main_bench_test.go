package main

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
)

// BenchmarkBuildApplication measures the time to construct the full application
func BenchmarkBuildApplication(b *testing.B) {
	quietLogs(b)
	cfg := testConfig(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := buildApplication(cfg); err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkPingRequest measures a counted /ping through the full router.
func BenchmarkPingRequest(b *testing.B) {
	quietLogs(b)
	app, err := buildApplication(testConfig(b))
	if err != nil {
		b.Fatal(err)
	}

	remotes := make([]string, 256)
	for i := range remotes {
		remotes[i] = "10.0.0." + strconv.Itoa(i) + ":40000"
	}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			req.RemoteAddr = remotes[i%len(remotes)]
			app.handler.ServeHTTP(httptest.NewRecorder(), req)
			i++
		}
	})
}
