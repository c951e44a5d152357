package server

import (
	"io"
	"net/http"
	"syscall"
	"testing"
	"time"
)

func TestServerStartsAndResponds(t *testing.T) {
	srv := New(Config{
		Addr: "127.0.0.1:0",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("ok"))
		}),
		DrainTimeout: 5 * time.Second,
	})

	go func() {
		time.Sleep(200 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}()

	// Blocks until the signal drives shutdown
	if err := srv.ListenAndServe(); err != nil {
		t.Fatalf("serve failed: %v", err)
	}
}

func TestServerDrainsInFlightRequests(t *testing.T) {
	requestStarted := make(chan struct{})
	requestDone := make(chan struct{})

	srv := New(Config{
		Addr: "127.0.0.1:19876",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(requestStarted)
			time.Sleep(500 * time.Millisecond) // a slow workflow run
			w.Write([]byte("completed"))
			close(requestDone)
		}),
		DrainTimeout: 5 * time.Second,
	})

	go srv.ListenAndServe()
	time.Sleep(100 * time.Millisecond) // wait for the listener

	go func() {
		resp, err := http.Get("http://127.0.0.1:19876/run")
		if err != nil {
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		if string(body) != "completed" {
			t.Errorf("expected 'completed', got %q", string(body))
		}
	}()

	<-requestStarted
	syscall.Kill(syscall.Getpid(), syscall.SIGINT)

	// The in-flight request must finish despite the shutdown signal.
	select {
	case <-requestDone:
	case <-time.After(3 * time.Second):
		t.Fatal("in-flight request should have completed during drain")
	}
}

type testCloser struct {
	closed bool
}

func (tc *testCloser) Close() error {
	tc.closed = true
	return nil
}

func TestServerClosesResources(t *testing.T) {
	c1 := &testCloser{}
	c2 := &testCloser{}

	srv := New(Config{
		Addr: "127.0.0.1:19877",
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
		DrainTimeout: time.Second,
	})
	srv.RegisterCloser(c1)
	srv.RegisterCloser(c2)

	go func() {
		time.Sleep(100 * time.Millisecond)
		syscall.Kill(syscall.Getpid(), syscall.SIGINT)
	}()

	srv.ListenAndServe()

	if !c1.closed || !c2.closed {
		t.Fatal("all registered resources should be closed on shutdown")
	}
}
