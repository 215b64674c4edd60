package rpcserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type stubFacade struct {
	shutdowns int
}

func (s *stubFacade) Name() string { return "stub" }

func (s *stubFacade) Shutdown() { s.shutdowns++ }

func (s *stubFacade) Methods() map[string]Handler {
	return map[string]Handler{
		"stubEcho": func(p Params) (any, error) {
			msg, err := p.String(0)
			if err != nil {
				return nil, err
			}
			return msg, nil
		},
		"stubSentinel": func(p Params) (any, error) {
			// facade-level failures collapse to a sentinel, not an RPC error
			return false, nil
		},
	}
}

func call(t *testing.T, s *Server, body string) response {
	t.Helper()
	req := httptest.NewRequest("POST", "/rpc", strings.NewReader(body))
	recorder := httptest.NewRecorder()
	s.handleRPC(recorder, req)
	resp := recorder.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("non-200 status: %d", resp.StatusCode)
	}
	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatal(err)
	}
	return decoded
}

func newTestServer(t *testing.T) (*Server, *stubFacade) {
	t.Helper()
	s := New(":0")
	facade := &stubFacade{}
	if err := s.Register(facade); err != nil {
		t.Fatal(err)
	}
	return s, facade
}

func TestDispatch(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, `{"id":1,"method":"stubEcho","params":["hi"]}`)
	if resp.Error != nil {
		t.Fatalf("unexpected error: %s", *resp.Error)
	}
	if resp.Result != "hi" {
		t.Fatalf("result = %v", resp.Result)
	}
	if string(resp.ID) != "1" {
		t.Fatalf("id = %s", resp.ID)
	}
}

func TestUnknownMethodIsRPCError(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, `{"id":2,"method":"noSuchMethod","params":[]}`)
	if resp.Error == nil {
		t.Fatal("expected an error for an unknown method")
	}
	if resp.Result != nil {
		t.Fatalf("result should be null, got %v", resp.Result)
	}
}

func TestMalformedParamsIsRPCError(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, `{"id":3,"method":"stubEcho","params":[42]}`)
	if resp.Error == nil {
		t.Fatal("expected an error for malformed params")
	}
}

func TestSentinelResultIsNotAnError(t *testing.T) {
	s, _ := newTestServer(t)
	resp := call(t, s, `{"id":4,"method":"stubSentinel","params":[]}`)
	if resp.Error != nil {
		t.Fatalf("sentinel result produced an RPC error: %s", *resp.Error)
	}
	if resp.Result != false {
		t.Fatalf("result = %v, want false", resp.Result)
	}
}

func TestDuplicateMethodRegistration(t *testing.T) {
	s, _ := newTestServer(t)
	if err := s.Register(&stubFacade{}); err == nil {
		t.Fatal("duplicate registration succeeded")
	}
}

func TestMalformedRequestBody(t *testing.T) {
	s, _ := newTestServer(t)
	req := httptest.NewRequest("POST", "/rpc", strings.NewReader("{not json"))
	recorder := httptest.NewRecorder()
	s.handleRPC(recorder, req)
	if recorder.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", recorder.Result().StatusCode)
	}
}

func TestConcurrentCalls(t *testing.T) {
	s, _ := newTestServer(t)
	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			body := fmt.Sprintf(`{"id":%d,"method":"stubEcho","params":["m%d"]}`, n, n)
			req := httptest.NewRequest("POST", "/rpc", strings.NewReader(body))
			recorder := httptest.NewRecorder()
			s.handleRPC(recorder, req)
			var resp response
			if err := json.NewDecoder(recorder.Result().Body).Decode(&resp); err != nil {
				t.Errorf("decode: %v", err)
				return
			}
			if resp.Result != fmt.Sprintf("m%d", n) {
				t.Errorf("result = %v", resp.Result)
			}
		}(i)
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}
