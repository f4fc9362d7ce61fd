package page

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPRefresher_Trigger(t *testing.T) {
	var gotPath, gotTrigger, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotTrigger = r.Header.Get("HX-Trigger-Name")
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("<tr>3 orders</tr>"))
	}))
	defer srv.Close()

	doc := NewDocument(Element{ID: "orders-table", Group: GroupOrders, Source: "/orders"})
	r := NewHTTPRefresher(srv.URL+"/", "tok", doc)

	if err := r.Trigger(context.Background(), doc.QueryGroup(GroupOrders), RefreshEvent); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if gotPath != "/orders" {
		t.Errorf("path = %q, want /orders", gotPath)
	}
	if gotTrigger != RefreshEvent {
		t.Errorf("HX-Trigger-Name = %q", gotTrigger)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if got := doc.ByID("orders-table").Content; got != "<tr>3 orders</tr>" {
		t.Errorf("content = %q", got)
	}
}

func TestHTTPRefresher_ErrorStatusKeepsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	doc := NewDocument(Element{ID: "nodes-table", Group: GroupNodes, Source: "/nodes", Content: "old"})
	r := NewHTTPRefresher(srv.URL, "", doc)
	if err := r.Trigger(context.Background(), doc.ByID("nodes-table"), RefreshEvent); err == nil {
		t.Fatal("expected error for 500 response")
	}
	if got := doc.ByID("nodes-table").Content; got != "old" {
		t.Errorf("content = %q, want old content kept", got)
	}
}

func TestHTTPRefresher_NoSource(t *testing.T) {
	doc := NewDocument(Element{ID: "x", Group: GroupNodes})
	r := NewHTTPRefresher("http://127.0.0.1:0", "", doc)
	if err := r.Trigger(context.Background(), doc.ByID("x"), RefreshEvent); err != nil {
		t.Fatalf("Trigger without source: %v", err)
	}
}
