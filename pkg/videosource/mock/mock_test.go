package mock_test

import (
	"context"
	"errors"
	"testing"

	"github.com/chaffee-dev/chaffee-ingest/pkg/types"
	"github.com/chaffee-dev/chaffee-ingest/pkg/videosource/mock"
)

func TestLister_ReturnsConfiguredResult(t *testing.T) {
	want := []types.VideoReference{{VideoID: "abc"}}
	l := &mock.Lister{ListResult: want}

	got, err := l.List(context.Background(), 5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(got) != 1 || got[0].VideoID != "abc" {
		t.Errorf("List() = %+v, want %+v", got, want)
	}
	if len(l.ListCalls) != 1 || l.ListCalls[0].Limit != 5 {
		t.Errorf("ListCalls = %+v, want one call with Limit=5", l.ListCalls)
	}
}

func TestLister_ReturnsConfiguredError(t *testing.T) {
	wantErr := errors.New("boom")
	l := &mock.Lister{ListErr: wantErr}

	_, err := l.List(context.Background(), 0)
	if !errors.Is(err, wantErr) {
		t.Errorf("List() error = %v, want %v", err, wantErr)
	}
}

func TestLister_Reset(t *testing.T) {
	l := &mock.Lister{}
	l.List(context.Background(), 1)
	l.Reset()
	if len(l.ListCalls) != 0 {
		t.Errorf("ListCalls after Reset = %d, want 0", len(l.ListCalls))
	}
}
