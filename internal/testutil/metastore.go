package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/vertigo15/docengine/internal/docmodel"
)

// FakeMetaStore is an in-memory MetaStore for tests.
type FakeMetaStore struct {
	mu        sync.Mutex
	Documents map[string]*docmodel.Document
	Settings  map[string]string
	Results   map[string]*docmodel.QueryResult
}

func NewFakeMetaStore() *FakeMetaStore {
	return &FakeMetaStore{
		Documents: map[string]*docmodel.Document{},
		Settings:  map[string]string{},
		Results:   map[string]*docmodel.QueryResult{},
	}
}

func (f *FakeMetaStore) GetDocument(_ context.Context, id string) (*docmodel.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.Documents[id]
	if !ok {
		return nil, fmt.Errorf("testutil: document %q not found", id)
	}
	cp := *d
	return &cp, nil
}

func (f *FakeMetaStore) PutDocument(_ context.Context, doc *docmodel.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *doc
	f.Documents[doc.ID] = &cp
	return nil
}

func (f *FakeMetaStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.Settings[key]
	return v, ok, nil
}

func (f *FakeMetaStore) PutSetting(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Settings[key] = value
	return nil
}

func (f *FakeMetaStore) PutQueryResult(_ context.Context, result *docmodel.QueryResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *result
	f.Results[result.QueryID] = &cp
	return nil
}
