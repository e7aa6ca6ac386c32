package notebooklm

import (
	"context"
	"fmt"
	"time"

	"github.com/PabloGalante/kbrelay/internal/domain"
)

// MockConnector stands in for NotebookLM during local runs. Its connections
// echo the prompt back after Latency.
type MockConnector struct {
	Latency time.Duration
}

func NewMockConnector(latency time.Duration) *MockConnector {
	return &MockConnector{Latency: latency}
}

func (m *MockConnector) Connect(context.Context, string) (domain.Connection, error) {
	return &MockConnection{latency: m.Latency}, nil
}

type MockConnection struct {
	latency time.Duration
}

func (m *MockConnection) KeepSessionOpen(context.Context) error { return nil }

func (m *MockConnection) RefreshAuth(context.Context) error { return nil }

func (m *MockConnection) ListSources(context.Context, string) ([]domain.SourceID, error) {
	return []domain.SourceID{"mock-source-1", "mock-source-2"}, nil
}

func (m *MockConnection) Ask(ctx context.Context, notebookID, prompt string, sourceIDs []domain.SourceID) (string, error) {
	if m.latency > 0 {
		select {
		case <-time.After(m.latency):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return fmt.Sprintf("（模擬回答）notebook %s, %d sources: %s", notebookID, len(sourceIDs), prompt), nil
}
