package stats

import "sync"

// MockProvider records counter values for assertions in tests.
type MockProvider struct {
	mu     sync.Mutex
	Values map[string]int
}

func NewMockProvider() *MockProvider {
	return &MockProvider{Values: make(map[string]int)}
}

func (m *MockProvider) Register(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Values[name]; !ok {
		m.Values[name] = 0
	}
}

func (m *MockProvider) Incr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[name]++
}

func (m *MockProvider) Decr(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Values[name]--
}

func (m *MockProvider) Value(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Values[name]
}
