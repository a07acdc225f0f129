package rpcclient

import (
	"context"
	"sync"

	"github.com/toneloc/ldkboss/internal/types"
)

// RecordedCall captures one mutating call for test assertions.
type RecordedCall struct {
	Method string
	Args   []interface{}
}

// MockClient is an in-memory NodeClient that records every mutating
// call and returns test-seeded data for reads.
type MockClient struct {
	mu sync.Mutex

	NodeInfo types.NodeInfo
	Balances types.Balances
	Channels []types.Channel
	Payments []types.ForwardedPayment

	// Errors, when set, are returned by the matching method instead of
	// performing the (simulated) action.
	Errors map[string]error

	Calls []RecordedCall
}

// NewMockClient returns an empty mock ready to be populated by a test.
func NewMockClient() *MockClient {
	return &MockClient{Errors: map[string]error{}}
}

func (m *MockClient) record(method string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, RecordedCall{Method: method, Args: args})
}

// CallsTo returns every recorded call to the given method name.
func (m *MockClient) CallsTo(method string) []RecordedCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []RecordedCall
	for _, c := range m.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (m *MockClient) GetNodeInfo(ctx context.Context) (types.NodeInfo, error) {
	return m.NodeInfo, m.Errors["GetNodeInfo"]
}

func (m *MockClient) GetBalances(ctx context.Context) (types.Balances, error) {
	return m.Balances, m.Errors["GetBalances"]
}

func (m *MockClient) ListChannels(ctx context.Context) ([]types.Channel, error) {
	return m.Channels, m.Errors["ListChannels"]
}

func (m *MockClient) ListForwardedPayments(ctx context.Context, page *types.PageToken) ([]types.ForwardedPayment, *types.PageToken, error) {
	if err := m.Errors["ListForwardedPayments"]; err != nil {
		return nil, nil, err
	}
	if page != nil {
		return nil, nil, nil
	}
	return m.Payments, nil, nil
}

func (m *MockClient) UpdateChannelConfig(ctx context.Context, userChannelID, counterpartyNodeID string, cfg types.ChannelConfig) error {
	m.record("UpdateChannelConfig", userChannelID, counterpartyNodeID, cfg)
	return m.Errors["UpdateChannelConfig"]
}

func (m *MockClient) ConnectPeer(ctx context.Context, nodeID, address string, persist bool) error {
	m.record("ConnectPeer", nodeID, address, persist)
	return m.Errors["ConnectPeer"]
}

func (m *MockClient) OpenChannel(ctx context.Context, nodeID, address string, amountSats uint64, announce bool) (string, error) {
	m.record("OpenChannel", nodeID, address, amountSats, announce)
	if err := m.Errors["OpenChannel"]; err != nil {
		return "", err
	}
	return "uc-" + nodeID, nil
}

func (m *MockClient) CloseChannel(ctx context.Context, userChannelID, counterpartyNodeID string) error {
	m.record("CloseChannel", userChannelID, counterpartyNodeID)
	return m.Errors["CloseChannel"]
}

func (m *MockClient) ForceCloseChannel(ctx context.Context, userChannelID, counterpartyNodeID, reason string) error {
	m.record("ForceCloseChannel", userChannelID, counterpartyNodeID, reason)
	return m.Errors["ForceCloseChannel"]
}

func (m *MockClient) Bolt11Receive(ctx context.Context, amountMsat uint64, description string, expirySecs uint32) (string, error) {
	m.record("Bolt11Receive", amountMsat, description, expirySecs)
	if err := m.Errors["Bolt11Receive"]; err != nil {
		return "", err
	}
	return "lnbc-mock-invoice", nil
}

func (m *MockClient) Bolt11Send(ctx context.Context, invoice string, amountMsat uint64, params types.RouteParameters) (string, error) {
	m.record("Bolt11Send", invoice, amountMsat, params)
	if err := m.Errors["Bolt11Send"]; err != nil {
		return "", err
	}
	return "payment-mock", nil
}
