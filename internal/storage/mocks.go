package storage

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// MockBarStorage is a mock implementation of BarStorage for testing
type MockBarStorage struct {
	Rows        []data.RawRow
	Instruments map[string]models.Instrument
	Written     []*models.InstrumentSeries
	LoadErr     error
	WriteErr    error
}

func (m *MockBarStorage) LoadRawBars(ctx context.Context) ([]data.RawRow, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Rows, nil
}

func (m *MockBarStorage) LoadInstruments(ctx context.Context) (map[string]models.Instrument, error) {
	if m.LoadErr != nil {
		return nil, m.LoadErr
	}
	return m.Instruments, nil
}

func (m *MockBarStorage) WriteSeries(ctx context.Context, series []*models.InstrumentSeries) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	m.Written = append(m.Written, series...)
	return nil
}

func (m *MockBarStorage) WriteInstruments(ctx context.Context, instruments []models.Instrument) error {
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if m.Instruments == nil {
		m.Instruments = make(map[string]models.Instrument)
	}
	for _, inst := range instruments {
		m.Instruments[inst.Code] = inst
	}
	return nil
}

func (m *MockBarStorage) Close() error {
	return nil
}

// MockRedisClient is a mock implementation of RedisClient for testing
type MockRedisClient struct {
	mu         sync.Mutex
	Data       map[string]string
	ZSets      map[string]map[string]float64
	TTLs       map[string]time.Duration
	Published  []PubSubMessage
	PublishErr error
	GetErr     error
	SetErr     error
	ZAddErr    error
}

// PubSubMessage is a message captured by MockRedisClient.Publish
type PubSubMessage struct {
	Channel string
	Message string
}

func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		Data:  make(map[string]string),
		ZSets: make(map[string]map[string]float64),
		TTLs:  make(map[string]time.Duration),
	}
}

func (m *MockRedisClient) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	// Marshal to JSON like the real implementation
	jsonData, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Data[key] = string(jsonData)
	if ttl > 0 {
		m.TTLs[key] = ttl
	}
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Data[key], nil
}

func (m *MockRedisClient) ReplaceRanking(ctx context.Context, key string, members map[string]float64, ttl time.Duration) error {
	if m.ZAddErr != nil {
		return m.ZAddErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[string]float64, len(members))
	for member, score := range members {
		set[member] = score
	}
	m.ZSets[key] = set
	if ttl > 0 {
		m.TTLs[key] = ttl
	}
	return nil
}

func (m *MockRedisClient) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	members := make([]ZMember, 0, len(m.ZSets[key]))
	for member, score := range m.ZSets[key] {
		members = append(members, ZMember{Member: member, Score: score})
	}
	// Redis orders equal scores lexicographically, reversed for ZREVRANGE
	sort.Slice(members, func(i, j int) bool {
		if members[i].Score != members[j].Score {
			return members[i].Score > members[j].Score
		}
		return members[i].Member > members[j].Member
	})

	n := int64(len(members))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []ZMember{}, nil
	}
	return members[start : stop+1], nil
}

func (m *MockRedisClient) Publish(ctx context.Context, channel string, message interface{}) error {
	if m.PublishErr != nil {
		return m.PublishErr
	}
	jsonData, err := json.Marshal(message)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Published = append(m.Published, PubSubMessage{Channel: channel, Message: string(jsonData)})
	return nil
}

func (m *MockRedisClient) Close() error {
	return nil
}
