package api

import "sync"

// EncodeStore keeps the most recent encode responses so clients can fetch
// them again by id. The oldest entry is evicted once capacity is reached.
type EncodeStore struct {
	mu        sync.Mutex
	capacity  int
	order     []string
	responses map[string]EncodeResponse
}

func NewEncodeStore(capacity int) *EncodeStore {
	if capacity <= 0 {
		capacity = 64
	}
	return &EncodeStore{
		capacity:  capacity,
		responses: make(map[string]EncodeResponse),
	}
}

func (s *EncodeStore) Put(resp EncodeResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[resp.ID]; !ok {
		s.order = append(s.order, resp.ID)
	}
	s.responses[resp.ID] = resp
	for len(s.order) > s.capacity {
		delete(s.responses, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *EncodeStore) Get(id string) (EncodeResponse, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	resp, ok := s.responses[id]
	return resp, ok
}

func (s *EncodeStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.responses[id]; !ok {
		return false
	}
	delete(s.responses, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *EncodeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.responses)
}
