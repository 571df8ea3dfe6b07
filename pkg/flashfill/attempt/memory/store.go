package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/code-payments/flash-fill/pkg/database/query"
	"github.com/code-payments/flash-fill/pkg/flashfill/attempt"
	"github.com/code-payments/flash-fill/pkg/pointer"
)

type ById []*attempt.Record

func (a ById) Len() int           { return len(a) }
func (a ById) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a ById) Less(i, j int) bool { return a[i].Id < a[j].Id }

type store struct {
	mu      sync.RWMutex
	records []*attempt.Record
	last    uint64
}

func New() attempt.Store {
	return &store{}
}

func (s *store) Save(_ context.Context, data *attempt.Record) error {
	if err := data.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if item := s.findById(data.AttemptId); item != nil {
		if item.Version != data.Version {
			return attempt.ErrStaleVersion
		}

		data.Version++

		item.Slot = data.Slot
		item.State = data.State
		item.ErrorMessage = pointer.StringCopy(data.ErrorMessage)
		item.Version = data.Version

		item.CopyTo(data)
	} else {
		if s.findBySignature(data.Signature) != nil {
			return attempt.ErrExists
		}

		s.last++
		data.Id = s.last
		if data.CreatedAt.IsZero() {
			data.CreatedAt = time.Now()
		}
		data.Version++

		c := data.Clone()
		s.records = append(s.records, &c)
	}

	return nil
}

func (s *store) GetById(_ context.Context, attemptId string) (*attempt.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findById(attemptId)
	if item == nil {
		return nil, attempt.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetBySignature(_ context.Context, signature string) (*attempt.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	item := s.findBySignature(signature)
	if item == nil {
		return nil, attempt.ErrNotFound
	}

	cloned := item.Clone()
	return &cloned, nil
}

func (s *store) GetAllByState(_ context.Context, state attempt.State, cursor query.Cursor, limit uint64, direction query.Ordering) ([]*attempt.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := s.filter(s.findByState(state), cursor, limit, direction)
	if len(res) == 0 {
		return nil, attempt.ErrNotFound
	}
	return cloneRecords(res), nil
}

func (s *store) CountByState(_ context.Context, state attempt.State) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return uint64(len(s.findByState(state))), nil
}

func (s *store) findById(attemptId string) *attempt.Record {
	for _, item := range s.records {
		if item.AttemptId == attemptId {
			return item
		}
	}
	return nil
}

func (s *store) findBySignature(signature string) *attempt.Record {
	for _, item := range s.records {
		if item.Signature == signature {
			return item
		}
	}
	return nil
}

func (s *store) findByState(state attempt.State) []*attempt.Record {
	var res []*attempt.Record
	for _, item := range s.records {
		if item.State == state {
			res = append(res, item)
		}
	}
	return res
}

func (s *store) filter(items []*attempt.Record, cursor query.Cursor, limit uint64, direction query.Ordering) []*attempt.Record {
	var start uint64
	if direction == query.Descending {
		start = s.last + 1
	}
	if len(cursor) > 0 {
		start = cursor.ToUint64()
	}

	var res []*attempt.Record
	for _, item := range items {
		if item.Id > start && direction == query.Ascending {
			res = append(res, item)
		}
		if item.Id < start && direction == query.Descending {
			res = append(res, item)
		}
	}

	if direction == query.Descending {
		sort.Sort(sort.Reverse(ById(res)))
	}

	if limit > 0 && len(res) >= int(limit) {
		return res[:limit]
	}
	return res
}

func cloneRecords(items []*attempt.Record) []*attempt.Record {
	var res []*attempt.Record
	for _, item := range items {
		cloned := item.Clone()
		res = append(res, &cloned)
	}
	return res
}

func (s *store) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = nil
	s.last = 0
}
