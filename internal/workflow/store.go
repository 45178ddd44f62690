package workflow

import (
	"sync"
)

// RecordReader 记录集的只读视图
type RecordReader interface {
	Get(id string) (Record, bool)
	Snapshot() []Record
	VersionedSnapshot() ([]Record, uint64)
	Version() uint64
	Subscribe(fn func(version uint64)) (unsubscribe func())
}

// RecordStore 当前页面记录的唯一可写状态容器
// 所有读取返回深拷贝,单条记录的更新在锁内整体完成
type RecordStore struct {
	mu          sync.RWMutex
	records     []Record
	index       map[string]int
	version     uint64
	subscribers map[int]func(uint64)
	nextSubID   int
}

// NewRecordStore 创建空的记录集
func NewRecordStore() *RecordStore {
	return &RecordStore{
		index:       make(map[string]int),
		subscribers: make(map[int]func(uint64)),
	}
}

// ReplaceAll 整体替换记录集; 数据与当前结构相等时不做任何通知,返回 false
func (s *RecordStore) ReplaceAll(records []Record) bool {
	s.mu.Lock()
	return s.replaceLocked(records)
}

// ReplaceIfVersion 仅当版本仍为 expected 时整体替换
// current 为 false 表示拉取期间有本地写入,结果被丢弃
func (s *RecordStore) ReplaceIfVersion(expected uint64, records []Record) (replaced, current bool) {
	s.mu.Lock()
	if s.version != expected {
		s.mu.Unlock()
		return false, false
	}
	return s.replaceLocked(records), true
}

// replaceLocked 调用时持有写锁,返回前释放
func (s *RecordStore) replaceLocked(records []Record) bool {
	if RecordsEqual(s.records, records) {
		s.mu.Unlock()
		return false
	}
	s.records = make([]Record, len(records))
	s.index = make(map[string]int, len(records))
	for i, r := range records {
		s.records[i] = r.Clone()
		s.index[r.ID] = i
	}
	version := s.bump()
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, version)
	return true
}

// ApplyTransition 对单条记录应用已确认的状态转换
func (s *RecordStore) ApplyTransition(id string, update TransitionUpdate) (Record, error) {
	recs, err := s.ApplyTransitions([]string{id}, update)
	if err != nil {
		return Record{}, err
	}
	return recs[0], nil
}

// ApplyTransitions 原子地对多条记录应用同一转换,任一 id 不存在时不修改任何记录
func (s *RecordStore) ApplyTransitions(ids []string, update TransitionUpdate) ([]Record, error) {
	s.mu.Lock()
	for _, id := range ids {
		if _, ok := s.index[id]; !ok {
			s.mu.Unlock()
			return nil, ErrRecordNotFound
		}
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		i := s.index[id]
		next := s.records[i].Clone()
		update.apply(&next)
		s.records[i] = next
		out = append(out, next.Clone())
	}
	version := s.bump()
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, version)
	return out, nil
}

// Upsert 写入新建或编辑后的记录,已存在的按 id 原位替换,新记录追加到末尾
func (s *RecordStore) Upsert(records ...Record) {
	if len(records) == 0 {
		return
	}
	s.mu.Lock()
	for _, r := range records {
		if i, ok := s.index[r.ID]; ok {
			s.records[i] = r.Clone()
			continue
		}
		s.index[r.ID] = len(s.records)
		s.records = append(s.records, r.Clone())
	}
	version := s.bump()
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, version)
}

// Remove 删除记录
func (s *RecordStore) Remove(id string) error {
	s.mu.Lock()
	i, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrRecordNotFound
	}
	s.records = append(s.records[:i], s.records[i+1:]...)
	delete(s.index, id)
	for j := i; j < len(s.records); j++ {
		s.index[s.records[j].ID] = j
	}
	version := s.bump()
	subs := s.subscriberList()
	s.mu.Unlock()

	notify(subs, version)
	return nil
}

// Get 按 id 读取记录副本
func (s *RecordStore) Get(id string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.index[id]
	if !ok {
		return Record{}, false
	}
	return s.records[i].Clone(), true
}

// Snapshot 按顺序返回全部记录的副本
func (s *RecordStore) Snapshot() []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out
}

// VersionedSnapshot 同一把锁内取快照与版本号
func (s *RecordStore) VersionedSnapshot() ([]Record, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Record, len(s.records))
	for i, r := range s.records {
		out[i] = r.Clone()
	}
	return out, s.version
}

// Len 记录条数
func (s *RecordStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Version 每次实际变更后递增
func (s *RecordStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Subscribe 注册变更回调,回调在锁外同步执行
func (s *RecordStore) Subscribe(fn func(version uint64)) func() {
	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subscribers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

func (s *RecordStore) bump() uint64 {
	s.version++
	return s.version
}

func (s *RecordStore) subscriberList() []func(uint64) {
	subs := make([]func(uint64), 0, len(s.subscribers))
	for _, fn := range s.subscribers {
		subs = append(subs, fn)
	}
	return subs
}

func notify(subs []func(uint64), version uint64) {
	for _, fn := range subs {
		fn(version)
	}
}
