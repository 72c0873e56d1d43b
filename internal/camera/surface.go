package camera

import "sync"

// MemorySurface は画面を持たない環境向けの Surface 実装
type MemorySurface struct {
	mu         sync.RWMutex
	bufferSize Size
	size       Size
	rotation   int
}

// NewMemorySurface は論理サイズ size の MemorySurface を作成する
func NewMemorySurface(size Size) *MemorySurface {
	return &MemorySurface{size: size, bufferSize: size}
}

func (s *MemorySurface) SetDefaultBufferSize(size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bufferSize = size
}

func (s *MemorySurface) SetSize(size Size) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.size = size
}

func (s *MemorySurface) Size() Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemorySurface) SetRotation(degrees int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rotation = degrees
}

// BufferSize はバッファサイズを返す
func (s *MemorySurface) BufferSize() Size {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bufferSize
}

// Rotation は回転のヒントを返す
func (s *MemorySurface) Rotation() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rotation
}
